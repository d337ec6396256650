package model

import "time"

type Reminder struct {
	ID       string    `json:"id"`
	UserID   string    `json:"user_id"`
	Template string    `json:"template"`
	Title    string    `json:"title"`
	Body     string    `json:"body"`
	DueAt    time.Time `json:"due_at"`
	Group    string    `json:"group"`
}
