package dto

type PushTokenRequest struct {
	Token string `json:"token"`
}

type OKResponse struct {
	OK bool `json:"ok"`
}
