package validate

import (
	"strings"

	"github.com/google/uuid"
)

func Required(value string) bool {
	return strings.TrimSpace(value) != ""
}

// UserID reports whether value is a remote user id (a UUID).
func UserID(value string) bool {
	_, err := uuid.Parse(strings.TrimSpace(value))
	return err == nil
}
