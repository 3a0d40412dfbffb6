package id

import "github.com/google/uuid"

// NewUUIDv7 generates a time-ordered UUID suitable for primary keys.
// Falls back to UUIDv4 only if the system clock is unavailable, which
// uuid.NewV7 treats as an error.
func NewUUIDv7() string {
	v7, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return v7.String()
}
