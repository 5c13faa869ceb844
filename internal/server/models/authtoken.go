package models

import "time"

// AuthToken is the opaque API key presented as "Authorization: Token <key>".
type AuthToken struct {
	Key       string
	UserID    string
	CreatedAt time.Time
}
