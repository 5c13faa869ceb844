package models

import "time"

// User is the durable login principal.
type User struct {
	ID           string
	UserName     string
	Email        string
	PasswordHash string
	FirstName    string
	LastName     string
	IsActive     bool
	IsStaff      bool
	IsSuperuser  bool
	IsSubscribed bool
	LastLogin    *time.Time
	DateJoined   time.Time
}
