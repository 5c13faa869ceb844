package models

// EmailAddress is one email identity owned by a user. At most one address per
// user is primary.
type EmailAddress struct {
	ID       string
	UserID   string
	Email    string
	Verified bool
	Primary  bool
}

// ChallengeContext tells the notifier why a verification is being requested.
type ChallengeContext string

const (
	ChallengeSignup ChallengeContext = "signup"
	ChallengeChange ChallengeContext = "change"
)
