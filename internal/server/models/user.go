package models

import "time"

// User is an end user of the gateway. Email is unique case-insensitively;
// username and student id are optional but unique when present.
type User struct {
	ID           string
	Email        string
	Username     string
	StudentID    string
	PasswordHash string
	CreatedAt    time.Time
}
