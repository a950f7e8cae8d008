package model

import "time"

// User owns tracked reviews. GithubToken holds the encrypted credential
// blob; plaintext tokens never live on this struct.
type User struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	GithubToken  string    `json:"-"`
	CreatedAt    time.Time `json:"createdAt"`
}
