// Package domain holds the stored document types: users and books.
package domain

// User is a registered account. Users are created on signup and never
// updated or deleted.
type User struct {
	Record
	// Email is unique as stored; comparisons are case-sensitive.
	Email        string `json:"email"`
	PasswordHash string `json:"passwordHash,omitempty"`
}
