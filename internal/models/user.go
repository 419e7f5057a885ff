package models

import "time"

// User represents a registered account.
type User struct {
	ID           string    `json:"id" db:"id"`
	Username     string    `json:"username" db:"username"`
	PasswordHash string    `json:"-" db:"password_hash"`
	VideoCount   int       `json:"videoCount" db:"video_count"`
	CreatedAt    time.Time `json:"createdAt" db:"created_at"`
}

// LeaderboardEntry is a public projection of a user for the leaderboard.
type LeaderboardEntry struct {
	Username   string `json:"username"`
	VideoCount int    `json:"video_count"`
}
