package model

import "time"

type Member struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	TotalPoints int       `json:"total_points"`
	HasPIN      bool      `json:"has_pin"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// LeaderboardEntry is a member ranked by current balance.
type LeaderboardEntry struct {
	Rank        int    `json:"rank"`
	MemberID    int64  `json:"member_id"`
	Name        string `json:"name"`
	TotalPoints int    `json:"total_points"`
}
