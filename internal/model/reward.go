package model

import "time"

type Reward struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	Cost        int       `json:"cost"`
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"created_at"`
}

// RewardCount is how many times a reward has been claimed. RewardID is zero
// for a reward that has since been deleted.
type RewardCount struct {
	RewardID int64  `json:"-"`
	Name     string `json:"name"`
	Count    int    `json:"count"`
}

// ClaimedReward is one redemption from a member's history.
type ClaimedReward struct {
	RewardID  *int64    `json:"reward_id"`
	Name      string    `json:"name"`
	Cost      int       `json:"cost"`
	ClaimedAt time.Time `json:"claimed_at"`
}
