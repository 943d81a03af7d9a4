package model

import (
	"encoding/json"
	"time"
)

type CauseKind string

const (
	CauseTaskCompletion   CauseKind = "task_completion"
	CauseRewardRedemption CauseKind = "reward_redemption"
	CauseAdjustment       CauseKind = "adjustment"
)

// Cause explains why a ledger entry exists. It is one of TaskCompletion,
// RewardRedemption or Adjustment.
type Cause interface {
	Kind() CauseKind
	isCause()
}

// TaskCompletion credits a member's share of a completed task. The
// references are nil once the task has been deleted.
type TaskCompletion struct {
	TaskID       *int64
	CompletionID *int64
}

// RewardRedemption debits the cost of a claimed reward. RewardID is nil once
// the reward has been deleted; RewardName is kept so the claim stays
// readable afterwards.
type RewardRedemption struct {
	RewardID   *int64
	RewardName string
}

// Adjustment is a manual balance correction.
type Adjustment struct{}

func (TaskCompletion) Kind() CauseKind   { return CauseTaskCompletion }
func (RewardRedemption) Kind() CauseKind { return CauseRewardRedemption }
func (Adjustment) Kind() CauseKind       { return CauseAdjustment }

func (TaskCompletion) isCause()   {}
func (RewardRedemption) isCause() {}
func (Adjustment) isCause()       {}

// LedgerEntry is an immutable record of one signed point change.
type LedgerEntry struct {
	ID           int64
	MemberID     int64
	PointsChange int
	Reason       string
	Cause        Cause
	Timestamp    time.Time
}

type ledgerEntryJSON struct {
	ID           int64     `json:"id"`
	MemberID     int64     `json:"member_id"`
	PointsChange int       `json:"points_change"`
	Reason       string    `json:"reason"`
	CauseKind    CauseKind `json:"cause"`
	TaskID       *int64    `json:"task_id"`
	CompletionID *int64    `json:"completion_id"`
	RewardID     *int64    `json:"reward_id"`
	RewardName   string    `json:"reward_name,omitempty"`
	Timestamp    time.Time `json:"timestamp"`
}

func (e LedgerEntry) MarshalJSON() ([]byte, error) {
	out := ledgerEntryJSON{
		ID:           e.ID,
		MemberID:     e.MemberID,
		PointsChange: e.PointsChange,
		Reason:       e.Reason,
		Timestamp:    e.Timestamp,
	}
	switch c := e.Cause.(type) {
	case TaskCompletion:
		out.CauseKind = c.Kind()
		out.TaskID = c.TaskID
		out.CompletionID = c.CompletionID
	case RewardRedemption:
		out.CauseKind = c.Kind()
		out.RewardID = c.RewardID
		out.RewardName = c.RewardName
	case Adjustment:
		out.CauseKind = c.Kind()
	}
	return json.Marshal(out)
}

// MemberPoints is a member's positive point total for a period.
type MemberPoints struct {
	MemberID int64  `json:"-"`
	Name     string `json:"name"`
	Points   int    `json:"points"`
}

// DailyPoints is the positive point total for one UTC calendar day.
type DailyPoints struct {
	Date   string `json:"date"`
	Points int    `json:"points"`
}

// LedgerDiscrepancy reports a member whose stored balance disagrees with the
// sum of their ledger entries.
type LedgerDiscrepancy struct {
	MemberID    int64  `json:"member_id"`
	Name        string `json:"name"`
	TotalPoints int    `json:"total_points"`
	LedgerSum   int    `json:"ledger_sum"`
}
