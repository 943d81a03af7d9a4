// Package stats answers read-only questions about the ledger over a time
// window ending now.
package stats

import (
	"errors"
	"fmt"
	"time"

	"github.com/TanguyBaudrin/familly-companion/internal/model"
	"github.com/TanguyBaudrin/familly-companion/internal/store"
)

var ErrMemberNotFound = errors.New("member not found")

type Service struct {
	members *store.MemberStore
	tasks   *store.TaskStore
	ledger  *store.LedgerStore
	now     func() time.Time
}

func NewService(db store.Querier, now func() time.Time) *Service {
	if now == nil {
		now = time.Now
	}
	return &Service{
		members: store.NewMemberStore(db),
		tasks:   store.NewTaskStore(db),
		ledger:  store.NewLedgerStore(db),
		now:     now,
	}
}

func (s *Service) window(p Period) (time.Time, time.Time, error) {
	now := s.now().UTC()
	start, err := WindowStart(p, now)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	return start, now, nil
}

// PointsByMember sums each member's positive point changes since the start
// of the period, highest first. Ties keep member creation order.
func (s *Service) PointsByMember(p Period) ([]model.MemberPoints, error) {
	start, end, err := s.window(p)
	if err != nil {
		return nil, err
	}
	out, err := s.ledger.PositiveTotalsSince(start, end)
	if err != nil {
		return nil, err
	}
	if out == nil {
		out = []model.MemberPoints{}
	}
	return out, nil
}

// DailyPoints groups a member's positive point changes in the period by UTC
// calendar day, oldest first. Days without gains are omitted.
func (s *Service) DailyPoints(memberID int64, p Period) ([]model.DailyPoints, error) {
	start, end, err := s.window(p)
	if err != nil {
		return nil, err
	}
	entries, err := s.ledger.PositiveEntriesForMember(memberID, start, end)
	if err != nil {
		return nil, err
	}

	out := []model.DailyPoints{}
	for _, e := range entries {
		date := e.Timestamp.UTC().Format(time.DateOnly)
		if n := len(out); n > 0 && out[n-1].Date == date {
			out[n-1].Points += e.PointsChange
			continue
		}
		out = append(out, model.DailyPoints{Date: date, Points: e.PointsChange})
	}
	return out, nil
}

// RewardPopularity counts redemptions per reward over all time, most
// claimed first. Ties keep reward creation order.
func (s *Service) RewardPopularity() ([]model.RewardCount, error) {
	out, err := s.ledger.RewardCounts()
	if err != nil {
		return nil, err
	}
	if out == nil {
		out = []model.RewardCount{}
	}
	return out, nil
}

// Statistics bundles the period totals with reward popularity.
type Statistics struct {
	PointsByUser    []model.MemberPoints `json:"points_by_user"`
	MostUsedRewards []model.RewardCount  `json:"most_used_rewards"`
}

func (s *Service) Statistics(p Period) (*Statistics, error) {
	points, err := s.PointsByMember(p)
	if err != nil {
		return nil, err
	}
	rewards, err := s.RewardPopularity()
	if err != nil {
		return nil, err
	}
	return &Statistics{PointsByUser: points, MostUsedRewards: rewards}, nil
}

type MemberDetails struct {
	Member         *model.Member         `json:"member"`
	PendingTasks   []model.Task          `json:"pending_tasks"`
	CompletedTasks []model.Task          `json:"completed_tasks"`
	DailyPoints    []model.DailyPoints   `json:"daily_points"`
	ClaimedRewards []model.ClaimedReward `json:"claimed_rewards"`
}

// MemberDetails collects a member's assigned tasks, daily gains for the
// period and claimed rewards.
func (s *Service) MemberDetails(memberID int64, p Period) (*MemberDetails, error) {
	// Validate the period before touching storage.
	if _, err := WindowStart(p, s.now()); err != nil {
		return nil, err
	}

	member, err := s.members.GetByID(memberID)
	if err != nil {
		return nil, err
	}
	if member == nil {
		return nil, fmt.Errorf("member %d: %w", memberID, ErrMemberNotFound)
	}

	d := &MemberDetails{Member: member}
	if d.PendingTasks, err = s.tasks.List(store.TaskFilter{Status: model.TaskPending, AssignedTo: &memberID}); err != nil {
		return nil, err
	}
	if d.CompletedTasks, err = s.tasks.List(store.TaskFilter{Status: model.TaskCompleted, AssignedTo: &memberID}); err != nil {
		return nil, err
	}
	if d.DailyPoints, err = s.DailyPoints(memberID, p); err != nil {
		return nil, err
	}
	if d.ClaimedRewards, err = s.ledger.ClaimedRewards(memberID); err != nil {
		return nil, err
	}

	if d.PendingTasks == nil {
		d.PendingTasks = []model.Task{}
	}
	if d.CompletedTasks == nil {
		d.CompletedTasks = []model.Task{}
	}
	if d.ClaimedRewards == nil {
		d.ClaimedRewards = []model.ClaimedReward{}
	}
	return d, nil
}

// History returns a member's ledger entries, newest first.
func (s *Service) History(memberID int64) ([]model.LedgerEntry, error) {
	member, err := s.members.GetByID(memberID)
	if err != nil {
		return nil, err
	}
	if member == nil {
		return nil, fmt.Errorf("member %d: %w", memberID, ErrMemberNotFound)
	}
	entries, err := s.ledger.ListByMember(memberID)
	if err != nil {
		return nil, err
	}
	if entries == nil {
		entries = []model.LedgerEntry{}
	}
	return entries, nil
}
