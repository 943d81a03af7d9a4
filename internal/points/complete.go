package points

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/TanguyBaudrin/familly-companion/internal/expiry"
	"github.com/TanguyBaudrin/familly-companion/internal/model"
)

// Allocation assigns a percentage of a task's points to one member.
type Allocation struct {
	MemberID   int64 `json:"member_id"`
	Percentage int   `json:"percentage"`
}

// Grant is what one member received for a completed task.
type Grant struct {
	MemberID      int64 `json:"member_id"`
	CompletionID  int64 `json:"completion_id"`
	LedgerEntryID int64 `json:"ledger_entry_id"`
	Percentage    int   `json:"percentage"`
	Points        int   `json:"points"`
}

type CompletionResult struct {
	Task   *model.Task `json:"task"`
	Grants []Grant     `json:"grants"`
	// Shortfall is the part of the task's points lost to rounding down and
	// to skipped members.
	Shortfall int `json:"shortfall"`
}

// ValidateAllocations checks that allocations are non-empty, each within
// [0, 100], name each member at most once and sum to exactly 100.
func ValidateAllocations(allocs []Allocation) error {
	if len(allocs) == 0 {
		return &AllocationError{Reason: "no allocations"}
	}
	seen := make(map[int64]bool, len(allocs))
	total := 0
	for _, a := range allocs {
		if a.Percentage < 0 || a.Percentage > 100 {
			return &AllocationError{Reason: fmt.Sprintf("percentage %d for member %d out of range", a.Percentage, a.MemberID)}
		}
		if seen[a.MemberID] {
			return &AllocationError{Reason: fmt.Sprintf("member %d listed twice", a.MemberID)}
		}
		seen[a.MemberID] = true
		total += a.Percentage
	}
	if total != 100 {
		return &AllocationError{Reason: fmt.Sprintf("percentages sum to %d, want 100", total)}
	}
	return nil
}

// Share returns floor(points * percentage / 100).
func Share(points, percentage int) int {
	return int(decimal.NewFromInt(int64(points)).
		Mul(decimal.NewFromInt(int64(percentage))).
		Div(decimal.NewFromInt(100)).
		Floor().
		IntPart())
}

func completionReason(description string, percentage int) string {
	if percentage == 100 {
		return fmt.Sprintf("Task '%s' completed", description)
	}
	return fmt.Sprintf("Task '%s' completed (%d%% share)", description, percentage)
}

// CompleteTask marks a pending task completed and credits each allocated
// member their share. Allocations naming unknown members are skipped. The
// whole operation is one transaction; on any error nothing is written.
func (e *Engine) CompleteTask(ctx context.Context, taskID int64, allocs []Allocation) (*CompletionResult, error) {
	now := e.now().UTC()
	var result CompletionResult

	err := e.inTx(ctx, func(s txStores) error {
		task, err := s.tasks.GetByID(taskID)
		if err != nil {
			return err
		}
		if task == nil || task.Status != model.TaskPending {
			return fmt.Errorf("pending task %d: %w", taskID, ErrNotFound)
		}

		expired, err := expiry.IsExpired(*task, now)
		if err != nil {
			return fmt.Errorf("task %d: %w", taskID, err)
		}
		if expired {
			return fmt.Errorf("task %d: %w", taskID, ErrTaskExpired)
		}

		if err := ValidateAllocations(allocs); err != nil {
			return err
		}

		completedAt := now
		if completedAt.Before(task.CreatedAt) {
			completedAt = task.CreatedAt
		}

		granted := 0
		for _, a := range allocs {
			member, err := s.members.GetByID(a.MemberID)
			if err != nil {
				return err
			}
			if member == nil {
				e.logger.Debug("skipping unknown member", "task_id", taskID, "member_id", a.MemberID)
				continue
			}

			pts := Share(task.Points, a.Percentage)
			comp, err := s.tasks.CreateCompletion(task.ID, member.ID, a.Percentage, pts, completedAt)
			if err != nil {
				return err
			}
			entry, err := s.ledger.Append(member.ID, pts, completionReason(task.Description, a.Percentage),
				model.TaskCompletion{TaskID: &task.ID, CompletionID: &comp.ID}, completedAt)
			if err != nil {
				return err
			}
			ok, err := s.members.AddPoints(member.ID, pts)
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("credit member %d: %w", member.ID, ErrNotFound)
			}

			granted += pts
			result.Grants = append(result.Grants, Grant{
				MemberID:      member.ID,
				CompletionID:  comp.ID,
				LedgerEntryID: entry.ID,
				Percentage:    a.Percentage,
				Points:        pts,
			})
		}
		if len(result.Grants) == 0 {
			return fmt.Errorf("task %d: %w", taskID, ErrNoValidRecipients)
		}

		ok, err := s.tasks.MarkCompleted(task.ID, completedAt)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("pending task %d: %w", taskID, ErrNotFound)
		}

		result.Task, err = s.tasks.GetByID(task.ID)
		if err != nil {
			return err
		}
		result.Shortfall = task.Points - granted
		return nil
	})
	if err != nil {
		e.metrics.reject("complete", err)
		e.logger.Debug("completion rejected", "task_id", taskID, "error", err)
		return nil, err
	}

	e.metrics.completions.Inc()
	e.metrics.pointsAwarded.Add(float64(result.Task.Points - result.Shortfall))
	e.logger.Info("task completed", "task_id", taskID, "recipients", len(result.Grants), "shortfall", result.Shortfall)
	return &result, nil
}
