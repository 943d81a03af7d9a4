// Package points owns every change to a member's balance. Each operation
// runs in one transaction that writes the ledger entry and the balance
// together, so a member's total always equals the sum of their entries.
package points

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/TanguyBaudrin/familly-companion/internal/model"
	"github.com/TanguyBaudrin/familly-companion/internal/store"
)

type Engine struct {
	db      *sql.DB
	members *store.MemberStore
	tasks   *store.TaskStore
	rewards *store.RewardStore
	ledger  *store.LedgerStore
	now     func() time.Time
	logger  *slog.Logger
	metrics engineMetrics
}

type Option func(*engineOptions)

type engineOptions struct {
	now      func() time.Time
	logger   *slog.Logger
	registry prometheus.Registerer
}

// WithClock overrides time.Now, mostly for tests.
func WithClock(now func() time.Time) Option {
	return func(o *engineOptions) { o.now = now }
}

func WithLogger(logger *slog.Logger) Option {
	return func(o *engineOptions) { o.logger = logger }
}

// WithRegisterer registers the engine counters on reg. Without it the
// counters live on a private registry and are never exported.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(o *engineOptions) { o.registry = reg }
}

func New(db *sql.DB, opts ...Option) *Engine {
	o := engineOptions{
		now:    time.Now,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.registry == nil {
		o.registry = prometheus.NewRegistry()
	}

	e := &Engine{
		db:      db,
		members: store.NewMemberStore(db),
		tasks:   store.NewTaskStore(db),
		rewards: store.NewRewardStore(db),
		ledger:  store.NewLedgerStore(db),
		now:     o.now,
		logger:  o.logger.With("component", "points"),
	}
	e.metrics.init(o.registry)
	return e
}

// txStores is the set of stores bound to one transaction.
type txStores struct {
	members *store.MemberStore
	tasks   *store.TaskStore
	rewards *store.RewardStore
	ledger  *store.LedgerStore
}

// inTx runs fn inside a transaction and commits when fn returns nil.
func (e *Engine) inTx(ctx context.Context, fn func(s txStores) error) error {
	tx, err := e.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	err = fn(txStores{
		members: e.members.WithTx(tx),
		tasks:   e.tasks.WithTx(tx),
		rewards: e.rewards.WithTx(tx),
		ledger:  e.ledger.WithTx(tx),
	})
	if err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// BalanceChange is the outcome of a claim or adjustment.
type BalanceChange struct {
	Member *model.Member      `json:"member"`
	Entry  *model.LedgerEntry `json:"entry"`
}

// ClaimReward debits the reward's cost from the member. The balance check
// and the debit happen in the same transaction, and the debit itself is
// guarded so a concurrent claim can never push the balance below zero.
// Repeated claims are charged each time.
func (e *Engine) ClaimReward(ctx context.Context, memberID, rewardID int64) (*BalanceChange, error) {
	now := e.now().UTC()
	var out BalanceChange
	var cost int

	err := e.inTx(ctx, func(s txStores) error {
		member, err := s.members.GetByID(memberID)
		if err != nil {
			return err
		}
		if member == nil {
			return fmt.Errorf("member %d: %w", memberID, ErrNotFound)
		}
		reward, err := s.rewards.GetByID(rewardID)
		if err != nil {
			return err
		}
		if reward == nil {
			return fmt.Errorf("reward %d: %w", rewardID, ErrNotFound)
		}
		cost = reward.Cost

		if member.TotalPoints < reward.Cost {
			return &InsufficientPointsError{MemberID: memberID, Available: member.TotalPoints, Requested: reward.Cost}
		}

		ok, err := s.members.AddPoints(memberID, -reward.Cost)
		if err != nil {
			return err
		}
		if !ok {
			return &InsufficientPointsError{MemberID: memberID, Available: member.TotalPoints, Requested: reward.Cost}
		}

		entry, err := s.ledger.Append(memberID, -reward.Cost,
			fmt.Sprintf("Reward '%s' claimed", reward.Name),
			model.RewardRedemption{RewardID: &reward.ID, RewardName: reward.Name}, now)
		if err != nil {
			return err
		}
		out.Entry = entry

		out.Member, err = s.members.GetByID(memberID)
		return err
	})
	if err != nil {
		e.metrics.reject("claim", err)
		e.logger.Debug("claim rejected", "member_id", memberID, "reward_id", rewardID, "error", err)
		return nil, err
	}

	e.metrics.claims.Inc()
	e.metrics.pointsRedeemed.Add(float64(cost))
	e.logger.Info("reward claimed", "member_id", memberID, "reward_id", rewardID, "cost", cost, "balance", out.Member.TotalPoints)
	return &out, nil
}

// AdjustPoints applies a manual correction of delta points. The result may
// not go below zero. A zero delta changes nothing and returns a nil entry.
func (e *Engine) AdjustPoints(ctx context.Context, memberID int64, delta int, reason string) (*BalanceChange, error) {
	now := e.now().UTC()
	if reason == "" {
		reason = "Manual adjustment"
	}
	var out BalanceChange

	err := e.inTx(ctx, func(s txStores) error {
		member, err := s.members.GetByID(memberID)
		if err != nil {
			return err
		}
		if member == nil {
			return fmt.Errorf("member %d: %w", memberID, ErrNotFound)
		}
		if delta == 0 {
			out.Member = member
			return nil
		}

		ok, err := s.members.AddPoints(memberID, delta)
		if err != nil {
			return err
		}
		if !ok {
			return &InsufficientPointsError{MemberID: memberID, Available: member.TotalPoints, Requested: -delta}
		}

		out.Entry, err = s.ledger.Append(memberID, delta, reason, model.Adjustment{}, now)
		if err != nil {
			return err
		}
		out.Member, err = s.members.GetByID(memberID)
		return err
	})
	if err != nil {
		e.metrics.reject("adjust", err)
		e.logger.Debug("adjustment rejected", "member_id", memberID, "delta", delta, "error", err)
		return nil, err
	}

	if out.Entry != nil {
		e.metrics.adjustments.Inc()
		e.logger.Info("points adjusted", "member_id", memberID, "delta", delta, "balance", out.Member.TotalPoints)
	}
	return &out, nil
}

// MemberUpdate holds the optional changes for UpdateMember. A nil field is
// left alone.
type MemberUpdate struct {
	Name        *string
	TotalPoints *int
}

// UpdateMember renames a member and moves their balance to a target value
// in one transaction. The balance change is recorded as an adjustment whose
// delta is computed from the balance read inside the transaction, so a
// concurrent completion or claim cannot make the result miss the target.
// Either every change is applied or none is.
func (e *Engine) UpdateMember(ctx context.Context, memberID int64, u MemberUpdate) (*BalanceChange, error) {
	now := e.now().UTC()
	var out BalanceChange
	delta := 0

	err := e.inTx(ctx, func(s txStores) error {
		member, err := s.members.GetByID(memberID)
		if err != nil {
			return err
		}
		if member == nil {
			return fmt.Errorf("member %d: %w", memberID, ErrNotFound)
		}

		if u.Name != nil && *u.Name != member.Name {
			taken, err := s.members.NameExists(*u.Name, memberID)
			if err != nil {
				return err
			}
			if taken {
				return fmt.Errorf("member name %q: %w", *u.Name, ErrNameTaken)
			}
			if _, err := s.members.UpdateName(memberID, *u.Name); err != nil {
				return err
			}
		}

		if u.TotalPoints != nil {
			delta = *u.TotalPoints - member.TotalPoints
		}
		if delta != 0 {
			ok, err := s.members.AddPoints(memberID, delta)
			if err != nil {
				return err
			}
			if !ok {
				return &InsufficientPointsError{MemberID: memberID, Available: member.TotalPoints, Requested: -delta}
			}
			reason := fmt.Sprintf("Balance set to %d", *u.TotalPoints)
			if out.Entry, err = s.ledger.Append(memberID, delta, reason, model.Adjustment{}, now); err != nil {
				return err
			}
		}

		out.Member, err = s.members.GetByID(memberID)
		return err
	})
	if err != nil {
		e.metrics.reject("update_member", err)
		e.logger.Debug("member update rejected", "member_id", memberID, "error", err)
		return nil, err
	}

	if out.Entry != nil {
		e.metrics.adjustments.Inc()
		e.logger.Info("balance set", "member_id", memberID, "delta", delta, "balance", out.Member.TotalPoints)
	}
	return &out, nil
}

// VerifyLedger returns every member whose stored balance disagrees with the
// sum of their ledger entries. An empty result means the ledger is
// consistent.
func (e *Engine) VerifyLedger(ctx context.Context) ([]model.LedgerDiscrepancy, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	diffs, err := e.ledger.Discrepancies()
	if err != nil {
		return nil, err
	}
	for _, d := range diffs {
		e.logger.Warn("ledger mismatch", "member_id", d.MemberID, "total_points", d.TotalPoints, "ledger_sum", d.LedgerSum)
	}
	return diffs, nil
}
