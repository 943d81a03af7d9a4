package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/TanguyBaudrin/familly-companion/internal/model"
)

// LedgerStore reads and appends ledger entries. Entries are never updated.
type LedgerStore struct {
	db Querier
}

func NewLedgerStore(db Querier) *LedgerStore {
	return &LedgerStore{db: db}
}

// WithTx returns a LedgerStore bound to tx.
func (s *LedgerStore) WithTx(tx *sql.Tx) *LedgerStore {
	return &LedgerStore{db: tx}
}

const ledgerCols = `id, member_id, points_change, reason, cause_kind, task_id, completion_id, reward_id, reward_name, timestamp`

func scanLedgerEntry(sc scanner) (*model.LedgerEntry, error) {
	var e model.LedgerEntry
	var kind string
	var taskID, completionID, rewardID sql.NullInt64
	var rewardName sql.NullString

	err := sc.Scan(
		&e.ID, &e.MemberID, &e.PointsChange, &e.Reason, &kind,
		&taskID, &completionID, &rewardID, &rewardName, &e.Timestamp,
	)
	if err != nil {
		return nil, err
	}

	switch model.CauseKind(kind) {
	case model.CauseTaskCompletion:
		e.Cause = model.TaskCompletion{TaskID: int64Ptr(taskID), CompletionID: int64Ptr(completionID)}
	case model.CauseRewardRedemption:
		e.Cause = model.RewardRedemption{RewardID: int64Ptr(rewardID), RewardName: rewardName.String}
	case model.CauseAdjustment:
		e.Cause = model.Adjustment{}
	default:
		return nil, fmt.Errorf("unknown cause kind %q", kind)
	}
	return &e, nil
}

func causeArgs(c model.Cause) (kind model.CauseKind, taskID, completionID, rewardID sql.NullInt64, err error) {
	switch c := c.(type) {
	case model.TaskCompletion:
		return c.Kind(), nullInt64(c.TaskID), nullInt64(c.CompletionID), sql.NullInt64{}, nil
	case model.RewardRedemption:
		return c.Kind(), sql.NullInt64{}, sql.NullInt64{}, nullInt64(c.RewardID), nil
	case model.Adjustment:
		return c.Kind(), sql.NullInt64{}, sql.NullInt64{}, sql.NullInt64{}, nil
	}
	return "", sql.NullInt64{}, sql.NullInt64{}, sql.NullInt64{}, fmt.Errorf("unsupported ledger cause %T", c)
}

// Append writes one ledger entry. Callers keep the member balance in step.
func (s *LedgerStore) Append(memberID int64, pointsChange int, reason string, cause model.Cause, at time.Time) (*model.LedgerEntry, error) {
	kind, taskID, completionID, rewardID, err := causeArgs(cause)
	if err != nil {
		return nil, err
	}
	var rewardName sql.NullString
	if c, ok := cause.(model.RewardRedemption); ok && c.RewardName != "" {
		rewardName = sql.NullString{String: c.RewardName, Valid: true}
	}

	result, err := s.db.Exec(
		`INSERT INTO ledger_entries (member_id, points_change, reason, cause_kind, task_id, completion_id, reward_id, reward_name, timestamp)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		memberID, pointsChange, reason, kind, taskID, completionID, rewardID, rewardName, at.UTC(),
	)
	if err != nil {
		return nil, fmt.Errorf("insert ledger entry: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}

	row := s.db.QueryRow(`SELECT `+ledgerCols+` FROM ledger_entries WHERE id = ?`, id)
	e, err := scanLedgerEntry(row)
	if err != nil {
		return nil, fmt.Errorf("get ledger entry: %w", err)
	}
	return e, nil
}

// ListByMember returns a member's entries, newest first.
func (s *LedgerStore) ListByMember(memberID int64) ([]model.LedgerEntry, error) {
	rows, err := s.db.Query(
		`SELECT `+ledgerCols+` FROM ledger_entries WHERE member_id = ? ORDER BY timestamp DESC, id DESC`,
		memberID,
	)
	if err != nil {
		return nil, fmt.Errorf("list ledger entries: %w", err)
	}
	defer rows.Close()

	var entries []model.LedgerEntry
	for rows.Next() {
		e, err := scanLedgerEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("scan ledger entry: %w", err)
		}
		entries = append(entries, *e)
	}
	return entries, rows.Err()
}

func (s *LedgerStore) SumForMember(memberID int64) (int, error) {
	var sum int
	err := s.db.QueryRow(
		`SELECT COALESCE(SUM(points_change), 0) FROM ledger_entries WHERE member_id = ?`,
		memberID,
	).Scan(&sum)
	if err != nil {
		return 0, fmt.Errorf("sum ledger: %w", err)
	}
	return sum, nil
}

// Discrepancies returns every member whose stored balance differs from the
// sum of their ledger entries.
func (s *LedgerStore) Discrepancies() ([]model.LedgerDiscrepancy, error) {
	rows, err := s.db.Query(`
		SELECT m.id, m.name, m.total_points, COALESCE(SUM(l.points_change), 0) AS ledger_sum
		FROM members m
		LEFT JOIN ledger_entries l ON l.member_id = m.id
		GROUP BY m.id
		HAVING m.total_points != ledger_sum
		ORDER BY m.id ASC`)
	if err != nil {
		return nil, fmt.Errorf("verify ledger: %w", err)
	}
	defer rows.Close()

	var out []model.LedgerDiscrepancy
	for rows.Next() {
		var d model.LedgerDiscrepancy
		if err := rows.Scan(&d.MemberID, &d.Name, &d.TotalPoints, &d.LedgerSum); err != nil {
			return nil, fmt.Errorf("scan discrepancy: %w", err)
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// PositiveTotalsSince sums positive point changes per member within
// [start, end], highest first, ties by member id. Members with no positive
// entries in the window are omitted.
func (s *LedgerStore) PositiveTotalsSince(start, end time.Time) ([]model.MemberPoints, error) {
	rows, err := s.db.Query(`
		SELECT m.id, m.name, SUM(l.points_change) AS total
		FROM ledger_entries l
		JOIN members m ON m.id = l.member_id
		WHERE l.points_change > 0 AND l.timestamp >= ? AND l.timestamp <= ?
		GROUP BY m.id
		ORDER BY total DESC, m.id ASC`,
		start.UTC(), end.UTC(),
	)
	if err != nil {
		return nil, fmt.Errorf("sum points by member: %w", err)
	}
	defer rows.Close()

	var out []model.MemberPoints
	for rows.Next() {
		var mp model.MemberPoints
		if err := rows.Scan(&mp.MemberID, &mp.Name, &mp.Points); err != nil {
			return nil, fmt.Errorf("scan member points: %w", err)
		}
		out = append(out, mp)
	}
	return out, rows.Err()
}

// PositiveEntriesForMember returns a member's positive entries within
// [start, end], oldest first.
func (s *LedgerStore) PositiveEntriesForMember(memberID int64, start, end time.Time) ([]model.LedgerEntry, error) {
	rows, err := s.db.Query(
		`SELECT `+ledgerCols+` FROM ledger_entries
		 WHERE member_id = ? AND points_change > 0 AND timestamp >= ? AND timestamp <= ?
		 ORDER BY timestamp ASC, id ASC`,
		memberID, start.UTC(), end.UTC(),
	)
	if err != nil {
		return nil, fmt.Errorf("list positive entries: %w", err)
	}
	defer rows.Close()

	var entries []model.LedgerEntry
	for rows.Next() {
		e, err := scanLedgerEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("scan ledger entry: %w", err)
		}
		entries = append(entries, *e)
	}
	return entries, rows.Err()
}

// RewardCounts counts redemption entries per reward, most claimed first,
// ties by reward id. Claims of deleted rewards are grouped by the name
// recorded at claim time and sort after live rewards on ties.
func (s *LedgerStore) RewardCounts() ([]model.RewardCount, error) {
	rows, err := s.db.Query(`
		SELECT l.reward_id, COALESCE(r.name, l.reward_name) AS name, COUNT(l.id) AS uses
		FROM ledger_entries l
		LEFT JOIN rewards r ON r.id = l.reward_id
		WHERE l.cause_kind = ? AND (l.reward_id IS NOT NULL OR l.reward_name IS NOT NULL)
		GROUP BY l.reward_id, CASE WHEN l.reward_id IS NULL THEN l.reward_name END
		ORDER BY uses DESC, l.reward_id IS NULL, l.reward_id ASC, name ASC`,
		model.CauseRewardRedemption,
	)
	if err != nil {
		return nil, fmt.Errorf("count rewards: %w", err)
	}
	defer rows.Close()

	var out []model.RewardCount
	for rows.Next() {
		var rc model.RewardCount
		var rewardID sql.NullInt64
		if err := rows.Scan(&rewardID, &rc.Name, &rc.Count); err != nil {
			return nil, fmt.Errorf("scan reward count: %w", err)
		}
		rc.RewardID = rewardID.Int64
		out = append(out, rc)
	}
	return out, rows.Err()
}

// ClaimedRewards lists a member's redemptions, newest first. A deleted
// reward keeps the name it had when claimed and a nil RewardID.
func (s *LedgerStore) ClaimedRewards(memberID int64) ([]model.ClaimedReward, error) {
	rows, err := s.db.Query(`
		SELECT l.reward_id, COALESCE(r.name, l.reward_name), -l.points_change, l.timestamp
		FROM ledger_entries l
		LEFT JOIN rewards r ON r.id = l.reward_id
		WHERE l.member_id = ? AND l.cause_kind = ?
		  AND (l.reward_id IS NOT NULL OR l.reward_name IS NOT NULL)
		ORDER BY l.timestamp DESC, l.id DESC`,
		memberID, model.CauseRewardRedemption,
	)
	if err != nil {
		return nil, fmt.Errorf("list claimed rewards: %w", err)
	}
	defer rows.Close()

	var out []model.ClaimedReward
	for rows.Next() {
		var c model.ClaimedReward
		var rewardID sql.NullInt64
		if err := rows.Scan(&rewardID, &c.Name, &c.Cost, &c.ClaimedAt); err != nil {
			return nil, fmt.Errorf("scan claimed reward: %w", err)
		}
		c.RewardID = int64Ptr(rewardID)
		out = append(out, c)
	}
	return out, rows.Err()
}
