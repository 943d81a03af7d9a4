package store

import (
	"database/sql"
	"fmt"

	"github.com/TanguyBaudrin/familly-companion/internal/model"
)

type RewardStore struct {
	db Querier
}

func NewRewardStore(db Querier) *RewardStore {
	return &RewardStore{db: db}
}

// WithTx returns a RewardStore bound to tx.
func (s *RewardStore) WithTx(tx *sql.Tx) *RewardStore {
	return &RewardStore{db: tx}
}

func scanReward(sc scanner) (*model.Reward, error) {
	var r model.Reward
	if err := sc.Scan(&r.ID, &r.Name, &r.Cost, &r.Description, &r.CreatedAt); err != nil {
		return nil, err
	}
	return &r, nil
}

const rewardCols = `id, name, cost, description, created_at`

func (s *RewardStore) Create(name string, cost int, description string) (*model.Reward, error) {
	result, err := s.db.Exec(
		`INSERT INTO rewards (name, cost, description) VALUES (?, ?, ?)`,
		name, cost, description,
	)
	if err != nil {
		return nil, fmt.Errorf("insert reward: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetByID(id)
}

func (s *RewardStore) GetByID(id int64) (*model.Reward, error) {
	row := s.db.QueryRow(`SELECT `+rewardCols+` FROM rewards WHERE id = ?`, id)
	r, err := scanReward(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get reward: %w", err)
	}
	return r, nil
}

// List returns all rewards ordered by name.
func (s *RewardStore) List() ([]model.Reward, error) {
	rows, err := s.db.Query(`SELECT ` + rewardCols + ` FROM rewards ORDER BY name ASC, id ASC`)
	if err != nil {
		return nil, fmt.Errorf("list rewards: %w", err)
	}
	defer rows.Close()

	var rewards []model.Reward
	for rows.Next() {
		r, err := scanReward(rows)
		if err != nil {
			return nil, fmt.Errorf("scan reward: %w", err)
		}
		rewards = append(rewards, *r)
	}
	return rewards, rows.Err()
}

func (s *RewardStore) Update(id int64, name string, cost int, description string) (*model.Reward, error) {
	_, err := s.db.Exec(
		`UPDATE rewards SET name = ?, cost = ?, description = ? WHERE id = ?`,
		name, cost, description, id,
	)
	if err != nil {
		return nil, fmt.Errorf("update reward: %w", err)
	}
	return s.GetByID(id)
}

func (s *RewardStore) Delete(id int64) error {
	_, err := s.db.Exec(`DELETE FROM rewards WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete reward: %w", err)
	}
	return nil
}

func (s *RewardStore) NameExists(name string, excludeID int64) (bool, error) {
	var count int
	err := s.db.QueryRow(
		`SELECT COUNT(*) FROM rewards WHERE name = ? AND id != ?`,
		name, excludeID,
	).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("check reward name exists: %w", err)
	}
	return count > 0, nil
}

// HasRedemptions reports whether any ledger entry references the reward.
func (s *RewardStore) HasRedemptions(id int64) (bool, error) {
	var count int
	err := s.db.QueryRow(
		`SELECT COUNT(*) FROM ledger_entries WHERE reward_id = ?`, id,
	).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("count redemptions: %w", err)
	}
	return count > 0, nil
}
