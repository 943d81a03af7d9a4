package store

import (
	"database/sql"
	"fmt"

	"github.com/TanguyBaudrin/familly-companion/internal/model"
)

type MemberStore struct {
	db Querier
}

func NewMemberStore(db Querier) *MemberStore {
	return &MemberStore{db: db}
}

// WithTx returns a MemberStore bound to tx.
func (s *MemberStore) WithTx(tx *sql.Tx) *MemberStore {
	return &MemberStore{db: tx}
}

const memberCols = `id, name, total_points, pin IS NOT NULL, created_at, updated_at`

func scanMember(sc scanner) (*model.Member, error) {
	var m model.Member
	if err := sc.Scan(&m.ID, &m.Name, &m.TotalPoints, &m.HasPIN, &m.CreatedAt, &m.UpdatedAt); err != nil {
		return nil, err
	}
	return &m, nil
}

func (s *MemberStore) Create(name string) (*model.Member, error) {
	result, err := s.db.Exec(`INSERT INTO members (name) VALUES (?)`, name)
	if err != nil {
		return nil, fmt.Errorf("insert member: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetByID(id)
}

func (s *MemberStore) GetByID(id int64) (*model.Member, error) {
	row := s.db.QueryRow(`SELECT `+memberCols+` FROM members WHERE id = ?`, id)
	m, err := scanMember(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get member: %w", err)
	}
	return m, nil
}

// List returns all members, highest balance first, then by creation order.
func (s *MemberStore) List() ([]model.Member, error) {
	rows, err := s.db.Query(`SELECT ` + memberCols + ` FROM members ORDER BY total_points DESC, id ASC`)
	if err != nil {
		return nil, fmt.Errorf("list members: %w", err)
	}
	defer rows.Close()

	var members []model.Member
	for rows.Next() {
		m, err := scanMember(rows)
		if err != nil {
			return nil, fmt.Errorf("scan member: %w", err)
		}
		members = append(members, *m)
	}
	return members, rows.Err()
}

// Leaderboard ranks members by balance. Tied members share a rank and the
// next rank is skipped (1, 1, 3).
func (s *MemberStore) Leaderboard() ([]model.LeaderboardEntry, error) {
	members, err := s.List()
	if err != nil {
		return nil, err
	}

	entries := make([]model.LeaderboardEntry, 0, len(members))
	for i, m := range members {
		rank := i + 1
		if i > 0 && m.TotalPoints == members[i-1].TotalPoints {
			rank = entries[i-1].Rank
		}
		entries = append(entries, model.LeaderboardEntry{
			Rank:        rank,
			MemberID:    m.ID,
			Name:        m.Name,
			TotalPoints: m.TotalPoints,
		})
	}
	return entries, nil
}

func (s *MemberStore) UpdateName(id int64, name string) (*model.Member, error) {
	_, err := s.db.Exec(`UPDATE members SET name = ? WHERE id = ?`, name, id)
	if err != nil {
		return nil, fmt.Errorf("update member: %w", err)
	}
	return s.GetByID(id)
}

func (s *MemberStore) Delete(id int64) error {
	_, err := s.db.Exec(`DELETE FROM members WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete member: %w", err)
	}
	return nil
}

func (s *MemberStore) NameExists(name string, excludeID int64) (bool, error) {
	var count int
	err := s.db.QueryRow(
		`SELECT COUNT(*) FROM members WHERE name = ? AND id != ?`,
		name, excludeID,
	).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("check name exists: %w", err)
	}
	return count > 0, nil
}

// AddPoints applies delta to the member's balance as long as the result
// stays non-negative. It reports false when the guard rejected the change or
// the member does not exist.
func (s *MemberStore) AddPoints(id int64, delta int) (bool, error) {
	result, err := s.db.Exec(
		`UPDATE members SET total_points = total_points + ? WHERE id = ? AND total_points + ? >= 0`,
		delta, id, delta,
	)
	if err != nil {
		return false, fmt.Errorf("add points: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n == 1, nil
}

// --- PIN methods ---

func (s *MemberStore) SetPIN(id int64, hashedPIN string) error {
	_, err := s.db.Exec(`UPDATE members SET pin = ? WHERE id = ?`, hashedPIN, id)
	if err != nil {
		return fmt.Errorf("set pin: %w", err)
	}
	return nil
}

func (s *MemberStore) ClearPIN(id int64) error {
	_, err := s.db.Exec(`UPDATE members SET pin = NULL WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("clear pin: %w", err)
	}
	return nil
}

// GetPINHash returns the stored bcrypt hash, or "" when no PIN is set.
func (s *MemberStore) GetPINHash(id int64) (string, error) {
	var pin sql.NullString
	err := s.db.QueryRow(`SELECT pin FROM members WHERE id = ?`, id).Scan(&pin)
	if err == sql.ErrNoRows {
		return "", fmt.Errorf("member %d not found", id)
	}
	if err != nil {
		return "", fmt.Errorf("query pin: %w", err)
	}
	return pin.String, nil
}
