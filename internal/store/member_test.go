package store

import (
	"database/sql"
	"testing"

	"github.com/TanguyBaudrin/familly-companion/internal/database"
)

func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestMemberCRUD(t *testing.T) {
	ms := NewMemberStore(setupTestDB(t))

	member, err := ms.Create("Alice")
	if err != nil {
		t.Fatalf("create member: %v", err)
	}
	if member.Name != "Alice" {
		t.Errorf("name = %q, want %q", member.Name, "Alice")
	}
	if member.TotalPoints != 0 {
		t.Errorf("total_points = %d, want 0", member.TotalPoints)
	}
	if member.HasPIN {
		t.Error("new member should not have a pin")
	}

	updated, err := ms.UpdateName(member.ID, "Alicia")
	if err != nil {
		t.Fatalf("update member: %v", err)
	}
	if updated.Name != "Alicia" {
		t.Errorf("name = %q, want %q", updated.Name, "Alicia")
	}

	if err := ms.Delete(member.ID); err != nil {
		t.Fatalf("delete member: %v", err)
	}
	got, err := ms.GetByID(member.ID)
	if err != nil {
		t.Fatalf("get deleted member: %v", err)
	}
	if got != nil {
		t.Error("expected nil after delete")
	}
}

func TestMemberGetByIDNotFound(t *testing.T) {
	ms := NewMemberStore(setupTestDB(t))

	got, err := ms.GetByID(9999)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != nil {
		t.Errorf("expected nil, got %+v", got)
	}
}

func TestMemberNameUnique(t *testing.T) {
	ms := NewMemberStore(setupTestDB(t))

	alice, _ := ms.Create("Alice")
	if _, err := ms.Create("Alice"); err == nil {
		t.Error("expected error for duplicate name")
	}

	exists, err := ms.NameExists("Alice", 0)
	if err != nil {
		t.Fatalf("name exists: %v", err)
	}
	if !exists {
		t.Error("expected Alice to exist")
	}

	exists, _ = ms.NameExists("Alice", alice.ID)
	if exists {
		t.Error("name should not conflict with its own member")
	}
}

func TestMemberAddPointsGuard(t *testing.T) {
	ms := NewMemberStore(setupTestDB(t))
	m, _ := ms.Create("Bob")

	ok, err := ms.AddPoints(m.ID, 30)
	if err != nil || !ok {
		t.Fatalf("add points: ok=%v err=%v", ok, err)
	}

	ok, err = ms.AddPoints(m.ID, -31)
	if err != nil {
		t.Fatalf("add points: %v", err)
	}
	if ok {
		t.Error("debit below zero should be rejected")
	}

	ok, _ = ms.AddPoints(m.ID, -30)
	if !ok {
		t.Error("debit to exactly zero should succeed")
	}

	got, _ := ms.GetByID(m.ID)
	if got.TotalPoints != 0 {
		t.Errorf("total_points = %d, want 0", got.TotalPoints)
	}

	ok, _ = ms.AddPoints(9999, 5)
	if ok {
		t.Error("unknown member should not be updated")
	}
}

func TestMemberListOrderAndLeaderboard(t *testing.T) {
	ms := NewMemberStore(setupTestDB(t))

	a, _ := ms.Create("Alice")
	b, _ := ms.Create("Bob")
	c, _ := ms.Create("Carol")
	ms.AddPoints(a.ID, 10)
	ms.AddPoints(b.ID, 20)
	ms.AddPoints(c.ID, 10)

	members, err := ms.List()
	if err != nil {
		t.Fatalf("list members: %v", err)
	}
	want := []int64{b.ID, a.ID, c.ID}
	for i, id := range want {
		if members[i].ID != id {
			t.Errorf("members[%d].ID = %d, want %d", i, members[i].ID, id)
		}
	}

	board, err := ms.Leaderboard()
	if err != nil {
		t.Fatalf("leaderboard: %v", err)
	}
	wantRanks := []int{1, 2, 2}
	for i, r := range wantRanks {
		if board[i].Rank != r {
			t.Errorf("board[%d].Rank = %d, want %d", i, board[i].Rank, r)
		}
	}
}

func TestMemberPIN(t *testing.T) {
	ms := NewMemberStore(setupTestDB(t))
	m, _ := ms.Create("Dana")

	hash, err := ms.GetPINHash(m.ID)
	if err != nil {
		t.Fatalf("get pin hash: %v", err)
	}
	if hash != "" {
		t.Errorf("hash = %q, want empty", hash)
	}

	if err := ms.SetPIN(m.ID, "hashed"); err != nil {
		t.Fatalf("set pin: %v", err)
	}
	got, _ := ms.GetByID(m.ID)
	if !got.HasPIN {
		t.Error("expected has_pin after SetPIN")
	}
	hash, _ = ms.GetPINHash(m.ID)
	if hash != "hashed" {
		t.Errorf("hash = %q, want %q", hash, "hashed")
	}

	if err := ms.ClearPIN(m.ID); err != nil {
		t.Fatalf("clear pin: %v", err)
	}
	got, _ = ms.GetByID(m.ID)
	if got.HasPIN {
		t.Error("expected no pin after ClearPIN")
	}

	if _, err := ms.GetPINHash(9999); err == nil {
		t.Error("expected error for unknown member")
	}
}
