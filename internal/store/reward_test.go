package store

import (
	"testing"
	"time"

	"github.com/TanguyBaudrin/familly-companion/internal/model"
)

func TestRewardCRUD(t *testing.T) {
	rs := NewRewardStore(setupTestDB(t))

	reward, err := rs.Create("Ice Cream Trip", 50, "Go get ice cream!")
	if err != nil {
		t.Fatalf("create reward: %v", err)
	}
	if reward.Name != "Ice Cream Trip" {
		t.Errorf("name = %q, want %q", reward.Name, "Ice Cream Trip")
	}
	if reward.Cost != 50 {
		t.Errorf("cost = %d, want 50", reward.Cost)
	}

	updated, err := rs.Update(reward.ID, "Movie Night", 100, "Watch a movie")
	if err != nil {
		t.Fatalf("update reward: %v", err)
	}
	if updated.Name != "Movie Night" || updated.Cost != 100 {
		t.Errorf("updated = %+v", updated)
	}

	if err := rs.Delete(reward.ID); err != nil {
		t.Fatalf("delete reward: %v", err)
	}
	got, err := rs.GetByID(reward.ID)
	if err != nil {
		t.Fatalf("get deleted reward: %v", err)
	}
	if got != nil {
		t.Error("expected nil after delete")
	}
}

func TestRewardListOrderedByName(t *testing.T) {
	rs := NewRewardStore(setupTestDB(t))
	rs.Create("Zoo", 10, "")
	rs.Create("Arcade", 10, "")

	rewards, err := rs.List()
	if err != nil {
		t.Fatalf("list rewards: %v", err)
	}
	if len(rewards) != 2 || rewards[0].Name != "Arcade" {
		t.Errorf("rewards = %+v, want Arcade first", rewards)
	}
}

func TestRewardCostMustBePositive(t *testing.T) {
	rs := NewRewardStore(setupTestDB(t))
	if _, err := rs.Create("Free", 0, ""); err == nil {
		t.Error("expected error for zero cost")
	}
}

func TestRewardHasRedemptions(t *testing.T) {
	db := setupTestDB(t)
	rs, ms, ls := NewRewardStore(db), NewMemberStore(db), NewLedgerStore(db)
	m, _ := ms.Create("Alice")
	r, _ := rs.Create("Movie", 20, "")

	has, err := rs.HasRedemptions(r.ID)
	if err != nil {
		t.Fatalf("has redemptions: %v", err)
	}
	if has {
		t.Error("new reward should have no redemptions")
	}

	if _, err := ls.Append(m.ID, -20, "Reward 'Movie' claimed", model.RewardRedemption{RewardID: &r.ID}, time.Now()); err != nil {
		t.Fatalf("append: %v", err)
	}

	has, _ = rs.HasRedemptions(r.ID)
	if !has {
		t.Error("expected redemption to be found")
	}
}
