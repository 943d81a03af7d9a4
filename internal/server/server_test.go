package server

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TanguyBaudrin/familly-companion/internal/database"
)

type testClient struct {
	t   *testing.T
	url string
}

func newTestServer(t *testing.T, cfg Config) *testClient {
	t.Helper()
	db, err := database.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	srv := New(db, cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	ts := httptest.NewServer(srv.Router())
	t.Cleanup(ts.Close)
	t.Cleanup(srv.Hub().Shutdown)

	return &testClient{t: t, url: ts.URL}
}

// do sends body as JSON and decodes a JSON response into out when out is
// non-nil. It returns the status code.
func (c *testClient) do(method, path string, body, out any) int {
	c.t.Helper()
	var rd io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		require.NoError(c.t, err)
		rd = bytes.NewReader(buf)
	}
	req, err := http.NewRequest(method, c.url+path, rd)
	require.NoError(c.t, err)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(c.t, err)
	defer resp.Body.Close()

	if out != nil {
		require.NoError(c.t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

type member struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	TotalPoints int    `json:"total_points"`
	HasPIN      bool   `json:"has_pin"`
}

type errorBody struct {
	Error     string `json:"error"`
	Code      string `json:"code"`
	Available int    `json:"available"`
	Required  int    `json:"required"`
}

func (c *testClient) createMember(name string) member {
	c.t.Helper()
	var m member
	require.Equal(c.t, http.StatusCreated, c.do("POST", "/api/members", map[string]string{"name": name}, &m))
	return m
}

func (c *testClient) createTask(description string, pts int, assignedTo *int64) int64 {
	c.t.Helper()
	var task struct {
		ID int64 `json:"id"`
	}
	body := map[string]any{"description": description, "points": pts, "assigned_to": assignedTo}
	require.Equal(c.t, http.StatusCreated, c.do("POST", "/api/tasks", body, &task))
	return task.ID
}

func (c *testClient) createReward(name string, cost int) int64 {
	c.t.Helper()
	var reward struct {
		ID int64 `json:"id"`
	}
	body := map[string]any{"name": name, "cost": cost}
	require.Equal(c.t, http.StatusCreated, c.do("POST", "/api/rewards", body, &reward))
	return reward.ID
}

func (c *testClient) balance(id int64) int {
	c.t.Helper()
	var m member
	require.Equal(c.t, http.StatusOK, c.do("GET", fmt.Sprintf("/api/members/%d", id), nil, &m))
	return m.TotalPoints
}

func (c *testClient) setBalance(id int64, pts int) {
	c.t.Helper()
	require.Equal(c.t, http.StatusOK, c.do("PUT", fmt.Sprintf("/api/members/%d", id), map[string]int{"total_points": pts}, nil))
}

func TestHealth(t *testing.T) {
	c := newTestServer(t, Config{})

	var body map[string]string
	assert.Equal(t, http.StatusOK, c.do("GET", "/health", nil, &body))
	assert.Equal(t, "ok", body["status"])
}

func TestMemberCRUD(t *testing.T) {
	c := newTestServer(t, Config{})

	alice := c.createMember("Alice")
	assert.Equal(t, 0, alice.TotalPoints)
	assert.False(t, alice.HasPIN)

	var e errorBody
	assert.Equal(t, http.StatusConflict, c.do("POST", "/api/members", map[string]string{"name": "Alice"}, &e))
	assert.Equal(t, http.StatusBadRequest, c.do("POST", "/api/members", map[string]string{"name": "  "}, nil))

	var renamed member
	assert.Equal(t, http.StatusOK, c.do("PUT", fmt.Sprintf("/api/members/%d", alice.ID), map[string]string{"name": "Alicia"}, &renamed))
	assert.Equal(t, "Alicia", renamed.Name)

	var list []member
	assert.Equal(t, http.StatusOK, c.do("GET", "/api/members", nil, &list))
	require.Len(t, list, 1)

	assert.Equal(t, http.StatusNoContent, c.do("DELETE", fmt.Sprintf("/api/members/%d", alice.ID), nil, nil))
	assert.Equal(t, http.StatusNotFound, c.do("GET", fmt.Sprintf("/api/members/%d", alice.ID), nil, nil))
	assert.Equal(t, http.StatusBadRequest, c.do("GET", "/api/members/abc", nil, nil))
}

func TestBalanceAdjustmentIsRecorded(t *testing.T) {
	c := newTestServer(t, Config{})
	alice := c.createMember("Alice")

	c.setBalance(alice.ID, 40)
	c.setBalance(alice.ID, 25)
	assert.Equal(t, 25, c.balance(alice.ID))

	var history []struct {
		PointsChange int    `json:"points_change"`
		Reason       string `json:"reason"`
		Cause        string `json:"cause"`
	}
	require.Equal(t, http.StatusOK, c.do("GET", fmt.Sprintf("/api/members/%d/history", alice.ID), nil, &history))
	require.Len(t, history, 2)
	assert.Equal(t, -15, history[0].PointsChange)
	assert.Equal(t, "Balance set to 25", history[0].Reason)
	assert.Equal(t, "adjustment", history[0].Cause)
	assert.Equal(t, 40, history[1].PointsChange)

	assert.Equal(t, http.StatusBadRequest, c.do("PUT", fmt.Sprintf("/api/members/%d", alice.ID), map[string]int{"total_points": -1}, nil))
}

func TestRejectedMemberUpdateChangesNothing(t *testing.T) {
	c := newTestServer(t, Config{})
	alice := c.createMember("Alice")
	c.createMember("Bob")
	c.setBalance(alice.ID, 8)
	path := fmt.Sprintf("/api/members/%d", alice.ID)

	assert.Equal(t, http.StatusBadRequest, c.do("PUT", path, map[string]any{"name": "Alicia", "total_points": -1}, nil))
	assert.Equal(t, http.StatusConflict, c.do("PUT", path, map[string]any{"name": "Bob", "total_points": 30}, nil))

	var got member
	require.Equal(t, http.StatusOK, c.do("GET", path, nil, &got))
	assert.Equal(t, "Alice", got.Name)
	assert.Equal(t, 8, got.TotalPoints)

	var updated member
	require.Equal(t, http.StatusOK, c.do("PUT", path, map[string]any{"name": "Alicia", "total_points": 3}, &updated))
	assert.Equal(t, "Alicia", updated.Name)
	assert.Equal(t, 3, updated.TotalPoints)
}

func TestCompleteTaskSplitsPoints(t *testing.T) {
	c := newTestServer(t, Config{})
	a := c.createMember("A")
	b := c.createMember("B")
	d := c.createMember("C")
	taskID := c.createTask("Wash car", 10, nil)

	body := map[string]any{"allocations": []map[string]any{
		{"member_id": a.ID, "percentage": 33},
		{"member_id": b.ID, "percentage": 33},
		{"member_id": d.ID, "percentage": 34},
	}}
	var result struct {
		Task struct {
			Status string `json:"status"`
		} `json:"task"`
		Grants []struct {
			MemberID int64 `json:"member_id"`
			Points   int   `json:"points"`
		} `json:"grants"`
		Shortfall int `json:"shortfall"`
	}
	require.Equal(t, http.StatusOK, c.do("POST", fmt.Sprintf("/api/tasks/%d/complete", taskID), body, &result))
	assert.Equal(t, "completed", result.Task.Status)
	require.Len(t, result.Grants, 3)
	for _, g := range result.Grants {
		assert.Equal(t, 3, g.Points)
	}
	assert.Equal(t, 1, result.Shortfall)

	assert.Equal(t, 3, c.balance(a.ID))
	assert.Equal(t, 3, c.balance(b.ID))
	assert.Equal(t, 3, c.balance(d.ID))

	// A completed task cannot be completed again.
	assert.Equal(t, http.StatusNotFound, c.do("POST", fmt.Sprintf("/api/tasks/%d/complete", taskID), body, nil))
	// Nor edited.
	edit := map[string]any{"description": "Wash bike", "points": 5}
	assert.Equal(t, http.StatusConflict, c.do("PUT", fmt.Sprintf("/api/tasks/%d", taskID), edit, nil))
}

func TestCompleteTaskDefaultsToAssignee(t *testing.T) {
	c := newTestServer(t, Config{})
	alice := c.createMember("Alice")
	taskID := c.createTask("Dishes", 20, &alice.ID)

	assert.Equal(t, http.StatusOK, c.do("POST", fmt.Sprintf("/api/tasks/%d/complete", taskID), nil, nil))
	assert.Equal(t, 20, c.balance(alice.ID))

	var pending []map[string]any
	require.Equal(t, http.StatusOK, c.do("GET", "/api/tasks?status=pending", nil, &pending))
	assert.Empty(t, pending)

	var completed []map[string]any
	require.Equal(t, http.StatusOK, c.do("GET", fmt.Sprintf("/api/tasks?status=completed&assigned_to=%d", alice.ID), nil, &completed))
	assert.Len(t, completed, 1)
}

func TestCompleteTaskRejections(t *testing.T) {
	c := newTestServer(t, Config{})
	a := c.createMember("A")
	b := c.createMember("B")
	taskID := c.createTask("Garden", 10, nil)
	path := fmt.Sprintf("/api/tasks/%d/complete", taskID)

	over := map[string]any{"allocations": []map[string]any{
		{"member_id": a.ID, "percentage": 60},
		{"member_id": b.ID, "percentage": 50},
	}}
	var e errorBody
	assert.Equal(t, http.StatusBadRequest, c.do("POST", path, over, &e))
	assert.Contains(t, e.Error, "invalid allocation")

	ghost := map[string]any{"allocations": []map[string]any{{"member_id": 999, "percentage": 100}}}
	assert.Equal(t, http.StatusBadRequest, c.do("POST", path, ghost, nil))

	// Unassigned task without allocations has nobody to credit.
	assert.Equal(t, http.StatusBadRequest, c.do("POST", path, nil, nil))

	assert.Equal(t, http.StatusNotFound, c.do("POST", "/api/tasks/999/complete", nil, nil))
	assert.Equal(t, 0, c.balance(a.ID))
	assert.Equal(t, 0, c.balance(b.ID))
}

func TestTaskValidation(t *testing.T) {
	c := newTestServer(t, Config{})
	ghost := int64(42)

	tests := []struct {
		name string
		body map[string]any
	}{
		{"empty description", map[string]any{"description": " ", "points": 5}},
		{"zero points", map[string]any{"description": "x", "points": 0}},
		{"bad unit", map[string]any{"description": "x", "points": 5, "duration": map[string]any{"value": 2, "unit": "years"}}},
		{"bad value", map[string]any{"description": "x", "points": 5, "duration": map[string]any{"value": 0, "unit": "days"}}},
		{"unknown assignee", map[string]any{"description": "x", "points": 5, "assigned_to": ghost}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, http.StatusBadRequest, c.do("POST", "/api/tasks", tt.body, nil))
		})
	}

	var task struct {
		ExpiresAt *string `json:"expires_at"`
		Expired   bool    `json:"expired"`
	}
	body := map[string]any{"description": "Homework", "points": 5, "duration": map[string]any{"value": 1, "unit": "weeks"}}
	require.Equal(t, http.StatusCreated, c.do("POST", "/api/tasks", body, &task))
	assert.NotNil(t, task.ExpiresAt)
	assert.False(t, task.Expired)
}

func TestClaimReward(t *testing.T) {
	c := newTestServer(t, Config{})
	alice := c.createMember("Alice")
	rewardID := c.createReward("Movie night", 200)
	c.setBalance(alice.ID, 10)
	path := fmt.Sprintf("/api/members/%d/claim/%d", alice.ID, rewardID)

	var e errorBody
	require.Equal(t, http.StatusBadRequest, c.do("POST", path, nil, &e))
	assert.Equal(t, "insufficient_points", e.Code)
	assert.Equal(t, 10, e.Available)
	assert.Equal(t, 200, e.Required)
	assert.Equal(t, 10, c.balance(alice.ID))

	c.setBalance(alice.ID, 450)
	var change struct {
		Member member `json:"member"`
		Entry  struct {
			PointsChange int    `json:"points_change"`
			Reason       string `json:"reason"`
			Cause        string `json:"cause"`
			RewardID     *int64 `json:"reward_id"`
		} `json:"entry"`
	}
	require.Equal(t, http.StatusOK, c.do("POST", path, nil, &change))
	assert.Equal(t, 250, change.Member.TotalPoints)
	assert.Equal(t, -200, change.Entry.PointsChange)
	assert.Equal(t, "Reward 'Movie night' claimed", change.Entry.Reason)
	assert.Equal(t, "reward_redemption", change.Entry.Cause)
	require.NotNil(t, change.Entry.RewardID)
	assert.Equal(t, rewardID, *change.Entry.RewardID)

	require.Equal(t, http.StatusOK, c.do("POST", path, nil, nil))
	assert.Equal(t, 50, c.balance(alice.ID))

	// Claimed rewards are frozen.
	edit := map[string]any{"name": "Movie night", "cost": 100}
	assert.Equal(t, http.StatusConflict, c.do("PUT", fmt.Sprintf("/api/rewards/%d", rewardID), edit, nil))

	assert.Equal(t, http.StatusNotFound, c.do("POST", fmt.Sprintf("/api/members/%d/claim/999", alice.ID), nil, nil))
	assert.Equal(t, http.StatusNotFound, c.do("POST", fmt.Sprintf("/api/members/999/claim/%d", rewardID), nil, nil))
}

func TestClaimRequiresPIN(t *testing.T) {
	c := newTestServer(t, Config{})
	alice := c.createMember("Alice")
	rewardID := c.createReward("Ice cream", 5)
	c.setBalance(alice.ID, 20)
	path := fmt.Sprintf("/api/members/%d/claim/%d", alice.ID, rewardID)

	assert.Equal(t, http.StatusBadRequest, c.do("POST", fmt.Sprintf("/api/members/%d/pin", alice.ID), map[string]string{"pin": "12a4"}, nil))
	require.Equal(t, http.StatusOK, c.do("POST", fmt.Sprintf("/api/members/%d/pin", alice.ID), map[string]string{"pin": "1234"}, nil))

	assert.Equal(t, http.StatusForbidden, c.do("POST", path, nil, nil))
	assert.Equal(t, http.StatusForbidden, c.do("POST", path, map[string]string{"pin": "0000"}, nil))
	assert.Equal(t, 20, c.balance(alice.ID))

	assert.Equal(t, http.StatusOK, c.do("POST", path, map[string]string{"pin": "1234"}, nil))
	assert.Equal(t, 15, c.balance(alice.ID))

	require.Equal(t, http.StatusOK, c.do("DELETE", fmt.Sprintf("/api/members/%d/pin", alice.ID), nil, nil))
	assert.Equal(t, http.StatusOK, c.do("POST", path, nil, nil))
}

func TestClaimRateLimit(t *testing.T) {
	c := newTestServer(t, Config{ClaimRateLimit: 2})
	alice := c.createMember("Alice")
	bob := c.createMember("Bob")
	rewardID := c.createReward("Sticker", 1)

	path := fmt.Sprintf("/api/members/%d/claim/%d", alice.ID, rewardID)
	// Rejected claims count against the limit too.
	assert.Equal(t, http.StatusBadRequest, c.do("POST", path, nil, nil))
	assert.Equal(t, http.StatusBadRequest, c.do("POST", path, nil, nil))

	var e errorBody
	assert.Equal(t, http.StatusTooManyRequests, c.do("POST", path, nil, &e))
	assert.Equal(t, "too many requests", e.Error)

	// The limit is per member.
	assert.Equal(t, http.StatusBadRequest, c.do("POST", fmt.Sprintf("/api/members/%d/claim/%d", bob.ID, rewardID), nil, nil))
}

func TestRewardCRUD(t *testing.T) {
	c := newTestServer(t, Config{})
	id := c.createReward("Zoo trip", 300)
	c.createReward("Arcade", 100)

	assert.Equal(t, http.StatusConflict, c.do("POST", "/api/rewards", map[string]any{"name": "Arcade", "cost": 5}, nil))
	assert.Equal(t, http.StatusBadRequest, c.do("POST", "/api/rewards", map[string]any{"name": "Free", "cost": 0}, nil))

	var list []struct {
		Name string `json:"name"`
	}
	require.Equal(t, http.StatusOK, c.do("GET", "/api/rewards", nil, &list))
	require.Len(t, list, 2)
	assert.Equal(t, "Arcade", list[0].Name)

	var updated struct {
		Cost int `json:"cost"`
	}
	require.Equal(t, http.StatusOK, c.do("PUT", fmt.Sprintf("/api/rewards/%d", id), map[string]any{"name": "Zoo trip", "cost": 250}, &updated))
	assert.Equal(t, 250, updated.Cost)

	assert.Equal(t, http.StatusNoContent, c.do("DELETE", fmt.Sprintf("/api/rewards/%d", id), nil, nil))
	assert.Equal(t, http.StatusNotFound, c.do("GET", fmt.Sprintf("/api/rewards/%d", id), nil, nil))
}

func TestStatisticsAndLeaderboard(t *testing.T) {
	c := newTestServer(t, Config{})
	alice := c.createMember("Alice")
	bob := c.createMember("Bob")
	rewardID := c.createReward("Cinema", 5)

	c.createTask("Vacuum", 20, &alice.ID)
	taskID := c.createTask("Trash", 15, &bob.ID)
	require.Equal(t, http.StatusOK, c.do("POST", fmt.Sprintf("/api/tasks/%d/complete", taskID), nil, nil))
	require.Equal(t, http.StatusOK, c.do("POST", fmt.Sprintf("/api/members/%d/claim/%d", bob.ID, rewardID), nil, nil))

	var out struct {
		PointsByUser []struct {
			Name   string `json:"name"`
			Points int    `json:"points"`
		} `json:"points_by_user"`
		MostUsedRewards []struct {
			Name  string `json:"name"`
			Count int    `json:"count"`
		} `json:"most_used_rewards"`
	}
	require.Equal(t, http.StatusOK, c.do("GET", "/api/statistics?period=weekly", nil, &out))
	require.Len(t, out.PointsByUser, 1)
	assert.Equal(t, "Bob", out.PointsByUser[0].Name)
	assert.Equal(t, 15, out.PointsByUser[0].Points)
	require.Len(t, out.MostUsedRewards, 1)
	assert.Equal(t, 1, out.MostUsedRewards[0].Count)

	var e errorBody
	assert.Equal(t, http.StatusBadRequest, c.do("GET", "/api/statistics?period=yearly", nil, &e))

	var board []struct {
		Rank int    `json:"rank"`
		Name string `json:"name"`
	}
	require.Equal(t, http.StatusOK, c.do("GET", "/api/leaderboard", nil, &board))
	require.Len(t, board, 2)
	assert.Equal(t, "Bob", board[0].Name)
	assert.Equal(t, 1, board[0].Rank)

	var details struct {
		PendingTasks   []map[string]any `json:"pending_tasks"`
		ClaimedRewards []map[string]any `json:"claimed_rewards"`
	}
	require.Equal(t, http.StatusOK, c.do("GET", fmt.Sprintf("/api/members/%d/details", alice.ID), nil, &details))
	assert.Len(t, details.PendingTasks, 1)
	assert.Empty(t, details.ClaimedRewards)
}

func TestHistoryExport(t *testing.T) {
	c := newTestServer(t, Config{})
	alice := c.createMember("Alice")
	c.setBalance(alice.ID, 12)

	resp, err := http.Get(fmt.Sprintf("%s/api/members/%d/history.xlsx", c.url, alice.ID))
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Type"), "spreadsheetml")
	assert.Contains(t, resp.Header.Get("Content-Disposition"), "attachment")
}

func TestMetricsEndpoint(t *testing.T) {
	c := newTestServer(t, Config{})
	alice := c.createMember("Alice")
	taskID := c.createTask("Laundry", 5, &alice.ID)
	require.Equal(t, http.StatusOK, c.do("POST", fmt.Sprintf("/api/tasks/%d/complete", taskID), nil, nil))

	resp, err := http.Get(c.url + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	body := string(raw)
	assert.Contains(t, body, "companion_task_completions_total 1")
	assert.Contains(t, body, "companion_points_awarded_total 5")
	assert.True(t, strings.Contains(body, "companion_websocket_clients"))
}

func TestCORSPreflight(t *testing.T) {
	c := newTestServer(t, Config{CORSOrigins: []string{"https://family.example"}})

	req, err := http.NewRequest("OPTIONS", c.url+"/api/members", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "https://family.example")
	req.Header.Set("Access-Control-Request-Method", "POST")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, "https://family.example", resp.Header.Get("Access-Control-Allow-Origin"))
}

func TestEmptyMemberListIsArray(t *testing.T) {
	db, err := database.Open(":memory:")
	require.NoError(t, err)
	defer db.Close()

	srv := New(db, Config{}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	rec := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/api/members", nil)
	req.Header.Set("X-Request-Id", "abc-123")
	srv.Router().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, "[]", rec.Body.String())
}
