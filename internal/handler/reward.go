package handler

import (
	"log/slog"
	"net/http"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"github.com/TanguyBaudrin/familly-companion/internal/model"
	"github.com/TanguyBaudrin/familly-companion/internal/points"
	"github.com/TanguyBaudrin/familly-companion/internal/store"
	"github.com/TanguyBaudrin/familly-companion/internal/websocket"
)

type RewardHandler struct {
	broadcaster
	rewardStore *store.RewardStore
	memberStore *store.MemberStore
	engine      *points.Engine
	logger      *slog.Logger
}

func NewRewardHandler(rs *store.RewardStore, ms *store.MemberStore, engine *points.Engine, hub *websocket.Hub, logger *slog.Logger) *RewardHandler {
	return &RewardHandler{
		broadcaster: broadcaster{hub: hub},
		rewardStore: rs,
		memberStore: ms,
		engine:      engine,
		logger:      logger,
	}
}

type rewardRequest struct {
	Name        string `json:"name"`
	Cost        int    `json:"cost"`
	Description string `json:"description"`
}

func (h *RewardHandler) validate(w http.ResponseWriter, req *rewardRequest, id int64) bool {
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "name is required"})
		return false
	}
	if req.Cost <= 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "cost must be > 0"})
		return false
	}
	exists, err := h.rewardStore.NameExists(req.Name, id)
	if err != nil {
		writeError(w, h.logger, err, "failed to check name")
		return false
	}
	if exists {
		writeJSON(w, http.StatusConflict, map[string]string{"error": "a reward with that name already exists"})
		return false
	}
	return true
}

func (h *RewardHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req rewardRequest
	if err := decodeJSON(r, &req, false); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON"})
		return
	}
	if !h.validate(w, &req, 0) {
		return
	}

	reward, err := h.rewardStore.Create(req.Name, req.Cost, req.Description)
	if err != nil {
		writeError(w, h.logger, err, "failed to create reward")
		return
	}

	h.broadcast(websocket.NewMessage("reward", "created", reward.ID, nil))
	writeJSON(w, http.StatusCreated, reward)
}

func (h *RewardHandler) List(w http.ResponseWriter, r *http.Request) {
	rewards, err := h.rewardStore.List()
	if err != nil {
		writeError(w, h.logger, err, "failed to list rewards")
		return
	}
	if rewards == nil {
		rewards = []model.Reward{}
	}
	writeJSON(w, http.StatusOK, rewards)
}

func (h *RewardHandler) lookup(w http.ResponseWriter, r *http.Request, param string) (*model.Reward, bool) {
	id, err := parseIDParam(r, param)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid id"})
		return nil, false
	}
	reward, err := h.rewardStore.GetByID(id)
	if err != nil {
		writeError(w, h.logger, err, "failed to get reward")
		return nil, false
	}
	if reward == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "reward not found"})
		return nil, false
	}
	return reward, true
}

func (h *RewardHandler) Get(w http.ResponseWriter, r *http.Request) {
	reward, ok := h.lookup(w, r, "id")
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, reward)
}

// Update edits a reward that has never been claimed. Once a ledger entry
// references it the reward is frozen so history keeps its meaning.
func (h *RewardHandler) Update(w http.ResponseWriter, r *http.Request) {
	existing, ok := h.lookup(w, r, "id")
	if !ok {
		return
	}

	var req rewardRequest
	if err := decodeJSON(r, &req, false); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON"})
		return
	}
	if !h.validate(w, &req, existing.ID) {
		return
	}

	claimed, err := h.rewardStore.HasRedemptions(existing.ID)
	if err != nil {
		writeError(w, h.logger, err, "failed to check redemptions")
		return
	}
	if claimed {
		writeJSON(w, http.StatusConflict, map[string]string{"error": "reward has already been claimed and cannot be edited"})
		return
	}

	reward, err := h.rewardStore.Update(existing.ID, req.Name, req.Cost, req.Description)
	if err != nil {
		writeError(w, h.logger, err, "failed to update reward")
		return
	}

	h.broadcast(websocket.NewMessage("reward", "updated", reward.ID, nil))
	writeJSON(w, http.StatusOK, reward)
}

func (h *RewardHandler) Delete(w http.ResponseWriter, r *http.Request) {
	reward, ok := h.lookup(w, r, "id")
	if !ok {
		return
	}

	if err := h.rewardStore.Delete(reward.ID); err != nil {
		writeError(w, h.logger, err, "failed to delete reward")
		return
	}

	h.broadcast(websocket.NewMessage("reward", "deleted", reward.ID, nil))
	w.WriteHeader(http.StatusNoContent)
}

// Claim redeems {reward_id} for member {id}. Members with a PIN must send
// it in the body.
func (h *RewardHandler) Claim(w http.ResponseWriter, r *http.Request) {
	memberID, err := parseIDParam(r, "id")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid member id"})
		return
	}
	rewardID, err := parseIDParam(r, "reward_id")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid reward id"})
		return
	}

	var req struct {
		PIN string `json:"pin"`
	}
	if err := decodeJSON(r, &req, true); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON"})
		return
	}

	member, err := h.memberStore.GetByID(memberID)
	if err != nil {
		writeError(w, h.logger, err, "failed to get member")
		return
	}
	if member == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "member not found"})
		return
	}
	if member.HasPIN {
		hash, err := h.memberStore.GetPINHash(memberID)
		if err != nil {
			writeError(w, h.logger, err, "failed to get PIN")
			return
		}
		if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(req.PIN)); err != nil {
			writeJSON(w, http.StatusForbidden, map[string]string{"error": "incorrect PIN"})
			return
		}
	}

	change, err := h.engine.ClaimReward(r.Context(), memberID, rewardID)
	if err != nil {
		writeError(w, h.logger, err, "failed to claim reward")
		return
	}

	h.broadcast(websocket.NewMessage("reward", "claimed", rewardID, map[string]any{"member_id": memberID}))
	h.broadcast(websocket.NewMessage("member", "points", memberID, map[string]any{"points": change.Entry.PointsChange}))
	writeJSON(w, http.StatusOK, change)
}
