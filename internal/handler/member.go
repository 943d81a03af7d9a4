package handler

import (
	"bytes"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/TanguyBaudrin/familly-companion/internal/export"
	"github.com/TanguyBaudrin/familly-companion/internal/model"
	"github.com/TanguyBaudrin/familly-companion/internal/points"
	"github.com/TanguyBaudrin/familly-companion/internal/stats"
	"github.com/TanguyBaudrin/familly-companion/internal/store"
	"github.com/TanguyBaudrin/familly-companion/internal/websocket"
)

type MemberHandler struct {
	broadcaster
	store  *store.MemberStore
	engine *points.Engine
	stats  *stats.Service
	now    func() time.Time
	logger *slog.Logger
}

func NewMemberHandler(s *store.MemberStore, engine *points.Engine, statsSvc *stats.Service, hub *websocket.Hub, now func() time.Time, logger *slog.Logger) *MemberHandler {
	if now == nil {
		now = time.Now
	}
	return &MemberHandler{
		broadcaster: broadcaster{hub: hub},
		store:       s,
		engine:      engine,
		stats:       statsSvc,
		now:         now,
		logger:      logger,
	}
}

func (h *MemberHandler) List(w http.ResponseWriter, r *http.Request) {
	members, err := h.store.List()
	if err != nil {
		writeError(w, h.logger, err, "failed to list members")
		return
	}
	if members == nil {
		members = []model.Member{}
	}
	writeJSON(w, http.StatusOK, members)
}

func (h *MemberHandler) Leaderboard(w http.ResponseWriter, r *http.Request) {
	entries, err := h.store.Leaderboard()
	if err != nil {
		writeError(w, h.logger, err, "failed to build leaderboard")
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

// lookup parses the {id} parameter and loads the member, writing the error
// response itself when either step fails.
func (h *MemberHandler) lookup(w http.ResponseWriter, r *http.Request) (*model.Member, bool) {
	id, err := parseIDParam(r, "id")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid id"})
		return nil, false
	}
	member, err := h.store.GetByID(id)
	if err != nil {
		writeError(w, h.logger, err, "failed to get member")
		return nil, false
	}
	if member == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "member not found"})
		return nil, false
	}
	return member, true
}

func (h *MemberHandler) Get(w http.ResponseWriter, r *http.Request) {
	member, ok := h.lookup(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, member)
}

func (h *MemberHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name string `json:"name"`
	}
	if err := decodeJSON(r, &req, false); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON"})
		return
	}

	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "name is required"})
		return
	}

	exists, err := h.store.NameExists(req.Name, 0)
	if err != nil {
		writeError(w, h.logger, err, "failed to check name")
		return
	}
	if exists {
		writeJSON(w, http.StatusConflict, map[string]string{"error": "a member with that name already exists"})
		return
	}

	member, err := h.store.Create(req.Name)
	if err != nil {
		writeError(w, h.logger, err, "failed to create member")
		return
	}

	h.broadcast(websocket.NewMessage("member", "created", member.ID, nil))
	writeJSON(w, http.StatusCreated, member)
}

// Update renames a member and, when total_points is present, moves the
// balance to that value through a ledger adjustment. Both changes are
// validated first and applied together.
func (h *MemberHandler) Update(w http.ResponseWriter, r *http.Request) {
	existing, ok := h.lookup(w, r)
	if !ok {
		return
	}

	var req struct {
		Name        *string `json:"name"`
		TotalPoints *int    `json:"total_points"`
	}
	if err := decodeJSON(r, &req, false); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON"})
		return
	}

	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "name is required"})
			return
		}
		req.Name = &name
	}
	if req.TotalPoints != nil && *req.TotalPoints < 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "total_points must be >= 0"})
		return
	}

	change, err := h.engine.UpdateMember(r.Context(), existing.ID, points.MemberUpdate{
		Name:        req.Name,
		TotalPoints: req.TotalPoints,
	})
	if err != nil {
		writeError(w, h.logger, err, "failed to update member")
		return
	}

	h.broadcast(websocket.NewMessage("member", "updated", existing.ID, nil))
	writeJSON(w, http.StatusOK, change.Member)
}

func (h *MemberHandler) Delete(w http.ResponseWriter, r *http.Request) {
	member, ok := h.lookup(w, r)
	if !ok {
		return
	}

	if err := h.store.Delete(member.ID); err != nil {
		writeError(w, h.logger, err, "failed to delete member")
		return
	}

	h.broadcast(websocket.NewMessage("member", "deleted", member.ID, nil))
	w.WriteHeader(http.StatusNoContent)
}

func (h *MemberHandler) History(w http.ResponseWriter, r *http.Request) {
	member, ok := h.lookup(w, r)
	if !ok {
		return
	}
	entries, err := h.stats.History(member.ID)
	if err != nil {
		writeError(w, h.logger, err, "failed to load history")
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

func (h *MemberHandler) HistoryXLSX(w http.ResponseWriter, r *http.Request) {
	member, ok := h.lookup(w, r)
	if !ok {
		return
	}
	entries, err := h.stats.History(member.ID)
	if err != nil {
		writeError(w, h.logger, err, "failed to load history")
		return
	}

	var buf bytes.Buffer
	if err := export.WriteHistory(&buf, member, entries); err != nil {
		writeError(w, h.logger, err, "failed to export history")
		return
	}

	w.Header().Set("Content-Type", export.ContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", export.Filename(member, h.now())))
	w.WriteHeader(http.StatusOK)
	w.Write(buf.Bytes())
}

func (h *MemberHandler) Details(w http.ResponseWriter, r *http.Request) {
	member, ok := h.lookup(w, r)
	if !ok {
		return
	}
	period, err := stats.ParsePeriod(r.URL.Query().Get("period"))
	if err != nil {
		writeError(w, h.logger, err, "invalid period")
		return
	}
	details, err := h.stats.MemberDetails(member.ID, period)
	if err != nil {
		writeError(w, h.logger, err, "failed to load member details")
		return
	}
	writeJSON(w, http.StatusOK, details)
}

func (h *MemberHandler) SetPIN(w http.ResponseWriter, r *http.Request) {
	member, ok := h.lookup(w, r)
	if !ok {
		return
	}

	var req struct {
		PIN string `json:"pin"`
	}
	if err := decodeJSON(r, &req, false); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON"})
		return
	}

	if len(req.PIN) != 4 || !isDigits(req.PIN) {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "PIN must be exactly 4 digits"})
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.PIN), bcrypt.DefaultCost)
	if err != nil {
		writeError(w, h.logger, err, "failed to hash PIN")
		return
	}

	if err := h.store.SetPIN(member.ID, string(hash)); err != nil {
		writeError(w, h.logger, err, "failed to set PIN")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "pin set"})
}

func (h *MemberHandler) ClearPIN(w http.ResponseWriter, r *http.Request) {
	member, ok := h.lookup(w, r)
	if !ok {
		return
	}

	if err := h.store.ClearPIN(member.ID); err != nil {
		writeError(w, h.logger, err, "failed to clear PIN")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "pin cleared"})
}

func isDigits(s string) bool {
	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}
