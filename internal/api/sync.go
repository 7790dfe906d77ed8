package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/star-achiever/star/internal/domain"
	"github.com/star-achiever/star/internal/infra/observability"
	"github.com/star-achiever/star/internal/syncproto"
)

// maxSaveBody bounds a POST body. A full activity restore is the largest.
const maxSaveBody = 8 << 20

// ─── Sync Endpoint ──────────────────────────────────────────────────────────
//
// GET  /api/sync?familyId=&scope=&date=&month=&startDate=&endDate=
// POST /api/sync?familyId=   {"scope": "...", "data": {...}}

func (s *Server) handleLoad(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	scope := r.URL.Query().Get("scope")
	status := http.StatusOK
	defer func() { observability.ObserveSync(r.Method, scopeLabel(scope), status, time.Since(start)) }()

	familyID, q, err := syncproto.ParseLoadQuery(r.URL.Query())
	if err != nil {
		status = statusFor(err)
		writeError(w, status, err.Error())
		return
	}

	snap, err := s.store.Load(r.Context(), familyID, q)
	switch {
	case errors.Is(err, domain.ErrFamilyNotFound):
		writeJSON(w, status, syncproto.LoadResponse{Data: nil})
	case err != nil:
		status = http.StatusInternalServerError
		s.log.Error("load failed", "family", familyID, "scope", q.Scope, "error", err)
		writeError(w, status, err.Error())
	default:
		writeJSON(w, status, syncproto.LoadResponse{Data: snap})
	}
}

func (s *Server) handleSave(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	status := http.StatusOK
	var req syncproto.SaveRequest
	defer func() { observability.ObserveSync(r.Method, scopeLabel(string(req.Scope)), status, time.Since(start)) }()

	fail := func(err error) {
		status = statusFor(err)
		writeError(w, status, err.Error())
	}

	familyID := r.URL.Query().Get("familyId")
	if familyID == "" {
		fail(domain.ErrMissingFamilyID)
		return
	}
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxSaveBody)).Decode(&req); err != nil {
		fail(fmt.Errorf("%w: %v", domain.ErrBadPayload, err))
		return
	}
	scope, err := syncproto.ParseScope(string(req.Scope))
	if err != nil {
		fail(err)
		return
	}
	payload, err := syncproto.DecodePayload(scope, req.Data)
	if err != nil {
		fail(err)
		return
	}

	res, err := s.store.Save(r.Context(), familyID, scope, payload)
	if err != nil {
		status = statusFor(err)
		s.log.Error("save failed", "family", familyID, "scope", scope, "error", err)
		writeError(w, status, err.Error())
		return
	}
	if res != nil && res.Balance != nil {
		ev := BalanceEvent{Type: "balance", FamilyID: familyID, Balance: *res.Balance}
		if res.LifetimeEarnings != nil {
			ev.LifetimeEarnings = *res.LifetimeEarnings
		}
		s.hub.Publish(ev)
	}
	s.log.Debug("saved", "family", familyID, "scope", scope)
	writeJSON(w, status, syncproto.SaveResponse{Success: true, Data: res})
}

// scopeLabel keeps metric cardinality bounded to known scope names.
func scopeLabel(raw string) string {
	if raw == "" {
		return string(syncproto.ScopeAll)
	}
	if _, err := syncproto.ParseScope(raw); err != nil {
		return "invalid"
	}
	return raw
}

// ─── Families ───────────────────────────────────────────────────────────────

type createFamilyRequest struct {
	FamilyID string `json:"familyId"`
	UserName string `json:"userName"`
}

// handleCreateFamily seeds a new family from the catalog.
// POST /api/families {"familyId"?: "...", "userName": "..."}
func (s *Server) handleCreateFamily(w http.ResponseWriter, r *http.Request) {
	var req createFamilyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	req.UserName = strings.TrimSpace(req.UserName)
	if req.UserName == "" {
		writeError(w, http.StatusBadRequest, "userName is required")
		return
	}
	if req.FamilyID == "" {
		req.FamilyID = uuid.NewString()
	}

	if err := s.store.CreateFamily(r.Context(), req.FamilyID, req.UserName, s.cat); err != nil {
		status := statusFor(err)
		if status == http.StatusInternalServerError {
			s.log.Error("create family failed", "family", req.FamilyID, "error", err)
		}
		writeError(w, status, err.Error())
		return
	}
	observability.FamiliesCreated.Inc()
	s.log.Info("family created", "family", req.FamilyID)
	writeJSON(w, http.StatusCreated, map[string]string{"familyId": req.FamilyID})
}

// ─── Achievements ───────────────────────────────────────────────────────────

type achievementResponse struct {
	domain.Achievement
	Unlocked bool `json:"unlocked"`
}

// handleAchievements lists every rule with the family's unlock flag.
// GET /api/achievements?familyId=
func (s *Server) handleAchievements(w http.ResponseWriter, r *http.Request) {
	familyID := r.URL.Query().Get("familyId")
	if familyID == "" {
		writeError(w, http.StatusBadRequest, domain.ErrMissingFamilyID.Error())
		return
	}
	snap, err := s.store.Load(r.Context(), familyID, syncproto.LoadQuery{Scope: syncproto.ScopeAvatar})
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}

	unlocked := make(map[string]bool, len(snap.UnlockedAchievements))
	for _, id := range snap.UnlockedAchievements {
		unlocked[id] = true
	}
	out := make([]achievementResponse, 0, len(s.cat.Achievements))
	n := 0
	for _, a := range s.cat.Achievements {
		if unlocked[a.ID] {
			n++
		}
		out = append(out, achievementResponse{Achievement: a, Unlocked: unlocked[a.ID]})
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"achievements": out,
		"unlocked":     n,
		"total":        len(out),
	})
}
