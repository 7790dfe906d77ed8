package api

import (
	"encoding/json"
	"net/http"
	"sync"

	"github.com/star-achiever/star/internal/domain"
	"github.com/star-achiever/star/internal/infra/observability"
)

// ─── Live Family Events ─────────────────────────────────────────────────────
// After every granular write the server pushes the authoritative totals to
// every open stream of that family, so a second device can refresh.
//
// GET /api/events?familyId=   (Server-Sent Events)

// BalanceEvent carries the totals after a granular write.
type BalanceEvent struct {
	Type             string `json:"type"` // "balance"
	FamilyID         string `json:"familyId"`
	Balance          int64  `json:"balance"`
	LifetimeEarnings int64  `json:"lifetimeEarnings"`
}

// FamilyHub fans events out to per-family subscribers.
type FamilyHub struct {
	mu      sync.Mutex
	clients map[string]map[chan []byte]struct{}
}

// NewFamilyHub creates an empty hub.
func NewFamilyHub() *FamilyHub {
	return &FamilyHub{clients: make(map[string]map[chan []byte]struct{})}
}

// Publish sends ev to every subscriber of ev.FamilyID. Slow subscribers miss
// the event.
func (h *FamilyHub) Publish(ev BalanceEvent) {
	data, err := json.Marshal(ev)
	if err != nil {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.clients[ev.FamilyID] {
		select {
		case ch <- data:
		default:
			observability.EventsDropped.Inc()
		}
	}
}

// Subscribe registers a stream for familyID. The returned func unsubscribes
// and closes the channel.
func (h *FamilyHub) Subscribe(familyID string) (<-chan []byte, func()) {
	ch := make(chan []byte, 32)
	h.mu.Lock()
	if h.clients[familyID] == nil {
		h.clients[familyID] = make(map[chan []byte]struct{})
	}
	h.clients[familyID][ch] = struct{}{}
	h.mu.Unlock()
	observability.EventSubscribers.Inc()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.clients[familyID], ch)
			if len(h.clients[familyID]) == 0 {
				delete(h.clients, familyID)
			}
			close(ch)
			h.mu.Unlock()
			observability.EventSubscribers.Dec()
		})
	}
}

// ClientCount returns the number of open streams across all families.
func (h *FamilyHub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	n := 0
	for _, subs := range h.clients {
		n += len(subs)
	}
	return n
}

// HandleEvents streams a family's balance events.
func (h *FamilyHub) HandleEvents(w http.ResponseWriter, r *http.Request) {
	familyID := r.URL.Query().Get("familyId")
	if familyID == "" {
		writeError(w, http.StatusBadRequest, domain.ErrMissingFamilyID.Error())
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	flusher.Flush()

	ch, unsub := h.Subscribe(familyID)
	defer unsub()

	for {
		select {
		case <-r.Context().Done():
			return
		case data := <-ch:
			w.Write([]byte("data: "))
			w.Write(data)
			w.Write([]byte("\n\n"))
			flusher.Flush()
		}
	}
}
