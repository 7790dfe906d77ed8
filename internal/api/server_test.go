package api

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/star-achiever/star/internal/catalog"
	"github.com/star-achiever/star/internal/infra/sqlite"
	"github.com/star-achiever/star/internal/syncproto"
)

// ─── Setup ──────────────────────────────────────────────────────────────────

func setupServer(t *testing.T) (*Server, http.Handler) {
	t.Helper()
	db, err := sqlite.Open(t.TempDir())
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	s := NewServer(db, catalog.Default(), nil)
	s.EnableMetrics()
	return s, s.Handler()
}

func do(t *testing.T, h http.Handler, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, rd)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.Unmarshal(w.Body.Bytes(), v); err != nil {
		t.Fatalf("decode %q: %v", w.Body.String(), err)
	}
}

func errorMessage(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var env struct {
		Error struct {
			Message string `json:"message"`
			Type    string `json:"type"`
		} `json:"error"`
	}
	decodeBody(t, w, &env)
	if env.Error.Type != "error" {
		t.Errorf("error envelope type = %q, want error", env.Error.Type)
	}
	return env.Error.Message
}

// ─── Basic Routes ───────────────────────────────────────────────────────────

func TestHealth(t *testing.T) {
	_, h := setupServer(t)
	w := do(t, h, http.MethodGet, "/health", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), `"ok"`) {
		t.Errorf("body = %s", w.Body.String())
	}
}

func TestVersionAndMetrics(t *testing.T) {
	_, h := setupServer(t)
	if w := do(t, h, http.MethodGet, "/api/version", ""); !strings.Contains(w.Body.String(), Version) {
		t.Errorf("version body = %s", w.Body.String())
	}
	do(t, h, http.MethodGet, "/api/sync?familyId=nobody", "")
	w := do(t, h, http.MethodGet, "/metrics", "")
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "star_sync_requests_total") {
		t.Errorf("metrics missing sync counter: %d", w.Code)
	}
}

func TestCORSPreflight(t *testing.T) {
	_, h := setupServer(t)
	w := do(t, h, http.MethodOptions, "/api/sync", "")
	if w.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", w.Code)
	}
	if w.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Error("missing CORS header")
	}
}

// ─── Load ───────────────────────────────────────────────────────────────────

func TestLoad_Errors(t *testing.T) {
	_, h := setupServer(t)
	tests := []struct {
		name   string
		target string
		want   int
	}{
		{"missing family", "/api/sync", http.StatusBadRequest},
		{"unknown scope", "/api/sync?familyId=f&scope=bogus", http.StatusBadRequest},
		{"write-only scope", "/api/sync?familyId=f&scope=record_log", http.StatusBadRequest},
		{"bad date", "/api/sync?familyId=f&date=yesterday", http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(t, h, http.MethodGet, tt.target, "")
			if w.Code != tt.want {
				t.Fatalf("expected %d, got %d", tt.want, w.Code)
			}
			if msg := errorMessage(t, w); msg == "" {
				t.Error("empty error message")
			}
		})
	}
}

func TestLoad_UnknownFamilyIsNull(t *testing.T) {
	_, h := setupServer(t)
	w := do(t, h, http.MethodGet, "/?familyId=nobody", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if strings.TrimSpace(w.Body.String()) != `{"data":null}` {
		t.Errorf("body = %s, want null data", w.Body.String())
	}
}

// ─── Families ───────────────────────────────────────────────────────────────

func TestCreateFamily(t *testing.T) {
	_, h := setupServer(t)

	w := do(t, h, http.MethodPost, "/api/families", `{"familyId":"fam","userName":"Mia"}`)
	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", w.Code, w.Body.String())
	}

	w = do(t, h, http.MethodPost, "/api/families", `{"familyId":"fam","userName":"Leo"}`)
	if w.Code != http.StatusConflict {
		t.Errorf("duplicate: expected 409, got %d", w.Code)
	}

	w = do(t, h, http.MethodPost, "/api/families", `{"userName":"  "}`)
	if w.Code != http.StatusBadRequest {
		t.Errorf("blank name: expected 400, got %d", w.Code)
	}

	w = do(t, h, http.MethodPost, "/api/families", `{"userName":"Ava"}`)
	var created map[string]string
	decodeBody(t, w, &created)
	if created["familyId"] == "" {
		t.Error("generated familyId missing")
	}

	w = do(t, h, http.MethodGet, "/api/sync?familyId=fam&scope=tasks", "")
	var resp syncproto.LoadResponse
	decodeBody(t, w, &resp)
	if resp.Data == nil || len(resp.Data.Tasks) != len(catalog.Default().Tasks) {
		t.Fatalf("seeded family load = %+v", resp.Data)
	}
	if *resp.Data.UserName != "Mia" {
		t.Errorf("userName = %q, want Mia", *resp.Data.UserName)
	}

	w = do(t, h, http.MethodGet, "/api/status", "")
	var status map[string]any
	decodeBody(t, w, &status)
	if status["families"] != float64(2) {
		t.Errorf("families = %v, want 2", status["families"])
	}
}

// ─── Save ───────────────────────────────────────────────────────────────────

const recordLogBody = `{"scope":"record_log","data":{
	"dateKey":"2024-05-03","taskId":"t1","action":"add",
	"transaction":{"id":"x1","date":"2024-05-03T11:00:00.000Z","description":"完成: 刷牙",
		"amount":5,"type":"EARN","kind":"task","taskId":"t1","dateKey":"2024-05-03","isRevoked":false}}}`

func TestSave_RecordLogPublishes(t *testing.T) {
	s, h := setupServer(t)
	events, unsub := s.Hub().Subscribe("fam")
	defer unsub()
	other, unsubOther := s.Hub().Subscribe("other")
	defer unsubOther()

	w := do(t, h, http.MethodPost, "/api/sync?familyId=fam", recordLogBody)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var resp syncproto.SaveResponse
	decodeBody(t, w, &resp)
	if !resp.Success || resp.Data == nil || *resp.Data.Balance != 5 || *resp.Data.LifetimeEarnings != 5 {
		t.Fatalf("response = %+v", resp)
	}

	select {
	case data := <-events:
		var ev BalanceEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			t.Fatal(err)
		}
		if ev.Type != "balance" || ev.Balance != 5 || ev.FamilyID != "fam" {
			t.Errorf("event = %+v", ev)
		}
	case <-time.After(time.Second):
		t.Fatal("no balance event")
	}
	select {
	case <-other:
		t.Error("event leaked to another family")
	default:
	}

	w = do(t, h, http.MethodGet, "/api/sync?familyId=fam&scope=daily&date=2024-05-03", "")
	var load syncproto.LoadResponse
	decodeBody(t, w, &load)
	if !load.Data.Logs.Contains("2024-05-03", "t1") || len(load.Data.Transactions) != 1 {
		t.Errorf("daily load = %+v", load.Data)
	}
}

func TestSave_BulkHasNoTotals(t *testing.T) {
	_, h := setupServer(t)
	w := do(t, h, http.MethodPost, "/api/sync?familyId=fam",
		`{"scope":"tasks","data":[{"id":"t1","title":"刷牙","category":"LIFE","stars":2,"icon":"🪥"}]}`)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if strings.TrimSpace(w.Body.String()) != `{"success":true}` {
		t.Errorf("body = %s", w.Body.String())
	}
}

func TestSave_Errors(t *testing.T) {
	_, h := setupServer(t)
	tests := []struct {
		name   string
		target string
		body   string
	}{
		{"missing family", "/api/sync", `{"scope":"tasks","data":[]}`},
		{"bad json", "/api/sync?familyId=f", `{`},
		{"missing scope", "/api/sync?familyId=f", `{"data":[]}`},
		{"read-only scope", "/api/sync?familyId=f", `{"scope":"daily","data":{}}`},
		{"bad payload", "/api/sync?familyId=f", `{"scope":"record_log","data":{"taskId":"t1","dateKey":"nope","action":"add"}}`},
		{"missing data", "/api/sync?familyId=f", `{"scope":"tasks"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(t, h, http.MethodPost, tt.target, tt.body)
			if w.Code != http.StatusBadRequest {
				t.Fatalf("expected 400, got %d: %s", w.Code, w.Body.String())
			}
			errorMessage(t, w)
		})
	}
}

// ─── Achievements ───────────────────────────────────────────────────────────

func TestAchievements(t *testing.T) {
	_, h := setupServer(t)
	do(t, h, http.MethodPost, "/api/families", `{"familyId":"fam","userName":"Mia"}`)
	do(t, h, http.MethodPost, "/api/sync?familyId=fam", `{"scope":"activity","data":{"unlockedAchievements":["FIRST_STEP"]}}`)

	w := do(t, h, http.MethodGet, "/api/achievements?familyId=fam", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var resp struct {
		Achievements []struct {
			ID       string `json:"id"`
			Unlocked bool   `json:"unlocked"`
		} `json:"achievements"`
		Unlocked int `json:"unlocked"`
		Total    int `json:"total"`
	}
	decodeBody(t, w, &resp)
	if resp.Total != len(catalog.Default().Achievements) || resp.Unlocked != 1 {
		t.Errorf("unlocked %d of %d", resp.Unlocked, resp.Total)
	}
	for _, a := range resp.Achievements {
		if a.Unlocked != (a.ID == "FIRST_STEP") {
			t.Errorf("%s unlocked = %v", a.ID, a.Unlocked)
		}
	}

	if w := do(t, h, http.MethodGet, "/api/achievements?familyId=nobody", ""); w.Code != http.StatusNotFound {
		t.Errorf("unknown family: expected 404, got %d", w.Code)
	}
	if w := do(t, h, http.MethodGet, "/api/achievements", ""); w.Code != http.StatusBadRequest {
		t.Errorf("missing family: expected 400, got %d", w.Code)
	}
}

// ─── Events ─────────────────────────────────────────────────────────────────

func TestFamilyHub_SubscribeUnsubscribe(t *testing.T) {
	h := NewFamilyHub()
	_, unsubA := h.Subscribe("a")
	_, unsubB := h.Subscribe("b")
	if h.ClientCount() != 2 {
		t.Fatalf("ClientCount() = %d, want 2", h.ClientCount())
	}
	unsubA()
	unsubA()
	if h.ClientCount() != 1 {
		t.Errorf("ClientCount() = %d after unsubscribe, want 1", h.ClientCount())
	}
	unsubB()
	h.Publish(BalanceEvent{Type: "balance", FamilyID: "a"})
}

func TestHandleEvents_Streams(t *testing.T) {
	s, h := setupServer(t)
	srv := httptest.NewServer(h)
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/api/events?familyId=fam", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("Content-Type = %q", ct)
	}

	for s.Hub().ClientCount() == 0 {
		time.Sleep(5 * time.Millisecond)
	}
	s.Hub().Publish(BalanceEvent{Type: "balance", FamilyID: "fam", Balance: 42, LifetimeEarnings: 60})

	line, err := bufio.NewReader(resp.Body).ReadString('\n')
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(line, "data: ") || !strings.Contains(line, `"balance":42`) {
		t.Errorf("event line = %q", line)
	}
}

func TestHandleEvents_MissingFamily(t *testing.T) {
	_, h := setupServer(t)
	w := do(t, h, http.MethodGet, "/api/events", "")
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", w.Code)
	}
}
