// Package client is the local optimistic store. Every action applies to the
// in-memory family state first and is then sent to the remote store in the
// background; authoritative balance figures from the server overwrite the
// local ones when they arrive.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/star-achiever/star/internal/domain"
	"github.com/star-achiever/star/internal/syncproto"
)

// Remote is the authoritative store as seen by the client.
type Remote interface {
	Load(ctx context.Context, familyID string, q syncproto.LoadQuery) (*syncproto.Snapshot, error)
	Save(ctx context.Context, familyID string, scope syncproto.Scope, data any) (*syncproto.SaveResult, error)
}

// RemoteStatusError is a non-2xx reply from the sync endpoint.
type RemoteStatusError struct {
	Code    int
	Message string
}

func (e *RemoteStatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("remote returned %d", e.Code)
	}
	return fmt.Sprintf("remote returned %d: %s", e.Code, e.Message)
}

func (e *RemoteStatusError) Unwrap() error { return domain.ErrRemote }

// ─── HTTP Remote ────────────────────────────────────────────────────────────

// Default request timeouts.
const (
	DefaultLoadTimeout = 8 * time.Second
	DefaultSaveTimeout = 5 * time.Second
)

// HTTPRemote talks to the sync endpoint over HTTP.
type HTTPRemote struct {
	BaseURL     string // e.g. http://127.0.0.1:7420/api/sync
	HTTP        *http.Client
	LoadTimeout time.Duration
	SaveTimeout time.Duration
}

// NewHTTPRemote creates a remote with the default timeouts.
func NewHTTPRemote(baseURL string) *HTTPRemote {
	return &HTTPRemote{
		BaseURL:     strings.TrimRight(baseURL, "/"),
		HTTP:        &http.Client{},
		LoadTimeout: DefaultLoadTimeout,
		SaveTimeout: DefaultSaveTimeout,
	}
}

// Load fetches one scope. A null body means the family does not exist.
func (r *HTTPRemote) Load(ctx context.Context, familyID string, q syncproto.LoadQuery) (*syncproto.Snapshot, error) {
	ctx, cancel := context.WithTimeout(ctx, r.LoadTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.BaseURL+"?"+q.Values(familyID).Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("build load request: %w", err)
	}
	var body syncproto.LoadResponse
	if err := r.do(req, &body); err != nil {
		return nil, fmt.Errorf("load %s: %w", q.Scope, err)
	}
	if body.Data == nil {
		return nil, domain.ErrFamilyNotFound
	}
	return body.Data, nil
}

// Save posts one scope and returns the server's authoritative figures, if
// the scope produces any.
func (r *HTTPRemote) Save(ctx context.Context, familyID string, scope syncproto.Scope, data any) (*syncproto.SaveResult, error) {
	ctx, cancel := context.WithTimeout(ctx, r.SaveTimeout)
	defer cancel()

	raw, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("encode %s payload: %w", scope, err)
	}
	payload, err := json.Marshal(syncproto.SaveRequest{Scope: scope, Data: raw})
	if err != nil {
		return nil, fmt.Errorf("encode save request: %w", err)
	}
	u := r.BaseURL + "?" + url.Values{"familyId": {familyID}}.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build save request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	var body syncproto.SaveResponse
	if err := r.do(req, &body); err != nil {
		return nil, fmt.Errorf("save %s: %w", scope, err)
	}
	if !body.Success {
		return nil, fmt.Errorf("save %s: %w", scope, domain.ErrRemote)
	}
	return body.Data, nil
}

func (r *HTTPRemote) do(req *http.Request, out any) error {
	client := r.HTTP
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return domain.ErrSyncTimeout
		}
		return fmt.Errorf("%w: %v", domain.ErrRemote, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &RemoteStatusError{Code: resp.StatusCode, Message: errorMessage(resp.Body)}
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return domain.ErrSyncTimeout
		}
		return fmt.Errorf("%w: decode response: %v", domain.ErrRemote, err)
	}
	return nil
}

// errorMessage extracts the message from a {"error":{"message":...}} body.
func errorMessage(r io.Reader) string {
	var body struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.NewDecoder(io.LimitReader(r, 64<<10)).Decode(&body); err != nil {
		return ""
	}
	return body.Error.Message
}
