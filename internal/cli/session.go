package cli

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/star-achiever/star/internal/client"
	"github.com/star-achiever/star/internal/domain"
	"github.com/star-achiever/star/internal/syncproto"
)

// errUnsynced is returned when a command's changes did not reach the server.
var errUnsynced = errors.New("changes were not saved to the server; check that `star serve` is running")

// session is one command's view of a family.
type session struct {
	store  *client.Store
	notify *termNotifier
}

// newStore builds a store from the loaded config without contacting the
// server.
func newStore(out io.Writer) (*client.Store, *termNotifier, error) {
	sc, err := cfg.StoreConfig()
	if err != nil {
		return nil, nil, err
	}
	if familyOverride != "" {
		sc.FamilyID = familyOverride
	}
	// One-shot commands never wait on the input lock.
	sc.BlockDuration = 0
	n := newTermNotifier(out)
	st := client.NewStore(cfg.Remote(), sc,
		client.WithNotifier(n),
		client.WithLogger(logger),
	)
	return st, n, nil
}

// openSession loads the configured family in full.
func openSession(ctx context.Context, out io.Writer) (*session, error) {
	st, n, err := newStore(out)
	if err != nil {
		return nil, err
	}
	if st.FamilyID() == "" {
		st.Close()
		return nil, fmt.Errorf("%w: pass --family or set sync.family_id in %s", domain.ErrMissingFamilyID, configPath)
	}
	if err := st.Load(ctx, syncproto.LoadQuery{Scope: syncproto.ScopeAll}, true); err != nil {
		st.Close()
		if errors.Is(err, domain.ErrFamilyNotFound) {
			return nil, fmt.Errorf("family %s: %w", st.FamilyID(), err)
		}
		return nil, fmt.Errorf("load family: %w", err)
	}
	return &session{store: st, notify: n}, nil
}

// close waits for queued saves, announces any unlock still held behind a
// celebration and releases the store.
func (s *session) close() error {
	s.store.Flush()
	if a, ok := s.store.Presenter().Pending(); ok {
		s.notify.AchievementUnlocked(a)
	}
	failed := s.store.DispatcherStats().Failed > 0 || s.store.Status() == client.StatusError
	s.store.Close()
	if failed {
		return errUnsynced
	}
	return nil
}
