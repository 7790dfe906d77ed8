package client

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/star-achiever/star/internal/domain"
	"github.com/star-achiever/star/internal/syncproto"
)

// linearBackOff waits step, 2*step, 3*step, ...
type linearBackOff struct {
	step time.Duration
	n    int
}

func (b *linearBackOff) NextBackOff() time.Duration {
	b.n++
	return time.Duration(b.n) * b.step
}

func (b *linearBackOff) Reset() { b.n = 0 }

// SaveWithRetry saves with up to attempts tries and linear backoff between
// them. Client errors (4xx) and a missing family are not retried.
func SaveWithRetry(ctx context.Context, r Remote, familyID string, scope syncproto.Scope, data any, attempts int, step time.Duration) (*syncproto.SaveResult, error) {
	var res *syncproto.SaveResult
	op := func() error {
		var err error
		res, err = r.Save(ctx, familyID, scope, data)
		if err != nil && !retryable(err) {
			return backoff.Permanent(err)
		}
		return err
	}
	retries := uint64(max(attempts-1, 0))
	b := backoff.WithContext(backoff.WithMaxRetries(&linearBackOff{step: step}, retries), ctx)
	if err := backoff.Retry(op, b); err != nil {
		return nil, err
	}
	return res, nil
}

func retryable(err error) bool {
	if errors.Is(err, domain.ErrFamilyNotFound) {
		return false
	}
	var se *RemoteStatusError
	if errors.As(err, &se) && se.Code >= 400 && se.Code < 500 {
		return false
	}
	return true
}
