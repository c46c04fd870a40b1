// Package sweep aborts multipart uploads that were left open, for example
// when an upload failed and releasing its session failed as well.
package sweep

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/dmorgan81/multipartupload/internal/log"
	"github.com/dmorgan81/multipartupload/internal/store"
	"github.com/samber/do"
	"github.com/samber/lo"
	"golang.org/x/sync/errgroup"
)

const DefaultConcurrency = 8

type Result struct {
	Found   int      `json:"found"`
	Stale   int      `json:"stale"`
	Aborted int      `json:"aborted"`
	Failed  []string `json:"failed,omitempty"`
}

type Sweeper struct {
	store       store.SessionSweeper
	concurrency int
	now         func() time.Time
}

func New(s store.SessionSweeper, concurrency int) *Sweeper {
	return &Sweeper{store: s, concurrency: max(concurrency, 1), now: time.Now}
}

func NewSweeper(i *do.Injector) (*Sweeper, error) {
	return New(do.MustInvoke[store.SessionSweeper](i), DefaultConcurrency), nil
}

// Sweep aborts every session under prefix that was initiated more than
// olderThan ago. Abort failures do not stop the sweep; they are listed in
// the result and joined into the returned error.
func (s *Sweeper) Sweep(ctx context.Context, bucket, prefix string, olderThan time.Duration) (Result, error) {
	log := log.FromContextOrDiscard(ctx).WithGroup("sweep").With("bucket", bucket, "prefix", prefix)
	log.Info("sweeping open multipart uploads", "olderThan", olderThan.String())

	if bucket == "" {
		return Result{}, store.ErrNoBucket
	}

	sessions, err := s.store.ListSessions(ctx, bucket, prefix)
	if err != nil {
		return Result{}, err
	}

	cutoff := s.now().Add(-olderThan)
	stale := lo.Filter(sessions, func(sess store.Session, _ int) bool {
		return sess.Initiated.Before(cutoff)
	})

	var (
		mu     sync.Mutex
		failed []string
		errs   []error
	)
	group := new(errgroup.Group)
	group.SetLimit(s.concurrency)
	for _, sess := range stale {
		group.Go(func() error {
			if err := s.store.AbortSession(ctx, bucket, sess.Key, sess.UploadID); err != nil {
				log.Error("failed to abort multipart upload", "key", sess.Key, "uploadId", sess.UploadID, "error", err)
				mu.Lock()
				defer mu.Unlock()
				failed = append(failed, sess.UploadID)
				errs = append(errs, err)
				return nil
			}
			log.Info("aborted multipart upload", "key", sess.Key, "uploadId", sess.UploadID)
			return nil
		})
	}
	_ = group.Wait()

	result := Result{
		Found:   len(sessions),
		Stale:   len(stale),
		Aborted: len(stale) - len(failed),
		Failed:  failed,
	}
	log.Info("sweep finished", "found", result.Found, "aborted", result.Aborted, "failed", len(result.Failed))
	return result, errors.Join(errs...)
}
