// Package upload drives the multipart upload protocol: open a session,
// upload every part, complete the session, and abort it on any failure so
// that no session outlives the call.
package upload

import (
	"cmp"
	"context"
	"slices"
	"time"

	"github.com/bitrise-io/go-utils/retry"
	"github.com/dmorgan81/multipartupload/internal/log"
	"github.com/dmorgan81/multipartupload/internal/store"
	"github.com/samber/do"
	"golang.org/x/sync/errgroup"
)

const (
	DefaultConcurrency  = 4
	DefaultRetries      = 2
	DefaultRetryWait    = time.Second
	DefaultAbortTimeout = 30 * time.Second
)

type Orchestrator struct {
	store        store.MultipartStore
	observer     Observer
	partSize     int
	concurrency  int
	retries      uint
	retryWait    time.Duration
	abortTimeout time.Duration
}

type Option func(*Orchestrator)

// WithPartSize sets the chunk size for raw payloads. Sizes below
// MinPartSize are raised to it.
func WithPartSize(n int) Option {
	return func(o *Orchestrator) {
		o.partSize = max(n, MinPartSize)
	}
}

// WithConcurrency caps how many parts are in flight at once.
func WithConcurrency(n int) Option {
	return func(o *Orchestrator) {
		o.concurrency = max(n, 1)
	}
}

// WithRetries sets how many extra attempts a failing part gets.
func WithRetries(n uint, wait time.Duration) Option {
	return func(o *Orchestrator) {
		o.retries, o.retryWait = n, wait
	}
}

func WithAbortTimeout(d time.Duration) Option {
	return func(o *Orchestrator) {
		if d > 0 {
			o.abortTimeout = d
		}
	}
}

func WithObserver(obs Observer) Option {
	return func(o *Orchestrator) {
		if obs != nil {
			o.observer = obs
		}
	}
}

func New(s store.MultipartStore, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		store:        s,
		observer:     LogObserver{},
		partSize:     MinPartSize,
		concurrency:  DefaultConcurrency,
		retries:      DefaultRetries,
		retryWait:    DefaultRetryWait,
		abortTimeout: DefaultAbortTimeout,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

func NewOrchestrator(i *do.Injector) (*Orchestrator, error) {
	return New(do.MustInvoke[store.MultipartStore](i),
		WithObserver(do.MustInvoke[Observer](i)),
		WithPartSize(do.MustInvokeNamed[int](i, "part_size")),
		WithConcurrency(do.MustInvokeNamed[int](i, "part_concurrency")),
		WithRetries(do.MustInvokeNamed[uint](i, "part_retries"), DefaultRetryWait),
		WithAbortTimeout(do.MustInvokeNamed[time.Duration](i, "abort_timeout")),
	), nil
}

// Upload runs one multipart upload to completion. On failure the returned
// error is an *Error, and any session that was opened has been aborted (or
// the abort failure is recorded in Error.AbortErr).
func (o *Orchestrator) Upload(ctx context.Context, req Request) (store.Completion, error) {
	logger := log.FromContextOrDiscard(ctx).WithGroup("upload").With("bucket", req.Bucket, "key", req.Key)
	ctx = log.NewContext(ctx, logger)

	if err := req.Validate(); err != nil {
		return o.fail(ctx, err.(*Error))
	}

	o.observer.Observe(ctx, StatusRunning, LabelUploading)
	logger.Info("starting multipart upload", "size", req.size())

	uploadID, err := o.store.CreateSession(ctx, req.Bucket, req.Key)
	if err != nil {
		return o.fail(ctx, &Error{Kind: SessionCreateFailed, Err: err})
	}
	logger = logger.With("uploadId", uploadID)
	ctx = log.NewContext(ctx, logger)

	parts := req.Parts
	if len(parts) == 0 {
		parts = Chunk(req.Payload, partSize(len(req.Payload), o.partSize))
	}
	logger.Info("opened multipart upload", "parts", len(parts))

	uploaded, err := o.uploadParts(ctx, req, uploadID, parts)
	if err != nil {
		return o.abort(ctx, req, err.(*Error))
	}

	completion, err := o.store.CompleteSession(ctx, req.Bucket, req.Key, uploadID, uploaded)
	if err != nil {
		return o.abort(ctx, req, &Error{Kind: CompletionFailed, UploadID: uploadID, Err: err})
	}

	logger.Info("completed multipart upload", "location", completion.Location, "etag", completion.ETag)
	o.observer.Observe(ctx, StatusSucceeded, LabelSuccess)
	return completion, nil
}

func (o *Orchestrator) uploadParts(ctx context.Context, req Request, uploadID string, parts [][]byte) ([]store.Part, error) {
	results := make([]store.Part, len(parts))

	group, gctx := errgroup.WithContext(ctx)
	group.SetLimit(o.concurrency)
	for i, data := range parts {
		number := int32(i + 1)
		group.Go(func() error {
			etag, err := o.uploadPart(gctx, req, uploadID, number, data)
			if err != nil {
				return &Error{Kind: PartUploadFailed, UploadID: uploadID, PartNumber: number, Err: err}
			}
			results[i] = store.Part{Number: number, ETag: etag}
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return nil, err
	}

	slices.SortFunc(results, func(a, b store.Part) int {
		return cmp.Compare(a.Number, b.Number)
	})
	return results, nil
}

func (o *Orchestrator) uploadPart(ctx context.Context, req Request, uploadID string, number int32, data []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if o.retries == 0 {
		return o.store.UploadPart(ctx, req.Bucket, req.Key, uploadID, number, data)
	}

	log := log.FromContextOrDiscard(ctx)
	var etag string
	err := retry.Times(o.retries).Wait(o.retryWait).TryWithAbort(func(attempt uint) (error, bool) {
		if err := ctx.Err(); err != nil {
			return err, true
		}
		if attempt > 0 {
			log.Warn("retrying part", "part", number, "attempt", attempt+1)
		}
		var err error
		etag, err = o.store.UploadPart(ctx, req.Bucket, req.Key, uploadID, number, data)
		return err, false
	})
	return etag, err
}

// abort releases the session named by cause. It runs on a context detached
// from ctx's cancellation so that a cancelled or timed out invocation still
// cleans up, bounded by the abort timeout.
func (o *Orchestrator) abort(ctx context.Context, req Request, cause *Error) (store.Completion, error) {
	log := log.FromContextOrDiscard(ctx)
	log.Warn("aborting multipart upload", "cause", cause.Kind.String())

	actx, cancel := context.WithTimeout(context.WithoutCancel(ctx), o.abortTimeout)
	defer cancel()

	if err := o.store.AbortSession(actx, req.Bucket, req.Key, cause.UploadID); err != nil {
		cause.AbortErr = &Error{Kind: AbortFailed, UploadID: cause.UploadID, Err: err}
	}
	return o.fail(ctx, cause)
}

func (o *Orchestrator) fail(ctx context.Context, err *Error) (store.Completion, error) {
	log := log.FromContextOrDiscard(ctx)
	log.Error("multipart upload failed", "kind", err.Kind.String(), "error", err.Err)
	if err.NeedsCleanup() {
		log.Error("multipart upload left open, manual cleanup required",
			"uploadId", err.UploadID, "error", err.AbortErr)
	}
	o.observer.Observe(ctx, StatusFailed, LabelFailure)
	return store.Completion{}, err
}
