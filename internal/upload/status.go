package upload

import (
	"context"

	"github.com/dmorgan81/multipartupload/internal/log"
)

type Status int

const (
	StatusRunning Status = iota + 1
	StatusSucceeded
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusRunning:
		return "running"
	case StatusSucceeded:
		return "succeeded"
	case StatusFailed:
		return "failed"
	default:
		return "unknown"
	}
}

const (
	LabelUploading = "Uploading"
	LabelSuccess   = "Success"
	LabelFailure   = "Failure"
)

// Observer receives lifecycle transitions of an upload.
type Observer interface {
	Observe(ctx context.Context, status Status, label string)
}

type ObserverFunc func(context.Context, Status, string)

func (f ObserverFunc) Observe(ctx context.Context, status Status, label string) {
	f(ctx, status, label)
}

// LogObserver writes transitions to the context logger.
type LogObserver struct{}

func (LogObserver) Observe(ctx context.Context, status Status, label string) {
	log.FromContextOrDiscard(ctx).Info("upload status", "status", status.String(), "label", label)
}
