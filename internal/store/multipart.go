package store

import (
	"context"
	"time"
)

// Part identifies one uploaded part by its 1-based number and the entity tag
// the provider returned for it.
type Part struct {
	Number int32
	ETag   string
}

// Completion is the provider's descriptor of a finished multipart upload.
type Completion struct {
	Location  string `json:"location,omitempty"`
	Bucket    string `json:"bucket,omitempty"`
	Key       string `json:"key"`
	ETag      string `json:"etag,omitempty"`
	VersionID string `json:"versionId,omitempty"`
}

// Session is an open multipart upload as reported by the provider.
type Session struct {
	Key       string
	UploadID  string
	Initiated time.Time
}

// MultipartStore is the provider side of the multipart upload protocol.
type MultipartStore interface {
	CreateSession(ctx context.Context, bucket, key string) (string, error)
	UploadPart(ctx context.Context, bucket, key, uploadID string, number int32, data []byte) (string, error)
	CompleteSession(ctx context.Context, bucket, key, uploadID string, parts []Part) (Completion, error)
	AbortSession(ctx context.Context, bucket, key, uploadID string) error
}

// SessionSweeper lists open sessions and aborts them.
type SessionSweeper interface {
	ListSessions(ctx context.Context, bucket, prefix string) ([]Session, error)
	AbortSession(ctx context.Context, bucket, key, uploadID string) error
}
