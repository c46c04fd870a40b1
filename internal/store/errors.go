package store

import (
	"errors"
	"fmt"
)

var (
	ErrNoUploadID = errors.New("provider returned no upload id")
	ErrNoETag     = errors.New("provider returned no etag")
	ErrNoBucket   = errors.New("bucket is required")
	ErrBadCreds   = errors.New("access key id and secret access key must be set together")
)

// Error wraps a provider failure with the operation and object it concerned.
type Error struct {
	Op       string
	Bucket   string
	Key      string
	UploadID string
	Err      error
}

func (e *Error) Error() string {
	if e.UploadID != "" {
		return fmt.Sprintf("s3.%s %s/%s (upload %s): %v", e.Op, e.Bucket, e.Key, e.UploadID, e.Err)
	}
	if e.Key != "" {
		return fmt.Sprintf("s3.%s %s/%s: %v", e.Op, e.Bucket, e.Key, e.Err)
	}
	return fmt.Sprintf("s3.%s bucket %s: %v", e.Op, e.Bucket, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}
