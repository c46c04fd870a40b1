package handler

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/dmorgan81/multipartupload/internal/log"
	"github.com/dmorgan81/multipartupload/internal/store"
	"github.com/dmorgan81/multipartupload/internal/upload"
	"github.com/samber/do"
	"github.com/samber/lo"
)

// Input is the inbound message. Body may be a JSON string, a JSON object or
// array (uploaded as its JSON text), or omitted in favour of BodyBase64 for
// binary data. Parts carries a pre-chunked payload instead.
type Input struct {
	Bucket     string          `json:"bucket,omitempty"`
	Key        string          `json:"key,omitempty"`
	Body       json.RawMessage `json:"body,omitempty"`
	BodyBase64 string          `json:"bodyBase64,omitempty"`
	Parts      [][]byte        `json:"parts,omitempty"`
}

// Output is the message sent on after an upload attempt. Payload is nil when
// the upload failed.
type Output struct {
	Payload      *store.Completion `json:"payload"`
	Key          string            `json:"key"`
	Error        string            `json:"error,omitempty"`
	ErrorKind    string            `json:"errorKind,omitempty"`
	UploadID     string            `json:"uploadId,omitempty"`
	NeedsCleanup bool              `json:"needsCleanup,omitempty"`
}

type Uploader interface {
	Upload(context.Context, upload.Request) (store.Completion, error)
}

type Handler struct {
	uploader    Uploader
	invalidator store.Invalidator
	observer    upload.Observer
	bucket      string
	key         string
}

func NewHandler(i *do.Injector) (*Handler, error) {
	return &Handler{
		uploader:    do.MustInvoke[*upload.Orchestrator](i),
		invalidator: do.MustInvoke[store.Invalidator](i),
		observer:    do.MustInvoke[upload.Observer](i),
		bucket:      do.MustInvokeNamed[string](i, "bucket"),
		key:         do.MustInvokeNamed[string](i, "key"),
	}, nil
}

// Handle uploads the message body. Validation failures are returned as
// errors; provider failures are reported in the Output so the failed message
// still flows on.
func (h *Handler) Handle(ctx context.Context, input Input) (Output, error) {
	req, err := h.request(input)
	logger := log.FromContextOrDiscard(ctx).WithGroup("Handler").With("bucket", req.Bucket, "key", req.Key)
	logger.Info("handling lambda invocation", "parts", len(input.Parts))
	ctx = log.NewContext(ctx, logger)
	if err != nil {
		logger.Error("rejecting message", "error", err)
		h.observer.Observe(ctx, upload.StatusFailed, upload.LabelFailure)
		return Output{}, err
	}

	completion, err := h.uploader.Upload(ctx, req)
	if err != nil {
		var uerr *upload.Error
		if !errors.As(err, &uerr) || uerr.Kind.Local() {
			return Output{}, err
		}
		return Output{
			Key:          req.Key,
			Error:        err.Error(),
			ErrorKind:    uerr.Kind.String(),
			UploadID:     uerr.UploadID,
			NeedsCleanup: uerr.NeedsCleanup(),
		}, nil
	}

	if err := h.invalidator.Invalidate(ctx, []string{store.ObjectPath(req.Key)}); err != nil {
		logger.Warn("failed to invalidate cdn path", "error", err)
	}
	return Output{Payload: &completion, Key: req.Key}, nil
}

// request builds the upload request. Node-level bucket and key win over the
// message's.
func (h *Handler) request(input Input) (upload.Request, error) {
	bucket := lo.Ternary(h.bucket != "", h.bucket, input.Bucket)
	key := lo.Ternary(h.key != "", h.key, input.Key)

	body, err := decodeBody(input)
	if err != nil {
		return upload.Request{Bucket: bucket, Key: key}, err
	}
	if len(input.Parts) > 0 && len(body) > 0 {
		return upload.Request{Bucket: bucket, Key: key}, &upload.Error{
			Kind: upload.InvalidPayloadType,
			Err:  errors.New("provide either body or parts, not both"),
		}
	}
	if len(input.Parts) > 0 {
		return upload.NewPartsRequest(bucket, key, input.Parts), nil
	}
	return upload.NewPayloadRequest(bucket, key, body), nil
}

func decodeBody(input Input) ([]byte, error) {
	raw := bytes.TrimSpace(input.Body)
	hasBody := len(raw) > 0 && !bytes.Equal(raw, []byte("null"))

	if input.BodyBase64 != "" {
		if hasBody {
			return nil, invalidPayload(errors.New("provide either body or bodyBase64, not both"))
		}
		data, err := base64.StdEncoding.DecodeString(input.BodyBase64)
		if err != nil {
			return nil, invalidPayload(fmt.Errorf("decode bodyBase64: %w", err))
		}
		return data, nil
	}
	if !hasBody {
		return nil, nil
	}

	switch raw[0] {
	case '"':
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil, invalidPayload(err)
		}
		return []byte(s), nil
	case '{', '[':
		var buf bytes.Buffer
		if err := json.Compact(&buf, raw); err != nil {
			return nil, invalidPayload(err)
		}
		return buf.Bytes(), nil
	default:
		return nil, invalidPayload(errors.New("the body should be a string or bytes"))
	}
}

func invalidPayload(err error) error {
	return &upload.Error{Kind: upload.InvalidPayloadType, Err: err}
}
