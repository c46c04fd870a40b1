package upload

import (
	"slices"

	"github.com/samber/lo"
)

// Request is one upload: a destination and exactly one source form, either a
// raw payload to be chunked or a caller-chunked list of parts.
type Request struct {
	Bucket  string
	Key     string
	Payload []byte
	Parts   [][]byte
}

func NewPayloadRequest(bucket, key string, payload []byte) Request {
	return Request{Bucket: bucket, Key: key, Payload: payload}
}

func NewPartsRequest(bucket, key string, parts [][]byte) Request {
	return Request{Bucket: bucket, Key: key, Parts: slices.Clone(parts)}
}

// Validate checks the request without touching the network.
func (r Request) Validate() error {
	if r.Bucket == "" {
		return newError(MissingParameter, "no bucket provided")
	}
	if r.Key == "" {
		return newError(MissingParameter, "no object key provided")
	}
	if len(r.Payload) > 0 && len(r.Parts) > 0 {
		return newError(InvalidPayloadType, "both payload and parts provided")
	}
	if len(r.Payload) == 0 && len(r.Parts) == 0 {
		return newError(MissingParameter, "no body data provided")
	}
	if len(r.Parts) > MaxParts {
		return newError(InvalidPayloadType, "%d parts exceeds the maximum of %d", len(r.Parts), MaxParts)
	}
	if _, idx, found := lo.FindIndexOf(r.Parts, func(p []byte) bool { return len(p) == 0 }); found {
		return newError(InvalidPayloadType, "part %d is empty", idx+1)
	}
	return nil
}

func (r Request) size() int {
	if len(r.Parts) == 0 {
		return len(r.Payload)
	}
	return lo.SumBy(r.Parts, func(p []byte) int { return len(p) })
}
