package upload

import (
	"errors"
	"fmt"
	"strings"

	"github.com/samber/lo"
)

// Kind classifies why an upload failed.
type Kind int

const (
	KindUnknown Kind = iota
	MissingParameter
	InvalidPayloadType
	SessionCreateFailed
	PartUploadFailed
	CompletionFailed
	AbortFailed
)

var kindNames = map[Kind]string{
	KindUnknown:         "Unknown",
	MissingParameter:    "MissingParameter",
	InvalidPayloadType:  "InvalidPayloadType",
	SessionCreateFailed: "SessionCreateFailed",
	PartUploadFailed:    "PartUploadFailed",
	CompletionFailed:    "CompletionFailed",
	AbortFailed:         "AbortFailed",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// Local reports whether the kind is a validation failure raised before any
// provider call.
func (k Kind) Local() bool {
	return k == MissingParameter || k == InvalidPayloadType
}

// Error is the failure outcome of an upload. UploadID names the session that
// was aborted, if one had been opened. AbortErr is set when releasing that
// session failed too, in which case the session needs manual cleanup.
type Error struct {
	Kind       Kind
	UploadID   string
	PartNumber int32
	Err        error
	AbortErr   error
}

func newError(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Err: fmt.Errorf(format, args...)}
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString("upload: ")
	b.WriteString(e.Kind.String())
	switch {
	case e.UploadID != "" && e.PartNumber > 0:
		fmt.Fprintf(&b, " (upload %s, part %d)", e.UploadID, e.PartNumber)
	case e.UploadID != "":
		fmt.Fprintf(&b, " (upload %s)", e.UploadID)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	if e.AbortErr != nil {
		b.WriteString("; abort failed: ")
		b.WriteString(e.AbortErr.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() []error {
	return lo.Filter([]error{e.Err, e.AbortErr}, func(err error, _ int) bool { return err != nil })
}

// NeedsCleanup reports whether a session was left open on the provider.
func (e *Error) NeedsCleanup() bool {
	return e.AbortErr != nil
}

// KindOf returns the kind of the outermost *Error in err's tree.
func KindOf(err error) Kind {
	var uerr *Error
	if errors.As(err, &uerr) {
		return uerr.Kind
	}
	return KindUnknown
}
