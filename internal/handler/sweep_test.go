package handler

import (
	"context"
	"testing"
	"time"

	"github.com/dmorgan81/multipartupload/internal/sweep"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sweepCall struct {
	bucket, prefix string
	olderThan      time.Duration
}

type fakeSweeper struct {
	calls []sweepCall
}

func (f *fakeSweeper) Sweep(_ context.Context, bucket, prefix string, olderThan time.Duration) (sweep.Result, error) {
	f.calls = append(f.calls, sweepCall{bucket, prefix, olderThan})
	return sweep.Result{Found: 1}, nil
}

func TestSweepHandlerDefaults(t *testing.T) {
	f := &fakeSweeper{}
	h := &SweepHandler{sweeper: f, bucket: "node", prefix: "tmp/", olderThan: 24 * time.Hour}

	res, err := h.Handle(context.Background(), SweepInput{Bucket: "msg"})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Found)
	assert.Equal(t, []sweepCall{{"node", "tmp/", 24 * time.Hour}}, f.calls)
}

func TestSweepHandlerOverrides(t *testing.T) {
	f := &fakeSweeper{}
	h := &SweepHandler{sweeper: f, prefix: "tmp/", olderThan: 24 * time.Hour}

	_, err := h.Handle(context.Background(), SweepInput{Bucket: "msg", Prefix: "in/", OlderThan: "90m"})
	require.NoError(t, err)
	assert.Equal(t, []sweepCall{{"msg", "in/", 90 * time.Minute}}, f.calls)
}

func TestSweepHandlerBadDuration(t *testing.T) {
	h := &SweepHandler{sweeper: &fakeSweeper{}}
	_, err := h.Handle(context.Background(), SweepInput{OlderThan: "soon"})
	assert.ErrorContains(t, err, "parse olderThan")
}
