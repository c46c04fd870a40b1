package handler

import (
	"context"
	"fmt"
	"time"

	"github.com/dmorgan81/multipartupload/internal/log"
	"github.com/dmorgan81/multipartupload/internal/sweep"
	"github.com/samber/do"
	"github.com/samber/lo"
)

type SweepInput struct {
	Bucket    string `json:"bucket,omitempty"`
	Prefix    string `json:"prefix,omitempty"`
	OlderThan string `json:"olderThan,omitempty"`
}

type Sweeper interface {
	Sweep(ctx context.Context, bucket, prefix string, olderThan time.Duration) (sweep.Result, error)
}

type SweepHandler struct {
	sweeper   Sweeper
	bucket    string
	prefix    string
	olderThan time.Duration
}

func NewSweepHandler(i *do.Injector) (*SweepHandler, error) {
	return &SweepHandler{
		sweeper:   do.MustInvoke[*sweep.Sweeper](i),
		bucket:    do.MustInvokeNamed[string](i, "bucket"),
		prefix:    do.MustInvokeNamed[string](i, "sweep_prefix"),
		olderThan: do.MustInvokeNamed[time.Duration](i, "sweep_older_than"),
	}, nil
}

func (h *SweepHandler) Handle(ctx context.Context, input SweepInput) (sweep.Result, error) {
	log := log.FromContextOrDiscard(ctx).WithGroup("SweepHandler").With("input", input)
	log.Info("handling lambda invocation")

	olderThan := h.olderThan
	if input.OlderThan != "" {
		d, err := time.ParseDuration(input.OlderThan)
		if err != nil {
			return sweep.Result{}, fmt.Errorf("parse olderThan: %w", err)
		}
		olderThan = d
	}

	return h.sweeper.Sweep(ctx,
		lo.Ternary(h.bucket != "", h.bucket, input.Bucket),
		lo.Ternary(input.Prefix != "", input.Prefix, h.prefix),
		olderThan,
	)
}
