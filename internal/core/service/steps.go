package service

import (
	"context"
	"errors"

	"github.com/rs/zerolog"

	"github.com/paywatch/paywatch/internal/api/metrics"
	"github.com/paywatch/paywatch/internal/core/domain"
)

// step is one idempotent store write of a multi-entity operation. Re-running
// a step after a crash converges to the same record.
type step struct {
	name string
	run  func(ctx context.Context) error
}

// runSteps executes steps in order. A step whose target vanished is skipped.
// The first other failure stops the sequence: it is returned as a
// *domain.StoreError when nothing was written yet, and as a
// *domain.PartialError naming the applied steps otherwise. Nothing is rolled
// back.
func runSteps(ctx context.Context, log zerolog.Logger, op string, steps []step) error {
	applied := make([]string, 0, len(steps))
	for _, st := range steps {
		err := st.run(ctx)
		switch {
		case err == nil:
			applied = append(applied, st.name)
			metrics.ConsistencyStepsTotal.WithLabelValues(op, st.name, "ok").Inc()
		case errors.Is(err, domain.ErrNotFound):
			metrics.ConsistencyStepsTotal.WithLabelValues(op, st.name, "vanished").Inc()
			log.Debug().Str("operation", op).Str("step", st.name).Msg("step target vanished, skipped")
		default:
			metrics.ConsistencyStepsTotal.WithLabelValues(op, st.name, "error").Inc()
			storeErr := &domain.StoreError{Op: op + "." + st.name, Err: err}
			if len(applied) == 0 {
				metrics.ConsistencyOperationsTotal.WithLabelValues(op, "failed").Inc()
				return storeErr
			}
			metrics.ConsistencyOperationsTotal.WithLabelValues(op, "partial").Inc()
			log.Error().Err(err).
				Str("operation", op).
				Strs("applied", applied).
				Str("failed", st.name).
				Msg("operation partially applied")
			return &domain.PartialError{Operation: op, Applied: applied, Failed: st.name, Err: storeErr}
		}
	}
	metrics.ConsistencyOperationsTotal.WithLabelValues(op, "ok").Inc()
	return nil
}

// readErr classifies a failed pre-write read.
func readErr(op string, err error) error {
	return &domain.StoreError{Op: op + ".read", Err: err}
}
