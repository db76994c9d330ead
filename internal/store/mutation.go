package store

import (
	"context"
	"errors"

	"github.com/nkkko/lista/internal/metrics"
	"github.com/nkkko/lista/pkg/client"
	"github.com/nkkko/lista/pkg/proto"
	"github.com/rs/zerolog"
)

// mutation is one optimistic change
type mutation struct {
	op string

	// apply changes local state before the call; may be nil
	apply func()
	// call performs the request
	call func(ctx context.Context) error
	// commit merges the response into local state; may be nil
	commit func()
	// revert restores the pre-mutation state; may be nil
	revert func()

	// success is shown when the call succeeds; empty shows nothing
	success string
	// failure is shown when the call fails
	failure string
}

// mutator runs mutations for one store
type mutator struct {
	store    string
	notifier Notifier
	metrics  *metrics.Metrics
	logger   zerolog.Logger
}

func newMutator(store string, notifier Notifier, logger zerolog.Logger) mutator {
	return mutator{store: store, notifier: notifier, metrics: metrics.GetMetrics(), logger: logger}
}

// run applies m and settles it according to the outcome of the call.
// A context cancelled before the response reverts silently and returns ctx.Err().
func (r mutator) run(ctx context.Context, m mutation) error {
	if err := ctx.Err(); err != nil {
		r.metrics.StoreMutationsTotal.WithLabelValues(r.store, m.op, "cancelled").Inc()
		return err
	}

	if m.apply != nil {
		m.apply()
	}

	err := m.call(ctx)
	switch {
	case err == nil:
		if m.commit != nil {
			m.commit()
		}
		r.metrics.StoreMutationsTotal.WithLabelValues(r.store, m.op, "applied").Inc()
		if m.success != "" {
			r.notify(m.success, proto.NotificationType_SUCCESS)
		}
		return nil

	case ctx.Err() != nil:
		if m.revert != nil {
			m.revert()
		}
		r.metrics.StoreMutationsTotal.WithLabelValues(r.store, m.op, "cancelled").Inc()
		r.logger.Debug().Str("op", m.op).Msg("Mutation cancelled")
		return ctx.Err()

	default:
		if m.revert != nil {
			m.revert()
			r.metrics.StoreRollbacksTotal.WithLabelValues(r.store, m.op).Inc()
		}
		r.metrics.StoreMutationsTotal.WithLabelValues(r.store, m.op, "reverted").Inc()
		r.logger.Error().Err(err).Str("op", m.op).Msg("Mutation failed")
		r.notify(failureMessage(m.failure, err), proto.NotificationType_ERROR)
		return err
	}
}

// fail reports a failed read that had no optimistic part
func (r mutator) fail(ctx context.Context, op, message string, err error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	r.logger.Error().Err(err).Str("op", op).Msg("Request failed")
	r.notify(failureMessage(message, err), proto.NotificationType_ERROR)
	return err
}

func (r mutator) notify(message string, typ proto.NotificationType) {
	if r.notifier != nil && message != "" {
		r.notifier.Show(message, typ, 0)
	}
}

// failureMessage appends the server's explanation when it gave one
func failureMessage(message string, err error) string {
	var apiErr *client.APIError
	if errors.As(err, &apiErr) && apiErr.Message != "" {
		if message == "" {
			return apiErr.Message
		}
		return message + ": " + apiErr.Message
	}
	if message == "" {
		return "Something went wrong"
	}
	return message
}
