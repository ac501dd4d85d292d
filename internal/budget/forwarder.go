package budget

import (
	"context"

	"smartbudget/internal/core"
	"smartbudget/internal/log"
	"smartbudget/internal/metrics"
)

// Publisher delivers change events to an external bus.
type Publisher interface {
	PublishChange(ctx context.Context, ev core.ChangeEvent) error
}

// Forwarder relays store events to a Publisher. Publish failures are logged
// and counted; they never reach the store.
type Forwarder struct {
	pub     Publisher
	logger  *log.Logger
	metrics *metrics.Metrics
}

func NewForwarder(pub Publisher, logger *log.Logger, m *metrics.Metrics) *Forwarder {
	if logger == nil {
		logger = log.New(log.DefaultConfig())
	}
	return &Forwarder{
		pub:     pub,
		logger:  logger.WithComponent(log.ComponentAMQP),
		metrics: m,
	}
}

// Run publishes events until ctx is done or the channel is closed.
func (f *Forwarder) Run(ctx context.Context, events <-chan core.ChangeEvent) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			err := f.pub.PublishChange(ctx, ev)
			f.metrics.Published(err)
			if err != nil {
				f.logger.ErrorContext(ctx, "Failed to forward change event",
					log.FieldOperation, log.OpPublish,
					log.FieldEvent, ev.Kind,
					log.FieldVersion, ev.Version,
					log.FieldError, err)
				continue
			}
			f.logger.DebugContext(ctx, "Change event forwarded",
				log.FieldEvent, ev.Kind, log.FieldVersion, ev.Version)
		}
	}
}
