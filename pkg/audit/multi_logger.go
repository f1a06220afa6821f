package audit

import (
	"context"
	"errors"
	"sync"

	"github.com/platinummonkey/labkit/pkg/observability"
)

// MultiLogger logs to multiple audit loggers simultaneously
type MultiLogger struct {
	loggers []Logger
	async   bool // If true, log asynchronously
	wg      sync.WaitGroup
	errChan chan error
}

// NewMultiLogger creates a new multi-logger that writes to multiple destinations
func NewMultiLogger(loggers ...Logger) *MultiLogger {
	return &MultiLogger{
		loggers: loggers,
		errChan: make(chan error, len(loggers)),
	}
}

// SetAsync sets whether logging should be asynchronous. Asynchronous
// failures are reported by Errors.
func (m *MultiLogger) SetAsync(async bool) {
	m.async = async
}

// Log logs an audit event to all configured loggers
func (m *MultiLogger) Log(ctx context.Context, event *Event) error {
	if len(m.loggers) == 0 {
		return nil
	}

	if m.async {
		m.logAsync(ctx, event)
		return nil
	}

	return m.logSync(ctx, event)
}

// logSync logs to every logger and joins the failures
func (m *MultiLogger) logSync(ctx context.Context, event *Event) error {
	var errs []error
	for _, logger := range m.loggers {
		if err := logger.Log(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// logAsync logs asynchronously to all loggers
func (m *MultiLogger) logAsync(ctx context.Context, event *Event) {
	ctx = context.WithoutCancel(ctx)
	for _, logger := range m.loggers {
		m.wg.Add(1)
		go func(l Logger) {
			defer m.wg.Done()
			if err := l.Log(ctx, event); err != nil {
				select {
				case m.errChan <- err:
				default:
					// Channel full, drop error
				}
			}
		}(logger)
	}
}

// Errors returns asynchronous logging failures
func (m *MultiLogger) Errors() <-chan error {
	return m.errChan
}

// ReportErrors logs asynchronous failures until ctx is done
func (m *MultiLogger) ReportErrors(ctx context.Context, logger *observability.Logger) {
	for {
		select {
		case <-ctx.Done():
			return
		case err := <-m.errChan:
			logger.WithError(err).Warn("async audit write failed")
		}
	}
}

// Flush waits for asynchronous writes to finish
func (m *MultiLogger) Flush() {
	m.wg.Wait()
}

// Close flushes and closes every logger
func (m *MultiLogger) Close() error {
	m.wg.Wait()

	var errs []error
	for _, logger := range m.loggers {
		if err := logger.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
