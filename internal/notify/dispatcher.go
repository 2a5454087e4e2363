package notify

import (
	"context"
	"log"
	"math"
	"math/rand/v2"
	"time"

	"github.com/google/uuid"

	"github.com/mind-engage/mindengage-testbot/internal/metrics"
	syncx "github.com/mind-engage/mindengage-testbot/internal/sync"
)

const (
	StatusSent   = "sent"
	StatusFailed = "failed"
)

type RetryConfig struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	// Timeout bounds one delivery, retries included. Zero means unbounded.
	Timeout time.Duration
}

func DefaultRetryConfig() RetryConfig {
	return RetryConfig{MaxAttempts: 3, BaseDelay: 200 * time.Millisecond, MaxDelay: 2 * time.Second, Timeout: 15 * time.Second}
}

// Outcome is the record of one dispatch.
type Outcome struct {
	ID        uuid.UUID
	Recipient string
	Kind      Kind
	Status    string
	Attempts  int
	Err       error
}

func (o Outcome) OK() bool { return o.Status == StatusSent }

type Dispatcher struct {
	n     Notifier
	log   syncx.Log
	cfg   RetryConfig
	sleep func(ctx context.Context, d time.Duration) error
}

type DispatcherOption func(*Dispatcher)

// WithEventLog records outcomes as DeliverySent/DeliveryFailed events.
func WithEventLog(l syncx.Log) DispatcherOption { return func(d *Dispatcher) { d.log = l } }

func WithRetry(cfg RetryConfig) DispatcherOption { return func(d *Dispatcher) { d.cfg = cfg } }

// WithSleep replaces the backoff wait; tests use it to run without delays.
func WithSleep(f func(ctx context.Context, d time.Duration) error) DispatcherOption {
	return func(d *Dispatcher) { d.sleep = f }
}

func NewDispatcher(n Notifier, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{n: n, cfg: DefaultRetryConfig(), sleep: sleepCtx}
	for _, o := range opts {
		o(d)
	}
	if d.cfg.MaxAttempts < 1 {
		d.cfg.MaxAttempts = 1
	}
	return d
}

// Dispatch delivers p to recipient. Failures are logged and reported in the
// Outcome, never returned.
//
// The delivery runs detached from ctx's cancellation under its own
// RetryConfig.Timeout, so an expired request or a slow earlier recipient
// does not fail later deliveries.
func (d *Dispatcher) Dispatch(ctx context.Context, recipient string, p Payload) Outcome {
	out := Outcome{ID: uuid.New(), Recipient: recipient, Kind: p.Kind}
	dctx, cancel := d.deliveryContext(ctx)
	defer cancel()

	var lastErr error
	for attempt := range d.cfg.MaxAttempts {
		out.Attempts = attempt + 1
		lastErr = d.n.Notify(dctx, recipient, p)
		if lastErr == nil || !retryable(dctx, lastErr) || attempt == d.cfg.MaxAttempts-1 {
			break
		}
		if err := d.sleep(dctx, d.backoff(attempt)); err != nil {
			lastErr = err
			break
		}
	}

	if lastErr == nil {
		out.Status = StatusSent
	} else {
		out.Status = StatusFailed
		out.Err = lastErr
		log.Printf("notify: delivery %s of %s to %s failed after %d attempt(s): %v",
			out.ID, p.Kind, recipient, out.Attempts, lastErr)
	}
	metrics.Deliveries.WithLabelValues(string(p.Kind), out.Status).Inc()
	d.record(ctx, out)
	return out
}

func (d *Dispatcher) deliveryContext(ctx context.Context) (context.Context, context.CancelFunc) {
	base := context.WithoutCancel(ctx)
	if d.cfg.Timeout <= 0 {
		return context.WithCancel(base)
	}
	return context.WithTimeout(base, d.cfg.Timeout)
}

func (d *Dispatcher) record(ctx context.Context, o Outcome) {
	if d.log == nil {
		return
	}
	typ := syncx.TypeDeliverySent
	data := map[string]any{"id": o.ID.String(), "kind": o.Kind, "attempts": o.Attempts}
	if !o.OK() {
		typ = syncx.TypeDeliveryFailed
		data["error"] = o.Err.Error()
	}
	// the log must outlive a cancelled request
	if err := d.log.Append(context.WithoutCancel(ctx), syncx.NewEvent(typ, o.Recipient, data)); err != nil {
		log.Printf("notify: event log append: %v", err)
	}
}

// retryable reports whether another attempt may succeed. A timeout of a
// single attempt is retried; an exhausted delivery budget is not.
func retryable(dctx context.Context, err error) bool {
	if dctx.Err() != nil {
		return false
	}
	return !IsPermanent(err)
}

// backoff is exponential with full jitter, capped at MaxDelay.
func (d *Dispatcher) backoff(attempt int) time.Duration {
	base := float64(d.cfg.BaseDelay) * math.Pow(2, float64(attempt))
	if ceil := float64(d.cfg.MaxDelay); ceil > 0 && base > ceil {
		base = ceil
	}
	if base <= 0 {
		return 0
	}
	return time.Duration(rand.Float64() * base)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
