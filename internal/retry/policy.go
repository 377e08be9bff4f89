// Package retry wraps hypervisor calls in a bounded retry policy with
// failure classification.
package retry

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	retrygo "github.com/avast/retry-go/v4"
	"github.com/sirupsen/logrus"
)

// Backoff selects how the delay between attempts grows.
type Backoff string

const (
	BackoffExponential Backoff = "exponential"
	BackoffFixed       Backoff = "fixed"
)

// Defaults used when a Config field is zero.
const (
	DefaultAttempts       uint = 5
	DefaultUploadAttempts uint = 2
	DefaultDelay               = 500 * time.Millisecond
	DefaultMaxDelay            = 10 * time.Second
)

// Config holds the tunables of a Policy.
type Config struct {
	Attempts uint          `yaml:"attempts,omitempty"`
	Delay    time.Duration `yaml:"delay,omitempty"`
	MaxDelay time.Duration `yaml:"maxDelay,omitempty"`
	Backoff  Backoff       `yaml:"backoff,omitempty"`

	// AttemptTimeout abandons a single attempt after this long and counts
	// it as transient. Zero disables it.
	AttemptTimeout time.Duration `yaml:"attemptTimeout,omitempty"`

	// Deadline bounds the whole call, retries included. Zero disables it.
	Deadline time.Duration `yaml:"deadline,omitempty"`
}

// DefaultConfig returns the policy used when nothing is configured.
func DefaultConfig() Config {
	return Config{
		Attempts: DefaultAttempts,
		Delay:    DefaultDelay,
		MaxDelay: DefaultMaxDelay,
		Backoff:  BackoffExponential,
	}
}

// Validate checks the configuration for errors.
func (c Config) Validate() error {
	switch c.Backoff {
	case "", BackoffExponential, BackoffFixed:
	default:
		return fmt.Errorf("backoff must be %q or %q, got %q", BackoffExponential, BackoffFixed, c.Backoff)
	}
	if c.Delay < 0 || c.MaxDelay < 0 || c.AttemptTimeout < 0 || c.Deadline < 0 {
		return fmt.Errorf("durations must not be negative")
	}
	return nil
}

// Classifier maps a failed call to its retry class.
type Classifier func(error) Class

// Func is a single hypervisor call.
type Func func(ctx context.Context) error

// Observer receives per-attempt and per-call outcomes.
type Observer interface {
	ObserveAttempt(op, outcome string)
	ObserveCall(op, result string, elapsed time.Duration)
}

// Policy retries hypervisor calls according to their classification.
// A Policy is safe for concurrent use.
type Policy struct {
	cfg      Config
	classify Classifier
	observer Observer
	log      logrus.FieldLogger
}

// Option configures a Policy.
type Option func(*Policy)

// WithObserver reports attempts and calls to o.
func WithObserver(o Observer) Option {
	return func(p *Policy) {
		p.observer = o
	}
}

// WithLogger sets the logger used for attempt diagnostics.
func WithLogger(l logrus.FieldLogger) Option {
	return func(p *Policy) {
		p.log = l
	}
}

// New creates a Policy. Zero fields of cfg take their defaults and a nil
// classifier treats every failure as fatal.
func New(cfg Config, classify Classifier, opts ...Option) *Policy {
	if cfg.Attempts == 0 {
		cfg.Attempts = DefaultAttempts
	}
	if cfg.Delay == 0 {
		cfg.Delay = DefaultDelay
	}
	if cfg.MaxDelay == 0 {
		cfg.MaxDelay = DefaultMaxDelay
	}
	if cfg.Backoff == "" {
		cfg.Backoff = BackoffExponential
	}
	if classify == nil {
		classify = func(error) Class { return Fatal }
	}

	p := &Policy{
		cfg:      cfg,
		classify: classify,
		log:      logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// WithAttempts returns a copy of p bounded to n attempts.
func (p *Policy) WithAttempts(n uint) *Policy {
	cp := *p
	if n == 0 {
		n = 1
	}
	cp.cfg.Attempts = n
	return &cp
}

// WithoutAttemptTimeout returns a copy of p that never abandons an
// attempt. Calls that consume caller-owned state, such as a stream, must
// finish before the next attempt starts; the overall deadline still applies.
func (p *Policy) WithoutAttemptTimeout() *Policy {
	cp := *p
	cp.cfg.AttemptTimeout = 0
	return &cp
}

// Attempts returns the attempt bound.
func (p *Policy) Attempts() uint {
	return p.cfg.Attempts
}

// Do runs fn until it succeeds, fails fatally, reports NotFound or runs out
// of attempts. Retried calls that are not idempotent may re-execute a
// partially completed action.
func (p *Policy) Do(ctx context.Context, op string, fn Func) error {
	return p.run(ctx, op, fn)
}

// Exists runs fn like Do but maps a NotFound failure to (false, nil).
func (p *Policy) Exists(ctx context.Context, op string, fn Func) (bool, error) {
	err := p.run(ctx, op, fn)
	if err == nil {
		return true, nil
	}
	var rerr *Error
	if errors.As(err, &rerr) && rerr.Reason == ReasonNotFound {
		return false, nil
	}
	return false, err
}

func (p *Policy) run(ctx context.Context, op string, fn Func) error {
	start := time.Now()
	if p.cfg.Deadline > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.cfg.Deadline)
		defer cancel()
	}

	log := p.log.WithField("op", op)

	var (
		attempts  int
		lastErr   error
		lastClass = Transient
	)

	err := retrygo.Do(
		func() error {
			attempts++
			aerr := p.attempt(ctx, fn)
			if aerr == nil {
				p.observeAttempt(op, "success")
				return nil
			}
			if ctxErr := ctx.Err(); ctxErr != nil && errors.Is(aerr, ctxErr) {
				return retrygo.Unrecoverable(aerr)
			}

			class := Transient
			if !errors.Is(aerr, ErrAttemptTimeout) {
				class = p.classify(aerr)
			}
			lastErr, lastClass = aerr, class
			p.observeAttempt(op, class.String())
			log.WithError(aerr).WithFields(logrus.Fields{
				"attempt": attempts,
				"class":   class.String(),
			}).Debug("Hypervisor call failed")

			if class != Transient {
				return retrygo.Unrecoverable(aerr)
			}
			return aerr
		},
		retrygo.Context(ctx),
		retrygo.Attempts(p.cfg.Attempts),
		retrygo.Delay(p.cfg.Delay),
		retrygo.MaxDelay(p.cfg.MaxDelay),
		retrygo.DelayType(p.delayType()),
		retrygo.LastErrorOnly(true),
	)

	result := p.result(ctx, op, attempts, lastErr, lastClass, err)
	outcome := "success"
	var rerr *Error
	if errors.As(result, &rerr) {
		outcome = strings.ReplaceAll(rerr.Reason.String(), " ", "_")
	}
	if p.observer != nil {
		p.observer.ObserveCall(op, outcome, time.Since(start))
	}
	if result != nil && lastClass == Transient {
		log.WithError(result).Warn("Warning: hypervisor call gave up")
	}
	return result
}

func (p *Policy) result(ctx context.Context, op string, attempts int, lastErr error, lastClass Class, err error) error {
	if err == nil {
		return nil
	}

	if lastErr != nil && lastClass != Transient {
		reason := ReasonFatal
		if lastClass == NotFound {
			reason = ReasonNotFound
		}
		return &Error{Op: op, Reason: reason, Attempts: attempts, Err: lastErr}
	}

	if ctxErr := ctx.Err(); ctxErr != nil {
		cause := lastErr
		if cause == nil {
			cause = ctxErr
		}
		if errors.Is(ctxErr, context.DeadlineExceeded) {
			return &Error{Op: op, Reason: ReasonTimeout, Attempts: attempts, Err: cause}
		}
		return &Error{Op: op, Reason: ReasonFatal, Attempts: attempts, Err: ctxErr}
	}

	if lastErr == nil {
		lastErr = err
	}
	return &Error{Op: op, Reason: ReasonExhausted, Attempts: attempts, Err: lastErr}
}

// attempt runs fn once, abandoning it when the per-attempt timeout fires.
// The abandoned call keeps running in its goroutine; its result is dropped.
func (p *Policy) attempt(ctx context.Context, fn Func) error {
	if p.cfg.AttemptTimeout <= 0 {
		return fn(ctx)
	}

	actx, cancel := context.WithTimeout(ctx, p.cfg.AttemptTimeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- fn(actx)
	}()

	select {
	case err := <-done:
		return err
	case <-actx.Done():
		if err := ctx.Err(); err != nil {
			return err
		}
		return fmt.Errorf("%w after %s", ErrAttemptTimeout, p.cfg.AttemptTimeout)
	}
}

func (p *Policy) delayType() retrygo.DelayTypeFunc {
	if p.cfg.Backoff == BackoffFixed {
		return retrygo.FixedDelay
	}
	return retrygo.BackOffDelay
}

func (p *Policy) observeAttempt(op, outcome string) {
	if p.observer != nil {
		p.observer.ObserveAttempt(op, outcome)
	}
}
