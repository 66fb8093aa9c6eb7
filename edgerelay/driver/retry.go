package driver

import (
	"context"
	"fmt"
	"time"

	"github.com/juju/clock"
	"github.com/juju/retry"
	"github.com/sirupsen/logrus"

	rerrors "github.com/nonibytes/edgerelay/edgerelay/errors"
	"github.com/nonibytes/edgerelay/edgerelay/record"
)

const (
	BackoffFixed  = "fixed"
	BackoffDouble = "double"
)

// RetryPolicy says how often and how patiently a device is asked again
// within one gather.
type RetryPolicy struct {
	Attempts int
	Delay    time.Duration
	MaxDelay time.Duration
	Backoff  string
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{Attempts: 3, Delay: 3 * time.Second, MaxDelay: 30 * time.Second, Backoff: BackoffFixed}
}

func (p RetryPolicy) Validate() error {
	if p.Attempts < 1 {
		return rerrors.ConfigError(fmt.Sprintf("retry attempts must be at least 1, got %d", p.Attempts))
	}
	if p.Attempts > 1 && p.Delay <= 0 {
		return rerrors.ConfigError("retry delay must be positive")
	}
	switch p.Backoff {
	case "", BackoffFixed, BackoffDouble:
	default:
		return rerrors.ConfigError(fmt.Sprintf("unknown retry backoff %q", p.Backoff))
	}
	return nil
}

type retrying struct {
	Driver
	policy RetryPolicy
	clock  clock.Clock
	logger *logrus.Logger
}

// WithRetry wraps d so that Gather is attempted up to policy.Attempts
// times. Context cancellation ends the attempts early.
func WithRetry(d Driver, policy RetryPolicy, clk clock.Clock, logger *logrus.Logger) Driver {
	if policy.Attempts <= 1 {
		return d
	}
	if clk == nil {
		clk = clock.WallClock
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &retrying{Driver: d, policy: policy, clock: clk, logger: logger}
}

func (r *retrying) Gather(ctx context.Context) ([]record.RawRecord, error) {
	var out []record.RawRecord
	args := retry.CallArgs{
		Func: func() error {
			recs, err := r.Driver.Gather(ctx)
			if err != nil {
				return err
			}
			out = recs
			return nil
		},
		IsFatalError: func(error) bool {
			return ctx.Err() != nil
		},
		NotifyFunc: func(err error, attempt int) {
			r.logger.WithError(err).WithFields(logrus.Fields{
				"device":  r.Name(),
				"attempt": attempt,
			}).Debug("gather attempt failed")
		},
		Attempts: r.policy.Attempts,
		Delay:    r.policy.Delay,
		MaxDelay: r.policy.MaxDelay,
		Clock:    r.clock,
		Stop:     ctx.Done(),
	}
	if r.policy.Backoff == BackoffDouble {
		args.BackoffFunc = retry.DoubleDelay
	}
	if err := retry.Call(args); err != nil {
		return nil, rerrors.DeviceError(r.Name(), fmt.Sprintf("gather failed after %d attempts", r.policy.Attempts), retry.LastError(err))
	}
	return out, nil
}
