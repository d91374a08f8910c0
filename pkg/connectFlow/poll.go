package connectFlow

import (
	"time"

	"github.com/Layr-Labs/farbook-go/pkg/config"
)

// DefaultPollInterval is the fixed wait before every approval poll
const DefaultPollInterval = config.DefaultPollInterval

// PollPolicy controls the approval polling loop. The zero value of every field but
// Interval keeps the loop fixed-interval and unbounded.
type PollPolicy struct {
	Interval time.Duration
	// BackoffMultiplier grows the interval after every pending or failed poll when > 1
	BackoffMultiplier float64
	// MaxInterval caps the grown interval. Zero leaves it uncapped.
	MaxInterval time.Duration
	// MaxAttempts stops polling after this many polls. Zero polls until approval or
	// cancellation.
	MaxAttempts int
}

// DefaultPollPolicy polls every two seconds until approved
func DefaultPollPolicy() PollPolicy {
	return PollPolicy{Interval: DefaultPollInterval}
}

// PollPolicyFromConfig maps the server's poll settings onto a policy
func PollPolicyFromConfig(c config.PollConfig) PollPolicy {
	return PollPolicy{
		Interval:          c.Interval,
		BackoffMultiplier: c.BackoffMultiplier,
		MaxInterval:       c.MaxInterval,
		MaxAttempts:       c.MaxAttempts,
	}
}

func (p PollPolicy) withDefaults() PollPolicy {
	if p.Interval <= 0 {
		p.Interval = DefaultPollInterval
	}
	return p
}

// next returns the wait before the poll following one that waited current
func (p PollPolicy) next(current time.Duration) time.Duration {
	if p.BackoffMultiplier <= 1 {
		return current
	}
	next := time.Duration(float64(current) * p.BackoffMultiplier)
	if p.MaxInterval > 0 && next > p.MaxInterval {
		next = p.MaxInterval
	}
	return next
}

// exhausted reports whether the policy allows no further polls after polls have run
func (p PollPolicy) exhausted(polls int) bool {
	return p.MaxAttempts > 0 && polls >= p.MaxAttempts
}
