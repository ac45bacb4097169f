package notifications

import (
	"context"
	"errors"
	"sync"
	"time"
)

var ErrCircuitOpen = errors.New("notifier circuit open")

const (
	StateClosed   = "closed"
	StateOpen     = "open"
	StateHalfOpen = "half_open"
)

type ProtectedNotifierConfig struct {
	// Timeout bounds a single send.
	Timeout time.Duration
	// FailureThreshold consecutive provider failures open the circuit.
	FailureThreshold int
	// Cooldown is how long the circuit stays open before a trial send.
	Cooldown time.Duration
	// HalfOpenMaxCalls trial sends may run at once.
	HalfOpenMaxCalls int

	// OnStateChange, if set, is called outside the lock.
	OnStateChange func(from, to string)
	Now           func() time.Time
}

// ProtectedNotifier puts a timeout and a circuit breaker in front of the
// email provider so a provider outage fails jobs fast and they are retried
// later. Notices without a recipient never reach the provider and do not
// count as provider failures.
type ProtectedNotifier struct {
	inner Notifier
	cfg   ProtectedNotifierConfig

	mu       sync.Mutex
	state    string
	failures int
	openedAt time.Time
	trials   int
}

func NewProtectedNotifier(inner Notifier, cfg ProtectedNotifierConfig) *ProtectedNotifier {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 3 * time.Second
	}
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = 3
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = 15 * time.Second
	}
	if cfg.HalfOpenMaxCalls <= 0 {
		cfg.HalfOpenMaxCalls = 1
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &ProtectedNotifier{inner: inner, cfg: cfg, state: StateClosed}
}

func (n *ProtectedNotifier) SendEnrollmentNotice(ctx context.Context, notice EnrollmentNotice) error {
	if notice.Email == "" {
		return ErrNoRecipient
	}
	if !n.acquire() {
		return ErrCircuitOpen
	}

	sendCtx, cancel := context.WithTimeout(ctx, n.cfg.Timeout)
	defer cancel()

	err := n.inner.SendEnrollmentNotice(sendCtx, notice)

	// the caller going away says nothing about the provider
	if err != nil && ctx.Err() != nil {
		n.release()
		return err
	}
	n.record(err)
	return err
}

func (n *ProtectedNotifier) State() string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.state
}

func (n *ProtectedNotifier) acquire() bool {
	n.mu.Lock()
	from := n.state
	ok := true

	switch n.state {
	case StateOpen:
		if n.cfg.Now().Sub(n.openedAt) < n.cfg.Cooldown {
			ok = false
			break
		}
		n.state = StateHalfOpen
		n.trials = 1
	case StateHalfOpen:
		if n.trials >= n.cfg.HalfOpenMaxCalls {
			ok = false
			break
		}
		n.trials++
	}

	to := n.state
	n.mu.Unlock()
	n.changed(from, to)
	return ok
}

func (n *ProtectedNotifier) release() {
	n.mu.Lock()
	if n.state == StateHalfOpen && n.trials > 0 {
		n.trials--
	}
	n.mu.Unlock()
}

func (n *ProtectedNotifier) record(err error) {
	n.mu.Lock()
	from := n.state
	if n.state == StateHalfOpen && n.trials > 0 {
		n.trials--
	}

	switch {
	case err == nil || errors.Is(err, ErrNoRecipient):
		n.failures = 0
		n.state = StateClosed
	default:
		n.failures++
		// a failed trial reopens at once
		if n.state == StateHalfOpen || n.failures >= n.cfg.FailureThreshold {
			n.state = StateOpen
			n.openedAt = n.cfg.Now()
		}
	}

	to := n.state
	n.mu.Unlock()
	n.changed(from, to)
}

func (n *ProtectedNotifier) changed(from, to string) {
	if from != to && n.cfg.OnStateChange != nil {
		n.cfg.OnStateChange(from, to)
	}
}
