package limiters

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/MrEthical07/authcore/internal/rate"
)

var (
	// ErrFlowLimiterUnavailable indicates the counter store could not be reached.
	ErrFlowLimiterUnavailable = errors.New("flow limiter unavailable")
	// ErrUnknownFlow is returned when no policy is registered for a flow.
	ErrUnknownFlow = errors.New("unknown rate-limited flow")
)

// Flow names a throttled authentication operation.
type Flow string

const (
	FlowRegister       Flow = "register"
	FlowLogin          Flow = "login"
	FlowVerifyEmail    Flow = "verify_email"
	FlowResendOTP      Flow = "resend_otp"
	FlowForgotPassword Flow = "forgot_password"
	FlowResetPassword  Flow = "reset_password"
)

// Scope reports which key exhausted its budget.
type Scope string

const (
	ScopeIdentifier Scope = "identifier"
	ScopeIP         Scope = "ip"
)

// Policy bounds one flow. A zero limit disables that key.
type Policy struct {
	IdentifierLimit int
	IPLimit         int
	Window          time.Duration
}

// Verdict is the combined outcome of the identifier and IP checks.
type Verdict struct {
	Allowed    bool
	Scope      Scope
	Remaining  int
	RetryAfter time.Duration
}

// FlowLimiter applies a per-flow [Policy] to two sliding-window keys: the
// flow identifier (normalized email or token) and the client IP. A request
// passes only when both keys admit it.
type FlowLimiter struct {
	limiter  *rate.Limiter
	prefix   string
	policies map[Flow]Policy
	now      func() time.Time
}

// NewFlowLimiter creates a limiter over the given rate primitive.
func NewFlowLimiter(limiter *rate.Limiter, prefix string, policies map[Flow]Policy) *FlowLimiter {
	copied := make(map[Flow]Policy, len(policies))
	for flow, p := range policies {
		copied[flow] = p
	}
	return &FlowLimiter{
		limiter:  limiter,
		prefix:   prefix,
		policies: copied,
		now:      time.Now,
	}
}

// WithClock replaces the clock used to compute retry hints.
func (f *FlowLimiter) WithClock(now func() time.Time) *FlowLimiter {
	if now != nil {
		f.now = now
	}
	return f
}

// UnknownIP is the IP key used when a flow has no other applicable key and
// the caller supplied no client IP. Such callers share one budget.
const UnknownIP = "unknown"

// Enforce records one attempt of flow. The identifier key is checked before
// the IP key. An empty identifier skips its key. An empty IP skips the IP key
// only when the identifier key applied; otherwise UnknownIP is charged.
func (f *FlowLimiter) Enforce(ctx context.Context, flow Flow, identifier, ip string) (Verdict, error) {
	if f == nil || f.limiter == nil {
		return Verdict{Allowed: true}, nil
	}

	policy, ok := f.policies[flow]
	if !ok {
		return Verdict{}, fmt.Errorf("%w: %s", ErrUnknownFlow, flow)
	}

	verdict := Verdict{Allowed: true, Remaining: -1}
	identifierApplied := policy.IdentifierLimit > 0 && identifier != ""

	if identifierApplied {
		d, err := f.limiter.Allow(ctx, f.key(flow, ScopeIdentifier, identifier), policy.IdentifierLimit, policy.Window)
		if err != nil {
			return Verdict{}, fmt.Errorf("%w: %v", ErrFlowLimiterUnavailable, err)
		}
		if !d.Allowed {
			return Verdict{Scope: ScopeIdentifier, RetryAfter: d.RetryAfter(f.now())}, nil
		}
		verdict.Remaining = d.Remaining
	}

	if ip == "" && !identifierApplied {
		ip = UnknownIP
	}

	if policy.IPLimit > 0 && ip != "" {
		d, err := f.limiter.Allow(ctx, f.key(flow, ScopeIP, ip), policy.IPLimit, policy.Window)
		if err != nil {
			return Verdict{}, fmt.Errorf("%w: %v", ErrFlowLimiterUnavailable, err)
		}
		if !d.Allowed {
			return Verdict{Scope: ScopeIP, RetryAfter: d.RetryAfter(f.now())}, nil
		}
		if verdict.Remaining < 0 || d.Remaining < verdict.Remaining {
			verdict.Remaining = d.Remaining
		}
	}

	return verdict, nil
}

// Policy returns the configured policy for flow.
func (f *FlowLimiter) Policy(flow Flow) (Policy, bool) {
	if f == nil {
		return Policy{}, false
	}
	p, ok := f.policies[flow]
	return p, ok
}

func (f *FlowLimiter) key(flow Flow, scope Scope, value string) string {
	return f.prefix + "rl:" + string(flow) + ":" + string(scope) + ":" + value
}
