package gateway

import (
	"context"
	"errors"
	"time"

	"github.com/zulandar/intake/internal/metrics"
)

// Policy wraps a Gateway with call-level behavior.
type Policy func(Gateway) Gateway

// Apply wraps g with policies; the first policy is the outermost.
func Apply(g Gateway, policies ...Policy) Gateway {
	for i := len(policies) - 1; i >= 0; i-- {
		g = policies[i](g)
	}
	return g
}

// AtMostOnce is the default policy: every call is issued exactly once and
// failures are returned to the caller unchanged.
func AtMostOnce(g Gateway) Gateway {
	return g
}

// Timeout bounds every call by d. A zero or negative d leaves calls unbounded.
func Timeout(d time.Duration) Policy {
	return func(g Gateway) Gateway {
		if d <= 0 {
			return g
		}
		return &timeoutGateway{next: g, d: d}
	}
}

type timeoutGateway struct {
	next Gateway
	d    time.Duration
}

func (t *timeoutGateway) Start(ctx context.Context, req StartRequest) (*Response, error) {
	ctx, cancel := context.WithTimeout(ctx, t.d)
	defer cancel()
	return t.next.Start(ctx, req)
}

func (t *timeoutGateway) Advance(ctx context.Context, sessionID, answer string) (*Response, error) {
	ctx, cancel := context.WithTimeout(ctx, t.d)
	defer cancel()
	return t.next.Advance(ctx, sessionID, answer)
}

func (t *timeoutGateway) Clarify(ctx context.Context, sessionID, questionText, answer string) (*Response, error) {
	ctx, cancel := context.WithTimeout(ctx, t.d)
	defer cancel()
	return t.next.Clarify(ctx, sessionID, questionText, answer)
}

// Instrument records call counts, latency and errors per endpoint in m.
func Instrument(m *metrics.Metrics) Policy {
	return func(g Gateway) Gateway {
		if m == nil {
			return g
		}
		return &instrumentedGateway{next: g, m: m}
	}
}

type instrumentedGateway struct {
	next Gateway
	m    *metrics.Metrics
}

func (i *instrumentedGateway) observe(endpoint string, call func() (*Response, error)) (*Response, error) {
	start := time.Now()
	resp, err := call()
	i.m.GatewayCalls.WithLabelValues(endpoint).Inc()
	i.m.GatewayCallDuration.WithLabelValues(endpoint).Observe(time.Since(start).Seconds())

	var te *TransportError
	switch {
	case errors.As(err, &te):
		i.m.GatewayTransportErrors.WithLabelValues(endpoint).Inc()
	case err == nil && resp.Outcome() == OutcomeError:
		i.m.GatewayDomainErrors.WithLabelValues(endpoint).Inc()
	}
	return resp, err
}

func (i *instrumentedGateway) Start(ctx context.Context, req StartRequest) (*Response, error) {
	return i.observe(EndpointStart, func() (*Response, error) { return i.next.Start(ctx, req) })
}

func (i *instrumentedGateway) Advance(ctx context.Context, sessionID, answer string) (*Response, error) {
	return i.observe(EndpointAdvance, func() (*Response, error) { return i.next.Advance(ctx, sessionID, answer) })
}

func (i *instrumentedGateway) Clarify(ctx context.Context, sessionID, questionText, answer string) (*Response, error) {
	return i.observe(EndpointClarify, func() (*Response, error) {
		return i.next.Clarify(ctx, sessionID, questionText, answer)
	})
}
