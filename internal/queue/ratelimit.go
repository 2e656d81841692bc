package queue

import (
	"sync"

	"golang.org/x/time/rate"
)

// GatewayLimiter keeps one token bucket per gateway. Gateways are shared
// infrastructure: the bucket for a gateway ID is global across tenants.
type GatewayLimiter struct {
	gateways map[string]*rate.Limiter
	mu       sync.RWMutex
	r        rate.Limit
	b        int
}

// NewGatewayLimiter creates a limiter set allowing sendsPerMinute downlinks
// per gateway with the given burst.
func NewGatewayLimiter(sendsPerMinute float64, burst int) *GatewayLimiter {
	return &GatewayLimiter{
		gateways: make(map[string]*rate.Limiter),
		r:        rate.Limit(sendsPerMinute / 60.0),
		b:        burst,
	}
}

func (g *GatewayLimiter) add(gatewayID string) *rate.Limiter {
	g.mu.Lock()
	defer g.mu.Unlock()
	if limiter, ok := g.gateways[gatewayID]; ok {
		return limiter
	}
	limiter := rate.NewLimiter(g.r, g.b)
	g.gateways[gatewayID] = limiter
	return limiter
}

func (g *GatewayLimiter) get(gatewayID string) *rate.Limiter {
	g.mu.RLock()
	limiter, ok := g.gateways[gatewayID]
	g.mu.RUnlock()
	if !ok {
		return g.add(gatewayID)
	}
	return limiter
}

// Reserve takes a token reservation against the gateway's bucket. Callers
// must Cancel reservations they do not spend on a send, returning the token.
func (g *GatewayLimiter) Reserve(gatewayID string) *rate.Reservation {
	return g.get(gatewayID).Reserve()
}

// Tokens reports the currently available tokens per known gateway.
func (g *GatewayLimiter) Tokens() map[string]float64 {
	g.mu.RLock()
	defer g.mu.RUnlock()
	tokens := make(map[string]float64, len(g.gateways))
	for id, limiter := range g.gateways {
		tokens[id] = limiter.Tokens()
	}
	return tokens
}
