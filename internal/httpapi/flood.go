package httpapi

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/MrEthical07/authcore/internal/logx"
)

// FloodConfig bounds requests per client IP on one replica. It sits in
// front of the engine's shared Redis limits and only absorbs bursts.
type FloodConfig struct {
	RequestsPerWindow int
	Window            time.Duration
	Burst             int
}

func (c FloodConfig) enabled() bool {
	return c.RequestsPerWindow > 0 && c.Window > 0
}

type floodGuard struct {
	limiters    sync.Map // map[string]*rate.Limiter
	limit       rate.Limit
	burst       int
	mu          sync.Mutex
	lastCleanup time.Time
}

func newFloodGuard(cfg FloodConfig) *floodGuard {
	burst := cfg.Burst
	if burst <= 0 {
		burst = cfg.RequestsPerWindow
	}
	return &floodGuard{
		limit:       rate.Limit(float64(cfg.RequestsPerWindow) / cfg.Window.Seconds()),
		burst:       burst,
		lastCleanup: time.Now(),
	}
}

func (g *floodGuard) limiter(key string) *rate.Limiter {
	if l, ok := g.limiters.Load(key); ok {
		return l.(*rate.Limiter)
	}
	actual, _ := g.limiters.LoadOrStore(key, rate.NewLimiter(g.limit, g.burst))
	g.maybeCleanup()
	return actual.(*rate.Limiter)
}

// maybeCleanup drops idle limiters at most once every five minutes. A
// limiter with a full bucket has not been used recently.
func (g *floodGuard) maybeCleanup() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if time.Since(g.lastCleanup) < 5*time.Minute {
		return
	}
	g.lastCleanup = time.Now()
	g.limiters.Range(func(key, value any) bool {
		if value.(*rate.Limiter).Tokens() >= float64(g.burst) {
			g.limiters.Delete(key)
		}
		return true
	})
}

func (g *floodGuard) middleware(trustProxy bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := ClientIP(r, trustProxy)
			l := g.limiter(key)
			if l.Allow() {
				next.ServeHTTP(w, r)
				return
			}

			reservation := l.Reserve()
			delay := reservation.Delay()
			reservation.Cancel()
			retryAfter := max(int(delay.Seconds()), 1)

			logx.FromContext(r.Context()).Warn("flood guard tripped",
				"ip", key,
				"path", r.URL.Path,
				"retry_after", retryAfter,
			)
			w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
			WriteJSON(w, http.StatusTooManyRequests, errorBody{
				Error:   "rate_limited",
				Message: "Too many requests. Please try again later.",
			})
		})
	}
}
