// Command authcore-loadtest drives Login and ValidateSession concurrently
// against a real engine, then hammers one account with wrong passwords to
// check that the lockout engages.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"math/rand"
	"os"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/MrEthical07/authcore"
	"github.com/MrEthical07/authcore/internal"
	"github.com/MrEthical07/authcore/password"
	"github.com/MrEthical07/authcore/store/memory"
)

const loadPassword = "load test password"

type discardMailer struct{}

func (discardMailer) Send(context.Context, authcore.Email) error { return nil }

type cookieDrop struct{}

func (cookieDrop) SetCookie(authcore.Cookie) {}

func main() {
	var (
		users       = flag.Int("users", 1000, "number of verified accounts to seed")
		concurrency = flag.Int("concurrency", 64, "number of concurrent workers")
		ops         = flag.Int("ops", 20000, "operations per phase")
		attackers   = flag.Int("attackers", 32, "concurrent wrong-password callers in the lockout phase")
		redisAddr   = flag.String("redis-addr", "", "redis address; if empty, REDIS_ADDR env or miniredis is used")
		argonMemory = flag.Uint("argon-memory", 8*1024, "argon2id memory in KiB")
	)
	flag.Parse()

	if *users <= 0 || *concurrency <= 0 || *ops <= 0 || *attackers <= 0 {
		fmt.Fprintln(os.Stderr, "users, concurrency, ops and attackers must be > 0")
		os.Exit(2)
	}

	ctx := context.Background()
	client, cleanup, err := openRedis(*redisAddr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "redis: %v\n", err)
		os.Exit(1)
	}
	defer cleanup()

	cfg := authcore.DefaultConfig()
	cfg.Password.Memory = uint32(*argonMemory)
	cfg.Password.Time = 1
	cfg.RateLimits.RedisPrefix = fmt.Sprintf("lt%d:", time.Now().UnixNano())
	cfg.Session.RedisPrefix = cfg.RateLimits.RedisPrefix
	cfg.RateLimits.Login = authcore.FlowLimit{IdentifierLimit: 1 << 30, IPLimit: 1 << 30, Window: time.Minute}
	cfg.Metrics.EnableLatencyHistograms = true

	store := memory.New()
	engine, err := authcore.New().
		WithConfig(cfg).
		WithRedis(client).
		WithCredentialStore(store).
		WithEmailSender(discardMailer{}).
		WithLogger(slog.New(slog.DiscardHandler)).
		Build()
	if err != nil {
		fmt.Fprintf(os.Stderr, "build engine: %v\n", err)
		os.Exit(1)
	}
	defer engine.Close()

	fmt.Printf("seeding %d users...\n", *users)
	startSeed := time.Now()
	emails, err := seedUsers(ctx, store, cfg, *users)
	if err != nil {
		fmt.Fprintf(os.Stderr, "seed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("seeded in %s\n", time.Since(startSeed).Round(time.Millisecond))

	var (
		sessionsMu sync.Mutex
		sessionIDs []string
	)
	loginStats := runPhase(*ops, *concurrency, func(r *rand.Rand, _ int) error {
		email := emails[r.Intn(len(emails))]
		res, err := engine.Login(authcore.WithClientIP(ctx, randomIP(r)), authcore.LoginRequest{Email: email, Password: loadPassword}, cookieDrop{})
		if err != nil {
			return err
		}
		sessionsMu.Lock()
		sessionIDs = append(sessionIDs, res.SessionID)
		sessionsMu.Unlock()
		return nil
	})

	validateStats := runPhase(*ops, *concurrency, func(r *rand.Rand, _ int) error {
		if len(sessionIDs) == 0 {
			return errors.New("no sessions")
		}
		_, err := engine.ValidateSession(ctx, sessionIDs[r.Intn(len(sessionIDs))], cookieDrop{})
		return err
	})

	lockStats, locks := runLockoutPhase(ctx, engine, emails[0], *attackers)

	fmt.Println("---- results ----")
	printStats("login", loginStats)
	printStats("validate", validateStats)
	printStats("lockout", lockStats)

	// Racing failures past the threshold may each re-apply the lock; the
	// check is that it engaged and the correct password is now refused.
	snap := engine.MetricsSnapshot()
	lockEvents := snap.Counters[authcore.MetricAccountLocked]
	fmt.Printf("lockout: account_locked events=%d locked rejections=%d\n", lockEvents, locks)
	_, probeErr := engine.Login(ctx, authcore.LoginRequest{Email: emails[0], Password: loadPassword}, cookieDrop{})
	if lockEvents == 0 || !errors.Is(probeErr, authcore.ErrAccountLocked) {
		fmt.Fprintf(os.Stderr, "lockout never engaged (probe: %v)\n", probeErr)
		os.Exit(1)
	}
}

func openRedis(addr string) (redis.UniversalClient, func(), error) {
	if addr == "" {
		addr = os.Getenv("REDIS_ADDR")
	}
	if addr != "" {
		client := redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{addr}})
		fmt.Printf("using redis at %s\n", addr)
		return client, func() { _ = client.Close() }, nil
	}
	mr, err := miniredis.Run()
	if err != nil {
		return nil, nil, err
	}
	client := redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{mr.Addr()}})
	fmt.Printf("using miniredis at %s\n", mr.Addr())
	return client, func() {
		_ = client.Close()
		mr.Close()
	}, nil
}

// seedUsers inserts verified accounts sharing one precomputed hash.
func seedUsers(ctx context.Context, store *memory.Store, cfg authcore.Config, n int) ([]string, error) {
	hasher, err := password.NewArgon2(password.Config(cfg.Password))
	if err != nil {
		return nil, err
	}
	hash, err := hasher.Hash(loadPassword)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	emails := make([]string, n)
	for i := 0; i < n; i++ {
		id, err := internal.NewUserID()
		if err != nil {
			return nil, err
		}
		emails[i] = fmt.Sprintf("user%d@load.test", i)
		u := &authcore.User{
			ID:            id,
			Username:      fmt.Sprintf("user%d", i),
			Email:         emails[i],
			PasswordHash:  &hash,
			EmailVerified: true,
			CreatedAt:     now,
			UpdatedAt:     now,
		}
		if err := store.CreateUser(ctx, u); err != nil {
			return nil, err
		}
	}
	return emails, nil
}

// runLockoutPhase fires wrong passwords at one account from many workers.
func runLockoutPhase(ctx context.Context, engine *authcore.Engine, email string, attackers int) (phaseStats, int64) {
	var locked int64
	attempts := engine.Config().Lockout.Threshold * 4
	stats := runPhase(attempts, attackers, func(r *rand.Rand, _ int) error {
		_, err := engine.Login(authcore.WithClientIP(ctx, randomIP(r)), authcore.LoginRequest{Email: email, Password: "wrong " + loadPassword}, cookieDrop{})
		switch {
		case errors.Is(err, authcore.ErrAccountLocked):
			atomic.AddInt64(&locked, 1)
			return nil
		case errors.Is(err, authcore.ErrInvalidCredentials):
			return nil
		default:
			return err
		}
	})
	return stats, locked
}

func runPhase(ops, concurrency int, op func(r *rand.Rand, i int) error) phaseStats {
	var (
		wg        sync.WaitGroup
		cursor    int64
		failures  int64
		latencies = make([]time.Duration, 0, ops)
		mu        sync.Mutex
	)

	start := time.Now()
	for w := 0; w < concurrency; w++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			r := rand.New(rand.NewSource(time.Now().UnixNano() + int64(worker)*7919))
			for {
				i := int(atomic.AddInt64(&cursor, 1)) - 1
				if i >= ops {
					return
				}
				t0 := time.Now()
				err := op(r, i)
				d := time.Since(t0)
				if err != nil {
					atomic.AddInt64(&failures, 1)
				}
				mu.Lock()
				latencies = append(latencies, d)
				mu.Unlock()
			}
		}(w)
	}
	wg.Wait()
	return computeStats(time.Since(start), latencies, failures)
}

func randomIP(r *rand.Rand) string {
	return fmt.Sprintf("10.%d.%d.%d", r.Intn(256), r.Intn(256), 1+r.Intn(254))
}

type phaseStats struct {
	total    time.Duration
	ops      int
	failures int64
	p50      time.Duration
	p95      time.Duration
	p99      time.Duration
	opsPerS  float64
}

func computeStats(total time.Duration, samples []time.Duration, failures int64) phaseStats {
	if len(samples) == 0 {
		return phaseStats{total: total}
	}
	sort.Slice(samples, func(i, j int) bool { return samples[i] < samples[j] })
	return phaseStats{
		total:    total,
		ops:      len(samples),
		failures: failures,
		p50:      percentile(samples, 50),
		p95:      percentile(samples, 95),
		p99:      percentile(samples, 99),
		opsPerS:  float64(len(samples)) / total.Seconds(),
	}
}

func percentile(samples []time.Duration, p int) time.Duration {
	if len(samples) == 0 {
		return 0
	}
	if p <= 0 {
		return samples[0]
	}
	if p >= 100 {
		return samples[len(samples)-1]
	}
	return samples[(len(samples)-1)*p/100]
}

func printStats(name string, s phaseStats) {
	fmt.Printf("%s: ops=%d failures=%d total=%s ops/sec=%.0f p50=%s p95=%s p99=%s\n",
		name,
		s.ops,
		s.failures,
		s.total.Round(time.Millisecond),
		s.opsPerS,
		s.p50.Round(time.Microsecond),
		s.p95.Round(time.Microsecond),
		s.p99.Round(time.Microsecond),
	)
}
