// Command schoolauth-loadtest drives the auth engine against Redis (or an
// embedded miniredis) and reports latency percentiles for login, access
// token validation and refresh rotation.
package main

import (
	"context"
	"flag"
	"fmt"
	"math/rand/v2"
	"os"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/maxmusicschool/schoolauth"
	"github.com/maxmusicschool/schoolauth/cache"
	"github.com/maxmusicschool/schoolauth/records"
	"github.com/maxmusicschool/schoolauth/school"
	"github.com/redis/go-redis/v9"
)

type userState struct {
	email   string
	access  string
	refresh string
	mu      sync.Mutex
}

func main() {
	var (
		users       = flag.Int("users", 2000, "number of students to seed and log in")
		concurrency = flag.Int("concurrency", 64, "number of concurrent workers")
		ops         = flag.Int("ops", 50000, "operations per phase (validate, refresh)")
		redisAddr   = flag.String("redis-addr", "", "redis address; if empty, REDIS_ADDR env or miniredis is used")
	)
	flag.Parse()

	if *users <= 0 || *concurrency <= 0 || *ops <= 0 {
		fmt.Fprintln(os.Stderr, "users, concurrency, and ops must be > 0")
		os.Exit(2)
	}
	if err := run(*users, *concurrency, *ops, *redisAddr); err != nil {
		fmt.Fprintf(os.Stderr, "loadtest: %v\n", err)
		os.Exit(1)
	}
}

func run(users, concurrency, ops int, addr string) error {
	ctx := context.Background()

	if addr == "" {
		addr = os.Getenv("REDIS_ADDR")
	}
	if addr == "" {
		mr, err := miniredis.Run()
		if err != nil {
			return fmt.Errorf("start miniredis: %w", err)
		}
		defer mr.Close()
		addr = mr.Addr()
		fmt.Printf("using miniredis at %s\n", addr)
	} else {
		fmt.Printf("using redis at %s\n", addr)
	}
	rdb := redis.NewClient(&redis.Options{Addr: addr})
	defer rdb.Close()

	store := records.NewMemoryStore()
	states := make([]userState, users)
	for i := range users {
		s := seedStudent(i)
		if _, err := store.CreateStudent(ctx, s); err != nil {
			return fmt.Errorf("seed student: %w", err)
		}
		states[i].email = s.Email
	}

	cfg := schoolauth.DefaultConfig()
	cfg.JWT.AccessSecret = []byte("loadtest-access-secret-0123456789abcdef")
	cfg.JWT.RefreshSecret = []byte("loadtest-refresh-secret-0123456789abcdef")
	cfg.Password.AllowLegacyPlaintext = true
	cfg.Password.UpgradeOnLogin = false
	cfg.Metrics.Enabled = true

	metrics := schoolauth.NewMetrics(cfg.Metrics)
	transport := cache.NewRedisTransport(rdb, cache.RedisOptions{})
	caches := school.NewCaches(transport, school.CacheOptions{Observer: metrics.CacheObserver()})
	engine, err := schoolauth.New().
		WithConfig(cfg).
		WithRedis(rdb).
		WithCache(transport).
		WithDirectory(school.NewDirectory(store, caches)).
		WithMetrics(metrics).
		Build()
	if err != nil {
		return err
	}
	if err := engine.Initialize(ctx); err != nil {
		return err
	}
	defer engine.Close()

	loginStats := runPhase(users, concurrency, func(_ *rand.Rand, i int) error {
		res, err := engine.Login(ctx, schoolauth.LoginRequest{Email: states[i].email, Password: "pw", Role: schoolauth.RoleStudent})
		if err != nil {
			return err
		}
		states[i].access, states[i].refresh = res.AccessToken, res.RefreshToken
		return nil
	})

	validateStats := runPhase(ops, concurrency, func(r *rand.Rand, _ int) error {
		st := &states[r.IntN(len(states))]
		st.mu.Lock()
		token := st.access
		st.mu.Unlock()
		_, err := engine.Validate(ctx, token)
		return err
	})

	refreshStats := runPhase(ops, concurrency, func(r *rand.Rand, _ int) error {
		st := &states[r.IntN(len(states))]
		st.mu.Lock()
		defer st.mu.Unlock()
		pair, err := engine.Refresh(ctx, st.refresh)
		if err != nil {
			return err
		}
		st.access, st.refresh = pair.AccessToken, pair.RefreshToken
		return nil
	})

	fmt.Println("---- results ----")
	printStats("login", loginStats)
	printStats("validate", validateStats)
	printStats("refresh", refreshStats)

	snap := engine.MetricsSnapshot()
	fmt.Printf("cache: hit=%d miss=%d bypass=%d\n",
		snap.Counters[schoolauth.MetricCacheHit],
		snap.Counters[schoolauth.MetricCacheMiss],
		snap.Counters[schoolauth.MetricCacheBypass],
	)
	return nil
}

// runPhase performs ops calls of fn spread over concurrency workers. fn
// receives a worker-local random source and the operation index.
func runPhase(ops, concurrency int, fn func(r *rand.Rand, i int) error) phaseStats {
	var (
		wg        sync.WaitGroup
		cursor    atomic.Int64
		failures  atomic.Int64
		latencies = make([]time.Duration, 0, ops)
		mu        sync.Mutex
	)

	start := time.Now()
	for w := range concurrency {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r := rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), uint64(w)*7919))
			for {
				i := int(cursor.Add(1)) - 1
				if i >= ops {
					return
				}
				t0 := time.Now()
				err := fn(r, i)
				d := time.Since(t0)
				if err != nil {
					failures.Add(1)
				}
				mu.Lock()
				latencies = append(latencies, d)
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	return computeStats(time.Since(start), latencies, failures.Load())
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
	slices.Sort(samples)
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

// percentile expects sorted samples.
func percentile(samples []time.Duration, p int) time.Duration {
	if len(samples) == 0 {
		return 0
	}
	p = min(max(p, 0), 100)
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

func seedStudent(i int) records.Student {
	return records.Student{
		ID:           fmt.Sprintf("load-%d", i),
		Name:         fmt.Sprintf("Student %d", i),
		Email:        fmt.Sprintf("student%d@load.test", i),
		BatchName:    fmt.Sprintf("Batch %d", i%20),
		PasswordHash: "pw",
		ClassDays:    "Mon-Wed-Fri",
		TimeFrom:     "17:00",
		TimeTill:     "18:00",
		Mode:         records.ModeOnline,
		Status:       records.StatusActive,
	}
}
