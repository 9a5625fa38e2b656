// Command authcore-loadtest seeds users into an engine backed by Redis and
// measures ValidateToken and RefreshToken throughput under concurrency.
// With -dsn, users and reset tokens live in Postgres instead of memory.
package main

import (
	"context"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/MrEthical07/authcore"
	"github.com/MrEthical07/authcore/internal/logx"
	"github.com/MrEthical07/authcore/metrics/export/prometheus"
	"github.com/MrEthical07/authcore/store/postgres"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

const seedPassword = "L0adtest!Pass"

type userState struct {
	mu      sync.Mutex
	access  string
	refresh string
}

func main() {
	var (
		users       = flag.Int("users", 2000, "number of users to seed, one session each")
		concurrency = flag.Int("concurrency", 64, "number of concurrent workers")
		ops         = flag.Int("ops", 20000, "operations per phase")
		iterations  = flag.Int("iterations", 1000, "PBKDF2 iterations for seeded passwords")
		redisAddr   = flag.String("redis-addr", "", "redis address; if empty, REDIS_ADDR env or miniredis is used")
		configPath  = flag.String("config", "", "optional config file")
		dsn         = flag.String("dsn", "", "postgres DSN for users and reset tokens; if empty, memory stores are used")
		dumpMetrics = flag.Bool("metrics", false, "print Prometheus metrics after the run")
	)
	flag.Parse()

	log := logx.New("development").With().Str("component", "loadtest").Logger()

	if *users <= 0 || *concurrency <= 0 || *ops <= 0 {
		fmt.Fprintln(os.Stderr, "users, concurrency, and ops must be > 0")
		os.Exit(2)
	}

	cfg := authcore.DefaultConfig()
	cfg.JWT.Secret = "loadtest-access-secret-0123456789abcdef"
	cfg.JWT.RefreshSecret = "loadtest-refresh-secret-0123456789abcdef"
	if *configPath != "" {
		loaded, err := authcore.LoadConfig(*configPath)
		if err != nil {
			log.Fatal().Err(err).Msg("load config")
		}
		cfg = loaded
	}
	cfg.Password.Iterations = *iterations
	cfg.Security.MaxLoginAttempts = 1 << 20
	cfg.Metrics.EnableLatencyHistograms = true

	addr := *redisAddr
	if addr == "" {
		addr = os.Getenv("REDIS_ADDR")
	}
	if addr == "" {
		mr, err := miniredis.Run()
		if err != nil {
			log.Fatal().Err(err).Msg("start miniredis")
		}
		defer mr.Close()
		addr = mr.Addr()
		log.Info().Str("addr", addr).Msg("using miniredis")
	} else {
		log.Info().Str("addr", addr).Msg("using redis")
	}
	client := redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{addr}})
	defer client.Close()

	ctx := context.Background()
	builder := authcore.New().
		WithConfig(cfg).
		WithRedis(client).
		WithLogger(log)

	if *dsn != "" {
		db, err := postgres.Open(ctx, *dsn)
		if err != nil {
			log.Fatal().Err(err).Msg("open postgres")
		}
		defer db.Close()
		if err := postgres.Migrate(ctx, db); err != nil {
			log.Fatal().Err(err).Msg("migrate postgres")
		}
		builder = builder.
			WithUserStore(postgres.NewUserStore(db)).
			WithResetTokenStore(postgres.NewResetTokenStore(db))
		log.Info().Msg("using postgres user store")
	}

	engine, err := builder.Build()
	if err != nil {
		log.Fatal().Err(err).Msg("build engine")
	}
	defer engine.Close()

	states := make([]userState, *users)
	startSeed := time.Now()
	run := startSeed.UnixNano()
	for i := range states {
		email := fmt.Sprintf("user-%d-%d@loadtest.local", run, i)
		if _, err := engine.Register(ctx, authcore.RegisterRequest{Email: email, Password: seedPassword}); err != nil {
			log.Fatal().Err(err).Str("email", email).Msg("register")
		}
		res, err := engine.Login(ctx, email, seedPassword)
		if err != nil {
			log.Fatal().Err(err).Str("email", email).Msg("login")
		}
		states[i].access = res.Tokens.AccessToken
		states[i].refresh = res.Tokens.RefreshToken
	}
	log.Info().Int("users", *users).Dur("took", time.Since(startSeed).Round(time.Millisecond)).Msg("seeded")

	validate := runPhase(*ops, *concurrency, len(states), func(idx int) error {
		state := &states[idx]
		state.mu.Lock()
		tok := state.access
		state.mu.Unlock()
		_, _, err := engine.ValidateToken(ctx, tok)
		return err
	})

	refresh := runPhase(*ops, *concurrency, len(states), func(idx int) error {
		state := &states[idx]
		state.mu.Lock()
		defer state.mu.Unlock()
		pair, err := engine.RefreshToken(ctx, state.refresh)
		if err != nil {
			return err
		}
		state.access = pair.AccessToken
		state.refresh = pair.RefreshToken
		return nil
	})

	fmt.Println("---- results ----")
	printStats("validate", validate)
	printStats("refresh", refresh)

	if *dumpMetrics {
		fmt.Print(prometheus.NewExporter(engine).Render())
	}
}

// runPhase spreads ops calls of op over concurrency workers, each picking a
// random user index.
func runPhase(ops, concurrency, n int, op func(idx int) error) phaseStats {
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
				if int(atomic.AddInt64(&cursor, 1)) > ops {
					return
				}
				t0 := time.Now()
				err := op(r.Intn(n))
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
	idx := (len(samples) - 1) * p / 100
	return samples[idx]
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
