// Command bench runs a synthetic workload against a multi-tier cache and
// exposes a Prometheus /metrics endpoint, adapted from the teacher's
// single-tier load generator to drive manager.Manager's Get/Set paths
// end to end (local tier + optional Redis-backed shared tier) instead of a
// bare cache.Get/Set loop.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"net/http"
	_ "net/http/pprof" // registers /debug/pprof/* on DefaultServeMux
	"runtime"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/IvanBrykalov/multitiercache/tiercache"
	"github.com/IvanBrykalov/multitiercache/tiercache/manager"
	"github.com/IvanBrykalov/multitiercache/tiercache/metrics"
	"github.com/IvanBrykalov/multitiercache/tiercache/tier"
	"github.com/IvanBrykalov/multitiercache/tiercache/tierchain"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
)

func main() {
	var (
		capacity = flag.Int("cap", 100_000, "local tier capacity (entries)")
		shards   = flag.Int("shards", 0, "local tier shard count (0=auto)")
		redisAddr = flag.String("redis", "", "shared-tier Redis address (empty = local tier only)")

		workers  = flag.Int("workers", 2*runtime.GOMAXPROCS(0), "number of worker goroutines")
		duration = flag.Duration("duration", 10*time.Second, "benchmark duration")
		readPct  = flag.Int("reads", 80, "read percentage [0..100]")

		keys    = flag.Int("keys", 1_000_000, "keyspace size")
		zipfS   = flag.Float64("zipf_s", 1.1, "Zipf s > 1 (skew)")
		zipfV   = flag.Float64("zipf_v", 1.0, "Zipf v")
		seed    = flag.Int64("seed", time.Now().UnixNano(), "random seed")
		preload = flag.Int("preload", 0, "preload entries (0 = cap/2)")

		pprofAddr   = flag.String("pprof", "", "serve pprof at addr (e.g. :6060); empty = disabled")
		metricsAddr = flag.String("http", ":8080", "serve Prometheus metrics at addr")
	)
	flag.Parse()

	if *pprofAddr != "" {
		go func() {
			log.Printf("pprof: serving at %s", *pprofAddr)
			log.Println(http.ListenAndServe(*pprofAddr, nil))
		}()
	}

	promAdapter := metrics.New(nil, "multitiercache", "bench", nil)
	http.Handle("/metrics", promhttp.Handler())
	go func() {
		log.Printf("metrics: serving at %s", *metricsAddr)
		log.Println(http.ListenAndServe(*metricsAddr, nil))
	}()

	specs := []tierchain.TierSpec{
		{Backend: tier.NewLocal(tier.LocalConfig{Capacity: *capacity, Shards: *shards}), Level: 1, Promote: false, TTLScale: 1},
	}
	if *redisAddr != "" {
		client := redis.NewClient(&redis.Options{Addr: *redisAddr})
		specs = append(specs, tierchain.TierSpec{
			Backend: tier.NewShared(tier.SharedConfig{Client: client}), Level: 2, Promote: true, TTLScale: 1, Required: true,
		})
	}
	chain, err := tierchain.New(specs)
	if err != nil {
		log.Fatalf("tierchain: %v", err)
	}
	mgr, err := manager.New(manager.Config{Chain: chain})
	if err != nil {
		log.Fatalf("manager: %v", err)
	}
	ctx := context.Background()

	promAdapter.PollEvery(ctx, mgr, time.Second)

	pl := *preload
	if pl == 0 {
		pl = *capacity / 2
	}
	for i := 0; i < pl; i++ {
		k := "k:" + strconv.Itoa(i)
		_ = mgr.Set(ctx, k, tiercache.Value{"v": strconv.Itoa(i)}, tiercache.ShortTerm)
	}

	readPctVal := *readPct
	keysMax := uint64(*keys - 1)
	seedBase := *seed
	zipfSVal := *zipfS
	zipfVVal := *zipfV
	workersN := *workers
	if workersN <= 0 {
		workersN = 1
	}

	var reads, writes, hits, misses, total uint64
	runCtx, cancel := context.WithTimeout(ctx, *duration)
	defer cancel()

	start := time.Now()
	var wg sync.WaitGroup
	wg.Add(workersN)
	for w := 0; w < workersN; w++ {
		go func(id int) {
			defer wg.Done()

			localR := rand.New(rand.NewSource(seedBase + int64(id)*9973))
			localZipf := rand.NewZipf(localR, zipfSVal, zipfVVal, keysMax)

			keyByZipf := func() string {
				return "k:" + strconv.FormatUint(localZipf.Uint64(), 10)
			}

			for {
				select {
				case <-runCtx.Done():
					return
				default:
				}

				atomic.AddUint64(&total, 1)
				if int(localR.Int31n(100)) < readPctVal {
					atomic.AddUint64(&reads, 1)
					if _, ok, _ := mgr.Get(runCtx, keyByZipf()); ok {
						atomic.AddUint64(&hits, 1)
					} else {
						atomic.AddUint64(&misses, 1)
					}
				} else {
					atomic.AddUint64(&writes, 1)
					k := keyByZipf()
					_ = mgr.Set(runCtx, k, tiercache.Value{"v": strconv.Itoa(localR.Int())}, tiercache.ShortTerm)
				}
			}
		}(w)
	}
	wg.Wait()
	elapsed := time.Since(start)

	ops := atomic.LoadUint64(&total)
	readsN := atomic.LoadUint64(&reads)
	writesN := atomic.LoadUint64(&writes)
	hitsN := atomic.LoadUint64(&hits)
	missesN := atomic.LoadUint64(&misses)

	hitRate := 0.0
	if readsN > 0 {
		hitRate = float64(hitsN) / float64(readsN) * 100
	}

	fmt.Printf("tiers=%d cap=%d shards=%d workers=%d keys=%d dur=%v seed=%d\n",
		len(specs), *capacity, *shards, workersN, *keys, elapsed, seedBase)
	fmt.Printf("ops=%d (%.0f ops/s)  reads=%d  writes=%d\n",
		ops, float64(ops)/elapsed.Seconds(), readsN, writesN)
	fmt.Printf("hits=%d  misses=%d  hit-rate=%.2f%%\n", hitsN, missesN, hitRate)

	stats := mgr.Stats(ctx, false)
	fmt.Printf("l1_hits=%d deeper_hits=%d misses=%d promotions=%d\n",
		stats.L1Hits, stats.DeeperHits, stats.Misses, stats.Promotions)

	if shutdownErr := mgr.Shutdown(context.Background()); shutdownErr != nil {
		log.Printf("shutdown: %v", shutdownErr)
	}
}
