package optimize

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/quantfuse/quantfuse/internal/metrics"
)

// BacktestFunc evaluates one parameter combination and returns its metrics
// snapshot. Implementations must be safe for concurrent calls: each
// invocation must own its engine instance, sharing only read-only inputs.
type BacktestFunc func(ctx context.Context, params map[string]float64) (*metrics.Snapshot, error)

// Config controls grid evaluation.
type Config struct {
	// Workers sizes the evaluation pool; 1 means sequential.
	Workers int `yaml:"workers" json:"workers"`
	// RetryBackoff is the delay before the single retry of a failed
	// evaluation.
	RetryBackoff time.Duration `yaml:"retry_backoff" json:"retry_backoff"`
}

// DefaultConfig returns sequential evaluation with a short retry backoff.
func DefaultConfig() Config {
	return Config{Workers: 1, RetryBackoff: 100 * time.Millisecond}
}

// Result is one evaluated combination. Timing is deliberately excluded so
// repeated searches over identical inputs produce identical reports.
type Result struct {
	Params  Combination      `json:"params"`
	Metrics metrics.Snapshot `json:"metrics"`
}

// FailedCombination records a combination that errored after its retry.
type FailedCombination struct {
	Params   Combination `json:"params"`
	Error    string      `json:"error"`
	Attempts int         `json:"attempts"`
}

// Report is the deterministic output of one grid search. Results are sorted
// by parameter tuple regardless of evaluation order.
type Report struct {
	Results    []Result            `json:"results"`
	Failed     []FailedCombination `json:"failed,omitempty"`
	CacheStats CacheStats          `json:"cache_stats"`
	Evaluated  int                 `json:"evaluated"`
	Cancelled  bool                `json:"cancelled,omitempty"`
}

// TopN returns the n best results by a flattened metric name (descending).
func (r *Report) TopN(metric string, n int) []Result {
	sorted := append([]Result(nil), r.Results...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Metrics.Flatten()[metric] > sorted[j].Metrics.Flatten()[metric]
	})
	if n > len(sorted) {
		n = len(sorted)
	}
	return sorted[:n]
}

// Filter returns all results meeting the constraint.
func (r *Report) Filter(keep func(Result) bool) []Result {
	var out []Result
	for _, res := range r.Results {
		if keep(res) {
			out = append(out, res)
		}
	}
	return out
}

// Optimizer drives a BacktestFunc across a parameter grid with memoized
// results. The cache is injected and owned per instance.
type Optimizer struct {
	cfg   Config
	cache ResultCache
}

// New returns an optimizer; a nil cache gets a fresh MemoryCache.
func New(cfg Config, cache ResultCache) *Optimizer {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.RetryBackoff <= 0 {
		cfg.RetryBackoff = 100 * time.Millisecond
	}
	if cache == nil {
		cache = NewMemoryCache()
	}
	return &Optimizer{cfg: cfg, cache: cache}
}

// Cache exposes the optimizer's result cache.
func (o *Optimizer) Cache() ResultCache { return o.cache }

type evaluation struct {
	index  int
	comb   Combination
	result *Result
	failed *FailedCombination
}

// Search evaluates the full cartesian grid against the data identified by
// fingerprint. Cancellation is cooperative: the context is checked between
// combination evaluations, never mid-evaluation. A failed evaluation is
// retried once with backoff, then recorded in the report while siblings
// continue.
func (o *Optimizer) Search(ctx context.Context, grid *Grid, fingerprint string, fn BacktestFunc) (*Report, error) {
	combos := grid.Combinations()
	log.Debug().Int("combinations", len(combos)).Int("workers", o.cfg.Workers).Msg("grid search starting")

	statsBefore := o.cache.Stats()

	jobs := make(chan int)
	evals := make(chan evaluation, len(combos))
	var wg sync.WaitGroup

	for w := 0; w < o.cfg.Workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				evals <- o.evaluate(ctx, combos[i], fingerprint, fn)
			}
		}()
	}

	cancelled := false
	dispatched := 0
	for i := range combos {
		if ctx.Err() != nil {
			cancelled = true
			break
		}
		jobs <- i
		dispatched++
	}
	close(jobs)
	wg.Wait()
	close(evals)

	report := &Report{Evaluated: dispatched, Cancelled: cancelled}
	for ev := range evals {
		if ev.failed != nil {
			report.Failed = append(report.Failed, *ev.failed)
		} else if ev.result != nil {
			report.Results = append(report.Results, *ev.result)
		}
	}

	sort.Slice(report.Results, func(i, j int) bool {
		return report.Results[i].Params.Key < report.Results[j].Params.Key
	})
	sort.Slice(report.Failed, func(i, j int) bool {
		return report.Failed[i].Params.Key < report.Failed[j].Params.Key
	})
	// Report the delta over this search only, so a repeated search over
	// identical inputs yields an identical report with a 100% hit rate.
	report.CacheStats = statsDelta(statsBefore, o.cache.Stats())

	log.Debug().
		Int("results", len(report.Results)).
		Int("failed", len(report.Failed)).
		Float64("cache_hit_rate", report.CacheStats.HitRate).
		Msg("grid search complete")

	if cancelled {
		return report, ctx.Err()
	}
	return report, nil
}

func statsDelta(before, after CacheStats) CacheStats {
	s := CacheStats{Hits: after.Hits - before.Hits, Misses: after.Misses - before.Misses}
	if total := s.Hits + s.Misses; total > 0 {
		s.HitRate = float64(s.Hits) / float64(total)
	}
	return s
}

func (o *Optimizer) evaluate(ctx context.Context, comb Combination, fingerprint string, fn BacktestFunc) evaluation {
	key := CacheKey(fingerprint, comb)

	if cached, ok, err := o.cache.Get(ctx, key); err == nil && ok {
		return evaluation{comb: comb, result: &Result{Params: cached.Params, Metrics: cached.Metrics}}
	} else if err != nil {
		log.Warn().Err(err).Str("key", key).Msg("result cache lookup failed, evaluating directly")
	}

	snap, err := fn(ctx, comb.Values)
	attempts := 1
	if err != nil {
		// One retry with backoff covers transient worker exhaustion; a
		// second failure records the combination and lets siblings continue.
		time.Sleep(o.cfg.RetryBackoff)
		snap, err = fn(ctx, comb.Values)
		attempts = 2
	}
	if err != nil {
		return evaluation{comb: comb, failed: &FailedCombination{
			Params:   comb,
			Error:    err.Error(),
			Attempts: attempts,
		}}
	}

	entry := &CachedResult{Params: comb, Metrics: *snap}
	if err := o.cache.PutIfAbsent(ctx, key, entry); err != nil {
		log.Warn().Err(err).Str("key", key).Msg("result cache insert failed")
	}
	return evaluation{comb: comb, result: &Result{Params: comb, Metrics: *snap}}
}
