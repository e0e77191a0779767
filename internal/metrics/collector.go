package metrics

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"runtime"
	"strings"
	"sync"
	"time"

	bolt "go.etcd.io/bbolt"
)

// AccountsProvider lists the user namespaces held by the document store
type AccountsProvider interface {
	Users(ctx context.Context) ([]string, error)
}

var (
	bucketMetrics = []byte("metrics")
	keyCounters   = []byte("counters")
)

const labelSep = "|"

var (
	globalColl   *Collector
	globalCollMu sync.RWMutex
)

// SetGlobalCollector makes the Inc helpers persist through c
func SetGlobalCollector(c *Collector) {
	globalCollMu.Lock()
	defer globalCollMu.Unlock()
	globalColl = c
}

func globalCollector() *Collector {
	globalCollMu.RLock()
	defer globalCollMu.RUnlock()
	return globalColl
}

// counts maps family -> joined label values -> total
type counts map[string]map[string]float64

func (cs counts) add(family, key string, v float64) {
	if cs[family] == nil {
		cs[family] = make(map[string]float64)
	}
	cs[family][key] += v
}

func (cs counts) clone() counts {
	out := make(counts, len(cs))
	for family, values := range cs {
		for k, v := range values {
			out.add(family, k, v)
		}
	}
	return out
}

// Collector keeps counter totals in the document store's bolt file so the
// console's counters continue across restarts, and refreshes the gauges.
type Collector struct {
	db            *bolt.DB
	metrics       *Metrics
	accounts      AccountsProvider
	storagePath   string
	flushInterval time.Duration
	startTime     time.Time

	mu     sync.Mutex
	totals counts

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

func NewCollector(db *bolt.DB, m *Metrics, accounts AccountsProvider, storagePath string, flushInterval time.Duration) (*Collector, error) {
	if flushInterval <= 0 {
		flushInterval = 10 * time.Second
	}

	c := &Collector{
		db:            db,
		metrics:       m,
		accounts:      accounts,
		storagePath:   storagePath,
		flushInterval: flushInterval,
		startTime:     time.Now(),
		totals:        make(counts),
		stopCh:        make(chan struct{}),
	}
	if err := c.restore(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Collector) Start(ctx context.Context) {
	c.wg.Add(1)
	go c.run(ctx)
}

// Stop ends the background loop and writes the final totals
func (c *Collector) Stop() error {
	c.stopOnce.Do(func() { close(c.stopCh) })
	c.wg.Wait()
	return c.flush()
}

// Add increments a counter family by one and records it for persistence
func (c *Collector) Add(family string, labels ...string) {
	vec := c.metrics.counter(family)
	if vec == nil {
		return
	}
	c.mu.Lock()
	c.totals.add(family, strings.Join(labels, labelSep), 1)
	c.mu.Unlock()
	vec.WithLabelValues(labels...).Inc()
}

// Total returns the persisted-side total for one label set
func (c *Collector) Total(family string, labels ...string) float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.totals[family][strings.Join(labels, labelSep)]
}

// restore seeds the counters from the last flush. Unknown families and
// label sets with the wrong arity are skipped.
func (c *Collector) restore() error {
	var saved counts
	err := c.db.Update(func(tx *bolt.Tx) error {
		bucket, err := tx.CreateBucketIfNotExists(bucketMetrics)
		if err != nil {
			return err
		}
		data := bucket.Get(keyCounters)
		if data == nil {
			return nil
		}
		if err := json.Unmarshal(data, &saved); err != nil {
			slog.Warn("discarding unreadable metrics snapshot", "error", err)
			saved = nil
		}
		return nil
	})
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	for family, values := range saved {
		vec := c.metrics.counter(family)
		if vec == nil {
			continue
		}
		for key, v := range values {
			counter, err := vec.GetMetricWithLabelValues(strings.Split(key, labelSep)...)
			if err != nil {
				continue
			}
			counter.Add(v)
			c.totals.add(family, key, v)
		}
	}
	return nil
}

func (c *Collector) flush() error {
	c.mu.Lock()
	snapshot := c.totals.clone()
	c.mu.Unlock()

	data, err := json.Marshal(snapshot)
	if err != nil {
		return err
	}
	return c.db.Update(func(tx *bolt.Tx) error {
		bucket, err := tx.CreateBucketIfNotExists(bucketMetrics)
		if err != nil {
			return err
		}
		return bucket.Put(keyCounters, data)
	})
}

func (c *Collector) run(ctx context.Context) {
	defer c.wg.Done()

	c.collectSystemMetrics(ctx)

	gauges := time.NewTicker(5 * time.Second)
	defer gauges.Stop()
	flushes := time.NewTicker(c.flushInterval)
	defer flushes.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-c.stopCh:
			return
		case <-gauges.C:
			c.collectSystemMetrics(ctx)
		case <-flushes.C:
			if err := c.flush(); err != nil {
				slog.Warn("failed to persist metrics", "error", err)
			}
		}
	}
}

func (c *Collector) collectSystemMetrics(ctx context.Context) {
	c.metrics.UptimeSeconds.Set(time.Since(c.startTime).Seconds())
	c.metrics.Goroutines.Set(float64(runtime.NumGoroutine()))

	if c.storagePath != "" {
		if info, err := os.Stat(c.storagePath); err == nil {
			c.metrics.StorageUsedBytes.Set(float64(info.Size()))
		}
	}
	if c.accounts != nil {
		if uids, err := c.accounts.Users(ctx); err == nil {
			c.metrics.Accounts.Set(float64(len(uids)))
		}
	}
}
