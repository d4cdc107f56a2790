// Package metrics keeps node counters in memory and renders them in the
// Prometheus text exposition format.
package metrics

import (
	"fmt"
	"io"
	"maps"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// MetricType is the Prometheus TYPE of a metric.
type MetricType string

const (
	TypeCounter   MetricType = "counter"
	TypeGauge     MetricType = "gauge"
	TypeHistogram MetricType = "histogram"
)

// Metric is anything Metrics can expose.
type Metric interface {
	Name() string
	Help() string
	Type() MetricType
	writeSamples(w io.Writer)
}

type desc struct {
	name, help string
	kind       MetricType
}

func (d desc) Name() string     { return d.name }
func (d desc) Help() string     { return d.help }
func (d desc) Type() MetricType { return d.kind }

// Counter only goes up.
type Counter struct {
	desc
	n atomic.Uint64
}

func NewCounter(name, help string) *Counter {
	return &Counter{desc: desc{name, help, TypeCounter}}
}

func (c *Counter) Inc()             { c.n.Add(1) }
func (c *Counter) Add(delta uint64) { c.n.Add(delta) }
func (c *Counter) Value() uint64    { return c.n.Load() }

func (c *Counter) writeSamples(w io.Writer) {
	fmt.Fprintf(w, "%s %d\n", c.name, c.Value())
}

// CounterVec is a counter family keyed by a single label.
type CounterVec struct {
	desc
	label string
	byVal sync.Map // string -> *atomic.Uint64
}

func NewCounterVec(name, help, label string) *CounterVec {
	return &CounterVec{desc: desc{name, help, TypeCounter}, label: label}
}

func (v *CounterVec) Inc(value string) {
	n, _ := v.byVal.LoadOrStore(value, new(atomic.Uint64))
	n.(*atomic.Uint64).Add(1)
}

func (v *CounterVec) Value(value string) uint64 {
	if n, ok := v.byVal.Load(value); ok {
		return n.(*atomic.Uint64).Load()
	}
	return 0
}

func (v *CounterVec) writeSamples(w io.Writer) {
	vals := map[string]uint64{}
	v.byVal.Range(func(k, n any) bool {
		vals[k.(string)] = n.(*atomic.Uint64).Load()
		return true
	})
	for _, k := range slices.Sorted(maps.Keys(vals)) {
		fmt.Fprintf(w, "%s{%s=%q} %d\n", v.name, v.label, k, vals[k])
	}
}

// Gauge holds a value that moves both ways.
type Gauge struct {
	desc
	n atomic.Int64
}

func NewGauge(name, help string) *Gauge {
	return &Gauge{desc: desc{name, help, TypeGauge}}
}

func (g *Gauge) Set(v int64)        { g.n.Store(v) }
func (g *Gauge) SetUint64(v uint64) { g.n.Store(int64(v)) }
func (g *Gauge) Add(delta int64)    { g.n.Add(delta) }
func (g *Gauge) Inc()               { g.n.Add(1) }
func (g *Gauge) Dec()               { g.n.Add(-1) }
func (g *Gauge) Value() int64       { return g.n.Load() }

func (g *Gauge) writeSamples(w io.Writer) {
	fmt.Fprintf(w, "%s %d\n", g.name, g.Value())
}

// DurationBuckets are upper bounds in seconds for latency histograms.
var DurationBuckets = []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1}

// Histogram counts observations into fixed buckets.
type Histogram struct {
	desc
	bounds []float64

	mu    sync.Mutex
	hits  []uint64 // per bucket, not cumulative
	sum   float64
	count uint64
}

// NewHistogram sorts bounds; nil selects DurationBuckets.
func NewHistogram(name, help string, bounds []float64) *Histogram {
	if len(bounds) == 0 {
		bounds = DurationBuckets
	}
	bounds = slices.Sorted(slices.Values(bounds))
	return &Histogram{desc: desc{name, help, TypeHistogram}, bounds: bounds, hits: make([]uint64, len(bounds))}
}

func (h *Histogram) Observe(v float64) {
	i, _ := slices.BinarySearch(h.bounds, v)
	h.mu.Lock()
	if i < len(h.hits) {
		h.hits[i]++
	}
	h.sum += v
	h.count++
	h.mu.Unlock()
}

func (h *Histogram) ObserveDuration(d time.Duration) { h.Observe(d.Seconds()) }

// HistogramBucket is a cumulative bucket.
type HistogramBucket struct {
	UpperBound float64
	Count      uint64
}

type HistogramSnapshot struct {
	Buckets []HistogramBucket
	Sum     float64
	Count   uint64
}

// Snapshot returns cumulative bucket counts.
func (h *Histogram) Snapshot() HistogramSnapshot {
	h.mu.Lock()
	defer h.mu.Unlock()
	snap := HistogramSnapshot{Buckets: make([]HistogramBucket, len(h.bounds)), Sum: h.sum, Count: h.count}
	var running uint64
	for i, ub := range h.bounds {
		running += h.hits[i]
		snap.Buckets[i] = HistogramBucket{UpperBound: ub, Count: running}
	}
	return snap
}

func (h *Histogram) writeSamples(w io.Writer) {
	snap := h.Snapshot()
	for _, b := range snap.Buckets {
		fmt.Fprintf(w, "%s_bucket{le=\"%g\"} %d\n", h.name, b.UpperBound, b.Count)
	}
	fmt.Fprintf(w, "%s_bucket{le=\"+Inf\"} %d\n", h.name, snap.Count)
	fmt.Fprintf(w, "%s_sum %.6f\n", h.name, snap.Sum)
	fmt.Fprintf(w, "%s_count %d\n", h.name, snap.Count)
}

// Metrics is the node's metric set.
type Metrics struct {
	TransactionsProcessed *Counter
	TransactionsFailed    *Counter
	SignaturesVerified    *Counter
	Airdrops              *Counter
	Instructions          *CounterVec
	ProgramErrors         *CounterVec

	LedgerHeight  *Gauge
	AccountsCount *Gauge
	MemoryBytes   *Gauge
	Goroutines    *Gauge

	TransactionDuration *Histogram

	all []Metric
}

func NewMetrics() *Metrics {
	m := &Metrics{
		TransactionsProcessed: NewCounter("savefi_transactions_processed_total", "Transactions executed, successful or not."),
		TransactionsFailed:    NewCounter("savefi_transactions_failed_total", "Transactions that failed execution."),
		SignaturesVerified:    NewCounter("savefi_signatures_verified_total", "Ed25519 signatures verified."),
		Airdrops:              NewCounter("savefi_airdrops_total", "Faucet airdrops granted."),
		Instructions:          NewCounterVec("savefi_instructions_total", "Executed instructions by name.", "instruction"),
		ProgramErrors:         NewCounterVec("savefi_program_errors_total", "Failed instructions by error name.", "error"),

		LedgerHeight:  NewGauge("savefi_ledger_height", "Entries in the hash chain."),
		AccountsCount: NewGauge("savefi_accounts_count", "Accounts in the store."),
		MemoryBytes:   NewGauge("savefi_memory_bytes", "Heap bytes allocated."),
		Goroutines:    NewGauge("savefi_goroutines", "Live goroutines."),

		TransactionDuration: NewHistogram("savefi_transaction_duration_seconds", "Transaction processing time.", nil),
	}
	m.all = []Metric{
		m.TransactionsProcessed, m.TransactionsFailed, m.SignaturesVerified, m.Airdrops,
		m.Instructions, m.ProgramErrors,
		m.LedgerHeight, m.AccountsCount, m.MemoryBytes, m.Goroutines,
		m.TransactionDuration,
	}
	slices.SortFunc(m.all, func(a, b Metric) int { return strings.Compare(a.Name(), b.Name()) })
	return m
}

// Get returns the metric registered under name, or nil.
func (m *Metrics) Get(name string) Metric {
	i, ok := slices.BinarySearchFunc(m.all, name, func(x Metric, n string) int { return strings.Compare(x.Name(), n) })
	if !ok {
		return nil
	}
	return m.all[i]
}

// Expose renders every metric, sorted by name.
func (m *Metrics) Expose(w io.Writer) {
	for _, x := range m.all {
		fmt.Fprintf(w, "# HELP %s %s\n# TYPE %s %s\n", x.Name(), x.Help(), x.Name(), x.Type())
		x.writeSamples(w)
	}
}

func (m *Metrics) Format() string {
	var sb strings.Builder
	m.Expose(&sb)
	return sb.String()
}

// RecordTransaction accounts for one executed transaction.
func (m *Metrics) RecordTransaction(success bool, signatures int, took time.Duration) {
	m.TransactionsProcessed.Inc()
	if !success {
		m.TransactionsFailed.Inc()
	}
	m.SignaturesVerified.Add(uint64(signatures))
	m.TransactionDuration.ObserveDuration(took)
}

// RecordInstruction counts an instruction and, when errName is set, the
// error it failed with.
func (m *Metrics) RecordInstruction(name, errName string) {
	m.Instructions.Inc(name)
	if errName != "" {
		m.ProgramErrors.Inc(errName)
	}
}
