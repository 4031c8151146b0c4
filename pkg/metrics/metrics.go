package metrics

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"slices"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
)

var (
	// ErrLabelCountMismatch is returned when the label values don't match the label names.
	ErrLabelCountMismatch = errors.New("label count mismatch")
	// ErrNegativeCounterValue is returned when a counter would decrease.
	ErrNegativeCounterValue = errors.New("counter cannot be decreased")
	// ErrDuplicateMetric is returned when a metric name is registered twice.
	ErrDuplicateMetric = errors.New("duplicate metric name")
)

// MetricType is the exposition type of a metric family.
type MetricType string

const (
	MetricTypeCounter   MetricType = "counter"
	MetricTypeGauge     MetricType = "gauge"
	MetricTypeHistogram MetricType = "histogram"
)

// DefaultBuckets are request duration buckets in seconds.
var DefaultBuckets = []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10}

// atomicFloat64 stores float64 bits for lock-free updates.
type atomicFloat64 struct {
	bits atomic.Uint64
}

func (a *atomicFloat64) Load() float64 { return math.Float64frombits(a.bits.Load()) }

func (a *atomicFloat64) Store(v float64) { a.bits.Store(math.Float64bits(v)) }

func (a *atomicFloat64) Add(delta float64) {
	for {
		old := a.bits.Load()
		next := math.Float64bits(math.Float64frombits(old) + delta)
		if a.bits.CompareAndSwap(old, next) {
			return
		}
	}
}

// series is one label combination of a family.
type series struct {
	values []string
	value  atomicFloat64
	// histogram only
	buckets []atomic.Uint64
	count   atomic.Uint64
}

// family holds every series of one metric name.
type family struct {
	name       string
	help       string
	typ        MetricType
	labelNames []string
	buckets    []float64

	mu     sync.RWMutex
	series map[string]*series
}

func (f *family) get(values []string) (*series, error) {
	if len(values) != len(f.labelNames) {
		return nil, fmt.Errorf("%w: %s expects %d labels, got %d", ErrLabelCountMismatch, f.name, len(f.labelNames), len(values))
	}
	key := strings.Join(values, "\x00")

	f.mu.RLock()
	s, ok := f.series[key]
	f.mu.RUnlock()
	if ok {
		return s, nil
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if s, ok = f.series[key]; ok {
		return s, nil
	}
	s = &series{values: slices.Clone(values)}
	if f.typ == MetricTypeHistogram {
		s.buckets = make([]atomic.Uint64, len(f.buckets))
	}
	f.series[key] = s
	return s, nil
}

func (f *family) lookup(values []string) *series {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.series[strings.Join(values, "\x00")]
}

// sorted returns the series ordered by label values.
func (f *family) sorted() []*series {
	f.mu.RLock()
	out := make([]*series, 0, len(f.series))
	for _, s := range f.series {
		out = append(out, s)
	}
	f.mu.RUnlock()
	slices.SortFunc(out, func(a, b *series) int { return slices.Compare(a.values, b.values) })
	return out
}

// Counter only goes up.
type Counter struct{ f *family }

// Inc adds one to the series named by labels.
func (c *Counter) Inc(labels ...string) error { return c.Add(1, labels...) }

// Add adds delta to the series named by labels.
func (c *Counter) Add(delta float64, labels ...string) error {
	if delta < 0 {
		return fmt.Errorf("%w: %s", ErrNegativeCounterValue, c.f.name)
	}
	s, err := c.f.get(labels)
	if err != nil {
		return err
	}
	s.value.Add(delta)
	return nil
}

// Value returns the current value of a series, zero when absent.
func (c *Counter) Value(labels ...string) float64 { return value(c.f, labels) }

// Gauge goes up and down.
type Gauge struct{ f *family }

// Set replaces the value of the series named by labels.
func (g *Gauge) Set(v float64, labels ...string) error {
	s, err := g.f.get(labels)
	if err != nil {
		return err
	}
	s.value.Store(v)
	return nil
}

// Add adds delta, which may be negative.
func (g *Gauge) Add(delta float64, labels ...string) error {
	s, err := g.f.get(labels)
	if err != nil {
		return err
	}
	s.value.Add(delta)
	return nil
}

// Value returns the current value of a series, zero when absent.
func (g *Gauge) Value(labels ...string) float64 { return value(g.f, labels) }

// Histogram counts observations into cumulative buckets.
type Histogram struct{ f *family }

// Observe records v in the series named by labels.
func (h *Histogram) Observe(v float64, labels ...string) error {
	s, err := h.f.get(labels)
	if err != nil {
		return err
	}
	for i, upper := range h.f.buckets {
		if v <= upper {
			s.buckets[i].Add(1)
		}
	}
	s.count.Add(1)
	s.value.Add(v)
	return nil
}

// Count returns the number of observations of a series.
func (h *Histogram) Count(labels ...string) uint64 {
	if s := h.f.lookup(labels); s != nil {
		return s.count.Load()
	}
	return 0
}

func value(f *family, labels []string) float64 {
	if s := f.lookup(labels); s != nil {
		return s.value.Load()
	}
	return 0
}

// Registry owns metric families and renders them.
type Registry struct {
	mu        sync.RWMutex
	families  []*family
	names     map[string]struct{}
	onCollect []func()
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{names: make(map[string]struct{})}
}

// NewCounter registers a counter.
func (r *Registry) NewCounter(name, help string, labels ...string) *Counter {
	return &Counter{f: r.register(name, help, MetricTypeCounter, labels, nil)}
}

// NewGauge registers a gauge.
func (r *Registry) NewGauge(name, help string, labels ...string) *Gauge {
	return &Gauge{f: r.register(name, help, MetricTypeGauge, labels, nil)}
}

// NewHistogram registers a histogram. Nil buckets use DefaultBuckets.
func (r *Registry) NewHistogram(name, help string, buckets []float64, labels ...string) *Histogram {
	if len(buckets) == 0 {
		buckets = DefaultBuckets
	}
	buckets = slices.Clone(buckets)
	slices.Sort(buckets)
	return &Histogram{f: r.register(name, help, MetricTypeHistogram, labels, buckets)}
}

// OnCollect registers fn to run before every exposition, to refresh
// gauges computed on demand.
func (r *Registry) OnCollect(fn func()) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onCollect = append(r.onCollect, fn)
}

// register panics on duplicate names since they produce invalid output.
func (r *Registry) register(name, help string, typ MetricType, labels []string, buckets []float64) *family {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.names[name]; exists {
		panic(fmt.Sprintf("%s: %s", ErrDuplicateMetric, name))
	}
	f := &family{
		name:       name,
		help:       help,
		typ:        typ,
		labelNames: slices.Clone(labels),
		buckets:    buckets,
		series:     make(map[string]*series),
	}
	if len(labels) == 0 {
		// Unlabelled metrics are always exposed, starting at zero.
		_, _ = f.get(nil)
	}
	r.names[name] = struct{}{}
	r.families = append(r.families, f)
	return f
}

// WriteText renders every family in registration order.
func (r *Registry) WriteText(w io.Writer) error {
	r.mu.RLock()
	hooks := slices.Clone(r.onCollect)
	families := slices.Clone(r.families)
	r.mu.RUnlock()

	for _, fn := range hooks {
		fn()
	}

	bw := bufio.NewWriter(w)
	for _, f := range families {
		writeFamily(bw, f)
	}
	return bw.Flush()
}

// Handler serves the text exposition.
func (r *Registry) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")
		_ = r.WriteText(w)
	})
}

func writeFamily(w *bufio.Writer, f *family) {
	all := f.sorted()
	if len(all) == 0 {
		return
	}
	fmt.Fprintf(w, "# HELP %s %s\n", f.name, escapeHelp(f.help))
	fmt.Fprintf(w, "# TYPE %s %s\n", f.name, f.typ)

	for _, s := range all {
		if f.typ != MetricTypeHistogram {
			writeSample(w, f.name, formatLabels(f.labelNames, s.values, "", ""), s.value.Load())
			continue
		}
		for i, upper := range f.buckets {
			writeSample(w, f.name+"_bucket", formatLabels(f.labelNames, s.values, "le", formatFloat(upper)), float64(s.buckets[i].Load()))
		}
		count := float64(s.count.Load())
		writeSample(w, f.name+"_bucket", formatLabels(f.labelNames, s.values, "le", "+Inf"), count)
		labels := formatLabels(f.labelNames, s.values, "", "")
		writeSample(w, f.name+"_sum", labels, s.value.Load())
		writeSample(w, f.name+"_count", labels, count)
	}
}

func writeSample(w *bufio.Writer, name, labels string, v float64) {
	if labels == "" {
		fmt.Fprintf(w, "%s %s\n", name, formatFloat(v))
		return
	}
	fmt.Fprintf(w, "%s{%s} %s\n", name, labels, formatFloat(v))
}

// formatLabels renders name="value" pairs in declaration order, with an
// optional extra pair appended.
func formatLabels(names, values []string, extraName, extraValue string) string {
	parts := make([]string, 0, len(names)+1)
	for i, name := range names {
		parts = append(parts, name+`="`+escapeLabelValue(values[i])+`"`)
	}
	if extraName != "" {
		parts = append(parts, extraName+`="`+escapeLabelValue(extraValue)+`"`)
	}
	return strings.Join(parts, ",")
}

func formatFloat(v float64) string {
	switch {
	case math.IsNaN(v):
		return "NaN"
	case math.IsInf(v, 1):
		return "+Inf"
	case math.IsInf(v, -1):
		return "-Inf"
	}
	return strconv.FormatFloat(v, 'g', -1, 64)
}

func escapeHelp(s string) string {
	return strings.NewReplacer(`\`, `\\`, "\n", `\n`).Replace(s)
}

func escapeLabelValue(s string) string {
	return strings.NewReplacer(`\`, `\\`, `"`, `\"`, "\n", `\n`).Replace(s)
}
