// Package telemetry holds the metric and log sinks the translator emits
// through, and the SDK provider setup behind them. Each metric name maps
// to one lazily registered OTel counter; each log event becomes one OTel log
// record whose body is the prefixed event name.
package telemetry

import (
	"context"
	"sync"
	"time"
	"unicode/utf8"

	"go.opentelemetry.io/otel/attribute"
	otellog "go.opentelemetry.io/otel/log"
	"go.opentelemetry.io/otel/metric"

	"github.com/steveyegge/agentotel/internal/profile"
)

// Counter names, unprefixed.
const (
	MetricSessionCount = "session.count"
	MetricActiveTime   = "active_time.total"
	MetricTokenUsage   = "token.usage"
	MetricCostUsage    = "cost.usage"
	MetricLinesOfCode  = "lines_of_code.count"
	MetricCommitCount  = "commit.count"
	MetricPullRequests = "pull_request.count"
	MetricToolDecision = "tool.decision"
)

// EventNameKey is the well-known attribute carrying the unprefixed event name.
const EventNameKey = "event.name"

// MetricSink increments named counters. name is unprefixed.
type MetricSink interface {
	Add(ctx context.Context, name string, amount float64, attrs []attribute.KeyValue)
}

// LogSink emits one structured log record per call. eventName is unprefixed.
type LogSink interface {
	Emit(ctx context.Context, eventName string, attrs []attribute.KeyValue)
}

type counterSpec struct {
	description string
	unit        string
}

var counterSpecs = map[string]counterSpec{
	MetricSessionCount: {"Count of CLI sessions started", ""},
	MetricActiveTime:   {"Total active time in seconds", "s"},
	MetricTokenUsage:   {"Number of tokens used", "tokens"},
	MetricCostUsage:    {"Cost of the session in USD", "USD"},
	MetricLinesOfCode:  {"Count of lines of code modified", ""},
	MetricCommitCount:  {"Number of git commits created", ""},
	MetricPullRequests: {"Number of pull requests created", ""},
	MetricToolDecision: {"Count of tool permission decisions", ""},
}

// Counters registers one Float64Counter per metric name on first use.
type Counters struct {
	meter   metric.Meter
	profile profile.Profile

	mu       sync.Mutex
	counters map[string]metric.Float64Counter
}

// NewCounters returns a MetricSink on the profile's meter scope.
func NewCounters(mp metric.MeterProvider, p profile.Profile) *Counters {
	return &Counters{
		meter:    mp.Meter(p.MeterScope),
		profile:  p,
		counters: make(map[string]metric.Float64Counter),
	}
}

func (c *Counters) counter(name string) metric.Float64Counter {
	c.mu.Lock()
	defer c.mu.Unlock()
	if ctr, ok := c.counters[name]; ok {
		return ctr
	}
	spec := counterSpecs[name]
	opts := []metric.Float64CounterOption{metric.WithDescription(spec.description)}
	if spec.unit != "" {
		opts = append(opts, metric.WithUnit(spec.unit))
	}
	// Registration only fails for invalid names; the SDK still returns a
	// usable no-op instrument in that case.
	ctr, _ := c.meter.Float64Counter(c.profile.Qualify(name), opts...)
	c.counters[name] = ctr
	return ctr
}

// Add increments the named counter. Non-positive amounts are dropped since
// counters are monotonic.
func (c *Counters) Add(ctx context.Context, name string, amount float64, attrs []attribute.KeyValue) {
	if amount <= 0 {
		return
	}
	c.counter(name).Add(ctx, amount, metric.WithAttributes(attrs...))
}

// EventLogger emits translator log events on the profile's logger scope.
type EventLogger struct {
	logger  otellog.Logger
	profile profile.Profile
	now     func() time.Time
}

// NewEventLogger returns a LogSink backed by lp.
func NewEventLogger(lp otellog.LoggerProvider, p profile.Profile) *EventLogger {
	return &EventLogger{logger: lp.Logger(p.LoggerScope), profile: p, now: time.Now}
}

// Emit sends one log record: body <prefix>.<eventName>, event.name first,
// then attrs in order.
func (l *EventLogger) Emit(ctx context.Context, eventName string, attrs []attribute.KeyValue) {
	var r otellog.Record
	r.SetTimestamp(l.now())
	r.SetBody(otellog.StringValue(l.profile.Qualify(eventName)))
	r.SetSeverity(otellog.SeverityInfo)
	r.SetSeverityText("INFO")
	kvs := make([]otellog.KeyValue, 0, len(attrs)+1)
	kvs = append(kvs, otellog.String(EventNameKey, eventName))
	for _, kv := range attrs {
		kvs = append(kvs, logKV(kv))
	}
	r.AddAttributes(kvs...)
	l.logger.Emit(ctx, r)
}

// logKV converts an attribute to its log API equivalent, type for type.
func logKV(kv attribute.KeyValue) otellog.KeyValue {
	key := string(kv.Key)
	switch kv.Value.Type() {
	case attribute.BOOL:
		return otellog.Bool(key, kv.Value.AsBool())
	case attribute.INT64:
		return otellog.Int64(key, kv.Value.AsInt64())
	case attribute.FLOAT64:
		return otellog.Float64(key, kv.Value.AsFloat64())
	case attribute.STRING:
		return otellog.String(key, kv.Value.AsString())
	case attribute.STRINGSLICE:
		ss := kv.Value.AsStringSlice()
		vals := make([]otellog.Value, len(ss))
		for i, s := range ss {
			vals[i] = otellog.StringValue(s)
		}
		return otellog.Slice(key, vals...)
	default:
		return otellog.String(key, kv.Value.Emit())
	}
}

// Truncate returns at most max runes of s. Multi-byte characters are never
// split. Pass max ≤ 0 to disable truncation.
func Truncate(s string, max int) string {
	if max <= 0 || utf8.RuneCountInString(s) <= max {
		return s
	}
	n := 0
	for i := range s {
		if n == max {
			return s[:i]
		}
		n++
	}
	return s
}
