package key

import (
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

const (
	Accepted      = IntKey("th.accepted")
	Batch         = IntKey("th.batch")
	CorrelationID = StringKey("th.correlation_id")
	Count         = IntKey("th.count")
	DedupWindow   = DurationKey("th.dedup_window")
	Deduped       = IntKey("th.deduped")
	Direction     = StringKey("th.direction")
	Duplicates    = IntKey("th.duplicates")
	DurationMS    = DurationKey("th.duration_ms")
	Endpoint      = StringKey("th.endpoint")
	Environment   = StringKey("th.environment")
	HotTTL        = DurationKey("th.hot_ttl")
	Inserted      = IntKey("th.inserted")
	Port          = IntKey("th.port")
	Rate          = Float64Key("th.rate")
	Removed       = Int64Key("th.removed")
	Retention     = DurationKey("th.retention")
	Server        = StringKey("th.server")
	SourceID      = StringKey("th.source_id")
	State         = StringKey("th.state")
	Tick          = DurationKey("th.tick")
	Tier          = StringKey("th.tier")
	Version       = Uint64Key("th.version")
	WarmTTL       = DurationKey("th.warm_ttl")
)

type StringKey string

func (sk StringKey) Field(value string) zap.Field {
	return zap.String(string(sk), value)
}

func (sk StringKey) Attribute(value string) attribute.KeyValue {
	return attribute.String(string(sk), value)
}

type IntKey string

func (ik IntKey) Field(value int) zap.Field {
	return zap.Int(string(ik), value)
}

func (ik IntKey) Attribute(value int) attribute.KeyValue {
	return attribute.Int(string(ik), value)
}

type Int64Key string

func (ik Int64Key) Field(value int64) zap.Field {
	return zap.Int64(string(ik), value)
}

func (ik Int64Key) Attribute(value int64) attribute.KeyValue {
	return attribute.Int64(string(ik), value)
}

type Uint64Key string

func (uk Uint64Key) Field(value uint64) zap.Field {
	return zap.Uint64(string(uk), value)
}

func (uk Uint64Key) Attribute(value uint64) attribute.KeyValue {
	return attribute.Int64(string(uk), int64(value))
}

type Float64Key string

func (fk Float64Key) Field(value float64) zap.Field {
	return zap.Float64(string(fk), value)
}

func (fk Float64Key) Attribute(value float64) attribute.KeyValue {
	return attribute.Float64(string(fk), value)
}

type DurationKey string

func (dk DurationKey) Field(value time.Duration) zap.Field {
	return zap.Duration(string(dk), value)
}

func (dk DurationKey) Attribute(value time.Duration) attribute.KeyValue {
	return attribute.Float64(string(dk), float64(value.Milliseconds()))
}
