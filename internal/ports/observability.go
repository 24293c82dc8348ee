package ports

import "github.com/ghalamif/CamFlow/internal/domain"

type Observability interface {
	LogDebug(msg string, fields ...Field)
	LogInfo(msg string, fields ...Field)
	LogWarn(msg string, fields ...Field)
	LogError(msg string, err error, fields ...Field)
	LogCritical(msg string, err error, fields ...Field)

	IncCounter(name string, v float64)
	ObserveLatency(name string, seconds float64)

	SetGauge(name string, v float64)

	RecordDLQ(id WALEntryID, r *domain.Record, err error)
}

type Field struct {
	Key   string
	Value any
}

// F is shorthand for building a Field.
func F(key string, value any) Field { return Field{Key: key, Value: value} }
