package port

import (
	"context"
	"time"
)

type LogLevel string

const (
	LogLevelDebug LogLevel = "DEBUG"
	LogLevelInfo  LogLevel = "INFO"
	LogLevelWarn  LogLevel = "WARN"
	LogLevelError LogLevel = "ERROR"
)

// LogEntry - запись журнала, пересылаемая во внешнее хранилище логов.
// Service различает процессы API и анализатора в общей группе логов.
type LogEntry struct {
	Timestamp time.Time
	Level     LogLevel
	Service   string
	Message   string
	Fields    map[string]interface{}
}

// LogPublisher буферизует записи и отправляет их пачками
type LogPublisher interface {
	Publish(ctx context.Context, entry LogEntry) error
	PublishBatch(ctx context.Context, entries []LogEntry) error
	// Flush вызывается при остановке, чтобы не потерять хвост буфера
	Flush(ctx context.Context) error
}
