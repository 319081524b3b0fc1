package port

import "context"

// EventPublisher отправляет события run.appended и run.regression в брокер.
// subject приходит полностью сформированным, вместе с префиксом.
type EventPublisher interface {
	PublishEvent(ctx context.Context, subject string, event interface{}) error
	Close() error
}
