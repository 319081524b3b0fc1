package port

import "context"

// Cache хранит представления latest и trend. Промах кеша возвращается ошибкой,
// вызывающий код в этом случае идет в репозиторий истории.
type Cache interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}) error
	Delete(ctx context.Context, key string) error
	// DeletePattern сбрасывает все окна trend одного слота после append
	DeletePattern(ctx context.Context, pattern string) error
	Close() error
}
