package ratelimit

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
)

// Параметры окна по умолчанию: 10 запросов в минуту на идентификатор.
const (
	DefaultWindow      = time.Minute
	DefaultMaxRequests = 10
)

// Limiter — внедряемый сервис подсчёта запросов по идентификатору вызывающего.
type Limiter interface {
	// Allow сообщает, укладывается ли вызывающий в лимит окна.
	Allow(ctx context.Context, identifier string) (bool, error)
}

// RedisLimiter считает запросы в Redis (INCR + EXPIRE): окно общее для всех
// экземпляров сервиса. При ошибке Redis пропускает запрос — вступление в
// очередь не должно зависеть от доступности лимитера.
type RedisLimiter struct {
	client *redis.Client
	window time.Duration
	max    int64
	prefix string
}

func NewRedisLimiter(client *redis.Client, window time.Duration, max int) *RedisLimiter {
	if window <= 0 {
		window = DefaultWindow
	}
	if max <= 0 {
		max = DefaultMaxRequests
	}
	return &RedisLimiter{client: client, window: window, max: int64(max), prefix: "ratelimit:"}
}

func (l *RedisLimiter) Allow(ctx context.Context, identifier string) (bool, error) {
	key := l.prefix + identifier
	count, err := l.client.Incr(ctx, key).Result()
	if err != nil {
		log.Println("Лимитер: ошибка Redis, запрос пропущен:", err)
		return true, err
	}
	if count == 1 {
		if err := l.client.Expire(ctx, key, l.window).Err(); err != nil {
			log.Println("Лимитер: не удалось установить TTL окна:", err)
		}
	}
	return count <= l.max, nil
}

// MemoryLimiter — окно в памяти процесса. Используется в тестах и при запуске
// без Redis; лимит при этом действует в пределах одного экземпляра.
type MemoryLimiter struct {
	mu     sync.Mutex
	window time.Duration
	max    int
	hits   map[string][]time.Time
}

func NewMemoryLimiter(window time.Duration, max int) *MemoryLimiter {
	if window <= 0 {
		window = DefaultWindow
	}
	if max <= 0 {
		max = DefaultMaxRequests
	}
	return &MemoryLimiter{window: window, max: max, hits: make(map[string][]time.Time)}
}

func (l *MemoryLimiter) Allow(ctx context.Context, identifier string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	valid := l.hits[identifier][:0]
	for _, t := range l.hits[identifier] {
		if now.Sub(t) < l.window {
			valid = append(valid, t)
		}
	}
	if len(valid) >= l.max {
		l.hits[identifier] = valid
		return false, nil
	}
	l.hits[identifier] = append(valid, now)
	return true, nil
}
