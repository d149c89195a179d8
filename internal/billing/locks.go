package billing

import (
	"sync"

	"github.com/google/uuid"
)

// subscriptionLocks сериализует мутации по подписке.
// Проигравший запрос не ждет: он сразу получает отказ,
// чтобы не применить прорацию или возврат дважды.
type subscriptionLocks struct {
	mu   sync.Mutex
	held map[uuid.UUID]struct{}
}

func newSubscriptionLocks() *subscriptionLocks {
	return &subscriptionLocks{held: make(map[uuid.UUID]struct{})}
}

// TryAcquire пытается захватить подписку; false — кто-то уже работает с ней
func (l *subscriptionLocks) TryAcquire(id uuid.UUID) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, taken := l.held[id]; taken {
		return false
	}
	l.held[id] = struct{}{}
	return true
}

// Release освобождает подписку
func (l *subscriptionLocks) Release(id uuid.UUID) {
	l.mu.Lock()
	defer l.mu.Unlock()

	delete(l.held, id)
}
