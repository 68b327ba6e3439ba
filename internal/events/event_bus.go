// internal/events/event_bus.go
package events

import (
	"sync"
	"time"

	"sports-fixtures-bot/pkg/logger"

	"github.com/google/uuid"
)

// EventType тип события
type EventType string

// События подсистемы кэша и префетча
const (
	FixturesUpdated   EventType = "fixtures.updated"
	PrefetchCompleted EventType = "prefetch.completed"
	CacheFuseTripped  EventType = "cache.fuse_tripped"
)

// Event - одно событие шины
type Event struct {
	Type      EventType              `json:"type"`
	Source    string                 `json:"source"`
	Timestamp time.Time              `json:"timestamp"`
	Payload   map[string]interface{} `json:"payload,omitempty"`
}

// Handler обработчик события
type Handler func(event Event)

// subscription одна подписка
type subscription struct {
	id      string
	handler Handler
}

// EventBus - внутрипроцессная шина событий.
// Межпроцессные уведомления идут через Publish кэша (Redis pub/sub),
// шина покрывает только подписчиков внутри процесса.
type EventBus struct {
	mu          sync.RWMutex
	subscribers map[EventType][]subscription
	buffer      chan Event
	running     bool
	stopChan    chan struct{}
	wg          sync.WaitGroup
}

// NewEventBus создает новую шину событий
func NewEventBus(bufferSize int) *EventBus {
	if bufferSize <= 0 {
		bufferSize = 256
	}
	return &EventBus{
		subscribers: make(map[EventType][]subscription),
		buffer:      make(chan Event, bufferSize),
		stopChan:    make(chan struct{}),
	}
}

// Start запускает воркер доставки событий
func (b *EventBus) Start() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.running {
		return
	}
	b.running = true

	b.wg.Add(1)
	go b.dispatchLoop()
	logger.Info("✅ [EventBus] Запущен (буфер: %d)", cap(b.buffer))
}

// Stop останавливает доставку. Уже опубликованные события доезжают.
func (b *EventBus) Stop() {
	b.mu.Lock()
	if !b.running {
		b.mu.Unlock()
		return
	}
	b.running = false
	b.mu.Unlock()

	close(b.stopChan)
	b.wg.Wait()
	logger.Info("🛑 [EventBus] Остановлен")
}

// Subscribe подписывает обработчик на тип события.
// Возвращает идентификатор подписки для Unsubscribe.
func (b *EventBus) Subscribe(eventType EventType, handler Handler) string {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := uuid.New().String()
	b.subscribers[eventType] = append(b.subscribers[eventType], subscription{
		id:      id,
		handler: handler,
	})
	return id
}

// Unsubscribe снимает подписку по идентификатору
func (b *EventBus) Unsubscribe(eventType EventType, id string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	subs := b.subscribers[eventType]
	for i, sub := range subs {
		if sub.id == id {
			b.subscribers[eventType] = append(subs[:i], subs[i+1:]...)
			return
		}
	}
}

// Publish кладёт событие в буфер, не блокируя издателя.
// При переполненном буфере событие отбрасывается с предупреждением.
func (b *EventBus) Publish(event Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	select {
	case b.buffer <- event:
	default:
		logger.Warn("⚠️ [EventBus] Буфер переполнен, событие %s отброшено", event.Type)
	}
}

// dispatchLoop доставляет события подписчикам
func (b *EventBus) dispatchLoop() {
	defer b.wg.Done()

	for {
		select {
		case event := <-b.buffer:
			b.deliver(event)
		case <-b.stopChan:
			// Добираем остаток буфера перед выходом
			for {
				select {
				case event := <-b.buffer:
					b.deliver(event)
				default:
					return
				}
			}
		}
	}
}

func (b *EventBus) deliver(event Event) {
	b.mu.RLock()
	subs := make([]subscription, len(b.subscribers[event.Type]))
	copy(subs, b.subscribers[event.Type])
	b.mu.RUnlock()

	for _, sub := range subs {
		sub.handler(event)
	}
}
