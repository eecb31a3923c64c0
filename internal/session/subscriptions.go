package session

import (
	"sync"

	"go.uber.org/zap"
)

// AccountChange is emitted when the signing account or its network changes.
type AccountChange struct {
	Address string `json:"address"`
	ChainID int64  `json:"chain_id"`
}

type Callback func(AccountChange)

// Subscriptions keeps callbacks interested in account changes.
type Subscriptions struct {
	mu        sync.RWMutex
	nextID    uint64
	callbacks map[uint64]Callback
	logger    *zap.Logger
}

func NewSubscriptions(logger *zap.Logger) *Subscriptions {
	return &Subscriptions{
		callbacks: make(map[uint64]Callback),
		logger:    logger,
	}
}

// Register adds cb and returns the function that removes it again.
func (s *Subscriptions) Register(cb Callback) (unregister func()) {
	s.mu.Lock()
	s.nextID++
	id := s.nextID
	s.callbacks[id] = cb
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.callbacks, id)
			s.mu.Unlock()
		})
	}
}

func (s *Subscriptions) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.callbacks)
}

// Notify calls every registered callback. A panicking callback is logged and
// does not stop the others.
func (s *Subscriptions) Notify(change AccountChange) {
	s.mu.RLock()
	callbacks := make([]Callback, 0, len(s.callbacks))
	for _, cb := range s.callbacks {
		callbacks = append(callbacks, cb)
	}
	s.mu.RUnlock()

	s.logger.Info("Account change",
		zap.String("address", change.Address),
		zap.Int64("chain_id", change.ChainID),
		zap.Int("subscribers", len(callbacks)))

	for _, cb := range callbacks {
		s.invoke(cb, change)
	}
}

func (s *Subscriptions) invoke(cb Callback, change AccountChange) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("Account change callback panicked", zap.Any("panic", r))
		}
	}()
	cb(change)
}
