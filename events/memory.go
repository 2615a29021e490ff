package events

import (
	"context"
	"slices"
	"sync"

	"github.com/google/uuid"
)

// MemoryStore keeps everything in process. It backs the one-off CLI
// commands when no database is configured and the refresher tests.
type MemoryStore struct {
	mu       sync.RWMutex
	byUser   map[string][]PersonalEvent
	watchers map[string]map[int]*watcher
	nextID   int
}

type watcher struct {
	onUpdate func([]PersonalEvent)
	onError  func(error)
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		byUser:   make(map[string][]PersonalEvent),
		watchers: make(map[string]map[int]*watcher),
	}
}

func (s *MemoryStore) List(ctx context.Context, userID string) ([]PersonalEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshotLocked(userID), nil
}

func (s *MemoryStore) Put(ctx context.Context, userID string, event PersonalEvent) (string, error) {
	if event.ID == "" {
		event.ID = uuid.New().String()
	}
	event.Date = AsCalendarDate(event.Date)

	s.mu.Lock()
	current := s.byUser[userID]
	replaced := false
	for i, existing := range current {
		if existing.ID == event.ID {
			current[i] = event
			replaced = true
			break
		}
	}
	if !replaced {
		current = append(current, event)
	}
	s.byUser[userID] = current
	s.mu.Unlock()

	s.notify(userID)
	return event.ID, nil
}

func (s *MemoryStore) Delete(ctx context.Context, userID string, eventID string) error {
	s.mu.Lock()
	current := s.byUser[userID]
	s.byUser[userID] = slices.DeleteFunc(current, func(e PersonalEvent) bool {
		return e.ID == eventID
	})
	s.mu.Unlock()

	s.notify(userID)
	return nil
}

func (s *MemoryStore) Subscribe(
	ctx context.Context,
	userID string,
	onUpdate func([]PersonalEvent),
	onError func(error),
) (Unsubscribe, error) {
	s.mu.Lock()
	if s.watchers[userID] == nil {
		s.watchers[userID] = make(map[int]*watcher)
	}
	id := s.nextID
	s.nextID++
	s.watchers[userID][id] = &watcher{onUpdate: onUpdate, onError: onError}
	initial := s.snapshotLocked(userID)
	s.mu.Unlock()

	onUpdate(initial)

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.watchers[userID], id)
			s.mu.Unlock()
		})
	}, nil
}

func (s *MemoryStore) notify(userID string) {
	s.mu.RLock()
	snapshot := s.snapshotLocked(userID)
	targets := make([]*watcher, 0, len(s.watchers[userID]))
	for _, w := range s.watchers[userID] {
		targets = append(targets, w)
	}
	s.mu.RUnlock()

	for _, w := range targets {
		w.onUpdate(snapshot)
	}
}

func (s *MemoryStore) snapshotLocked(userID string) []PersonalEvent {
	current := s.byUser[userID]
	snapshot := make([]PersonalEvent, len(current))
	copy(snapshot, current)
	return snapshot
}
