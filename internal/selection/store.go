// Package selection - общая для карты и таблицы станций ячейка "выбранная станция".
package selection

import (
	"sync"

	"github.com/cyclemap/internal/domain"
)

// Listener получает новое значение выбора (nil - выбор снят)
type Listener func(station *domain.Station)

// Store хранит не более одной выбранной станции.
// Один экземпляр на сессию просмотра.
type Store struct {
	mu        sync.Mutex
	selected  *domain.Station
	listeners map[int]Listener
	nextID    int
}

// NewStore создает пустое хранилище
func NewStore() *Store {
	return &Store{listeners: make(map[int]Listener)}
}

// Select заменяет выбор. Повторная запись той же станции (или nil поверх nil)
// ничего не меняет и подписчиков не уведомляет. Подписчики вызываются
// синхронно до возврата из Select.
func (s *Store) Select(station *domain.Station) {
	s.mu.Lock()
	if sameStation(s.selected, station) {
		s.mu.Unlock()
		return
	}

	if station != nil {
		copied := *station
		station = &copied
	}
	s.selected = station

	listeners := make([]Listener, 0, len(s.listeners))
	for id := 0; id < s.nextID; id++ {
		if l, ok := s.listeners[id]; ok {
			listeners = append(listeners, l)
		}
	}
	s.mu.Unlock()

	for _, l := range listeners {
		l(station)
	}
}

// Selected - текущая выбранная станция или nil
func (s *Store) Selected() *domain.Station {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.selected == nil {
		return nil
	}
	copied := *s.selected
	return &copied
}

// Subscribe добавляет подписчика в порядке регистрации; возвращает отписку
func (s *Store) Subscribe(l Listener) (unsubscribe func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.nextID
	s.nextID++
	s.listeners[id] = l

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.listeners, id)
			s.mu.Unlock()
		})
	}
}

func sameStation(a, b *domain.Station) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.ID == b.ID
}
