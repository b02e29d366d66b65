// Package urlstate зеркалит состояние фильтров списка в query string и обратно.
package urlstate

import (
	"net/url"
	"sync"
	"time"

	"github.com/cyclemap/internal/listing"
	"go.uber.org/zap"
)

const (
	ParamSearch  = "search"
	ParamCountry = "country"
	ParamPage    = "page"
)

// Navigator - источник текущего адреса и способ заменить его без перезагрузки
type Navigator interface {
	Current() *url.URL
	Replace(u *url.URL)
}

// Hydrate читает search и country из query string (пустая строка, если параметра нет).
// Страница в URL не хранится и всегда начинается с первой.
func Hydrate(query url.Values) listing.FilterState {
	return listing.FilterState{
		Search:  query.Get(ParamSearch),
		Country: query.Get(ParamCountry),
		Page:    1,
	}
}

// Apply возвращает копию query с параметрами фильтра из state.
// Пустые значения удаляются целиком, page удаляется всегда.
// changed - отличается ли результат от исходного query.
func Apply(query url.Values, state listing.FilterState) (url.Values, bool) {
	next := make(url.Values, len(query))
	for k, v := range query {
		next[k] = append([]string(nil), v...)
	}

	setOrDelete(next, ParamSearch, state.Search)
	setOrDelete(next, ParamCountry, state.Country)
	next.Del(ParamPage)

	return next, next.Encode() != query.Encode()
}

func setOrDelete(q url.Values, key, value string) {
	if value == "" {
		q.Del(key)
		return
	}
	q.Set(key, value)
}

// Synchronizer - отложенная запись состояния фильтров в адрес.
// Запись всегда следует за локальным состоянием и никогда его не меняет.
type Synchronizer struct {
	mu       sync.Mutex
	nav      Navigator
	debounce time.Duration
	timer    *time.Timer
	pending  *listing.FilterState
	stopped  bool
	logger   *zap.Logger
}

// NewSynchronizer создает синхронизатор; debounce == 0 - запись сразу
func NewSynchronizer(nav Navigator, debounce time.Duration, logger *zap.Logger) *Synchronizer {
	return &Synchronizer{
		nav:      nav,
		debounce: debounce,
		logger:   logger,
	}
}

// Mount - однократная гидратация локального состояния из адреса
func (s *Synchronizer) Mount() listing.FilterState {
	return Hydrate(s.nav.Current().Query())
}

// Observe сообщает о новом локальном состоянии. Более позднее состояние
// вытесняет ещё не записанное.
func (s *Synchronizer) Observe(state listing.FilterState) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return
	}

	s.pending = &state
	if s.debounce <= 0 {
		s.flushLocked()
		return
	}

	if s.timer != nil {
		s.timer.Stop()
	}
	s.timer = time.AfterFunc(s.debounce, s.Flush)
}

// Flush немедленно записывает отложенное состояние, если оно есть
func (s *Synchronizer) Flush() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return
	}
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.flushLocked()
}

// Pending - есть ли незаписанное состояние
func (s *Synchronizer) Pending() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pending != nil
}

// Stop отменяет отложенную запись; дальнейшие Observe игнорируются
func (s *Synchronizer) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.stopped = true
	s.pending = nil
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}

func (s *Synchronizer) flushLocked() {
	if s.pending == nil {
		return
	}
	state := *s.pending
	s.pending = nil

	current := s.nav.Current()
	query, changed := Apply(current.Query(), state)
	if !changed {
		return
	}

	next := *current
	next.RawQuery = query.Encode()
	s.nav.Replace(&next)

	s.logger.Debug("URL state synced",
		zap.String("search", state.Search),
		zap.String("country", state.Country),
		zap.String("url", next.String()))
}

// MemoryNavigator - адрес сессии просмотра, хранящийся в памяти
type MemoryNavigator struct {
	mu       sync.Mutex
	current  url.URL
	replaces int
}

// NewMemoryNavigator создает навигатор с начальным адресом
func NewMemoryNavigator(u *url.URL) *MemoryNavigator {
	n := &MemoryNavigator{}
	if u != nil {
		n.current = *u
	}
	if n.current.Path == "" {
		n.current.Path = "/"
	}
	return n
}

func (n *MemoryNavigator) Current() *url.URL {
	n.mu.Lock()
	defer n.mu.Unlock()
	u := n.current
	return &u
}

func (n *MemoryNavigator) Replace(u *url.URL) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.current = *u
	n.replaces++
}

// Push переходит на новый адрес (навигация по маршруту, не синхронизация фильтров)
func (n *MemoryNavigator) Push(u *url.URL) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.current = *u
}

// Replaces - сколько раз адрес заменялся синхронизатором
func (n *MemoryNavigator) Replaces() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.replaces
}
