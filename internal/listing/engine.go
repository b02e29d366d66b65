package listing

import (
	"context"
	"sync"

	"github.com/cyclemap/internal/domain"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// DefaultPageSize - размер страницы списка сетей
const DefaultPageSize = 6

// Enricher догружает данные одной сети. Ошибки не возвращает:
// при сбое отдаёт пустой список операторов и ноль станций.
type Enricher interface {
	Enrich(ctx context.Context, networkID string) domain.Enrichment
}

// Options - параметры Engine
type Options struct {
	PageSize    int
	Concurrency int
}

// Item - сеть на текущей странице вместе с догруженными данными (если они уже есть)
type Item struct {
	Network    domain.Network     `json:"network"`
	Enrichment *domain.Enrichment `json:"enrichment,omitempty"`
}

// View - результат конвейера networks -> filtered -> paginated
type View struct {
	Items      []Item      `json:"items"`
	Filter     FilterState `json:"filter"`
	PageSize   int         `json:"page_size"`
	Total      int         `json:"total"`
	TotalPages int         `json:"total_pages"`
	Range      []PageItem  `json:"page_range"`
}

// Engine держит состояние списка: исходные сети, фильтр и догруженные данные
type Engine struct {
	mu          sync.Mutex
	networks    []domain.Network
	state       FilterState
	pageSize    int
	concurrency int
	enrichment  map[string]domain.Enrichment
	inflight    map[string]struct{}
	enricher    Enricher
	logger      *zap.Logger
}

// NewEngine создает Engine. networks не копируется и не изменяется.
func NewEngine(networks []domain.Network, opts Options, enricher Enricher, logger *zap.Logger) *Engine {
	if opts.PageSize <= 0 {
		opts.PageSize = DefaultPageSize
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = opts.PageSize
	}
	return &Engine{
		networks:    networks,
		state:       FilterState{Page: 1},
		pageSize:    opts.PageSize,
		concurrency: opts.Concurrency,
		enrichment:  make(map[string]domain.Enrichment),
		inflight:    make(map[string]struct{}),
		enricher:    enricher,
		logger:      logger,
	}
}

// State - текущее состояние фильтров
func (e *Engine) State() FilterState {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// SetSearch меняет поисковую строку, страница сбрасывается на первую
func (e *Engine) SetSearch(search string) FilterState {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state.Search != search {
		e.state.Search = search
		e.state.Page = 1
	}
	return e.state
}

// SetCountry меняет фильтр страны, страница сбрасывается на первую
func (e *Engine) SetCountry(country string) FilterState {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state.Country != country {
		e.state.Country = country
		e.state.Page = 1
	}
	return e.state
}

// SetFilter заменяет поиск и страну разом (гидратация из URL)
func (e *Engine) SetFilter(search, country string) FilterState {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state.Search != search || e.state.Country != country {
		e.state.Search = search
		e.state.Country = country
		e.state.Page = 1
	}
	return e.state
}

// SetPage переходит на страницу; страница вне диапазона сбрасывается на первую
func (e *Engine) SetPage(page int) FilterState {
	e.mu.Lock()
	defer e.mu.Unlock()

	total := TotalPages(len(e.filteredLocked()), e.pageSize)
	if page < 1 || page > total {
		page = 1
	}
	e.state.Page = page
	return e.state
}

// View пересчитывает отфильтрованный список и текущую страницу
func (e *Engine) View() View {
	e.mu.Lock()
	defer e.mu.Unlock()

	filtered := e.filteredLocked()
	totalPages := TotalPages(len(filtered), e.pageSize)
	if e.state.Page < 1 || (totalPages > 0 && e.state.Page > totalPages) {
		e.state.Page = 1
	}

	paginated := Paginate(filtered, e.state.Page, e.pageSize)
	items := make([]Item, 0, len(paginated))
	for _, n := range paginated {
		item := Item{Network: n}
		if en, ok := e.enrichment[n.ID]; ok {
			en := en
			item.Enrichment = &en
		}
		items = append(items, item)
	}

	return View{
		Items:      items,
		Filter:     e.state,
		PageSize:   e.pageSize,
		Total:      len(filtered),
		TotalPages: totalPages,
		Range:      PageRange(e.state.Page, totalPages, DefaultSiblings),
	}
}

// Enrichment - догруженные данные сети, если они уже есть
func (e *Engine) Enrichment(networkID string) (domain.Enrichment, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	en, ok := e.enrichment[networkID]
	return en, ok
}

// Seed добавляет уже известные данные (например, из кеша процесса), не перезаписывая загруженные
func (e *Engine) Seed(known map[string]domain.Enrichment) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for id, en := range known {
		if _, ok := e.enrichment[id]; !ok {
			e.enrichment[id] = en
		}
	}
}

// EnrichVisible догружает данные только для сетей текущей страницы,
// по одному запросу на сеть, уже загруженные и загружаемые пропускаются.
func (e *Engine) EnrichVisible(ctx context.Context) error {
	if e.enricher == nil {
		return nil
	}

	e.mu.Lock()
	visible := Paginate(e.filteredLocked(), e.state.Page, e.pageSize)
	pending := make([]string, 0, len(visible))
	for _, n := range visible {
		if _, done := e.enrichment[n.ID]; done {
			continue
		}
		if _, running := e.inflight[n.ID]; running {
			continue
		}
		e.inflight[n.ID] = struct{}{}
		pending = append(pending, n.ID)
	}
	e.mu.Unlock()

	if len(pending) == 0 {
		return nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.concurrency)

	for _, id := range pending {
		id := id
		g.Go(func() error {
			en := e.enricher.Enrich(gctx, id)
			if en.Company == nil {
				en.Company = []string{}
			}

			e.mu.Lock()
			e.enrichment[id] = en
			delete(e.inflight, id)
			e.mu.Unlock()
			return nil
		})
	}

	err := g.Wait()
	e.logger.Debug("Visible networks enriched", zap.Int("count", len(pending)))
	return err
}

func (e *Engine) filteredLocked() []domain.Network {
	return Filter(e.networks, e.state, e.enrichment)
}
