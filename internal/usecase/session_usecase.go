package usecase

import (
	"context"
	stderrors "errors"
	"net/url"
	"sync"

	"github.com/bluele/gcache"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/cyclemap/internal/config"
	"github.com/cyclemap/internal/countries"
	"github.com/cyclemap/internal/domain"
	"github.com/cyclemap/internal/geolocation"
	"github.com/cyclemap/internal/listing"
	"github.com/cyclemap/internal/mapview"
	"github.com/cyclemap/internal/metrics"
	"github.com/cyclemap/internal/pkg/errors"
	"github.com/cyclemap/internal/pkg/utils"
	"github.com/cyclemap/internal/selection"
	"github.com/cyclemap/internal/urlstate"
	"github.com/cyclemap/internal/usecase/dto"
)

const defaultMaxSessions = 1000

// Session - одно смонтированное дерево представления: карта, список, адрес и выбор станции.
// События сессии выполняются строго по одному.
type Session struct {
	ID string

	mu         sync.Mutex
	nav        *urlstate.MemoryNavigator
	urlSync    *urlstate.Synchronizer
	controller *mapview.Controller
	engine     *mapview.HeadlessEngine
	store      *selection.Store
	listing    *listing.Engine
	position   *geolocation.ClientReported
	networks   []domain.Network

	closeOnce sync.Once
}

// SessionUseCase - сессии просмотра, управляемые тонким клиентом
type SessionUseCase struct {
	networks   *NetworkUseCase
	countries  *countries.Lookup
	ipGeo      geolocation.Geolocator
	sessions   gcache.Cache
	mapCfg     config.MapConfig
	listingCfg config.ListingConfig
	metrics    *metrics.Metrics
	logger     *zap.Logger
}

// NewSessionUseCase - создание нового SessionUseCase. ipGeo может быть nil.
func NewSessionUseCase(
	networks *NetworkUseCase,
	lookup *countries.Lookup,
	ipGeo geolocation.Geolocator,
	sessionCfg *config.SessionConfig,
	mapCfg *config.MapConfig,
	listingCfg *config.ListingConfig,
	m *metrics.Metrics,
	logger *zap.Logger,
) *SessionUseCase {
	uc := &SessionUseCase{
		networks:   networks,
		countries:  lookup,
		ipGeo:      ipGeo,
		mapCfg:     *mapCfg,
		listingCfg: *listingCfg,
		metrics:    m,
		logger:     logger,
	}

	size := sessionCfg.MaxEntries
	if size <= 0 {
		size = defaultMaxSessions
	}
	builder := gcache.New(size).LRU().EvictedFunc(func(key, value interface{}) {
		if s, ok := value.(*Session); ok {
			uc.closeSession(s, "evicted")
		}
	})
	if sessionCfg.TTL > 0 {
		builder = builder.Expiration(sessionCfg.TTL)
	}
	uc.sessions = builder.Build()

	return uc
}

// CreateSession монтирует дерево представления на адресе req.URL
func (uc *SessionUseCase) CreateSession(ctx context.Context, req dto.CreateSessionRequest) (*dto.SessionResponse, error) {
	raw := req.URL
	if raw == "" {
		raw = "/"
	}
	u, err := url.Parse(raw)
	if err != nil {
		return nil, errors.ErrInvalidRequest.WithDetails(map[string]interface{}{"url": raw})
	}

	networks, err := uc.networks.ListNetworks(ctx)
	if err != nil {
		return nil, err
	}

	s := &Session{
		ID:       uuid.NewString(),
		nav:      urlstate.NewMemoryNavigator(u),
		store:    selection.NewStore(),
		listing:  uc.networks.NewListing(networks),
		position: geolocation.NewClientReported(),
		networks: networks,
	}
	s.urlSync = urlstate.NewSynchronizer(s.nav, uc.listingCfg.URLSyncDebounce, uc.logger)

	chain := geolocation.Chain{s.position}
	if uc.ipGeo != nil {
		chain = append(chain, uc.ipGeo)
	}

	s.controller = mapview.NewController(&uc.mapCfg, mapview.Dependencies{
		Factory:    mapview.HeadlessFactory(func(e *mapview.HeadlessEngine) { s.engine = e }),
		Networks:   networks,
		Store:      s.store,
		Details:    uc.networks,
		Geolocator: chain,
		Countries:  uc.countries,
		// вызывается только из событий сессии, s.mu уже захвачен
		Navigate: func(path string) {
			if err := uc.navigateLocked(context.Background(), s, path); err != nil {
				uc.logger.Warn("Popup navigation failed", zap.String("session_id", s.ID), zap.Error(err))
			}
		},
	}, uc.logger.With(zap.String("session_id", s.ID)))

	s.mu.Lock()
	defer s.mu.Unlock()

	route := mapview.ParseRoute(u)
	if route.IsRoot() {
		state := s.urlSync.Mount()
		s.listing.SetFilter(state.Search, state.Country)
	}

	if err := s.controller.Mount(route); err != nil {
		return nil, err
	}
	s.engine.LoadStyle()
	uc.settleLocked(ctx, s)

	if err := uc.sessions.Set(s.ID, s); err != nil {
		uc.closeSession(s, "store failed")
		return nil, errors.ErrInternalServer
	}
	uc.metrics.SessionOpened()
	uc.logger.Info("View session created", zap.String("session_id", s.ID), zap.String("url", u.String()))

	return uc.snapshotLocked(s), nil
}

// Snapshot - текущее состояние сессии
func (uc *SessionUseCase) Snapshot(_ context.Context, id string) (*dto.SessionResponse, error) {
	return uc.withSession(id, func(s *Session) error { return nil })
}

// Navigate - переход по маршруту внутри сессии
func (uc *SessionUseCase) Navigate(ctx context.Context, id string, req dto.NavigateRequest) (*dto.SessionResponse, error) {
	return uc.withSession(id, func(s *Session) error {
		return uc.navigateLocked(ctx, s, req.URL)
	})
}

func (uc *SessionUseCase) navigateLocked(ctx context.Context, s *Session, raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return errors.ErrInvalidRequest.WithDetails(map[string]interface{}{"url": raw})
	}

	// отложенная запись фильтров относится к старому адресу
	s.urlSync.Flush()
	s.nav.Push(u)

	route := mapview.ParseRoute(u)
	if route.IsRoot() {
		// список монтируется заново и читает фильтры из адреса
		state := s.urlSync.Mount()
		s.listing.SetFilter(state.Search, state.Country)
	}
	s.controller.SetRoute(route)
	uc.settleLocked(ctx, s)
	return nil
}

// SetFilter - ввод поиска и/или выбор страны
func (uc *SessionUseCase) SetFilter(ctx context.Context, id string, req dto.FilterRequest) (*dto.SessionResponse, error) {
	return uc.withSession(id, func(s *Session) error {
		if req.Search != nil {
			s.listing.SetSearch(*req.Search)
		}
		if req.Country != nil {
			s.listing.SetCountry(*req.Country)
		}
		s.urlSync.Observe(s.listing.State())
		uc.settleLocked(ctx, s)
		return nil
	})
}

// SetPage - переход на страницу списка
func (uc *SessionUseCase) SetPage(ctx context.Context, id string, req dto.PageRequest) (*dto.SessionResponse, error) {
	return uc.withSession(id, func(s *Session) error {
		s.listing.SetPage(req.Page)
		uc.settleLocked(ctx, s)
		return nil
	})
}

// Hover - курсор над сетью
func (uc *SessionUseCase) Hover(_ context.Context, id string, req dto.HoverRequest) (*dto.SessionResponse, error) {
	return uc.withSession(id, func(s *Session) error {
		if !s.engine.Hover(mapview.LayerNetworks, req.NetworkID) {
			return errors.ErrFeatureNotFound.WithDetails(map[string]interface{}{"feature_id": req.NetworkID})
		}
		return nil
	})
}

// Leave - курсор ушёл со слоя сетей
func (uc *SessionUseCase) Leave(_ context.Context, id string) (*dto.SessionResponse, error) {
	return uc.withSession(id, func(s *Session) error {
		s.engine.Leave(mapview.LayerNetworks)
		return nil
	})
}

// Click - клик по сети или станции на карте
func (uc *SessionUseCase) Click(_ context.Context, id string, req dto.ClickRequest) (*dto.SessionResponse, error) {
	layer := mapview.LayerNetworks
	if req.Layer == "stations" {
		layer = mapview.LayerStations
	}

	var at *mapview.LngLat
	if req.Lon != nil && req.Lat != nil {
		at = &mapview.LngLat{Lon: *req.Lon, Lat: *req.Lat}
	}

	return uc.withSession(id, func(s *Session) error {
		if !s.engine.Click(layer, req.FeatureID, at) {
			return errors.ErrFeatureNotFound.WithDetails(map[string]interface{}{
				"layer":      req.Layer,
				"feature_id": req.FeatureID,
			})
		}
		return nil
	})
}

// PopupAction - нажатие кнопки "View network" в попапе
func (uc *SessionUseCase) PopupAction(_ context.Context, id string) (*dto.SessionResponse, error) {
	return uc.withSession(id, func(s *Session) error {
		if !s.controller.ActivatePopupAction() {
			return errors.ErrInvalidRequest.WithDetails(map[string]interface{}{"popup": "no action available"})
		}
		return nil
	})
}

// ClosePopup закрывает открытый попап
func (uc *SessionUseCase) ClosePopup(_ context.Context, id string) (*dto.SessionResponse, error) {
	return uc.withSession(id, func(s *Session) error {
		s.controller.ClosePopup()
		return nil
	})
}

// SelectStation - выбор строки таблицы станций; пустой id снимает выбор
func (uc *SessionUseCase) SelectStation(_ context.Context, id string, req dto.SelectRequest) (*dto.SessionResponse, error) {
	return uc.withSession(id, func(s *Session) error {
		if req.StationID == "" {
			s.store.Select(nil)
			return nil
		}
		for _, st := range s.controller.Stations() {
			if st.ID == req.StationID {
				st := st
				s.store.Select(&st)
				return nil
			}
		}
		return errors.ErrStationNotFound.WithDetails(map[string]interface{}{"station_id": req.StationID})
	})
}

// Locate - кнопка "где я". Сбой геолокации только логируется.
func (uc *SessionUseCase) Locate(ctx context.Context, id string, req dto.LocateRequest, clientIP string) (*dto.SessionResponse, error) {
	if (req.Latitude == nil) != (req.Longitude == nil) ||
		(req.Latitude != nil && !utils.ValidateCoordinates(*req.Latitude, *req.Longitude)) {
		return nil, errors.ErrInvalidCoordinates
	}

	return uc.withSession(id, func(s *Session) error {
		if req.Latitude != nil && req.Longitude != nil {
			s.position.Report(geolocation.Position{
				Latitude:  *req.Latitude,
				Longitude: *req.Longitude,
				Accuracy:  req.Accuracy,
			})
		}
		s.controller.Locate(geolocation.WithClientIP(ctx, clientIP))
		return nil
	})
}

// Zoom - шаг зума
func (uc *SessionUseCase) Zoom(_ context.Context, id string, req dto.ZoomRequest) (*dto.SessionResponse, error) {
	return uc.withSession(id, func(s *Session) error {
		if req.Direction == "in" {
			s.controller.ZoomIn()
		} else {
			s.controller.ZoomOut()
		}
		return nil
	})
}

// Close размонтирует сессию
func (uc *SessionUseCase) Close(_ context.Context, id string) error {
	s, err := uc.get(id)
	if err != nil {
		return err
	}
	// Remove вызывает EvictedFunc, сессия к этому моменту уже закрыта
	uc.closeSession(s, "closed")
	uc.sessions.Remove(id)
	return nil
}

// Count - число живых сессий
func (uc *SessionUseCase) Count() int {
	return uc.sessions.Len(true)
}

// SweepExpired размонтирует сессии с истёкшим TTL.
// gcache удаляет такие записи только при обращении, брошенную сессию никто не читает.
func (uc *SessionUseCase) SweepExpired() int {
	swept := 0
	for _, key := range uc.sessions.Keys(false) {
		if uc.sessions.Has(key) {
			continue
		}
		// чтение просроченного ключа удаляет его и вызывает EvictedFunc
		if _, err := uc.sessions.GetIFPresent(key); err != nil {
			swept++
		}
	}
	if swept > 0 {
		uc.logger.Debug("Expired view sessions swept", zap.Int("count", swept))
	}
	return swept
}

func (uc *SessionUseCase) get(id string) (*Session, error) {
	v, err := uc.sessions.Get(id)
	if err != nil {
		if !stderrors.Is(err, gcache.KeyNotFoundError) {
			uc.logger.Warn("Session lookup failed", zap.String("session_id", id), zap.Error(err))
		}
		return nil, errors.ErrSessionNotFound
	}
	s, ok := v.(*Session)
	if !ok {
		return nil, errors.ErrSessionNotFound
	}
	return s, nil
}

func (uc *SessionUseCase) withSession(id string, event func(s *Session) error) (*dto.SessionResponse, error) {
	s, err := uc.get(id)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.controller.CheckMounted(); err != nil {
		return nil, errors.ErrSessionNotFound
	}
	if err := event(s); err != nil {
		return nil, err
	}
	return uc.snapshotLocked(s), nil
}

// settleLocked дожидается станций карты и догружает видимую страницу списка
func (uc *SessionUseCase) settleLocked(ctx context.Context, s *Session) {
	if mapview.ParseRoute(s.nav.Current()).IsRoot() {
		if err := s.listing.EnrichVisible(ctx); err != nil {
			uc.logger.Warn("Failed to enrich visible networks", zap.String("session_id", s.ID), zap.Error(err))
		}
	}
	s.controller.Wait()
}

func (uc *SessionUseCase) snapshotLocked(s *Session) *dto.SessionResponse {
	current := s.nav.Current()
	resp := &dto.SessionResponse{
		ID:       s.ID,
		URL:      current.String(),
		Map:      s.engine.Snapshot(),
		View:     s.controller.State(),
		Selected: s.store.Selected(),
	}
	if mapview.ParseRoute(current).IsRoot() {
		resp.Listing = uc.networks.BuildBrowseResponse(s.listing.View(), s.networks)
	}
	return resp
}

func (uc *SessionUseCase) closeSession(s *Session, reason string) {
	s.closeOnce.Do(func() {
		s.urlSync.Stop()
		s.controller.Unmount()
		uc.metrics.SessionClosed()
		uc.logger.Info("View session closed", zap.String("session_id", s.ID), zap.String("reason", reason))
	})
}
