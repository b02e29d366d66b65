package mapview

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/cyclemap/internal/config"
	"github.com/cyclemap/internal/domain"
	"github.com/cyclemap/internal/geo"
	"github.com/cyclemap/internal/geolocation"
	"github.com/cyclemap/internal/pkg/utils"
	"github.com/cyclemap/internal/selection"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"go.uber.org/zap"
)

const (
	SourceNetworks = "networks"
	SourceStations = "stations"

	LayerNetworks  = "networks-layer"
	LayerHighlight = "networks-highlight"
	LayerStations  = "stations-layer"

	networksPathPrefix = "/networks/"

	defaultFetchTimeout = 15 * time.Second
)

var (
	ErrAlreadyMounted = errors.New("map controller already mounted")
	ErrNotMounted     = errors.New("map controller is not mounted")
)

// DetailsFetcher - загрузка сети со станциями; nil при любой ошибке
type DetailsFetcher interface {
	GetNetworkDetails(ctx context.Context, id string) *domain.NetworkDetails
}

// CountryNamer - справочник названий стран
type CountryNamer interface {
	Name(code string) string
}

// Route - текущий маршрут: путь, id сети (для /networks/{id}) и query
type Route struct {
	Path      string     `json:"path"`
	NetworkID string     `json:"network_id,omitempty"`
	Query     url.Values `json:"query,omitempty"`
}

// ParseRoute разбирает адрес в Route
func ParseRoute(u *url.URL) Route {
	path := u.Path
	if path == "" {
		path = "/"
	}
	route := Route{Path: path, Query: u.Query()}
	if strings.HasPrefix(path, networksPathPrefix) {
		route.NetworkID = strings.Trim(strings.TrimPrefix(path, networksPathPrefix), "/")
	}
	return route
}

// IsRoot - маршрут списка сетей
func (r Route) IsRoot() bool {
	return r.Path == "/" || r.Path == ""
}

// NetworkPath - маршрут страницы сети
func NetworkPath(id string) string {
	return networksPathPrefix + url.PathEscape(id)
}

// Dependencies - всё, что контроллер получает извне
type Dependencies struct {
	Factory    EngineFactory
	Networks   []domain.Network
	Store      *selection.Store
	Details    DetailsFetcher
	Geolocator geolocation.Geolocator
	Countries  CountryNamer
	// Navigate - переход по маршруту (кнопка в попапе сети)
	Navigate func(path string)
}

type popupOrigin int

const (
	popupNone popupOrigin = iota
	popupFeature
	popupSelection
)

// State - состояние контроллера для снимка сессии
type State struct {
	Mounted      bool   `json:"mounted"`
	LayersReady  bool   `json:"layers_ready"`
	Route        Route  `json:"route"`
	Hovered      string `json:"hovered,omitempty"`
	Highlighted  string `json:"highlighted,omitempty"`
	StationCount int    `json:"station_count"`
	PopupOpen    bool   `json:"popup_open"`
	Loading      bool   `json:"loading"`
}

// Controller связывает движок карты с маршрутом, списком сетей и выбором станции.
// Все изменения состояния идут под одним мьютексом, загрузки станций -
// в горутинах с токеном запроса: устаревший ответ отбрасывается.
type Controller struct {
	mu sync.Mutex

	cfg    config.MapConfig
	deps   Dependencies
	logger *zap.Logger

	networks []domain.Network
	byID     map[string]domain.Network

	engine      Engine
	mounted     bool
	unmounted   bool
	layersReady bool
	handlersSet bool

	route    Route
	hovered  string
	stations []domain.Station

	token    uint64
	inflight int
	pending  sync.WaitGroup

	popup       PopupID
	popupFrom   popupOrigin
	popupAction *PopupAction

	unsubscribe  func()
	fetchTimeout time.Duration
}

// NewController создает контроллер; движок создается только в Mount
func NewController(cfg *config.MapConfig, deps Dependencies, logger *zap.Logger) *Controller {
	c := &Controller{
		cfg:          *cfg,
		deps:         deps,
		logger:       logger,
		fetchTimeout: defaultFetchTimeout,
	}
	c.setNetworks(deps.Networks)
	return c
}

func (c *Controller) setNetworks(networks []domain.Network) {
	c.networks = networks
	c.byID = make(map[string]domain.Network, len(networks))
	for _, n := range networks {
		c.byID[n.ID] = n
	}
}

// Mount создает движок ровно один раз. Если маршрут указывает на известную сеть,
// начальная камера сразу стоит на ней, без анимации.
func (c *Controller) Mount(route Route) error {
	c.mu.Lock()
	if c.mounted {
		c.mu.Unlock()
		return ErrAlreadyMounted
	}

	c.mounted = true
	c.route = route
	c.engine = c.deps.Factory(c.initialCameraLocked(route))
	c.engine.OnLoad(c.onStyleLoad)
	if c.deps.Store != nil {
		c.unsubscribe = c.deps.Store.Subscribe(c.onSelection)
	}
	loaded := c.engine.Loaded()
	c.mu.Unlock()

	c.logger.Debug("Map mounted", zap.String("path", route.Path), zap.String("network_id", route.NetworkID))

	if loaded {
		c.onStyleLoad()
	}
	if c.deps.Store != nil {
		if selected := c.deps.Store.Selected(); selected != nil {
			c.onSelection(selected)
		}
	}
	return nil
}

func (c *Controller) initialCameraLocked(route Route) Camera {
	if route.NetworkID != "" {
		if n, ok := c.byID[route.NetworkID]; ok {
			return Camera{
				Center: LngLat{Lon: n.Location.Longitude, Lat: n.Location.Latitude},
				Zoom:   c.cfg.DetailZoom,
			}
		}
	}
	return c.defaultCamera()
}

func (c *Controller) defaultCamera() Camera {
	return Camera{
		Center: LngLat{Lon: c.cfg.DefaultLon, Lat: c.cfg.DefaultLat},
		Zoom:   c.cfg.DefaultZoom,
	}
}

func (c *Controller) onStyleLoad() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.unmounted || c.layersReady {
		return
	}

	c.ensureLayersLocked()
	c.layersReady = true
	c.logger.Debug("Map style loaded, layers registered")

	c.applyRouteLocked()
}

func (c *Controller) ensureLayersLocked() {
	c.ensureSourceLocked(SourceNetworks, geo.NetworksToFeatures(c.networks))
	c.ensureLayerLocked(Layer{
		ID:     LayerNetworks,
		Type:   "circle",
		Source: SourceNetworks,
		Paint: map[string]interface{}{
			"circle-radius": 5,
			"circle-color":  "#f97316",
			"circle-opacity": []interface{}{
				"case",
				[]interface{}{"boolean", []interface{}{"feature-state", "hover"}, false},
				1.0,
				0.6,
			},
		},
	})
	c.ensureLayerLocked(Layer{
		ID:     LayerHighlight,
		Type:   "circle",
		Source: SourceNetworks,
		Paint: map[string]interface{}{
			"circle-radius":       9,
			"circle-color":        "#ea580c",
			"circle-stroke-width": 2,
			"circle-stroke-color": "#ffffff",
		},
		Filter: c.highlightFilterLocked(),
	})
	c.ensureSourceLocked(SourceStations, geo.StationsToFeatures(c.stations))
	c.ensureLayerLocked(Layer{
		ID:     LayerStations,
		Type:   "circle",
		Source: SourceStations,
		Paint: map[string]interface{}{
			"circle-radius": 4,
			"circle-color":  "#2563eb",
		},
	})

	if c.handlersSet {
		return
	}
	c.handlersSet = true
	c.engine.On(EventMouseMove, LayerNetworks, c.onNetworkHover)
	c.engine.On(EventMouseLeave, LayerNetworks, c.onNetworkLeave)
	c.engine.On(EventClick, LayerNetworks, c.onNetworkClick)
	c.engine.On(EventClick, LayerStations, c.onStationClick)
}

func (c *Controller) ensureSourceLocked(id string, data *geojson.FeatureCollection) {
	if c.engine.HasSource(id) {
		return
	}
	if err := c.engine.AddSource(id, data); err != nil {
		c.logger.Warn("Failed to add map source", zap.String("source", id), zap.Error(err))
	}
}

func (c *Controller) ensureLayerLocked(layer Layer) {
	if c.engine.HasLayer(layer.ID) {
		return
	}
	if err := c.engine.AddLayer(layer); err != nil {
		c.logger.Warn("Failed to add map layer", zap.String("layer", layer.ID), zap.Error(err))
	}
}

func (c *Controller) highlightFilterLocked() *Filter {
	if c.route.NetworkID == "" {
		return MatchIDs()
	}
	return MatchIDs(c.route.NetworkID)
}

// SetRoute - реакция на смену маршрута (id сети или query)
func (c *Controller) SetRoute(route Route) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.unmounted {
		return
	}
	c.route = route
	if c.layersReady {
		c.applyRouteLocked()
	}
}

// SetNetworks заменяет список сетей и заново применяет маршрут
func (c *Controller) SetNetworks(networks []domain.Network) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.unmounted {
		return
	}
	c.setNetworks(networks)
	if !c.layersReady {
		return
	}
	if err := c.engine.SetSourceData(SourceNetworks, geo.NetworksToFeatures(networks)); err != nil {
		c.logger.Warn("Failed to update networks source", zap.Error(err))
	}
	c.applyRouteLocked()
}

func (c *Controller) applyRouteLocked() {
	if err := c.engine.SetFilter(LayerHighlight, c.highlightFilterLocked()); err != nil {
		c.logger.Warn("Failed to update highlight filter", zap.Error(err))
	}

	id := c.route.NetworkID
	if id == "" {
		c.clearStationsLocked()
		if c.route.IsRoot() {
			c.flyToIfNeededLocked(c.defaultCamera())
			c.closePopupLocked()
		}
		return
	}

	network, ok := c.byID[id]
	if !ok {
		c.logger.Warn("Routed network not found in list", zap.String("network_id", id))
		c.clearStationsLocked()
		return
	}

	c.flyToIfNeededLocked(Camera{
		Center: LngLat{Lon: network.Location.Longitude, Lat: network.Location.Latitude},
		Zoom:   c.cfg.DetailZoom,
	})
	c.loadStationsLocked(id)
}

// flyToIfNeededLocked пропускает анимацию, если камера уже у цели
func (c *Controller) flyToIfNeededLocked(target Camera) bool {
	current := c.engine.Camera()
	if utils.Near(current.Center.Lon, target.Center.Lon, c.cfg.CoordTolerance) &&
		utils.Near(current.Center.Lat, target.Center.Lat, c.cfg.CoordTolerance) &&
		utils.Near(current.Zoom, target.Zoom, c.cfg.ZoomTolerance) {
		return false
	}
	c.engine.FlyTo(target)
	return true
}

// FlyTo - анимация камеры к цели, если камера ещё не там
func (c *Controller) FlyTo(target Camera) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.engine == nil || c.unmounted {
		return false
	}
	return c.flyToIfNeededLocked(target)
}

func (c *Controller) loadStationsLocked(id string) {
	c.token++
	token := c.token
	c.inflight++
	c.pending.Add(1)

	go func() {
		defer c.pending.Done()

		ctx, cancel := context.WithTimeout(context.Background(), c.fetchTimeout)
		defer cancel()
		details := c.deps.Details.GetNetworkDetails(ctx, id)

		c.mu.Lock()
		defer c.mu.Unlock()
		c.inflight--

		if c.unmounted || token != c.token {
			c.logger.Debug("Discarding stale stations response", zap.String("network_id", id))
			return
		}

		stations := []domain.Station{}
		if details != nil {
			stations = details.Stations
		}
		c.setStationsLocked(stations)
		c.logger.Debug("Stations loaded", zap.String("network_id", id), zap.Int("count", len(stations)))
	}()
}

func (c *Controller) clearStationsLocked() {
	// ответ на ещё идущий запрос станций больше не нужен
	c.token++
	c.setStationsLocked([]domain.Station{})
}

func (c *Controller) setStationsLocked(stations []domain.Station) {
	c.stations = stations
	if !c.engine.HasSource(SourceStations) {
		return
	}
	if err := c.engine.SetSourceData(SourceStations, geo.StationsToFeatures(stations)); err != nil {
		c.logger.Warn("Failed to update stations source", zap.Error(err))
	}
}

// Wait ждёт завершения запущенных загрузок станций
func (c *Controller) Wait() {
	c.pending.Wait()
}

// Stations - станции, показанные на карте
func (c *Controller) Stations() []domain.Station {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]domain.Station(nil), c.stations...)
}

func (c *Controller) onNetworkHover(e MouseEvent) {
	if len(e.Features) == 0 {
		return
	}
	id := geo.FeatureID(e.Features[0])

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.unmounted || id == c.hovered {
		return
	}
	if c.hovered != "" {
		c.engine.SetFeatureState(SourceNetworks, c.hovered, "hover", false)
	}
	c.hovered = id
	c.engine.SetFeatureState(SourceNetworks, id, "hover", true)
}

func (c *Controller) onNetworkLeave(MouseEvent) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.unmounted || c.hovered == "" {
		return
	}
	c.engine.SetFeatureState(SourceNetworks, c.hovered, "hover", false)
	c.hovered = ""
}

func (c *Controller) onNetworkClick(e MouseEvent) {
	if len(e.Features) == 0 {
		return
	}
	f := e.Features[0]
	point, ok := f.Geometry.(orb.Point)
	if !ok {
		return
	}
	id := geo.FeatureID(f)
	city := f.Properties.MustString("city", "")
	country := f.Properties.MustString("country", "")

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.unmounted {
		return
	}

	countryName := country
	if c.deps.Countries != nil {
		countryName = c.deps.Countries.Name(country)
	}

	c.openPopupLocked(Popup{
		LngLat: LngLat{Lon: utils.WrapLongitude(point.Lon(), e.LngLat.Lon), Lat: point.Lat()},
		Title:  f.Properties.MustString("name", id),
		Lines:  []string{fmt.Sprintf("%s, %s", city, countryName)},
		Action: &PopupAction{Label: "View network", Href: NetworkPath(id)},
	}, popupFeature)
}

func (c *Controller) onStationClick(e MouseEvent) {
	if len(e.Features) == 0 {
		return
	}
	f := e.Features[0]
	point, ok := f.Geometry.(orb.Point)
	if !ok {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.unmounted {
		return
	}

	c.openPopupLocked(Popup{
		LngLat: LngLat{Lon: utils.WrapLongitude(point.Lon(), e.LngLat.Lon), Lat: point.Lat()},
		Title:  f.Properties.MustString("name", geo.FeatureID(f)),
		Lines:  stationLines(f.Properties.MustInt("free_bikes", 0), f.Properties.MustInt("empty_slots", 0)),
	}, popupFeature)
}

func (c *Controller) onSelection(station *domain.Station) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.unmounted {
		return
	}
	if station == nil {
		if c.popupFrom == popupSelection {
			c.closePopupLocked()
		}
		return
	}

	c.openPopupLocked(Popup{
		LngLat: LngLat{Lon: station.Longitude, Lat: station.Latitude},
		Title:  station.DisplayName(),
		Lines:  stationLines(station.FreeBikes, station.EmptySlots),
	}, popupSelection)
}

func stationLines(freeBikes, emptySlots int) []string {
	return []string{
		fmt.Sprintf("Free bikes: %d", freeBikes),
		fmt.Sprintf("Empty slots: %d", emptySlots),
	}
}

// openPopupLocked держит не более одного открытого попапа
func (c *Controller) openPopupLocked(p Popup, origin popupOrigin) {
	c.closePopupLocked()
	c.popup = c.engine.AddPopup(p)
	c.popupFrom = origin
	c.popupAction = p.Action
}

func (c *Controller) closePopupLocked() {
	if c.popupFrom == popupNone {
		return
	}
	c.engine.RemovePopup(c.popup)
	c.popup = 0
	c.popupFrom = popupNone
	c.popupAction = nil
}

// ActivatePopupAction - нажатие кнопки в открытом попапе сети.
// Возвращает false, если у открытого попапа нет действия.
func (c *Controller) ActivatePopupAction() bool {
	c.mu.Lock()
	action := c.popupAction
	navigate := c.deps.Navigate
	unmounted := c.unmounted
	c.mu.Unlock()

	if unmounted || action == nil || navigate == nil {
		return false
	}
	navigate(action.Href)
	return true
}

// ClosePopup закрывает открытый попап
func (c *Controller) ClosePopup() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.unmounted {
		return
	}
	c.closePopupLocked()
}

// Locate запрашивает положение пользователя и летит к нему.
// Ошибка только пишется в лог, карта остаётся как была.
func (c *Controller) Locate(ctx context.Context) bool {
	c.mu.Lock()
	geolocator := c.deps.Geolocator
	ready := c.engine != nil && !c.unmounted
	c.mu.Unlock()

	if !ready || geolocator == nil {
		return false
	}

	opts := geolocation.LocateOptions
	ctx, cancel := context.WithTimeout(ctx, opts.Timeout)
	defer cancel()

	pos, err := geolocator.CurrentPosition(ctx, opts)
	if err != nil {
		c.logger.Warn("Geolocation failed", zap.Error(err))
		return false
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.unmounted {
		return false
	}
	c.flyToIfNeededLocked(Camera{
		Center: LngLat{Lon: pos.Longitude, Lat: pos.Latitude},
		Zoom:   c.cfg.LocateZoom,
	})
	return true
}

// ZoomIn - шаг зума внутрь (границы проверяет движок)
func (c *Controller) ZoomIn() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.engine != nil && !c.unmounted {
		c.engine.ZoomIn()
	}
}

// ZoomOut - шаг зума наружу
func (c *Controller) ZoomOut() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.engine != nil && !c.unmounted {
		c.engine.ZoomOut()
	}
}

// Unmount освобождает движок и попап ровно один раз. После него
// ни один обработчик и ни один ответ загрузки не меняют состояние.
func (c *Controller) Unmount() {
	c.mu.Lock()
	if !c.mounted || c.unmounted {
		c.mu.Unlock()
		return
	}
	c.unmounted = true
	c.token++
	unsubscribe := c.unsubscribe
	c.unsubscribe = nil

	c.closePopupLocked()
	c.engine.Remove()
	c.stations = nil
	c.hovered = ""
	c.mu.Unlock()

	if unsubscribe != nil {
		unsubscribe()
	}
	c.logger.Debug("Map unmounted")
}

// State - состояние контроллера
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()

	highlighted := ""
	if c.layersReady && c.route.NetworkID != "" {
		if _, ok := c.byID[c.route.NetworkID]; ok {
			highlighted = c.route.NetworkID
		}
	}

	return State{
		Mounted:      c.mounted && !c.unmounted,
		LayersReady:  c.layersReady,
		Route:        c.route,
		Hovered:      c.hovered,
		Highlighted:  highlighted,
		StationCount: len(c.stations),
		PopupOpen:    c.popupFrom != popupNone,
		Loading:      c.inflight > 0,
	}
}

// Engine - движок текущего монтирования (nil до Mount)
func (c *Controller) Engine() Engine {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.engine
}

// CheckMounted возвращает ErrNotMounted, если контроллер не смонтирован или уже размонтирован
func (c *Controller) CheckMounted() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.mounted || c.unmounted {
		return ErrNotMounted
	}
	return nil
}
