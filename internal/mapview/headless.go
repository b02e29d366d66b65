package mapview

import (
	"fmt"
	"sort"
	"sync"

	"github.com/cyclemap/internal/geo"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

const (
	MinZoom = 0
	MaxZoom = 22

	zoomStep = 1
)

type handlerKey struct {
	event EventType
	layer string
}

// HeadlessEngine - движок карты без отрисовки. Хранит источники, слои, фильтры,
// состояние фич, камеру и попапы; анимации завершаются мгновенно.
// Отрисовкой по снимку занимается тонкий клиент.
type HeadlessEngine struct {
	mu           sync.Mutex
	camera       Camera
	loaded       bool
	removed      bool
	onLoad       []func()
	sources      map[string]*geojson.FeatureCollection
	layers       []Layer
	featureState map[string]map[string]map[string]interface{}
	handlers     map[handlerKey][]Handler
	popups       map[PopupID]Popup
	nextPopup    PopupID
	animations   int
}

// NewHeadlessEngine создает движок; стиль считается незагруженным до LoadStyle
func NewHeadlessEngine(initial Camera) *HeadlessEngine {
	return &HeadlessEngine{
		camera:       initial,
		sources:      make(map[string]*geojson.FeatureCollection),
		featureState: make(map[string]map[string]map[string]interface{}),
		handlers:     make(map[handlerKey][]Handler),
		popups:       make(map[PopupID]Popup),
	}
}

// HeadlessFactory - EngineFactory, отдающая созданный движок через created
func HeadlessFactory(created func(*HeadlessEngine)) EngineFactory {
	return func(initial Camera) Engine {
		e := NewHeadlessEngine(initial)
		if created != nil {
			created(e)
		}
		return e
	}
}

// LoadStyle завершает загрузку стиля и однократно вызывает обработчики OnLoad
func (e *HeadlessEngine) LoadStyle() {
	e.mu.Lock()
	if e.loaded || e.removed {
		e.mu.Unlock()
		return
	}
	e.loaded = true
	callbacks := e.onLoad
	e.onLoad = nil
	e.mu.Unlock()

	for _, fn := range callbacks {
		fn()
	}
}

func (e *HeadlessEngine) OnLoad(fn func()) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.loaded || e.removed {
		return
	}
	e.onLoad = append(e.onLoad, fn)
}

func (e *HeadlessEngine) Loaded() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.loaded
}

func (e *HeadlessEngine) AddSource(id string, data *geojson.FeatureCollection) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, ok := e.sources[id]; ok {
		return fmt.Errorf("source %q already exists", id)
	}
	if data == nil {
		data = geojson.NewFeatureCollection()
	}
	e.sources[id] = data
	return nil
}

func (e *HeadlessEngine) HasSource(id string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, ok := e.sources[id]
	return ok
}

func (e *HeadlessEngine) SetSourceData(id string, data *geojson.FeatureCollection) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, ok := e.sources[id]; !ok {
		return fmt.Errorf("source %q not found", id)
	}
	if data == nil {
		data = geojson.NewFeatureCollection()
	}
	e.sources[id] = data
	return nil
}

func (e *HeadlessEngine) AddLayer(layer Layer) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.layerIndexLocked(layer.ID) >= 0 {
		return fmt.Errorf("layer %q already exists", layer.ID)
	}
	if _, ok := e.sources[layer.Source]; !ok {
		return fmt.Errorf("layer %q: source %q not found", layer.ID, layer.Source)
	}
	e.layers = append(e.layers, layer)
	return nil
}

func (e *HeadlessEngine) HasLayer(id string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.layerIndexLocked(id) >= 0
}

func (e *HeadlessEngine) SetFilter(layerID string, filter *Filter) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	i := e.layerIndexLocked(layerID)
	if i < 0 {
		return fmt.Errorf("layer %q not found", layerID)
	}
	if filter != nil {
		copied := *filter
		copied.In = append([]string{}, filter.In...)
		filter = &copied
	}
	e.layers[i].Filter = filter
	return nil
}

func (e *HeadlessEngine) SetFeatureState(source, featureID, key string, value interface{}) {
	e.mu.Lock()
	defer e.mu.Unlock()

	bySource, ok := e.featureState[source]
	if !ok {
		bySource = make(map[string]map[string]interface{})
		e.featureState[source] = bySource
	}
	state, ok := bySource[featureID]
	if !ok {
		state = make(map[string]interface{})
		bySource[featureID] = state
	}
	state[key] = value
}

// FeatureState - значение ключа состояния фичи
func (e *HeadlessEngine) FeatureState(source, featureID, key string) interface{} {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.featureState[source][featureID][key]
}

func (e *HeadlessEngine) On(event EventType, layerID string, h Handler) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.removed {
		return
	}
	key := handlerKey{event: event, layer: layerID}
	e.handlers[key] = append(e.handlers[key], h)
}

func (e *HeadlessEngine) Camera() Camera {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.camera
}

func (e *HeadlessEngine) FlyTo(target Camera) {
	e.mu.Lock()
	defer e.mu.Unlock()
	target.Zoom = clampZoom(target.Zoom)
	e.camera = target
	e.animations++
}

func (e *HeadlessEngine) ZoomIn() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.camera.Zoom = clampZoom(e.camera.Zoom + zoomStep)
	e.animations++
}

func (e *HeadlessEngine) ZoomOut() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.camera.Zoom = clampZoom(e.camera.Zoom - zoomStep)
	e.animations++
}

// Animations - сколько анимаций камеры было запущено
func (e *HeadlessEngine) Animations() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.animations
}

func (e *HeadlessEngine) AddPopup(p Popup) PopupID {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.nextPopup++
	e.popups[e.nextPopup] = p
	return e.nextPopup
}

func (e *HeadlessEngine) RemovePopup(id PopupID) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.popups, id)
}

// Popups - открытые попапы в порядке открытия
func (e *HeadlessEngine) Popups() []Popup {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.popupsLocked()
}

// Remove освобождает движок: источники, слои, обработчики и попапы удаляются
func (e *HeadlessEngine) Remove() {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.removed = true
	e.onLoad = nil
	e.sources = make(map[string]*geojson.FeatureCollection)
	e.layers = nil
	e.featureState = make(map[string]map[string]map[string]interface{})
	e.handlers = make(map[handlerKey][]Handler)
	e.popups = make(map[PopupID]Popup)
}

// Removed - был ли вызван Remove
func (e *HeadlessEngine) Removed() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.removed
}

// RenderedFeatureIDs - id фич слоя с учётом его фильтра
func (e *HeadlessEngine) RenderedFeatureIDs(layerID string) []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.renderedLocked(layerID)
}

// Hover имитирует движение мыши над фичей слоя
func (e *HeadlessEngine) Hover(layerID, featureID string) bool {
	return e.fireOnFeature(EventMouseMove, layerID, featureID, nil)
}

// Leave имитирует уход курсора со слоя
func (e *HeadlessEngine) Leave(layerID string) bool {
	return e.fire(EventMouseLeave, layerID, MouseEvent{})
}

// Click имитирует клик по фиче слоя. at - точка клика; nil - координаты фичи.
func (e *HeadlessEngine) Click(layerID, featureID string, at *LngLat) bool {
	return e.fireOnFeature(EventClick, layerID, featureID, at)
}

func (e *HeadlessEngine) fireOnFeature(event EventType, layerID, featureID string, at *LngLat) bool {
	e.mu.Lock()
	feature := e.findFeatureLocked(layerID, featureID)
	e.mu.Unlock()
	if feature == nil {
		return false
	}

	point, _ := feature.Geometry.(orb.Point)
	lngLat := LngLat{Lon: point.Lon(), Lat: point.Lat()}
	if at != nil {
		lngLat = *at
	}
	return e.fire(event, layerID, MouseEvent{LngLat: lngLat, Features: []*geojson.Feature{feature}})
}

// fire вызывает обработчики вне блокировки: они сами обращаются к движку
func (e *HeadlessEngine) fire(event EventType, layerID string, me MouseEvent) bool {
	e.mu.Lock()
	if e.removed || e.layerIndexLocked(layerID) < 0 {
		e.mu.Unlock()
		return false
	}
	handlers := append([]Handler(nil), e.handlers[handlerKey{event: event, layer: layerID}]...)
	e.mu.Unlock()

	for _, h := range handlers {
		h(me)
	}
	return len(handlers) > 0
}

func (e *HeadlessEngine) findFeatureLocked(layerID, featureID string) *geojson.Feature {
	i := e.layerIndexLocked(layerID)
	if i < 0 {
		return nil
	}
	layer := e.layers[i]
	for _, f := range e.sources[layer.Source].Features {
		if geo.FeatureID(f) == featureID && layer.Filter.Matches(f) {
			return f
		}
	}
	return nil
}

func (e *HeadlessEngine) renderedLocked(layerID string) []string {
	i := e.layerIndexLocked(layerID)
	if i < 0 {
		return nil
	}
	layer := e.layers[i]
	ids := make([]string, 0)
	for _, f := range e.sources[layer.Source].Features {
		if layer.Filter.Matches(f) {
			ids = append(ids, geo.FeatureID(f))
		}
	}
	return ids
}

func (e *HeadlessEngine) layerIndexLocked(id string) int {
	for i, l := range e.layers {
		if l.ID == id {
			return i
		}
	}
	return -1
}

func (e *HeadlessEngine) popupsLocked() []Popup {
	ids := make([]int, 0, len(e.popups))
	for id := range e.popups {
		ids = append(ids, int(id))
	}
	sort.Ints(ids)

	popups := make([]Popup, 0, len(ids))
	for _, id := range ids {
		popups = append(popups, e.popups[PopupID(id)])
	}
	return popups
}

// LayerSnapshot - слой в снимке состояния
type LayerSnapshot struct {
	Layer
	FeatureCount int `json:"feature_count"`
}

// Snapshot - сериализуемое состояние движка для тонкого клиента
type Snapshot struct {
	Loaded       bool                                         `json:"loaded"`
	Removed      bool                                         `json:"removed"`
	Camera       Camera                                       `json:"camera"`
	Animations   int                                          `json:"animations"`
	Sources      map[string]*geojson.FeatureCollection        `json:"sources"`
	Layers       []LayerSnapshot                              `json:"layers"`
	FeatureState map[string]map[string]map[string]interface{} `json:"feature_state"`
	Popups       []Popup                                      `json:"popups"`
}

// Snapshot снимает текущее состояние
func (e *HeadlessEngine) Snapshot() Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()

	sources := make(map[string]*geojson.FeatureCollection, len(e.sources))
	for id, fc := range e.sources {
		sources[id] = fc
	}

	layers := make([]LayerSnapshot, 0, len(e.layers))
	for _, l := range e.layers {
		layers = append(layers, LayerSnapshot{Layer: l, FeatureCount: len(e.renderedLocked(l.ID))})
	}

	state := make(map[string]map[string]map[string]interface{}, len(e.featureState))
	for source, byID := range e.featureState {
		copiedByID := make(map[string]map[string]interface{}, len(byID))
		for id, kv := range byID {
			copiedKV := make(map[string]interface{}, len(kv))
			for k, v := range kv {
				copiedKV[k] = v
			}
			copiedByID[id] = copiedKV
		}
		state[source] = copiedByID
	}

	return Snapshot{
		Loaded:       e.loaded,
		Removed:      e.removed,
		Camera:       e.camera,
		Animations:   e.animations,
		Sources:      sources,
		Layers:       layers,
		FeatureState: state,
		Popups:       e.popupsLocked(),
	}
}

func clampZoom(z float64) float64 {
	if z < MinZoom {
		return MinZoom
	}
	if z > MaxZoom {
		return MaxZoom
	}
	return z
}
