// Package mapview - контроллер карты: слои сетей и станций, подсветка, попапы,
// реакция на маршрут и выбор станции. Сам движок карты спрятан за Engine.
package mapview

import (
	"encoding/json"

	"github.com/paulmach/orb/geojson"
)

// LngLat - координаты в порядке движка карты
type LngLat struct {
	Lon float64 `json:"lon"`
	Lat float64 `json:"lat"`
}

// Camera - центр и зум карты
type Camera struct {
	Center LngLat  `json:"center"`
	Zoom   float64 `json:"zoom"`
}

// EventType - тип события мыши на слое
type EventType string

const (
	EventMouseMove  EventType = "mousemove"
	EventMouseLeave EventType = "mouseleave"
	EventClick      EventType = "click"
)

// MouseEvent - событие на слое: где произошло и какие фичи под курсором
type MouseEvent struct {
	LngLat   LngLat
	Features []*geojson.Feature
}

// Handler - обработчик события слоя
type Handler func(e MouseEvent)

// Filter - фильтр слоя по свойству: фича видна, если её свойство входит в In.
// Пустой In не пропускает ничего.
type Filter struct {
	Property string
	In       []string
}

// MatchIDs - фильтр по свойству id
func MatchIDs(ids ...string) *Filter {
	return &Filter{Property: "id", In: append([]string{}, ids...)}
}

// Matches - проходит ли фича через фильтр (nil пропускает всё)
func (f *Filter) Matches(feature *geojson.Feature) bool {
	if f == nil {
		return true
	}
	value, _ := feature.Properties[f.Property].(string)
	for _, v := range f.In {
		if v == value {
			return true
		}
	}
	return false
}

// MarshalJSON - выражение в нотации стилей карты: ["in", ["get", prop], ["literal", [...]]]
func (f Filter) MarshalJSON() ([]byte, error) {
	return json.Marshal([]interface{}{
		"in",
		[]interface{}{"get", f.Property},
		[]interface{}{"literal", f.In},
	})
}

// Layer - описание слоя
type Layer struct {
	ID     string                 `json:"id"`
	Type   string                 `json:"type"`
	Source string                 `json:"source"`
	Paint  map[string]interface{} `json:"paint,omitempty"`
	Filter *Filter                `json:"filter,omitempty"`
}

// PopupAction - действие внутри попапа (переход по маршруту)
type PopupAction struct {
	Label string `json:"label"`
	Href  string `json:"href"`
}

// Popup - всплывающее окно, привязанное к точке карты
type Popup struct {
	LngLat LngLat       `json:"lnglat"`
	Title  string       `json:"title"`
	Lines  []string     `json:"lines,omitempty"`
	Action *PopupAction `json:"action,omitempty"`
}

// PopupID - идентификатор открытого попапа
type PopupID int

// Engine - императивный движок карты. Один экземпляр на монтирование,
// освобождается через Remove.
type Engine interface {
	// OnLoad регистрирует обработчик однократного события загрузки стиля
	OnLoad(fn func())
	Loaded() bool

	AddSource(id string, data *geojson.FeatureCollection) error
	HasSource(id string) bool
	SetSourceData(id string, data *geojson.FeatureCollection) error

	AddLayer(layer Layer) error
	HasLayer(id string) bool
	SetFilter(layerID string, filter *Filter) error

	SetFeatureState(source, featureID, key string, value interface{})

	On(event EventType, layerID string, h Handler)

	Camera() Camera
	FlyTo(target Camera)
	ZoomIn()
	ZoomOut()

	AddPopup(p Popup) PopupID
	RemovePopup(id PopupID)

	Remove()
}

// EngineFactory создает движок с начальной камерой
type EngineFactory func(initial Camera) Engine
