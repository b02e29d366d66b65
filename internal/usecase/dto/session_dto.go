package dto

import (
	"github.com/cyclemap/internal/domain"
	"github.com/cyclemap/internal/mapview"
)

// CreateSessionRequest - открыть сессию просмотра на адресе (путь + query)
type CreateSessionRequest struct {
	URL string `json:"url" validate:"omitempty,startswith=/,max=2048"`
}

// NavigateRequest - переход по маршруту внутри сессии
type NavigateRequest struct {
	URL string `json:"url" validate:"required,startswith=/,max=2048"`
}

// FilterRequest - изменение поиска и/или страны; nil - поле не меняется
type FilterRequest struct {
	Search  *string `json:"search,omitempty" validate:"omitempty,max=100"`
	Country *string `json:"country,omitempty" validate:"omitempty,max=2"`
}

// PageRequest - переход на страницу списка
type PageRequest struct {
	Page int `json:"page" validate:"required,min=1"`
}

// HoverRequest - курсор над сетью на карте
type HoverRequest struct {
	NetworkID string `json:"network_id" validate:"required,max=128"`
}

// ClickRequest - клик по фиче слоя карты. Lon/Lat - точка клика (для копий мира)
type ClickRequest struct {
	Layer     string   `json:"layer" validate:"required,oneof=networks stations"`
	FeatureID string   `json:"feature_id" validate:"required,max=128"`
	Lon       *float64 `json:"lon,omitempty" validate:"omitempty,min=-1080,max=1080"`
	Lat       *float64 `json:"lat,omitempty" validate:"omitempty,min=-90,max=90"`
}

// SelectRequest - выбор строки в таблице станций; пустой station_id снимает выбор
type SelectRequest struct {
	StationID string `json:"station_id" validate:"max=128"`
}

// LocateRequest - положение из браузера; без координат используется IP клиента
type LocateRequest struct {
	Latitude  *float64 `json:"latitude,omitempty" validate:"omitempty,min=-90,max=90"`
	Longitude *float64 `json:"longitude,omitempty" validate:"omitempty,min=-180,max=180"`
	Accuracy  float64  `json:"accuracy,omitempty" validate:"omitempty,min=0"`
}

// ZoomRequest - шаг зума
type ZoomRequest struct {
	Direction string `json:"direction" validate:"required,oneof=in out"`
}

// SessionResponse - снимок сессии просмотра
type SessionResponse struct {
	ID       string           `json:"id"`
	URL      string           `json:"url"`
	Map      mapview.Snapshot `json:"map"`
	View     mapview.State    `json:"view"`
	Listing  *BrowseResponse  `json:"listing,omitempty"`
	Selected *domain.Station  `json:"selected,omitempty"`
}
