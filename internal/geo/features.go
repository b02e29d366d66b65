// Package geo превращает доменные записи в GeoJSON-точки для слоёв карты.
package geo

import (
	"github.com/cyclemap/internal/domain"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

// DataType - значение свойства dataType, по нему карта различает слои
type DataType string

const (
	DataTypeNetwork DataType = "network"
	DataTypeStation DataType = "station"
)

// NetworksToFeatures - сети в FeatureCollection, порядок сохраняется
func NetworksToFeatures(networks []domain.Network) *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()
	fc.Features = make([]*geojson.Feature, 0, len(networks))

	for _, n := range networks {
		f := geojson.NewFeature(orb.Point{n.Location.Longitude, n.Location.Latitude})
		f.ID = n.ID
		f.Properties["id"] = n.ID
		f.Properties["name"] = n.Name
		f.Properties["city"] = n.Location.City
		f.Properties["country"] = n.Location.Country
		f.Properties["dataType"] = string(DataTypeNetwork)
		fc.Append(f)
	}

	return fc
}

// StationsToFeatures - станции в FeatureCollection, порядок сохраняется
func StationsToFeatures(stations []domain.Station) *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()
	fc.Features = make([]*geojson.Feature, 0, len(stations))

	for _, s := range stations {
		f := geojson.NewFeature(orb.Point{s.Longitude, s.Latitude})
		f.ID = s.ID
		f.Properties["id"] = s.ID
		f.Properties["name"] = s.Name
		f.Properties["free_bikes"] = s.FreeBikes
		f.Properties["empty_slots"] = s.EmptySlots
		f.Properties["dataType"] = string(DataTypeStation)
		fc.Append(f)
	}

	return fc
}

// FeatureID возвращает id фичи строкой (в GeoJSON id может быть числом)
func FeatureID(f *geojson.Feature) string {
	if f == nil {
		return ""
	}
	if id, ok := f.ID.(string); ok {
		return id
	}
	return f.Properties.MustString("id", "")
}
