package geo

import (
	"encoding/json"
	"testing"

	"github.com/cyclemap/internal/domain"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNetworksToFeatures(t *testing.T) {
	networks := []domain.Network{
		{ID: "bicing", Name: "Bicing", Location: domain.Location{City: "Barcelona", Country: "ES", Latitude: 41.38, Longitude: 2.17}},
		{ID: "citi-bike-nyc", Name: "Citi Bike", Location: domain.Location{City: "New York, NY", Country: "US", Latitude: 40.71, Longitude: -74.0}},
	}

	fc := NetworksToFeatures(networks)

	require.Len(t, fc.Features, 2)
	for i, n := range networks {
		f := fc.Features[i]
		assert.Equal(t, n.ID, f.ID)
		assert.Equal(t, orb.Point{n.Location.Longitude, n.Location.Latitude}, f.Geometry)
		assert.Equal(t, n.ID, f.Properties["id"])
		assert.Equal(t, n.Name, f.Properties["name"])
		assert.Equal(t, n.Location.City, f.Properties["city"])
		assert.Equal(t, n.Location.Country, f.Properties["country"])
		assert.Equal(t, "network", f.Properties["dataType"])
	}
}

func TestStationsToFeatures(t *testing.T) {
	stations := []domain.Station{
		{ID: "s2", Name: "Gran Via", Latitude: 41.39, Longitude: 2.16, FreeBikes: 4, EmptySlots: 11},
		{ID: "s1", Name: "Diagonal", Latitude: 41.40, Longitude: 2.15, FreeBikes: 0, EmptySlots: 20},
	}

	fc := StationsToFeatures(stations)

	require.Len(t, fc.Features, 2)
	assert.Equal(t, "s2", FeatureID(fc.Features[0]))
	assert.Equal(t, "s1", FeatureID(fc.Features[1]))
	assert.Equal(t, 4, fc.Features[0].Properties["free_bikes"])
	assert.Equal(t, 20, fc.Features[1].Properties["empty_slots"])
	assert.Equal(t, "station", fc.Features[1].Properties["dataType"])
	assert.NotContains(t, fc.Features[0].Properties, "city")
}

func TestEmptyInputProducesEmptyCollection(t *testing.T) {
	fc := StationsToFeatures(nil)
	require.NotNil(t, fc.Features)
	assert.Empty(t, fc.Features)

	data, err := json.Marshal(fc)
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"FeatureCollection","features":[]}`, string(data))
}

func TestFeatureID(t *testing.T) {
	f := geojson.NewFeature(orb.Point{0, 0})
	f.Properties["id"] = "from-props"
	assert.Equal(t, "from-props", FeatureID(f))

	f.ID = "explicit"
	assert.Equal(t, "explicit", FeatureID(f))
	assert.Equal(t, "", FeatureID(nil))
}
