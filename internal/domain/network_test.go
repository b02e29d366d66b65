package domain

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompanies_UnmarshalJSON(t *testing.T) {
	tests := []struct {
		name     string
		payload  string
		expected Companies
	}{
		{"array", `{"company":["Clear Channel","Ajuntament"]}`, Companies{"Clear Channel", "Ajuntament"}},
		{"single string", `{"company":"JCDecaux"}`, Companies{"JCDecaux"}},
		{"null", `{"company":null}`, nil},
		{"missing", `{}`, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var n Network
			require.NoError(t, json.Unmarshal([]byte(tt.payload), &n))
			assert.Equal(t, tt.expected, n.Company)
		})
	}

	t.Run("number is rejected", func(t *testing.T) {
		var n Network
		err := json.Unmarshal([]byte(`{"company":42}`), &n)
		assert.Error(t, err)
	})
}

func TestEnrichmentFromDetails(t *testing.T) {
	t.Run("nil details degrade to empty", func(t *testing.T) {
		e := EnrichmentFromDetails(nil)
		assert.Equal(t, []string{}, e.Company)
		assert.Equal(t, 0, e.StationCount)
	})

	t.Run("company and station count", func(t *testing.T) {
		d := &NetworkDetails{
			Network:  Network{ID: "bicing", Company: Companies{"PBSC"}},
			Stations: []Station{{ID: "a"}, {ID: "b"}},
		}
		e := EnrichmentFromDetails(d)
		assert.Equal(t, []string{"PBSC"}, e.Company)
		assert.Equal(t, 2, e.StationCount)
	})
}

func TestStation_DisplayName(t *testing.T) {
	assert.Equal(t, "C/ Mallorca 41", Station{Name: "001", Extra: StationExtra{Address: "C/ Mallorca 41"}}.DisplayName())
	assert.Equal(t, "001", Station{Name: "001"}.DisplayName())
}

func TestStationExtra_TolerantDecoding(t *testing.T) {
	var s Station
	err := json.Unmarshal([]byte(`{"id":"s1","name":"Gran Via","extra":{
		"address":"Gran Via 1","uid":361,"renting":true,"returning":1,
		"slots":"15","last_updated":1760695200,"payment":["key","creditcard"],
		"has_ebikes":"true","rental_uris":{"ios":"bike://s1"}}}`), &s)
	require.NoError(t, err)

	assert.Equal(t, "Gran Via 1", s.Extra.Address)
	assert.Equal(t, "361", s.Extra.UID.String())

	renting, ok := s.Extra.Renting.Bool()
	assert.True(t, ok)
	assert.True(t, renting)

	returning, ok := s.Extra.Returning.Bool()
	assert.True(t, ok)
	assert.True(t, returning)

	slots, ok := s.Extra.Slots.Int()
	assert.True(t, ok)
	assert.Equal(t, 15, slots)

	updated, ok := s.Extra.LastUpdated.Int()
	assert.True(t, ok)
	assert.Equal(t, 1760695200, updated)

	ebikes, ok := s.Extra.HasEbikes.Bool()
	assert.True(t, ok)
	assert.True(t, ebikes)

	_, ok = s.Extra.Ebikes.Int()
	assert.False(t, ok)
	assert.Equal(t, "", s.Extra.Payment.String())
}

func TestStationExtra_OddTypesAndNull(t *testing.T) {
	var s Station
	require.NoError(t, json.Unmarshal([]byte(`{"id":"s1","extra":{"address":42,"renting":"no"}}`), &s))
	assert.Equal(t, "42", s.Extra.Address)
	_, ok := s.Extra.Renting.Bool()
	assert.False(t, ok)

	var empty Station
	require.NoError(t, json.Unmarshal([]byte(`{"id":"s2","extra":null}`), &empty))
	assert.Equal(t, "", empty.Extra.Address)
	assert.Nil(t, empty.Extra.Renting)
}

func TestStationExtra_RoundTripKeepsUpstreamValues(t *testing.T) {
	in := `{"address":"Pl. Catalunya","uid":"abc","renting":true}`
	var extra StationExtra
	require.NoError(t, json.Unmarshal([]byte(in), &extra))

	out, err := json.Marshal(extra)
	require.NoError(t, err)
	assert.JSONEq(t, in, string(out))
}
