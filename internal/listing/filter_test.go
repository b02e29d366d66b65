package listing

import (
	"fmt"
	"strings"
	"testing"

	"github.com/cyclemap/internal/domain"
	"github.com/stretchr/testify/assert"
)

func sampleNetworks() []domain.Network {
	return []domain.Network{
		{ID: "bicing", Name: "Bicing", Location: domain.Location{City: "Barcelona", Country: "ES"}},
		{ID: "bicimad", Name: "BiciMAD", Location: domain.Location{City: "Madrid", Country: "ES"}},
		{ID: "velib", Name: "Vélib' Métropole", Location: domain.Location{City: "Paris", Country: "FR"}},
		{ID: "citi-bike-nyc", Name: "Citi Bike", Location: domain.Location{City: "New York, NY", Country: "US"}},
		{ID: "divvy", Name: "Divvy", Location: domain.Location{City: "Chicago, IL", Country: "US"}},
	}
}

func TestMatches(t *testing.T) {
	enrichment := map[string]domain.Enrichment{
		"divvy": {Company: []string{"Lyft, Inc."}, StationCount: 800},
		"velib": {Company: []string{}, StationCount: 0},
	}

	tests := []struct {
		name     string
		id       string
		state    FilterState
		expected bool
	}{
		{"no filters", "bicing", FilterState{}, true},
		{"country match", "bicing", FilterState{Country: "ES"}, true},
		{"country mismatch", "velib", FilterState{Country: "ES"}, false},
		{"name case-insensitive", "bicimad", FilterState{Search: "bicim"}, true},
		{"name substring upper", "citi-bike-nyc", FilterState{Search: "BIKE"}, true},
		{"company match", "divvy", FilterState{Search: "lyft"}, true},
		{"company not fetched yet", "citi-bike-nyc", FilterState{Search: "lyft"}, false},
		{"degraded enrichment matches by name only", "velib", FilterState{Search: "vélib"}, true},
		{"search and country both required", "divvy", FilterState{Search: "lyft", Country: "ES"}, false},
	}

	byID := make(map[string]domain.Network)
	for _, n := range sampleNetworks() {
		byID[n.ID] = n
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, Matches(byID[tt.id], tt.state, enrichment))
		})
	}
}

// Фильтр совпадает с определением из предиката для всех комбинаций
func TestFilter_property(t *testing.T) {
	networks := sampleNetworks()
	enrichment := map[string]domain.Enrichment{
		"bicing": {Company: []string{"PBSC Urban Solutions"}},
	}

	searches := []string{"", "b", "BI", "pbsc", "velib", "zzz", "i"}
	countries := []string{"", "ES", "FR", "US", "DE"}

	for _, s := range searches {
		for _, c := range countries {
			state := FilterState{Search: s, Country: c}
			got := Filter(networks, state, enrichment)

			var want []domain.Network
			for _, n := range networks {
				countryOK := c == "" || n.Location.Country == c
				searchOK := s == "" || strings.Contains(strings.ToLower(n.Name), strings.ToLower(s))
				for _, company := range enrichment[n.ID].Company {
					if strings.Contains(strings.ToLower(company), strings.ToLower(s)) {
						searchOK = true
					}
				}
				if countryOK && searchOK {
					want = append(want, n)
				}
			}
			if want == nil {
				want = []domain.Network{}
			}

			assert.Equal(t, want, got, fmt.Sprintf("search=%q country=%q", s, c))
		}
	}
}
