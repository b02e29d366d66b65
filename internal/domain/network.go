package domain

import (
	"encoding/json"
	"fmt"
)

// Location - расположение сети велопроката
type Location struct {
	City      string  `json:"city"`
	Country   string  `json:"country"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// Network представляет сеть велопроката из общего списка
type Network struct {
	ID       string    `json:"id"`
	Name     string    `json:"name"`
	Location Location  `json:"location"`
	Company  Companies `json:"company,omitempty"`
}

// NetworkDetails - сеть вместе со станциями
type NetworkDetails struct {
	Network
	Stations []Station `json:"stations"`
}

// Companies - список операторов сети.
// Апстрим отдаёт поле то строкой, то массивом, то null.
type Companies []string

func (c *Companies) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*c = nil
		return nil
	}

	var list []string
	if err := json.Unmarshal(data, &list); err == nil {
		*c = list
		return nil
	}

	var single string
	if err := json.Unmarshal(data, &single); err != nil {
		return fmt.Errorf("company: expected string or array: %w", err)
	}
	if single == "" {
		*c = nil
		return nil
	}
	*c = Companies{single}
	return nil
}

// Enrichment - данные сети, которых нет в общем списке и которые догружаются лениво
type Enrichment struct {
	Company      []string `json:"company"`
	StationCount int      `json:"station_count"`
}

// EnrichmentFromDetails собирает Enrichment из полной карточки сети
func EnrichmentFromDetails(d *NetworkDetails) Enrichment {
	if d == nil {
		return Enrichment{Company: []string{}}
	}
	company := []string(d.Company)
	if company == nil {
		company = []string{}
	}
	return Enrichment{
		Company:      company,
		StationCount: len(d.Stations),
	}
}

// Country - страна для фильтра
type Country struct {
	Code string `json:"code"`
	Name string `json:"name"`
}
