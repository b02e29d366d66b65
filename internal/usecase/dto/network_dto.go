package dto

import (
	"github.com/cyclemap/internal/domain"
	"github.com/cyclemap/internal/listing"
)

// BrowseRequest - фильтры списка сетей из query string
type BrowseRequest struct {
	Search  string `query:"search" json:"search" validate:"max=100"`
	Country string `query:"country" json:"country" validate:"omitempty,country"`
	Page    int    `query:"page" json:"page" validate:"omitempty,min=1"`
}

// NetworkCard - сеть в списке вместе с догруженными данными
type NetworkCard struct {
	domain.Network
	CountryName  string   `json:"country_name"`
	Companies    []string `json:"companies"`
	StationCount *int     `json:"station_count,omitempty"`
	Enriched     bool     `json:"enriched"`
}

// BrowseResponse - страница списка сетей
type BrowseResponse struct {
	Networks   []NetworkCard       `json:"networks"`
	Filter     listing.FilterState `json:"filter"`
	Total      int                 `json:"total"`
	TotalPages int                 `json:"total_pages"`
	PageSize   int                 `json:"page_size"`
	PageRange  []listing.PageItem  `json:"page_range"`
	Countries  []domain.Country    `json:"countries"`
	// Query - канонический query string для адресной строки (без page и пустых параметров)
	Query string `json:"query"`
}

// NetworkDetailRequest - запрос страницы сети
type NetworkDetailRequest struct {
	ID    string `params:"id" json:"id" validate:"required,max=128"`
	Page  int    `query:"page" json:"page" validate:"omitempty,min=1"`
	Sort  string `query:"sort" json:"sort" validate:"omitempty,oneof=name free_bikes empty_slots"`
	Order string `query:"order" json:"order" validate:"omitempty,oneof=asc desc"`
}

// NetworkDetailResponse - сеть со страницей таблицы станций
type NetworkDetailResponse struct {
	Network      domain.Network     `json:"network"`
	CountryName  string             `json:"country_name"`
	Stations     []domain.Station   `json:"stations"`
	StationCount int                `json:"station_count"`
	Page         int                `json:"page"`
	TotalPages   int                `json:"total_pages"`
	PageRange    []listing.PageItem `json:"page_range"`
	FreeBikes    int                `json:"free_bikes"`
	EmptySlots   int                `json:"empty_slots"`
	Sort         string             `json:"sort,omitempty"`
	Order        string             `json:"order,omitempty"`
	// Query - sort и order для ссылок пагинации таблицы
	Query string `json:"query"`
}

// CountriesRequest - поиск страны по названию
type CountriesRequest struct {
	Search string `query:"search" json:"search" validate:"max=64"`
}

// CountriesResponse - страны, в которых есть сети
type CountriesResponse struct {
	Countries []domain.Country `json:"countries"`
}

// ConvertNetworkCard собирает карточку сети
func ConvertNetworkCard(item listing.Item, countryName string) NetworkCard {
	card := NetworkCard{
		Network:     item.Network,
		CountryName: countryName,
		Companies:   item.Network.Company,
	}
	if item.Enrichment != nil {
		count := item.Enrichment.StationCount
		card.StationCount = &count
		card.Companies = item.Enrichment.Company
		card.Enriched = true
	}
	if card.Companies == nil {
		card.Companies = []string{}
	}
	return card
}
