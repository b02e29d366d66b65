package listing

import (
	"sort"
	"strings"

	"github.com/cyclemap/internal/domain"
)

// Колонки таблицы станций, по которым можно сортировать
const (
	SortByName       = "name"
	SortByFreeBikes  = "free_bikes"
	SortByEmptySlots = "empty_slots"

	OrderAsc  = "asc"
	OrderDesc = "desc"
)

// SortStations возвращает копию станций, устойчиво отсортированную по колонке.
// Неизвестная или пустая колонка оставляет порядок апстрима.
func SortStations(stations []domain.Station, by, order string) []domain.Station {
	sorted := make([]domain.Station, len(stations))
	copy(sorted, stations)

	var less func(a, b domain.Station) bool
	switch by {
	case SortByName:
		less = func(a, b domain.Station) bool {
			return strings.ToLower(a.DisplayName()) < strings.ToLower(b.DisplayName())
		}
	case SortByFreeBikes:
		less = func(a, b domain.Station) bool { return a.FreeBikes < b.FreeBikes }
	case SortByEmptySlots:
		less = func(a, b domain.Station) bool { return a.EmptySlots < b.EmptySlots }
	default:
		return sorted
	}

	if order == OrderDesc {
		asc := less
		less = func(a, b domain.Station) bool { return asc(b, a) }
	}

	sort.SliceStable(sorted, func(i, j int) bool {
		return less(sorted[i], sorted[j])
	})
	return sorted
}
