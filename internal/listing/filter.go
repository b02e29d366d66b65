// Package listing - фильтрация, поиск и пагинация списка сетей.
package listing

import (
	"strings"

	"github.com/cyclemap/internal/domain"
)

// FilterState - состояние фильтров списка
type FilterState struct {
	Search  string `json:"search"`
	Country string `json:"country"`
	Page    int    `json:"page"`
}

// Matches - попадает ли сеть под фильтр.
// Страна: пустой фильтр или точное совпадение кода.
// Поиск: пустой, либо подстрока в названии, либо (если данные уже догружены) в названии оператора.
func Matches(n domain.Network, state FilterState, enrichment map[string]domain.Enrichment) bool {
	if state.Country != "" && n.Location.Country != state.Country {
		return false
	}
	if state.Search == "" {
		return true
	}

	needle := strings.ToLower(state.Search)
	if strings.Contains(strings.ToLower(n.Name), needle) {
		return true
	}

	if e, ok := enrichment[n.ID]; ok {
		for _, company := range e.Company {
			if strings.Contains(strings.ToLower(company), needle) {
				return true
			}
		}
	}
	return false
}

// Filter возвращает сети, подходящие под фильтр, в исходном порядке
func Filter(networks []domain.Network, state FilterState, enrichment map[string]domain.Enrichment) []domain.Network {
	result := make([]domain.Network, 0, len(networks))
	for _, n := range networks {
		if Matches(n, state, enrichment) {
			result = append(result, n)
		}
	}
	return result
}
