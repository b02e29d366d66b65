// Package countries - справочник код страны -> название.
// Справочник передаётся явно всем, кому нужен, глобального экземпляра нет.
package countries

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/cyclemap/internal/domain"
)

//go:embed countries.json
var countriesJSON []byte

type countriesFile struct {
	Data []domain.Country `json:"data"`
}

// Lookup - неизменяемый справочник стран
type Lookup struct {
	names map[string]string
}

// Load читает встроенный справочник
func Load() (*Lookup, error) {
	return Parse(countriesJSON)
}

// Parse читает справочник в формате {"data":[{"code":..,"name":..}]}
func Parse(data []byte) (*Lookup, error) {
	var file countriesFile
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("invalid countries data format: %w", err)
	}
	if file.Data == nil {
		return nil, fmt.Errorf("invalid countries data format: expected {\"data\": [...]}")
	}

	names := make(map[string]string, len(file.Data))
	for _, c := range file.Data {
		names[strings.ToUpper(c.Code)] = c.Name
	}
	return &Lookup{names: names}, nil
}

// FromMap - справочник из готовой мапы (удобно в тестах)
func FromMap(m map[string]string) *Lookup {
	names := make(map[string]string, len(m))
	for code, name := range m {
		names[strings.ToUpper(code)] = name
	}
	return &Lookup{names: names}
}

// Name возвращает название страны, а для неизвестного кода - сам код
func (l *Lookup) Name(code string) string {
	if l == nil {
		return code
	}
	if name, ok := l.names[strings.ToUpper(code)]; ok {
		return name
	}
	return code
}

// Len - количество стран в справочнике
func (l *Lookup) Len() int {
	if l == nil {
		return 0
	}
	return len(l.names)
}

// Available - страны, в которых есть хотя бы одна сеть, по алфавиту названий
func (l *Lookup) Available(networks []domain.Network) []domain.Country {
	seen := make(map[string]struct{})
	result := make([]domain.Country, 0)

	for _, n := range networks {
		code := n.Location.Country
		if _, ok := seen[code]; ok {
			continue
		}
		seen[code] = struct{}{}
		result = append(result, domain.Country{Code: code, Name: l.Name(code)})
	}

	sort.SliceStable(result, func(i, j int) bool {
		return result[i].Name < result[j].Name
	})
	return result
}

// Search - страны, в названии которых есть query без учёта регистра.
// Пустой query возвращает список как есть.
func Search(list []domain.Country, query string) []domain.Country {
	needle := strings.ToLower(strings.TrimSpace(query))
	if needle == "" {
		return list
	}
	result := make([]domain.Country, 0, len(list))
	for _, c := range list {
		if strings.Contains(strings.ToLower(c.Name), needle) {
			result = append(result, c)
		}
	}
	return result
}
