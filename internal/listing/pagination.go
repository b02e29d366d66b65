package listing

import (
	"encoding/json"
	"strconv"
)

// DefaultSiblings - сколько соседних страниц показывать вокруг текущей
const DefaultSiblings = 1

// PageItem - элемент компактной пагинации: номер страницы или многоточие
type PageItem struct {
	Page     int
	Ellipsis bool
}

// Ellipsis - пропуск в диапазоне страниц
var Ellipsis = PageItem{Ellipsis: true}

// Pages - удобный конструктор последовательности номеров
func Pages(pages ...int) []PageItem {
	items := make([]PageItem, len(pages))
	for i, p := range pages {
		items[i] = PageItem{Page: p}
	}
	return items
}

func (p PageItem) String() string {
	if p.Ellipsis {
		return "..."
	}
	return strconv.Itoa(p.Page)
}

// MarshalJSON - число или "..."
func (p PageItem) MarshalJSON() ([]byte, error) {
	if p.Ellipsis {
		return []byte(`"..."`), nil
	}
	return []byte(strconv.Itoa(p.Page)), nil
}

func (p *PageItem) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*p = Ellipsis
		return nil
	}
	var n int
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*p = PageItem{Page: n}
	return nil
}

// TotalPages - количество страниц (0 для пустого списка)
func TotalPages(total, pageSize int) int {
	if pageSize <= 0 || total <= 0 {
		return 0
	}
	return (total + pageSize - 1) / pageSize
}

// Paginate возвращает страницу page (с 1) размера pageSize
func Paginate[T any](items []T, page, pageSize int) []T {
	if pageSize <= 0 || page < 1 {
		return []T{}
	}
	start := (page - 1) * pageSize
	if start >= len(items) {
		return []T{}
	}
	end := start + pageSize
	if end > len(items) {
		end = len(items)
	}
	return items[start:end]
}

// PageRange строит компактный диапазон вида "1 … 4 5 6 … 20"
func PageRange(current, totalPages, siblings int) []PageItem {
	if totalPages <= 0 {
		return []PageItem{}
	}
	if siblings < 0 {
		siblings = DefaultSiblings
	}
	if current < 1 {
		current = 1
	}
	if current > totalPages {
		current = totalPages
	}

	if totalPages <= siblings+5 {
		return span(1, totalPages)
	}

	left := max(current-siblings, 1)
	right := min(current+siblings, totalPages)

	showLeftDots := current-siblings > 2
	showRightDots := current+siblings < totalPages-1

	// минимальная ширина одностороннего блока, чтобы диапазон не "прыгал" у краёв
	edge := 1 + 2*siblings

	switch {
	case !showLeftDots && showRightDots:
		items := span(1, max(right, edge))
		return append(items, Ellipsis, PageItem{Page: totalPages})

	case showLeftDots && !showRightDots:
		items := []PageItem{{Page: 1}, Ellipsis}
		return append(items, span(min(left, totalPages-edge+1), totalPages)...)

	case showLeftDots && showRightDots:
		items := []PageItem{{Page: 1}, Ellipsis}
		items = append(items, span(left, right)...)
		return append(items, Ellipsis, PageItem{Page: totalPages})
	}

	return span(1, totalPages)
}

func span(from, to int) []PageItem {
	items := make([]PageItem, 0, to-from+1)
	for p := from; p <= to; p++ {
		items = append(items, PageItem{Page: p})
	}
	return items
}
