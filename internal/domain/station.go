package domain

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Station - станция сети с текущей доступностью
type Station struct {
	ID         string       `json:"id"`
	Name       string       `json:"name"`
	Latitude   float64      `json:"latitude"`
	Longitude  float64      `json:"longitude"`
	Timestamp  string       `json:"timestamp"`
	FreeBikes  int          `json:"free_bikes"`
	EmptySlots int          `json:"empty_slots"`
	Extra      StationExtra `json:"extra"`
}

// StationExtra - необязательные поля, которые отдают не все сети.
// Типы полей у разных источников расходятся (renting бывает и 1, и true),
// поэтому всё, кроме адреса, хранится как есть и читается через Flex.
type StationExtra struct {
	Address         string `json:"address,omitempty"`
	UID             Flex   `json:"uid,omitempty"`
	Renting         Flex   `json:"renting,omitempty"`
	Returning       Flex   `json:"returning,omitempty"`
	LastUpdated     Flex   `json:"last_updated,omitempty"`
	HasEbikes       Flex   `json:"has_ebikes,omitempty"`
	Ebikes          Flex   `json:"ebikes,omitempty"`
	Payment         Flex   `json:"payment,omitempty"`
	PaymentTerminal Flex   `json:"payment-terminal,omitempty"`
	Slots           Flex   `json:"slots,omitempty"`
	RentalURIs      Flex   `json:"rental_uris,omitempty"`
}

func (e *StationExtra) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*e = StationExtra{}
		return nil
	}

	type plain StationExtra
	var aux struct {
		plain
		Address Flex `json:"address"`
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return fmt.Errorf("extra: %w", err)
	}
	*e = StationExtra(aux.plain)
	e.Address = aux.Address.String()
	return nil
}

// Flex - значение необязательного поля в исходном JSON-виде
type Flex []byte

func (f Flex) MarshalJSON() ([]byte, error) {
	if len(f) == 0 {
		return []byte("null"), nil
	}
	return f, nil
}

func (f *Flex) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*f = nil
		return nil
	}
	*f = append((*f)[:0], data...)
	return nil
}

// String - строка как есть, число или bool текстом, пусто для отсутствующего значения
func (f Flex) String() string {
	if len(f) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(f, &s); err == nil {
		return s
	}
	if f[0] == '{' || f[0] == '[' {
		return ""
	}
	return string(f)
}

// Int - целое из числа, bool (1/0) или числовой строки
func (f Flex) Int() (int, bool) {
	if len(f) == 0 {
		return 0, false
	}
	var n float64
	if err := json.Unmarshal(f, &n); err == nil {
		return int(n), true
	}
	var b bool
	if err := json.Unmarshal(f, &b); err == nil {
		if b {
			return 1, true
		}
		return 0, true
	}
	if n, err := strconv.Atoi(strings.TrimSpace(f.String())); err == nil {
		return n, true
	}
	return 0, false
}

// Bool - true/false, ненулевое число или строка "true"/"1"
func (f Flex) Bool() (bool, bool) {
	if len(f) == 0 {
		return false, false
	}
	var b bool
	if err := json.Unmarshal(f, &b); err == nil {
		return b, true
	}
	if b, err := strconv.ParseBool(strings.TrimSpace(f.String())); err == nil {
		return b, true
	}
	if n, ok := f.Int(); ok {
		return n != 0, true
	}
	return false, false
}

// DisplayName - адрес, если он есть, иначе имя станции
func (s Station) DisplayName() string {
	if s.Extra.Address != "" {
		return s.Extra.Address
	}
	return s.Name
}

// FindStation ищет станцию по id
func (d *NetworkDetails) FindStation(id string) (Station, bool) {
	if d == nil {
		return Station{}, false
	}
	for _, s := range d.Stations {
		if s.ID == id {
			return s, true
		}
	}
	return Station{}, false
}
