package utils

import "math"

// ValidateCoordinates проверяет валидность координат
func ValidateCoordinates(lat, lon float64) bool {
	return lat >= -90 && lat <= 90 && lon >= -180 && lon <= 180
}

// WrapLongitude сдвигает долготу на кратное 360°, пока она не окажется в пределах 180°
// от опорной. Карта рисует несколько копий мира, попап должен встать у кликнутой копии.
func WrapLongitude(lon, reference float64) float64 {
	for math.Abs(reference-lon) > 180 {
		if reference > lon {
			lon += 360
		} else {
			lon -= 360
		}
	}
	return lon
}

// Near - разница не больше tolerance
func Near(a, b, tolerance float64) bool {
	return math.Abs(a-b) <= tolerance
}
