package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWrapLongitude(t *testing.T) {
	tests := []struct {
		name      string
		lon       float64
		reference float64
		expected  float64
	}{
		{"same world copy", 2.17, 2.5, 2.17},
		{"click on the copy to the east", 2.17, 362.0, 362.17},
		{"click two copies to the west", 2.17, -717.0, -717.83},
		{"exactly 180 apart stays", -90, 90, -90},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.expected, WrapLongitude(tt.lon, tt.reference), 1e-9)
		})
	}
}

func TestValidateCoordinates(t *testing.T) {
	assert.True(t, ValidateCoordinates(41.38, 2.17))
	assert.False(t, ValidateCoordinates(91, 0))
	assert.False(t, ValidateCoordinates(0, -181))
}

func TestNear(t *testing.T) {
	assert.True(t, Near(10.0, 10.0005, 0.001))
	assert.False(t, Near(10.0, 10.01, 0.001))
}
