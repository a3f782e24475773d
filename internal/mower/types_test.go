package mower

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateIMEI(t *testing.T) {
	t.Run("valid", func(t *testing.T) {
		assert.NoError(t, ValidateIMEI("351234567890123"))
	})

	t.Run("wrong prefix", func(t *testing.T) {
		err := ValidateIMEI("361234567890123")
		assert.Error(t, err)
	})

	t.Run("too short", func(t *testing.T) {
		assert.Error(t, ValidateIMEI("35123456789012"))
	})

	t.Run("too long", func(t *testing.T) {
		assert.Error(t, ValidateIMEI("3512345678901234"))
	})

	t.Run("non-digits", func(t *testing.T) {
		assert.Error(t, ValidateIMEI("35123456789012x"))
	})

	t.Run("empty", func(t *testing.T) {
		assert.Error(t, ValidateIMEI(""))
	})
}

func TestRobotState(t *testing.T) {
	t.Run("known states", func(t *testing.T) {
		assert.Equal(t, "charging", StateCharging.String())
		assert.Equal(t, "working", StateWorking.String())
		assert.Equal(t, "bordercut", StateBorderCut.String())
	})

	t.Run("out of range normalizes to unknown", func(t *testing.T) {
		assert.Equal(t, StateUnknown, RobotState(99).Normalize())
		assert.Equal(t, "unknown", RobotState(99).String())
		assert.Equal(t, StateUnknown, RobotState(-1).Normalize())
	})
}

func TestNewDevice(t *testing.T) {
	device := NewDevice(Registration{IMEI: "351234567890123", Name: "Backyard"})

	assert.Equal(t, "351234567890123", device.IMEI)
	assert.Equal(t, "Backyard", device.Name)
	assert.Equal(t, StateUnknown, device.State)
	assert.False(t, device.Connected)
	assert.False(t, device.Available())
	assert.Nil(t, device.Serial)
	assert.Nil(t, device.Location)
	assert.Nil(t, device.LastSeen)
}

func TestDevice_Clone(t *testing.T) {
	serial := "AM032L12345"
	seen := time.Date(2026, 8, 25, 10, 0, 0, 0, time.UTC)
	device := Device{
		IMEI:     "351234567890123",
		Serial:   &serial,
		Location: &Location{Latitude: 51.5, Longitude: 7.4},
		LastSeen: &seen,
	}

	clone := device.Clone()
	require.NotNil(t, clone.Serial)
	require.NotNil(t, clone.Location)
	require.NotNil(t, clone.LastSeen)

	// Mutating the clone must not leak into the original.
	*clone.Serial = "changed"
	clone.Location.Latitude = 0
	*clone.LastSeen = time.Time{}

	assert.Equal(t, "AM032L12345", *device.Serial)
	assert.Equal(t, 51.5, device.Location.Latitude)
	assert.Equal(t, seen, *device.LastSeen)
}

func TestDevice_ModelAndManufacturer(t *testing.T) {
	tests := []struct {
		name         string
		serial       *string
		model        string
		manufacturer string
	}{
		{"no serial", nil, "", "Zucchetti Centro Sistemi"},
		{"ambrogio", ptr("AM032L12345"), "AM032", "Ambrogio Robot"},
		{"wiper", ptr("WI125E00001"), "WI125", "Wiper"},
		{"techline", ptr("TH900X00042"), "TH900", "Techline"},
		{"kaaz", ptr("KX040D00007"), "KX040", "Kaaz"},
		{"unknown prefix", ptr("ZZ999Q00001"), "ZZ999", "Zucchetti Centro Sistemi"},
		{"short serial", ptr("AM"), "", "Ambrogio Robot"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			device := Device{Serial: tt.serial}
			assert.Equal(t, tt.model, device.Model())
			assert.Equal(t, tt.manufacturer, device.Manufacturer())
		})
	}
}

func ptr(s string) *string { return &s }
