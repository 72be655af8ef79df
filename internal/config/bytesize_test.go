package config

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseByteSize(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected ByteSize
		wantErr  bool
	}{
		{"bytes", "1024", 1024, false},
		{"explicit bytes", "512B", 512, false},
		{"decimal kilobytes", "5KB", 5000, false},
		{"decimal megabytes", "10MB", 10_000_000, false},
		{"binary mebibytes", "32MiB", 32 << 20, false},
		{"short binary", "2g", 2 << 30, false},
		{"with space", "5 KiB", 5 << 10, false},
		{"float", "1.5MiB", ByteSize(1.5 * (1 << 20)), false},
		{"zero", "0", 0, false},
		{"unknown unit", "5XB", 0, true},
		{"invalid", "invalid", 0, true},
		{"empty", "", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			size, err := ParseByteSize(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, size)
		})
	}
}

func TestByteSize_UnmarshalJSON(t *testing.T) {
	tests := []struct {
		name     string
		json     string
		expected ByteSize
	}{
		{"string format", `"4MiB"`, 4 << 20},
		{"string with space", `"4 MiB"`, 4 << 20},
		{"bytes int", `5242880`, 5242880},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var b ByteSize
			require.NoError(t, json.Unmarshal([]byte(tt.json), &b))
			assert.Equal(t, tt.expected, b)
		})
	}

	var b ByteSize
	assert.Error(t, json.Unmarshal([]byte(`"lots"`), &b))
}

func TestByteSize_String(t *testing.T) {
	tests := []struct {
		size     ByteSize
		expected string
	}{
		{0, "0"},
		{1000, "1000"},
		{4 << 10, "4KiB"},
		{32 << 20, "32MiB"},
		{3 << 30, "3GiB"},
		{(1 << 20) + 1, "1048577"},
	}
	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.size.String())
			text, err := tt.size.MarshalText()
			require.NoError(t, err)

			var back ByteSize
			require.NoError(t, back.UnmarshalText(text))
			assert.Equal(t, tt.size, back)
		})
	}
}
