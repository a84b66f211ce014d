package style

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultIsValid(t *testing.T) {
	d := Default()
	require.NoError(t, d.Validate())
	assert.Equal(t, 3, d.Thickness)
	assert.Equal(t, White, d.Background)
	assert.Equal(t, Black, d.Ink)
	assert.True(t, d.RemoveBackground)
	assert.InDelta(t, 3.0, d.ContrastGain, 1e-9)
	assert.Equal(t, ThresholdFixed, d.Threshold)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		ok     bool
	}{
		{"thin", func(c *Config) { c.Thickness = 1 }, true},
		{"max thickness", func(c *Config) { c.Thickness = MaxThickness }, true},
		{"zero thickness", func(c *Config) { c.Thickness = 0 }, false},
		{"negative thickness", func(c *Config) { c.Thickness = -3 }, false},
		{"too thick", func(c *Config) { c.Thickness = MaxThickness + 1 }, false},
		{"zero contrast", func(c *Config) { c.ContrastGain = 0 }, false},
		{"huge contrast", func(c *Config) { c.ContrastGain = 100 }, false},
		{"otsu", func(c *Config) { c.Threshold = ThresholdOtsu }, true},
		{"bogus policy", func(c *Config) { c.Threshold = "magic" }, false},
		{"ink equals background", func(c *Config) { c.Ink = c.Background }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := Default()
			tt.mutate(&c)
			err := c.Validate()
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.True(t, errors.Is(err, ErrInvalid), "got %v", err)
			}
		})
	}
}

func TestParseColor(t *testing.T) {
	tests := []struct {
		in   string
		want RGB
		ok   bool
	}{
		{"white", White, true},
		{"Blue", RGB{0, 0, 255}, true},
		{"light_pink", RGB{255, 230, 230}, true},
		{"#0a141e", RGB{10, 20, 30}, true},
		{" #FF8000 ", RGB{255, 128, 0}, true},
		{"#zzzzzz", RGB{}, false},
		{"mauve", RGB{}, false},
		{"", RGB{}, false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseColor(tt.in)
			if !tt.ok {
				assert.ErrorIs(t, err, ErrInvalid)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestPaletteNames(t *testing.T) {
	names := PaletteNames()
	assert.Len(t, names, 8)
	for _, n := range names {
		_, err := ParseColor(n)
		assert.NoError(t, err, n)
	}
}

func TestParseThresholdPolicy(t *testing.T) {
	p, err := ParseThresholdPolicy("")
	require.NoError(t, err)
	assert.Equal(t, ThresholdFixed, p)

	p, err = ParseThresholdPolicy("OTSU")
	require.NoError(t, err)
	assert.Equal(t, ThresholdOtsu, p)

	_, err = ParseThresholdPolicy("adaptive")
	assert.ErrorIs(t, err, ErrInvalid)
}

func TestConfigJSON(t *testing.T) {
	c := Default()
	c.Ink = RGB{10, 20, 30}
	b, err := json.Marshal(c)
	require.NoError(t, err)
	assert.Contains(t, string(b), `"ink":[10,20,30]`)

	var back Config
	require.NoError(t, json.Unmarshal(b, &back))
	assert.Equal(t, c, back)

	var named Config
	require.NoError(t, json.Unmarshal([]byte(`{"ink":"red","background":"#f5f5dc"}`), &named))
	assert.Equal(t, RGB{255, 0, 0}, named.Ink)
	assert.Equal(t, RGB{245, 245, 220}, named.Background)

	var bad Config
	assert.Error(t, json.Unmarshal([]byte(`{"ink":[0,0,300]}`), &bad))
}

func TestFlat(t *testing.T) {
	c := Default()
	assert.False(t, c.Flat())
	c.Ink = c.Background
	assert.True(t, c.Flat())
	c.RemoveBackground = false
	assert.False(t, c.Flat())
}
