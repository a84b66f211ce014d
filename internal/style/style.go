// Package style defines the rendering parameters applied uniformly to every page
// of one enhancement request.
package style

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/lucasb-eyer/go-colorful"
)

const (
	// MaxThickness bounds the dilation kernel side.
	MaxThickness = 15
	// MaxContrastGain bounds the linear gain applied before thresholding.
	MaxContrastGain = 20.0
)

// ErrInvalid is wrapped by every validation failure.
var ErrInvalid = errors.New("invalid style")

// ThresholdPolicy selects how the ink threshold is chosen.
type ThresholdPolicy string

const (
	// ThresholdFixed classifies pixels at or below enhance.FixedThreshold as ink.
	ThresholdFixed ThresholdPolicy = "fixed"
	// ThresholdOtsu picks the threshold from the page histogram.
	ThresholdOtsu ThresholdPolicy = "otsu"
)

// ParseThresholdPolicy accepts "fixed" or "otsu" (case-insensitive). Empty means fixed.
func ParseThresholdPolicy(s string) (ThresholdPolicy, error) {
	switch ThresholdPolicy(strings.ToLower(strings.TrimSpace(s))) {
	case "", ThresholdFixed:
		return ThresholdFixed, nil
	case ThresholdOtsu:
		return ThresholdOtsu, nil
	default:
		return "", fmt.Errorf("%w: unknown threshold policy %q", ErrInvalid, s)
	}
}

// RGB is an 8-bit per channel color.
type RGB struct {
	R, G, B uint8
}

func (c RGB) String() string { return fmt.Sprintf("#%02x%02x%02x", c.R, c.G, c.B) }

// MarshalJSON encodes the color as [r,g,b].
func (c RGB) MarshalJSON() ([]byte, error) {
	return json.Marshal([3]int{int(c.R), int(c.G), int(c.B)})
}

// UnmarshalJSON accepts [r,g,b] or a color string understood by ParseColor.
func (c *RGB) UnmarshalJSON(b []byte) error {
	var arr [3]int
	if err := json.Unmarshal(b, &arr); err == nil {
		for _, v := range arr {
			if v < 0 || v > 255 {
				return fmt.Errorf("%w: channel %d out of range", ErrInvalid, v)
			}
		}
		*c = RGB{uint8(arr[0]), uint8(arr[1]), uint8(arr[2])}
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("%w: color must be [r,g,b] or a string", ErrInvalid)
	}
	parsed, err := ParseColor(s)
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

var (
	White = RGB{255, 255, 255}
	Black = RGB{0, 0, 0}
)

// palette holds the named colors offered by the settings menu.
var palette = map[string]RGB{
	"white":      White,
	"black":      Black,
	"blue":       {0, 0, 255},
	"red":        {255, 0, 0},
	"green":      {0, 128, 0},
	"beige":      {245, 245, 220},
	"light_pink": {255, 230, 230},
	"purple":     {128, 0, 128},
}

// ParseColor resolves a palette name or a "#rrggbb" hex string.
func ParseColor(s string) (RGB, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if strings.HasPrefix(s, "#") {
		c, err := colorful.Hex(s)
		if err != nil {
			return RGB{}, fmt.Errorf("%w: bad hex color %q: %v", ErrInvalid, s, err)
		}
		r, g, b := c.RGB255()
		return RGB{r, g, b}, nil
	}
	if c, ok := palette[s]; ok {
		return c, nil
	}
	return RGB{}, fmt.Errorf("%w: unknown color %q", ErrInvalid, s)
}

// PaletteNames returns the known color names.
func PaletteNames() []string {
	names := make([]string, 0, len(palette))
	for k := range palette {
		names = append(names, k)
	}
	return names
}

// Config is the immutable per-request rendering configuration. It is always
// passed by value.
type Config struct {
	Thickness        int             `json:"thickness"`
	Background       RGB             `json:"background"`
	Ink              RGB             `json:"ink"`
	RemoveBackground bool            `json:"remove_background"`
	ContrastGain     float64         `json:"contrast_gain"`
	Threshold        ThresholdPolicy `json:"threshold"`
}

// Default returns the configuration used when a request leaves fields unset.
func Default() Config {
	return Config{
		Thickness:        3,
		Background:       White,
		Ink:              Black,
		RemoveBackground: true,
		ContrastGain:     3.0,
		Threshold:        ThresholdFixed,
	}
}

// Validate rejects configurations the enhancer cannot honor.
func (c Config) Validate() error {
	if c.Thickness < 1 || c.Thickness > MaxThickness {
		return fmt.Errorf("%w: thickness %d not in [1,%d]", ErrInvalid, c.Thickness, MaxThickness)
	}
	if !(c.ContrastGain > 0) || c.ContrastGain > MaxContrastGain {
		return fmt.Errorf("%w: contrast gain %v not in (0,%v]", ErrInvalid, c.ContrastGain, MaxContrastGain)
	}
	switch c.Threshold {
	case ThresholdFixed, ThresholdOtsu:
	default:
		return fmt.Errorf("%w: unknown threshold policy %q", ErrInvalid, c.Threshold)
	}
	return nil
}

// Flat reports whether ink and background coincide, which renders every page as
// a single color.
func (c Config) Flat() bool { return c.RemoveBackground && c.Ink == c.Background }
