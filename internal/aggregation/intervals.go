package aggregation

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/itsatony/w4b_v3/server/sensorlog/internal/errors"
)

// Interval is a named bucket width in seconds
type Interval struct {
	Label string
	Width int64
}

var intervals = map[string]Interval{
	"1min":  {"1min", 60},
	"5min":  {"5min", 5 * 60},
	"15min": {"15min", 15 * 60},
	"20min": {"20min", 20 * 60},
	"1hour": {"1hour", 3600},
	"6hour": {"6hour", 6 * 3600},
	"1day":  {"1day", 86400},
	"1week": {"1week", 7 * 86400},
}

var aliases = map[string]string{
	"minute": "1min",
	"hour":   "1hour",
	"day":    "1day",
	"week":   "1week",
}

// ParseInterval resolves a label such as "15min" or "hour". A Go duration
// of whole seconds ("90s", "2h") is accepted as well.
func ParseInterval(label string) (Interval, error) {
	key := strings.ToLower(strings.TrimSpace(label))
	if a, ok := aliases[key]; ok {
		key = a
	}
	if iv, ok := intervals[key]; ok {
		return iv, nil
	}
	d, err := time.ParseDuration(key)
	if err != nil || d < time.Second || d%time.Second != 0 {
		return Interval{}, errors.NewValidationError(fmt.Sprintf("unsupported interval %q", label), err)
	}
	return Interval{Label: key, Width: int64(d / time.Second)}, nil
}

const (
	hourSeconds = int64(time.Hour / time.Second)
	daySeconds  = 24 * hourSeconds
)

// DefaultInterval picks a bucket width suited to charting the span [start, end]
func DefaultInterval(start, end int64) string {
	// end-start does not fit in an int64
	if start < 0 && end > math.MaxInt64+start {
		return "1day"
	}
	span := end - start
	switch {
	case span <= 30*hourSeconds:
		return "1min"
	case span <= 70*daySeconds:
		return "20min"
	case span <= 13*30*daySeconds:
		return "6hour"
	default:
		return "1day"
	}
}

// FormatLabel renders a bucket start for display, in UTC
func FormatLabel(bucketStart, width int64) string {
	t := time.Unix(bucketStart, 0).UTC()
	if width >= 86400 && width%86400 == 0 {
		return t.Format("2006-01-02")
	}
	if width%60 == 0 {
		return t.Format("2006-01-02 15:04")
	}
	return t.Format("2006-01-02 15:04:05")
}
