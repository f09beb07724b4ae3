package opportunity

import (
	"fmt"
	"strings"
	"time"
)

// Timeframe is the chart bucket granularity requested from upstream.
type Timeframe string

const (
	Timeframe1H Timeframe = "1H"
	Timeframe4H Timeframe = "4H"
	Timeframe1D Timeframe = "1D"
)

// ParseTimeframe normalises user input such as "4h" or "1d".
func ParseTimeframe(v string) (Timeframe, error) {
	switch tf := Timeframe(strings.ToUpper(strings.TrimSpace(v))); tf {
	case Timeframe1H, Timeframe4H, Timeframe1D:
		return tf, nil
	case "":
		return Timeframe1H, nil
	default:
		return "", fmt.Errorf("unsupported timeframe %q (want 1H, 4H or 1D)", v)
	}
}

// Duration returns the bucket width.
func (t Timeframe) Duration() time.Duration {
	switch t {
	case Timeframe4H:
		return 4 * time.Hour
	case Timeframe1D:
		return 24 * time.Hour
	default:
		return time.Hour
	}
}
