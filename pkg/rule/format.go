package rule

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/vanderheijden86/flowstate/pkg/metric"
)

// FormatNumber renders v with a display unit. Non-finite values render as
// "null".
func FormatNumber(v float64, unit string, decimals int) string {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return "null"
	}
	if decimals < 0 {
		decimals = 0
	}
	num := func(x float64) string { return strconv.FormatFloat(x, 'f', decimals, 64) }

	switch unit {
	case "", "none":
		return num(v)
	case "short":
		if math.Abs(v) < 1000 {
			return num(v)
		}
		scaled, prefix := humanize.ComputeSI(v)
		return num(scaled) + " " + prefix
	case "percent":
		return num(v) + "%"
	case "percentunit":
		return num(v*100) + "%"
	case "bytes":
		return signed(v, humanize.IBytes)
	case "decbytes":
		return signed(v, humanize.Bytes)
	case "locale":
		return humanize.CommafWithDigits(v, decimals)
	case "ms":
		return formatDuration(v, time.Millisecond, num)
	case "s":
		return formatDuration(v, time.Second, num)
	default:
		return num(v) + " " + unit
	}
}

func signed(v float64, f func(uint64) string) string {
	if v < 0 {
		return "-" + f(uint64(-v))
	}
	return f(uint64(v))
}

func formatDuration(v float64, unit time.Duration, num func(float64) string) string {
	d := time.Duration(v * float64(unit))
	switch {
	case d.Abs() < time.Second && unit == time.Millisecond:
		return num(v) + " ms"
	case d.Abs() < time.Minute:
		return num(d.Seconds()) + " s"
	default:
		return d.Round(time.Second).String()
	}
}

// FormatString applies the value or range maps selected by mappingType.
// The first visible matching map wins.
func FormatString(value string, mappingType int, values []ValueMapData, ranges []RangeMapData) string {
	switch mappingType {
	case MappingValue:
		for _, m := range values {
			if !m.Hidden && strings.TrimSpace(m.Value) == value {
				return m.Text
			}
		}
	case MappingRange:
		for _, m := range ranges {
			if !m.Hidden && inRange(value, m) {
				return m.Text
			}
		}
	}
	return value
}

func inRange(value string, m RangeMapData) bool {
	if value == "null" {
		return m.From == "null" && m.To == "null"
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil {
		return false
	}
	if m.From != "" {
		from, err := strconv.ParseFloat(m.From, 64)
		if err != nil || v < from {
			return false
		}
	}
	if m.To != "" {
		to, err := strconv.ParseFloat(m.To, 64)
		if err != nil || v > to {
			return false
		}
	}
	return true
}

// Stringify renders a raw metric value for string comparison.
func Stringify(v any) string {
	switch x := v.(type) {
	case nil:
		return "null"
	case string:
		return x
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case []any:
		parts := make([]string, len(x))
		for i, p := range x {
			parts[i] = Stringify(p)
		}
		return strings.Join(parts, ", ")
	case time.Time:
		return x.Format(time.RFC3339)
	default:
		return fmt.Sprint(x)
	}
}

var momentTokens = strings.NewReplacer(
	"YYYY", "2006",
	"YY", "06",
	"MMMM", "January",
	"MMM", "Jan",
	"MM", "01",
	"dddd", "Monday",
	"ddd", "Mon",
	"DD", "02",
	"HH", "15",
	"hh", "03",
	"mm", "04",
	"ss", "05",
	"SSS", "000",
	"A", "PM",
	"a", "pm",
	"ZZ", "-0700",
	"Z", "-07:00",
)

// GoLayout translates a moment-style date format into a Go time layout.
func GoLayout(format string) string {
	if format == "" {
		return time.DateTime
	}
	return momentTokens.Replace(format)
}

// FormatDate renders v with a moment-style format. Unparseable values
// render as "-".
func FormatDate(v any, format string) string {
	if xs, ok := v.([]any); ok && len(xs) > 0 {
		v = xs[0]
	}
	t := metric.ParseTime(v)
	if t.IsZero() {
		return "-"
	}
	return t.Format(GoLayout(format))
}
