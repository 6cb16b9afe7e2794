package memory

import (
	"strings"
	"time"

	dps "github.com/markusmobius/go-dateparser"

	"github.com/moolen/magma/internal/errors"
)

// TimeframeKind selects how a Timeframe resolves to a concrete window.
type TimeframeKind string

const (
	// TimeframeSpecific resolves to a ±1s window around a single instant.
	TimeframeSpecific TimeframeKind = "specific"
	// TimeframeRange resolves to [Value, End] with End defaulting to now.
	TimeframeRange TimeframeKind = "range"
	// TimeframeRelative resolves a human phrase like "last week".
	TimeframeRelative TimeframeKind = "relative"
)

// Timeframe describes a time window in one of three forms.
type Timeframe struct {
	Kind  TimeframeKind
	Value time.Time // specific instant or range start
	End   time.Time // range end; zero means now
	Expr  string    // relative expression
}

// Resolve turns a Timeframe into a concrete [from, to] window.
func (tf Timeframe) Resolve(now time.Time) (time.Time, time.Time, error) {
	switch tf.Kind {
	case TimeframeSpecific:
		if tf.Value.IsZero() {
			return time.Time{}, time.Time{}, errors.NewTemporal("ResolveTimeframe", "specific timeframe requires a value")
		}
		return tf.Value.Add(-time.Second), tf.Value.Add(time.Second), nil

	case TimeframeRange:
		if tf.Value.IsZero() {
			return time.Time{}, time.Time{}, errors.NewTemporal("ResolveTimeframe", "range timeframe requires a start")
		}
		end := tf.End
		if end.IsZero() {
			end = now
		}
		if end.Before(tf.Value) {
			return time.Time{}, time.Time{}, errors.NewTemporal("ResolveTimeframe", "range end precedes start")
		}
		return tf.Value, end, nil

	case TimeframeRelative:
		from := resolveRelative(tf.Expr, now)
		return from, now, nil

	default:
		return time.Time{}, time.Time{}, errors.NewTemporal("ResolveTimeframe", "unknown timeframe kind %q", tf.Kind)
	}
}

// resolveRelative maps a human phrase to a window start. Unrecognized
// phrases default to one week back.
func resolveRelative(expr string, now time.Time) time.Time {
	lower := strings.ToLower(strings.TrimSpace(expr))

	switch {
	case strings.Contains(lower, "hour"):
		return now.Add(-time.Hour)
	case strings.Contains(lower, "yesterday"), strings.Contains(lower, "day"):
		return now.Add(-24 * time.Hour)
	case strings.Contains(lower, "week"):
		return now.Add(-7 * 24 * time.Hour)
	case strings.Contains(lower, "month"):
		return now.AddDate(0, -1, 0)
	case strings.Contains(lower, "year"):
		return now.AddDate(-1, 0, 0)
	}

	// Unknown phrase: give the date parser a chance before defaulting.
	if t, err := parseHumanTime(lower); err == nil && !t.IsZero() && t.Before(now) {
		return t
	}

	return now.Add(-7 * 24 * time.Hour)
}

// ParseTime parses an instant: RFC3339 first, then human-readable via the
// date parser ("2024-06-15", "june 15th", "3 days ago").
func ParseTime(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, errors.NewValidation("ParseTime", "timestamp is required")
	}

	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t, nil
	}

	t, err := parseHumanTime(value)
	if err != nil {
		return time.Time{}, errors.NewValidation("ParseTime", "%q is not a valid RFC3339 or human-readable date", value).Wrap(err)
	}
	return t, nil
}

func parseHumanTime(value string) (time.Time, error) {
	parser := dps.Parser{}
	cfg := &dps.Configuration{
		// CurrentPeriod makes bare dates like "March" mean the current one
		PreferredDateSource: dps.CurrentPeriod,
	}

	parsed, err := parser.Parse(cfg, value)
	if err != nil {
		return time.Time{}, err
	}
	if parsed.IsZero() {
		return time.Time{}, errors.NewTemporal("parseHumanTime", "could not parse %q as a date", value)
	}
	return parsed.Time, nil
}
