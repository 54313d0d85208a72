package parser

import (
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"strings"
	"time"

	"github.com/amitngm/openlens-sub001/internal/logs/model"
)

var (
	timestampPrefix = regexp.MustCompile(
		`^\s*\[?(\d{4}-\d{2}-\d{2}[T ]\d{2}:\d{2}:\d{2}(?:[.,]\d+)?(?:Z|[+-]\d{2}:?\d{2})?)\]?\s*`,
	)
	// klog header, e.g. "I0102 15:04:05.000000    1 main.go:42] message"
	klogPrefix        = regexp.MustCompile(`^([IWEF])(\d{2})(\d{2}) (\d{2}:\d{2}:\d{2}(?:\.\d+)?)\s`)
	serverErrorStatus = regexp.MustCompile(`\b5\d{2}\b`)
	compactOffset     = regexp.MustCompile(`([+-]\d{2})(\d{2})$`)
)

var (
	timestampFields = []string{"timestamp", "time", "ts", "@timestamp"}
	levelFields     = []string{"level", "severity", "lvl"}
	messageFields   = []string{"message", "msg"}

	errorKeywords = []string{"error", "err", "failed", "failure", "exception", "fatal"}
	warnKeywords  = []string{"warn", "warning", "deprecated"}
	debugKeywords = []string{"debug", "[dbg]", "verbose"}
)

// ParseResult is the outcome of parsing one line. Parsing never fails: when
// nothing can be recognised the entry carries the fetch time and Structured is false.
type ParseResult struct {
	Entry           model.LogEntry
	TimestampParsed bool
	Structured      bool
}

// ParseLine extracts a timestamp and severity from a raw log line. A leading
// ISO-8601 or klog timestamp is read first, and the remainder is read field by
// field when it is a JSON object. A JSON timestamp wins over a leading one.
// The keyword heuristic always applies to errors, so a line it classifies as an
// error stays one whatever its declared level.
func ParseLine(line string, fetchedAt time.Time) ParseResult {
	result := ParseResult{
		Entry: model.LogEntry{
			Timestamp: fetchedAt,
			Message:   line,
			Raw:       line,
		},
	}

	body := line
	prefix, ok := leadingTimestamp(line, fetchedAt)
	if ok {
		result.Entry.Timestamp = prefix.timestamp
		result.TimestampParsed = true
		body = prefix.rest
	}

	keywordLevel := ClassifySeverity(line)
	result.Entry.Level = keywordLevel
	if fields, ok := decodeJSON(body); ok {
		result.Structured = true
		if ts, ok := structuredTimestamp(fields); ok {
			result.Entry.Timestamp = ts
			result.TimestampParsed = true
		}
		if msg, ok := firstString(fields, messageFields); ok {
			result.Entry.Message = msg
		}
		if level, ok := structuredLevel(fields); ok {
			result.Entry.Level = level
		}
	} else if prefix.level != "" && keywordLevel != model.Error {
		result.Entry.Level = prefix.level
	}

	if keywordLevel == model.Error {
		result.Entry.Level = model.Error
	}
	return result
}

// timestampPrefixMatch is a leading timestamp and the text after it. level is
// only set for klog headers.
type timestampPrefixMatch struct {
	timestamp time.Time
	rest      string
	level     model.Level
}

func leadingTimestamp(line string, fetchedAt time.Time) (timestampPrefixMatch, bool) {
	if ts, rest, ok := isoPrefix(line); ok {
		return timestampPrefixMatch{timestamp: ts, rest: rest}, true
	}
	return klogTimestamp(line, fetchedAt)
}

// ExtractTimestamp parses an ISO-8601 or RFC3339 timestamp at the start of the
// line, optionally wrapped in a bracket. Timestamps without a zone are UTC.
func ExtractTimestamp(line string) (time.Time, bool) {
	ts, _, ok := isoPrefix(line)
	return ts, ok
}

func isoPrefix(line string) (time.Time, string, bool) {
	match := timestampPrefix.FindStringSubmatchIndex(line)
	if match == nil {
		return time.Time{}, "", false
	}
	ts, ok := parseTimestamp(line[match[2]:match[3]])
	if !ok {
		return time.Time{}, "", false
	}
	return ts, line[match[1]:], true
}

// klogTimestamp reads a klog header. klog omits the year, so the fetch year is
// used, stepping back a year for dates that would lie more than a day ahead.
func klogTimestamp(line string, fetchedAt time.Time) (timestampPrefixMatch, bool) {
	match := klogPrefix.FindStringSubmatchIndex(line)
	if match == nil {
		return timestampPrefixMatch{}, false
	}
	group := func(i int) string { return line[match[2*i]:match[2*i+1]] }

	year := fetchedAt.UTC().Year()
	value := fmt.Sprintf("%04d-%s-%sT%s", year, group(2), group(3), group(4))
	ts, err := time.ParseInLocation("2006-01-02T15:04:05.999999999", value, time.UTC)
	if err != nil {
		return timestampPrefixMatch{}, false
	}
	if ts.After(fetchedAt.Add(24 * time.Hour)) {
		ts = ts.AddDate(-1, 0, 0)
	}

	var level model.Level
	switch group(1) {
	case "E", "F":
		level = model.Error
	case "W":
		level = model.Warn
	default:
		level = model.Info
	}
	return timestampPrefixMatch{timestamp: ts, rest: line[match[1]:], level: level}, true
}

func parseTimestamp(value string) (time.Time, bool) {
	normalized := strings.Replace(value, " ", "T", 1)
	normalized = strings.Replace(normalized, ",", ".", 1)
	normalized = compactOffset.ReplaceAllString(normalized, "$1:$2")

	if ts, err := time.Parse(time.RFC3339Nano, normalized); err == nil {
		return ts, true
	}
	if ts, err := time.ParseInLocation("2006-01-02T15:04:05.999999999", normalized, time.UTC); err == nil {
		return ts, true
	}
	return time.Time{}, false
}

// ClassifySeverity applies the keyword heuristic: error wins over warn, which
// wins over debug, and everything else is info.
func ClassifySeverity(line string) model.Level {
	lower := strings.ToLower(line)
	if containsAny(lower, errorKeywords) || serverErrorStatus.MatchString(lower) {
		return model.Error
	}
	if containsAny(lower, warnKeywords) {
		return model.Warn
	}
	if containsAny(lower, debugKeywords) {
		return model.Debug
	}
	return model.Info
}

func containsAny(s string, needles []string) bool {
	for _, needle := range needles {
		if strings.Contains(s, needle) {
			return true
		}
	}
	return false
}

func decodeJSON(line string) (map[string]interface{}, bool) {
	trimmed := strings.TrimSpace(line)
	if !strings.HasPrefix(trimmed, "{") {
		return nil, false
	}
	decoder := json.NewDecoder(strings.NewReader(trimmed))
	decoder.UseNumber()
	var fields map[string]interface{}
	if err := decoder.Decode(&fields); err != nil {
		return nil, false
	}
	return fields, true
}

func structuredTimestamp(fields map[string]interface{}) (time.Time, bool) {
	for _, key := range timestampFields {
		switch value := fields[key].(type) {
		case string:
			if ts, ok := parseTimestamp(strings.TrimSpace(value)); ok {
				return ts, true
			}
		case json.Number:
			if ts, ok := epochTimestamp(value); ok {
				return ts, true
			}
		}
	}
	return time.Time{}, false
}

// epochTimestamp infers seconds, milliseconds, microseconds or nanoseconds from
// the magnitude of the value.
func epochTimestamp(value json.Number) (time.Time, bool) {
	if n, err := value.Int64(); err == nil {
		switch abs := absInt(n); {
		case abs < 1e11:
			return time.Unix(n, 0).UTC(), true
		case abs < 1e14:
			return time.UnixMilli(n).UTC(), true
		case abs < 1e17:
			return time.UnixMicro(n).UTC(), true
		default:
			return time.Unix(0, n).UTC(), true
		}
	}
	f, err := value.Float64()
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return time.Time{}, false
	}
	switch abs := math.Abs(f); {
	case abs < 1e11:
		return time.Unix(0, int64(f*1e9)).UTC(), true
	case abs < 1e14:
		return time.Unix(0, int64(f*1e6)).UTC(), true
	case abs < 1e17:
		return time.Unix(0, int64(f*1e3)).UTC(), true
	default:
		return time.Unix(0, int64(f)).UTC(), true
	}
}

func absInt(n int64) int64 {
	if n < 0 {
		return -n
	}
	return n
}

func structuredLevel(fields map[string]interface{}) (model.Level, bool) {
	raw, ok := firstString(fields, levelFields)
	if !ok {
		return "", false
	}
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "error", "err", "fatal", "critical", "crit", "panic", "alert", "emergency":
		return model.Error, true
	case "warn", "warning":
		return model.Warn, true
	case "debug", "trace", "dbg":
		return model.Debug, true
	case "info", "information", "notice":
		return model.Info, true
	default:
		return "", false
	}
}

func firstString(fields map[string]interface{}, keys []string) (string, bool) {
	for _, key := range keys {
		if value, ok := fields[key].(string); ok && value != "" {
			return value, true
		}
	}
	return "", false
}
