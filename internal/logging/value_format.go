package logging

import (
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
)

// consoleTimeLayout keeps milliseconds so concurrent worker lines order clearly.
const consoleTimeLayout = "2006-01-02 15:04:05.000"

func formatTimestamp(ts time.Time) string {
	if ts.IsZero() {
		return ""
	}
	return ts.In(time.Local).Format(consoleTimeLayout)
}

// attrString renders a subject field (component, worker, job, kind) unquoted.
func attrString(v slog.Value) string {
	v = v.Resolve()
	if v.Kind() == slog.KindString {
		return v.String()
	}
	return plainValue(v)
}

// formatField renders one key=value pair's value for the console handler.
// Byte counts read as sizes and optional ids print "none" when unset.
func formatField(key string, v slog.Value) string {
	v = v.Resolve()
	if strings.HasSuffix(key, "_bytes") {
		if n, ok := byteCount(v); ok {
			return strings.ReplaceAll(humanize.Bytes(n), " ", "")
		}
	}
	return quoteIfNeeded(plainValue(v))
}

func plainValue(v slog.Value) string {
	switch v.Kind() {
	case slog.KindString:
		return v.String()
	case slog.KindBool:
		return strconv.FormatBool(v.Bool())
	case slog.KindInt64:
		return strconv.FormatInt(v.Int64(), 10)
	case slog.KindUint64:
		return strconv.FormatUint(v.Uint64(), 10)
	case slog.KindFloat64:
		return strconv.FormatFloat(v.Float64(), 'f', -1, 64)
	case slog.KindDuration:
		return v.Duration().Round(time.Millisecond).String()
	case slog.KindTime:
		return formatTimestamp(v.Time())
	case slog.KindAny:
		return anyValue(v.Any())
	default:
		return v.String()
	}
}

func anyValue(value any) string {
	switch x := value.(type) {
	case nil:
		return "none"
	case error:
		return x.Error()
	case *int64:
		if x == nil {
			return "none"
		}
		return strconv.FormatInt(*x, 10)
	case []string:
		return strings.Join(x, ",")
	case fmt.Stringer:
		return x.String()
	default:
		// Named string types such as job statuses and kinds print bare.
		return fmt.Sprint(x)
	}
}

func byteCount(v slog.Value) (uint64, bool) {
	switch v.Kind() {
	case slog.KindInt64:
		if v.Int64() < 0 {
			return 0, false
		}
		return uint64(v.Int64()), true
	case slog.KindUint64:
		return v.Uint64(), true
	default:
		return 0, false
	}
}

func quoteIfNeeded(s string) string {
	if needsQuotes(s) {
		return strconv.Quote(s)
	}
	return s
}

func needsQuotes(s string) bool {
	if s == "" {
		return true
	}
	for _, r := range s {
		if r <= ' ' || r == '=' || r == '"' {
			return true
		}
	}
	return false
}
