package logging

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"strconv"
	"time"
)

// renderValue formats a resolved attribute value for line-oriented sinks.
// With quote set, values that would break key=value parsing are quoted.
func renderValue(v slog.Value, quote bool) string {
	v = v.Resolve()
	var s string
	switch v.Kind() {
	case slog.KindBool:
		return strconv.FormatBool(v.Bool())
	case slog.KindInt64:
		return strconv.FormatInt(v.Int64(), 10)
	case slog.KindUint64:
		return strconv.FormatUint(v.Uint64(), 10)
	case slog.KindFloat64:
		return strconv.FormatFloat(v.Float64(), 'f', -1, 64)
	case slog.KindDuration:
		return v.Duration().String()
	case slog.KindTime:
		return v.Time().UTC().Format(time.RFC3339)
	case slog.KindAny:
		switch val := v.Any().(type) {
		case error:
			s = val.Error()
		case []byte:
			s = string(val)
		default:
			s = fmt.Sprint(val)
		}
	default:
		s = v.String()
	}
	if quote && needsQuotes(s) {
		return strconv.Quote(s)
	}
	return s
}

func needsQuotes(s string) bool {
	if s == "" {
		return true
	}
	for _, r := range s {
		if r <= ' ' || r == '=' || r == '"' || r == 0x7f {
			return true
		}
	}
	return false
}

func sourceLabel(src *slog.Source) string {
	if src == nil || src.File == "" {
		return ""
	}
	return filepath.Base(src.File) + ":" + strconv.Itoa(src.Line)
}
