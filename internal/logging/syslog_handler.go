package logging

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"log/syslog"
	"strings"
	"sync"
)

var syslogFacilityMap = map[string]syslog.Priority{
	"KERN":     syslog.LOG_KERN,
	"USER":     syslog.LOG_USER,
	"MAIL":     syslog.LOG_MAIL,
	"DAEMON":   syslog.LOG_DAEMON,
	"AUTH":     syslog.LOG_AUTH,
	"SYSLOG":   syslog.LOG_SYSLOG,
	"LPR":      syslog.LOG_LPR,
	"NEWS":     syslog.LOG_NEWS,
	"UUCP":     syslog.LOG_UUCP,
	"CRON":     syslog.LOG_CRON,
	"AUTHPRIV": syslog.LOG_AUTHPRIV,
	"FTP":      syslog.LOG_FTP,
	"LOCAL0":   syslog.LOG_LOCAL0,
	"LOCAL1":   syslog.LOG_LOCAL1,
	"LOCAL2":   syslog.LOG_LOCAL2,
	"LOCAL3":   syslog.LOG_LOCAL3,
	"LOCAL4":   syslog.LOG_LOCAL4,
	"LOCAL5":   syslog.LOG_LOCAL5,
	"LOCAL6":   syslog.LOG_LOCAL6,
	"LOCAL7":   syslog.LOG_LOCAL7,
}

// SyslogOptions selects the system log identity.
type SyslogOptions struct {
	// Tag is the syslog ident. Defaults to DaemonName.
	Tag string
	// Facility is a name such as "daemon" or "local0". Defaults to "user".
	Facility string
}

// ValidFacility reports whether name is a known syslog facility.
func ValidFacility(name string) bool {
	if strings.TrimSpace(name) == "" {
		return true
	}
	_, ok := syslogFacilityMap[strings.ToUpper(strings.TrimSpace(name))]
	return ok
}

// syslogWriter is the subset of *syslog.Writer the handler needs.
type syslogWriter interface {
	Debug(string) error
	Info(string) error
	Notice(string) error
	Warning(string) error
	Err(string) error
}

type syslogHandler struct {
	mu     *sync.Mutex
	writer syslogWriter
	level  slog.Leveler
	attrs  []slog.Attr
	groups []string
}

// NewSyslogHandler connects to the local syslog daemon and returns a handler
// that maps slog levels onto syslog priorities.
func NewSyslogHandler(opts SyslogOptions, level slog.Leveler) (slog.Handler, error) {
	facility := syslog.LOG_USER
	if name := strings.ToUpper(strings.TrimSpace(opts.Facility)); name != "" {
		f, ok := syslogFacilityMap[name]
		if !ok {
			return nil, fmt.Errorf("syslog facility: unknown value %q", opts.Facility)
		}
		facility = f
	}
	tag := strings.TrimSpace(opts.Tag)
	if tag == "" {
		tag = DaemonName
	}
	w, err := syslog.New(syslog.LOG_NOTICE|facility, tag)
	if err != nil {
		return nil, fmt.Errorf("open syslog: %w", err)
	}
	return newSyslogHandler(w, level), nil
}

func newSyslogHandler(w syslogWriter, level slog.Leveler) *syslogHandler {
	if level == nil {
		level = slog.LevelInfo
	}
	return &syslogHandler{mu: &sync.Mutex{}, writer: w, level: level}
}

func (h *syslogHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

func (h *syslogHandler) Handle(_ context.Context, record slog.Record) error {
	kvs := make([]kv, 0, record.NumAttrs()+len(h.attrs))
	flattenAttrs(&kvs, nil, h.attrs)
	record.Attrs(func(attr slog.Attr) bool {
		flattenAttr(&kvs, h.groups, attr)
		return true
	})

	// The syslog tag already identifies the daemon.
	component, filtered := splitComponent(kvs, FieldDaemon)

	var buf bytes.Buffer
	if component != "" {
		buf.WriteString(component)
		buf.WriteString(": ")
	}
	buf.WriteString(record.Message)
	writeKVs(&buf, filtered)
	line := buf.String()

	h.mu.Lock()
	defer h.mu.Unlock()
	switch {
	case record.Level >= slog.LevelError:
		return h.writer.Err(line)
	case record.Level >= slog.LevelWarn:
		return h.writer.Warning(line)
	case record.Level >= LevelNotice:
		return h.writer.Notice(line)
	case record.Level >= slog.LevelInfo:
		return h.writer.Info(line)
	default:
		return h.writer.Debug(line)
	}
}

func (h *syslogHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	clone := *h
	clone.attrs = append([]slog.Attr(nil), h.attrs...)
	for _, attr := range attrs {
		if len(h.groups) > 0 {
			attr = slog.Attr{Key: strings.Join(append(append([]string{}, h.groups...), attr.Key), "."), Value: attr.Value}
		}
		clone.attrs = append(clone.attrs, attr)
	}
	return &clone
}

func (h *syslogHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	clone := *h
	clone.groups = append(append([]string(nil), h.groups...), name)
	return &clone
}
