package sinks

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"time"

	"netsync/logging"
)

const (
	ansiReset = "\x1b[0m"
	ansiGray  = "\x1b[90m"
	ansiCyan  = "\x1b[36m"
	ansiAmber = "\x1b[33m"
	ansiRed   = "\x1b[31m"
)

// ConsoleSink writes one line per event: time, severity, type, tick and
// actor, followed by the payload and extras flattened into sorted key=value
// pairs so replication events read like
//
//	12:00:01.250 WARN  replication.authority_violation tick=42 actor=participant:p2 caller=p2 field=color
type ConsoleSink struct {
	mu    sync.Mutex
	w     io.Writer
	color bool
}

func NewConsoleSink(w io.Writer, cfg logging.ConsoleConfig) *ConsoleSink {
	if w == nil {
		w = io.Discard
	}
	return &ConsoleSink{w: w, color: cfg.UseColor}
}

func (s *ConsoleSink) Write(event logging.Event) error {
	line := formatLine(event, s.color)
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := io.WriteString(s.w, line)
	return err
}

func (s *ConsoleSink) Close(context.Context) error {
	return nil
}

func formatLine(event logging.Event, color bool) string {
	var b strings.Builder
	b.WriteString(event.Time.Format("15:04:05.000"))
	b.WriteByte(' ')
	level := fmt.Sprintf("%-5s", strings.ToUpper(event.Severity.String()))
	if color {
		b.WriteString(severityColor(event.Severity) + level + ansiReset)
	} else {
		b.WriteString(level)
	}
	fmt.Fprintf(&b, " %s tick=%d", event.Type, event.Tick)
	if actor := formatEntity(event.Actor); actor != "" {
		b.WriteString(" actor=" + actor)
	}
	if len(event.Targets) > 0 {
		parts := make([]string, 0, len(event.Targets))
		for _, target := range event.Targets {
			parts = append(parts, formatEntity(target))
		}
		b.WriteString(" targets=" + strings.Join(parts, ","))
	}
	writePairs(&b, flatten(event.Payload))
	writePairs(&b, event.Extra)
	if event.TraceID != "" {
		b.WriteString(" trace=" + event.TraceID)
	}
	b.WriteByte('\n')
	return b.String()
}

func severityColor(sev logging.Severity) string {
	switch sev {
	case logging.SeverityDebug:
		return ansiGray
	case logging.SeverityWarn:
		return ansiAmber
	case logging.SeverityError:
		return ansiRed
	default:
		return ansiCyan
	}
}

func formatEntity(ref logging.EntityRef) string {
	switch {
	case ref.ID == "":
		return ""
	case ref.Kind == "":
		return ref.ID
	default:
		return string(ref.Kind) + ":" + ref.ID
	}
}

// flatten turns a struct payload into its JSON object fields. Payloads
// that are not objects are kept whole under "payload".
func flatten(payload any) map[string]any {
	if payload == nil {
		return nil
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return map[string]any{"payload": fmt.Sprint(payload)}
	}
	var fields map[string]any
	if err := json.Unmarshal(data, &fields); err != nil {
		return map[string]any{"payload": json.RawMessage(data)}
	}
	return fields
}

func writePairs(b *strings.Builder, fields map[string]any) {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		b.WriteString(" " + k + "=" + formatValue(fields[k]))
	}
}

func formatValue(v any) string {
	switch value := v.(type) {
	case string:
		if value == "" || strings.ContainsAny(value, " \t\"=") {
			return fmt.Sprintf("%q", value)
		}
		return value
	case time.Duration:
		return value.String()
	case json.RawMessage:
		return string(value)
	}
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(data)
}
