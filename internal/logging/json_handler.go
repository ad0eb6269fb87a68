package logging

import (
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"time"
)

// jsonTimeFormat keeps milliseconds so items of one sync run stay ordered.
const jsonTimeFormat = "2006-01-02T15:04:05.000Z07:00"

// contextKeys are only meaningful when set; an empty value is dropped.
var contextKeys = map[string]struct{}{
	FieldItemID:        {},
	FieldEntityType:    {},
	FieldEntityID:      {},
	FieldRunID:         {},
	FieldCorrelationID: {},
}

func newJSONHandler(w io.Writer, lvl *slog.LevelVar, addSource bool) (slog.Handler, error) {
	opts := slog.HandlerOptions{
		Level:       lvl,
		AddSource:   addSource,
		ReplaceAttr: replaceJSONAttr,
	}
	return slog.NewJSONHandler(w, &opts), nil
}

// replaceJSONAttr shortens the builtin keys, renders durations as
// "<key>_ms" milliseconds and drops unset run/item/entity identifiers.
func replaceJSONAttr(groups []string, attr slog.Attr) slog.Attr {
	if len(groups) == 0 {
		switch attr.Key {
		case slog.TimeKey:
			attr.Key = "ts"
			if attr.Value.Kind() == slog.KindTime {
				attr.Value = slog.StringValue(attr.Value.Time().UTC().Format(jsonTimeFormat))
			}
			return attr
		case slog.LevelKey:
			attr.Value = slog.StringValue(strings.ToLower(attr.Value.String()))
			return attr
		case slog.SourceKey:
			if src, ok := attr.Value.Any().(*slog.Source); ok && src != nil {
				attr.Value = slog.StringValue(fmt.Sprintf("%s:%d", filepath.Base(src.File), src.Line))
			}
			return attr
		}
	}
	if _, ok := contextKeys[attr.Key]; ok && attr.Value.Kind() == slog.KindString && attr.Value.String() == "" {
		return slog.Attr{}
	}
	if attr.Value.Kind() == slog.KindDuration {
		ms := float64(attr.Value.Duration()) / float64(time.Millisecond)
		return slog.Float64(strings.TrimSuffix(attr.Key, "_ms")+"_ms", ms)
	}
	return attr
}
