package log

import (
	"context"
	"fmt"
	"log/slog"
)

type slogLogger struct {
	l *slog.Logger
}

func (l *slogLogger) Infof(ctx context.Context, format string, args ...any) {
	l.log(ctx, slog.LevelInfo, format, args...)
}

func (l *slogLogger) Warnf(ctx context.Context, format string, args ...any) {
	l.log(ctx, slog.LevelWarn, format, args...)
}

func (l *slogLogger) Errorf(ctx context.Context, format string, args ...any) {
	l.log(ctx, slog.LevelError, format, args...)
}

func (l *slogLogger) Debugf(ctx context.Context, format string, args ...any) {
	l.log(ctx, slog.LevelDebug, format, args...)
}

func (l *slogLogger) log(ctx context.Context, level slog.Level, format string, args ...any) {
	if !l.l.Enabled(ctx, level) {
		return
	}
	attrs := make([]slog.Attr, 0, 2)
	if cID := TrackChannelID(ctx); cID != "" {
		attrs = append(attrs, slog.String("channel_id", cID))
	}
	if oID := TrackOperationID(ctx); oID != "" {
		attrs = append(attrs, slog.String("operation_id", oID))
	}
	l.l.LogAttrs(ctx, level, fmt.Sprintf(format, args...), attrs...)
}

// NewSlogは、`log/slog` のロガーへ構造化ログとして出力するロガーを返却します。
//
// トラッキングIDはメッセージではなく属性として出力されます。
func NewSlog(l *slog.Logger) Logger {
	if l == nil {
		l = slog.Default()
	}
	return &slogLogger{l: l}
}
