package log

import (
	"context"
	"fmt"
	"log"
	"strings"
)

type stdLogger struct {
	l *log.Logger
}

func (l *stdLogger) Infof(ctx context.Context, format string, args ...any) {
	outputLogf(ctx, l.l, "INFO", format, args...)
}

func (l *stdLogger) Warnf(ctx context.Context, format string, args ...any) {
	outputLogf(ctx, l.l, "WARN", format, args...)
}

func (l *stdLogger) Errorf(ctx context.Context, format string, args ...any) {
	outputLogf(ctx, l.l, "ERROR", format, args...)
}

func (l *stdLogger) Debugf(ctx context.Context, format string, args ...any) {
	outputLogf(ctx, l.l, "DEBUG", format, args...)
}

func outputLogf(ctx context.Context, l *log.Logger, prefix, format string, args ...any) {
	b := strings.Builder{}
	if cID := TrackChannelID(ctx); cID != "" {
		b.WriteString("track-channel-id:" + cID + "\t")
	}
	if oID := TrackOperationID(ctx); oID != "" {
		b.WriteString("track-operation-id:" + oID + "\t")
	}
	b.WriteString(format)
	l.Output(3, fmt.Sprintf("%s: %s", prefix, fmt.Sprintf(b.String(), args...)))
}

// NewStdは、`log` パッケージのロガーを返却します。
func NewStd() Logger {
	return &stdLogger{
		l: log.Default(),
	}
}

// NewStdWithは、指定した `log` パッケージのロガーを返却します。
func NewStdWith(l *log.Logger) Logger {
	return &stdLogger{
		l: l,
	}
}
