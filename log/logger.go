package log

import (
	"context"
	"fmt"
	"math/rand/v2"
)

// Loggerは、smb-go内で使用するロガーインターフェースです。
type Logger interface {
	Infof(context.Context, string, ...interface{})
	Warnf(context.Context, string, ...interface{})
	Errorf(context.Context, string, ...interface{})
	Debugf(context.Context, string, ...interface{})
}

var (
	trackChannelIDKey   = "trackChannelIDKey"
	trackOperationIDKey = "trackOperationIDKey"
)

// WithTrackChannelIDは、チャネルIDをコンテキストにセットします。
//
// チャネルの確立、障害、復旧に関するログには常にこのIDが出力されます。
func WithTrackChannelID(ctx context.Context, channelID string) context.Context {
	return context.WithValue(ctx, &trackChannelIDKey, channelID)
}

// TrackChannelIDは、コンテキストにセットされたチャネルIDを取得します。
func TrackChannelID(ctx context.Context) string {
	v, ok := ctx.Value(&trackChannelIDKey).(string)
	if !ok {
		return ""
	}
	return v
}

// WithTrackOperationIDは、新たにオペレーションIDを採番しコンテキストにセットします。
//
// オペレーションIDはリクエストをチャネルへディスパッチするタイミングでセットします。
func WithTrackOperationID(ctx context.Context) context.Context {
	return context.WithValue(ctx, &trackOperationIDKey, genTrackID())
}

// TrackOperationIDは、コンテキストにセットされたオペレーションIDを取得します。
func TrackOperationID(ctx context.Context) string {
	v, ok := ctx.Value(&trackOperationIDKey).(string)
	if !ok {
		return ""
	}
	return v
}

func genTrackID() string {
	return fmt.Sprintf("%04d-%04d-%04d", rand.IntN(10000), rand.IntN(10000), rand.IntN(10000))
}
