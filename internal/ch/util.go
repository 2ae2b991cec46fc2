// Package ch は、チャネル操作の小さなヘルパーです。
package ch

import "context"

// WriteOrDone は、vをcへ送信します。ctxが終了した場合は送信せずに戻ります。
func WriteOrDone[T any](ctx context.Context, v T, c chan<- T) {
	select {
	case c <- v:
	case <-ctx.Done():
	}
}

// TrySend は、ブロックせずにvをcへ送信し、送信できたかを返却します。
func TrySend[T any](v T, c chan<- T) bool {
	select {
	case c <- v:
		return true
	default:
		return false
	}
}

// ReadOrDone は、cから読み出した値を中継するチャネルを返却します。
// 返却したチャネルは、cが閉じられるかctxが終了すると閉じられます。
func ReadOrDone[T any](ctx context.Context, c <-chan T) <-chan T {
	resCh := make(chan T)
	go func() {
		defer close(resCh)
		for {
			v, ok := ReadOrDoneOne(ctx, c)
			if !ok {
				return
			}
			WriteOrDone(ctx, v, resCh)
		}
	}()
	return resCh
}

func ReadOrDoneOne[T any](ctx context.Context, c <-chan T) (T, bool) {
	var t T
	select {
	case <-ctx.Done():
		return t, false
	case v, ok := <-c:
		if !ok {
			return t, false
		}
		return v, true
	}
}
