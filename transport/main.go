/*
Package transport は、 SMB チャネルで使用するトランスポートをまとめたパッケージです。
*/
package transport

import (
	"io"

	"github.com/aptpod/smb-go/errors"
)

// Nameは、トランスポート名です。
type Name string

const (
	// ダイレクトTCPトランスポート
	NameTCP Name = "tcp"
	// インメモリのトランスポート
	NamePipe Name = "pipe"
)

/*
Transport は以下のエラーを返します。
*/
var (
	// ErrAlreadyClosed は、トランスポート層のコネクションが切れている場合に返されます。
	ErrAlreadyClosed = errors.ErrConnectionClosed

	EOF = io.EOF
)
