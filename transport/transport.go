package transport

import (
	"context"

	"github.com/aptpod/smb-go/transport/nic"
)

//go:generate mockgen -destination ./${GOPACKAGE}mock/${GOFILE} -package ${GOPACKAGE}mock -source ./${GOFILE}

/*
Transport は、 1つのチャネルを構成するコネクションを抽象化したインターフェースです。

1回のWrite/Readは1つのSMBメッセージに対応します。
*/
type Transport interface {
	// Connect は、コネクションを開通します。
	Connect(ctx context.Context) error
	// Read は、トランスポートからメッセージを読み出します。
	Read() ([]byte, error)
	// Write は、トランスポートへメッセージを書き込みます。
	Write([]byte) error
	// Close は、トランスポートのコネクションを切断します。
	Close() error
	// TxBytesCounterValue は、現在の送信バイトカウンターの値を返します。
	TxBytesCounterValue() uint64
	// RxBytesCounterValue は、現在の受信バイトカウンターの値を返します。
	RxBytesCounterValue() uint64
	// Nameは、トランスポート名を返却します。
	Name() Name
}

// Factory は、インターフェースの組に対する未接続のトランスポートを生成します。
type Factory interface {
	CreateTransport(ctx context.Context, local, remote *nic.Info) (Transport, error)
}

// FactoryFunc は、関数をFactoryとして扱うためのアダプターです。
type FactoryFunc func(ctx context.Context, local, remote *nic.Info) (Transport, error)

func (f FactoryFunc) CreateTransport(ctx context.Context, local, remote *nic.Info) (Transport, error) {
	return f(ctx, local, remote)
}
