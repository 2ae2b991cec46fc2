package multichannel

// Request は、チャネルへディスパッチされるリクエストです。
//
// 処理中オペレーションとして同値比較されるため、ポインタ型などの比較可能な型で実装してください。
type Request interface {
	// AffinityKey は、同じチャネルへ寄せるべきリクエストを識別するキー（ツリーIDやファイルIDなど）です。
	AffinityKey() uint64
}

// DataTransferRequest は、READ/WRITEなどのデータ転送を伴うリクエストです。
type DataTransferRequest interface {
	Request
	// TransferLength は、転送するバイト数です。
	TransferLength() int64
}
