package multichannel

import (
	"context"

	"github.com/aptpod/smb-go/session"
	"github.com/aptpod/smb-go/transport"
	"github.com/aptpod/smb-go/transport/nic"
)

// ChannelManager は、LoadBalancer と Failover が利用するチャネル表の操作です。
type ChannelManager interface {
	// Channels は、登録済みの全チャネルのスナップショットです。
	Channels() []*ChannelInfo
	// HealthyChannels は、Established/Activeのチャネルのスナップショットです。
	HealthyChannels() []*ChannelInfo
	AddChannel(ch *ChannelInfo) error
	// RemoveChannel は、チャネルを表から取り除きトランスポートを閉じます。未登録の場合は何もしません。
	RemoveChannel(ch *ChannelInfo)
	// CreateTransport は、インターフェースの組に対する接続済みトランスポートを生成します。
	CreateTransport(ctx context.Context, local, remote *nic.Info) (transport.Transport, error)
	// PerformChannelBinding は、トランスポートを既存のセッションへバインドします。
	PerformChannelBinding(ctx context.Context, tr transport.Transport) (*session.Binding, error)
	// EstablishReplacementChannel は、利用可能な任意のインターフェースの組で新しいチャネルを確立します。
	EstablishReplacementChannel(ctx context.Context) (*ChannelInfo, error)
	LoadBalancer() *LoadBalancer
}
