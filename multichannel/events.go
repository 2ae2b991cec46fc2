package multichannel

import "fmt"

// ChannelEventType は、チャネル表の変化の種類です。
type ChannelEventType int

const (
	// ChannelEventAdded は、チャネルが表へ追加されたことを表します。
	ChannelEventAdded ChannelEventType = iota + 1
	// ChannelEventRemoved は、チャネルが表から取り除かれたことを表します。
	ChannelEventRemoved
	// ChannelEventFailed は、チャネルで障害が発生したことを表します。
	ChannelEventFailed
	// ChannelEventRecovered は、障害が発生したチャネルの代わりに新しいチャネルが確立されたことを表します。
	ChannelEventRecovered
)

func (t ChannelEventType) String() string {
	switch t {
	case ChannelEventAdded:
		return "added"
	case ChannelEventRemoved:
		return "removed"
	case ChannelEventFailed:
		return "failed"
	case ChannelEventRecovered:
		return "recovered"
	default:
		return fmt.Sprintf("UnknownChannelEvent(%d)", int(t))
	}
}

// ChannelEvent は、Manager.Subscribe で通知されるイベントです。
type ChannelEvent struct {
	Type    ChannelEventType
	Channel *ChannelInfo
	// Previous は、ChannelEventRecovered の場合に障害が発生した元のチャネルです。
	Previous *ChannelInfo
	// Err は、ChannelEventFailed の場合の障害の原因です。
	Err error
}

func (e ChannelEvent) String() string {
	if e.Channel == nil {
		return e.Type.String()
	}
	return fmt.Sprintf("%s %s", e.Type, e.Channel.ID())
}
