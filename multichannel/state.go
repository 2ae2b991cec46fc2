package multichannel

import (
	"fmt"
	"strings"
)

// ChannelState は、チャネルのライフサイクル状態です。
type ChannelState int32

const (
	// ChannelStateDisconnected は、生成直後の未確立状態です。
	ChannelStateDisconnected ChannelState = iota
	// ChannelStateEstablished は、セッションにバインド済みで処理中オペレーションがない状態です。
	ChannelStateEstablished
	// ChannelStateActive は、処理中オペレーションがある状態です。
	ChannelStateActive
	// ChannelStateFailed は、障害により破棄された状態です。この状態から遷移することはありません。
	ChannelStateFailed
)

func (s ChannelState) String() string {
	switch s {
	case ChannelStateDisconnected:
		return "Disconnected"
	case ChannelStateEstablished:
		return "Established"
	case ChannelStateActive:
		return "Active"
	case ChannelStateFailed:
		return "Failed"
	default:
		return fmt.Sprintf("UnknownState(%d)", s)
	}
}

// IsHealthy は、リクエストの送信先として選択可能な状態かを返却します。
func (s ChannelState) IsHealthy() bool {
	return s == ChannelStateEstablished || s == ChannelStateActive
}

// LoadBalancingStrategy は、送信先チャネルの選択方式です。
type LoadBalancingStrategy int32

const (
	StrategyRoundRobin LoadBalancingStrategy = iota
	StrategyLeastLoaded
	StrategyWeightedRandom
	StrategyAffinityBased
	StrategyAdaptive
)

var strategyNames = map[LoadBalancingStrategy]string{
	StrategyRoundRobin:     "round_robin",
	StrategyLeastLoaded:    "least_loaded",
	StrategyWeightedRandom: "weighted_random",
	StrategyAffinityBased:  "affinity_based",
	StrategyAdaptive:       "adaptive",
}

func (s LoadBalancingStrategy) String() string {
	if name, ok := strategyNames[s]; ok {
		return name
	}
	return fmt.Sprintf("UnknownStrategy(%d)", s)
}

// IsValid は、定義済みの選択方式かを返却します。
func (s LoadBalancingStrategy) IsValid() bool {
	_, ok := strategyNames[s]
	return ok
}

// ParseStrategy は、選択方式名を解析します。大文字小文字と "-" / "_" の違いは無視します。
func ParseStrategy(name string) (LoadBalancingStrategy, error) {
	normalized := strings.ReplaceAll(strings.ToLower(strings.TrimSpace(name)), "-", "_")
	for s, n := range strategyNames {
		if n == normalized {
			return s, nil
		}
	}
	return 0, fmt.Errorf("unknown load balancing strategy %q", name)
}

func (s LoadBalancingStrategy) MarshalText() ([]byte, error) {
	if !s.IsValid() {
		return nil, fmt.Errorf("unknown load balancing strategy %d", int32(s))
	}
	return []byte(s.String()), nil
}

func (s *LoadBalancingStrategy) UnmarshalText(b []byte) error {
	v, err := ParseStrategy(string(b))
	if err != nil {
		return err
	}
	*s = v
	return nil
}
