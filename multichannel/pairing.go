package multichannel

import (
	"fmt"

	"github.com/aptpod/smb-go/transport/nic"
)

// Pairing は、チャネルを確立するローカル/リモートインターフェースの組です。
type Pairing struct {
	Local  *nic.Info
	Remote *nic.Info
}

func (p Pairing) key() pairingKey {
	return pairingKey{local: keyOf(p.Local), remote: keyOf(p.Remote)}
}

func (p Pairing) String() string {
	return fmt.Sprintf("%v -> %v", p.Local, p.Remote)
}

type pairingKey struct {
	local  nic.Key
	remote nic.Key
}

func keyOf(i *nic.Info) nic.Key {
	if i == nil {
		return nic.Key{}
	}
	return i.Key()
}

func channelPairingKey(ch *ChannelInfo) pairingKey {
	return Pairing{Local: ch.LocalInterface(), Remote: ch.RemoteInterface()}.key()
}

// PlanPairings は、スコア順に並んだローカル/リモートインターフェースから確立するべき組を返却します。
//
// 組の数は min(maxChannels, max(len(local), len(remote))) を上限とし、i番目の組は
// (local[i%len(local)], remote[i%len(remote)]) です。アドレスファミリーが一致しない組は飛ばし、
// 不足する場合は残りの組み合わせから補います。
func PlanPairings(local, remote []*nic.Info, maxChannels int) []Pairing {
	l, r := len(local), len(remote)
	if l == 0 || r == 0 || maxChannels <= 0 {
		return nil
	}
	target := min(maxChannels, max(l, r))
	res := make([]Pairing, 0, target)
	seen := make(map[pairingKey]struct{}, target)

	add := func(p Pairing) {
		if p.Local.IsIPv6() != p.Remote.IsIPv6() {
			return
		}
		k := p.key()
		if _, ok := seen[k]; ok {
			return
		}
		seen[k] = struct{}{}
		res = append(res, p)
	}

	for i := 0; len(res) < target && i < l*r; i++ {
		add(Pairing{Local: local[i%l], Remote: remote[i%r]})
	}
	for i := 0; len(res) < target && i < l; i++ {
		for j := 0; len(res) < target && j < r; j++ {
			add(Pairing{Local: local[i], Remote: remote[j]})
		}
	}
	return res
}
