package multichannel

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	metricsNamespace = "smb"
	metricsSubsystem = "multichannel"
)

// Metrics は、マルチチャネル管理のPrometheusメトリクスです。
// nilの*Metricsに対するメソッド呼び出しは何もしません。
type Metrics struct {
	// Channels は、状態ごとのチャネル数です。
	Channels *prometheus.GaugeVec
	// Selections は、選択方式ごとのチャネル選択回数です。
	Selections *prometheus.CounterVec
	// Failovers は、フェイルオーバーを開始した回数です。
	Failovers prometheus.Counter
	// Recoveries は、復旧試行の結果ごとの回数です。 ラベル値: "success", "failure", "exhausted"
	Recoveries *prometheus.CounterVec
	// Redistributed は、退避した処理中オペレーションの行き先ごとの数です。 ラベル値: "reassigned", "dropped"
	Redistributed *prometheus.CounterVec
	// Replacements は、代替チャネル確立の結果ごとの回数です。 ラベル値: "success", "failure"
	Replacements *prometheus.CounterVec
	// ChannelRTT は、ヘルスチェック時に取得したチャネルの平滑化RTTです。
	ChannelRTT prometheus.Histogram
}

// NewMetrics は、メトリクスを生成しregへ登録します。regがnilの場合は登録しません。
//
// 同じレジストリに登録済みのコレクターがある場合はそれを再利用します。
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Channels: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      "channels",
			Help:      "Current number of channels by state",
		}, []string{"state"}),
		Selections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      "selections_total",
			Help:      "Total number of channel selections by strategy",
		}, []string{"strategy"}),
		Failovers: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      "failovers_total",
			Help:      "Total number of channel failures handled",
		}),
		Recoveries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      "recoveries_total",
			Help:      "Total number of channel recovery attempts by result",
		}, []string{"result"}),
		Redistributed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      "redistributed_operations_total",
			Help:      "Total number of pending operations evacuated from failed channels by outcome",
		}, []string{"outcome"}),
		Replacements: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      "replacements_total",
			Help:      "Total number of replacement channel establishments by result",
		}, []string{"result"}),
		ChannelRTT: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      "channel_rtt_seconds",
			Help:      "Smoothed round trip time of channels observed by health checks",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 4, 8),
		}),
	}

	if reg != nil {
		m.Channels = registerOrReuse(reg, m.Channels).(*prometheus.GaugeVec)
		m.Selections = registerOrReuse(reg, m.Selections).(*prometheus.CounterVec)
		m.Failovers = registerOrReuse(reg, m.Failovers).(prometheus.Counter)
		m.Recoveries = registerOrReuse(reg, m.Recoveries).(*prometheus.CounterVec)
		m.Redistributed = registerOrReuse(reg, m.Redistributed).(*prometheus.CounterVec)
		m.Replacements = registerOrReuse(reg, m.Replacements).(*prometheus.CounterVec)
		m.ChannelRTT = registerOrReuse(reg, m.ChannelRTT).(prometheus.Histogram)
	}
	return m
}

func registerOrReuse(reg prometheus.Registerer, c prometheus.Collector) prometheus.Collector {
	if err := reg.Register(c); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			return are.ExistingCollector
		}
		panic(err)
	}
	return c
}

func (m *Metrics) recordSelection(s LoadBalancingStrategy) {
	if m == nil {
		return
	}
	m.Selections.WithLabelValues(s.String()).Inc()
}

func (m *Metrics) recordFailover() {
	if m == nil {
		return
	}
	m.Failovers.Inc()
}

func (m *Metrics) recordRecovery(result string) {
	if m == nil {
		return
	}
	m.Recoveries.WithLabelValues(result).Inc()
}

func (m *Metrics) recordRedistributed(outcome string) {
	if m == nil {
		return
	}
	m.Redistributed.WithLabelValues(outcome).Inc()
}

func (m *Metrics) recordReplacement(result string) {
	if m == nil {
		return
	}
	m.Replacements.WithLabelValues(result).Inc()
}

func (m *Metrics) observeRTT(rtt time.Duration) {
	if m == nil {
		return
	}
	m.ChannelRTT.Observe(rtt.Seconds())
}

// setChannelCounts は、状態ごとのチャネル数を設定します。
func (m *Metrics) setChannelCounts(counts map[ChannelState]int) {
	if m == nil {
		return
	}
	for _, s := range []ChannelState{ChannelStateDisconnected, ChannelStateEstablished, ChannelStateActive, ChannelStateFailed} {
		m.Channels.WithLabelValues(s.String()).Set(float64(counts[s]))
	}
}
