package multichannel

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/aptpod/smb-go/log"
	"github.com/aptpod/smb-go/session"
)

// Config は、マルチチャネル管理の設定です。Managerの生成時に一度だけ読み込まれます。
type Config struct {
	// Enabled は、追加チャネルを確立するかどうかです。falseの場合はプライマリチャネルのみで動作します。
	Enabled bool `mapstructure:"enabled"`
	// MaxChannels は、プライマリを含む最大チャネル数です。
	MaxChannels int `mapstructure:"max_channels" validate:"min=1,max=32"`
	// Strategy は、初期の選択方式です。
	Strategy LoadBalancingStrategy `mapstructure:"strategy"`
	// HealthCheckInterval は、ヘルスチェックの間隔です。
	HealthCheckInterval time.Duration `mapstructure:"health_check_interval" validate:"gt=0"`
	// IdleTimeout は、キープアライブを送信するまでの無通信時間です。
	IdleTimeout time.Duration `mapstructure:"idle_timeout" validate:"gt=0"`
	// DiscoveryInterval は、インターフェース再検出の間隔です。0の場合は定期的な再検出を行いません。
	DiscoveryInterval time.Duration `mapstructure:"discovery_interval" validate:"gte=0"`
	// MaxRetries は、同じインターフェースの組で復旧を試みる最大回数です。
	MaxRetries int `mapstructure:"max_retries" validate:"gte=0"`
	// RetryBaseInterval は、最初の復旧試行までの待機時間です。以降は試行ごとに倍になります。
	RetryBaseInterval time.Duration `mapstructure:"retry_base_interval" validate:"gt=0"`
	// RetryMaxInterval は、復旧試行の待機時間の上限です。
	RetryMaxInterval time.Duration `mapstructure:"retry_max_interval" validate:"gtefield=RetryBaseInterval"`
	// AttemptTimeout は、1回の接続とバインドに許される時間です。超過した試行は失敗として扱います。
	AttemptTimeout time.Duration `mapstructure:"attempt_timeout" validate:"gt=0"`
	// ReplacementAttempts は、代替チャネル確立で試すインターフェースの組の数です。
	ReplacementAttempts int `mapstructure:"replacement_attempts" validate:"min=1"`
	// LargeTransferThreshold は、Adaptive方式で大きなデータ転送とみなすバイト数です。
	LargeTransferThreshold int64 `mapstructure:"large_transfer_threshold" validate:"gt=0"`
	// BindingPolicy は、チャネルバインディングの方針です。
	BindingPolicy session.BindingPolicy `mapstructure:"binding_policy"`
	// HighErrorRate は、ヘルスチェックで警告するエラー率です。
	HighErrorRate float64 `mapstructure:"high_error_rate" validate:"gt=0,lte=1"`
	// Scoring は、チャネルスコアの定数です。
	Scoring ScoreWeights `mapstructure:"scoring"`

	Logger     log.Logger `mapstructure:"-" validate:"-"`
	Scheduler  Scheduler  `mapstructure:"-" validate:"-"`
	Metrics    *Metrics   `mapstructure:"-" validate:"-"`
	KeepAliver KeepAliver `mapstructure:"-" validate:"-"`
}

var defaultConfig = Config{
	Enabled:                true,
	MaxChannels:            4,
	Strategy:               StrategyAdaptive,
	HealthCheckInterval:    10 * time.Second,
	IdleTimeout:            60 * time.Second,
	DiscoveryInterval:      30 * time.Second,
	MaxRetries:             3,
	RetryBaseInterval:      time.Second,
	RetryMaxInterval:       30 * time.Second,
	AttemptTimeout:         10 * time.Second,
	ReplacementAttempts:    3,
	LargeTransferThreshold: 1 << 20,
	BindingPolicy:          session.BindingPreferred,
	HighErrorRate:          0.1,
	Scoring:                DefaultScoreWeights,
}

// DefaultConfig は、デフォルトの設定を返却します。
func DefaultConfig() Config {
	return defaultConfig
}

var validate = validator.New()

// Validate は、設定値を検証します。
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid multichannel config: %w", err)
	}
	if !c.Strategy.IsValid() {
		return fmt.Errorf("invalid multichannel config: unknown strategy %d", int32(c.Strategy))
	}
	if _, err := c.BindingPolicy.MarshalText(); err != nil {
		return fmt.Errorf("invalid multichannel config: %w", err)
	}
	if err := c.Scoring.validate(); err != nil {
		return fmt.Errorf("invalid multichannel config: scoring: %w", err)
	}
	return nil
}

func (c *Config) fillDefaults() {
	if c.Logger == nil {
		c.Logger = log.NewNop()
	}
	if c.Scheduler == nil {
		c.Scheduler = NewTimerScheduler()
	}
}

// Option は、Configを変更するオプションです。
type Option func(*Config)

// WithConfig は、設定全体を置き換えます。他のオプションより前に指定してください。
func WithConfig(c Config) Option {
	return func(cfg *Config) {
		*cfg = c
	}
}

func WithEnabled(enabled bool) Option {
	return func(c *Config) {
		c.Enabled = enabled
	}
}

func WithMaxChannels(n int) Option {
	return func(c *Config) {
		c.MaxChannels = n
	}
}

func WithStrategy(s LoadBalancingStrategy) Option {
	return func(c *Config) {
		c.Strategy = s
	}
}

func WithHealthCheckInterval(d time.Duration) Option {
	return func(c *Config) {
		c.HealthCheckInterval = d
	}
}

func WithIdleTimeout(d time.Duration) Option {
	return func(c *Config) {
		c.IdleTimeout = d
	}
}

func WithDiscoveryInterval(d time.Duration) Option {
	return func(c *Config) {
		c.DiscoveryInterval = d
	}
}

// WithRetry は、復旧試行の回数と待機時間を指定します。
func WithRetry(maxRetries int, base, max time.Duration) Option {
	return func(c *Config) {
		c.MaxRetries = maxRetries
		c.RetryBaseInterval = base
		c.RetryMaxInterval = max
	}
}

func WithAttemptTimeout(d time.Duration) Option {
	return func(c *Config) {
		c.AttemptTimeout = d
	}
}

func WithLargeTransferThreshold(n int64) Option {
	return func(c *Config) {
		c.LargeTransferThreshold = n
	}
}

func WithBindingPolicy(p session.BindingPolicy) Option {
	return func(c *Config) {
		c.BindingPolicy = p
	}
}

func WithScoring(w ScoreWeights) Option {
	return func(c *Config) {
		c.Scoring = w
	}
}

func WithLogger(l log.Logger) Option {
	return func(c *Config) {
		c.Logger = l
	}
}

func WithScheduler(s Scheduler) Option {
	return func(c *Config) {
		c.Scheduler = s
	}
}

func WithMetrics(m *Metrics) Option {
	return func(c *Config) {
		c.Metrics = m
	}
}

// WithKeepAliver は、無通信のチャネルへキープアライブを送信する実装を指定します。
func WithKeepAliver(k KeepAliver) Option {
	return func(c *Config) {
		c.KeepAliver = k
	}
}

func newConfig(opts ...Option) (*Config, error) {
	cfg := DefaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg.fillDefaults()
	return &cfg, nil
}
