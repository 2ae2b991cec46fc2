package errors

import (
	"errors"
	"fmt"
)

var (
	// ErrSMBはsmb-goライブラリで定義されている基底エラーです。
	ErrSMB = errors.New("smb")
	// ErrConnectionClosedは、トランスポートが閉じられている状態でトランスポートへの読み書きをした場合のエラーです。
	ErrConnectionClosed = fmt.Errorf("closed smb connection: %w", ErrSMB)
	// ErrMalformedMessageは、メッセージのエンコードやデコードに失敗した時のエラーです。
	ErrMalformedMessage = fmt.Errorf("malformed message: %w", ErrSMB)
	// ErrMalformedInterfaceInfoは、NETWORK_INTERFACE_INFOレコードのデコードに失敗した時のエラーです。
	ErrMalformedInterfaceInfo = fmt.Errorf("malformed network interface info: %w", ErrMalformedMessage)
	// ErrNoAvailableChannelは、選択可能な健全チャネルが存在しない場合のエラーです。
	ErrNoAvailableChannel = fmt.Errorf("no available channel: %w", ErrSMB)
	// ErrChannelFailedは、FAILED状態のチャネルを操作しようとした場合のエラーです。
	ErrChannelFailed = fmt.Errorf("channel failed: %w", ErrSMB)
	// ErrChannelLimitReachedは、最大チャネル数に達している場合のエラーです。
	ErrChannelLimitReached = fmt.Errorf("channel limit reached: %w", ErrSMB)
	// ErrMultiChannelDisabledは、マルチチャネルが無効化されている場合のエラーです。
	ErrMultiChannelDisabled = fmt.Errorf("multi-channel disabled: %w", ErrSMB)
	// ErrBindingNotSupportedは、ネゴシエートされたダイアレクトがチャネルバインディングに対応していない場合のエラーです。
	ErrBindingNotSupported = fmt.Errorf("channel binding not supported: %w", ErrSMB)
	// ErrNoInterfacePairingは、確立可能なローカル/リモートインターフェースの組が存在しない場合のエラーです。
	ErrNoInterfacePairing = fmt.Errorf("no interface pairing: %w", ErrSMB)
	// ErrAlreadyShutdownは、シャットダウン済みのコンポーネントを操作しようとした場合のエラーです。
	ErrAlreadyShutdown = fmt.Errorf("already shutdown: %w", ErrSMB)
)

func New(text string) error {
	return errors.New(text)
}

func Errorf(format string, a ...any) error {
	return fmt.Errorf(format, a...)
}

func Is(err, target error) bool {
	return errors.Is(err, target)
}

func As(err error, target any) bool {
	return errors.As(err, target)
}

func Join(errs ...error) error {
	return errors.Join(errs...)
}
