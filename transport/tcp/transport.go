package tcp

import (
	"bufio"
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"net"
	"sync"
	"sync/atomic"

	"github.com/aptpod/smb-go/errors"
	"github.com/aptpod/smb-go/transport"
	"github.com/aptpod/smb-go/transport/nic"
)

var (
	_ transport.Transport   = (*Transport)(nil)
	_ transport.RTTReporter = (*Transport)(nil)
)

type dialFunc func(ctx context.Context, network, address string) (net.Conn, error)

// Transportは、ダイレクトTCPトランスポートです。
type Transport struct {
	address string
	dial    dialFunc

	mu        sync.Mutex
	conn      net.Conn
	br        *bufio.Reader
	wmu       sync.Mutex
	rmu       sync.Mutex
	closeOnce sync.Once

	closed         chan struct{}
	rxBytesCounter atomic.Uint64
	txBytesCounter atomic.Uint64
}

// Newは、接続済みのコネクションからトランスポートを返却します。
func New(conn net.Conn) *Transport {
	t := &Transport{
		address: conn.RemoteAddr().String(),
		closed:  make(chan struct{}),
	}
	t.setConn(conn)
	return t
}

func newUnconnected(address string, dial dialFunc) *Transport {
	return &Transport{
		address: address,
		dial:    dial,
		closed:  make(chan struct{}),
	}
}

func (t *Transport) setConn(conn net.Conn) {
	t.conn = conn
	t.br = bufio.NewReader(conn)
}

// Connectは、リモートアドレスへ接続します。接続済みの場合は何もしません。
func (t *Transport) Connect(ctx context.Context) error {
	if t.isClosed() {
		return transport.ErrAlreadyClosed
	}
	if _, _, err := t.connection(); err == nil {
		return nil
	}
	if t.dial == nil {
		return fmt.Errorf("no dialer: %w", errors.ErrConnectionClosed)
	}
	conn, err := t.dial(ctx, "tcp", t.address)
	if err != nil {
		return fmt.Errorf("dial %s: %w", t.address, err)
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.isClosed() {
		conn.Close()
		return transport.ErrAlreadyClosed
	}
	if t.conn != nil {
		conn.Close()
		return nil
	}
	t.setConn(conn)
	return nil
}

func (t *Transport) isClosed() bool {
	select {
	case <-t.closed:
		return true
	default:
		return false
	}
}

func (t *Transport) connection() (net.Conn, *bufio.Reader, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.isClosed() {
		return nil, nil, transport.ErrAlreadyClosed
	}
	if t.conn == nil {
		return nil, nil, fmt.Errorf("not connected: %w", errors.ErrConnectionClosed)
	}
	return t.conn, t.br, nil
}

// Readは、１メッセージ分のデータを読み込みます。
func (t *Transport) Read() ([]byte, error) {
	_, br, err := t.connection()
	if err != nil {
		return nil, err
	}
	t.rmu.Lock()
	defer t.rmu.Unlock()

	var hdr [headerSize]byte
	if _, err := io.ReadFull(br, hdr[:]); err != nil {
		return nil, t.wrapIOError("read header", err)
	}
	if hdr[0] != 0 {
		return nil, fmt.Errorf("%w: unexpected frame type 0x%02x", errors.ErrMalformedMessage, hdr[0])
	}
	size := binary.BigEndian.Uint32(hdr[:]) & MaxMessageSize
	msg := make([]byte, size)
	if _, err := io.ReadFull(br, msg); err != nil {
		return nil, t.wrapIOError("read message", err)
	}
	t.rxBytesCounter.Add(uint64(headerSize + size))
	return msg, nil
}

// Writeは、１メッセージ分のデータを書き込みます。
func (t *Transport) Write(bs []byte) error {
	if len(bs) > MaxMessageSize {
		return fmt.Errorf("%w: message size %d exceeds %d", errors.ErrMalformedMessage, len(bs), MaxMessageSize)
	}
	conn, _, err := t.connection()
	if err != nil {
		return err
	}
	t.wmu.Lock()
	defer t.wmu.Unlock()

	buf := make([]byte, headerSize+len(bs))
	binary.BigEndian.PutUint32(buf, uint32(len(bs)))
	copy(buf[headerSize:], bs)
	if _, err := conn.Write(buf); err != nil {
		return t.wrapIOError("write message", err)
	}
	t.txBytesCounter.Add(uint64(len(buf)))
	return nil
}

func (t *Transport) wrapIOError(op string, err error) error {
	if t.isClosed() {
		return transport.ErrAlreadyClosed
	}
	if errors.Is(err, io.EOF) {
		return transport.EOF
	}
	return fmt.Errorf("%s: %w", op, err)
}

// TxBytesCounterValueは、書き込んだ総バイト数を返却します。
func (t *Transport) TxBytesCounterValue() uint64 {
	return t.txBytesCounter.Load()
}

// RxBytesCounterValueは、読み込んだ総バイト数を返却します。
func (t *Transport) RxBytesCounterValue() uint64 {
	return t.rxBytesCounter.Load()
}

// Nameはトランスポート名を返却します。
func (t *Transport) Name() transport.Name {
	return transport.NameTCP
}

// RemoteAddressは、接続先のアドレスを返却します。
func (t *Transport) RemoteAddress() string {
	return t.address
}

// Closeはトランスポートを閉じます。
func (t *Transport) Close() error {
	var err error
	t.closeOnce.Do(func() {
		t.mu.Lock()
		defer t.mu.Unlock()
		close(t.closed)
		if t.conn != nil {
			err = t.conn.Close()
		}
	})
	return err
}

// Factoryは、ローカルインターフェースのアドレスからリモートインターフェースの445番ポートへ接続するトランスポートを生成します。
type Factory struct {
	// Portは、接続先ポートです。0の場合はDefaultPortを使用します。
	Port int
}

func NewFactory() *Factory {
	return &Factory{}
}

func (f *Factory) CreateTransport(ctx context.Context, local, remote *nic.Info) (transport.Transport, error) {
	if remote == nil {
		return nil, fmt.Errorf("remote interface is required: %w", errors.ErrNoInterfacePairing)
	}
	dc, err := nic.NewDialContext(nic.DialContextConfig{Local: local})
	if err != nil {
		return nil, fmt.Errorf("new dial context: %w", err)
	}
	port := f.Port
	if port == 0 {
		port = DefaultPort
	}
	address := net.JoinHostPort(remote.Address().String(), fmt.Sprint(port))
	return newUnconnected(address, dc.DialContext), nil
}
