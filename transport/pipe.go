package transport

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/aptpod/smb-go/transport/nic"
)

type pipe struct {
	rx        chan []byte
	rxErr     chan error
	rxCounter *atomic.Uint64

	tx        chan<- []byte
	txErr     chan error
	txCounter *atomic.Uint64

	once           *sync.Once
	closedCh       chan struct{}
	remoteClosedCh <-chan struct{}
}

func (p *pipe) Connect(ctx context.Context) error {
	select {
	case <-p.closedCh:
		return ErrAlreadyClosed
	case <-p.remoteClosedCh:
		return ErrAlreadyClosed
	default:
		return ctx.Err()
	}
}

func (p *pipe) Read() ([]byte, error) {
	select {
	case <-p.remoteClosedCh:
		return nil, EOF
	case <-p.closedCh:
		return nil, ErrAlreadyClosed
	case msg := <-p.rx:
		p.rxErr <- nil
		p.rxCounter.Add(uint64(len(msg)))
		return msg, nil
	}
}

func (p *pipe) Write(message []byte) error {
	select {
	case <-p.remoteClosedCh:
		return ErrAlreadyClosed
	case <-p.closedCh:
		return ErrAlreadyClosed
	case p.tx <- message:
		p.txCounter.Add(uint64(len(message)))
		return <-p.txErr
	}
}

func (p *pipe) RxBytesCounterValue() uint64 {
	return p.rxCounter.Load()
}

func (p *pipe) TxBytesCounterValue() uint64 {
	return p.txCounter.Load()
}

func (p *pipe) Name() Name {
	return NamePipe
}

func (p *pipe) Close() error {
	p.once.Do(func() {
		close(p.closedCh)
	})
	return nil
}

// Pipe は、互いに接続されたインメモリのトランスポートの組を返却します。
func Pipe() (Transport, Transport) {
	ch1 := make(chan []byte)
	ch1err := make(chan error)

	ch2 := make(chan []byte)
	ch2err := make(chan error)

	chClosed1 := make(chan struct{})
	chClosed2 := make(chan struct{})

	return &pipe{
			rx:    ch2,
			rxErr: ch2err,

			tx:    ch1,
			txErr: ch1err,

			txCounter: &atomic.Uint64{},
			rxCounter: &atomic.Uint64{},

			once:           &sync.Once{},
			closedCh:       chClosed1,
			remoteClosedCh: chClosed2,
		}, &pipe{
			rx:    ch1,
			rxErr: ch1err,

			tx:    ch2,
			txErr: ch2err,

			txCounter: &atomic.Uint64{},
			rxCounter: &atomic.Uint64{},

			once:           &sync.Once{},
			closedCh:       chClosed2,
			remoteClosedCh: chClosed1,
		}
}

// PipeFactory は、Pipeで接続されたトランスポートを生成するFactoryです。
//
// 生成したトランスポートの対向はAcceptに渡されます。
type PipeFactory struct {
	Accept func(local, remote *nic.Info, server Transport)
}

func (f *PipeFactory) CreateTransport(ctx context.Context, local, remote *nic.Info) (Transport, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	cli, srv := Pipe()
	if f.Accept != nil {
		f.Accept(local, remote, srv)
	}
	return cli, nil
}
