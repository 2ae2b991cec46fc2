package transport_test

import (
	"context"
	"net/netip"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	. "github.com/aptpod/smb-go/transport"
	"github.com/aptpod/smb-go/transport/nic"
)

func TestPipe(t *testing.T) {
	defer goleak.VerifyNone(t)
	t.Run("single", func(t *testing.T) {
		cli, srv := Pipe()
		defer srv.Close()
		defer cli.Close()
		require.NoError(t, cli.Connect(context.Background()))
		msg := []byte{1, 2, 3, 4, 5}
		go func() {
			assert.NoError(t, cli.Write(msg))
		}()
		got, err := srv.Read()
		require.NoError(t, err)
		assert.Equal(t, msg, got)
		assert.Equal(t, cli.TxBytesCounterValue(), srv.RxBytesCounterValue())
		assert.Equal(t, uint64(5), srv.RxBytesCounterValue())
		assert.Equal(t, NamePipe, cli.Name())
	})

	t.Run("multiple", func(t *testing.T) {
		cli, srv := Pipe()
		defer cli.Close()
		msg1 := []byte{1, 2, 3, 4, 5}
		msg2 := []byte{2, 2, 3, 4, 5}
		go func() {
			assert.NoError(t, cli.Write(msg1))
			assert.NoError(t, cli.Write(msg2))
		}()
		got1, err := srv.Read()
		require.NoError(t, err)
		assert.Equal(t, msg1, got1)
		got2, err := srv.Read()
		require.NoError(t, err)
		assert.Equal(t, msg2, got2)
		assert.Equal(t, uint64(10), srv.RxBytesCounterValue())
	})

	t.Run("call write after the local pipe was closed", func(t *testing.T) {
		cli, srv := Pipe()
		require.NoError(t, cli.Close())
		assert.ErrorIs(t, cli.Write([]byte{1, 2, 3, 4, 5}), ErrAlreadyClosed)
		assert.ErrorIs(t, srv.Write([]byte{1, 2, 3, 4, 5}), ErrAlreadyClosed)
		assert.ErrorIs(t, cli.Connect(context.Background()), ErrAlreadyClosed)
		_, err := srv.Read()
		assert.ErrorIs(t, err, EOF)
		assert.NoError(t, cli.Close())
	})
}

func TestPipeFactory(t *testing.T) {
	defer goleak.VerifyNone(t)
	local := nic.NewInfo(netip.MustParseAddr("10.0.0.1"), 1, 1000, 0)
	remote := nic.NewInfo(netip.MustParseAddr("10.0.0.2"), 2, 1000, 0)

	var accepted Transport
	f := &PipeFactory{Accept: func(l, r *nic.Info, srv Transport) {
		assert.Same(t, local, l)
		assert.Same(t, remote, r)
		accepted = srv
	}}
	cli, err := f.CreateTransport(context.Background(), local, remote)
	require.NoError(t, err)
	require.NotNil(t, accepted)

	go func() {
		assert.NoError(t, cli.Write([]byte("hello")))
	}()
	got, err := accepted.Read()
	require.NoError(t, err)
	assert.Equal(t, []byte("hello"), got)
	require.NoError(t, cli.Close())

	t.Run("canceled", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err := f.CreateTransport(ctx, local, remote)
		assert.ErrorIs(t, err, context.Canceled)
	})
}

func TestFactoryFunc(t *testing.T) {
	cli, _ := Pipe()
	f := FactoryFunc(func(ctx context.Context, local, remote *nic.Info) (Transport, error) {
		return cli, nil
	})
	got, err := f.CreateTransport(context.Background(), nil, nil)
	require.NoError(t, err)
	assert.Same(t, cli, got)
}
