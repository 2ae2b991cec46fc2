// Package session defines the boundary to the authenticated SMB session that
// additional channels are bound to.
package session

import (
	"context"
	"fmt"

	smb "github.com/aptpod/smb-go"
	"github.com/aptpod/smb-go/errors"
	"github.com/aptpod/smb-go/internal/kdf"
	"github.com/aptpod/smb-go/transport"
)

//go:generate mockgen -destination ./${GOPACKAGE}mock/${GOFILE} -package ${GOPACKAGE}mock -source ./${GOFILE}

// Session is an established, authenticated session.
type Session interface {
	SessionID() uint64
	// SessionKey is the key negotiated by authentication on the primary channel.
	SessionKey() []byte
	Dialect() smb.Dialect
	// PreauthIntegrityHash is the hash of the binding exchange for SMB 3.1.1 and zero otherwise.
	PreauthIntegrityHash() [64]byte
	// MultiChannelCapable reports whether the server advertised SMB2_GLOBAL_CAP_MULTI_CHANNEL.
	MultiChannelCapable() bool
}

// BindRequest carries what a SESSION_SETUP with the binding flag needs.
type BindRequest struct {
	SessionID  uint64
	Dialect    smb.Dialect
	SigningKey []byte
}

// Binder performs the SESSION_SETUP binding exchange on a connected transport.
type Binder interface {
	Bind(ctx context.Context, tr transport.Transport, req BindRequest) error
}

// Binding is the result of binding a transport to a session.
type Binding struct {
	SessionID  uint64
	SigningKey []byte
}

// CheckSupported reports why sess cannot have additional channels, if it cannot.
func CheckSupported(sess Session) error {
	if !sess.Dialect().SupportsMultiChannel() {
		return fmt.Errorf("dialect %s: %w", sess.Dialect(), errors.ErrBindingNotSupported)
	}
	if !sess.MultiChannelCapable() {
		return fmt.Errorf("server does not advertise multi-channel: %w", errors.ErrBindingNotSupported)
	}
	if len(sess.SessionKey()) == 0 {
		return fmt.Errorf("empty session key: %w", errors.ErrBindingNotSupported)
	}
	return nil
}

// BindChannel binds tr to sess under policy. The channel signing key is
// derived from the session key.
func BindChannel(ctx context.Context, sess Session, binder Binder, tr transport.Transport, policy BindingPolicy) (*Binding, error) {
	if policy == BindingDisabled {
		return nil, errors.ErrMultiChannelDisabled
	}
	if err := CheckSupported(sess); err != nil {
		return nil, err
	}
	req := BindRequest{
		SessionID:  sess.SessionID(),
		Dialect:    sess.Dialect(),
		SigningKey: kdf.SigningKey(sess.SessionKey(), sess.Dialect(), sess.PreauthIntegrityHash()),
	}
	if err := binder.Bind(ctx, tr, req); err != nil {
		return nil, fmt.Errorf("bind session 0x%x: %w", req.SessionID, err)
	}
	return &Binding{
		SessionID:  req.SessionID,
		SigningKey: req.SigningKey,
	}, nil
}
