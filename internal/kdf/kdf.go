// Package kdf implements the SP800-108 counter-mode KDF with HMAC-SHA256 used
// by SMB 3.x to derive per-session and per-channel keys.
//
// SMB 3.0/3.0.2 use constant label/context strings. SMB 3.1.1 uses the
// preauth integrity hash of the session (or, for a bound channel, of the
// binding SESSION_SETUP exchange) as the context.
package kdf

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/binary"

	smb "github.com/aptpod/smb-go"
)

// KeyPurpose identifies the purpose of a derived key.
type KeyPurpose uint8

const (
	SigningKeyPurpose KeyPurpose = iota
	EncryptionKeyPurpose
	DecryptionKeyPurpose
	ApplicationKeyPurpose
)

func (p KeyPurpose) String() string {
	switch p {
	case SigningKeyPurpose:
		return "Signing"
	case EncryptionKeyPurpose:
		return "Encryption"
	case DecryptionKeyPurpose:
		return "Decryption"
	case ApplicationKeyPurpose:
		return "Application"
	default:
		return "Unknown"
	}
}

// DeriveKey computes HMAC-SHA256(ki, counter || label || 0x00 || context || L)
// with counter = 1 and returns the first keyLenBits/8 bytes.
//
// label must already carry its null terminator. keyLenBits is 128 or 256.
func DeriveKey(ki, label, context []byte, keyLenBits uint32) []byte {
	h := hmac.New(sha256.New, ki)

	var counter [4]byte
	binary.BigEndian.PutUint32(counter[:], 1)
	h.Write(counter[:])
	h.Write(label)
	h.Write([]byte{0x00})
	h.Write(context)

	var length [4]byte
	binary.BigEndian.PutUint32(length[:], keyLenBits)
	h.Write(length[:])

	return h.Sum(nil)[:keyLenBits/8]
}

var (
	label30Signing    = []byte("SMB2AESCMAC\x00")
	label30Encryption = []byte("SMB2AESCCM\x00")
	label30Decryption = []byte("SMB2AESCCM\x00")
	label30App        = []byte("SMB2APP\x00")

	ctx30Signing    = []byte("SmbSign\x00")
	ctx30Encryption = []byte("ServerIn \x00") // trailing space is part of the constant
	ctx30Decryption = []byte("ServerOut\x00")
	ctx30App        = []byte("SmbRpc\x00")

	label311Signing    = []byte("SMBSigningKey\x00")
	label311Encryption = []byte("SMBC2SCipherKey\x00")
	label311Decryption = []byte("SMBS2CCipherKey\x00")
	label311App        = []byte("SMBAppKey\x00")
)

// LabelAndContext returns the label and context for purpose under dialect.
func LabelAndContext(purpose KeyPurpose, dialect smb.Dialect, preauthHash [64]byte) (label, context []byte) {
	if dialect == smb.Dialect0311 {
		ctx := make([]byte, 64)
		copy(ctx, preauthHash[:])

		switch purpose {
		case SigningKeyPurpose:
			return label311Signing, ctx
		case EncryptionKeyPurpose:
			return label311Encryption, ctx
		case DecryptionKeyPurpose:
			return label311Decryption, ctx
		case ApplicationKeyPurpose:
			return label311App, ctx
		}
	}

	switch purpose {
	case SigningKeyPurpose:
		return label30Signing, ctx30Signing
	case EncryptionKeyPurpose:
		return label30Encryption, ctx30Encryption
	case DecryptionKeyPurpose:
		return label30Decryption, ctx30Decryption
	case ApplicationKeyPurpose:
		return label30App, ctx30App
	}

	return nil, nil
}

// SigningKey derives the 128-bit signing key for dialect.
func SigningKey(sessionKey []byte, dialect smb.Dialect, preauthHash [64]byte) []byte {
	label, context := LabelAndContext(SigningKeyPurpose, dialect, preauthHash)
	return DeriveKey(sessionKey, label, context, 128)
}
