package proto

import (
	"errors"
	"fmt"
	"strconv"

	"gotibia/wire"
)

// loginOS is the platform id sent in the login packet (windows).
const loginOS = 2

// Clients from loginVersionStringFrom on also send their version as text;
// from loginContentHashFrom on the content revision becomes a hash string.
const (
	loginVersionStringFrom = 1334
	loginContentHashFrom   = 1281
)

var (
	ErrNumericAccount = errors.New("account must be numeric for this client version")
	ErrRSABlockSize   = errors.New("rsa block is larger than the key size")
)

// Credentials identify the character to log in with. SessionKey replaces
// account and password on protocols that use one.
type Credentials struct {
	Account    string
	Password   string
	Character  string
	Token      string
	SessionKey string

	// ContentRevision and ContentHash identify the client's item data.
	ContentRevision uint16
	ContentHash     string
	// ExtendedData is appended after the challenge when set.
	ExtendedData string
}

// VersionString is the dotted client version newer clients announce,
// 1340 becoming "13.40".
func VersionString(version int) string {
	return fmt.Sprintf("%d.%02d", version/100, version%100)
}

// Challenge is the server's anti-replay pair echoed in the login packet.
type Challenge struct {
	Timestamp uint32
	Random    uint8
}

// LoginPacket is a built login message together with the session key it
// announced. Key is only meaningful when Encrypted is set.
type LoginPacket struct {
	Payload   []byte
	Key       wire.XTEAKey
	Encrypted bool
	RSAOffset int
}

// BuildLoginPacket assembles the game login message. The section from
// RSAOffset on is zero padded to one key block and encrypted with rsa when
// the protocol encrypts its login.
func BuildLoginPacket(caps Capabilities, order wire.Order, rsa *wire.RSAKey, key wire.XTEAKey, cred Credentials, ch Challenge) (*LoginPacket, error) {
	on := caps.Enabled
	w := wire.NewWriterOrder(order)
	w.U8(uint8(ClientPendingGame)).U16(loginOS).U16(uint16(caps.ProtocolVersion()))
	if on(GameClientVersion) {
		w.U32(uint32(caps.Version()))
	}
	if caps.Version() >= loginVersionStringFrom {
		w.String(VersionString(caps.Version()))
	}
	if caps.Version() >= loginContentHashFrom {
		w.String(cred.ContentHash)
	} else if on(GameContentRevision) {
		w.U16(cred.ContentRevision)
	}
	if on(GamePreviewState) {
		w.U8(0)
	}

	pkt := &LoginPacket{RSAOffset: w.Len()}
	if on(GameLoginPacketEncryption) {
		w.U8(0)
		for _, k := range key {
			w.U32(k)
		}
		pkt.Key = key
		pkt.Encrypted = true
	}
	w.U8(0) // gamemaster flag

	if on(GameSessionKey) {
		w.String(cred.SessionKey).String(cred.Character)
	} else {
		if on(GameAccountNames) {
			w.String(cred.Account)
		} else {
			n, err := strconv.ParseUint(cred.Account, 10, 32)
			if err != nil {
				return nil, fmt.Errorf("%w: %q", ErrNumericAccount, cred.Account)
			}
			w.U32(uint32(n))
		}
		w.String(cred.Character).String(cred.Password)
		if on(GameAuthenticator) {
			w.String(cred.Token)
		}
	}
	if on(GameChallengeOnLogin) {
		w.U32(ch.Timestamp).U8(ch.Random)
	}
	if cred.ExtendedData != "" {
		w.String(cred.ExtendedData)
	}

	if !pkt.Encrypted {
		pkt.Payload = w.Bytes()
		return pkt, nil
	}
	if rsa == nil {
		return nil, wire.ErrRSAModulus
	}
	size := rsa.Size()
	if w.Len()-pkt.RSAOffset > size {
		return nil, fmt.Errorf("%w: %d > %d", ErrRSABlockSize, w.Len()-pkt.RSAOffset, size)
	}
	w.PadTo(pkt.RSAOffset + size)
	buf := w.Bytes()
	copy(buf[len(buf)-size:], rsa.EncryptBlock(buf[len(buf)-size:]))
	pkt.Payload = buf
	return pkt, nil
}
