package wire

import (
	"errors"
	"math/big"
)

// OTServRSA is the public modulus shipped with open game servers.
const OTServRSA = "1091201329673994292788609605089955415282375029027981291234687579" +
	"3726629149257644633073969600111060390723088861007265581882535850" +
	"3429057592827629436413108566029093628212635953836686562675849720" +
	"6207862794310902180176810615217550567108238764764442605581471797" +
	"07119674283982419152118103759076030616683978566631413"

const rsaExponent = 65537

var ErrRSAModulus = errors.New("invalid rsa modulus")

// RSAKey is a raw (unpadded) RSA public key as the login handshake uses it.
type RSAKey struct {
	N *big.Int
	E int
}

// ParseRSAKey reads a decimal modulus. An empty string selects OTServRSA.
func ParseRSAKey(decimal string) (*RSAKey, error) {
	if decimal == "" {
		decimal = OTServRSA
	}
	n, ok := new(big.Int).SetString(decimal, 10)
	if !ok || n.Sign() <= 0 {
		return nil, ErrRSAModulus
	}
	return &RSAKey{N: n, E: rsaExponent}, nil
}

// Size is the block size in bytes, aligned down to a multiple of 128 when
// the modulus is at least that large.
func (k *RSAKey) Size() int {
	n := (k.N.BitLen() + 7) / 8
	if aligned := n / 128 * 128; aligned > 0 {
		return aligned
	}
	return n
}

// EncryptBlock applies m^e mod n to one block and returns a result of the
// same length.
func (k *RSAKey) EncryptBlock(block []byte) []byte {
	m := new(big.Int).SetBytes(block)
	c := m.Exp(m, big.NewInt(int64(k.E)), k.N)
	return c.FillBytes(make([]byte, len(block)))
}
