package wire

import (
	"crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"
	"hash/adler32"
	"io"

	"golang.org/x/crypto/xtea"
)

// MaxFrameSize is the largest body a u16 length prefix can describe.
const MaxFrameSize = 0xffff

var (
	ErrChecksum    = errors.New("frame checksum mismatch")
	ErrFrameSize   = errors.New("invalid frame size")
	ErrMissingKey  = errors.New("xtea enabled without a key")
	ErrInnerLength = errors.New("invalid xtea payload size")
)

// XTEAKey is the session key as four little-endian words.
type XTEAKey [4]uint32

// NewXTEAKey draws a random session key.
func NewXTEAKey() (XTEAKey, error) {
	var raw [16]byte
	if _, err := rand.Read(raw[:]); err != nil {
		return XTEAKey{}, fmt.Errorf("xtea key: %w", err)
	}
	var k XTEAKey
	for i := range k {
		k[i] = binary.LittleEndian.Uint32(raw[i*4:])
	}
	return k, nil
}

// Framer encodes and decodes the transport envelope around game messages:
//
//	u16 length | [u32 adler32] | body
//
// When a key is installed the body is XTEA encrypted and carries an inner
// u16 length (or, for PaddingHeader sessions, a leading padding count)
// before the payload. Lengths and the checksum use Order (little-endian
// when nil); XTEA words are always little-endian.
type Framer struct {
	Order         Order
	Checksum      bool
	PaddingHeader bool

	cipher *xtea.Cipher
	key    XTEAKey
}

// SetKey installs the session key. The protocol uses little-endian words
// for both key and blocks while x/crypto/xtea reads them big-endian, so
// the key is handed over word-swapped and blocks are swapped around each
// cipher call.
func (f *Framer) SetKey(k XTEAKey) error {
	var raw [16]byte
	for i, w := range k {
		binary.BigEndian.PutUint32(raw[i*4:], w)
	}
	c, err := xtea.NewCipher(raw[:])
	if err != nil {
		return fmt.Errorf("xtea cipher: %w", err)
	}
	f.cipher = c
	f.key = k
	return nil
}

// ClearKey disables encryption.
func (f *Framer) ClearKey() {
	f.cipher = nil
	f.key = XTEAKey{}
}

func (f *Framer) Encrypted() bool { return f.cipher != nil }

// Reset drops checksum and key state for a new connection.
func (f *Framer) Reset() {
	f.Checksum = false
	f.PaddingHeader = false
	f.ClearKey()
}

func swapWords(b []byte) {
	for i := 0; i+4 <= len(b); i += 4 {
		b[i], b[i+1], b[i+2], b[i+3] = b[i+3], b[i+2], b[i+1], b[i]
	}
}

func (f *Framer) encryptBlocks(b []byte) {
	for off := 0; off < len(b); off += xtea.BlockSize {
		blk := b[off : off+xtea.BlockSize]
		swapWords(blk)
		f.cipher.Encrypt(blk, blk)
		swapWords(blk)
	}
}

func (f *Framer) decryptBlocks(b []byte) {
	for off := 0; off < len(b); off += xtea.BlockSize {
		blk := b[off : off+xtea.BlockSize]
		swapWords(blk)
		f.cipher.Decrypt(blk, blk)
		swapWords(blk)
	}
}

// Encode wraps payload into a complete frame including the length prefix.
func (f *Framer) Encode(payload []byte) ([]byte, error) {
	body := payload
	if f.cipher != nil {
		var inner []byte
		if f.PaddingHeader {
			pad := (xtea.BlockSize - (len(payload)+1)%xtea.BlockSize) % xtea.BlockSize
			inner = make([]byte, 0, 1+len(payload)+pad)
			inner = append(inner, byte(pad))
			inner = append(inner, payload...)
			inner = append(inner, make([]byte, pad)...)
		} else {
			if len(payload) > MaxFrameSize {
				return nil, ErrFrameSize
			}
			pad := (xtea.BlockSize - (len(payload)+2)%xtea.BlockSize) % xtea.BlockSize
			inner = make([]byte, 2, 2+len(payload)+pad)
			OrOrder(f.Order).PutUint16(inner, uint16(len(payload)))
			inner = append(inner, payload...)
			inner = append(inner, make([]byte, pad)...)
		}
		f.encryptBlocks(inner)
		body = inner
	}
	size := len(body)
	if f.Checksum {
		size += 4
	}
	if size > MaxFrameSize {
		return nil, ErrFrameSize
	}
	order := OrOrder(f.Order)
	out := make([]byte, 2, 2+size)
	order.PutUint16(out, uint16(size))
	if f.Checksum {
		out = order.AppendUint32(out, adler32.Checksum(body))
	}
	return append(out, body...), nil
}

// Decode unwraps one frame body (without its length prefix) into the game
// message it carries.
func (f *Framer) Decode(frame []byte) ([]byte, error) {
	data := frame
	if f.Checksum {
		if len(data) < 4 {
			return nil, fmt.Errorf("%w: %d bytes", ErrFrameSize, len(data))
		}
		want := OrOrder(f.Order).Uint32(data)
		data = data[4:]
		if got := adler32.Checksum(data); got != want {
			return nil, fmt.Errorf("%w: got %08x, want %08x", ErrChecksum, got, want)
		}
	}
	if f.cipher == nil {
		return data, nil
	}
	if len(data)%xtea.BlockSize != 0 {
		return nil, fmt.Errorf("%w: %d bytes not block aligned", ErrFrameSize, len(data))
	}
	plain := make([]byte, len(data))
	copy(plain, data)
	f.decryptBlocks(plain)
	if !f.PaddingHeader && len(plain) >= 2 {
		n := int(OrOrder(f.Order).Uint16(plain))
		if 2+n <= len(plain) {
			return plain[2 : 2+n], nil
		}
	}
	if len(plain) == 0 {
		return nil, ErrInnerLength
	}
	pad := int(plain[0])
	if pad < xtea.BlockSize && len(plain)-1-pad > 0 {
		return plain[1 : len(plain)-pad], nil
	}
	return nil, ErrInnerLength
}

// ReadFrame reads one length-prefixed frame from r and decodes it.
func (f *Framer) ReadFrame(r io.Reader) ([]byte, error) {
	var sz [2]byte
	if _, err := io.ReadFull(r, sz[:]); err != nil {
		return nil, err
	}
	n := int(OrOrder(f.Order).Uint16(sz[:]))
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, err
	}
	return f.Decode(buf)
}

// SplitFrames cuts complete length-prefixed frames off the front of buf and
// returns their bodies plus the unconsumed tail. A nil order reads
// little-endian lengths.
func SplitFrames(buf []byte, order Order) (frames [][]byte, rest []byte) {
	order = OrOrder(order)
	for len(buf) >= 2 {
		n := int(order.Uint16(buf))
		if len(buf) < 2+n {
			break
		}
		frames = append(frames, buf[2:2+n])
		buf = buf[2+n:]
	}
	return frames, buf
}
