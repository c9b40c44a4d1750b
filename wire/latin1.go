package wire

import (
	"golang.org/x/text/encoding/charmap"
)

// DecodeLatin1 converts ISO-8859-1 bytes to UTF-8.
func DecodeLatin1(b []byte) string {
	s, err := charmap.ISO8859_1.NewDecoder().Bytes(b)
	if err != nil {
		return string(b)
	}
	return string(s)
}

// EncodeLatin1 converts s to ISO-8859-1, substituting '?' for runes the
// charset cannot hold.
func EncodeLatin1(s string) []byte {
	out := make([]byte, 0, len(s))
	for _, r := range s {
		if b, ok := charmap.ISO8859_1.EncodeRune(r); ok {
			out = append(out, b)
		} else {
			out = append(out, '?')
		}
	}
	return out
}
