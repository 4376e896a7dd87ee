// Package shortvec implements the compact-u16 length prefix used by Solana's
// wire format: 7 bits per byte, least significant group first, with the high
// bit set on every byte but the last.
package shortvec

import (
	"fmt"
	"io"
	"math"
)

const maxEncodedLen = 3

// EncodeLen writes the compact encoding of len to w. Lengths above
// math.MaxUint16 are rejected.
func EncodeLen(w io.Writer, len int) (int, error) {
	if len < 0 || len > math.MaxUint16 {
		return 0, fmt.Errorf("len %d out of range [0, %d]", len, math.MaxUint16)
	}

	var buf [maxEncodedLen]byte
	n := 0
	for {
		buf[n] = byte(len & 0x7f)
		len >>= 7
		if len == 0 {
			n++
			break
		}
		buf[n] |= 0x80
		n++
	}

	return w.Write(buf[:n])
}

// EncodedLen returns the number of bytes EncodeLen writes for len.
func EncodedLen(len int) int {
	switch {
	case len < 1<<7:
		return 1
	case len < 1<<14:
		return 2
	default:
		return 3
	}
}

// DecodeLen reads a compact encoded length from r.
func DecodeLen(r io.Reader) (int, error) {
	var b [1]byte
	var val int
	for i := 0; ; i++ {
		if i == maxEncodedLen {
			return 0, fmt.Errorf("invalid size: more than %d bytes", maxEncodedLen)
		}
		if _, err := io.ReadFull(r, b[:]); err != nil {
			return 0, err
		}

		val |= int(b[0]&0x7f) << (i * 7)
		if b[0]&0x80 == 0 {
			return val, nil
		}
	}
}
