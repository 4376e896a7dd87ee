package binary

import (
	"crypto/ed25519"
	"encoding/binary"
)

// SPL programs encode COption<T> with a 4 byte little endian tag.
const optionTagSize = 4

// Encoder writes fixed size, little endian account layouts. Callers size the
// buffer for the full layout up front.
type Encoder struct {
	buf    []byte
	offset int
}

func NewEncoder(size int) *Encoder {
	return &Encoder{buf: make([]byte, size)}
}

func (e *Encoder) Key(key ed25519.PublicKey) {
	copy(e.buf[e.offset:], key)
	e.offset += ed25519.PublicKeySize
}

func (e *Encoder) OptionalKey(key ed25519.PublicKey) {
	if len(key) > 0 {
		e.buf[e.offset] = 1
		copy(e.buf[e.offset+optionTagSize:], key)
	}
	e.offset += optionTagSize + ed25519.PublicKeySize
}

func (e *Encoder) Uint8(v uint8) {
	e.buf[e.offset] = v
	e.offset++
}

func (e *Encoder) Bool(v bool) {
	if v {
		e.Uint8(1)
	} else {
		e.Uint8(0)
	}
}

func (e *Encoder) Uint64(v uint64) {
	binary.LittleEndian.PutUint64(e.buf[e.offset:], v)
	e.offset += 8
}

func (e *Encoder) OptionalUint64(v *uint64) {
	if v != nil {
		e.buf[e.offset] = 1
		binary.LittleEndian.PutUint64(e.buf[e.offset+optionTagSize:], *v)
	}
	e.offset += optionTagSize + 8
}

func (e *Encoder) Bytes() []byte {
	return e.buf
}

// Decoder reads layouts written by Encoder. Callers validate the buffer
// length before decoding.
type Decoder struct {
	buf    []byte
	offset int
}

func NewDecoder(b []byte) *Decoder {
	return &Decoder{buf: b}
}

func (d *Decoder) Key() ed25519.PublicKey {
	key := make(ed25519.PublicKey, ed25519.PublicKeySize)
	copy(key, d.buf[d.offset:])
	d.offset += ed25519.PublicKeySize
	return key
}

func (d *Decoder) OptionalKey() ed25519.PublicKey {
	var key ed25519.PublicKey
	if d.buf[d.offset] == 1 {
		key = make(ed25519.PublicKey, ed25519.PublicKeySize)
		copy(key, d.buf[d.offset+optionTagSize:])
	}
	d.offset += optionTagSize + ed25519.PublicKeySize
	return key
}

func (d *Decoder) Uint8() uint8 {
	v := d.buf[d.offset]
	d.offset++
	return v
}

func (d *Decoder) Bool() bool {
	return d.Uint8() == 1
}

func (d *Decoder) Uint64() uint64 {
	v := binary.LittleEndian.Uint64(d.buf[d.offset:])
	d.offset += 8
	return v
}

func (d *Decoder) OptionalUint64() *uint64 {
	var v *uint64
	if d.buf[d.offset] == 1 {
		val := binary.LittleEndian.Uint64(d.buf[d.offset+optionTagSize:])
		v = &val
	}
	d.offset += optionTagSize + 8
	return v
}

// Offset returns the number of bytes consumed so far
func (d *Decoder) Offset() int {
	return d.offset
}
