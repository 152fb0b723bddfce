// Copyright (c) 2025 The btcwatch developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package wire implements the raw Bitcoin block and transaction decoder used
// by the watch monitor, together with the byte-cursor and hashing primitives
// it is built on.
package wire

import "fmt"

// maxSafeInt is the largest integer that survives a float64 round trip.
// Compact-size values above it are rejected rather than silently truncated.
const maxSafeInt = 1<<53 - 1

// ByteReader is a cursor over an immutable byte buffer. All reads advance the
// cursor and fail with an ErrOutOfRange error instead of panicking when they
// would pass the end of the buffer.
type ByteReader struct {
	buf []byte
	pos int
}

// NewByteReader returns a reader positioned at the start of buf. The buffer
// is not copied and must not be mutated while the reader is in use.
func NewByteReader(buf []byte) *ByteReader {
	return &ByteReader{buf: buf}
}

// Position returns the current cursor offset from the start of the buffer.
func (r *ByteReader) Position() int {
	return r.pos
}

// Len returns the number of unread bytes.
func (r *ByteReader) Len() int {
	return len(r.buf) - r.pos
}

// require fails unless n more bytes are available.
func (r *ByteReader) require(n int) error {
	if n < 0 || r.pos+n > len(r.buf) {
		return decodeError(ErrOutOfRange, fmt.Sprintf(
			"read of %d bytes at offset %d exceeds buffer length %d",
			n, r.pos, len(r.buf)))
	}
	return nil
}

// ReadU8 reads a single byte.
func (r *ByteReader) ReadU8() (byte, error) {
	if err := r.require(1); err != nil {
		return 0, err
	}
	b := r.buf[r.pos]
	r.pos++
	return b, nil
}

// ReadU16LE reads a little-endian 16-bit unsigned integer.
func (r *ByteReader) ReadU16LE() (uint16, error) {
	if err := r.require(2); err != nil {
		return 0, err
	}
	v := uint16(r.buf[r.pos]) | uint16(r.buf[r.pos+1])<<8
	r.pos += 2
	return v, nil
}

// ReadU32LE reads a little-endian 32-bit unsigned integer.
func (r *ByteReader) ReadU32LE() (uint32, error) {
	if err := r.require(4); err != nil {
		return 0, err
	}
	v := uint32(r.buf[r.pos]) |
		uint32(r.buf[r.pos+1])<<8 |
		uint32(r.buf[r.pos+2])<<16 |
		uint32(r.buf[r.pos+3])<<24
	r.pos += 4
	return v, nil
}

// ReadU64LE reads a little-endian 64-bit unsigned integer.
func (r *ByteReader) ReadU64LE() (uint64, error) {
	if err := r.require(8); err != nil {
		return 0, err
	}
	var v uint64
	for i := 0; i < 8; i++ {
		v |= uint64(r.buf[r.pos+i]) << (8 * i)
	}
	r.pos += 8
	return v, nil
}

// ReadU64AsInt reads a little-endian 64-bit unsigned integer and rejects
// values above 2^53 - 1.
func (r *ByteReader) ReadU64AsInt() (int64, error) {
	v, err := r.ReadU64LE()
	if err != nil {
		return 0, err
	}
	if v > maxSafeInt {
		return 0, decodeError(ErrVarIntOverflow, fmt.Sprintf(
			"u64 value %d exceeds the safe integer range", v))
	}
	return int64(v), nil
}

// ReadVarInt reads a Bitcoin compact-size integer: a single byte below 0xFD,
// or a 0xFD/0xFE/0xFF marker followed by a 2/4/8 byte little-endian value.
// Values above 2^53 - 1 are rejected.
func (r *ByteReader) ReadVarInt() (uint64, error) {
	marker, err := r.ReadU8()
	if err != nil {
		return 0, err
	}
	var v uint64
	switch marker {
	case 0xfd:
		u, err := r.ReadU16LE()
		if err != nil {
			return 0, err
		}
		v = uint64(u)
	case 0xfe:
		u, err := r.ReadU32LE()
		if err != nil {
			return 0, err
		}
		v = uint64(u)
	case 0xff:
		v, err = r.ReadU64LE()
		if err != nil {
			return 0, err
		}
	default:
		return uint64(marker), nil
	}
	if v > maxSafeInt {
		return 0, decodeError(ErrVarIntOverflow, fmt.Sprintf(
			"compact-size value %d exceeds the safe integer range", v))
	}
	return v, nil
}

// ReadSlice reads n bytes and returns them as a subslice of the underlying
// buffer. The result aliases the buffer and must be copied before mutation.
func (r *ByteReader) ReadSlice(n int) ([]byte, error) {
	if err := r.require(n); err != nil {
		return nil, err
	}
	s := r.buf[r.pos : r.pos+n]
	r.pos += n
	return s, nil
}

// Skip advances the cursor n bytes without retaining them.
func (r *ByteReader) Skip(n int) error {
	if err := r.require(n); err != nil {
		return err
	}
	r.pos += n
	return nil
}

// Rewind moves the cursor n bytes back.
func (r *ByteReader) Rewind(n int) error {
	if n < 0 || n > r.pos {
		return decodeError(ErrOutOfRange, fmt.Sprintf(
			"rewind of %d bytes at offset %d", n, r.pos))
	}
	r.pos -= n
	return nil
}

// SliceAbsolute returns the buffer bytes in [a, b) regardless of the current
// cursor position.
func (r *ByteReader) SliceAbsolute(a, b int) ([]byte, error) {
	if a < 0 || b < a || b > len(r.buf) {
		return nil, decodeError(ErrOutOfRange, fmt.Sprintf(
			"absolute slice [%d, %d) exceeds buffer length %d",
			a, b, len(r.buf)))
	}
	return r.buf[a:b], nil
}
