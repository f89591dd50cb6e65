/*
DESCRIPTION
  reader.go provides a windowed bit reader over a random-access byte source,
  with MSB-first bit reads, exp-Golomb code parsing and byte-level seeking.

AUTHORS
  Saxon A. Nelson-Milton <saxon@ausocean.org>
  Trek Hopton <trek@ausocean.org>

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

// Package bits provides a bit reader over a window of a random-access byte
// source. Reads are MSB-first within each byte. The reader buffers the
// window so that small reads do not hit the source for every byte, and it
// can seek to any absolute byte offset inside its window.
package bits

import (
	"bytes"
	"io"

	"github.com/pkg/errors"
)

// Buffer size used for windowed sources.
const bufSize = 256 << 10

// ErrOutOfWindow is returned by Seek for offsets outside the reader's window.
var ErrOutOfWindow = errors.New("seek offset outside reader window")

// Reader is a bit reader over the byte window [start,end) of src.
type Reader struct {
	src        io.ReaderAt
	start, end int64

	buf    []byte
	bufOff int64 // absolute offset of buf[0]
	bufLen int

	pos   int64  // absolute offset of the next byte to enter the accumulator
	acc   uint64 // bit accumulator
	nBits int    // valid bits remaining in acc
}

// NewReader returns a Reader over the window [start,end) of src. Reads and
// seeks outside the window fail; a read that would pass end returns
// io.ErrUnexpectedEOF.
func NewReader(src io.ReaderAt, start, end int64) (*Reader, error) {
	if start < 0 || end < start {
		return nil, errors.Errorf("invalid window [%d,%d)", start, end)
	}
	return &Reader{src: src, start: start, end: end, pos: start, buf: make([]byte, bufSize)}, nil
}

// NewBytes returns a Reader over the whole of b.
func NewBytes(b []byte) *Reader {
	n := len(b)
	if n > bufSize {
		n = bufSize
	}
	return &Reader{src: bytes.NewReader(b), end: int64(len(b)), buf: make([]byte, n)}
}

// loadByte shifts the next window byte into the accumulator.
func (r *Reader) loadByte() error {
	if r.pos >= r.end {
		return io.ErrUnexpectedEOF
	}
	if r.pos < r.bufOff || r.pos >= r.bufOff+int64(r.bufLen) {
		want := r.end - r.pos
		if want > int64(len(r.buf)) {
			want = int64(len(r.buf))
		}
		n, err := r.src.ReadAt(r.buf[:want], r.pos)
		if n == 0 {
			if err == nil || err == io.EOF {
				err = io.ErrUnexpectedEOF
			}
			return err
		}
		if err != nil && err != io.EOF {
			return err
		}
		r.bufOff, r.bufLen = r.pos, n
	}
	r.acc = r.acc<<8 | uint64(r.buf[r.pos-r.bufOff])
	r.pos++
	r.nBits += 8
	return nil
}

// ReadBits reads n bits, 1 <= n <= 32, and returns them in the
// least-significant part of the result. With the source {0x8f,0xe3}
// (1000 1111, 1110 0011), consecutive reads give:
// n = 4, res = 0x8 (1000)
// n = 2, res = 0x3 (0011)
// n = 4, res = 0xf (1111)
// n = 6, res = 0x23 (0010 0011)
func (r *Reader) ReadBits(n int) (uint32, error) {
	if n < 1 || n > 32 {
		return 0, errors.Errorf("invalid bit count %d", n)
	}
	for r.nBits < n {
		if err := r.loadByte(); err != nil {
			return 0, err
		}
	}
	res := uint32(r.acc>>uint(r.nBits-n)) & uint32((uint64(1)<<uint(n))-1)
	r.nBits -= n
	return res, nil
}

// ReadBits64 reads n bits, 1 <= n <= 64.
func (r *Reader) ReadBits64(n int) (uint64, error) {
	if n < 1 || n > 64 {
		return 0, errors.Errorf("invalid bit count %d", n)
	}
	if n <= 32 {
		v, err := r.ReadBits(n)
		return uint64(v), err
	}
	hi, err := r.ReadBits(n - 32)
	if err != nil {
		return 0, err
	}
	lo, err := r.ReadBits(32)
	if err != nil {
		return 0, err
	}
	return uint64(hi)<<32 | uint64(lo), nil
}

// PeekBits returns the next n bits, 1 <= n <= 32, without advancing.
func (r *Reader) PeekBits(n int) (uint32, error) {
	pos, acc, nBits := r.pos, r.acc, r.nBits
	v, err := r.ReadBits(n)
	r.pos, r.acc, r.nBits = pos, acc, nBits
	return v, err
}

// SkipBits discards n bits.
func (r *Reader) SkipBits(n int) error {
	for n > 0 {
		c := n
		if c > 32 {
			c = 32
		}
		if _, err := r.ReadBits(c); err != nil {
			return err
		}
		n -= c
	}
	return nil
}

// ByteAlign discards bits up to the next byte boundary and returns the
// number discarded, 0 to 7.
func (r *Reader) ByteAlign() int {
	n := r.nBits % 8
	r.nBits -= n
	return n
}

// Aligned reports whether the bit cursor is on a byte boundary.
func (r *Reader) Aligned() bool { return r.nBits%8 == 0 }

// Tell returns the absolute offset of the byte holding the next unread bit.
func (r *Reader) Tell() int64 { return r.pos - int64((r.nBits+7)/8) }

// Seek moves the byte cursor to the absolute offset abs, which must lie
// within the reader's window. Any partial bits are discarded.
func (r *Reader) Seek(abs int64) error {
	if abs < r.start || abs > r.end {
		return ErrOutOfWindow
	}
	r.pos, r.acc, r.nBits = abs, 0, 0
	return nil
}

// RemainingBits returns the number of unread bits left in the window.
func (r *Reader) RemainingBits() int64 {
	return (r.end-r.pos)*8 + int64(r.nBits)
}

// ReadBytes fills p from the reader, which must be byte aligned.
func (r *Reader) ReadBytes(p []byte) error {
	if !r.Aligned() {
		return errors.New("read of bytes while not byte aligned")
	}
	for i := range p {
		b, err := r.ReadBits(8)
		if err != nil {
			return err
		}
		p[i] = byte(b)
	}
	return nil
}

// ReadUe parses an unsigned integer exp-Golomb code: k leading zero bits,
// a one bit, then k more bits, decoding to 2^k - 1 + rem.
func (r *Reader) ReadUe() (uint32, error) {
	var k int
	for {
		b, err := r.ReadBits(1)
		if err != nil {
			return 0, err
		}
		if b == 1 {
			break
		}
		if k++; k > 31 {
			return 0, errors.New("exp-Golomb code exceeds 32 bits")
		}
	}
	if k == 0 {
		return 0, nil
	}
	rem, err := r.ReadBits(k)
	if err != nil {
		return 0, err
	}
	return uint32(1)<<uint(k) - 1 + rem, nil
}

// ReadSe parses a signed integer exp-Golomb code: codeNum k maps to
// (-1)^(k+1) * ceil(k/2).
func (r *Reader) ReadSe() (int32, error) {
	k, err := r.ReadUe()
	if err != nil {
		return 0, err
	}
	if k%2 == 0 {
		return -int32(k / 2), nil
	}
	return int32(k+1) / 2, nil
}

// ReadTe parses a truncated exp-Golomb code with the given upper bound. For
// bound 1 it is a single inverted bit, otherwise a normal ue code.
func (r *Reader) ReadTe(bound uint32) (uint32, error) {
	if bound > 1 {
		return r.ReadUe()
	}
	if bound == 0 {
		return 0, errors.New("truncated exp-Golomb bound must be at least 1")
	}
	b, err := r.ReadBits(1)
	if err != nil {
		return 0, err
	}
	return 1 - b, nil
}

// MoreRBSPData reports whether RBSP data remains, that is, whether the
// unread bits are anything other than a single one bit followed by zeros
// to the end of the window.
func (r *Reader) MoreRBSPData() bool {
	rem := r.RemainingBits()
	if rem <= 0 {
		return false
	}
	if rem > 8 {
		return true
	}
	b, err := r.PeekBits(int(rem))
	if err != nil {
		return false
	}
	return b != 1<<uint(rem-1)
}
