/*
DESCRIPTION
  parse.go provides parsing processes for syntax elements of the
  fixed-width, exp-Golomb and mapped exp-Golomb descriptors.

AUTHORS
  Saxon A. Nelson-Milton <saxon@ausocean.org>
  mrmod <mcmoranbjr@gmail.com>

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

package h264dec

import (
	"github.com/pkg/errors"

	"github.com/ausocean/thumb/bits"
)

// fieldReader provides methods for reading fields of the common syntax
// element descriptors from a bits.Reader, with a sticky error that may be
// checked once after a series of reads.
type fieldReader struct {
	e  error
	br *bits.Reader
}

// newFieldReader returns a new fieldReader.
func newFieldReader(br *bits.Reader) *fieldReader {
	return &fieldReader{br: br}
}

// readBits returns the next n bits. No read happens if the fieldReader
// already holds an error.
func (r *fieldReader) readBits(n int) uint32 {
	if r.e != nil {
		return 0
	}
	var b uint32
	b, r.e = r.br.ReadBits(n)
	return b
}

// readFlag returns the next bit as a bool.
func (r *fieldReader) readFlag() bool {
	return r.readBits(1) == 1
}

// readUe parses a syntax element of ue(v) descriptor, an unsigned integer
// exp-Golomb-coded element.
func (r *fieldReader) readUe() uint32 {
	if r.e != nil {
		return 0
	}
	var i uint32
	i, r.e = r.br.ReadUe()
	return i
}

// readSe parses a syntax element of se(v) descriptor, a signed integer
// exp-Golomb-coded element.
func (r *fieldReader) readSe() int32 {
	if r.e != nil {
		return 0
	}
	var i int32
	i, r.e = r.br.ReadSe()
	return i
}

// readTe parses a syntax element of te(v) descriptor, a truncated
// exp-Golomb-coded element with the given bound.
func (r *fieldReader) readTe(bound uint32) uint32 {
	if r.e != nil {
		return 0
	}
	var i uint32
	i, r.e = r.br.ReadTe(bound)
	return i
}

// readMe parses a syntax element of me(v) descriptor, a mapped
// exp-Golomb-coded element, returning the coded block pattern for the
// given chroma array type and prediction class.
func (r *fieldReader) readMe(chromaArrayType int, intra bool) uint32 {
	if r.e != nil {
		return 0
	}
	var i uint32
	i, r.e = readMe(r.br, chromaArrayType, intra)
	return i
}

// moreRBSPData reports whether RBSP data remains in the reader.
func (r *fieldReader) moreRBSPData() bool {
	if r.e != nil {
		return false
	}
	return r.br.MoreRBSPData()
}

// err returns the fieldReader's sticky error, if any.
func (r *fieldReader) err() error {
	return r.e
}

// Errors used by readMe.
var (
	errInvalidCodeNum = errors.New("invalid codeNum")
	errInvalidCAT     = errors.New("invalid chroma array type")
)

// readMe parses a mapped exp-Golomb-coded element: a ue(v) codeNum mapped
// to a coded block pattern through the table appropriate to the chroma
// array type and the macroblock prediction class.
func readMe(r *bits.Reader, chromaArrayType int, intra bool) (uint32, error) {
	var t int
	switch chromaArrayType {
	case 1, 2:
		t = 0
	case 0, 3:
		t = 1
	default:
		return 0, errInvalidCAT
	}

	codeNum, err := r.ReadUe()
	if err != nil {
		return 0, errors.Wrap(err, "could not read codeNum")
	}
	if int(codeNum) >= len(codedBlockPattern[t]) {
		return 0, errInvalidCodeNum
	}

	pair := codedBlockPattern[t][codeNum]
	if intra {
		return pair[0], nil
	}
	return pair[1], nil
}

// codedBlockPattern maps a codeNum to a coded block pattern for intra and
// inter prediction classes. The first table serves chroma array types 1
// and 2, the second types 0 and 3.
var codedBlockPattern = [2][][2]uint32{
	{
		{47, 0}, {31, 16}, {15, 1}, {0, 2}, {23, 4}, {27, 8}, {29, 32}, {30, 3},
		{7, 5}, {11, 10}, {13, 12}, {14, 15}, {39, 47}, {43, 7}, {45, 11}, {46, 13},
		{16, 14}, {3, 6}, {5, 9}, {10, 31}, {12, 35}, {19, 37}, {21, 42}, {26, 44},
		{28, 33}, {35, 34}, {37, 36}, {42, 40}, {44, 39}, {1, 43}, {2, 45}, {4, 46},
		{8, 17}, {17, 18}, {18, 20}, {20, 24}, {24, 19}, {6, 21}, {9, 26}, {22, 28},
		{25, 23}, {32, 27}, {33, 29}, {34, 30}, {36, 22}, {40, 25}, {38, 38}, {41, 41},
	},
	{
		{15, 0}, {0, 1}, {7, 2}, {11, 4}, {13, 8}, {14, 3}, {3, 5}, {5, 10}, {10, 12},
		{12, 15}, {1, 7}, {2, 11}, {4, 13}, {8, 14}, {6, 6}, {9, 9},
	},
}

func mini(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func absi(a int) int {
	if a < 0 {
		return -a
	}
	return a
}

func clip3(lo, hi, v int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func clip255(v int) uint8 {
	if v < 0 {
		return 0
	}
	if v > 255 {
		return 255
	}
	return uint8(v)
}
