/*
DESCRIPTION
  nalunit.go provides delimiting of NAL units within an elementary stream,
  parsing of the NAL unit header, and extraction of the raw byte sequence
  payload with emulation-prevention bytes removed.

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
	"encoding/binary"

	"github.com/pkg/errors"
)

// Relevant NAL unit types from Table 7-1.
const (
	NALTypeNonIDR  = 1
	NALTypePartA   = 2
	NALTypePartB   = 3
	NALTypePartC   = 4
	NALTypeIDR     = 5
	NALTypeSEI     = 6
	NALTypeSPS     = 7
	NALTypePPS     = 8
	NALTypeAUD     = 9
	NALTypeEndSeq  = 10
	NALTypeEndStrm = 11
	NALTypeFiller  = 12
)

// NALUnit is one parsed network abstraction layer unit.
type NALUnit struct {
	// nal_ref_idc; non-zero indicates the unit carries reference
	// material: a parameter set or a slice of a reference picture.
	RefIdc uint8

	// nal_unit_type from Table 7-1.
	Type uint8

	// The raw byte sequence payload, emulation-prevention bytes removed.
	RBSP []byte
}

// Errors from NAL unit parsing and delimiting.
var (
	ErrEmptyNALUnit      = errors.New("NAL unit has no header byte")
	ErrForbiddenBitSet   = errors.New("forbidden zero bit is set")
	ErrNoStartCode       = errors.New("no start code in elementary stream")
	ErrShortLengthPrefix = errors.New("length prefix overruns sample payload")
)

// parseNALUnit parses the one byte NAL unit header of b and extracts the
// RBSP from the remainder.
func parseNALUnit(b []byte) (*NALUnit, error) {
	if len(b) == 0 {
		return nil, ErrEmptyNALUnit
	}
	if b[0]&0x80 != 0 {
		return nil, ErrForbiddenBitSet
	}
	return &NALUnit{
		RefIdc: b[0] >> 5 & 0x3,
		Type:   b[0] & 0x1f,
		RBSP:   stripEmulationPrevention(b[1:]),
	}, nil
}

// stripEmulationPrevention returns a fresh copy of b with each
// emulation-prevention byte removed: a 0x03 preceded by two zero bytes is
// dropped, turning 00 00 03 into 00 00. The input is never modified, so
// the same payload bytes can be reparsed.
func stripEmulationPrevention(b []byte) []byte {
	out := make([]byte, 0, len(b))
	var zeros int
	for _, c := range b {
		if c == 0x03 && zeros >= 2 {
			zeros = 0
			continue
		}
		if c == 0x00 {
			zeros++
		} else {
			zeros = 0
		}
		out = append(out, c)
	}
	return out
}

// SplitAnnexB divides an Annex B elementary stream into NAL units. A unit
// begins after a three or four byte start code and runs to the next start
// code or the end of the stream.
func SplitAnnexB(b []byte) ([][]byte, error) {
	start := -1
	var units [][]byte

	i := 0
	for i+2 < len(b) {
		if b[i] != 0 || b[i+1] != 0 || b[i+2] != 1 {
			i++
			continue
		}
		if start >= 0 {
			// Trailing zeros belong to the next start code or are
			// padding; an RBSP never ends with a zero byte.
			end := i
			for end > start && b[end-1] == 0 {
				end--
			}
			units = append(units, b[start:end])
		}
		i += 3
		start = i
	}

	if start < 0 {
		return nil, ErrNoStartCode
	}
	units = append(units, b[start:])
	return units, nil
}

// SplitLengthPrefixed divides a length-prefixed sample payload into NAL
// units, with lengthSize bytes of big-endian length before each unit.
func SplitLengthPrefixed(b []byte, lengthSize int) ([][]byte, error) {
	if lengthSize < 1 || lengthSize > 4 {
		return nil, errors.Errorf("invalid NAL length prefix size %d", lengthSize)
	}

	var units [][]byte
	for len(b) > 0 {
		if len(b) < lengthSize {
			return nil, ErrShortLengthPrefix
		}
		var n uint32
		for _, c := range b[:lengthSize] {
			n = n<<8 | uint32(c)
		}
		b = b[lengthSize:]
		if uint32(len(b)) < n {
			return nil, ErrShortLengthPrefix
		}
		units = append(units, b[:n])
		b = b[n:]
	}
	return units, nil
}

// startCode is the four byte Annex B start code.
var startCode = []byte{0x00, 0x00, 0x00, 0x01}

// AppendAnnexB appends nalu to dst with a four byte start code in front,
// returning the extended slice.
func AppendAnnexB(dst, nalu []byte) []byte {
	return append(append(dst, startCode...), nalu...)
}

// AppendAnnexBFromLengthPrefixed rewrites the length-prefixed units of
// payload as Annex B units appended to dst.
func AppendAnnexBFromLengthPrefixed(dst, payload []byte, lengthSize int) ([]byte, error) {
	units, err := SplitLengthPrefixed(payload, lengthSize)
	if err != nil {
		return nil, err
	}
	for _, u := range units {
		dst = AppendAnnexB(dst, u)
	}
	return dst, nil
}

// used by tests to synthesise length prefixes.
func putLength(lengthSize int, n uint32) []byte {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], n)
	return b[4-lengthSize:]
}
