/*
DESCRIPTION
  pps.go provides parsing of picture parameter sets.

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
	"math"

	"github.com/pkg/errors"

	"github.com/ausocean/thumb/bits"
)

// Entropy coding modes signalled by entropy_coding_mode_flag.
const (
	entropyCAVLC = 0
	entropyCABAC = 1
)

// PPS is a picture parameter set, following the syntax element names of
// section 7.3.2.2 with minus-N offsets applied.
type PPS struct {
	ID    uint32
	SPSID uint32

	EntropyCodingMode                 uint32
	BottomFieldPicOrderInFramePresent bool

	NumSliceGroups            int
	SliceGroupMapType         uint32
	RunLength                 []uint32
	TopLeft, BottomRight      []uint32
	SliceGroupChangeDirection bool
	SliceGroupChangeRate      uint32
	SliceGroupID              []uint32

	NumRefIdxL0DefaultActive int
	NumRefIdxL1DefaultActive int
	WeightedPred             bool
	WeightedBipred           uint32

	PicInitQP int
	PicInitQS int

	ChromaQPIndexOffset       int32
	SecondChromaQPIndexOffset int32

	DeblockingFilterControlPresent bool
	ConstrainedIntraPred           bool
	RedundantPicCntPresent         bool

	Transform8x8Mode     bool
	ScalingMatrixPresent bool
	ScalingList4x4       [6][16]int32
	ScalingList4x4Given  [6]bool
	UseDefault4x4        [6]bool
	ScalingList8x8       [6][64]int32
	ScalingList8x8Given  [6]bool
	UseDefault8x8        [6]bool
}

// ErrPPSIDOutOfRange is returned for a pic_parameter_set_id past the last
// table slot.
var ErrPPSIDOutOfRange = errors.New("pic_parameter_set_id out of range")

// parsePPS parses a picture parameter set from the given RBSP. The chroma
// format of the referenced SPS decides how many scaling lists may follow
// the transform flag; chromaFormat should be chroma420 when unknown.
func parsePPS(rbsp []byte, chromaFormat uint32) (*PPS, error) {
	br := bits.NewBytes(rbsp)
	r := newFieldReader(br)
	p := &PPS{}

	p.ID = r.readUe()
	if p.ID >= maxPPS {
		return nil, ErrPPSIDOutOfRange
	}
	p.SPSID = r.readUe()
	p.EntropyCodingMode = r.readBits(1)
	p.BottomFieldPicOrderInFramePresent = r.readFlag()

	p.NumSliceGroups = int(r.readUe()) + 1
	if p.NumSliceGroups > 1 {
		p.SliceGroupMapType = r.readUe()
		switch p.SliceGroupMapType {
		case 0:
			for i := 0; i < p.NumSliceGroups; i++ {
				p.RunLength = append(p.RunLength, r.readUe()+1)
			}
		case 2:
			for i := 0; i < p.NumSliceGroups-1; i++ {
				p.TopLeft = append(p.TopLeft, r.readUe())
				p.BottomRight = append(p.BottomRight, r.readUe())
			}
		case 3, 4, 5:
			p.SliceGroupChangeDirection = r.readFlag()
			p.SliceGroupChangeRate = r.readUe() + 1
		case 6:
			n := int(r.readUe()) + 1
			if r.err() != nil {
				return nil, r.err()
			}
			w := int(math.Ceil(math.Log2(float64(p.NumSliceGroups))))
			p.SliceGroupID = make([]uint32, n)
			for i := range p.SliceGroupID {
				p.SliceGroupID[i] = r.readBits(w)
			}
		}
	}

	p.NumRefIdxL0DefaultActive = int(r.readUe()) + 1
	p.NumRefIdxL1DefaultActive = int(r.readUe()) + 1
	p.WeightedPred = r.readFlag()
	p.WeightedBipred = r.readBits(2)
	p.PicInitQP = 26 + int(r.readSe())
	p.PicInitQS = 26 + int(r.readSe())
	p.ChromaQPIndexOffset = r.readSe()
	p.DeblockingFilterControlPresent = r.readFlag()
	p.ConstrainedIntraPred = r.readFlag()
	p.RedundantPicCntPresent = r.readFlag()

	// Without the trailing block the second chroma offset mirrors the
	// first.
	p.SecondChromaQPIndexOffset = p.ChromaQPIndexOffset

	if r.moreRBSPData() {
		p.Transform8x8Mode = r.readFlag()
		p.ScalingMatrixPresent = r.readFlag()
		if p.ScalingMatrixPresent {
			n := 6
			if p.Transform8x8Mode {
				if chromaFormat == chroma444 {
					n += 6
				} else {
					n += 2
				}
			}
			for i := 0; i < n; i++ {
				if !r.readFlag() {
					continue
				}
				if i < 6 {
					p.ScalingList4x4Given[i] = true
					parseScalingList(r, p.ScalingList4x4[i][:], &p.UseDefault4x4[i])
				} else {
					p.ScalingList8x8Given[i-6] = true
					parseScalingList(r, p.ScalingList8x8[i-6][:], &p.UseDefault8x8[i-6])
				}
			}
		}
		p.SecondChromaQPIndexOffset = r.readSe()
	}

	if r.err() != nil {
		return nil, errors.Wrap(r.err(), "could not parse picture parameter set")
	}
	return p, nil
}
