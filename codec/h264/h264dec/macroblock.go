/*
DESCRIPTION
  macroblock.go provides parsing and reconstruction of intra macroblocks:
  type and prediction mode parsing, residual decoding, inverse transform
  and the write of reconstructed samples into the picture planes.

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

import "github.com/pkg/errors"

// I macroblock types from Table 7-11. Types 1 through 24 encode the
// 16x16 prediction mode and the coded block patterns.
const (
	mbTypeINxN = 0
	mbTypeIPCM = 25
)

// Errors raised during macroblock decoding.
var (
	ErrBadMbType     = errors.New("macroblock type not valid in an I slice")
	ErrBadCBP        = errors.New("coded_block_pattern out of range")
	ErrBadChromaMode = errors.New("intra_chroma_pred_mode out of range")
	ErrBadQPDelta    = errors.New("mb_qp_delta out of range")
)

// blk4x4Pos maps a luma 4x4 block index to its (x,y) position within the
// macroblock in 4x4 units: the four blocks of each 8x8 quadrant are coded
// together.
var blk4x4Pos = [16][2]int{
	{0, 0}, {1, 0}, {0, 1}, {1, 1},
	{2, 0}, {3, 0}, {2, 1}, {3, 1},
	{0, 2}, {1, 2}, {0, 3}, {1, 3},
	{2, 2}, {3, 2}, {2, 3}, {3, 3},
}

// blkOrder is the inverse of blk4x4Pos: raster position to coding order.
var blkOrder = func() (o [16]int) {
	for i, p := range blk4x4Pos {
		o[p[1]*4+p[0]] = i
	}
	return
}()

// lumaBlkAvail reports whether the luma 4x4 block at grid position
// (gx,gy) holds decoded samples usable by the current block. Blocks of
// the current macroblock count once their coding order precedes curBlk.
func (s *sliceDecoder) lumaBlkAvail(gx, gy int) bool {
	if gx < 0 || gy < 0 || gx >= s.fr.mbw*4 || gy >= s.fr.mbh*4 {
		return false
	}
	owner := (gy/4)*s.fr.mbw + gx/4
	if owner == s.addr {
		return blkOrder[(gy%4)*4+gx%4] < s.curBlk
	}
	return s.fr.mbs[owner].decoded
}

// mbLevelAvail is block availability at whole-macroblock granularity, for
// 16x16 prediction whose references all lie outside the macroblock.
func (s *sliceDecoder) mbLevelAvail(gx, gy int) bool {
	if gx < 0 || gy < 0 || gx >= s.fr.mbw*4 || gy >= s.fr.mbh*4 {
		return false
	}
	owner := (gy/4)*s.fr.mbw + gx/4
	return owner != s.addr && s.fr.mbs[owner].decoded
}

// chromaBlkAvail is block availability on the chroma grid, where grid
// positions are 4-sample units and a macroblock spans two.
func (s *sliceDecoder) chromaBlkAvail(curBlk int) func(gx, gy int) bool {
	return func(gx, gy int) bool {
		if gx < 0 || gy < 0 || gx >= s.fr.mbw*2 || gy >= s.fr.mbh*2 {
			return false
		}
		owner := (gy/2)*s.fr.mbw + gx/2
		if owner == s.addr {
			return (gy%2)*2 + gx%2 < curBlk
		}
		return s.fr.mbs[owner].decoded
	}
}

// lumaNC derives the CAVLC context nC for luma block blk of the current
// macroblock from the coefficient totals of its left and upper
// neighbours.
func (s *sliceDecoder) lumaNC(blk int) int {
	gx := s.mbx*4 + blk4x4Pos[blk][0]
	gy := s.mby*4 + blk4x4Pos[blk][1]
	s.curBlk = blk

	aAvail := s.lumaBlkAvail(gx-1, gy)
	bAvail := s.lumaBlkAvail(gx, gy-1)
	var nA, nB int
	if aAvail {
		nA = int(s.fr.tcY[gy*s.fr.mbw*4+gx-1])
	}
	if bAvail {
		nB = int(s.fr.tcY[(gy-1)*s.fr.mbw*4+gx])
	}

	switch {
	case aAvail && bAvail:
		return (nA + nB + 1) >> 1
	case aAvail:
		return nA
	case bAvail:
		return nB
	}
	return 0
}

// chromaNC is lumaNC's counterpart on a chroma component grid.
func (s *sliceDecoder) chromaNC(tc []uint8, blk int) int {
	gx := s.mbx*2 + blk%2
	gy := s.mby*2 + blk/2
	avail := s.chromaBlkAvail(blk)

	aAvail := avail(gx-1, gy)
	bAvail := avail(gx, gy-1)
	var nA, nB int
	if aAvail {
		nA = int(tc[gy*s.fr.mbw*2+gx-1])
	}
	if bAvail {
		nB = int(tc[(gy-1)*s.fr.mbw*2+gx])
	}

	switch {
	case aAvail && bAvail:
		return (nA + nB + 1) >> 1
	case aAvail:
		return nA
	case bAvail:
		return nB
	}
	return 0
}

// setLumaTC records the coefficient total of luma block blk.
func (s *sliceDecoder) setLumaTC(blk, tc int) {
	gx := s.mbx*4 + blk4x4Pos[blk][0]
	gy := s.mby*4 + blk4x4Pos[blk][1]
	s.fr.tcY[gy*s.fr.mbw*4+gx] = uint8(tc)
}

// setChromaTC records the coefficient total of chroma block blk.
func (s *sliceDecoder) setChromaTC(tc []uint8, blk, total int) {
	gx := s.mbx*2 + blk%2
	gy := s.mby*2 + blk/2
	tc[gy*s.fr.mbw*2+gx] = uint8(total)
}

// predIntraMxMMode derives the predicted intra mode of luma block blk
// from the modes of its left and upper neighbours, defaulting to DC when
// either is unavailable.
func (s *sliceDecoder) predIntraMxMMode(blk int) int {
	gx := s.mbx*4 + blk4x4Pos[blk][0]
	gy := s.mby*4 + blk4x4Pos[blk][1]
	s.curBlk = blk

	if !s.lumaBlkAvail(gx-1, gy) || !s.lumaBlkAvail(gx, gy-1) {
		return predDC
	}
	a := int(s.fr.predMode[gy*s.fr.mbw*4+gx-1])
	b := int(s.fr.predMode[(gy-1)*s.fr.mbw*4+gx])
	return mini(a, b)
}

// setPredMode records the intra mode of luma block blk.
func (s *sliceDecoder) setPredMode(blk, mode int) {
	gx := s.mbx*4 + blk4x4Pos[blk][0]
	gy := s.mby*4 + blk4x4Pos[blk][1]
	s.fr.predMode[gy*s.fr.mbw*4+gx] = int8(mode)
}

// mbResiduals carries the parsed coefficient blocks of one macroblock,
// all in scan order.
type mbResiduals struct {
	lumaDC   [16]int32
	luma     [16][16]int32
	luma8    [4][64]int32
	chromaDC [2][4]int32
	chromaAC [2][4][16]int32
}

// decodeMacroblock parses and reconstructs the macroblock at the current
// address.
func (s *sliceDecoder) decodeMacroblock() error {
	mb := &s.fr.mbs[s.addr]
	mb.disableDeblock = s.hdr.DisableDeblocking
	mb.alphaOff, mb.betaOff = s.hdr.AlphaC0Offset, s.hdr.BetaOffset
	mb.sliceID = s.sliceID

	mbType := int(s.r.readUe())
	if s.r.err() != nil {
		return s.r.err()
	}
	if mbType < mbTypeINxN || mbType > mbTypeIPCM {
		return errors.Wrapf(ErrBadMbType, "mb_type %d", mbType)
	}
	mb.mbType = mbType

	if mbType == mbTypeIPCM {
		return s.decodePCM(mb)
	}

	var modes4 [16]int
	var modes8 [4]int

	switch {
	case mbType == mbTypeINxN:
		if s.pps.Transform8x8Mode {
			mb.transform8x8 = s.r.readFlag()
		}
		if mb.transform8x8 {
			for q := 0; q < 4; q++ {
				pred := s.predIntraMxMMode(q * 4)
				if s.r.readFlag() {
					modes8[q] = pred
				} else {
					rem := int(s.r.readBits(3))
					if rem < pred {
						modes8[q] = rem
					} else {
						modes8[q] = rem + 1
					}
				}
				// The quadrant's mode stands in for all four of
				// its 4x4 blocks in later derivations.
				for i := 0; i < 4; i++ {
					s.setPredMode(q*4+i, modes8[q])
				}
			}
		} else {
			for blk := 0; blk < 16; blk++ {
				pred := s.predIntraMxMMode(blk)
				if s.r.readFlag() {
					modes4[blk] = pred
				} else {
					rem := int(s.r.readBits(3))
					if rem < pred {
						modes4[blk] = rem
					} else {
						modes4[blk] = rem + 1
					}
				}
				s.setPredMode(blk, modes4[blk])
			}
		}

	default:
		// Intra 16x16: the prediction mode and block patterns ride in
		// mb_type.
		k := mbType - 1
		mb.intra16Mode = k % 4
		mb.cbpChroma = (k / 4) % 3
		if k >= 12 {
			mb.cbpLuma = 15
		}
	}

	mb.chromaMode = int(s.r.readUe())
	if s.r.err() != nil {
		return s.r.err()
	}
	if mb.chromaMode > predChromaPlane {
		return errors.Wrapf(ErrBadChromaMode, "mode %d", mb.chromaMode)
	}

	if mbType == mbTypeINxN {
		cbp := int(s.r.readMe(int(s.sps.ChromaFormatIDC), true))
		if s.r.err() != nil {
			return s.r.err()
		}
		if cbp > 47 {
			return errors.Wrapf(ErrBadCBP, "cbp %d", cbp)
		}
		mb.cbpLuma, mb.cbpChroma = cbp%16, cbp/16
	}

	if mb.cbpLuma != 0 || mb.cbpChroma != 0 || mbType != mbTypeINxN {
		delta := int(s.r.readSe())
		if s.r.err() != nil {
			return s.r.err()
		}
		if delta < -26 || delta > 25 {
			return errors.Wrapf(ErrBadQPDelta, "delta %d", delta)
		}
		s.qp = (s.qp + delta + 52) % 52
	}
	mb.qp = s.qp
	mb.qpc[0] = chromaQP(s.qp, s.pps.ChromaQPIndexOffset)
	mb.qpc[1] = chromaQP(s.qp, s.pps.SecondChromaQPIndexOffset)

	var res mbResiduals
	if err := s.parseResiduals(mb, &res); err != nil {
		return err
	}

	if err := s.reconstruct(mb, &res, &modes4, &modes8); err != nil {
		return err
	}

	mb.decoded = true
	s.fr.nDecoded++
	return nil
}

// decodePCM reads the raw samples of an I_PCM macroblock straight into
// the planes.
func (s *sliceDecoder) decodePCM(mb *mbInfo) error {
	s.br.ByteAlign()

	px, py := s.mbx*16, s.mby*16
	for y := 0; y < 16; y++ {
		for x := 0; x < 16; x++ {
			b, err := s.br.ReadBits(8)
			if err != nil {
				return err
			}
			s.fr.y[(py+y)*s.fr.strideY+px+x] = uint8(b)
		}
	}
	for _, plane := range [][]uint8{s.fr.cb, s.fr.cr} {
		for y := 0; y < 8; y++ {
			for x := 0; x < 8; x++ {
				b, err := s.br.ReadBits(8)
				if err != nil {
					return err
				}
				plane[(py/2+y)*s.fr.strideC+px/2+x] = uint8(b)
			}
		}
	}

	mb.pcm = true
	mb.qp = 0
	mb.qpc[0] = chromaQP(0, s.pps.ChromaQPIndexOffset)
	mb.qpc[1] = chromaQP(0, s.pps.SecondChromaQPIndexOffset)
	for blk := 0; blk < 16; blk++ {
		s.setLumaTC(blk, 16)
	}
	for blk := 0; blk < 4; blk++ {
		s.setChromaTC(s.fr.tcCb, blk, 16)
		s.setChromaTC(s.fr.tcCr, blk, 16)
	}

	mb.decoded = true
	s.fr.nDecoded++
	return nil
}

// parseResiduals reads the CAVLC residual data of the macroblock.
func (s *sliceDecoder) parseResiduals(mb *mbInfo, res *mbResiduals) error {
	if mb.mbType != mbTypeINxN {
		nC := s.lumaNC(0)
		if _, err := residualBlock(s.br, res.lumaDC[:], 0, 16, nC); err != nil {
			return errors.Wrap(err, "could not parse Intra16x16DCLevel")
		}
	}

	for i8 := 0; i8 < 4; i8++ {
		if mb.cbpLuma&(1<<uint(i8)) == 0 {
			for i4 := 0; i4 < 4; i4++ {
				s.setLumaTC(i8*4+i4, 0)
			}
			continue
		}
		for i4 := 0; i4 < 4; i4++ {
			blk := i8*4 + i4
			nC := s.lumaNC(blk)

			var tc int
			var err error
			switch {
			case mb.transform8x8:
				var tmp [16]int32
				tc, err = residualBlock(s.br, tmp[:], 0, 16, nC)
				for k := 0; k < 16; k++ {
					res.luma8[i8][4*k+i4] = tmp[k]
				}
			case mb.mbType != mbTypeINxN:
				tc, err = residualBlock(s.br, res.luma[blk][:], 1, 15, nC)
			default:
				tc, err = residualBlock(s.br, res.luma[blk][:], 0, 16, nC)
			}
			if err != nil {
				return errors.Wrapf(err, "could not parse luma residual block %d", blk)
			}
			s.setLumaTC(blk, tc)
		}
	}

	if mb.cbpChroma != 0 {
		for c := 0; c < 2; c++ {
			if _, err := residualBlock(s.br, res.chromaDC[c][:], 0, 4, -1); err != nil {
				return errors.Wrapf(err, "could not parse chroma DC block %d", c)
			}
		}
	}
	if mb.cbpChroma == 2 {
		for c := 0; c < 2; c++ {
			tc := s.fr.tcCb
			if c == 1 {
				tc = s.fr.tcCr
			}
			for blk := 0; blk < 4; blk++ {
				nC := s.chromaNC(tc, blk)
				total, err := residualBlock(s.br, res.chromaAC[c][blk][:], 1, 15, nC)
				if err != nil {
					return errors.Wrapf(err, "could not parse chroma AC block %d of component %d", blk, c)
				}
				s.setChromaTC(tc, blk, total)
			}
		}
	}
	return nil
}

// reconstruct predicts, inverse transforms and writes the macroblock's
// samples.
func (s *sliceDecoder) reconstruct(mb *mbInfo, res *mbResiduals, modes4 *[16]int, modes8 *[4]int) error {
	switch {
	case mb.mbType != mbTypeINxN:
		if err := s.reconstruct16x16(mb, res); err != nil {
			return err
		}
	case mb.transform8x8:
		for q := 0; q < 4; q++ {
			if err := s.reconstruct8x8(mb, q, &res.luma8[q], modes8[q]); err != nil {
				return err
			}
		}
	default:
		for blk := 0; blk < 16; blk++ {
			hasCoeffs := mb.cbpLuma&(1<<uint(blk/4)) != 0
			if err := s.reconstruct4x4(blk, &res.luma[blk], hasCoeffs, modes4[blk]); err != nil {
				return err
			}
		}
	}
	return s.reconstructChroma(mb, res)
}

// reconstruct4x4 rebuilds one 4x4 luma block.
func (s *sliceDecoder) reconstruct4x4(blk int, coeffs *[16]int32, hasCoeffs bool, mode int) error {
	px := s.mbx*16 + blk4x4Pos[blk][0]*4
	py := s.mby*16 + blk4x4Pos[blk][1]*4
	s.curBlk = blk

	refs := gatherRefs(s.fr.y, s.fr.strideY, px, py, 4, s.lumaBlkAvail)
	var pred [16]int
	if err := predIntraNxN(pred[:], &refs, mode, 4); err != nil {
		return err
	}

	var r [16]int32
	if hasCoeffs {
		r = inverseScan4x4(coeffs)
		dequant4x4(&r, s.qp, &s.dec.normAdjust4x4, &s.w.w4[0], false)
		inverse4x4(&r)
	}

	for y := 0; y < 4; y++ {
		for x := 0; x < 4; x++ {
			s.fr.y[(py+y)*s.fr.strideY+px+x] = clip255(pred[y*4+x] + int(r[y*4+x]))
		}
	}
	return nil
}

// reconstruct8x8 rebuilds one 8x8 luma quadrant.
func (s *sliceDecoder) reconstruct8x8(mb *mbInfo, q int, coeffs *[64]int32, mode int) error {
	px := s.mbx*16 + q%2*8
	py := s.mby*16 + q/2*8
	s.curBlk = q * 4

	refs := gatherRefs(s.fr.y, s.fr.strideY, px, py, 8, s.lumaBlkAvail)
	filterRefs8x8(&refs)
	var pred [64]int
	if err := predIntraNxN(pred[:], &refs, mode, 8); err != nil {
		return err
	}

	var r [64]int32
	if mb.cbpLuma&(1<<uint(q)) != 0 {
		r = inverseScan8x8(coeffs)
		dequant8x8(&r, s.qp, &s.dec.normAdjust8x8, &s.w.w8[0])
		inverse8x8(&r)
	}

	for y := 0; y < 8; y++ {
		for x := 0; x < 8; x++ {
			s.fr.y[(py+y)*s.fr.strideY+px+x] = clip255(pred[y*8+x] + int(r[y*8+x]))
		}
	}
	return nil
}

// reconstruct16x16 rebuilds the luma of an Intra_16x16 macroblock.
func (s *sliceDecoder) reconstruct16x16(mb *mbInfo, res *mbResiduals) error {
	px, py := s.mbx*16, s.mby*16

	refs := gatherRefs(s.fr.y, s.fr.strideY, px, py, 16, s.mbLevelAvail)
	var pred [256]int
	if err := predIntra16x16(pred[:], &refs, mb.intra16Mode); err != nil {
		return err
	}

	// The DC coefficients travel through their own Hadamard pass.
	dc := inverseScan4x4(&res.lumaDC)
	hadamard4x4(&dc)
	lumaDCDequant(&dc, s.qp, &s.dec.normAdjust4x4, &s.w.w4[0])

	for blk := 0; blk < 16; blk++ {
		bx, by := blk4x4Pos[blk][0], blk4x4Pos[blk][1]

		var r [16]int32
		if mb.cbpLuma != 0 {
			r = inverseScan4x4(&res.luma[blk])
			dequant4x4(&r, s.qp, &s.dec.normAdjust4x4, &s.w.w4[0], true)
		}
		r[0] = dc[by*4+bx]
		inverse4x4(&r)

		for y := 0; y < 4; y++ {
			for x := 0; x < 4; x++ {
				pos := (py+by*4+y)*s.fr.strideY + px + bx*4 + x
				s.fr.y[pos] = clip255(pred[(by*4+y)*16+bx*4+x] + int(r[y*4+x]))
			}
		}
	}
	return nil
}

// reconstructChroma rebuilds both chroma components of the macroblock.
func (s *sliceDecoder) reconstructChroma(mb *mbInfo, res *mbResiduals) error {
	px, py := s.mbx*8, s.mby*8

	for c := 0; c < 2; c++ {
		plane := s.fr.cb
		wList := &s.w.w4[1]
		offset := s.pps.ChromaQPIndexOffset
		if c == 1 {
			plane = s.fr.cr
			wList = &s.w.w4[2]
			offset = s.pps.SecondChromaQPIndexOffset
		}
		qpc := chromaQP(mb.qp, offset)

		refs := gatherRefs(plane, s.fr.strideC, px, py, 8, s.chromaBlkAvail(0))
		var pred [64]int
		if err := predIntraChroma(pred[:], &refs, mb.chromaMode); err != nil {
			return err
		}

		var dc [4]int32
		if mb.cbpChroma != 0 {
			dc = res.chromaDC[c]
			chromaDCTransform(&dc, qpc, &s.dec.normAdjust4x4, wList)
		}

		for blk := 0; blk < 4; blk++ {
			bx, by := blk%2, blk/2

			var r [16]int32
			if mb.cbpChroma == 2 {
				r = inverseScan4x4(&res.chromaAC[c][blk])
				dequant4x4(&r, qpc, &s.dec.normAdjust4x4, wList, true)
			}
			r[0] = dc[blk]
			inverse4x4(&r)

			for y := 0; y < 4; y++ {
				for x := 0; x < 4; x++ {
					pos := (py+by*4+y)*s.fr.strideC + px + bx*4 + x
					plane[pos] = clip255(pred[(by*4+y)*8+bx*4+x] + int(r[y*4+x]))
				}
			}
		}
	}
	return nil
}
