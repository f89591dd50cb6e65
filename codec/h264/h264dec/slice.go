/*
DESCRIPTION
  slice.go provides parsing of slice headers and the slice-data loop that
  drives macroblock decoding for IDR pictures.

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

// Slice types from Table 7-6, modulo 5.
const (
	sliceP = iota
	sliceB
	sliceI
	sliceSP
	sliceSI
)

// Errors raised while decoding a slice.
var (
	ErrNotISlice         = errors.New("slice type is not I")
	ErrUnsupportedStream = errors.New("stream parameters outside the supported profile subset")
	ErrBadFirstMb        = errors.New("first_mb_in_slice outside picture")
	ErrMbOverrun         = errors.New("macroblock address past end of picture")
)

// sliceHeader carries the parsed slice header fields used by IDR decoding.
type sliceHeader struct {
	FirstMb   uint32
	SliceType uint32
	PPSID     uint32
	FrameNum  uint32
	IdrPicID  uint32

	PicOrderCntLsb         uint32
	DeltaPicOrderCntBottom int32
	DeltaPicOrderCnt       [2]int32

	NoOutputOfPriorPics bool
	LongTermReference   bool

	SliceQPDelta int32

	DisableDeblocking uint32
	AlphaC0Offset     int
	BetaOffset        int
}

// parseSliceHeader parses an IDR slice header using the referenced
// parameter sets from the store.
func parseSliceHeader(r *fieldReader, nal *NALUnit, store *paramSetStore) (*sliceHeader, *SPS, *PPS, error) {
	h := &sliceHeader{}

	h.FirstMb = r.readUe()
	h.SliceType = r.readUe()
	h.PPSID = r.readUe()
	if r.err() != nil {
		return nil, nil, nil, r.err()
	}

	if h.SliceType%5 != sliceI && h.SliceType%5 != sliceSI {
		return nil, nil, nil, errors.Wrapf(ErrNotISlice, "slice_type %d", h.SliceType)
	}

	pps, err := store.PPS(h.PPSID)
	if err != nil {
		return nil, nil, nil, err
	}
	sps, err := store.SPS(pps.SPSID)
	if err != nil {
		return nil, nil, nil, err
	}

	if sps.SeparateColourPlane {
		r.readBits(2) // colour_plane_id
	}
	h.FrameNum = r.readBits(int(sps.Log2MaxFrameNum))

	if !sps.FrameMbsOnly {
		if r.readFlag() { // field_pic_flag
			return nil, nil, nil, errors.Wrap(ErrUnsupportedStream, "field pictures")
		}
	}

	if nal.Type == NALTypeIDR {
		h.IdrPicID = r.readUe()
	}

	switch sps.PicOrderCntType {
	case 0:
		h.PicOrderCntLsb = r.readBits(int(sps.Log2MaxPicOrderCntLsb))
		if pps.BottomFieldPicOrderInFramePresent {
			h.DeltaPicOrderCntBottom = r.readSe()
		}
	case 1:
		if !sps.DeltaPicOrderAlwaysZero {
			h.DeltaPicOrderCnt[0] = r.readSe()
			if pps.BottomFieldPicOrderInFramePresent {
				h.DeltaPicOrderCnt[1] = r.readSe()
			}
		}
	}

	if pps.RedundantPicCntPresent {
		r.readUe() // redundant_pic_cnt
	}

	if nal.RefIdc != 0 && nal.Type == NALTypeIDR {
		h.NoOutputOfPriorPics = r.readFlag()
		h.LongTermReference = r.readFlag()
	}

	h.SliceQPDelta = r.readSe()
	if h.SliceType%5 == sliceSI {
		return nil, nil, nil, errors.Wrap(ErrUnsupportedStream, "SI slices")
	}

	if pps.DeblockingFilterControlPresent {
		h.DisableDeblocking = r.readUe()
		if h.DisableDeblocking != 1 {
			h.AlphaC0Offset = int(r.readSe()) * 2
			h.BetaOffset = int(r.readSe()) * 2
		}
	}

	if pps.NumSliceGroups > 1 {
		return nil, nil, nil, errors.Wrap(ErrUnsupportedStream, "slice groups")
	}

	if r.err() != nil {
		return nil, nil, nil, errors.Wrap(r.err(), "could not parse slice header")
	}
	return h, sps, pps, nil
}

// mbInfo is the per-macroblock record kept for neighbour derivation and
// deblocking.
type mbInfo struct {
	decoded      bool
	mbType       int
	pcm          bool
	transform8x8 bool
	sliceID      int

	qp        int
	qpc       [2]int
	cbpLuma   int
	cbpChroma int

	intra16Mode int
	chromaMode  int

	disableDeblock    uint32
	alphaOff, betaOff int
}

// frame is a picture under reconstruction: the planes, the macroblock
// grid, and the per-block bookkeeping used for CAVLC context and intra
// mode prediction. Macroblocks are addressed raster-order, neighbours by
// index arithmetic.
type frame struct {
	mbw, mbh int
	strideY  int
	strideC  int

	y, cb, cr []uint8

	mbs []mbInfo

	// Per-4x4-block total coefficient counts, on the luma and chroma
	// grids.
	tcY  []uint8
	tcCb []uint8
	tcCr []uint8

	// Per-4x4-block intra prediction modes on the luma grid. Blocks of
	// macroblocks that are not 4x4/8x8 predicted hold the DC mode.
	predMode []int8

	nDecoded int
}

// newFrame allocates a frame for the dimensions of the given SPS.
func newFrame(sps *SPS) *frame {
	mbw, mbh := sps.PicWidthInMbs, sps.FrameHeightInMbs()
	f := &frame{
		mbw:     mbw,
		mbh:     mbh,
		strideY: mbw * 16,
		strideC: mbw * 8,
		y:       make([]uint8, mbw*16*mbh*16),
		cb:      make([]uint8, mbw*8*mbh*8),
		cr:      make([]uint8, mbw*8*mbh*8),
		mbs:     make([]mbInfo, mbw*mbh),
		tcY:     make([]uint8, mbw*4*mbh*4),
		tcCb:    make([]uint8, mbw*2*mbh*2),
		tcCr:    make([]uint8, mbw*2*mbh*2),
		predMode: make([]int8, mbw*4*mbh*4),
	}
	for i := range f.predMode {
		f.predMode[i] = predDC
	}
	return f
}

// complete reports whether every macroblock of the picture has been
// decoded.
func (f *frame) complete() bool { return f.nDecoded == len(f.mbs) }

// mbAvail reports whether the macroblock at (mx,my) exists and has been
// decoded.
func (f *frame) mbAvail(mx, my int) bool {
	if mx < 0 || my < 0 || mx >= f.mbw || my >= f.mbh {
		return false
	}
	return f.mbs[my*f.mbw+mx].decoded
}

// sliceDecoder carries the state of one slice through the macroblock
// loop.
type sliceDecoder struct {
	dec *Decoder
	sps *SPS
	pps *PPS
	hdr *sliceHeader
	fr  *frame

	br *bits.Reader
	r  *fieldReader
	w  *weightSet

	qp      int
	sliceID int

	addr     int // current macroblock address
	mbx, mby int
	curBlk   int // current luma 4x4 block order index while predicting
}

// decodeSliceData runs the macroblock loop of an I slice over the RBSP
// remainder following the slice header.
func (s *sliceDecoder) decodeSliceData() error {
	total := s.fr.mbw * s.fr.mbh
	if int(s.hdr.FirstMb) >= total {
		return ErrBadFirstMb
	}

	s.addr = int(s.hdr.FirstMb)
	for {
		if s.addr >= total {
			return ErrMbOverrun
		}
		s.mbx, s.mby = s.addr%s.fr.mbw, s.addr/s.fr.mbw

		if err := s.decodeMacroblock(); err != nil {
			return errors.Wrapf(err, "could not decode macroblock %d", s.addr)
		}

		s.addr++
		if !s.br.MoreRBSPData() || s.addr >= total {
			return nil
		}
	}
}

// decodeIDRSlice decodes one IDR slice NAL unit into fr, allocating a new
// frame when fr is nil. The returned frame accumulates slices until it is
// complete.
func (d *Decoder) decodeIDRSlice(nal *NALUnit, fr *frame) (*frame, error) {
	br := bits.NewBytes(nal.RBSP)
	r := newFieldReader(br)

	hdr, sps, pps, err := parseSliceHeader(r, nal, &d.store)
	if err != nil {
		return fr, err
	}

	switch {
	case sps.ChromaFormatIDC != chroma420:
		return fr, errors.Wrapf(ErrUnsupportedStream, "chroma format idc %d", sps.ChromaFormatIDC)
	case sps.BitDepthLuma != 8 || sps.BitDepthChroma != 8:
		return fr, errors.Wrapf(ErrUnsupportedStream, "bit depth %d/%d", sps.BitDepthLuma, sps.BitDepthChroma)
	case !sps.FrameMbsOnly:
		return fr, errors.Wrap(ErrUnsupportedStream, "interlaced sequences")
	case pps.EntropyCodingMode != entropyCAVLC:
		return fr, errors.Wrap(ErrUnsupportedStream, "CABAC entropy coding")
	}

	if fr == nil {
		fr = newFrame(sps)
	} else if fr.mbw != sps.PicWidthInMbs || fr.mbh != sps.FrameHeightInMbs() {
		return fr, errors.Wrap(ErrUnsupportedStream, "slice dimensions changed mid picture")
	}

	d.sliceCount++
	s := &sliceDecoder{
		dec:     d,
		sps:     sps,
		pps:     pps,
		hdr:     hdr,
		fr:      fr,
		br:      br,
		r:       r,
		w:       deriveWeights(sps, pps),
		qp:      pps.PicInitQP + int(hdr.SliceQPDelta),
		sliceID: d.sliceCount,
	}

	if err := s.decodeSliceData(); err != nil {
		return fr, err
	}
	d.activeSPS = sps
	return fr, nil
}
