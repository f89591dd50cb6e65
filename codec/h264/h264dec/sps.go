/*
DESCRIPTION
  sps.go provides parsing of sequence parameter sets.

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

// Chroma sampling formats signalled by chroma_format_idc.
const (
	chromaMonochrome = iota
	chroma420
	chroma422
	chroma444
)

// SPS is a sequence parameter set. Fields follow the syntax element names
// of section 7.3.2.1.1, with minus-N offsets already applied where that
// gives the natural quantity.
type SPS struct {
	Profile     uint8
	Constraints uint8
	Level       uint8
	ID          uint32

	ChromaFormatIDC     uint32
	SeparateColourPlane bool
	BitDepthLuma        uint32
	BitDepthChroma      uint32

	QpprimeYZeroTransformBypass bool

	ScalingMatrixPresent bool
	ScalingList4x4       [6][16]int32
	ScalingList4x4Given  [6]bool
	UseDefault4x4        [6]bool
	ScalingList8x8       [6][64]int32
	ScalingList8x8Given  [6]bool
	UseDefault8x8        [6]bool

	Log2MaxFrameNum uint32

	PicOrderCntType         uint32
	Log2MaxPicOrderCntLsb   uint32
	DeltaPicOrderAlwaysZero bool
	OffsetForNonRefPic      int32
	OffsetForTopToBottom    int32
	OffsetForRefFrame       []int32

	MaxNumRefFrames       uint32
	GapsInFrameNumAllowed bool

	PicWidthInMbs        int
	PicHeightInMapUnits  int
	FrameMbsOnly         bool
	MbAdaptiveFrameField bool
	Direct8x8Inference   bool

	Cropping   bool
	CropLeft   uint32
	CropRight  uint32
	CropTop    uint32
	CropBottom uint32

	VUIPresent bool
	VUI        *VUI
}

// Profiles for which the chroma format and bit depth syntax block is
// present in the sequence parameter set.
var extendedProfiles = map[uint8]bool{
	100: true, 110: true, 122: true, 244: true, 44: true, 83: true,
	86: true, 118: true, 128: true, 138: true, 139: true, 134: true,
	135: true,
}

// Errors returned by parseSPS.
var (
	ErrSPSIDOutOfRange = errors.New("seq_parameter_set_id out of range")
)

// parseSPS parses a sequence parameter set from the given RBSP.
func parseSPS(rbsp []byte) (*SPS, error) {
	br := bits.NewBytes(rbsp)
	r := newFieldReader(br)
	s := &SPS{}

	s.Profile = uint8(r.readBits(8))
	s.Constraints = uint8(r.readBits(8)) // six flags and two reserved bits
	s.Level = uint8(r.readBits(8))
	s.ID = r.readUe()
	if s.ID >= maxSPS {
		return nil, ErrSPSIDOutOfRange
	}

	// Absent the extended profile block, the stream is 4:2:0 at 8 bits.
	s.ChromaFormatIDC = chroma420
	s.BitDepthLuma, s.BitDepthChroma = 8, 8

	if extendedProfiles[s.Profile] {
		s.ChromaFormatIDC = r.readUe()
		if s.ChromaFormatIDC == chroma444 {
			s.SeparateColourPlane = r.readFlag()
		}
		s.BitDepthLuma = r.readUe() + 8
		s.BitDepthChroma = r.readUe() + 8
		s.QpprimeYZeroTransformBypass = r.readFlag()
		s.ScalingMatrixPresent = r.readFlag()
		if s.ScalingMatrixPresent {
			n := 8
			if s.ChromaFormatIDC == chroma444 {
				n = 12
			}
			for i := 0; i < n; i++ {
				if !r.readFlag() {
					continue
				}
				if i < 6 {
					s.ScalingList4x4Given[i] = true
					parseScalingList(r, s.ScalingList4x4[i][:], &s.UseDefault4x4[i])
				} else {
					s.ScalingList8x8Given[i-6] = true
					parseScalingList(r, s.ScalingList8x8[i-6][:], &s.UseDefault8x8[i-6])
				}
			}
		}
	}

	s.Log2MaxFrameNum = r.readUe() + 4

	s.PicOrderCntType = r.readUe()
	switch s.PicOrderCntType {
	case 0:
		s.Log2MaxPicOrderCntLsb = r.readUe() + 4
	case 1:
		s.DeltaPicOrderAlwaysZero = r.readFlag()
		s.OffsetForNonRefPic = r.readSe()
		s.OffsetForTopToBottom = r.readSe()
		n := r.readUe()
		if r.err() != nil {
			return nil, r.err()
		}
		if n > 255 {
			return nil, errors.Errorf("num_ref_frames_in_pic_order_cnt_cycle %d out of range", n)
		}
		s.OffsetForRefFrame = make([]int32, n)
		for i := range s.OffsetForRefFrame {
			s.OffsetForRefFrame[i] = r.readSe()
		}
	}

	s.MaxNumRefFrames = r.readUe()
	s.GapsInFrameNumAllowed = r.readFlag()
	s.PicWidthInMbs = int(r.readUe()) + 1
	s.PicHeightInMapUnits = int(r.readUe()) + 1
	s.FrameMbsOnly = r.readFlag()
	if !s.FrameMbsOnly {
		s.MbAdaptiveFrameField = r.readFlag()
	}
	s.Direct8x8Inference = r.readFlag()

	s.Cropping = r.readFlag()
	if s.Cropping {
		s.CropLeft = r.readUe()
		s.CropRight = r.readUe()
		s.CropTop = r.readUe()
		s.CropBottom = r.readUe()
	}

	s.VUIPresent = r.readFlag()
	if r.err() != nil {
		return nil, errors.Wrap(r.err(), "could not parse sequence parameter set")
	}
	if s.VUIPresent {
		var err error
		s.VUI, err = parseVUI(r)
		if err != nil {
			return nil, errors.Wrap(err, "could not parse VUI parameters")
		}
	}
	return s, nil
}

// FrameHeightInMbs returns the frame height in macroblocks.
func (s *SPS) FrameHeightInMbs() int {
	if s.FrameMbsOnly {
		return s.PicHeightInMapUnits
	}
	return 2 * s.PicHeightInMapUnits
}

// parseScalingList parses one scaling_list syntax structure. A first
// delta driving nextScale to zero selects the default list for this
// index; a later one freezes the list at the last value.
func parseScalingList(r *fieldReader, list []int32, useDefault *bool) {
	lastScale, nextScale := int32(8), int32(8)
	for i := range list {
		if nextScale != 0 {
			delta := r.readSe()
			nextScale = (lastScale + delta + 256) % 256
			*useDefault = i == 0 && nextScale == 0
		}
		if nextScale == 0 {
			list[i] = lastScale
		} else {
			list[i] = nextScale
			lastScale = nextScale
		}
	}
}

// VUI holds the subset of the video usability information that downstream
// consumers read: timing, aspect and colour description.
type VUI struct {
	AspectRatioIDC      uint32
	SarWidth, SarHeight uint32

	VideoFormat    uint32
	VideoFullRange bool

	ColourPrimaries         uint32
	TransferCharacteristics uint32
	MatrixCoefficients      uint32

	TimingPresent  bool
	NumUnitsInTick uint32
	TimeScale      uint32
	FixedFrameRate bool

	MaxDecFrameBuffering uint32
}

// Extended sample aspect ratio indicator.
const extendedSAR = 255

// parseVUI parses the vui_parameters syntax structure, retaining the
// fields of interest and skipping the remainder at the correct widths.
func parseVUI(r *fieldReader) (*VUI, error) {
	v := &VUI{}

	if r.readFlag() { // aspect_ratio_info_present_flag
		v.AspectRatioIDC = r.readBits(8)
		if v.AspectRatioIDC == extendedSAR {
			v.SarWidth = r.readBits(16)
			v.SarHeight = r.readBits(16)
		}
	}

	if r.readFlag() { // overscan_info_present_flag
		r.readFlag()
	}

	if r.readFlag() { // video_signal_type_present_flag
		v.VideoFormat = r.readBits(3)
		v.VideoFullRange = r.readFlag()
		if r.readFlag() { // colour_description_present_flag
			v.ColourPrimaries = r.readBits(8)
			v.TransferCharacteristics = r.readBits(8)
			v.MatrixCoefficients = r.readBits(8)
		}
	}

	if r.readFlag() { // chroma_loc_info_present_flag
		r.readUe()
		r.readUe()
	}

	v.TimingPresent = r.readFlag()
	if v.TimingPresent {
		v.NumUnitsInTick = r.readBits(32)
		v.TimeScale = r.readBits(32)
		v.FixedFrameRate = r.readFlag()
	}

	nalHRD := r.readFlag()
	if nalHRD {
		if err := parseHRD(r); err != nil {
			return nil, err
		}
	}
	vclHRD := r.readFlag()
	if vclHRD {
		if err := parseHRD(r); err != nil {
			return nil, err
		}
	}
	if nalHRD || vclHRD {
		r.readFlag() // low_delay_hrd_flag
	}
	r.readFlag() // pic_struct_present_flag

	if r.readFlag() { // bitstream_restriction_flag
		r.readFlag() // motion_vectors_over_pic_boundaries_flag
		r.readUe()   // max_bytes_per_pic_denom
		r.readUe()   // max_bits_per_mb_denom
		r.readUe()   // log2_max_mv_length_horizontal
		r.readUe()   // log2_max_mv_length_vertical
		r.readUe()   // max_num_reorder_frames
		v.MaxDecFrameBuffering = r.readUe()
	}

	return v, r.err()
}

// parseHRD skips over an hrd_parameters syntax structure.
func parseHRD(r *fieldReader) error {
	n := r.readUe() + 1 // cpb_cnt
	r.readBits(4)       // bit_rate_scale
	r.readBits(4)       // cpb_size_scale
	if r.err() != nil {
		return r.err()
	}
	if n > 32 {
		return errors.Errorf("cpb_cnt %d out of range", n)
	}
	for i := uint32(0); i < n; i++ {
		r.readUe()   // bit_rate_value
		r.readUe()   // cpb_size_value
		r.readFlag() // cbr_flag
	}
	r.readBits(5) // initial_cpb_removal_delay_length
	r.readBits(5) // cpb_removal_delay_length
	r.readBits(5) // dpb_output_delay_length
	r.readBits(5) // time_offset_length
	return r.err()
}
