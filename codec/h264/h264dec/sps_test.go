/*
DESCRIPTION
  sps_test.go provides testing for functionality in sps.go and pps.go.

AUTHORS
  Saxon A. Nelson-Milton <saxon@ausocean.org>

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

package h264dec

import "testing"

// A Baseline sequence parameter set for an 8x6 macroblock frame:
// profile 66 level 30, all ids zero, pic_order_cnt_type 0 with
// log2_max_pic_order_cnt_lsb_minus4 of 2, one reference frame,
// frame_mbs_only, no cropping, no VUI.
func testSPSBytes(t *testing.T) []byte {
	bits, err := binToSlice(
		"1" + // seq_parameter_set_id
			"1" + // log2_max_frame_num_minus4
			"1" + // pic_order_cnt_type
			"011" + // log2_max_pic_order_cnt_lsb_minus4
			"010" + // max_num_ref_frames
			"0" + // gaps_in_frame_num_value_allowed_flag
			"0001000" + // pic_width_in_mbs_minus1
			"00110" + // pic_height_in_map_units_minus1
			"1" + // frame_mbs_only_flag
			"1" + // direct_8x8_inference_flag
			"0" + // frame_cropping_flag
			"0" + // vui_parameters_present_flag
			"1") // stop bit
	if err != nil {
		t.Fatalf("could not build SPS bits: %v", err)
	}
	return append([]byte{66, 0x00, 30}, bits...)
}

func TestParseSPS(t *testing.T) {
	sps, err := parseSPS(testSPSBytes(t))
	if err != nil {
		t.Fatalf("did not expect error: %v", err)
	}

	switch {
	case sps.Profile != 66:
		t.Errorf("unexpected profile\nGot: %d\nWant: 66\n", sps.Profile)
	case sps.Level != 30:
		t.Errorf("unexpected level\nGot: %d\nWant: 30\n", sps.Level)
	case sps.ID != 0:
		t.Errorf("unexpected id\nGot: %d\nWant: 0\n", sps.ID)
	case sps.ChromaFormatIDC != chroma420:
		t.Errorf("unexpected chroma format\nGot: %d\nWant: %d\n", sps.ChromaFormatIDC, chroma420)
	case sps.BitDepthLuma != 8 || sps.BitDepthChroma != 8:
		t.Errorf("unexpected bit depths: %d/%d", sps.BitDepthLuma, sps.BitDepthChroma)
	case sps.Log2MaxFrameNum != 4:
		t.Errorf("unexpected log2 max frame num\nGot: %d\nWant: 4\n", sps.Log2MaxFrameNum)
	case sps.Log2MaxPicOrderCntLsb != 6:
		t.Errorf("unexpected log2 max poc lsb\nGot: %d\nWant: 6\n", sps.Log2MaxPicOrderCntLsb)
	case sps.MaxNumRefFrames != 1:
		t.Errorf("unexpected ref frames\nGot: %d\nWant: 1\n", sps.MaxNumRefFrames)
	case sps.PicWidthInMbs != 8:
		t.Errorf("unexpected width\nGot: %d\nWant: 8\n", sps.PicWidthInMbs)
	case sps.PicHeightInMapUnits != 6:
		t.Errorf("unexpected height\nGot: %d\nWant: 6\n", sps.PicHeightInMapUnits)
	case !sps.FrameMbsOnly:
		t.Error("expected frame_mbs_only_flag")
	case sps.FrameHeightInMbs() != 6:
		t.Errorf("unexpected frame height\nGot: %d\nWant: 6\n", sps.FrameHeightInMbs())
	case sps.Cropping || sps.VUIPresent:
		t.Error("unexpected cropping or VUI")
	}
}

func TestParsePPS(t *testing.T) {
	// All ids zero, CAVLC, one slice group, pic_init_qp 26, no optional
	// trailing block.
	bits, err := binToSlice(
		"1" + // pic_parameter_set_id
			"1" + // seq_parameter_set_id
			"0" + // entropy_coding_mode_flag
			"0" + // bottom_field_pic_order_in_frame_present_flag
			"1" + // num_slice_groups_minus1
			"1" + // num_ref_idx_l0_default_active_minus1
			"1" + // num_ref_idx_l1_default_active_minus1
			"0" + // weighted_pred_flag
			"00" + // weighted_bipred_idc
			"1" + // pic_init_qp_minus26
			"1" + // pic_init_qs_minus26
			"011" + // chroma_qp_index_offset = -1
			"0" + // deblocking_filter_control_present_flag
			"0" + // constrained_intra_pred_flag
			"0" + // redundant_pic_cnt_present_flag
			"1") // stop bit
	if err != nil {
		t.Fatalf("could not build PPS bits: %v", err)
	}

	pps, err := parsePPS(bits, chroma420)
	if err != nil {
		t.Fatalf("did not expect error: %v", err)
	}

	switch {
	case pps.ID != 0 || pps.SPSID != 0:
		t.Errorf("unexpected ids: %d/%d", pps.ID, pps.SPSID)
	case pps.EntropyCodingMode != entropyCAVLC:
		t.Error("expected CAVLC entropy coding")
	case pps.NumSliceGroups != 1:
		t.Errorf("unexpected slice groups\nGot: %d\nWant: 1\n", pps.NumSliceGroups)
	case pps.PicInitQP != 26:
		t.Errorf("unexpected pic_init_qp\nGot: %d\nWant: 26\n", pps.PicInitQP)
	case pps.ChromaQPIndexOffset != -1:
		t.Errorf("unexpected chroma offset\nGot: %d\nWant: -1\n", pps.ChromaQPIndexOffset)
	case pps.SecondChromaQPIndexOffset != -1:
		t.Errorf("second chroma offset did not mirror\nGot: %d\n", pps.SecondChromaQPIndexOffset)
	case pps.Transform8x8Mode:
		t.Error("unexpected transform 8x8 mode")
	}
}

func TestParamSetStore(t *testing.T) {
	var store paramSetStore

	if _, err := store.SPS(0); err == nil {
		t.Error("expected miss from empty store")
	}

	store.putSPS(&SPS{ID: 3, Level: 30})
	store.putSPS(&SPS{ID: 3, Level: 40})
	sps, err := store.SPS(3)
	if err != nil {
		t.Fatalf("did not expect error: %v", err)
	}
	if sps.Level != 40 {
		t.Errorf("later parameter set did not overwrite\nGot level: %d\nWant: 40\n", sps.Level)
	}

	store.putPPS(&PPS{ID: 255, SPSID: 3})
	if _, err := store.PPS(255); err != nil {
		t.Errorf("did not expect error: %v", err)
	}
	if _, err := store.PPS(1); err == nil {
		t.Error("expected miss for absent PPS")
	}
}
