/*
DESCRIPTION
  transform_test.go provides testing for functionality in transform.go
  and quant.go.

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

func TestComputeNormAdjust(t *testing.T) {
	var n4 [6][4][4]int32
	var n8 [6][8][8]int32
	computeNormAdjust(&n4, &n8)

	for q := 0; q < 6; q++ {
		for i := 0; i < 4; i++ {
			for j := 0; j < 4; j++ {
				var want int32
				switch {
				case i%2 == 0 && j%2 == 0:
					want = v4x4[q][0]
				case i%2 == 1 && j%2 == 1:
					want = v4x4[q][1]
				default:
					want = v4x4[q][2]
				}
				if n4[q][i][j] != want {
					t.Errorf("4x4 table mismatch at [%d][%d][%d]\nGot: %d\nWant: %d\n", q, i, j, n4[q][i][j], want)
				}
			}
		}

		for i := 0; i < 8; i++ {
			for j := 0; j < 8; j++ {
				var want int32
				switch {
				case i%4 == 0 && j%4 == 0:
					want = v8x8[q][0]
				case i%2 == 1 && j%2 == 1:
					want = v8x8[q][1]
				case i%4 == 2 && j%4 == 2:
					want = v8x8[q][2]
				case (i%4 == 0 && j%2 == 1) || (i%2 == 1 && j%4 == 0):
					want = v8x8[q][3]
				case (i%4 == 0 && j%4 == 2) || (i%4 == 2 && j%4 == 0):
					want = v8x8[q][4]
				default:
					want = v8x8[q][5]
				}
				if n8[q][i][j] != want {
					t.Errorf("8x8 table mismatch at [%d][%d][%d]\nGot: %d\nWant: %d\n", q, i, j, n8[q][i][j], want)
				}
			}
		}
	}

	// Spot check the corners against the base vectors directly.
	if n4[0][0][0] != 10 || n4[5][1][1] != 29 || n4[2][0][1] != 16 {
		t.Errorf("4x4 corner spot check failed: %d %d %d", n4[0][0][0], n4[5][1][1], n4[2][0][1])
	}
	if n8[0][0][0] != 20 || n8[5][1][1] != 32 || n8[3][2][2] != 45 {
		t.Errorf("8x8 corner spot check failed: %d %d %d", n8[0][0][0], n8[5][1][1], n8[3][2][2])
	}
}

func TestInverse4x4DCOnly(t *testing.T) {
	// A lone DC coefficient spreads evenly with (x+32)>>6 rounding.
	var blk [16]int32
	blk[0] = 64
	inverse4x4(&blk)
	for i, v := range blk {
		if v != 1 {
			t.Errorf("unexpected sample at %d\nGot: %d\nWant: 1\n", i, v)
		}
	}
}

func TestInverse4x4Zero(t *testing.T) {
	var blk [16]int32
	inverse4x4(&blk)
	for i, v := range blk {
		if v != 0 {
			t.Errorf("zero block produced %d at %d", v, i)
		}
	}
}

func TestInverse8x8DCOnly(t *testing.T) {
	var blk [64]int32
	blk[0] = 64
	inverse8x8(&blk)
	for i, v := range blk {
		if v != 1 {
			t.Errorf("unexpected sample at %d\nGot: %d\nWant: 1\n", i, v)
		}
	}
}

func TestHadamard4x4(t *testing.T) {
	// A constant block transforms to a single corner value of 16 times
	// the input.
	var blk [16]int32
	for i := range blk {
		blk[i] = 1
	}
	hadamard4x4(&blk)
	if blk[0] != 16 {
		t.Errorf("unexpected DC output\nGot: %d\nWant: 16\n", blk[0])
	}
	for i := 1; i < 16; i++ {
		if blk[i] != 0 {
			t.Errorf("unexpected AC output %d at %d", blk[i], i)
		}
	}
}

func TestInverseScan4x4(t *testing.T) {
	var scan [16]int32
	for i := range scan {
		scan[i] = int32(i)
	}
	out := inverseScan4x4(&scan)

	// The second scan position is the sample to the right of DC, the
	// third the sample below it.
	if out[0] != 0 || out[1] != 1 || out[4] != 2 || out[5] != 4 {
		t.Errorf("unexpected scan order: %v", out)
	}
}

func TestChromaQP(t *testing.T) {
	tests := []struct {
		qp     int
		offset int32
		want   int
	}{
		{qp: 20, offset: 0, want: 20},
		{qp: 29, offset: 0, want: 29},
		{qp: 30, offset: 0, want: 29},
		{qp: 39, offset: 0, want: 35},
		{qp: 51, offset: 0, want: 39},
		{qp: 51, offset: 12, want: 39},
		{qp: 26, offset: -26, want: 0},
	}

	for i, test := range tests {
		if got := chromaQP(test.qp, test.offset); got != test.want {
			t.Errorf("did not get expected result for test: %d\nGot: %d\nWant: %d\n", i, got, test.want)
		}
	}
}

func TestDequant4x4Flat(t *testing.T) {
	var n4 [6][4][4]int32
	var n8 [6][8][8]int32
	computeNormAdjust(&n4, &n8)

	// QP 24 shifts by four with remainder class zero.
	var blk [16]int32
	blk[0] = 1
	blk[5] = 2
	dequant4x4(&blk, 24, &n4, &flat4x4, false)
	if blk[0] != 10<<4 {
		t.Errorf("unexpected DC dequant\nGot: %d\nWant: %d\n", blk[0], 10<<4)
	}
	if blk[5] != 2*16<<4 {
		t.Errorf("unexpected AC dequant\nGot: %d\nWant: %d\n", blk[5], 2*16<<4)
	}
}

func TestDeriveWeightsFlat(t *testing.T) {
	sps := &SPS{}
	pps := &PPS{}
	w := deriveWeights(sps, pps)
	for l := range w.w4 {
		for _, v := range w.w4[l] {
			if v != 16 {
				t.Fatalf("expected flat 4x4 weights, got %d in list %d", v, l)
			}
		}
	}
	for l := range w.w8 {
		for _, v := range w.w8[l] {
			if v != 16 {
				t.Fatalf("expected flat 8x8 weights, got %d in list %d", v, l)
			}
		}
	}
}
