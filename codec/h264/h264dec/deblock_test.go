/*
DESCRIPTION
  deblock_test.go provides testing for functionality in deblock.go.

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

func TestDeblockTables(t *testing.T) {
	// The thresholds grow monotonically with QP.
	for i := 1; i < 52; i++ {
		if alphaTable[i] < alphaTable[i-1] {
			t.Errorf("alpha table decreases at %d", i)
		}
		if betaTable[i] < betaTable[i-1] {
			t.Errorf("beta table decreases at %d", i)
		}
		for bs := 0; bs < 3; bs++ {
			if tc0Table[bs][i] < tc0Table[bs][i-1] {
				t.Errorf("tc0 table bs %d decreases at %d", bs+1, i)
			}
		}
	}

	// Below an adjusted QP of 16 the filter is off.
	for i := 0; i < 16; i++ {
		if alphaTable[i] != 0 || betaTable[i] != 0 {
			t.Errorf("thresholds non-zero at %d", i)
		}
	}

	// Spot values.
	if alphaTable[26] != 15 || betaTable[26] != 6 {
		t.Errorf("unexpected thresholds at 26: %d %d", alphaTable[26], betaTable[26])
	}
	if alphaTable[51] != 255 || betaTable[51] != 18 {
		t.Errorf("unexpected thresholds at 51: %d %d", alphaTable[51], betaTable[51])
	}
	if tc0Table[2][51] != 25 {
		t.Errorf("unexpected tc0 at (3,51): %d", tc0Table[2][51])
	}
}

// uniformFrame builds a decoded two-by-one macroblock frame filled with
// a constant value.
func uniformFrame(v uint8, qp int) *frame {
	fr := &frame{
		mbw: 2, mbh: 1,
		strideY: 32, strideC: 16,
		y:  make([]uint8, 32*16),
		cb: make([]uint8, 16*8),
		cr: make([]uint8, 16*8),
		mbs: make([]mbInfo, 2),
	}
	for i := range fr.y {
		fr.y[i] = v
	}
	for i := range fr.cb {
		fr.cb[i] = v
		fr.cr[i] = v
	}
	for i := range fr.mbs {
		fr.mbs[i] = mbInfo{decoded: true, qp: qp, qpc: [2]int{qp, qp}, sliceID: 1}
	}
	fr.nDecoded = 2
	return fr
}

func TestDeblockUniform(t *testing.T) {
	// A flat picture must be unchanged by the loop filter.
	fr := uniformFrame(128, 30)
	deblock(fr)
	for i, v := range fr.y {
		if v != 128 {
			t.Fatalf("luma sample %d changed to %d", i, v)
		}
	}
	for i := range fr.cb {
		if fr.cb[i] != 128 || fr.cr[i] != 128 {
			t.Fatalf("chroma sample %d changed", i)
		}
	}
}

func TestDeblockStepSmoothed(t *testing.T) {
	// A small step across the macroblock boundary is smoothed by the
	// strong filter.
	fr := uniformFrame(100, 30)
	for y := 0; y < 16; y++ {
		for x := 16; x < 32; x++ {
			fr.y[y*32+x] = 104
		}
	}

	deblock(fr)

	moved := false
	for y := 0; y < 16; y++ {
		if fr.y[y*32+15] != 100 || fr.y[y*32+16] != 104 {
			moved = true
		}
	}
	if !moved {
		t.Error("expected the boundary step to be filtered")
	}
}

func TestDeblockDisabled(t *testing.T) {
	fr := uniformFrame(100, 30)
	for y := 0; y < 16; y++ {
		for x := 16; x < 32; x++ {
			fr.y[y*32+x] = 104
		}
	}
	for i := range fr.mbs {
		fr.mbs[i].disableDeblock = deblockOff
	}

	deblock(fr)

	for y := 0; y < 16; y++ {
		if fr.y[y*32+15] != 100 || fr.y[y*32+16] != 104 {
			t.Fatal("disabled filter still modified samples")
		}
	}
}
