/*
DESCRIPTION
  quant.go provides the inverse quantization machinery: the norm adjust
  tables derived once per decoder, the scan orders, the default and flat
  scaling lists, and the per-slice weight table resolution.

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

// Base dequantization vectors, one row per QP remainder class. The full
// tables expand these by sample-position parity.
var (
	v4x4 = [6][3]int32{
		{10, 16, 13},
		{11, 18, 14},
		{13, 20, 16},
		{14, 23, 18},
		{16, 25, 20},
		{18, 29, 23},
	}

	v8x8 = [6][6]int32{
		{20, 18, 32, 19, 25, 24},
		{22, 19, 35, 21, 28, 26},
		{26, 23, 42, 24, 33, 31},
		{28, 25, 45, 26, 35, 33},
		{32, 28, 51, 30, 40, 38},
		{36, 32, 58, 34, 46, 43},
	}
)

// computeNormAdjust expands the base vectors into the position-indexed
// dequantization tables. For the 4x4 table the vector element is selected
// by the parity of the row and column; for the 8x8 table by their
// remainders modulo 4 and 2.
func computeNormAdjust(n4 *[6][4][4]int32, n8 *[6][8][8]int32) {
	for q := 0; q < 6; q++ {
		for i := 0; i < 4; i++ {
			for j := 0; j < 4; j++ {
				switch {
				case i%2 == 0 && j%2 == 0:
					n4[q][i][j] = v4x4[q][0]
				case i%2 == 1 && j%2 == 1:
					n4[q][i][j] = v4x4[q][1]
				default:
					n4[q][i][j] = v4x4[q][2]
				}
			}
		}

		for i := 0; i < 8; i++ {
			for j := 0; j < 8; j++ {
				switch {
				case i%4 == 0 && j%4 == 0:
					n8[q][i][j] = v8x8[q][0]
				case i%2 == 1 && j%2 == 1:
					n8[q][i][j] = v8x8[q][1]
				case i%4 == 2 && j%4 == 2:
					n8[q][i][j] = v8x8[q][2]
				case (i%4 == 0 && j%2 == 1) || (i%2 == 1 && j%4 == 0):
					n8[q][i][j] = v8x8[q][3]
				case (i%4 == 0 && j%4 == 2) || (i%4 == 2 && j%4 == 0):
					n8[q][i][j] = v8x8[q][4]
				default:
					n8[q][i][j] = v8x8[q][5]
				}
			}
		}
	}
}

// zigzag4x4 maps scan position to raster position for the 4x4 frame scan.
var zigzag4x4 = [16]int{
	0, 1, 4, 8,
	5, 2, 3, 6,
	9, 12, 13, 10,
	7, 11, 14, 15,
}

// zigzag8x8 maps scan position to raster position for the 8x8 frame scan.
var zigzag8x8 = [64]int{
	0, 1, 8, 16, 9, 2, 3, 10,
	17, 24, 32, 25, 18, 11, 4, 5,
	12, 19, 26, 33, 40, 48, 41, 34,
	27, 20, 13, 6, 7, 14, 21, 28,
	35, 42, 49, 56, 57, 50, 43, 36,
	29, 22, 15, 23, 30, 37, 44, 51,
	58, 59, 52, 45, 38, 31, 39, 46,
	53, 60, 61, 54, 47, 55, 62, 63,
}

// chromaQPAdd maps a clipped luma QP index of 30 or more to the chroma QP.
// Below 30 the chroma QP equals the index.
var chromaQPAdd = [22]int{
	29, 30, 31, 32, 32, 33, 34, 34, 35, 35, 36,
	36, 37, 37, 37, 38, 38, 38, 39, 39, 39, 39,
}

// chromaQP derives the chroma quantisation parameter from the luma QP and
// the picture parameter set offset.
func chromaQP(qpY int, offset int32) int {
	qpi := clip3(0, 51, qpY+int(offset))
	if qpi < 30 {
		return qpi
	}
	return chromaQPAdd[qpi-30]
}

// Default scaling lists, in scan order.
var (
	default4x4Intra = [16]int32{
		6, 13, 13, 20, 20, 20, 28, 28, 28, 28, 32, 32, 32, 37, 37, 42,
	}
	default4x4Inter = [16]int32{
		10, 14, 14, 20, 20, 20, 24, 24, 24, 24, 27, 27, 27, 30, 30, 34,
	}
	default8x8Intra = [64]int32{
		6, 10, 10, 13, 11, 13, 16, 16, 16, 16, 18, 18, 18, 18, 18, 23,
		23, 23, 23, 23, 23, 25, 25, 25, 25, 25, 25, 25, 27, 27, 27, 27,
		27, 27, 27, 27, 29, 29, 29, 29, 29, 29, 29, 31, 31, 31, 31, 31,
		31, 33, 33, 33, 33, 33, 36, 36, 36, 36, 38, 38, 38, 40, 40, 42,
	}
	default8x8Inter = [64]int32{
		9, 13, 13, 15, 13, 15, 17, 17, 17, 17, 19, 19, 19, 19, 19, 21,
		21, 21, 21, 21, 21, 22, 22, 22, 22, 22, 22, 22, 24, 24, 24, 24,
		24, 24, 24, 24, 25, 25, 25, 25, 25, 25, 25, 27, 27, 27, 27, 27,
		27, 28, 28, 28, 28, 28, 30, 30, 30, 30, 32, 32, 32, 33, 33, 35,
	}
)

var (
	flat4x4 = func() (l [16]int32) {
		for i := range l {
			l[i] = 16
		}
		return
	}()
	flat8x8 = func() (l [64]int32) {
		for i := range l {
			l[i] = 16
		}
		return
	}()
)

// weightSet holds the effective scaling weights for a slice, expanded
// from scan order to raster order. The 4x4 weights are indexed by list
// (intra Y, Cb, Cr then inter Y, Cb, Cr) and the 8x8 weights by intra and
// inter luma.
type weightSet struct {
	w4 [6][16]int32
	w8 [2][64]int32
}

// deriveWeights resolves the effective scaling lists for slices referring
// to the given parameter sets. Picture-level lists override
// sequence-level ones, absent lists fall back to the previous list of the
// same class or the default, and a flat list of 16s applies when no
// scaling matrix was transmitted at all.
func deriveWeights(sps *SPS, pps *PPS) *weightSet {
	var scan4 [6][16]int32
	var scan8 [2][64]int32

	def4 := func(i int) [16]int32 {
		if i < 3 {
			return default4x4Intra
		}
		return default4x4Inter
	}
	def8 := func(i int) [64]int32 {
		if i == 0 {
			return default8x8Intra
		}
		return default8x8Inter
	}

	switch {
	case !sps.ScalingMatrixPresent && !pps.ScalingMatrixPresent:
		for i := range scan4 {
			scan4[i] = flat4x4
		}
		scan8[0], scan8[1] = flat8x8, flat8x8

	default:
		// Sequence level, fall-back rule A.
		for i := 0; i < 6; i++ {
			switch {
			case !sps.ScalingList4x4Given[i] || sps.UseDefault4x4[i]:
				if !sps.ScalingList4x4Given[i] && i != 0 && i != 3 {
					scan4[i] = scan4[i-1]
				} else {
					scan4[i] = def4(i)
				}
			default:
				scan4[i] = sps.ScalingList4x4[i]
			}
		}
		for i := 0; i < 2; i++ {
			switch {
			case !sps.ScalingList8x8Given[i] || sps.UseDefault8x8[i]:
				scan8[i] = def8(i)
			default:
				scan8[i] = sps.ScalingList8x8[i]
			}
		}

		// Picture level, fall-back rule B, overriding per list.
		if pps.ScalingMatrixPresent {
			for i := 0; i < 6; i++ {
				switch {
				case pps.ScalingList4x4Given[i] && !pps.UseDefault4x4[i]:
					scan4[i] = pps.ScalingList4x4[i]
				case pps.ScalingList4x4Given[i]:
					scan4[i] = def4(i)
				case i != 0 && i != 3:
					scan4[i] = scan4[i-1]
				}
			}
			for i := 0; i < 2; i++ {
				if pps.ScalingList8x8Given[i] {
					if pps.UseDefault8x8[i] {
						scan8[i] = def8(i)
					} else {
						scan8[i] = pps.ScalingList8x8[i]
					}
				}
			}
		}
	}

	// Expand from scan order to raster order.
	w := &weightSet{}
	for l := range scan4 {
		for k, v := range scan4[l] {
			w.w4[l][zigzag4x4[k]] = v
		}
	}
	for l := range scan8 {
		for k, v := range scan8[l] {
			w.w8[l][zigzag8x8[k]] = v
		}
	}
	return w
}
