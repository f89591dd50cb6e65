/*
DESCRIPTION
  transform.go provides inverse scanning, inverse quantization and the
  inverse integer transforms used to rebuild residual sample blocks.

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

// inverseScan4x4 reorders a 4x4 coefficient list from scan order to a
// raster 4x4 block.
func inverseScan4x4(scan *[16]int32) [16]int32 {
	var out [16]int32
	for k, v := range scan {
		out[zigzag4x4[k]] = v
	}
	return out
}

// inverseScan8x8 reorders an 8x8 coefficient list from scan order to a
// raster 8x8 block.
func inverseScan8x8(scan *[64]int32) [64]int32 {
	var out [64]int32
	for k, v := range scan {
		out[zigzag8x8[k]] = v
	}
	return out
}

// dequant4x4 scales a raster-order 4x4 coefficient block in place for the
// given QP. When skipDC is set the first coefficient is left alone, as it
// arrives through a separate DC path.
func dequant4x4(blk *[16]int32, qp int, norm *[6][4][4]int32, w *[16]int32, skipDC bool) {
	m, shift := qp%6, uint(qp/6)
	for i := 0; i < 4; i++ {
		for j := 0; j < 4; j++ {
			k := i*4 + j
			if k == 0 && skipDC {
				continue
			}
			blk[k] = int32((int(blk[k]) * int(norm[m][i][j]) * int(w[k]) >> 4) << shift)
		}
	}
}

// dequant8x8 scales a raster-order 8x8 coefficient block in place.
func dequant8x8(blk *[64]int32, qp int, norm *[6][8][8]int32, w *[64]int32) {
	m, shift := qp%6, uint(qp/6)
	for i := 0; i < 8; i++ {
		for j := 0; j < 8; j++ {
			k := i*8 + j
			blk[k] = int32((int(blk[k]) * int(norm[m][i][j]) * int(w[k]) >> 4) << shift)
		}
	}
}

// inverse4x4 runs the inverse 4x4 integer transform on a raster block,
// leaving residual sample values with (x+32)>>6 rounding applied.
func inverse4x4(blk *[16]int32) {
	// Rows.
	for i := 0; i < 16; i += 4 {
		d0, d1, d2, d3 := blk[i], blk[i+1], blk[i+2], blk[i+3]
		e0 := d0 + d2
		e1 := d0 - d2
		e2 := d1>>1 - d3
		e3 := d1 + d3>>1
		blk[i] = e0 + e3
		blk[i+1] = e1 + e2
		blk[i+2] = e1 - e2
		blk[i+3] = e0 - e3
	}

	// Columns.
	for i := 0; i < 4; i++ {
		d0, d1, d2, d3 := blk[i], blk[i+4], blk[i+8], blk[i+12]
		e0 := d0 + d2
		e1 := d0 - d2
		e2 := d1>>1 - d3
		e3 := d1 + d3>>1
		blk[i] = (e0 + e3 + 32) >> 6
		blk[i+4] = (e1 + e2 + 32) >> 6
		blk[i+8] = (e1 - e2 + 32) >> 6
		blk[i+12] = (e0 - e3 + 32) >> 6
	}
}

// hadamard4x4 runs the 4x4 Hadamard transform used on the DC coefficients
// of a 16x16 intra macroblock. No rounding is applied here; scaling
// happens in lumaDCDequant.
func hadamard4x4(blk *[16]int32) {
	for i := 0; i < 16; i += 4 {
		d0, d1, d2, d3 := blk[i], blk[i+1], blk[i+2], blk[i+3]
		e0 := d0 + d2
		e1 := d0 - d2
		e2 := d1 - d3
		e3 := d1 + d3
		blk[i] = e0 + e3
		blk[i+1] = e1 + e2
		blk[i+2] = e1 - e2
		blk[i+3] = e0 - e3
	}
	for i := 0; i < 4; i++ {
		d0, d1, d2, d3 := blk[i], blk[i+4], blk[i+8], blk[i+12]
		e0 := d0 + d2
		e1 := d0 - d2
		e2 := d1 - d3
		e3 := d1 + d3
		blk[i] = e0 + e3
		blk[i+4] = e1 + e2
		blk[i+8] = e1 - e2
		blk[i+12] = e0 - e3
	}
}

// lumaDCDequant scales transformed luma DC coefficients for the given QP.
func lumaDCDequant(blk *[16]int32, qp int, norm *[6][4][4]int32, w *[16]int32) {
	ls := int(norm[qp%6][0][0]) * int(w[0]) >> 4
	if qp >= 36 {
		shift := uint(qp/6 - 6)
		for i := range blk {
			blk[i] = int32(int(blk[i]) * ls << shift)
		}
		return
	}
	shift := uint(6 - qp/6)
	round := 1 << (shift - 1)
	for i := range blk {
		blk[i] = int32((int(blk[i])*ls + round) >> shift)
	}
}

// chromaDCTransform runs the 2x2 Hadamard on a chroma DC block and scales
// it for the given chroma QP.
func chromaDCTransform(blk *[4]int32, qp int, norm *[6][4][4]int32, w *[16]int32) {
	c00, c01, c10, c11 := blk[0], blk[1], blk[2], blk[3]
	f0 := c00 + c01 + c10 + c11
	f1 := c00 - c01 + c10 - c11
	f2 := c00 + c01 - c10 - c11
	f3 := c00 - c01 - c10 + c11

	ls := int(norm[qp%6][0][0]) * int(w[0]) >> 4
	shift := uint(qp / 6)
	blk[0] = int32((int(f0) * ls << shift) >> 5)
	blk[1] = int32((int(f1) * ls << shift) >> 5)
	blk[2] = int32((int(f2) * ls << shift) >> 5)
	blk[3] = int32((int(f3) * ls << shift) >> 5)
}

// inverse8x8 runs the inverse 8x8 integer transform on a raster block,
// with (x+32)>>6 rounding applied at the end.
func inverse8x8(blk *[64]int32) {
	var g [8]int32

	idct8 := func(d *[8]int32) {
		e0 := d[0] + d[4]
		e1 := -d[3] + d[5] - d[7] - d[7]>>1
		e2 := d[0] - d[4]
		e3 := d[1] + d[7] - d[3] - d[3]>>1
		e4 := d[2]>>1 - d[6]
		e5 := -d[1] + d[7] + d[5] + d[5]>>1
		e6 := d[2] + d[6]>>1
		e7 := d[3] + d[5] + d[1] + d[1]>>1

		f0 := e0 + e6
		f1 := e1 + e7>>2
		f2 := e2 + e4
		f3 := e3 + e5>>2
		f4 := e2 - e4
		f5 := e3>>2 - e5
		f6 := e0 - e6
		f7 := e7 - e1>>2

		d[0] = f0 + f7
		d[1] = f2 + f5
		d[2] = f4 + f3
		d[3] = f6 + f1
		d[4] = f6 - f1
		d[5] = f4 - f3
		d[6] = f2 - f5
		d[7] = f0 - f7
	}

	for i := 0; i < 64; i += 8 {
		copy(g[:], blk[i:i+8])
		idct8(&g)
		copy(blk[i:i+8], g[:])
	}
	for i := 0; i < 8; i++ {
		for j := 0; j < 8; j++ {
			g[j] = blk[j*8+i]
		}
		idct8(&g)
		for j := 0; j < 8; j++ {
			blk[j*8+i] = (g[j] + 32) >> 6
		}
	}
}
