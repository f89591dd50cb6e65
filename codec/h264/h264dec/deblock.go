/*
DESCRIPTION
  deblock.go provides the in-loop deblocking filter applied to a
  reconstructed picture: boundary strength selection, the alpha, beta and
  clipping tables, and the normal and strong edge filters.

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

// Deblocking thresholds indexed by the offset-adjusted QP.
var alphaTable = [52]int{
	0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0,
	4, 4, 5, 6, 7, 8, 9, 10, 12, 13, 15, 17, 20, 22, 25, 28,
	32, 36, 40, 45, 50, 56, 63, 71, 80, 90, 101, 113, 127, 144,
	162, 182, 203, 226, 255, 255,
}

var betaTable = [52]int{
	0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0,
	2, 2, 2, 3, 3, 3, 3, 4, 4, 4, 6, 6, 7, 7, 8, 8,
	9, 9, 10, 10, 11, 11, 12, 12, 13, 13, 14, 14, 15, 15,
	16, 16, 17, 17, 18, 18,
}

// tc0Table is indexed by boundary strength minus one, then the
// offset-adjusted QP.
var tc0Table = [3][52]int{
	{
		0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0,
		0, 0, 0, 0, 0, 0, 0, 1, 1, 1, 1, 1, 1, 1, 1, 1,
		1, 2, 2, 2, 2, 3, 3, 3, 4, 4, 4, 5, 6, 6, 7, 8,
		9, 10, 11, 13,
	},
	{
		0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0,
		0, 0, 0, 0, 0, 0, 1, 1, 1, 1, 1, 1, 1, 1, 1, 2,
		2, 2, 2, 3, 3, 3, 4, 4, 5, 5, 6, 7, 8, 8, 10, 11,
		12, 13, 15, 17,
	},
	{
		0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0,
		0, 0, 0, 0, 1, 1, 1, 1, 1, 1, 1, 2, 2, 2, 2, 3,
		3, 3, 4, 4, 4, 5, 6, 6, 7, 8, 9, 10, 11, 13, 14, 16,
		18, 20, 23, 25,
	},
}

// Deblocking filter control values of disable_deblocking_filter_idc.
const (
	deblockAll            = 0
	deblockOff            = 1
	deblockSkipSliceEdges = 2
)

// deblock runs the in-loop filter over the whole reconstructed picture:
// for each macroblock in raster order, its vertical edges left to right,
// then its horizontal edges top to bottom. All macroblocks here are
// intra coded, so macroblock edges filter at strength 4 and internal
// edges at strength 3.
func deblock(fr *frame) {
	for my := 0; my < fr.mbh; my++ {
		for mx := 0; mx < fr.mbw; mx++ {
			mb := &fr.mbs[my*fr.mbw+mx]
			if !mb.decoded || mb.disableDeblock == deblockOff {
				continue
			}

			left := fr.neighbourMb(mx-1, my)
			up := fr.neighbourMb(mx, my-1)
			if mb.disableDeblock == deblockSkipSliceEdges {
				if left != nil && left.sliceID != mb.sliceID {
					left = nil
				}
				if up != nil && up.sliceID != mb.sliceID {
					up = nil
				}
			}

			lumaEdges := []int{0, 4, 8, 12}
			if mb.transform8x8 {
				lumaEdges = []int{0, 8}
			}

			// Vertical edges, filtering across columns.
			for _, e := range lumaEdges {
				if e == 0 {
					if left == nil {
						continue
					}
					qpav := (mb.qp + left.qp + 1) >> 1
					filterEdge(fr.y, (my*16)*fr.strideY+mx*16, 1, fr.strideY, 16, 4, qpav, mb, true)
					continue
				}
				filterEdge(fr.y, (my*16)*fr.strideY+mx*16+e, 1, fr.strideY, 16, 3, mb.qp, mb, true)
			}

			// Horizontal edges, filtering across rows.
			for _, e := range lumaEdges {
				if e == 0 {
					if up == nil {
						continue
					}
					qpav := (mb.qp + up.qp + 1) >> 1
					filterEdge(fr.y, (my*16)*fr.strideY+mx*16, fr.strideY, 1, 16, 4, qpav, mb, true)
					continue
				}
				filterEdge(fr.y, (my*16+e)*fr.strideY+mx*16, fr.strideY, 1, 16, 3, mb.qp, mb, true)
			}

			// Chroma edges at 0 and 4 of each 8x8 component.
			for c := 0; c < 2; c++ {
				plane := fr.cb
				if c == 1 {
					plane = fr.cr
				}
				for _, e := range []int{0, 4} {
					if e == 0 {
						if left == nil {
							continue
						}
						qpav := (mb.qpc[c] + left.qpc[c] + 1) >> 1
						filterEdge(plane, (my*8)*fr.strideC+mx*8, 1, fr.strideC, 8, 4, qpav, mb, false)
						continue
					}
					filterEdge(plane, (my*8)*fr.strideC+mx*8+e, 1, fr.strideC, 8, 3, mb.qpc[c], mb, false)
				}
				for _, e := range []int{0, 4} {
					if e == 0 {
						if up == nil {
							continue
						}
						qpav := (mb.qpc[c] + up.qpc[c] + 1) >> 1
						filterEdge(plane, (my*8)*fr.strideC+mx*8, fr.strideC, 1, 8, 4, qpav, mb, false)
						continue
					}
					filterEdge(plane, (my*8+e)*fr.strideC+mx*8, fr.strideC, 1, 8, 3, mb.qpc[c], mb, false)
				}
			}
		}
	}
}

// neighbourMb returns the decoded macroblock at (mx,my), or nil.
func (f *frame) neighbourMb(mx, my int) *mbInfo {
	if mx < 0 || my < 0 || mx >= f.mbw || my >= f.mbh {
		return nil
	}
	mb := &f.mbs[my*f.mbw+mx]
	if !mb.decoded {
		return nil
	}
	return mb
}

// filterEdge filters one edge of n sample lines. step is the distance
// between samples across the edge and lineStep between successive lines
// along it. The p samples sit before the edge offset, the q samples at
// and after it.
func filterEdge(pix []uint8, offset, step, lineStep, n, bs, qp int, mb *mbInfo, luma bool) {
	idxA := clip3(0, 51, qp+mb.alphaOff)
	idxB := clip3(0, 51, qp+mb.betaOff)
	alpha, beta := alphaTable[idxA], betaTable[idxB]
	if alpha == 0 || beta == 0 {
		return
	}

	for i := 0; i < n; i++ {
		base := offset + i*lineStep
		q0 := int(pix[base])
		q1 := int(pix[base+step])
		q2 := int(pix[base+2*step])
		p0 := int(pix[base-step])
		p1 := int(pix[base-2*step])
		p2 := int(pix[base-3*step])

		if absi(p0-q0) >= alpha || absi(p1-p0) >= beta || absi(q1-q0) >= beta {
			continue
		}

		ap := absi(p2-p0) < beta
		aq := absi(q2-q0) < beta

		if bs < 4 {
			tc0 := tc0Table[bs-1][idxA]
			tc := tc0
			if luma {
				if ap {
					tc++
				}
				if aq {
					tc++
				}
			} else {
				tc = tc0 + 1
			}

			delta := clip3(-tc, tc, ((q0-p0)*4+(p1-q1)+4)>>3)
			pix[base-step] = clip255(p0 + delta)
			pix[base] = clip255(q0 - delta)

			if luma && ap {
				pix[base-2*step] = clip255(p1 + clip3(-tc0, tc0, (p2+(p0+q0+1)>>1-2*p1)>>1))
			}
			if luma && aq {
				pix[base+step] = clip255(q1 + clip3(-tc0, tc0, (q2+(p0+q0+1)>>1-2*q1)>>1))
			}
			continue
		}

		// Strength four: the strong filter applies when the edge looks
		// genuinely flat.
		if luma {
			if ap && absi(p0-q0) < alpha>>2+2 {
				p3 := int(pix[base-4*step])
				pix[base-step] = uint8((p2 + 2*p1 + 2*p0 + 2*q0 + q1 + 4) >> 3)
				pix[base-2*step] = uint8((p2 + p1 + p0 + q0 + 2) >> 2)
				pix[base-3*step] = uint8((2*p3 + 3*p2 + p1 + p0 + q0 + 4) >> 3)
			} else {
				pix[base-step] = uint8((2*p1 + p0 + q1 + 2) >> 2)
			}
			if aq && absi(p0-q0) < alpha>>2+2 {
				q3 := int(pix[base+3*step])
				pix[base] = uint8((q2 + 2*q1 + 2*q0 + 2*p0 + p1 + 4) >> 3)
				pix[base+step] = uint8((q2 + q1 + q0 + p0 + 2) >> 2)
				pix[base+2*step] = uint8((2*q3 + 3*q2 + q1 + q0 + p0 + 4) >> 3)
			} else {
				pix[base] = uint8((2*q1 + q0 + p1 + 2) >> 2)
			}
			continue
		}

		pix[base-step] = uint8((2*p1 + p0 + q1 + 2) >> 2)
		pix[base] = uint8((2*q1 + q0 + p1 + 2) >> 2)
	}
}
