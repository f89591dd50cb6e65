/*
DESCRIPTION
  intra.go provides the intra sample prediction processes: the nine 4x4
  and 8x8 luma modes, the four 16x16 luma modes and the four chroma modes.

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

import "github.com/pkg/errors"

// Intra 4x4 and 8x8 luma prediction modes.
const (
	predVertical = iota
	predHorizontal
	predDC
	predDiagDownLeft
	predDiagDownRight
	predVerticalRight
	predHorizontalDown
	predVerticalLeft
	predHorizontalUp
)

// Intra 16x16 luma prediction modes.
const (
	pred16Vertical = iota
	pred16Horizontal
	pred16DC
	pred16Plane
)

// Intra chroma prediction modes.
const (
	predChromaDC = iota
	predChromaHorizontal
	predChromaVertical
	predChromaPlane
)

var errBadPredMode = errors.New("invalid intra prediction mode")

// refSamples holds the neighbouring reference samples of a prediction
// block: up to 2N top samples (with the top-right extension), N left
// samples and the corner, with availability flags for each region.
type refSamples struct {
	top    [16]int
	left   [16]int
	corner int

	topAvail, topRightAvail, leftAvail, cornerAvail bool

	n int // block width
}

// t returns top sample x, with x == -1 giving the corner.
func (r *refSamples) t(x int) int {
	if x < 0 {
		return r.corner
	}
	return r.top[x]
}

// l returns left sample y, with y == -1 giving the corner.
func (r *refSamples) l(y int) int {
	if y < 0 {
		return r.corner
	}
	return r.left[y]
}

// gatherRefs collects reference samples around the n-wide block with top-left
// luma plane position (px,py). Availability of each region is decided by
// the caller through the avail callback over 4x4 block coordinates.
func gatherRefs(plane []uint8, stride, px, py, n int, avail func(gx, gy int) bool) refSamples {
	r := refSamples{n: n}
	gx, gy := px/4, py/4
	bn := n / 4 // block span in 4x4 units

	r.leftAvail = avail(gx-1, gy)
	r.topAvail = avail(gx, gy-1)
	r.cornerAvail = avail(gx-1, gy-1)
	r.topRightAvail = avail(gx+bn, gy-1)

	if r.leftAvail {
		for y := 0; y < n; y++ {
			r.left[y] = int(plane[(py+y)*stride+px-1])
		}
	}
	if r.topAvail {
		for x := 0; x < n; x++ {
			r.top[x] = int(plane[(py-1)*stride+px+x])
		}
		for x := n; x < 2*n && x < len(r.top); x++ {
			if r.topRightAvail {
				r.top[x] = int(plane[(py-1)*stride+px+x])
			} else {
				r.top[x] = r.top[n-1]
			}
		}
	}
	if r.cornerAvail {
		r.corner = int(plane[(py-1)*stride+px-1])
	}
	return r
}

// check verifies that the reference regions needed by the given mode
// are present.
func (r *refSamples) check(mode int) error {
	need := func(ok bool) error {
		if !ok {
			return errors.Wrapf(errBadPredMode, "mode %d without its reference samples", mode)
		}
		return nil
	}
	switch mode {
	case predVertical, predDiagDownLeft, predVerticalLeft:
		return need(r.topAvail)
	case predHorizontal, predHorizontalUp:
		return need(r.leftAvail)
	case predDC:
		return nil
	case predDiagDownRight, predVerticalRight, predHorizontalDown:
		return need(r.topAvail && r.leftAvail && r.cornerAvail)
	}
	return errBadPredMode
}

// predIntraNxN writes the prediction of an n-wide square block into out
// (row-major, n*n) for the given 4x4/8x8 mode.
func predIntraNxN(out []int, r *refSamples, mode, n int) error {
	if err := r.check(mode); err != nil {
		return err
	}

	switch mode {
	case predVertical:
		for y := 0; y < n; y++ {
			for x := 0; x < n; x++ {
				out[y*n+x] = r.top[x]
			}
		}

	case predHorizontal:
		for y := 0; y < n; y++ {
			for x := 0; x < n; x++ {
				out[y*n+x] = r.left[y]
			}
		}

	case predDC:
		var sum, cnt int
		if r.topAvail {
			for x := 0; x < n; x++ {
				sum += r.top[x]
			}
			cnt += n
		}
		if r.leftAvail {
			for y := 0; y < n; y++ {
				sum += r.left[y]
			}
			cnt += n
		}
		dc := 128
		if cnt > 0 {
			dc = (sum + cnt/2) / cnt
		}
		for i := 0; i < n*n; i++ {
			out[i] = dc
		}

	case predDiagDownLeft:
		for y := 0; y < n; y++ {
			for x := 0; x < n; x++ {
				if x == n-1 && y == n-1 {
					out[y*n+x] = (r.top[2*n-2] + 3*r.top[2*n-1] + 2) >> 2
					continue
				}
				out[y*n+x] = (r.top[x+y] + 2*r.top[x+y+1] + r.top[x+y+2] + 2) >> 2
			}
		}

	case predDiagDownRight:
		for y := 0; y < n; y++ {
			for x := 0; x < n; x++ {
				switch d := x - y; {
				case d > 0:
					out[y*n+x] = (r.t(d-2) + 2*r.t(d-1) + r.t(d) + 2) >> 2
				case d < 0:
					out[y*n+x] = (r.l(-d-2) + 2*r.l(-d-1) + r.l(-d) + 2) >> 2
				default:
					out[y*n+x] = (r.top[0] + 2*r.corner + r.left[0] + 2) >> 2
				}
			}
		}

	case predVerticalRight:
		for y := 0; y < n; y++ {
			for x := 0; x < n; x++ {
				z := 2*x - y
				switch {
				case z >= 0 && z%2 == 0:
					out[y*n+x] = (r.t(x-y>>1-1) + r.t(x-y>>1) + 1) >> 1
				case z >= 0:
					out[y*n+x] = (r.t(x-y>>1-2) + 2*r.t(x-y>>1-1) + r.t(x-y>>1) + 2) >> 2
				case z == -1:
					out[y*n+x] = (r.left[0] + 2*r.corner + r.top[0] + 2) >> 2
				default:
					out[y*n+x] = (r.left[y-1] + 2*r.left[y-2] + r.l(y-3) + 2) >> 2
				}
			}
		}

	case predHorizontalDown:
		for y := 0; y < n; y++ {
			for x := 0; x < n; x++ {
				z := 2*y - x
				switch {
				case z >= 0 && z%2 == 0:
					out[y*n+x] = (r.l(y-x>>1-1) + r.l(y-x>>1) + 1) >> 1
				case z >= 0:
					out[y*n+x] = (r.l(y-x>>1-2) + 2*r.l(y-x>>1-1) + r.l(y-x>>1) + 2) >> 2
				case z == -1:
					out[y*n+x] = (r.left[0] + 2*r.corner + r.top[0] + 2) >> 2
				default:
					out[y*n+x] = (r.top[x-1] + 2*r.top[x-2] + r.t(x-3) + 2) >> 2
				}
			}
		}

	case predVerticalLeft:
		for y := 0; y < n; y++ {
			for x := 0; x < n; x++ {
				if y%2 == 0 {
					out[y*n+x] = (r.top[x+y>>1] + r.top[x+y>>1+1] + 1) >> 1
				} else {
					out[y*n+x] = (r.top[x+y>>1] + 2*r.top[x+y>>1+1] + r.top[x+y>>1+2] + 2) >> 2
				}
			}
		}

	case predHorizontalUp:
		last := 2*n - 3 // zHU value with the dedicated two-tap form
		for y := 0; y < n; y++ {
			for x := 0; x < n; x++ {
				z := x + 2*y
				switch {
				case z < last && z%2 == 0:
					out[y*n+x] = (r.left[y+x>>1] + r.left[y+x>>1+1] + 1) >> 1
				case z < last:
					out[y*n+x] = (r.left[y+x>>1] + 2*r.left[y+x>>1+1] + r.left[y+x>>1+2] + 2) >> 2
				case z == last:
					out[y*n+x] = (r.left[n-2] + 3*r.left[n-1] + 2) >> 2
				default:
					out[y*n+x] = r.left[n-1]
				}
			}
		}
	}
	return nil
}

// filterRefs8x8 applies the reference sample filter that precedes 8x8
// intra prediction. All filtered values derive from the unfiltered
// references, so the originals are replaced only after every region is
// computed.
func filterRefs8x8(r *refSamples) {
	var ft [16]int
	var fl [8]int
	corner := r.corner

	if r.topAvail {
		if r.cornerAvail {
			ft[0] = (r.corner + 2*r.top[0] + r.top[1] + 2) >> 2
		} else {
			ft[0] = (3*r.top[0] + r.top[1] + 2) >> 2
		}
		for x := 1; x < 15; x++ {
			ft[x] = (r.top[x-1] + 2*r.top[x] + r.top[x+1] + 2) >> 2
		}
		ft[15] = (r.top[14] + 3*r.top[15] + 2) >> 2
	}

	if r.cornerAvail {
		switch {
		case r.topAvail && r.leftAvail:
			corner = (r.top[0] + 2*r.corner + r.left[0] + 2) >> 2
		case r.topAvail:
			corner = (3*r.corner + r.top[0] + 2) >> 2
		case r.leftAvail:
			corner = (3*r.corner + r.left[0] + 2) >> 2
		}
	}

	if r.leftAvail {
		if r.cornerAvail {
			fl[0] = (r.corner + 2*r.left[0] + r.left[1] + 2) >> 2
		} else {
			fl[0] = (3*r.left[0] + r.left[1] + 2) >> 2
		}
		for y := 1; y < 7; y++ {
			fl[y] = (r.left[y-1] + 2*r.left[y] + r.left[y+1] + 2) >> 2
		}
		fl[7] = (r.left[6] + 3*r.left[7] + 2) >> 2
	}

	if r.topAvail {
		r.top = ft
	}
	if r.leftAvail {
		copy(r.left[:8], fl[:])
	}
	r.corner = corner
}

// predIntra16x16 writes the 16x16 luma prediction into out (row-major,
// 256 entries).
func predIntra16x16(out []int, r *refSamples, mode int) error {
	switch mode {
	case pred16Vertical:
		if !r.topAvail {
			return errBadPredMode
		}
		for y := 0; y < 16; y++ {
			for x := 0; x < 16; x++ {
				out[y*16+x] = r.top[x]
			}
		}

	case pred16Horizontal:
		if !r.leftAvail {
			return errBadPredMode
		}
		for y := 0; y < 16; y++ {
			for x := 0; x < 16; x++ {
				out[y*16+x] = r.left[y]
			}
		}

	case pred16DC:
		var sum, cnt int
		if r.topAvail {
			for x := 0; x < 16; x++ {
				sum += r.top[x]
			}
			cnt += 16
		}
		if r.leftAvail {
			for y := 0; y < 16; y++ {
				sum += r.left[y]
			}
			cnt += 16
		}
		dc := 128
		if cnt > 0 {
			dc = (sum + cnt/2) / cnt
		}
		for i := range out[:256] {
			out[i] = dc
		}

	case pred16Plane:
		if !(r.topAvail && r.leftAvail && r.cornerAvail) {
			return errBadPredMode
		}
		var h, v int
		for i := 0; i < 8; i++ {
			h += (i + 1) * (r.top[8+i] - r.t(6-i))
			v += (i + 1) * (r.left[8+i] - r.l(6-i))
		}
		a := 16 * (r.left[15] + r.top[15])
		b := (5*h + 32) >> 6
		c := (5*v + 32) >> 6
		for y := 0; y < 16; y++ {
			for x := 0; x < 16; x++ {
				out[y*16+x] = clip3(0, 255, (a+b*(x-7)+c*(y-7)+16)>>5)
			}
		}

	default:
		return errBadPredMode
	}
	return nil
}

// predIntraChroma writes an 8x8 chroma component prediction into out
// (row-major, 64 entries).
func predIntraChroma(out []int, r *refSamples, mode int) error {
	switch mode {
	case predChromaDC:
		// Each 4x4 quadrant derives its own DC, preferring the
		// references that sit directly beside it.
		for _, q := range [4][2]int{{0, 0}, {4, 0}, {0, 4}, {4, 4}} {
			xO, yO := q[0], q[1]
			sumT, sumL := 0, 0
			if r.topAvail {
				for x := 0; x < 4; x++ {
					sumT += r.top[xO+x]
				}
			}
			if r.leftAvail {
				for y := 0; y < 4; y++ {
					sumL += r.left[yO+y]
				}
			}

			var dc int
			switch {
			case xO == yO && r.topAvail && r.leftAvail:
				dc = (sumT + sumL + 4) >> 3
			case xO > yO && r.topAvail: // right-top quadrant prefers above
				dc = (sumT + 2) >> 2
			case yO > xO && r.leftAvail: // left-bottom quadrant prefers left
				dc = (sumL + 2) >> 2
			case r.topAvail:
				dc = (sumT + 2) >> 2
			case r.leftAvail:
				dc = (sumL + 2) >> 2
			default:
				dc = 128
			}

			for y := 0; y < 4; y++ {
				for x := 0; x < 4; x++ {
					out[(yO+y)*8+xO+x] = dc
				}
			}
		}

	case predChromaHorizontal:
		if !r.leftAvail {
			return errBadPredMode
		}
		for y := 0; y < 8; y++ {
			for x := 0; x < 8; x++ {
				out[y*8+x] = r.left[y]
			}
		}

	case predChromaVertical:
		if !r.topAvail {
			return errBadPredMode
		}
		for y := 0; y < 8; y++ {
			for x := 0; x < 8; x++ {
				out[y*8+x] = r.top[x]
			}
		}

	case predChromaPlane:
		if !(r.topAvail && r.leftAvail && r.cornerAvail) {
			return errBadPredMode
		}
		var h, v int
		for i := 0; i < 4; i++ {
			h += (i + 1) * (r.top[4+i] - r.t(2-i))
			v += (i + 1) * (r.left[4+i] - r.l(2-i))
		}
		a := 16 * (r.left[7] + r.top[7])
		b := (17*h + 16) >> 5
		c := (17*v + 16) >> 5
		for y := 0; y < 8; y++ {
			for x := 0; x < 8; x++ {
				out[y*8+x] = clip3(0, 255, (a+b*(x-3)+c*(y-3)+16)>>5)
			}
		}

	default:
		return errBadPredMode
	}
	return nil
}
