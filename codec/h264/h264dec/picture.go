/*
DESCRIPTION
  picture.go provides the reconstructed picture type handed to picture
  sinks: planar YCbCr 4:2:0 with the sequence-level cropping applied.

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

import "image"

// Picture is a reconstructed frame: planar YCbCr 4:2:0 samples at 8 bits
// per component. Width and Height are the cropped luma dimensions; the
// planes keep the full macroblock-aligned strides with OffX and OffY
// locating the crop origin. The buffers belong to the receiver only for
// the duration of the hand-off; a sink that retains them must copy.
type Picture struct {
	Width, Height    int
	StrideY, StrideC int
	OffX, OffY       int
	Y, Cb, Cr        []uint8
	PTS              int64
}

// newPicture wraps a completed frame with the cropping of its SPS. For
// 4:2:0 frame coding the crop units are two luma samples in each
// direction.
func newPicture(fr *frame, sps *SPS, pts int64) *Picture {
	p := &Picture{
		Width:   fr.mbw * 16,
		Height:  fr.mbh * 16,
		StrideY: fr.strideY,
		StrideC: fr.strideC,
		Y:       fr.y,
		Cb:      fr.cb,
		Cr:      fr.cr,
		PTS:     pts,
	}
	if sps.Cropping {
		p.OffX = int(sps.CropLeft) * 2
		p.OffY = int(sps.CropTop) * 2
		p.Width -= int(sps.CropLeft+sps.CropRight) * 2
		p.Height -= int(sps.CropTop+sps.CropBottom) * 2
	}
	return p
}

// Image returns the picture as an image.YCbCr sharing the plane buffers.
func (p *Picture) Image() *image.YCbCr {
	return &image.YCbCr{
		Y:              p.Y[p.OffY*p.StrideY+p.OffX:],
		Cb:             p.Cb[p.OffY/2*p.StrideC+p.OffX/2:],
		Cr:             p.Cr[p.OffY/2*p.StrideC+p.OffX/2:],
		YStride:        p.StrideY,
		CStride:        p.StrideC,
		SubsampleRatio: image.YCbCrSubsampleRatio420,
		Rect:           image.Rect(0, 0, p.Width, p.Height),
	}
}
