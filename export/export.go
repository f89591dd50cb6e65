/*
DESCRIPTION
  export.go provides the picture sink: serialisation of reconstructed
  planar YCbCr pictures to still-image files.

AUTHORS
  Saxon A. Nelson-Milton <saxon@ausocean.org>
  Trek Hopton <trek@ausocean.org>

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

// Package export writes reconstructed pictures to disk as still images.
// The JPEG and PNG encoders come from the standard library, BMP from
// golang.org/x/image and WebP from github.com/deepteams/webp; the TGA and
// raw YUV writers are implemented here, the first being a fixed 18 byte
// header ahead of top-down BGR rows and the second a bare concatenation
// of the three planes.
package export

import (
	"bufio"
	"image"
	"image/jpeg"
	"image/png"
	"io"
	"os"
	"path/filepath"
	"strconv"

	"github.com/ausocean/utils/logging"
	"github.com/deepteams/webp"
	"github.com/pkg/errors"
	"golang.org/x/image/bmp"

	"github.com/ausocean/thumb/codec/h264/h264dec"
)

// Format is a supported output image format.
type Format int

const (
	JPEG Format = iota
	PNG
	BMP
	TGA
	WebP
	YUV420P
)

// ParseFormat returns the Format named by s.
func ParseFormat(s string) (Format, error) {
	switch s {
	case "jpeg", "jpg":
		return JPEG, nil
	case "png":
		return PNG, nil
	case "bmp":
		return BMP, nil
	case "tga":
		return TGA, nil
	case "webp":
		return WebP, nil
	case "yuv420p", "yuv":
		return YUV420P, nil
	}
	return 0, errors.Errorf("unknown picture format %q", s)
}

// Ext returns the file extension for the format, without the dot.
func (f Format) Ext() string {
	switch f {
	case JPEG:
		return "jpg"
	case PNG:
		return "png"
	case BMP:
		return "bmp"
	case TGA:
		return "tga"
	case WebP:
		return "webp"
	case YUV420P:
		return "yuv"
	}
	return "bin"
}

// String returns the name accepted by ParseFormat.
func (f Format) String() string {
	if f == JPEG {
		return "jpeg"
	}
	return f.Ext()
}

// Sink writes pictures into a directory, one file per picture, named
// <stem>_<ordinal>.<ext>.
type Sink struct {
	Dir     string
	Stem    string
	Format  Format
	Quality int // 1 to 100, used by the lossy formats
	Log     logging.Logger

	// Written counts the pictures successfully written.
	Written int
}

// Emit serialises pic as picture ordinal n.
func (s *Sink) Emit(pic *h264dec.Picture, n int) error {
	name := filepath.Join(s.Dir, s.Stem+"_"+strconv.Itoa(n)+"."+s.Format.Ext())
	f, err := os.Create(name)
	if err != nil {
		return errors.Wrap(err, "could not create output file")
	}

	w := bufio.NewWriter(f)
	err = s.Encode(w, pic)
	if err == nil {
		err = w.Flush()
	}
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return errors.Wrapf(err, "could not write %s", name)
	}

	s.Written++
	s.Log.Info("picture written", "file", name, "width", pic.Width, "height", pic.Height)
	return nil
}

// Encode serialises pic to w in the sink's format.
func (s *Sink) Encode(w io.Writer, pic *h264dec.Picture) error {
	img := pic.Image()
	switch s.Format {
	case JPEG:
		return jpeg.Encode(w, img, &jpeg.Options{Quality: s.Quality})
	case PNG:
		return png.Encode(w, img)
	case BMP:
		return bmp.Encode(w, img)
	case TGA:
		return encodeTGA(w, img)
	case WebP:
		opts := webp.DefaultOptions()
		opts.Quality = float32(s.Quality)
		return webp.Encode(w, img, opts)
	case YUV420P:
		return encodeYUV(w, pic)
	}
	return errors.Errorf("invalid format %d", s.Format)
}

// encodeTGA writes an uncompressed true-colour targa file: an 18 byte
// header, then top-down BGR rows signalled by bit 5 of the descriptor.
func encodeTGA(w io.Writer, img *image.YCbCr) error {
	b := img.Bounds()
	width, height := b.Dx(), b.Dy()

	var hdr [18]byte
	hdr[2] = 2 // uncompressed true colour
	hdr[12] = byte(width)
	hdr[13] = byte(width >> 8)
	hdr[14] = byte(height)
	hdr[15] = byte(height >> 8)
	hdr[16] = 24   // bits per pixel
	hdr[17] = 0x20 // top-down row order
	if _, err := w.Write(hdr[:]); err != nil {
		return err
	}

	row := make([]byte, width*3)
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			yy := img.Y[img.YOffset(x, y)]
			cb := img.Cb[img.COffset(x, y)]
			cr := img.Cr[img.COffset(x, y)]
			r, g, bb := yCbCrToRGB(yy, cb, cr)
			i := (x - b.Min.X) * 3
			row[i], row[i+1], row[i+2] = bb, g, r
		}
		if _, err := w.Write(row); err != nil {
			return err
		}
	}
	return nil
}

// encodeYUV writes the cropped planes back to back with no header.
func encodeYUV(w io.Writer, pic *h264dec.Picture) error {
	for y := 0; y < pic.Height; y++ {
		off := (pic.OffY+y)*pic.StrideY + pic.OffX
		if _, err := w.Write(pic.Y[off : off+pic.Width]); err != nil {
			return err
		}
	}
	for _, plane := range [][]uint8{pic.Cb, pic.Cr} {
		for y := 0; y < (pic.Height+1)/2; y++ {
			off := (pic.OffY/2+y)*pic.StrideC + pic.OffX/2
			cw := (pic.Width + 1) / 2
			if _, err := w.Write(plane[off : off+cw]); err != nil {
				return err
			}
		}
	}
	return nil
}

// yCbCrToRGB converts one sample triple using the JFIF full-range
// conversion.
func yCbCrToRGB(y, cb, cr uint8) (uint8, uint8, uint8) {
	yy := int(y) << 16
	cb1 := int(cb) - 128
	cr1 := int(cr) - 128

	r := (yy + 91881*cr1) >> 16
	g := (yy - 22554*cb1 - 46802*cr1) >> 16
	b := (yy + 116130*cb1) >> 16
	return clamp(r), clamp(g), clamp(b)
}

func clamp(v int) uint8 {
	if v < 0 {
		return 0
	}
	if v > 255 {
		return 255
	}
	return uint8(v)
}
