/*
DESCRIPTION
  decode.go provides the decoder entry points: NAL unit dispatch over an
  access unit and reconstruction of IDR pictures.

AUTHORS
  Saxon A. Nelson-Milton <saxon@ausocean.org>

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

// Package h264dec decodes IDR pictures from H.264 elementary streams into
// planar YCbCr images. The decoder accepts Annex B or length-prefixed NAL
// unit framing, keeps parameter set state across access units, and
// supports the CAVLC-coded intra tool set of the Baseline, Main and High
// profiles at 4:2:0 chroma and 8 bit depth.
package h264dec

import (
	"github.com/ausocean/utils/logging"
	"github.com/pkg/errors"

	"github.com/ausocean/thumb/bits"
)

// Errors returned by DecodeAccessUnit.
var (
	ErrNoPicture  = errors.New("access unit contained no decodable IDR picture")
	ErrIncomplete = errors.New("access unit left the picture incomplete")
)

// Decoder holds the state kept across access units: the parameter set
// store, the dequantization tables derived once at construction, and the
// running counters.
type Decoder struct {
	store paramSetStore

	normAdjust4x4 [6][4][4]int32
	normAdjust8x8 [6][8][8]int32

	log        logging.Logger
	sliceCount int
	activeSPS  *SPS

	// Counters over the life of the decoder.
	IDRCount   int
	FrameCount int
	SEICount   int
	Skipped    int
}

// NewDecoder returns a Decoder logging through log.
func NewDecoder(log logging.Logger) *Decoder {
	d := &Decoder{log: log}
	computeNormAdjust(&d.normAdjust4x4, &d.normAdjust8x8)
	return d
}

// DecodeAccessUnit decodes one access unit. lengthSize gives the byte
// width of the NAL length prefixes, or zero for Annex B start codes. The
// unit's parameter sets and SEI messages update decoder state; its IDR
// slices reconstruct a picture, which is returned with the given
// presentation timestamp once complete. Non-IDR slices are skipped.
func (d *Decoder) DecodeAccessUnit(au []byte, lengthSize int, pts int64) (*Picture, error) {
	var units [][]byte
	var err error
	if lengthSize == 0 {
		units, err = SplitAnnexB(au)
	} else {
		units, err = SplitLengthPrefixed(au, lengthSize)
	}
	if err != nil {
		return nil, errors.Wrap(err, "could not delimit NAL units")
	}

	var fr *frame
	var frSPS *SPS

	for _, raw := range units {
		nal, err := parseNALUnit(raw)
		if err != nil {
			return nil, errors.Wrap(err, "could not parse NAL unit")
		}

		switch nal.Type {
		case NALTypeSPS:
			sps, err := parseSPS(nal.RBSP)
			if err != nil {
				return nil, errors.Wrap(err, "could not parse SPS")
			}
			d.store.putSPS(sps)
			d.log.Debug("stored SPS", "id", sps.ID, "profile", sps.Profile, "level", sps.Level)

		case NALTypePPS:
			chromaFormat := uint32(chroma420)
			pps, err := parsePPSWithStore(nal.RBSP, &d.store, chromaFormat)
			if err != nil {
				return nil, errors.Wrap(err, "could not parse PPS")
			}
			d.store.putPPS(pps)
			d.log.Debug("stored PPS", "id", pps.ID, "sps", pps.SPSID)

		case NALTypeSEI:
			msgs, err := parseSEI(nal.RBSP)
			if err != nil {
				d.log.Warning("malformed SEI, continuing", "error", err.Error())
				break
			}
			d.SEICount += len(msgs)
			for _, m := range msgs {
				if m.Type == seiBufferingPeriod || m.Type == seiPicTiming {
					d.log.Debug("timing SEI", "type", m.Type, "bytes", len(m.Payload))
				}
			}

		case NALTypeIDR:
			fr, err = d.decodeIDRSlice(nal, fr)
			if err != nil {
				return nil, errors.Wrap(err, "could not decode IDR slice")
			}
			frSPS = d.activeSPS

		case NALTypeNonIDR, NALTypePartA, NALTypePartB, NALTypePartC:
			d.Skipped++
			d.log.Debug("skipping non-IDR slice data", "type", nal.Type)

		default:
			d.Skipped++
			d.log.Debug("skipping NAL unit", "type", nal.Type)
		}
	}

	if fr == nil {
		return nil, ErrNoPicture
	}
	if !fr.complete() {
		return nil, errors.Wrapf(ErrIncomplete, "%d of %d macroblocks", fr.nDecoded, len(fr.mbs))
	}

	deblock(fr)

	d.IDRCount++
	d.FrameCount++
	return newPicture(fr, frSPS, pts), nil
}

// parsePPSWithStore parses a PPS, taking the chroma format from the
// referenced SPS when it is already stored.
func parsePPSWithStore(rbsp []byte, store *paramSetStore, fallback uint32) (*PPS, error) {
	// The SPS id sits after the PPS id in the syntax; peek it so the
	// scaling list count can come from the right chroma format.
	peek := newFieldReader(bits.NewBytes(rbsp))
	peek.readUe()
	spsID := peek.readUe()
	chromaFormat := fallback
	if peek.err() == nil {
		if sps, err := store.SPS(spsID); err == nil {
			chromaFormat = sps.ChromaFormatIDC
		}
	}
	return parsePPS(rbsp, chromaFormat)
}
