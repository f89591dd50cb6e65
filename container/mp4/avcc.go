/*
DESCRIPTION
  avcc.go provides parsing of the AVCDecoderConfigurationRecord carried in
  the avcC box of an avc1 sample entry.

AUTHORS
  Saxon A. Nelson-Milton <saxon@ausocean.org>

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

package mp4

import "github.com/pkg/errors"

// Errors returned by parseAVCC.
var (
	ErrBadAVCCVersion = errors.New("unsupported avcC configuration version")
	ErrAVCCOverrun    = errors.New("avcC parameter set overruns box")
)

// parseAVCC parses an AVCDecoderConfigurationRecord. The SPS and PPS blobs
// are not copied out; the record stores their absolute byte ranges so they
// can be loaded like any other sample.
func (d *demuxer) parseAVCC(b box, t *Track) error {
	version, err := d.r.ReadBits(8)
	if err != nil {
		return err
	}
	if version != 1 {
		return errors.Wrapf(ErrBadAVCCVersion, "version %d", version)
	}

	profile, err := d.r.ReadBits(8)
	if err != nil {
		return err
	}
	if _, err := d.r.ReadBits(8); err != nil { // profile compatibility
		return err
	}
	level, err := d.r.ReadBits(8)
	if err != nil {
		return err
	}
	t.Profile, t.Level = int(profile), int(level)

	lengthSize, err := d.r.ReadBits(8)
	if err != nil {
		return err
	}
	t.NALLengthSize = int(lengthSize&0x3) + 1

	spsCount, err := d.r.ReadBits(8)
	if err != nil {
		return err
	}
	t.SPS, err = d.readParamSets(b, int(spsCount&0x1f))
	if err != nil {
		return err
	}

	ppsCount, err := d.r.ReadBits(8)
	if err != nil {
		return err
	}
	t.PPS, err = d.readParamSets(b, int(ppsCount))
	return err
}

// readParamSets reads n length-prefixed parameter set blobs, recording
// their positions and skipping their bodies.
func (d *demuxer) readParamSets(b box, n int) ([]ParamSet, error) {
	sets := make([]ParamSet, 0, n)
	for i := 0; i < n; i++ {
		size, err := d.r.ReadBits(16)
		if err != nil {
			return nil, err
		}
		pos := d.r.Tell()
		if pos+int64(size) > b.end {
			return nil, ErrAVCCOverrun
		}
		sets = append(sets, ParamSet{Offset: pos, Size: size})
		if err := d.r.Seek(pos + int64(size)); err != nil {
			return nil, err
		}
	}
	return sets, nil
}
