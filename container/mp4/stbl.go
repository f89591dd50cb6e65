/*
DESCRIPTION
  stbl.go provides parsing of the sample-table boxes and the expansion of
  their run-length coded contents into a per-sample coded-sample map.

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

package mp4

import (
	"github.com/pkg/errors"

	"github.com/ausocean/thumb/stream"
)

// Errors returned while building a track's sample map.
var (
	ErrNoSampleDesc  = errors.New("track missing stsd box")
	ErrNoSampleSizes = errors.New("track missing stsz or stz2 box")
	ErrNoChunkOffs   = errors.New("track missing stco or co64 box")
	ErrNoSTSC        = errors.New("track missing stsc box")
	ErrBadSTSC       = errors.New("stsc table inconsistent with chunk offsets")
)

// parseSTSD parses the sample description box. Only the avc1 and mp4a
// entries contribute codec parameters; other formats are recorded by
// FourCC and otherwise skipped.
func (d *demuxer) parseSTSD(b box, t *Track) error {
	if _, _, err := d.fullBox(); err != nil {
		return err
	}
	count, err := d.r.ReadBits(32)
	if err != nil {
		return err
	}
	t.haveSTSD = true

	for i := uint32(0); i < count && d.r.Tell() < b.end; i++ {
		entry, err := d.readBoxHeader(b.end)
		if err != nil {
			return err
		}
		t.FourCC = entry.typ

		switch entry.typ {
		case boxAVC1:
			if err := d.parseAVC1(entry, t); err != nil {
				return err
			}
		case boxMP4A:
			if err := d.parseMP4A(t); err != nil {
				return err
			}
		default:
			d.log.Debug("unsupported sample entry", "format", fourCC(entry.typ))
		}

		if err := d.r.Seek(entry.end); err != nil {
			return err
		}
	}
	return nil
}

// parseAVC1 parses an AVCSampleEntry: the VisualSampleEntry fields then
// the contained configuration boxes, of which avcC is the one of interest.
func (d *demuxer) parseAVC1(b box, t *Track) error {
	// SampleEntry: 6 reserved bytes and a data reference index.
	if err := d.r.SkipBits(6*8 + 16); err != nil {
		return err
	}
	// VisualSampleEntry: pre_defined(16), reserved(16), pre_defined(3x32).
	if err := d.r.SkipBits(16 + 16 + 3*32); err != nil {
		return err
	}
	w, err := d.r.ReadBits(16)
	if err != nil {
		return err
	}
	h, err := d.r.ReadBits(16)
	if err != nil {
		return err
	}
	t.Width, t.Height = int(w), int(h)

	// Resolutions, reserved, frame count and the 32 byte compressor name.
	if err := d.r.SkipBits(32 + 32 + 32 + 16 + 32*8); err != nil {
		return err
	}
	depth, err := d.r.ReadBits(16)
	if err != nil {
		return err
	}
	t.Depth = int(depth)
	if err := d.r.SkipBits(16); err != nil { // pre_defined = -1
		return err
	}

	t.Codec = stream.CodecAVC

	// Walk the contained boxes for avcC.
	for d.r.Tell()+8 <= b.end {
		inner, err := d.readBoxHeader(b.end)
		if err != nil {
			return err
		}
		if inner.typ == boxAVCC {
			if err := d.parseAVCC(inner, t); err != nil {
				return err
			}
		}
		if err := d.r.Seek(inner.end); err != nil {
			return err
		}
	}
	return nil
}

// parseMP4A parses an AudioSampleEntry.
func (d *demuxer) parseMP4A(t *Track) error {
	// SampleEntry preamble then two reserved words.
	if err := d.r.SkipBits(6*8 + 16 + 2*32); err != nil {
		return err
	}
	cc, err := d.r.ReadBits(16)
	if err != nil {
		return err
	}
	ss, err := d.r.ReadBits(16)
	if err != nil {
		return err
	}
	if err := d.r.SkipBits(16 + 16); err != nil { // pre_defined, reserved
		return err
	}
	rate, err := d.r.ReadBits(32)
	if err != nil {
		return err
	}
	t.ChannelCount, t.SampleSize, t.SampleRate = int(cc), int(ss), int(rate>>16)
	t.Codec = stream.CodecAAC
	return nil
}

// parseSampleTable dispatches the run-length coded sample-table leaves.
func (d *demuxer) parseSampleTable(b box, t *Track) error {
	v, _, err := d.fullBox()
	if err != nil {
		return err
	}

	switch b.typ {
	case boxSTTS:
		n, err := d.r.ReadBits(32)
		if err != nil {
			return err
		}
		t.stts = make([]timeRun, n)
		for i := range t.stts {
			c, err := d.r.ReadBits(32)
			if err != nil {
				return err
			}
			delta, err := d.r.ReadBits(32)
			if err != nil {
				return err
			}
			t.stts[i] = timeRun{count: c, delta: delta}
		}

	case boxCTTS:
		n, err := d.r.ReadBits(32)
		if err != nil {
			return err
		}
		t.ctts = make([]compRun, n)
		for i := range t.ctts {
			c, err := d.r.ReadBits(32)
			if err != nil {
				return err
			}
			off, err := d.r.ReadBits(32)
			if err != nil {
				return err
			}
			t.ctts[i] = compRun{count: c, offset: int32(off)}
		}

	case boxSTSS:
		n, err := d.r.ReadBits(32)
		if err != nil {
			return err
		}
		t.stss = make([]uint32, n)
		for i := range t.stss {
			t.stss[i], err = d.r.ReadBits(32)
			if err != nil {
				return err
			}
		}

	case boxSTSC:
		n, err := d.r.ReadBits(32)
		if err != nil {
			return err
		}
		t.stsc = make([]chunkRun, n)
		for i := range t.stsc {
			first, err := d.r.ReadBits(32)
			if err != nil {
				return err
			}
			per, err := d.r.ReadBits(32)
			if err != nil {
				return err
			}
			desc, err := d.r.ReadBits(32)
			if err != nil {
				return err
			}
			t.stsc[i] = chunkRun{first: first, perChunk: per, descIdx: desc}
		}
		t.haveSTSC = true

	case boxSTSZ:
		uniform, err := d.r.ReadBits(32)
		if err != nil {
			return err
		}
		n, err := d.r.ReadBits(32)
		if err != nil {
			return err
		}
		t.sizes = make([]uint32, n)
		for i := range t.sizes {
			if uniform != 0 {
				t.sizes[i] = uniform
				continue
			}
			t.sizes[i], err = d.r.ReadBits(32)
			if err != nil {
				return err
			}
		}
		t.haveSizes = true

	case boxSTZ2:
		if err := d.r.SkipBits(24); err != nil { // reserved
			return err
		}
		fieldSize, err := d.r.ReadBits(8)
		if err != nil {
			return err
		}
		if fieldSize != 4 && fieldSize != 8 && fieldSize != 16 {
			return errors.Errorf("invalid stz2 field size %d", fieldSize)
		}
		n, err := d.r.ReadBits(32)
		if err != nil {
			return err
		}
		t.sizes = make([]uint32, n)
		for i := range t.sizes {
			t.sizes[i], err = d.r.ReadBits(int(fieldSize))
			if err != nil {
				return err
			}
		}
		d.r.ByteAlign()
		t.haveSizes = true

	case boxSTCO:
		n, err := d.r.ReadBits(32)
		if err != nil {
			return err
		}
		t.chunkOffs = make([]int64, n)
		for i := range t.chunkOffs {
			off, err := d.r.ReadBits(32)
			if err != nil {
				return err
			}
			t.chunkOffs[i] = int64(off)
		}
		t.haveChunks = true

	case boxCO64:
		n, err := d.r.ReadBits(32)
		if err != nil {
			return err
		}
		t.chunkOffs = make([]int64, n)
		for i := range t.chunkOffs {
			off, err := d.r.ReadBits64(64)
			if err != nil {
				return err
			}
			t.chunkOffs[i] = int64(off)
		}
		t.haveChunks = true
	}

	_ = v
	return nil
}

// buildMap expands the raw sample tables into the track's coded-sample map.
// Sample i's absolute offset is found by locating its chunk, summing the
// sizes of the samples before it in that chunk, and adding the chunk
// offset; the whole table is precomputed so later access is an array
// lookup. Timestamps come from the stts prefix sum, with ctts composition
// offsets applied on top for presentation times.
func (t *Track) buildMap(fileSize int64) error {
	switch {
	case !t.haveSTSD:
		return ErrNoSampleDesc
	case !t.haveSizes:
		return ErrNoSampleSizes
	case !t.haveChunks:
		return ErrNoChunkOffs
	case !t.haveSTSC:
		return ErrNoSTSC
	}

	n := len(t.sizes)

	// Decode timestamps from the stts runs.
	dts := make([]int64, n)
	var tick int64
	i := 0
	for _, run := range t.stts {
		for j := uint32(0); j < run.count && i < n; j++ {
			dts[i] = tick
			tick += int64(run.delta)
			i++
		}
	}

	pts := make([]int64, n)
	copy(pts, dts)
	i = 0
	for _, run := range t.ctts {
		for j := uint32(0); j < run.count && i < n; j++ {
			pts[i] = dts[i] + int64(run.offset)
			i++
		}
	}

	// Expand the chunk map into per-sample offsets.
	offs := make([]int64, n)
	sample := 0
	for ri, run := range t.stsc {
		if run.first == 0 || int(run.first) > len(t.chunkOffs) {
			return ErrBadSTSC
		}
		lastChunk := uint32(len(t.chunkOffs))
		if ri+1 < len(t.stsc) {
			if t.stsc[ri+1].first <= run.first {
				return ErrBadSTSC
			}
			lastChunk = t.stsc[ri+1].first - 1
		}
		for chunk := run.first; chunk <= lastChunk && sample < n; chunk++ {
			pos := t.chunkOffs[chunk-1]
			for j := uint32(0); j < run.perChunk && sample < n; j++ {
				offs[sample] = pos
				pos += int64(t.sizes[sample])
				sample++
			}
		}
	}
	if sample < n {
		return ErrBadSTSC
	}

	// Sync-sample membership. No stss box means every sample is a sync
	// sample.
	sync := make(map[uint32]bool, len(t.stss))
	for _, ordinal := range t.stss {
		sync[ordinal] = true
	}

	kind := stream.Video
	if t.Handler == HandlerAudio {
		kind = stream.Audio
	}

	m := stream.NewMap(kind, t.Codec, n+len(t.SPS)+len(t.PPS))
	m.NALLengthSize = t.NALLengthSize

	// Configuration entries first, referencing the parameter set blobs
	// where they sit inside the sample description box.
	for _, ps := range append(append([]ParamSet{}, t.SPS...), t.PPS...) {
		m.Append(stream.Sample{Kind: stream.KindConfig, Offset: ps.Offset, Size: ps.Size})
	}

	for i := 0; i < n; i++ {
		k := stream.KindAudio
		if kind == stream.Video {
			k = stream.KindVideo
			if len(t.stss) == 0 || sync[uint32(i+1)] {
				k = stream.KindVideoIDR
			}
		}
		s := stream.Sample{Kind: k, Offset: offs[i], Size: t.sizes[i], DTS: dts[i], PTS: pts[i]}
		if k == stream.KindVideoIDR {
			s.PTS = s.DTS
		}
		m.Append(s)
	}

	m.Validate(fileSize)
	t.Map = m
	return nil
}
