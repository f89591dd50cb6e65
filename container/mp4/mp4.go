/*
DESCRIPTION
  mp4.go provides parsing of the ISO base media file format box tree, as
  used by MP4, MOV, 3GP and F4V files, down to the per-track sample tables.

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

// Package mp4 provides a demuxer for the ISO base media file format. The
// demuxer walks the box tree, collects per-track header and sample-table
// boxes, and builds for each track a coded-sample map giving the byte
// range, timestamps and kind of every sample in the file.
package mp4

import (
	"io"

	"github.com/ausocean/utils/logging"
	"github.com/pkg/errors"

	"github.com/ausocean/thumb/bits"
	"github.com/ausocean/thumb/stream"
)

// Box types, stored big-endian in the file.
const (
	boxFTYP = 0x66747970
	boxMOOV = 0x6d6f6f76
	boxMVHD = 0x6d766864
	boxTRAK = 0x7472616b
	boxTKHD = 0x746b6864
	boxEDTS = 0x65647473
	boxMDIA = 0x6d646961
	boxMDHD = 0x6d646864
	boxHDLR = 0x68646c72
	boxMINF = 0x6d696e66
	boxDINF = 0x64696e66
	boxSTBL = 0x7374626c
	boxSTSD = 0x73747364
	boxSTTS = 0x73747473
	boxCTTS = 0x63747473
	boxSTSS = 0x73747373
	boxSTSC = 0x73747363
	boxSTSZ = 0x7374737a
	boxSTZ2 = 0x73747a32
	boxSTCO = 0x7374636f
	boxCO64 = 0x636f3634
	boxMDAT = 0x6d646174
	boxFREE = 0x66726565
	boxSKIP = 0x736b6970
	boxUDTA = 0x75647461
	boxUUID = 0x75756964
	boxAVC1 = 0x61766331
	boxAVCC = 0x61766343
	boxMP4A = 0x6d703461
)

// Track handler types.
const (
	HandlerVideo = 0x76696465 // 'vide'
	HandlerAudio = 0x736f756e // 'soun'
	HandlerHint  = 0x68696e74 // 'hint'
	HandlerMeta  = 0x6d657461 // 'meta'
)

// A file may carry at most this many tracks.
const maxTracks = 16

// Errors returned by Demux.
var (
	ErrBadBoxSize = errors.New("box size smaller than header or past parent end")
	ErrNoTracks   = errors.New("no usable tracks in file")
)

// File holds everything extracted from a container file.
type File struct {
	Brand     uint32
	Timescale uint32
	Duration  uint64
	Created   uint64
	Modified  uint64
	Size      int64
	Tracks    []*Track
}

// ParamSet locates an SPS or PPS blob inside the container file.
type ParamSet struct {
	Offset int64
	Size   uint32
}

// Track holds the header fields and sample tables of one trak box, plus
// the coded-sample map built from them.
type Track struct {
	ID        uint32
	Handler   uint32
	Codec     stream.Codec
	FourCC    uint32
	Timescale uint32
	Duration  uint64
	Created   uint64
	Modified  uint64

	// Video parameters.
	Width, Height int
	Depth         int
	Profile       int
	Level         int
	NALLengthSize int
	SPS, PPS      []ParamSet

	// Audio parameters.
	ChannelCount int
	SampleRate   int
	SampleSize   int

	Map *stream.Map

	// Raw sample tables, expanded by buildMap.
	stts       []timeRun
	ctts       []compRun
	stss       []uint32
	stsc       []chunkRun
	sizes      []uint32
	chunkOffs  []int64
	haveSTSD   bool
	haveSizes  bool
	haveChunks bool
	haveSTSC   bool
}

type timeRun struct{ count, delta uint32 }

type compRun struct {
	count  uint32
	offset int32
}

type chunkRun struct{ first, perChunk, descIdx uint32 }

// Video reports whether the track carries a video elementary stream.
func (t *Track) Video() bool { return t.Handler == HandlerVideo }

// demuxer carries state through a box-tree walk.
type demuxer struct {
	r    *bits.Reader
	size int64
	log  logging.Logger
	file *File
}

// Demux parses the box tree of the container in src, which is size bytes
// long, and returns the extracted track table. Tracks missing required
// sample-table boxes are discarded with a warning rather than failing the
// whole file.
func Demux(src io.ReaderAt, size int64, log logging.Logger) (*File, error) {
	r, err := bits.NewReader(src, 0, size)
	if err != nil {
		return nil, err
	}

	d := &demuxer{r: r, size: size, log: log, file: &File{Size: size}}
	if err := d.walk(0, size, nil); err != nil {
		return nil, errors.Wrap(err, "could not walk box tree")
	}

	if len(d.file.Tracks) == 0 {
		return nil, ErrNoTracks
	}
	return d.file, nil
}

// box is a parsed box header; start and end bound the payload.
type box struct {
	typ        uint32
	start, end int64
}

// readBoxHeader reads one box header at the reader's position. The box must
// end at or before parentEnd.
func (d *demuxer) readBoxHeader(parentEnd int64) (box, error) {
	pos := d.r.Tell()
	size32, err := d.r.ReadBits(32)
	if err != nil {
		return box{}, err
	}
	typ, err := d.r.ReadBits(32)
	if err != nil {
		return box{}, err
	}

	hdr := int64(8)
	size := int64(size32)
	switch size32 {
	case 0:
		// Box extends to the end of the enclosing box.
		size = parentEnd - pos
	case 1:
		large, err := d.r.ReadBits64(64)
		if err != nil {
			return box{}, err
		}
		size = int64(large)
		hdr += 8
	}

	if typ == boxUUID {
		// The 16 byte user type follows the header.
		if err := d.r.SkipBits(16 * 8); err != nil {
			return box{}, err
		}
		hdr += 16
	}

	if size < hdr || pos+size > parentEnd {
		return box{}, errors.Wrapf(ErrBadBoxSize, "type %q size %d at offset %d", fourCC(typ), size, pos)
	}
	return box{typ: typ, start: pos + hdr, end: pos + size}, nil
}

// fullBox reads the version and flags fields that a FullBox prepends to
// its payload.
func (d *demuxer) fullBox() (version uint32, flags uint32, err error) {
	version, err = d.r.ReadBits(8)
	if err != nil {
		return
	}
	flags, err = d.r.ReadBits(24)
	return
}

// walk descends the box tree between start and end. trk is non-nil while
// inside a trak box.
func (d *demuxer) walk(start, end int64, trk *Track) error {
	if err := d.r.Seek(start); err != nil {
		return err
	}

	for d.r.Tell() < end {
		// A box header needs at least 8 bytes.
		if end-d.r.Tell() < 8 {
			d.log.Warning("trailing bytes after last box", "bytes", end-d.r.Tell())
			return nil
		}

		b, err := d.readBoxHeader(end)
		if err != nil {
			return err
		}

		switch b.typ {
		case boxFTYP:
			brand, err := d.r.ReadBits(32)
			if err != nil {
				return err
			}
			d.file.Brand = brand

		case boxMOOV, boxMDIA, boxMINF, boxSTBL:
			if err := d.walk(b.start, b.end, trk); err != nil {
				return err
			}

		case boxTRAK:
			if len(d.file.Tracks) == maxTracks {
				d.log.Warning("too many tracks, ignoring trak box", "max", maxTracks)
				break
			}
			t := &Track{}
			if err := d.walk(b.start, b.end, t); err != nil {
				return err
			}
			if err := t.buildMap(d.size); err != nil {
				d.log.Warning("discarding track", "id", t.ID, "error", err.Error())
				break
			}
			d.file.Tracks = append(d.file.Tracks, t)

		case boxMVHD:
			if err := d.parseMVHD(); err != nil {
				return err
			}

		case boxTKHD:
			if trk == nil {
				break
			}
			if err := d.parseTKHD(trk); err != nil {
				return err
			}

		case boxMDHD:
			if trk == nil {
				break
			}
			if err := d.parseMDHD(trk); err != nil {
				return err
			}

		case boxHDLR:
			if trk == nil {
				break
			}
			if _, _, err := d.fullBox(); err != nil {
				return err
			}
			if _, err := d.r.ReadBits(32); err != nil { // pre_defined
				return err
			}
			h, err := d.r.ReadBits(32)
			if err != nil {
				return err
			}
			trk.Handler = h

		case boxSTSD:
			if trk == nil {
				break
			}
			if err := d.parseSTSD(b, trk); err != nil {
				return err
			}

		case boxSTTS, boxCTTS, boxSTSS, boxSTSC, boxSTSZ, boxSTZ2, boxSTCO, boxCO64:
			if trk == nil {
				break
			}
			if err := d.parseSampleTable(b, trk); err != nil {
				return err
			}

		case boxMDAT, boxFREE, boxSKIP, boxUDTA, boxUUID, boxEDTS, boxDINF:
			d.log.Debug("skipping box", "type", fourCC(b.typ), "bytes", b.end-b.start)

		default:
			d.log.Debug("skipping unknown box", "type", fourCC(b.typ), "bytes", b.end-b.start)
		}

		if err := d.r.Seek(b.end); err != nil {
			return err
		}
	}
	return nil
}

func (d *demuxer) parseMVHD() error {
	v, _, err := d.fullBox()
	if err != nil {
		return err
	}
	f := d.file
	if v == 1 {
		f.Created, err = d.r.ReadBits64(64)
		if err != nil {
			return err
		}
		f.Modified, err = d.r.ReadBits64(64)
		if err != nil {
			return err
		}
		f.Timescale, err = d.r.ReadBits(32)
		if err != nil {
			return err
		}
		f.Duration, err = d.r.ReadBits64(64)
		return err
	}

	c, err := d.r.ReadBits(32)
	if err != nil {
		return err
	}
	m, err := d.r.ReadBits(32)
	if err != nil {
		return err
	}
	f.Timescale, err = d.r.ReadBits(32)
	if err != nil {
		return err
	}
	dur, err := d.r.ReadBits(32)
	if err != nil {
		return err
	}
	f.Created, f.Modified, f.Duration = uint64(c), uint64(m), uint64(dur)
	return nil
}

func (d *demuxer) parseTKHD(t *Track) error {
	v, _, err := d.fullBox()
	if err != nil {
		return err
	}

	// Creation and modification times precede the track id; their width
	// depends on the box version.
	tw := 32
	if v == 1 {
		tw = 64
	}
	if err := d.r.SkipBits(2 * tw); err != nil {
		return err
	}
	t.ID, err = d.r.ReadBits(32)
	return err
}

func (d *demuxer) parseMDHD(t *Track) error {
	v, _, err := d.fullBox()
	if err != nil {
		return err
	}
	if v == 1 {
		t.Created, err = d.r.ReadBits64(64)
		if err != nil {
			return err
		}
		t.Modified, err = d.r.ReadBits64(64)
		if err != nil {
			return err
		}
		t.Timescale, err = d.r.ReadBits(32)
		if err != nil {
			return err
		}
		t.Duration, err = d.r.ReadBits64(64)
		return err
	}

	c, err := d.r.ReadBits(32)
	if err != nil {
		return err
	}
	m, err := d.r.ReadBits(32)
	if err != nil {
		return err
	}
	t.Timescale, err = d.r.ReadBits(32)
	if err != nil {
		return err
	}
	dur, err := d.r.ReadBits(32)
	if err != nil {
		return err
	}
	t.Created, t.Modified, t.Duration = uint64(c), uint64(m), uint64(dur)
	return nil
}

// fourCC renders a box type as its four-character form for logging.
func fourCC(t uint32) string {
	b := []byte{byte(t >> 24), byte(t >> 16), byte(t >> 8), byte(t)}
	for i, c := range b {
		if c < 0x20 || c > 0x7e {
			b[i] = '?'
		}
	}
	return string(b)
}
