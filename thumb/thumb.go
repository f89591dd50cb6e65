/*
DESCRIPTION
  thumb.go provides the extraction pipeline: demux a container file,
  filter its video sample map down to the requested random-access
  pictures, decode each one and hand it to the picture sink.

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

// Package thumb extracts still-image thumbnails from MP4 family
// container files carrying H.264 video. The pipeline indexes the
// container's coded samples, selects random-access pictures spread over
// the program, decodes them and writes each to the output directory.
package thumb

import (
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/ausocean/utils/logging"
	"github.com/pkg/errors"

	"github.com/ausocean/thumb/codec/h264/h264dec"
	"github.com/ausocean/thumb/container/mp4"
	"github.com/ausocean/thumb/export"
	"github.com/ausocean/thumb/filter"
	"github.com/ausocean/thumb/stream"
)

// Outcome classes, one per CLI exit code.
var (
	ErrInput        = errors.New("input unreadable or unsupported container")
	ErrNoVideoTrack = errors.New("no video track in container")
	ErrNoIDR        = errors.New("no random-access samples in video track")
	ErrDecoder      = errors.New("decoder error threshold exceeded")
	ErrSink         = errors.New("could not write any output picture")
)

// Decoding aborts once more than this many consecutive sample errors
// accumulate.
const maxErrors = 64

// Config parameterises an extraction run.
type Config struct {
	// Input is the path of the container file. OutDir receives the
	// pictures, named after the input file's stem.
	Input  string
	OutDir string

	// Format and Quality control the picture serialisation; Quality is
	// 1 to 100 and applies to the lossy formats only.
	Format  export.Format
	Quality int

	// Count is the number of pictures wanted; Mode picks how they are
	// drawn from the program.
	Count int
	Mode  filter.Mode

	Logger logging.Logger
}

// Pipeline states.
type state int

const (
	stateIndexing state = iota
	stateDispatching
	stateDecoding
	stateEmitting
	stateTerminating
)

// validate applies defaults and rejects impossible configurations.
func (c *Config) validate() error {
	if c.Input == "" {
		return errors.New("no input file given")
	}
	if c.OutDir == "" {
		c.OutDir = "."
	}
	if c.Quality == 0 {
		c.Quality = 75
	}
	if c.Quality < 1 || c.Quality > 100 {
		return errors.Errorf("picture quality %d out of range", c.Quality)
	}
	if c.Count < 0 {
		return errors.Errorf("picture count %d out of range", c.Count)
	}
	if c.Logger == nil {
		c.Logger = logging.New(logging.Error, io.Discard, true)
	}
	return nil
}

// Extract runs the pipeline and returns the number of pictures written.
// The returned error, if any, wraps one of the outcome classes above.
func Extract(cfg Config) (int, error) {
	if err := cfg.validate(); err != nil {
		return 0, errors.Wrap(ErrInput, err.Error())
	}
	log := cfg.Logger

	if cfg.Count == 0 {
		log.Warning("zero pictures requested, nothing to do")
		return 0, nil
	}

	f, err := os.Open(cfg.Input)
	if err != nil {
		return 0, errors.Wrap(ErrInput, err.Error())
	}
	defer f.Close()
	fi, err := f.Stat()
	if err != nil {
		return 0, errors.Wrap(ErrInput, err.Error())
	}

	p := &pipeline{cfg: cfg, log: log, src: f, size: fi.Size()}
	for st := stateIndexing; st != stateTerminating; {
		st, err = p.step(st)
		if err != nil {
			return p.written, err
		}
	}
	return p.written, p.outcome()
}

// pipeline is the extraction state machine.
type pipeline struct {
	cfg  Config
	log  logging.Logger
	src  *os.File
	size int64

	track *mp4.Track
	m     *stream.Map
	want  int

	dec    *h264dec.Decoder
	sink   *export.Sink
	prefix []byte // parameter set NAL units, Annex B framed

	idrs    []stream.Sample
	next    int
	au      []byte
	pts     int64
	pic     *h264dec.Picture
	emitted int

	errCount int
	sinkErrs int
	nInvalid int
	written  int
}

// step advances the pipeline one state.
func (p *pipeline) step(st state) (state, error) {
	switch st {
	case stateIndexing:
		return p.index()
	case stateDispatching:
		return p.dispatch()
	case stateDecoding:
		return p.decode()
	case stateEmitting:
		return p.emit()
	}
	return stateTerminating, nil
}

// index demuxes the container, selects the video track and filters its
// sample map.
func (p *pipeline) index() (state, error) {
	file, err := mp4.Demux(p.src, p.size, p.log)
	if err != nil {
		return stateTerminating, errors.Wrap(ErrInput, err.Error())
	}
	p.log.Info("container demuxed", "tracks", len(file.Tracks))

	for _, t := range file.Tracks {
		if t.Video() && t.Codec == stream.CodecAVC && t.Map != nil {
			p.track = t
			break
		}
	}
	if p.track == nil {
		return stateTerminating, ErrNoVideoTrack
	}

	if err := p.track.Map.Check(); err != nil {
		return stateTerminating, errors.Wrap(ErrInput, err.Error())
	}

	p.m, p.want, err = filter.IDR(p.track.Map, p.cfg.Count, p.cfg.Mode, p.log)
	if err != nil {
		return stateTerminating, errors.Wrap(ErrInput, err.Error())
	}
	if p.want == 0 {
		// A track whose random-access samples were all flagged
		// invalid is a corrupt input, not an IDR-free one.
		for _, s := range p.track.Map.Samples() {
			if s.Kind == stream.KindVideoIDR && s.Invalid {
				return stateTerminating, errors.Wrap(ErrInput, "video samples fall outside the file")
			}
		}
		return stateTerminating, ErrNoIDR
	}
	p.log.Info("samples selected", "want", p.want, "mode", p.cfg.Mode.String())

	// Load the parameter sets once; they lead every access unit.
	for _, s := range p.m.Samples() {
		if s.Kind != stream.KindConfig || s.Invalid {
			continue
		}
		blob := make([]byte, s.Size)
		if _, err := p.src.ReadAt(blob, s.Offset); err != nil {
			return stateTerminating, errors.Wrap(ErrInput, err.Error())
		}
		p.prefix = h264dec.AppendAnnexB(p.prefix, blob)
	}

	for _, s := range p.m.Samples() {
		if s.Kind == stream.KindVideoIDR {
			p.idrs = append(p.idrs, s)
		}
	}

	p.dec = h264dec.NewDecoder(p.log)
	stem := strings.TrimSuffix(filepath.Base(p.cfg.Input), filepath.Ext(p.cfg.Input))
	p.sink = &export.Sink{
		Dir:     p.cfg.OutDir,
		Stem:    stem,
		Format:  p.cfg.Format,
		Quality: p.cfg.Quality,
		Log:     p.log,
	}
	return stateDispatching, nil
}

// dispatch materialises the elementary stream bytes of the next selected
// sample.
func (p *pipeline) dispatch() (state, error) {
	for p.next < len(p.idrs) {
		s := p.idrs[p.next]
		p.next++

		if s.Invalid {
			p.nInvalid++
			p.errCount++
			if p.errCount > maxErrors {
				return stateTerminating, nil
			}
			continue
		}

		payload := make([]byte, s.Size)
		if _, err := p.src.ReadAt(payload, s.Offset); err != nil {
			p.log.Warning("could not read sample", "offset", s.Offset, "error", err.Error())
			p.errCount++
			continue
		}

		p.au = append([]byte(nil), p.prefix...)
		if n := p.m.NALLengthSize; n > 0 {
			var err error
			p.au, err = h264dec.AppendAnnexBFromLengthPrefixed(p.au, payload, n)
			if err != nil {
				p.log.Warning("bad sample framing", "offset", s.Offset, "error", err.Error())
				p.errCount++
				continue
			}
		} else {
			p.au = append(p.au, payload...)
		}

		p.pts = s.PTS
		return stateDecoding, nil
	}
	return stateTerminating, nil
}

// decode runs the access unit through the decoder.
func (p *pipeline) decode() (state, error) {
	pic, err := p.dec.DecodeAccessUnit(p.au, 0, p.pts)
	if err != nil {
		p.log.Warning("could not decode access unit", "error", err.Error())
		p.errCount++
		if p.errCount > maxErrors {
			return stateTerminating, nil
		}
		return stateDispatching, nil
	}
	p.errCount = 0
	p.pic = pic
	return stateEmitting, nil
}

// emit hands the picture to the sink.
func (p *pipeline) emit() (state, error) {
	if err := p.sink.Emit(p.pic, p.emitted); err != nil {
		p.log.Warning("could not write picture", "error", err.Error())
		p.sinkErrs++
	} else {
		p.written++
	}
	p.emitted++
	p.pic = nil

	if p.emitted == p.want {
		return stateTerminating, nil
	}
	return stateDispatching, nil
}

// outcome classifies the run after termination.
func (p *pipeline) outcome() error {
	switch {
	case p.written > 0:
		return nil
	case p.sinkErrs > 0:
		return ErrSink
	case p.nInvalid > 0:
		return ErrInput
	default:
		return ErrDecoder
	}
}
