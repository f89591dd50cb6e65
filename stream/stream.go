/*
DESCRIPTION
  stream.go provides the coded-sample map built by the demuxer and consumed
  by the sample filter and the decoder.

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

// Package stream provides the per-track coded-sample map: an ordered
// sequence of samples, each carrying the byte range of its payload in the
// source file, its timestamps and its kind. The map is append-only while a
// track is demuxed and immutable afterwards, except for wholesale
// replacement by the sample filter.
package stream

import "github.com/pkg/errors"

// Kind classifies a sample in the map.
type Kind int

const (
	KindConfig   Kind = iota // inline codec configuration (SPS or PPS)
	KindVideoIDR             // random-access coded picture
	KindVideo                // any other coded picture
	KindAudio                // coded audio frame
)

// String returns a short human-readable name for the kind.
func (k Kind) String() string {
	switch k {
	case KindConfig:
		return "config"
	case KindVideoIDR:
		return "video-idr"
	case KindVideo:
		return "video"
	case KindAudio:
		return "audio"
	}
	return "unknown"
}

// StreamKind classifies the elementary stream a map describes.
type StreamKind int

const (
	Video StreamKind = iota
	Audio
)

// Codec identifies the codec of the mapped elementary stream.
type Codec int

const (
	CodecUnknown Codec = iota
	CodecAVC
	CodecAAC
)

// Sample is one entry of the map. PTS and DTS are ticks in the owning
// track's timescale; for I-frames PTS equals DTS.
type Sample struct {
	Kind   Kind
	Offset int64 // absolute file position of the payload
	Size   uint32
	PTS    int64
	DTS    int64

	// Invalid is set by Validate for entries whose byte range falls
	// outside the source file. Invalid entries are skipped downstream.
	Invalid bool
}

// Map is the coded-sample map of a single track.
type Map struct {
	Kind  StreamKind
	Codec Codec

	// Aligned asserts that each entry is a whole access unit, with no
	// NAL unit split across entries.
	Aligned bool

	// NALLengthSize is the byte width of the length prefix in front of
	// each NAL unit of a video sample payload. Zero means start codes.
	NALLengthSize int

	// Filtering pass that produced this map, if any. A second pass with
	// the same parameters is a no-op, so filtering is idempotent.
	Filtered            bool
	FilterN, FilterMode int

	samples []Sample
}

// NewMap returns an empty map with capacity for n samples.
func NewMap(kind StreamKind, codec Codec, n int) *Map {
	return &Map{Kind: kind, Codec: codec, Aligned: true, samples: make([]Sample, 0, n)}
}

// Append adds a sample to the map.
func (m *Map) Append(s Sample) { m.samples = append(m.samples, s) }

// Len returns the number of entries, invalid ones included.
func (m *Map) Len() int { return len(m.samples) }

// At returns the i'th entry.
func (m *Map) At(i int) Sample { return m.samples[i] }

// Samples returns the underlying entries. The caller must not modify them.
func (m *Map) Samples() []Sample { return m.samples }

// IDRCount returns the number of valid random-access entries.
func (m *Map) IDRCount() int {
	var n int
	for _, s := range m.samples {
		if s.Kind == KindVideoIDR && !s.Invalid {
			n++
		}
	}
	return n
}

// ConfigCount returns the number of configuration entries.
func (m *Map) ConfigCount() int {
	var n int
	for _, s := range m.samples {
		if s.Kind == KindConfig {
			n++
		}
	}
	return n
}

// Errors of the sample map. Check returns ErrUnsorted and ErrEmptySample;
// ErrBadSampleIDR is not returned by any function of this module.
var (
	ErrUnsorted     = errors.New("sample map entries not in decode order")
	ErrEmptySample  = errors.New("sample map entry with no payload")
	ErrBadSampleIDR = errors.New("more IDR entries than samples")
)

// Check verifies the structural invariants of the map: entries sorted by
// DTS ascending and no zero-size entries.
func (m *Map) Check() error {
	var prev int64
	for i, s := range m.samples {
		if s.Kind == KindConfig {
			continue
		}
		if s.Size == 0 {
			return errors.Wrapf(ErrEmptySample, "entry %d", i)
		}
		if s.DTS < prev {
			return errors.Wrapf(ErrUnsorted, "entry %d", i)
		}
		prev = s.DTS
	}
	return nil
}

// Validate marks entries whose byte range is not wholly contained in a file
// of the given size, and returns the number of entries so marked.
func (m *Map) Validate(fileSize int64) int {
	var n int
	for i := range m.samples {
		s := &m.samples[i]
		if s.Offset < 0 || s.Offset+int64(s.Size) > fileSize || (s.Size == 0 && s.Kind != KindConfig) {
			s.Invalid = true
			n++
		}
	}
	return n
}
