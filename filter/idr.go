/*
DESCRIPTION
  idr.go provides filtering of a video coded-sample map down to a set of
  visually significant random-access samples.

AUTHORS
  Saxon A. Nelson-Milton <saxon@ausocean.org>
  Ella Pietraroia <ella@ausocean.org>

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

// Package filter reduces a video track's coded-sample map to a bounded
// number of random-access samples worth decoding into thumbnails. Samples
// well below the average payload size carry little visual information
// (title cards, black intros, near-duplicate stills) and are rejected
// without decoding anything, as are samples in the first and last few
// percent of the program.
package filter

import (
	"math"

	"github.com/ausocean/utils/logging"
	"github.com/pkg/errors"

	"github.com/ausocean/thumb/stream"
)

// Mode selects how filtered samples are drawn from the eligible set.
type Mode int

const (
	// Unfiltered passes the map through untouched.
	Unfiltered Mode = iota

	// Ordered takes the first n eligible samples.
	Ordered

	// Distributed spreads the n samples evenly across the eligible set.
	Distributed
)

// ParseMode returns the Mode named by s.
func ParseMode(s string) (Mode, error) {
	switch s {
	case "unfiltered":
		return Unfiltered, nil
	case "ordered":
		return Ordered, nil
	case "distributed":
		return Distributed, nil
	}
	return 0, errors.Errorf("unknown extraction mode %q", s)
}

// String returns the name accepted by ParseMode.
func (m Mode) String() string {
	switch m {
	case Unfiltered:
		return "unfiltered"
	case Ordered:
		return "ordered"
	case Distributed:
		return "distributed"
	}
	return "invalid"
}

// Payload sizes below the average divided by this factor are rejected.
const sizeRejectFactor = 1.66

// Fraction of the program cut from each end before selection.
const borderFraction = 0.03

// ErrNotVideo is returned when the map does not describe a video stream.
var ErrNotVideo = errors.New("sample map is not a video stream")

// IDR filters m down to at most n random-access samples drawn according to
// mode, returning the filtered map and the number of samples selected.
// Configuration entries are preserved verbatim. The input map is not
// modified; callers should replace it with the returned one. When the map
// holds no random-access samples the original map and a count of zero are
// returned.
func IDR(m *stream.Map, n int, mode Mode, log logging.Logger) (*stream.Map, int, error) {
	if m.Kind != stream.Video {
		return nil, 0, ErrNotVideo
	}

	// Filtering an already-filtered map with the same parameters changes
	// nothing.
	if m.Filtered && m.FilterN == n && m.FilterMode == int(mode) {
		return m, min(n, m.IDRCount()), nil
	}
	reqN := n

	var idrs []stream.Sample
	var configs []stream.Sample
	for _, s := range m.Samples() {
		switch {
		case s.Kind == stream.KindConfig:
			configs = append(configs, s)
		case s.Kind == stream.KindVideoIDR && !s.Invalid:
			idrs = append(idrs, s)
		}
	}

	if len(idrs) == 0 {
		log.Warning("no random-access samples in stream, nothing to extract")
		return m, 0, nil
	}
	if n > len(idrs) {
		log.Warning("not enough random-access samples", "want", n, "have", len(idrs))
		n = len(idrs)
	}
	if n < 0 {
		n = 0
	}

	if mode == Unfiltered {
		return m, n, nil
	}

	var payload int64
	for _, s := range idrs {
		payload += int64(s.Size)
	}
	threshold := uint32(float64(payload) / float64(len(idrs)) / sizeRejectFactor)
	border := int(math.Ceil(float64(len(idrs)) * borderFraction))

	var kept []stream.Sample
	for i := border; i < len(idrs)-border; i++ {
		if idrs[i].Size > threshold {
			kept = append(kept, idrs[i])
		}
	}
	log.Debug("first cut complete", "kept", len(kept), "threshold", threshold, "border", border)

	if n > len(kept) {
		n = len(kept)
	}

	out := stream.NewMap(m.Kind, m.Codec, len(configs)+n)
	out.Aligned = m.Aligned
	out.NALLengthSize = m.NALLengthSize
	out.Filtered, out.FilterN, out.FilterMode = true, reqN, int(mode)
	for _, s := range configs {
		out.Append(s)
	}

	switch {
	case n == 0:
	case mode == Ordered:
		for _, s := range kept[:n] {
			out.Append(s)
		}
	case n == 1:
		out.Append(kept[len(kept)/2])
	default:
		step := (len(kept) + n - 2) / (n - 1)
		for i := 0; i < n; i++ {
			j := i * step
			if j > len(kept)-1 {
				j = len(kept) - 1
			}
			out.Append(kept[j])
		}
	}

	return out, n, nil
}
