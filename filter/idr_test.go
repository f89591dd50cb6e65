/*
DESCRIPTION
  idr_test.go provides testing for functionality in idr.go, including
  the selection behaviour over synthetic sample maps.

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

package filter

import (
	"io"
	"testing"

	"github.com/ausocean/utils/logging"
	"github.com/google/go-cmp/cmp"

	"github.com/ausocean/thumb/stream"
)

func testLog() logging.Logger {
	return logging.New(logging.Error, io.Discard, true)
}

// mapWithIDRs builds a video map with two config entries and IDR entries
// of the given sizes. Each IDR's DTS encodes its ordinal so selections
// can be identified.
func mapWithIDRs(sizes []uint32) *stream.Map {
	m := stream.NewMap(stream.Video, stream.CodecAVC, len(sizes)+2)
	m.Append(stream.Sample{Kind: stream.KindConfig, Offset: 0, Size: 10})
	m.Append(stream.Sample{Kind: stream.KindConfig, Offset: 10, Size: 5})
	off := int64(100)
	for i, s := range sizes {
		m.Append(stream.Sample{Kind: stream.KindVideoIDR, Offset: off, Size: s, DTS: int64(i), PTS: int64(i)})
		off += int64(s)
	}
	return m
}

// selected returns the ordinals (DTS values) of the IDRs in a map.
func selected(m *stream.Map) []int64 {
	var out []int64
	for _, s := range m.Samples() {
		if s.Kind == stream.KindVideoIDR {
			out = append(out, s.DTS)
		}
	}
	return out
}

func TestDistributedSelection(t *testing.T) {
	// One hundred uniform IDRs: the three percent borders drop ordinals
	// 0-2 and 97-99, the size threshold rejects nothing, and four
	// distributed picks step through the remainder.
	sizes := make([]uint32, 100)
	for i := range sizes {
		sizes[i] = 45 << 10
	}
	m := mapWithIDRs(sizes)

	out, n, err := IDR(m, 4, Distributed, testLog())
	if err != nil {
		t.Fatalf("did not expect error: %v", err)
	}
	if n != 4 {
		t.Fatalf("unexpected count\nGot: %d\nWant: 4\n", n)
	}

	want := []int64{3, 35, 67, 96}
	if !cmp.Equal(selected(out), want) {
		t.Errorf("unexpected selection\nGot: %v\nWant: %v\n", selected(out), want)
	}
	if out.ConfigCount() != 2 {
		t.Errorf("config entries not preserved\nGot: %d\nWant: 2\n", out.ConfigCount())
	}
}

func TestOrderedSelection(t *testing.T) {
	sizes := make([]uint32, 100)
	for i := range sizes {
		sizes[i] = 45 << 10
	}
	m := mapWithIDRs(sizes)

	out, n, err := IDR(m, 4, Ordered, testLog())
	if err != nil {
		t.Fatalf("did not expect error: %v", err)
	}
	if n != 4 {
		t.Fatalf("unexpected count\nGot: %d\nWant: 4\n", n)
	}

	want := []int64{3, 4, 5, 6}
	if !cmp.Equal(selected(out), want) {
		t.Errorf("unexpected selection\nGot: %v\nWant: %v\n", selected(out), want)
	}
}

func TestSmallSampleRejected(t *testing.T) {
	// One tiny IDR amid 99 large ones never survives the threshold.
	sizes := make([]uint32, 100)
	for i := range sizes {
		sizes[i] = 50 << 10
	}
	sizes[50] = 2 << 10
	m := mapWithIDRs(sizes)

	out, n, err := IDR(m, 1, Distributed, testLog())
	if err != nil {
		t.Fatalf("did not expect error: %v", err)
	}
	if n != 1 {
		t.Fatalf("unexpected count\nGot: %d\nWant: 1\n", n)
	}
	if got := selected(out); len(got) != 1 || got[0] == 50 {
		t.Errorf("the undersized sample was selected: %v", got)
	}
}

func TestThreeIDRBorders(t *testing.T) {
	// Three IDRs with a border of one leave a single candidate; the
	// filter must not index outside the kept list.
	m := mapWithIDRs([]uint32{40 << 10, 45 << 10, 50 << 10})

	out, n, err := IDR(m, 2, Distributed, testLog())
	if err != nil {
		t.Fatalf("did not expect error: %v", err)
	}
	if n != 1 {
		t.Fatalf("unexpected count\nGot: %d\nWant: 1\n", n)
	}
	want := []int64{1}
	if !cmp.Equal(selected(out), want) {
		t.Errorf("unexpected selection\nGot: %v\nWant: %v\n", selected(out), want)
	}
}

func TestSingleEligible(t *testing.T) {
	// Distributed mode with one requested picture takes the middle of
	// the kept list.
	sizes := make([]uint32, 100)
	for i := range sizes {
		sizes[i] = 45 << 10
	}
	m := mapWithIDRs(sizes)

	out, n, err := IDR(m, 1, Distributed, testLog())
	if err != nil {
		t.Fatalf("did not expect error: %v", err)
	}
	if n != 1 {
		t.Fatalf("unexpected count\nGot: %d\nWant: 1\n", n)
	}
	// Kept list is ordinals 3..96; the middle sits at 3+47.
	want := []int64{50}
	if !cmp.Equal(selected(out), want) {
		t.Errorf("unexpected selection\nGot: %v\nWant: %v\n", selected(out), want)
	}
}

func TestNoIDRs(t *testing.T) {
	m := stream.NewMap(stream.Video, stream.CodecAVC, 2)
	m.Append(stream.Sample{Kind: stream.KindConfig, Offset: 0, Size: 10})

	out, n, err := IDR(m, 4, Distributed, testLog())
	if err != nil {
		t.Fatalf("did not expect error: %v", err)
	}
	if n != 0 {
		t.Errorf("unexpected count\nGot: %d\nWant: 0\n", n)
	}
	if out != m {
		t.Error("expected the input map back unchanged")
	}
}

func TestUnfiltered(t *testing.T) {
	m := mapWithIDRs([]uint32{10, 20, 30})
	out, n, err := IDR(m, 2, Unfiltered, testLog())
	if err != nil {
		t.Fatalf("did not expect error: %v", err)
	}
	if n != 2 {
		t.Errorf("unexpected count\nGot: %d\nWant: 2\n", n)
	}
	if out != m {
		t.Error("unfiltered mode must pass the map through")
	}
}

func TestIdempotence(t *testing.T) {
	sizes := make([]uint32, 100)
	for i := range sizes {
		sizes[i] = 45 << 10
	}
	m := mapWithIDRs(sizes)

	once, n1, err := IDR(m, 4, Distributed, testLog())
	if err != nil {
		t.Fatalf("did not expect error: %v", err)
	}
	twice, n2, err := IDR(once, 4, Distributed, testLog())
	if err != nil {
		t.Fatalf("did not expect error: %v", err)
	}

	if n1 != n2 {
		t.Errorf("counts differ across passes: %d then %d", n1, n2)
	}
	if !cmp.Equal(selected(once), selected(twice)) {
		t.Errorf("selections differ across passes\nFirst: %v\nSecond: %v\n", selected(once), selected(twice))
	}
}

func TestNotVideo(t *testing.T) {
	m := stream.NewMap(stream.Audio, stream.CodecAAC, 1)
	if _, _, err := IDR(m, 1, Distributed, testLog()); err != ErrNotVideo {
		t.Errorf("expected ErrNotVideo, got: %v", err)
	}
}

func TestParseMode(t *testing.T) {
	for _, mode := range []Mode{Unfiltered, Ordered, Distributed} {
		got, err := ParseMode(mode.String())
		if err != nil {
			t.Fatalf("did not expect error: %v", err)
		}
		if got != mode {
			t.Errorf("round trip failed for %v", mode)
		}
	}
	if _, err := ParseMode("sideways"); err == nil {
		t.Error("expected error for unknown mode")
	}
}
