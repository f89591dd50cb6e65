/*
DESCRIPTION
  mp4_test.go provides testing for the ISO base media demuxer using
  synthesised box trees.

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
	"bytes"
	"encoding/binary"
	"io"
	"testing"

	"github.com/ausocean/utils/logging"
	"github.com/google/go-cmp/cmp"

	"github.com/ausocean/thumb/stream"
)

func testLog() logging.Logger {
	return logging.New(logging.Error, io.Discard, true)
}

func u16(v uint16) []byte {
	b := make([]byte, 2)
	binary.BigEndian.PutUint16(b, v)
	return b
}

func u32(v uint32) []byte {
	b := make([]byte, 4)
	binary.BigEndian.PutUint32(b, v)
	return b
}

func u64(v uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, v)
	return b
}

func cat(parts ...[]byte) []byte {
	var out []byte
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}

// mkBox builds a box with the given four character type around the
// concatenated payload.
func mkBox(typ string, payload ...[]byte) []byte {
	body := cat(payload...)
	return cat(u32(uint32(8+len(body))), []byte(typ), body)
}

// mkFullBox prepends version and flags.
func mkFullBox(typ string, version byte, flags uint32, payload ...[]byte) []byte {
	vf := cat([]byte{version}, u32(flags)[1:])
	return mkBox(typ, cat(vf, cat(payload...)))
}

var (
	testSPS = []byte{0x67, 0x42, 0x00, 0x0a, 0xfb, 0x88}
	testPPS = []byte{0x68, 0xce, 0x38, 0x80}
)

// mkAVCC builds an AVCDecoderConfigurationRecord with one SPS and one
// PPS and four byte NAL length prefixes.
func mkAVCC() []byte {
	return mkBox("avcC", cat(
		[]byte{1, 0x42, 0x00, 0x0a, 0xff, 0xe1},
		u16(uint16(len(testSPS))), testSPS,
		[]byte{1},
		u16(uint16(len(testPPS))), testPPS,
	))
}

// mkAVC1 builds an avc1 visual sample entry of the given pixel
// dimensions holding the avcC record.
func mkAVC1(width, height uint16) []byte {
	return mkBox("avc1", cat(
		make([]byte, 6), u16(1), // reserved, data reference index
		u16(0), u16(0), u32(0), u32(0), u32(0), // pre_defined, reserved
		u16(width), u16(height),
		u32(0x00480000), u32(0x00480000), // resolutions
		u32(0), u16(1), // reserved, frame count
		make([]byte, 32), // compressor name
		u16(24), u16(0xffff), // depth, pre_defined
		mkAVCC(),
	))
}

// videoTrackBoxes builds a trak box for samples of the given sizes laid
// out two per chunk at the given chunk offsets.
func videoTrackBoxes(sizes []uint32, chunkOffs []uint32, syncs []uint32) []byte {
	stsz := cat(u32(0), u32(uint32(len(sizes))))
	for _, s := range sizes {
		stsz = cat(stsz, u32(s))
	}
	stco := u32(uint32(len(chunkOffs)))
	for _, o := range chunkOffs {
		stco = cat(stco, u32(o))
	}
	stss := u32(uint32(len(syncs)))
	for _, s := range syncs {
		stss = cat(stss, u32(s))
	}

	stbl := mkBox("stbl",
		mkFullBox("stsd", 0, 0, u32(1), mkAVC1(128, 96)),
		mkFullBox("stts", 0, 0, u32(1), u32(uint32(len(sizes))), u32(100)),
		mkFullBox("stss", 0, 0, stss),
		mkFullBox("stsc", 0, 0, u32(1), u32(1), u32(2), u32(1)),
		mkFullBox("stsz", 0, 0, stsz),
		mkFullBox("stco", 0, 0, stco),
	)

	mdia := mkBox("mdia",
		mkFullBox("mdhd", 0, 0, u32(0), u32(0), u32(90000), u32(400)),
		mkFullBox("hdlr", 0, 0, u32(0), []byte("vide"), make([]byte, 12)),
		mkBox("minf", stbl),
	)

	tkhd := mkFullBox("tkhd", 0, 7, u32(0), u32(0), u32(1), u32(0), u32(400))
	return mkBox("trak", tkhd, mdia)
}

// testFile builds a whole container: ftyp, an mdat of payload bytes,
// then the moov describing it.
func testFile(payload []byte, trak []byte) []byte {
	ftyp := mkBox("ftyp", []byte("isom"), u32(0x200), []byte("isom"))
	mdat := mkBox("mdat", payload)
	moov := mkBox("moov",
		mkFullBox("mvhd", 0, 0, u32(1), u32(2), u32(90000), u32(400)),
		trak,
	)
	return cat(ftyp, mdat, moov)
}

func TestDemux(t *testing.T) {
	// Four samples of 3,4,5,6 bytes in two chunks of two samples.
	payload := make([]byte, 18)
	fileHdr := 20 + 8 // ftyp box then the mdat header
	trak := videoTrackBoxes(
		[]uint32{3, 4, 5, 6},
		[]uint32{uint32(fileHdr), uint32(fileHdr + 7)},
		[]uint32{1, 3},
	)
	buf := testFile(payload, trak)

	f, err := Demux(bytes.NewReader(buf), int64(len(buf)), testLog())
	if err != nil {
		t.Fatalf("did not expect error: %v", err)
	}

	if f.Brand != 0x69736f6d { // 'isom'
		t.Errorf("unexpected brand: %#x", f.Brand)
	}
	if f.Timescale != 90000 || f.Duration != 400 {
		t.Errorf("unexpected movie header: %d/%d", f.Timescale, f.Duration)
	}
	if len(f.Tracks) != 1 {
		t.Fatalf("unexpected track count\nGot: %d\nWant: 1\n", len(f.Tracks))
	}

	trk := f.Tracks[0]
	switch {
	case trk.ID != 1:
		t.Errorf("unexpected track id: %d", trk.ID)
	case !trk.Video():
		t.Error("track is not video")
	case trk.Codec != stream.CodecAVC:
		t.Error("track is not AVC")
	case trk.Timescale != 90000:
		t.Errorf("unexpected timescale: %d", trk.Timescale)
	case trk.Width != 128 || trk.Height != 96:
		t.Errorf("unexpected dimensions: %dx%d", trk.Width, trk.Height)
	case trk.Depth != 24:
		t.Errorf("unexpected depth: %d", trk.Depth)
	case trk.Profile != 0x42:
		t.Errorf("unexpected profile: %d", trk.Profile)
	case trk.NALLengthSize != 4:
		t.Errorf("unexpected NAL length size: %d", trk.NALLengthSize)
	}

	m := trk.Map
	if m == nil {
		t.Fatal("track has no sample map")
	}
	if m.ConfigCount() != 2 {
		t.Errorf("unexpected config entries\nGot: %d\nWant: 2\n", m.ConfigCount())
	}
	if m.IDRCount() != 2 {
		t.Errorf("unexpected IDR count\nGot: %d\nWant: 2\n", m.IDRCount())
	}
	if m.NALLengthSize != 4 {
		t.Errorf("unexpected map NAL length size: %d", m.NALLengthSize)
	}

	// The parameter set entries must reference the exact blob bytes.
	for i, want := range [][]byte{testSPS, testPPS} {
		s := m.At(i)
		if s.Kind != stream.KindConfig {
			t.Fatalf("entry %d is not config", i)
		}
		got := buf[s.Offset : s.Offset+int64(s.Size)]
		if !bytes.Equal(got, want) {
			t.Errorf("config entry %d references wrong bytes\nGot: %v\nWant: %v\n", i, got, want)
		}
	}

	// Sample positions walk the chunks with intra-chunk size sums.
	var offs []int64
	var dts []int64
	var kinds []stream.Kind
	for _, s := range m.Samples()[2:] {
		offs = append(offs, s.Offset)
		dts = append(dts, s.DTS)
		kinds = append(kinds, s.Kind)
	}

	base := int64(fileHdr)
	wantOffs := []int64{base, base + 3, base + 7, base + 12}
	wantDTS := []int64{0, 100, 200, 300}
	wantKinds := []stream.Kind{
		stream.KindVideoIDR, stream.KindVideo,
		stream.KindVideoIDR, stream.KindVideo,
	}

	if !cmp.Equal(offs, wantOffs) {
		t.Errorf("unexpected offsets: %v", cmp.Diff(offs, wantOffs))
	}
	if !cmp.Equal(dts, wantDTS) {
		t.Errorf("unexpected timestamps: %v", cmp.Diff(dts, wantDTS))
	}
	if !cmp.Equal(kinds, wantKinds) {
		t.Errorf("unexpected kinds: %v", cmp.Diff(kinds, wantKinds))
	}

	if err := m.Check(); err != nil {
		t.Errorf("sample map fails invariants: %v", err)
	}
}

func TestDemuxAudioTrack(t *testing.T) {
	// An mp4a track is indexed with audio sample kinds but contributes
	// no video.
	mp4a := mkBox("mp4a", cat(
		make([]byte, 6), u16(1),
		u32(0), u32(0), // reserved
		u16(2), u16(16), // channels, sample size
		u16(0), u16(0), // pre_defined, reserved
		u32(48000<<16),
	))
	stbl := mkBox("stbl",
		mkFullBox("stsd", 0, 0, u32(1), mp4a),
		mkFullBox("stts", 0, 0, u32(1), u32(2), u32(1024)),
		mkFullBox("stsc", 0, 0, u32(1), u32(1), u32(2), u32(1)),
		mkFullBox("stsz", 0, 0, u32(0), u32(2), u32(3), u32(4)),
		mkFullBox("stco", 0, 0, u32(1), u32(28)),
	)
	mdia := mkBox("mdia",
		mkFullBox("mdhd", 0, 0, u32(0), u32(0), u32(48000), u32(2048)),
		mkFullBox("hdlr", 0, 0, u32(0), []byte("soun"), make([]byte, 12)),
		mkBox("minf", stbl),
	)
	trak := mkBox("trak", mkFullBox("tkhd", 0, 7, u32(0), u32(0), u32(2), u32(0), u32(2048)), mdia)
	buf := testFile(make([]byte, 7), trak)

	f, err := Demux(bytes.NewReader(buf), int64(len(buf)), testLog())
	if err != nil {
		t.Fatalf("did not expect error: %v", err)
	}

	trk := f.Tracks[0]
	switch {
	case trk.Video():
		t.Error("audio track reported as video")
	case trk.Codec != stream.CodecAAC:
		t.Error("track is not AAC")
	case trk.ChannelCount != 2 || trk.SampleSize != 16 || trk.SampleRate != 48000:
		t.Errorf("unexpected audio parameters: %d/%d/%d", trk.ChannelCount, trk.SampleSize, trk.SampleRate)
	}

	m := trk.Map
	if m.Kind != stream.Audio {
		t.Error("map is not an audio stream")
	}
	for _, s := range m.Samples() {
		if s.Kind != stream.KindAudio {
			t.Errorf("unexpected sample kind %v", s.Kind)
		}
	}
	if m.IDRCount() != 0 {
		t.Errorf("audio map reports IDRs: %d", m.IDRCount())
	}
}

func TestDemuxCO64(t *testing.T) {
	// A 64 bit chunk offset past 2^32 must be preserved exactly, and
	// flagged invalid for a file this small.
	bigOff := uint64(1) << 33

	stbl := mkBox("stbl",
		mkFullBox("stsd", 0, 0, u32(1), mkAVC1(128, 96)),
		mkFullBox("stts", 0, 0, u32(1), u32(1), u32(100)),
		mkFullBox("stss", 0, 0, u32(1), u32(1)),
		mkFullBox("stsc", 0, 0, u32(1), u32(1), u32(1), u32(1)),
		mkFullBox("stsz", 0, 0, u32(0), u32(1), u32(40)),
		mkFullBox("co64", 0, 0, u32(1), u64(bigOff)),
	)
	mdia := mkBox("mdia",
		mkFullBox("mdhd", 0, 0, u32(0), u32(0), u32(90000), u32(100)),
		mkFullBox("hdlr", 0, 0, u32(0), []byte("vide"), make([]byte, 12)),
		mkBox("minf", stbl),
	)
	trak := mkBox("trak", mkFullBox("tkhd", 0, 7, u32(0), u32(0), u32(1), u32(0), u32(100)), mdia)
	buf := testFile(nil, trak)

	f, err := Demux(bytes.NewReader(buf), int64(len(buf)), testLog())
	if err != nil {
		t.Fatalf("did not expect error: %v", err)
	}

	m := f.Tracks[0].Map
	s := m.At(m.Len() - 1)
	if s.Offset != int64(bigOff) {
		t.Errorf("64 bit offset not preserved\nGot: %d\nWant: %d\n", s.Offset, bigOff)
	}
	if !s.Invalid {
		t.Error("entry past EOF not flagged invalid")
	}
	if m.IDRCount() != 0 {
		t.Errorf("invalid entry still counted as IDR")
	}
}

func TestDemuxMissingSampleSizes(t *testing.T) {
	// A track without stsz or stz2 is discarded, leaving no tracks.
	stbl := mkBox("stbl",
		mkFullBox("stsd", 0, 0, u32(1), mkAVC1(16, 16)),
		mkFullBox("stsc", 0, 0, u32(1), u32(1), u32(1), u32(1)),
		mkFullBox("stco", 0, 0, u32(1), u32(48)),
	)
	mdia := mkBox("mdia",
		mkFullBox("mdhd", 0, 0, u32(0), u32(0), u32(90000), u32(100)),
		mkFullBox("hdlr", 0, 0, u32(0), []byte("vide"), make([]byte, 12)),
		mkBox("minf", stbl),
	)
	trak := mkBox("trak", mkFullBox("tkhd", 0, 7, u32(0), u32(0), u32(1), u32(0), u32(100)), mdia)
	buf := testFile(nil, trak)

	if _, err := Demux(bytes.NewReader(buf), int64(len(buf)), testLog()); err != ErrNoTracks {
		t.Errorf("expected ErrNoTracks, got: %v", err)
	}
}

func TestDemuxBadBoxSize(t *testing.T) {
	// A box whose declared size is below its header length is fatal.
	buf := cat(u32(4), []byte("ftyp"))
	if _, err := Demux(bytes.NewReader(buf), int64(len(buf)), testLog()); err == nil {
		t.Error("expected error for undersized box")
	}

	// As is one that runs past its parent.
	buf = cat(u32(64), []byte("moov"), u32(16), []byte("mvhd"))
	if _, err := Demux(bytes.NewReader(buf), int64(len(buf)), testLog()); err == nil {
		t.Error("expected error for box overrunning parent")
	}
}

func TestDemuxSkipsUnknownBoxes(t *testing.T) {
	payload := make([]byte, 18)
	fileHdr := 20 + 8
	trak := videoTrackBoxes([]uint32{3, 4, 5, 6}, []uint32{uint32(fileHdr), uint32(fileHdr + 7)}, []uint32{1})

	ftyp := mkBox("ftyp", []byte("isom"), u32(0x200), []byte("isom"))
	mdat := mkBox("mdat", payload)
	moov := mkBox("moov",
		mkFullBox("mvhd", 0, 0, u32(1), u32(2), u32(90000), u32(400)),
		mkBox("free", make([]byte, 11)),
		mkBox("wide", make([]byte, 3)),
		trak,
		mkBox("udta", mkBox("meta", make([]byte, 4))),
	)
	buf := cat(ftyp, mdat, moov)

	f, err := Demux(bytes.NewReader(buf), int64(len(buf)), testLog())
	if err != nil {
		t.Fatalf("did not expect error: %v", err)
	}
	if len(f.Tracks) != 1 {
		t.Errorf("unexpected track count\nGot: %d\nWant: 1\n", len(f.Tracks))
	}
}
