/*
DESCRIPTION
  reader_test.go provides testing for functionality in reader.go.

AUTHORS
  Saxon A. Nelson-Milton <saxon@ausocean.org>

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

package bits

import (
	"bytes"
	"io"
	"testing"
)

func TestReadBits(t *testing.T) {
	r := NewBytes([]byte{0x8f, 0xe3})
	tests := []struct {
		n    int
		want uint32
	}{
		{n: 4, want: 0x8},
		{n: 2, want: 0x3},
		{n: 4, want: 0xf},
		{n: 6, want: 0x23},
	}

	for i, test := range tests {
		got, err := r.ReadBits(test.n)
		if err != nil {
			t.Fatalf("did not expect error: %v for read: %d", err, i)
		}
		if got != test.want {
			t.Errorf("did not get expected result for read: %d\nGot: %#x\nWant: %#x\n", i, got, test.want)
		}
	}

	if _, err := r.ReadBits(1); err != io.ErrUnexpectedEOF {
		t.Errorf("expected io.ErrUnexpectedEOF from exhausted reader, got: %v", err)
	}
}

func TestReadBits64(t *testing.T) {
	r := NewBytes([]byte{0x01, 0x23, 0x45, 0x67, 0x89, 0xab, 0xcd, 0xef})
	got, err := r.ReadBits64(64)
	if err != nil {
		t.Fatalf("did not expect error: %v", err)
	}
	const want = uint64(0x0123456789abcdef)
	if got != want {
		t.Errorf("did not get expected result\nGot: %#x\nWant: %#x\n", got, want)
	}
}

func TestPeekBits(t *testing.T) {
	r := NewBytes([]byte{0x8f, 0xe3})
	for i := 0; i < 2; i++ {
		got, err := r.PeekBits(12)
		if err != nil {
			t.Fatalf("did not expect error: %v for peek: %d", err, i)
		}
		if got != 0x8fe {
			t.Errorf("did not get expected result for peek: %d\nGot: %#x\nWant: %#x\n", i, got, 0x8fe)
		}
	}

	// A peek must not advance the reader.
	got, err := r.ReadBits(4)
	if err != nil {
		t.Fatalf("did not expect error: %v", err)
	}
	if got != 0x8 {
		t.Errorf("read after peek returned %#x, want 0x8", got)
	}
}

func TestWindow(t *testing.T) {
	src := bytes.NewReader([]byte{0x00, 0x11, 0x22, 0x33, 0x44})
	r, err := NewReader(src, 1, 4)
	if err != nil {
		t.Fatalf("did not expect error: %v", err)
	}

	got, err := r.ReadBits(8)
	if err != nil {
		t.Fatalf("did not expect error: %v", err)
	}
	if got != 0x11 {
		t.Errorf("window read returned %#x, want 0x11", got)
	}

	if err := r.Seek(3); err != nil {
		t.Fatalf("did not expect error: %v", err)
	}
	got, err = r.ReadBits(8)
	if err != nil {
		t.Fatalf("did not expect error: %v", err)
	}
	if got != 0x33 {
		t.Errorf("read after seek returned %#x, want 0x33", got)
	}

	if _, err := r.ReadBits(8); err != io.ErrUnexpectedEOF {
		t.Errorf("expected io.ErrUnexpectedEOF past window end, got: %v", err)
	}

	if err := r.Seek(5); err != ErrOutOfWindow {
		t.Errorf("expected ErrOutOfWindow, got: %v", err)
	}
}

func TestTell(t *testing.T) {
	r := NewBytes([]byte{0xff, 0x00, 0xff})
	if r.Tell() != 0 {
		t.Errorf("fresh reader Tell = %d, want 0", r.Tell())
	}
	r.ReadBits(3)
	if r.Tell() != 0 {
		t.Errorf("mid-byte Tell = %d, want 0", r.Tell())
	}
	r.ByteAlign()
	if r.Tell() != 1 {
		t.Errorf("aligned Tell = %d, want 1", r.Tell())
	}
	r.ReadBits(16)
	if r.Tell() != 3 {
		t.Errorf("final Tell = %d, want 3", r.Tell())
	}
}

func TestReadUe(t *testing.T) {
	tests := []struct {
		in   []byte
		want uint32
	}{
		{in: []byte{0x80}, want: 0},      // 1
		{in: []byte{0x40}, want: 1},      // 010
		{in: []byte{0x60}, want: 2},      // 011
		{in: []byte{0x20}, want: 3},      // 00100
		{in: []byte{0x38}, want: 6},      // 00111
		{in: []byte{0x04, 0x40}, want: 33}, // 000001000 10
	}

	for i, test := range tests {
		got, err := NewBytes(test.in).ReadUe()
		if err != nil {
			t.Fatalf("did not expect error: %v for test: %d", err, i)
		}
		if got != test.want {
			t.Errorf("did not get expected result for test: %d\nGot: %d\nWant: %d\n", i, got, test.want)
		}
	}
}

func TestReadSe(t *testing.T) {
	tests := []struct {
		in   []byte
		want int32
	}{
		{in: []byte{0x80}, want: 0},  // codeNum 0
		{in: []byte{0x40}, want: 1},  // codeNum 1
		{in: []byte{0x60}, want: -1}, // codeNum 2
		{in: []byte{0x20}, want: 2},  // codeNum 3
		{in: []byte{0x28}, want: -2}, // codeNum 4
	}

	for i, test := range tests {
		got, err := NewBytes(test.in).ReadSe()
		if err != nil {
			t.Fatalf("did not expect error: %v for test: %d", err, i)
		}
		if got != test.want {
			t.Errorf("did not get expected result for test: %d\nGot: %d\nWant: %d\n", i, got, test.want)
		}
	}
}

func TestReadTe(t *testing.T) {
	// With bound 1 the code is a single inverted bit.
	got, err := NewBytes([]byte{0x80}).ReadTe(1)
	if err != nil {
		t.Fatalf("did not expect error: %v", err)
	}
	if got != 0 {
		t.Errorf("te(1) of bit 1 = %d, want 0", got)
	}

	got, err = NewBytes([]byte{0x00, 0x80}).ReadTe(1)
	if err != nil {
		t.Fatalf("did not expect error: %v", err)
	}
	if got != 1 {
		t.Errorf("te(1) of bit 0 = %d, want 1", got)
	}

	// Larger bounds fall back to ue coding.
	got, err = NewBytes([]byte{0x40}).ReadTe(7)
	if err != nil {
		t.Fatalf("did not expect error: %v", err)
	}
	if got != 1 {
		t.Errorf("te(7) = %d, want 1", got)
	}
}

func TestMoreRBSPData(t *testing.T) {
	tests := []struct {
		in    []byte
		nSkip int
		want  bool
	}{
		{in: []byte{0x80}, nSkip: 0, want: false},       // stop bit only
		{in: []byte{0xc0}, nSkip: 0, want: true},        // data before stop bit
		{in: []byte{0xff, 0x80}, nSkip: 8, want: false}, // stop bit in second byte
		{in: []byte{0xff, 0x80}, nSkip: 0, want: true},
		{in: []byte{}, nSkip: 0, want: false},
	}

	for i, test := range tests {
		r := NewBytes(test.in)
		if test.nSkip != 0 {
			if err := r.SkipBits(test.nSkip); err != nil {
				t.Fatalf("did not expect error: %v for test: %d", err, i)
			}
		}
		if got := r.MoreRBSPData(); got != test.want {
			t.Errorf("did not get expected result for test: %d\nGot: %v\nWant: %v\n", i, got, test.want)
		}
	}
}
