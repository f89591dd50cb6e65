/*
DESCRIPTION
  helpers_test.go provides utilities for building bitstreams in tests.

AUTHORS
  Saxon A. Nelson-Milton <saxon@ausocean.org>

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

package h264dec

import "errors"

// binToSlice converts a string of binary into the corresponding byte
// slice, e.g. "0100 0001 1000 1100" => {0x41,0x8c}. Spaces are ignored
// and the final byte is zero padded.
func binToSlice(s string) ([]byte, error) {
	var (
		cur   byte
		mask  byte = 0x80
		bytes []byte
	)

	for _, c := range s {
		switch c {
		case ' ':
			continue
		case '1':
			cur |= mask
		case '0':
		default:
			return nil, errors.New("invalid binary string")
		}

		mask >>= 1
		if mask == 0 {
			bytes = append(bytes, cur)
			cur = 0
			mask = 0x80
		}
	}
	if mask != 0x80 {
		bytes = append(bytes, cur)
	}
	return bytes, nil
}
