/*
DESCRIPTION
  sei.go provides parsing of supplemental enhancement information NAL
  units, retaining the timing-related payloads.

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

import "github.com/pkg/errors"

// SEI payload types of interest.
const (
	seiBufferingPeriod = 0
	seiPicTiming       = 1
	seiUserDataUnreg   = 5
	seiRecoveryPoint   = 6
)

// SEIMessage is one supplemental enhancement information message. The
// payload is kept raw; only the timing payloads influence anything
// downstream and then only informationally.
type SEIMessage struct {
	Type    uint32
	Payload []byte
}

// ErrSEIOverrun is returned when a payload size walks out of the NAL unit.
var ErrSEIOverrun = errors.New("SEI payload size exceeds NAL unit")

// parseSEI parses the messages of an SEI NAL unit RBSP. The type and size
// fields accumulate 0xff bytes, each meaning another 255 to add.
func parseSEI(rbsp []byte) ([]SEIMessage, error) {
	var msgs []SEIMessage
	i := 0

	// The final byte of the RBSP is the trailing stop bit pattern.
	for i < len(rbsp)-1 {
		var typ uint32
		for i < len(rbsp) && rbsp[i] == 0xff {
			typ += 255
			i++
		}
		if i == len(rbsp) {
			return msgs, ErrSEIOverrun
		}
		typ += uint32(rbsp[i])
		i++

		var size int
		for i < len(rbsp) && rbsp[i] == 0xff {
			size += 255
			i++
		}
		if i == len(rbsp) {
			return msgs, ErrSEIOverrun
		}
		size += int(rbsp[i])
		i++

		if i+size > len(rbsp) {
			return msgs, ErrSEIOverrun
		}
		msgs = append(msgs, SEIMessage{Type: typ, Payload: rbsp[i : i+size]})
		i += size
	}
	return msgs, nil
}
