/*
DESCRIPTION
  cavlc.go provides context-adaptive variable-length decoding of residual
  coefficient blocks.

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

import (
	"github.com/pkg/errors"

	"github.com/ausocean/thumb/bits"
)

// Errors from residual parsing.
var (
	errBadToken   = errors.New("no matching code in VLC table")
	errInvalidNC  = errors.New("invalid value of nC")
	errLevelRange = errors.New("level run placement out of block range")
)

// The longest code in any of the residual tables.
const maxVLCBits = 16

// readVLC reads bits one at a time until lookup reports a match, up to
// maxVLCBits.
func readVLC(br *bits.Reader, lookup func(n int, v uint16) (int, bool)) (int, error) {
	var v uint32
	for n := 1; n <= maxVLCBits; n++ {
		b, err := br.ReadBits(1)
		if err != nil {
			return 0, err
		}
		v = v<<1 | b
		if sym, ok := lookup(n, uint16(v)); ok {
			return sym, nil
		}
	}
	return 0, errBadToken
}

// lookupTokenTab finds a (TotalCoeff, TrailingOnes) pair in a coeff_token
// table by code length and value. The pair is packed as TotalCoeff*4 +
// TrailingOnes.
func lookupTokenTab(tab *[17][4]vlc) func(n int, v uint16) (int, bool) {
	return func(n int, v uint16) (int, bool) {
		for tc := range tab {
			for t1 := 0; t1 <= mini(tc, 3); t1++ {
				c := tab[tc][t1]
				if int(c.n) == n && c.bits == v {
					return tc*4 + t1, true
				}
			}
		}
		return 0, false
	}
}

// readCoeffToken parses coeff_token for the given nC, returning TotalCoeff
// and TrailingOnes. nC of -1 selects the chroma DC table; 8 or more
// selects the fixed-length code space.
func readCoeffToken(br *bits.Reader, nC int) (totalCoeff, trailingOnes int, err error) {
	switch {
	case nC >= 8:
		v, err := br.ReadBits(6)
		if err != nil {
			return 0, 0, err
		}
		if v == 3 {
			return 0, 0, nil
		}
		return int(v)/4 + 1, int(v) % 4, nil

	case nC >= 0:
		band := 0
		switch {
		case nC >= 4:
			band = 2
		case nC >= 2:
			band = 1
		}
		sym, err := readVLC(br, lookupTokenTab(&coeffTokenTab[band]))
		if err != nil {
			return 0, 0, err
		}
		return sym / 4, sym % 4, nil

	case nC == -1:
		sym, err := readVLC(br, func(n int, v uint16) (int, bool) {
			for tc := range chromaDCCoeffTokenTab {
				for t1 := 0; t1 <= mini(tc, 3); t1++ {
					c := chromaDCCoeffTokenTab[tc][t1]
					if c.n != 0 || (tc == 0 && t1 == 0) {
						if int(c.n) == n && c.bits == v {
							return tc*4 + t1, true
						}
					}
				}
			}
			return 0, false
		})
		if err != nil {
			return 0, 0, err
		}
		return sym / 4, sym % 4, nil
	}
	return 0, 0, errInvalidNC
}

// readLevelPrefix counts the zero bits before the next one bit.
func readLevelPrefix(br *bits.Reader) (int, error) {
	zeros := 0
	for {
		b, err := br.ReadBits(1)
		if err != nil {
			return 0, err
		}
		if b == 1 {
			return zeros, nil
		}
		zeros++
		if zeros > 46 {
			return 0, errors.New("level_prefix too long")
		}
	}
}

// readLevels parses the trailing one signs and the remaining level values,
// with the suffix length adapting to the magnitudes seen so far.
func readLevels(br *bits.Reader, totalCoeff, trailingOnes int) ([]int32, error) {
	levels := make([]int32, 0, totalCoeff)
	for i := 0; i < trailingOnes; i++ {
		b, err := br.ReadBits(1)
		if err != nil {
			return nil, errors.Wrap(err, "could not read trailing_ones_sign_flag")
		}
		levels = append(levels, 1-int32(b)*2)
	}

	suffixLen := 0
	if totalCoeff > 10 && trailingOnes < 3 {
		suffixLen = 1
	}

	for i := trailingOnes; i < totalCoeff; i++ {
		levelPrefix, err := readLevelPrefix(br)
		if err != nil {
			return nil, errors.Wrap(err, "could not parse level_prefix")
		}

		levelSuffixSize := suffixLen
		switch {
		case levelPrefix == 14 && suffixLen == 0:
			levelSuffixSize = 4
		case levelPrefix >= 15:
			levelSuffixSize = levelPrefix - 3
		}

		var levelSuffix int
		if levelSuffixSize > 0 {
			b, err := br.ReadBits(levelSuffixSize)
			if err != nil {
				return nil, errors.Wrap(err, "could not parse level_suffix")
			}
			levelSuffix = int(b)
		}

		levelCode := mini(15, levelPrefix)<<uint(suffixLen) + levelSuffix
		if levelPrefix >= 15 && suffixLen == 0 {
			levelCode += 15
		}
		if levelPrefix >= 16 {
			levelCode += 1<<uint(levelPrefix-3) - 4096
		}
		if i == trailingOnes && trailingOnes < 3 {
			levelCode += 2
		}

		var level int32
		if levelCode%2 == 0 {
			level = int32((levelCode + 2) >> 1)
		} else {
			level = int32((-levelCode - 1) >> 1)
		}
		levels = append(levels, level)

		if suffixLen == 0 {
			suffixLen = 1
		}
		if absi(int(level)) > 3<<uint(suffixLen-1) && suffixLen < 6 {
			suffixLen++
		}
	}
	return levels, nil
}

// readTotalZeros parses total_zeros for a block with the given maximum
// coefficient count.
func readTotalZeros(br *bits.Reader, totalCoeff, maxCoeff int) (int, error) {
	if maxCoeff == 4 {
		tab := &chromaDCTotalZerosTab[totalCoeff-1]
		return readVLC(br, func(n int, v uint16) (int, bool) {
			for tz := 0; tz < 4-totalCoeff+1; tz++ {
				if int(tab[tz].n) == n && tab[tz].bits == v {
					return tz, true
				}
			}
			return 0, false
		})
	}

	tab := &totalZerosTab[totalCoeff-1]
	return readVLC(br, func(n int, v uint16) (int, bool) {
		for tz := 0; tz < 16-totalCoeff+1; tz++ {
			if int(tab[tz].n) == n && tab[tz].bits == v {
				return tz, true
			}
		}
		return 0, false
	})
}

// readRunBefore parses one run_before for the given zeros remaining.
func readRunBefore(br *bits.Reader, zerosLeft int) (int, error) {
	tab := &runBeforeTab[mini(zerosLeft, 7)-1]
	return readVLC(br, func(n int, v uint16) (int, bool) {
		for run := range tab {
			if tab[run].n == 0 {
				continue
			}
			if int(tab[run].n) == n && tab[run].bits == v {
				return run, true
			}
		}
		return 0, false
	})
}

// residualBlock parses one CAVLC-coded residual block into coeff, filling
// scan positions startIdx onward, and returns the block's TotalCoeff. The
// caller supplies nC derived from the neighbouring blocks, or -1 for a
// chroma DC block.
func residualBlock(br *bits.Reader, coeff []int32, startIdx, maxCoeff, nC int) (int, error) {
	totalCoeff, trailingOnes, err := readCoeffToken(br, nC)
	if err != nil {
		return 0, errors.Wrap(err, "could not parse coeff_token")
	}
	if totalCoeff == 0 {
		return 0, nil
	}
	if totalCoeff > maxCoeff {
		return 0, errors.Errorf("TotalCoeff %d exceeds block size %d", totalCoeff, maxCoeff)
	}

	levels, err := readLevels(br, totalCoeff, trailingOnes)
	if err != nil {
		return 0, err
	}

	totalZeros := 0
	if totalCoeff < maxCoeff {
		totalZeros, err = readTotalZeros(br, totalCoeff, maxCoeff)
		if err != nil {
			return 0, errors.Wrap(err, "could not parse total_zeros")
		}
	}

	runs := make([]int, totalCoeff)
	zerosLeft := totalZeros
	for i := 0; i < totalCoeff-1; i++ {
		if zerosLeft > 0 {
			runs[i], err = readRunBefore(br, zerosLeft)
			if err != nil {
				return 0, errors.Wrap(err, "could not parse run_before")
			}
			zerosLeft -= runs[i]
		}
	}
	runs[totalCoeff-1] = zerosLeft

	// Walk up from the low-frequency end placing the levels, which were
	// parsed from the high-frequency end.
	pos := -1
	for i := totalCoeff - 1; i >= 0; i-- {
		pos += runs[i] + 1
		if startIdx+pos >= startIdx+maxCoeff || startIdx+pos >= len(coeff) {
			return 0, errLevelRange
		}
		coeff[startIdx+pos] = levels[i]
	}
	return totalCoeff, nil
}
