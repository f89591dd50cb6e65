/*
DESCRIPTION
  paramset.go provides the fixed-capacity parameter set store consulted by
  the slice decoder.

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

// Parameter set table capacities.
const (
	maxSPS = 32
	maxPPS = 256
)

// Errors returned on parameter set reference misses.
var (
	ErrSPSMiss = errors.New("reference to sequence parameter set never received")
	ErrPPSMiss = errors.New("reference to picture parameter set never received")
)

// paramSetStore holds parameter sets keyed by their ids. A later set with
// the same id overwrites the earlier one and takes effect for all
// subsequent slices.
type paramSetStore struct {
	sps [maxSPS]*SPS
	pps [maxPPS]*PPS
}

func (s *paramSetStore) putSPS(p *SPS) { s.sps[p.ID] = p }

func (s *paramSetStore) putPPS(p *PPS) { s.pps[p.ID] = p }

// SPS returns the stored sequence parameter set with the given id.
func (s *paramSetStore) SPS(id uint32) (*SPS, error) {
	if id >= maxSPS || s.sps[id] == nil {
		return nil, errors.Wrapf(ErrSPSMiss, "id %d", id)
	}
	return s.sps[id], nil
}

// PPS returns the stored picture parameter set with the given id.
func (s *paramSetStore) PPS(id uint32) (*PPS, error) {
	if id >= maxPPS || s.pps[id] == nil {
		return nil, errors.Wrapf(ErrPPSMiss, "id %d", id)
	}
	return s.pps[id], nil
}
