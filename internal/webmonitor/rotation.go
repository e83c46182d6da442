package webmonitor

import (
	"sync/atomic"

	"github.com/dj-oyu/rdk-x5_smart-pet-camera/diff-monitor/pkg/types"
)

// RotationState is the display rotation shared between the HTTP API and the
// analysis worker. It implements processor.RotationSource.
type RotationState struct {
	v atomic.Int32
}

// NewRotationState creates a state holding r.
func NewRotationState(r types.Rotation) *RotationState {
	s := &RotationState{}
	s.Set(r)
	return s
}

// Rotation returns the current rotation.
func (s *RotationState) Rotation() types.Rotation {
	return types.Rotation(s.v.Load())
}

// Set changes the rotation.
func (s *RotationState) Set(r types.Rotation) {
	s.v.Store(int32(r))
}
