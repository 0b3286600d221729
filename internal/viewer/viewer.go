// Package viewer tracks the zoom and alignment of a custom-rendered preview
// session so that live re-renders keep the user's view steady.
package viewer

import (
	"math"
	"strconv"
	"sync"
)

const (
	MinZoom     = 0.1
	MaxZoom     = 5.0
	DefaultZoom = 1.5

	// Origin is the transform origin used for every scaled artifact.
	Origin = "top center"
)

// Alignment is the text alignment of the output region.
type Alignment string

const (
	AlignCenter Alignment = "center"
	AlignLeft   Alignment = "left"
)

// Snapshot is an immutable copy of a State.
type Snapshot struct {
	Zoom  float64
	Align Alignment
}

// Transform returns the CSS transform for the snapshot's zoom.
func (s Snapshot) Transform() string {
	return "scale(" + strconv.FormatFloat(s.Zoom, 'f', -1, 64) + ")"
}

// State is the viewer state attached to the active preview session.
type State struct {
	mu          sync.Mutex
	zoom        float64
	align       Alignment
	defaultZoom float64
	touched     bool
}

// New returns a State whose first-render zoom is defaultZoom. A
// non-positive value selects DefaultZoom.
func New(defaultZoom float64) *State {
	if defaultZoom <= 0 {
		defaultZoom = DefaultZoom
	}
	defaultZoom = Clamp(defaultZoom)
	return &State{
		zoom:        defaultZoom,
		align:       AlignFor(defaultZoom),
		defaultZoom: defaultZoom,
	}
}

// Clamp limits z to [MinZoom, MaxZoom]. NaN maps to 1.
func Clamp(z float64) float64 {
	if math.IsNaN(z) {
		return 1
	}
	return math.Min(MaxZoom, math.Max(MinZoom, z))
}

// AlignFor centers unity zoom and left-aligns anything else so an oversized
// artifact can be scrolled.
func AlignFor(z float64) Alignment {
	if z == 1 {
		return AlignCenter
	}
	return AlignLeft
}

// Snapshot returns the current zoom and alignment.
func (s *State) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Snapshot{Zoom: s.zoom, Align: s.align}
}

// Zoom returns the current zoom factor.
func (s *State) Zoom() float64 {
	return s.Snapshot().Zoom
}

// Touched reports whether the zoom was applied to an artifact since the last
// Reset.
func (s *State) Touched() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.touched
}

// Set stores z after clamping and returns the resulting snapshot.
func (s *State) Set(z float64) Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.set(z)
	return Snapshot{Zoom: s.zoom, Align: s.align}
}

func (s *State) set(z float64) {
	s.zoom = Clamp(z)
	s.align = AlignFor(s.zoom)
	s.touched = true
}

// Adjust multiplies the zoom by factor, clamped to the allowed range.
func (s *State) Adjust(factor float64) Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	if factor <= 0 || math.IsNaN(factor) || math.IsInf(factor, 0) {
		return Snapshot{Zoom: s.zoom, Align: s.align}
	}
	s.set(s.zoom * factor)
	return Snapshot{Zoom: s.zoom, Align: s.align}
}

// FitToWidth sets the zoom that makes an artifact of unscaled width
// artifactWidth fill containerWidth minus padding on both sides.
func (s *State) FitToWidth(artifactWidth, containerWidth, padding float64) Snapshot {
	if artifactWidth <= 0 {
		return s.Snapshot()
	}
	available := containerWidth - 2*padding
	if available <= 0 {
		available = containerWidth
	}
	return s.Set(available / artifactWidth)
}

// Reset restores the handler default and marks the state as a fresh baseline.
func (s *State) Reset() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.zoom = s.defaultZoom
	s.align = AlignFor(s.zoom)
	s.touched = false
	return Snapshot{Zoom: s.zoom, Align: s.align}
}
