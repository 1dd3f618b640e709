// Package persist builds, validates and stores the versioned player
// snapshot, debouncing high-frequency writes.
package persist

import (
	"math"

	"github.com/osa030/phonobox/internal/app/queue"
	"github.com/osa030/phonobox/internal/domain/track"
)

// SchemaVersion is pinned; a stored snapshot with any other version is
// discarded in full and the store entry cleared.
const SchemaVersion = "1"

// PersistedTrack is the simplified track shape kept in the snapshot.
// Extension fields are dropped to bound storage size.
type PersistedTrack struct {
	ID      string `json:"id" mapstructure:"id"`
	Src     string `json:"src" mapstructure:"src"`
	Title   string `json:"title" mapstructure:"title"`
	Artist  string `json:"artist,omitempty" mapstructure:"artist"`
	Artwork string `json:"artwork,omitempty" mapstructure:"artwork"`
}

// Track converts the persisted shape back to the domain entity.
func (p PersistedTrack) Track() track.Track {
	return track.Track{
		ID:      p.ID,
		Src:     p.Src,
		Title:   p.Title,
		Artist:  p.Artist,
		Artwork: p.Artwork,
	}
}

// FromTrack converts a domain track to its persisted shape.
func FromTrack(t track.Track) PersistedTrack {
	s := t.Simplified()
	return PersistedTrack{
		ID:      s.ID,
		Src:     s.Src,
		Title:   s.Title,
		Artist:  s.Artist,
		Artwork: s.Artwork,
	}
}

// Snapshot is the versioned persisted state.
type Snapshot struct {
	Version           string           `json:"version" mapstructure:"version"`
	CurrentTrackID    string           `json:"currentTrackId" mapstructure:"currentTrackId"`
	CurrentTime       float64          `json:"currentTime" mapstructure:"currentTime"`
	Volume            float64          `json:"volume" mapstructure:"volume"`
	PlaybackRate      float64          `json:"playbackRate" mapstructure:"playbackRate"`
	RepeatMode        string           `json:"repeatMode" mapstructure:"repeatMode"`
	IsShuffling       bool             `json:"isShuffling" mapstructure:"isShuffling"`
	Queue             []PersistedTrack `json:"queue" mapstructure:"queue"`
	CurrentQueueIndex int              `json:"currentQueueIndex" mapstructure:"currentQueueIndex"`
}

// Defaults supplies the fallback values used for snapshot fields that
// fail validation on load.
type Defaults struct {
	Volume       float64
	PlaybackRate float64
	RepeatMode   queue.RepeatMode
}

// sanitize applies per-field validation: out-of-range fields fall back
// to defaults individually, invalid queue entries are dropped
// individually, and the rest of the snapshot is kept.
func (s *Snapshot) sanitize(def Defaults) {
	if math.IsNaN(s.Volume) || math.IsInf(s.Volume, 0) || s.Volume < 0 || s.Volume > 1 {
		s.Volume = def.Volume
	}
	if math.IsNaN(s.PlaybackRate) || math.IsInf(s.PlaybackRate, 0) || s.PlaybackRate <= 0 {
		s.PlaybackRate = def.PlaybackRate
	}
	if _, err := queue.ParseRepeatMode(s.RepeatMode); err != nil {
		s.RepeatMode = def.RepeatMode.String()
	}

	kept := s.Queue[:0]
	for _, p := range s.Queue {
		if p.ID == "" || p.Src == "" || p.Title == "" {
			continue
		}
		kept = append(kept, p)
	}
	s.Queue = kept

	if s.CurrentQueueIndex < -1 || s.CurrentQueueIndex >= len(s.Queue) {
		s.CurrentQueueIndex = -1
	}
	if math.IsNaN(s.CurrentTime) || s.CurrentTime < 0 {
		s.CurrentTime = 0
	}
}
