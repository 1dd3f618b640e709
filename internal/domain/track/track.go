// Package track provides the Track domain entity.
package track

import (
	"github.com/cockroachdb/errors"
	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// Track represents a playable item descriptor.
// Identity is ID: two tracks with equal ID are the same logical item
// even if other fields differ. Duplicates of the same ID may appear in
// a queue.
type Track struct {
	ID       string         `json:"id" validate:"required"`    // Unique within a queue
	Src      string         `json:"src" validate:"required"`   // Source locator (file path or URI)
	Title    string         `json:"title" validate:"required"` // Track title
	Artist   string         `json:"artist,omitempty"`          // Artist name (optional)
	Artwork  string         `json:"artwork,omitempty"`         // Artwork URI (optional)
	Duration float64        `json:"duration,omitempty"`        // Duration in seconds (optional)
	Extra    map[string]any `json:"extra,omitempty"`           // Extension fields
}

// Validate checks that the required fields (ID, Src, non-empty Title)
// are present.
func (t Track) Validate() error {
	if err := validate.Struct(t); err != nil {
		return errors.Wrapf(err, "invalid track %q", t.ID)
	}
	return nil
}

// Clone returns a deep copy of the track, including extension fields.
func (t Track) Clone() Track {
	c := t
	if t.Extra != nil {
		c.Extra = make(map[string]any, len(t.Extra))
		for k, v := range t.Extra {
			c.Extra[k] = v
		}
	}
	return c
}

// Simplified returns a copy stripped down to the persisted fields
// (id, src, title, artist, artwork). Extension fields and duration are
// dropped to bound storage size.
func (t Track) Simplified() Track {
	return Track{
		ID:      t.ID,
		Src:     t.Src,
		Title:   t.Title,
		Artist:  t.Artist,
		Artwork: t.Artwork,
	}
}
