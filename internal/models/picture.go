// internal/models/picture.go
package models

// Point is a single coordinate on the canvas.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Stroke is one continuous pen stroke within a segment.
type Stroke struct {
	Size   float64 `json:"size"`
	Points []Point `json:"points"`
}

// Segment is one horizontal slice of a picture, drawn by exactly one
// artist per game. ArtistID is nil until the segment is actively being
// drawn or has been locked at advancement.
type Segment struct {
	ArtistID *string  `json:"artistId"`
	Strokes  []Stroke `json:"strokes"`
}

// Picture is the full drawing belonging to one owner. It always has
// exactly settings.Segments slots and outlives its owner's connection.
type Picture struct {
	OwnerID  string    `json:"ownerId"`
	Segments []Segment `json:"segments"`
}

// NewPicture builds an empty picture with the given number of segment slots.
func NewPicture(ownerID string, segments int) *Picture {
	pic := &Picture{
		OwnerID:  ownerID,
		Segments: make([]Segment, segments),
	}
	for i := range pic.Segments {
		pic.Segments[i] = Segment{Strokes: []Stroke{}}
	}
	return pic
}

// Resize grows or shrinks the segment slots to n, preserving existing
// entries by index and padding new slots with empty segments.
func (p *Picture) Resize(n int) {
	resized := make([]Segment, n)
	for i := range resized {
		if i < len(p.Segments) {
			resized[i] = p.Segments[i]
		} else {
			resized[i] = Segment{Strokes: []Stroke{}}
		}
	}
	p.Segments = resized
}
