package model

// Segment is a half-open stop-ordinal range [From, To) along a route.
type Segment struct {
	From int `json:"from_ordinal"`
	To   int `json:"to_ordinal"`
}

// Valid reports whether the range is non-empty.
func (s Segment) Valid() bool { return s.From < s.To }

// Overlaps reports whether s and o share at least one leg.
// [a,b) and [c,d) overlap iff a < d and c < b.
func (s Segment) Overlaps(o Segment) bool {
	return s.From < o.To && o.From < s.To
}

// Legs is the number of stop-to-stop legs the segment covers.
func (s Segment) Legs() int {
	if !s.Valid() {
		return 0
	}
	return s.To - s.From
}
