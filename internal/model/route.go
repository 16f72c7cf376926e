package model

// Route is an ordered sequence of stops.
//
// Fields:
//  ID   – primary key identifier.
//  Name – display name, e.g. "Bogota - Tunja".
type Route struct {
	ID   uint64 // routes.id
	Name string // routes.name
}

// Stop is a single stop on a route. Ordinals are strictly increasing along
// the route and are the coordinates of every Segment.
type Stop struct {
	ID      uint64 `json:"id"`       // stops.id
	RouteID uint64 `json:"route_id"` // stops.route_id
	Name    string `json:"name"`     // stops.name
	Ordinal int    `json:"ordinal"`  // stops.ordinal
}
