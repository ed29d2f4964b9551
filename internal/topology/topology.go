// Package topology caches the library's room/floor/seat layout: which seats
// exist, under which display names, and their internal booking ids.
package topology

// Floor holds one floor's bookable seats, keyed by seat display number, plus
// the floor's own internal id. The JSON field names match the on-disk mirror.
type Floor struct {
	Seats   map[string]int64 `json:"seats"`
	SpaceID int64            `json:"seat_id"`
}

// Room maps floor display names to floors.
type Room map[string]Floor

// Topology maps room display names to rooms.
type Topology map[string]Room

// Seat returns the seat id for a seat number on a named room/floor, or zero
// when any level of the lookup is absent.
func (t Topology) Seat(room, floor, seatNumber string) int64 {
	f, ok := t[room][floor]
	if !ok {
		return 0
	}
	return f.Seats[seatNumber]
}
