package model

// Bus is a physical vehicle with a fixed set of seats.
type Bus struct {
	ID       uint64 // buses.id
	Plate    string // buses.plate
	Capacity int    // buses.capacity; nominal number of seats
}

// Seat belongs to a bus and is identified by its seat number, which is
// unique per bus.
type Seat struct {
	BusID      uint64 // seats.bus_id
	SeatNumber string // seats.seat_number
}
