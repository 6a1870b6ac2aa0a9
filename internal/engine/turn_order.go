package engine

import "fmt"

// Seat is a position at the table. The turn pointer is a Seat.
type Seat int

const (
	SeatFirst Seat = iota
	SeatSecond
)

func (s Seat) Other() Seat {
	if s == SeatFirst {
		return SeatSecond
	}
	return SeatFirst
}

func (s Seat) String() string {
	if s == SeatSecond {
		return "second"
	}
	return "first"
}

func (s Seat) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

func (s *Seat) UnmarshalText(text []byte) error {
	switch string(text) {
	case "first":
		*s = SeatFirst
	case "second":
		*s = SeatSecond
	default:
		return fmt.Errorf("unknown seat %q", text)
	}
	return nil
}

// SeatsOf returns the seats held by userID. A solo player holds both.
func (s Session) SeatsOf(userID string) []Seat {
	var seats []Seat
	if userID == "" {
		return seats
	}
	if s.First.ID == userID {
		seats = append(seats, SeatFirst)
	}
	if s.Second.ID == userID {
		seats = append(seats, SeatSecond)
	}
	return seats
}

// HoldsTurn reports whether userID may call the next number.
func (s Session) HoldsTurn(userID string) bool {
	for _, seat := range s.SeatsOf(userID) {
		if seat == s.Turn {
			return true
		}
	}
	return false
}

func (s Session) IsParticipant(userID string) bool { return len(s.SeatsOf(userID)) > 0 }

func (s Session) Participant(seat Seat) Participant {
	if seat == SeatSecond {
		return s.Second
	}
	return s.First
}
