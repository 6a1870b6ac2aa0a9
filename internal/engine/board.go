package engine

import (
	"encoding/json"
	"fmt"
	"math/rand/v2"
)

const (
	BoardSize = 5
	center    = BoardSize / 2
	freeCell  = "FREE"
)

type CellKind uint8

const (
	CellNumber CellKind = iota
	CellFree
)

// Cell is either a number or the FREE sentinel. On the wire a cell is the bare
// number or the string "FREE".
type Cell struct {
	Kind   CellKind
	Number int
}

func Num(n int) Cell { return Cell{Kind: CellNumber, Number: n} }

func Free() Cell { return Cell{Kind: CellFree} }

func (c Cell) IsFree() bool { return c.Kind == CellFree }

// Covered reports whether the cell counts as marked. FREE is always covered.
func (c Cell) Covered(called map[int]bool) bool {
	if c.Kind == CellFree {
		return true
	}
	return called[c.Number]
}

func (c Cell) MarshalJSON() ([]byte, error) {
	if c.Kind == CellFree {
		return json.Marshal(freeCell)
	}
	return json.Marshal(c.Number)
}

func (c *Cell) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		if s != freeCell {
			return fmt.Errorf("cell: unknown sentinel %q", s)
		}
		*c = Free()
		return nil
	}

	var n int
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("cell: %w", err)
	}
	*c = Num(n)
	return nil
}

type Board [BoardSize][BoardSize]Cell

// NumberRange is the inclusive range of callable numbers for a game variant.
type NumberRange struct {
	Min int `json:"min"`
	Max int `json:"max"`
}

func (r NumberRange) Contains(n int) bool { return n >= r.Min && n <= r.Max }

func (r NumberRange) Span() int { return r.Max - r.Min + 1 }

func (r NumberRange) Validate() error {
	if r.Min < 1 {
		return fmt.Errorf("%w: number range must start at 1 or above", ErrInvalidAction)
	}
	if r.Span() < BoardSize*BoardSize-1 {
		return fmt.Errorf("%w: number range %d-%d cannot fill a board", ErrInvalidAction, r.Min, r.Max)
	}
	return nil
}

// Validate checks that the board has a single FREE cell and no repeated or
// out-of-range numbers.
func (b Board) Validate(r NumberRange) error {
	seen := make(map[int]bool, BoardSize*BoardSize)
	free := 0
	for row := range b {
		for col, cell := range b[row] {
			if cell.IsFree() {
				free++
				continue
			}
			if !r.Contains(cell.Number) {
				return fmt.Errorf("%w: cell %d,%d holds %d outside %d-%d", ErrInvalidAction, row, col, cell.Number, r.Min, r.Max)
			}
			if seen[cell.Number] {
				return fmt.Errorf("%w: number %d appears twice", ErrInvalidAction, cell.Number)
			}
			seen[cell.Number] = true
		}
	}
	if free != 1 {
		return fmt.Errorf("%w: board must have exactly one FREE cell, has %d", ErrInvalidAction, free)
	}
	return nil
}

type BoardGenerator func(NumberRange) (Board, error)

// RandomBoard deals a board from r. When the range splits into five column
// bands of at least five numbers each (1-75 gives the classic B/I/N/G/O
// columns) every column draws from its own band; otherwise 24 numbers are
// drawn from the whole range.
func RandomBoard(r NumberRange) (Board, error) {
	if err := r.Validate(); err != nil {
		return Board{}, err
	}

	var b Board
	band := r.Span() / BoardSize
	if r.Span()%BoardSize == 0 && band >= BoardSize {
		for col := 0; col < BoardSize; col++ {
			lo := r.Min + col*band
			picks := rand.Perm(band)
			for row := 0; row < BoardSize; row++ {
				b[row][col] = Num(lo + picks[row])
			}
		}
	} else {
		picks := rand.Perm(r.Span())
		i := 0
		for row := 0; row < BoardSize; row++ {
			for col := 0; col < BoardSize; col++ {
				if row == center && col == center {
					continue
				}
				b[row][col] = Num(r.Min + picks[i])
				i++
			}
		}
	}

	b[center][center] = Free()
	return b, nil
}
