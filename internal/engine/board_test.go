package engine

import (
	"encoding/json"
	"testing"
)

func calledSet(ns ...int) map[int]bool {
	m := make(map[int]bool, len(ns))
	for _, n := range ns {
		m[n] = true
	}
	return m
}

func TestPatternWins(t *testing.T) {
	b := offsetBoard(0)
	// 1  2  3  4  5
	// 6  7  8  9  10
	// 11 12 F  14 15
	// 16 17 18 19 20
	// 21 22 23 24 25

	cases := []struct {
		name     string
		pattern  Pattern
		called   map[int]bool
		required int
		want     bool
	}{
		{name: "center row with free wins line", pattern: PatternLine, called: calledSet(11, 12, 14, 15), want: true},
		{name: "center column with free wins line", pattern: PatternLine, called: calledSet(3, 8, 18, 23), want: true},
		{name: "partial row does not win line", pattern: PatternLine, called: calledSet(11, 12, 14), want: false},
		{name: "diagonal does not count as line", pattern: PatternLine, called: calledSet(1, 7, 19, 25), want: false},
		{name: "all corners", pattern: PatternCorners, called: calledSet(1, 5, 21, 25), want: true},
		{name: "missing one corner", pattern: PatternCorners, called: calledSet(1, 5, 21), want: false},
		{name: "main diagonal", pattern: PatternDiagonal, called: calledSet(1, 7, 19, 25), want: true},
		{name: "anti diagonal", pattern: PatternDiagonal, called: calledSet(5, 9, 17, 21), want: true},
		{name: "row is not a diagonal", pattern: PatternDiagonal, called: calledSet(1, 2, 3, 4, 5), want: false},
		{
			name: "full board", pattern: PatternFull,
			called: calledSet(1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 14, 15, 16, 17, 18, 19, 20, 21, 22, 23, 24, 25),
			want:   true,
		},
		{
			name: "full board missing one", pattern: PatternFull,
			called: calledSet(1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 14, 15, 16, 17, 18, 19, 20, 21, 22, 23, 24),
			want:   false,
		},
		{name: "two lines meet threshold of two", pattern: PatternLines, called: calledSet(1, 2, 3, 4, 5, 6, 11, 16, 21), required: 2, want: true},
		{name: "default threshold needs five", pattern: PatternLines, called: calledSet(1, 2, 3, 4, 5, 6, 11, 16, 21), want: false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.pattern.Wins(b, tc.called, tc.required); got != tc.want {
				t.Fatalf("Wins: got %v, want %v", got, tc.want)
			}
		})
	}
}

func TestCompletedLines(t *testing.T) {
	b := offsetBoard(0)

	if got := CompletedLines(b, calledSet()); got != 0 {
		t.Fatalf("empty history: got %d lines", got)
	}
	// Row 0, column 0 and the main diagonal (FREE in the middle).
	if got := CompletedLines(b, calledSet(1, 2, 3, 4, 5, 6, 11, 16, 21, 7, 19, 25)); got != 3 {
		t.Fatalf("got %d lines, want 3", got)
	}
}

func TestRandomBoard(t *testing.T) {
	cases := []struct {
		name  string
		r     NumberRange
		bands bool
	}{
		{name: "classic 1-75", r: NumberRange{Min: 1, Max: 75}, bands: true},
		{name: "compact 1-25", r: NumberRange{Min: 1, Max: 25}, bands: true},
		{name: "uneven 1-32", r: NumberRange{Min: 1, Max: 32}, bands: false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			for i := 0; i < 50; i++ {
				b, err := RandomBoard(tc.r)
				if err != nil {
					t.Fatalf("RandomBoard: %v", err)
				}
				if err := b.Validate(tc.r); err != nil {
					t.Fatalf("invalid board: %v", err)
				}
				if !b[center][center].IsFree() {
					t.Fatalf("center is not FREE")
				}
				if !tc.bands {
					continue
				}
				band := tc.r.Span() / BoardSize
				for row := range b {
					for col, cell := range b[row] {
						if cell.IsFree() {
							continue
						}
						lo := tc.r.Min + col*band
						if cell.Number < lo || cell.Number >= lo+band {
							t.Fatalf("cell %d,%d = %d outside column band %d-%d", row, col, cell.Number, lo, lo+band-1)
						}
					}
				}
			}
		})
	}

	if _, err := RandomBoard(NumberRange{Min: 1, Max: 10}); err == nil {
		t.Fatalf("expected error for a range that cannot fill a board")
	}
}

func TestBoardValidate(t *testing.T) {
	r := NumberRange{Min: 1, Max: 75}

	dup := offsetBoard(0)
	dup[0][1] = Num(1)
	if err := dup.Validate(r); err == nil {
		t.Fatalf("duplicate number accepted")
	}

	twoFree := offsetBoard(0)
	twoFree[0][0] = Free()
	if err := twoFree.Validate(r); err == nil {
		t.Fatalf("second FREE cell accepted")
	}

	outside := offsetBoard(60)
	if err := outside.Validate(r); err == nil {
		t.Fatalf("out of range number accepted")
	}
}

func TestCellJSON(t *testing.T) {
	row := []Cell{Num(4), Free(), Num(75)}
	data, err := json.Marshal(row)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(data) != `[4,"FREE",75]` {
		t.Fatalf("unexpected encoding %s", data)
	}

	var back []Cell
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if back[1] != Free() || back[2] != Num(75) {
		t.Fatalf("decoded %+v", back)
	}

	var bad Cell
	if err := json.Unmarshal([]byte(`"BLANK"`), &bad); err == nil {
		t.Fatalf("unknown sentinel accepted")
	}
}
