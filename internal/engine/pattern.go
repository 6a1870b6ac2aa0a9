package engine

import "strings"

type Pattern string

const (
	PatternLine     Pattern = "line"     // any full row or column
	PatternFull     Pattern = "full"     // every cell
	PatternCorners  Pattern = "corners"  // the four corners
	PatternDiagonal Pattern = "diagonal" // either diagonal
	PatternLines    Pattern = "lines"    // RequiredLines of the 12 rows, columns and diagonals
)

const DefaultRequiredLines = 5

func ParsePattern(s string) (Pattern, error) {
	switch p := Pattern(strings.ToLower(strings.TrimSpace(s))); p {
	case PatternLine, PatternFull, PatternCorners, PatternDiagonal, PatternLines:
		return p, nil
	default:
		return "", ErrInvalidPattern
	}
}

type pos struct{ row, col int }

// allLines holds the five rows, five columns, then the main and anti diagonal.
var allLines = func() [][]pos {
	lines := make([][]pos, 0, 2*BoardSize+2)
	for r := 0; r < BoardSize; r++ {
		line := make([]pos, BoardSize)
		for c := range line {
			line[c] = pos{r, c}
		}
		lines = append(lines, line)
	}
	for c := 0; c < BoardSize; c++ {
		line := make([]pos, BoardSize)
		for r := range line {
			line[r] = pos{r, c}
		}
		lines = append(lines, line)
	}
	diag := make([]pos, BoardSize)
	anti := make([]pos, BoardSize)
	for i := 0; i < BoardSize; i++ {
		diag[i] = pos{i, i}
		anti[i] = pos{i, BoardSize - 1 - i}
	}
	return append(lines, diag, anti)
}()

var corners = []pos{{0, 0}, {0, BoardSize - 1}, {BoardSize - 1, 0}, {BoardSize - 1, BoardSize - 1}}

func covered(b Board, called map[int]bool, cells []pos) bool {
	for _, p := range cells {
		if !b[p.row][p.col].Covered(called) {
			return false
		}
	}
	return true
}

func anyCovered(b Board, called map[int]bool, lines [][]pos) bool {
	for _, line := range lines {
		if covered(b, called, line) {
			return true
		}
	}
	return false
}

// CompletedLines counts the rows, columns and diagonals of b covered by called.
func CompletedLines(b Board, called map[int]bool) int {
	n := 0
	for _, line := range allLines {
		if covered(b, called, line) {
			n++
		}
	}
	return n
}

// Wins reports whether b satisfies the pattern given the called numbers.
func (p Pattern) Wins(b Board, called map[int]bool, requiredLines int) bool {
	switch p {
	case PatternLine:
		return anyCovered(b, called, allLines[:2*BoardSize])
	case PatternDiagonal:
		return anyCovered(b, called, allLines[2*BoardSize:])
	case PatternCorners:
		return covered(b, called, corners)
	case PatternFull:
		for _, row := range allLines[:BoardSize] {
			if !covered(b, called, row) {
				return false
			}
		}
		return true
	case PatternLines:
		if requiredLines <= 0 {
			requiredLines = DefaultRequiredLines
		}
		return CompletedLines(b, called) >= requiredLines
	default:
		return false
	}
}
