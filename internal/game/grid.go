package game

import (
	"strconv"
	"time"
)

// blackSquare is the solution marker for a cell players cannot fill.
const blackSquare = "."

// buildGame constructs the puzzle instance for a create event: grid cells
// with standard crossword numbering, each cell cross-referenced to the clue
// numbers of its across and down words, clue text keyed by those numbers,
// and circled cells.
func buildGame(params CreateParams, now time.Time) *Game {
	grid := buildGrid(params.Solution)
	clues := assignClues(grid, params.Across, params.Down)
	circles := parseCircles(params.Circles, grid)
	markCircles(grid, circles)

	return &Game{
		Grid:               grid,
		Solution:           params.Solution,
		TeamGrids:          make(map[string][][]Cell),
		TeamClueVisibility: make(map[string]*ClueVisibility),
		Clues:              clues,
		Circles:            circles,
		Info:               params.Info,
		Clock:              Clock{StartedAt: now, Paused: true},
	}
}

// buildGrid numbers the grid and records each cell's parent clues. A cell
// receives a number when it starts an across word (left edge or black square
// to the left, with a white cell to the right) or a down word (top edge or
// black square above, with a white cell below).
func buildGrid(solution [][]string) [][]Cell {
	grid := make([][]Cell, len(solution))
	for r := range solution {
		grid[r] = make([]Cell, len(solution[r]))
	}

	number := 0
	for r := range solution {
		for c := range solution[r] {
			if solution[r][c] == blackSquare {
				grid[r][c].Black = true
				continue
			}
			startsAcross := startsWord(solution, r, c, 0, 1)
			startsDown := startsWord(solution, r, c, 1, 0)
			if startsAcross || startsDown {
				number++
			}
			if startsAcross {
				fillParents(grid, solution, r, c, 0, 1, number)
			}
			if startsDown {
				fillParents(grid, solution, r, c, 1, 0, number)
			}
		}
	}
	return grid
}

// startsWord reports whether the white cell at (r,c) begins a word running in
// direction (dr,dc): no white cell behind it and at least one ahead.
func startsWord(solution [][]string, r, c, dr, dc int) bool {
	if white(solution, r-dr, c-dc) {
		return false
	}
	return white(solution, r+dr, c+dc)
}

func white(solution [][]string, r, c int) bool {
	if r < 0 || r >= len(solution) || c < 0 || c >= len(solution[r]) {
		return false
	}
	return solution[r][c] != blackSquare
}

// fillParents walks the word starting at (r,c) and stamps the clue number on
// every cell it covers.
func fillParents(grid [][]Cell, solution [][]string, r, c, dr, dc, number int) {
	for white(solution, r, c) {
		if dc == 1 {
			grid[r][c].Parents.Across = number
		} else {
			grid[r][c].Parents.Down = number
		}
		r += dr
		c += dc
	}
}

// assignClues pairs clue text with the computed numbers, in reading order.
func assignClues(grid [][]Cell, across, down []string) *Clues {
	clues := &Clues{
		Across: make(map[int]string),
		Down:   make(map[int]string),
	}
	ai, di := 0, 0
	for r := range grid {
		for c := range grid[r] {
			cell := grid[r][c]
			if cell.Black {
				continue
			}
			if cell.Parents.Across != 0 && startCell(grid, r, c, 0, 1) && ai < len(across) {
				clues.Across[cell.Parents.Across] = across[ai]
				ai++
			}
			if cell.Parents.Down != 0 && startCell(grid, r, c, 1, 0) && di < len(down) {
				clues.Down[cell.Parents.Down] = down[di]
				di++
			}
		}
	}
	return clues
}

// startCell reports whether (r,c) is the first cell of its word in direction
// (dr,dc).
func startCell(grid [][]Cell, r, c, dr, dc int) bool {
	pr, pc := r-dr, c-dc
	if pr < 0 || pc < 0 || pr >= len(grid) || pc >= len(grid[pr]) {
		return true
	}
	return grid[pr][pc].Black
}

// parseCircles converts string cell indices to ints, dropping entries that
// do not parse or fall outside the grid. Unparseable entries are discarded
// rather than aliased to cell 0.
func parseCircles(raw []string, grid [][]Cell) []int {
	total := 0
	for _, row := range grid {
		total += len(row)
	}
	var circles []int
	for _, entry := range raw {
		idx, err := strconv.Atoi(entry)
		if err != nil || idx < 0 || idx >= total {
			continue
		}
		circles = append(circles, idx)
	}
	return circles
}

// markCircles flags the circled cells on the grid. Indices are row-major.
func markCircles(grid [][]Cell, circles []int) {
	if len(grid) == 0 || len(grid[0]) == 0 {
		return
	}
	cols := len(grid[0])
	for _, idx := range circles {
		r, c := idx/cols, idx%cols
		if r < len(grid) && c < len(grid[r]) {
			grid[r][c].Circled = true
		}
	}
}

// teamGrid returns the grid for a team, lazily seeding it from the blank
// shared layout the first time the team touches the puzzle. The returned
// grid is the stored slice; callers clone before writing.
func (g *Game) teamGrid(teamID string) [][]Cell {
	if tg, ok := g.TeamGrids[teamID]; ok {
		return tg
	}
	return blankGridFrom(g.Grid)
}

// blankGridFrom copies the structural fields of the shared grid (black
// squares, circles, parents) without any player progress.
func blankGridFrom(grid [][]Cell) [][]Cell {
	blank := make([][]Cell, len(grid))
	for r, row := range grid {
		blank[r] = make([]Cell, len(row))
		for c, cell := range row {
			blank[r][c] = Cell{
				Black:   cell.Black,
				Circled: cell.Circled,
				Parents: cell.Parents,
			}
		}
	}
	return blank
}
