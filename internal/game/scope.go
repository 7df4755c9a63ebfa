package game

import (
	"encoding/json"
	"fmt"
)

// Symbolic scope names resolved against grid geometry.
const (
	// ScopeAll targets every white cell in the grid.
	ScopeAll = "all"
	// ScopeWord targets the across word under the user's cursor.
	ScopeWord = "word"
)

// Scope targets a set of cells, either symbolically ("all", "word") or as an
// explicit coordinate list. In JSON it is a string or an array of {r,c}
// objects.
type Scope struct {
	Name  string
	Cells []Position
}

// UnmarshalJSON accepts `"all"` / `"word"` or `[{"r":0,"c":1}, ...]`.
func (s *Scope) UnmarshalJSON(data []byte) error {
	if len(data) > 0 && data[0] == '"' {
		var name string
		if err := json.Unmarshal(data, &name); err != nil {
			return err
		}
		if name != ScopeAll && name != ScopeWord {
			return fmt.Errorf("unknown scope name %q", name)
		}
		*s = Scope{Name: name}
		return nil
	}
	var cells []Position
	if err := json.Unmarshal(data, &cells); err != nil {
		return err
	}
	*s = Scope{Cells: cells}
	return nil
}

// MarshalJSON is the inverse of UnmarshalJSON.
func (s Scope) MarshalJSON() ([]byte, error) {
	if s.Name != "" {
		return json.Marshal(s.Name)
	}
	if s.Cells == nil {
		return json.Marshal([]Position{})
	}
	return json.Marshal(s.Cells)
}

// IsExplicit reports whether the scope is a literal coordinate list.
func (s Scope) IsExplicit() bool {
	return s.Name == ""
}

// resolve expands the scope into concrete in-bounds white-cell positions.
// Symbolic scopes need the grid; "word" additionally needs the user's cursor
// and resolves to the across word containing it, falling back to the down
// word when the cell has no across parent. An unresolvable scope yields nil.
func (s Scope) resolve(g *Game, cursor *Position) []Position {
	switch {
	case s.Name == ScopeAll:
		var cells []Position
		for r, row := range g.Grid {
			for c, cell := range row {
				if !cell.Black {
					cells = append(cells, Position{Row: r, Col: c})
				}
			}
		}
		return cells
	case s.Name == ScopeWord:
		if cursor == nil || !g.inBounds(*cursor) {
			return nil
		}
		cell := g.Grid[cursor.Row][cursor.Col]
		if cell.Black {
			return nil
		}
		if cell.Parents.Across != 0 {
			return g.wordCells(cell.Parents.Across, directionAcross)
		}
		return g.wordCells(cell.Parents.Down, directionDown)
	default:
		var cells []Position
		for _, pos := range s.Cells {
			if g.inBounds(pos) && !g.Grid[pos.Row][pos.Col].Black {
				cells = append(cells, pos)
			}
		}
		return cells
	}
}

type direction int

const (
	directionAcross direction = iota
	directionDown
)

// wordCells collects the cells whose parent clue in the given direction is
// number.
func (g *Game) wordCells(number int, dir direction) []Position {
	if number == 0 {
		return nil
	}
	var cells []Position
	for r, row := range g.Grid {
		for c, cell := range row {
			if cell.Black {
				continue
			}
			parent := cell.Parents.Across
			if dir == directionDown {
				parent = cell.Parents.Down
			}
			if parent == number {
				cells = append(cells, Position{Row: r, Col: c})
			}
		}
	}
	return cells
}
