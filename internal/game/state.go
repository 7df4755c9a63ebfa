package game

import "time"

// Position addresses a single cell in the grid.
type Position struct {
	Row int `json:"r"`
	Col int `json:"c"`
}

// ClueParents links a cell to the clue numbers of the across and down words
// that contain it. Computed once during grid construction and never changed
// afterwards. Zero means the cell belongs to no word in that direction.
type ClueParents struct {
	Across int `json:"across"`
	Down   int `json:"down"`
}

// Attribution records which user, playing for which team, solved a cell.
type Attribution struct {
	UserID string `json:"id"`
	TeamID string `json:"teamId"`
}

// Cell is a single grid square. Good is terminal: once set, no reducer may
// revert it except reset with force.
type Cell struct {
	Value    string       `json:"value"`
	Good     bool         `json:"good"`
	Bad      bool         `json:"bad"`
	Revealed bool         `json:"revealed"`
	Pencil   bool         `json:"pencil"`
	Black    bool         `json:"black"`
	Circled  bool         `json:"circled"`
	SolvedBy *Attribution `json:"solvedBy,omitempty"`
	Parents  ClueParents  `json:"parents"`
}

// ClueVisibility tracks which clues a team has had revealed to it.
type ClueVisibility struct {
	Across map[int]bool `json:"across"`
	Down   map[int]bool `json:"down"`
}

// Clues holds clue text keyed by clue number.
type Clues struct {
	Across map[int]string `json:"across"`
	Down   map[int]string `json:"down"`
}

// Info is the puzzle metadata carried by the create event.
type Info struct {
	Title       string `json:"title"`
	Author      string `json:"author"`
	Description string `json:"description"`
}

// Clock tracks elapsed solve time across pauses.
type Clock struct {
	StartedAt    time.Time     `json:"startedAt"`
	LastPausedAt time.Time     `json:"lastPausedAt"`
	TotalPaused  time.Duration `json:"totalPaused"`
	Paused       bool          `json:"paused"`
}

// ChatMessage is one entry in the session chat history.
type ChatMessage struct {
	UserID      string    `json:"id"`
	DisplayName string    `json:"displayName"`
	Text        string    `json:"text"`
	SentAt      time.Time `json:"sentAt"`
}

// User is one connected participant.
type User struct {
	TeamID      string    `json:"teamId"`
	Score       int       `json:"score"`
	DisplayName string    `json:"displayName"`
	Color       string    `json:"color"`
	Cursor      *Position `json:"cursor,omitempty"`
	LastPing    *Position `json:"lastPing,omitempty"`
}

// Team groups users who share a grid and a score.
type Team struct {
	Name  string `json:"name"`
	Score int    `json:"score"`
}

// Game is the puzzle instance owned by one session. TeamGrids are independent
// copies because each team checks and reveals on its own; Grid is the shared
// spectator view.
type Game struct {
	Grid               [][]Cell                   `json:"grid"`
	Solution           [][]string                 `json:"solution"`
	TeamGrids          map[string][][]Cell        `json:"teamGrids"`
	TeamClueVisibility map[string]*ClueVisibility `json:"teamClueVisibility"`
	Clues              *Clues                     `json:"clues"`
	Circles            []int                      `json:"circles"`
	Info               Info                       `json:"info"`
	Clock              Clock                      `json:"clock"`
	Chat               []ChatMessage              `json:"chat"`
	Started            bool                       `json:"started"`
}

// State is the aggregate for one session, derived entirely by folding the
// ordered event log from InitialState. Reducers never mutate a State in
// place; concurrent readers may hold references to earlier versions.
type State struct {
	Game  *Game            `json:"game,omitempty"`
	Users map[string]*User `json:"users"`
	Teams map[string]*Team `json:"teams"`
}

// InitialState returns the empty state every fold starts from.
func InitialState() *State {
	return &State{
		Users: make(map[string]*User),
		Teams: make(map[string]*Team),
	}
}

// shallowClone copies the top-level State so a reducer can replace the
// sub-structures it touches without disturbing the previous version.
func (s *State) shallowClone() *State {
	next := *s
	return &next
}

func (s *State) cloneUsers() map[string]*User {
	users := make(map[string]*User, len(s.Users))
	for id, u := range s.Users {
		users[id] = u
	}
	return users
}

func (s *State) cloneTeams() map[string]*Team {
	teams := make(map[string]*Team, len(s.Teams))
	for id, t := range s.Teams {
		teams[id] = t
	}
	return teams
}

func (s *State) cloneGame() *Game {
	if s.Game == nil {
		return nil
	}
	next := *s.Game
	return &next
}

// cloneGrid copies the row slice only; individual rows are copied lazily by
// cloneRow as cells are touched.
func cloneGrid(grid [][]Cell) [][]Cell {
	next := make([][]Cell, len(grid))
	copy(next, grid)
	return next
}

// cloneRow replaces one row of an already-cloned grid with a fresh copy and
// returns it for mutation.
func cloneRow(grid [][]Cell, row int) []Cell {
	fresh := make([]Cell, len(grid[row]))
	copy(fresh, grid[row])
	grid[row] = fresh
	return fresh
}

func cloneTeamGrids(grids map[string][][]Cell) map[string][][]Cell {
	next := make(map[string][][]Cell, len(grids))
	for id, g := range grids {
		next[id] = g
	}
	return next
}

func cloneVisibility(vis map[string]*ClueVisibility) map[string]*ClueVisibility {
	next := make(map[string]*ClueVisibility, len(vis))
	for id, v := range vis {
		next[id] = v
	}
	return next
}

func cloneVisibilityEntry(v *ClueVisibility) *ClueVisibility {
	next := &ClueVisibility{
		Across: make(map[int]bool, len(v.Across)),
		Down:   make(map[int]bool, len(v.Down)),
	}
	for k, b := range v.Across {
		next.Across[k] = b
	}
	for k, b := range v.Down {
		next.Down[k] = b
	}
	return next
}

// inBounds reports whether the position addresses a cell of the grid.
func (g *Game) inBounds(pos Position) bool {
	return pos.Row >= 0 && pos.Row < len(g.Grid) &&
		pos.Col >= 0 && len(g.Grid) > 0 && pos.Col < len(g.Grid[pos.Row])
}

// userTeam resolves a user with a team assignment, the precondition shared by
// the scoring reducers.
func (s *State) userTeam(userID string) (*User, string, bool) {
	u, ok := s.Users[userID]
	if !ok || u.TeamID == "" {
		return nil, "", false
	}
	if _, ok := s.Teams[u.TeamID]; !ok {
		return nil, "", false
	}
	return u, u.TeamID, true
}
