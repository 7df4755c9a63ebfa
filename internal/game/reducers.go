package game

import "time"

// A reducer maps (state, params, timestamp) to the next state. Reducers are
// pure and total: semantically illegal updates return the input state
// unchanged rather than an error, so the authority can fold any well-typed
// event without a failure path.
type reducer func(s *State, params Params, ts time.Time) *State

var reducers = map[Type]reducer{
	TypeCreate:            reduceCreate,
	TypeUpdateCell:        reduceUpdateCell,
	TypeUpdateCursor:      reduceUpdateCursor,
	TypeAddPing:           reduceAddPing,
	TypeUpdateDisplayName: reduceUpdateDisplayName,
	TypeUpdateColor:       reduceUpdateColor,
	TypeUpdateClock:       reduceUpdateClock,
	TypeCheck:             reduceCheck,
	TypeReveal:            reduceReveal,
	TypeReset:             reduceReset,
	TypeSendChatMessage:   reduceSendChatMessage,
	TypeUpdateTeamName:    reduceUpdateTeamName,
	TypeUpdateTeamID:      reduceUpdateTeamID,
	TypeRevealAllClues:    reduceRevealAllClues,
	TypeStartGame:         reduceStartGame,
}

// Apply folds one event into the state, returning the next state. The input
// state is never mutated. Events whose type is outside the catalogue should
// have been rejected at the boundary; if one slips through it is a no-op.
func Apply(s *State, evt Event) *State {
	reduce, ok := reducers[evt.Type]
	if !ok || evt.Params == nil {
		return s
	}
	return reduce(s, evt.Params, evt.Timestamp)
}

// Fold replays a sequence of events from the initial state.
func Fold(events []Event) *State {
	s := InitialState()
	for _, evt := range events {
		s = Apply(s, evt)
	}
	return s
}

// reduceCreate discards any current state and builds the puzzle.
func reduceCreate(_ *State, params Params, ts time.Time) *State {
	p, ok := params.(CreateParams)
	if !ok || len(p.Solution) == 0 {
		return InitialState()
	}
	s := InitialState()
	s.Game = buildGame(p, ts)
	return s
}

// reduceUpdateCell writes a letter into the user's team grid and the shared
// grid. Cells already verified correct are left alone.
func reduceUpdateCell(s *State, params Params, _ time.Time) *State {
	p, valid := params.(UpdateCellParams)
	if !valid {
		return s
	}
	_, teamID, ok := s.userTeam(p.ID)
	if !ok || s.Game == nil || !s.Game.inBounds(p.Cell) {
		return s
	}
	tg := s.Game.teamGrid(teamID)
	cell := tg[p.Cell.Row][p.Cell.Col]
	if cell.Black || cell.Good {
		return s
	}

	next := s.shallowClone()
	next.Game = s.cloneGame()
	next.Game.TeamGrids = cloneTeamGrids(s.Game.TeamGrids)

	tg = cloneGrid(tg)
	row := cloneRow(tg, p.Cell.Row)
	row[p.Cell.Col].Value = p.Value
	row[p.Cell.Col].Bad = false
	row[p.Cell.Col].Pencil = p.Pencil
	next.Game.TeamGrids[teamID] = tg

	// Good is terminal on the shared grid too: a cell another team already
	// solved keeps its value and attribution.
	if !s.Game.Grid[p.Cell.Row][p.Cell.Col].Good {
		shared := cloneGrid(s.Game.Grid)
		sharedRow := cloneRow(shared, p.Cell.Row)
		sharedRow[p.Cell.Col].Value = p.Value
		sharedRow[p.Cell.Col].Bad = false
		sharedRow[p.Cell.Col].Pencil = p.Pencil
		next.Game.Grid = shared
	}
	return next
}

func reduceUpdateCursor(s *State, params Params, _ time.Time) *State {
	p, valid := params.(UpdateCursorParams)
	if !valid {
		return s
	}
	u, ok := s.Users[p.ID]
	if !ok || s.Game == nil || !s.Game.inBounds(p.Cell) {
		return s
	}
	next := s.shallowClone()
	next.Users = s.cloneUsers()
	moved := *u
	pos := p.Cell
	moved.Cursor = &pos
	next.Users[p.ID] = &moved
	return next
}

func reduceAddPing(s *State, params Params, _ time.Time) *State {
	p, valid := params.(AddPingParams)
	if !valid {
		return s
	}
	u, ok := s.Users[p.ID]
	if !ok || s.Game == nil || !s.Game.inBounds(p.Cell) {
		return s
	}
	next := s.shallowClone()
	next.Users = s.cloneUsers()
	pinged := *u
	pos := p.Cell
	pinged.LastPing = &pos
	next.Users[p.ID] = &pinged
	return next
}

// reduceUpdateDisplayName upserts the user: this is how a participant first
// enters the session.
func reduceUpdateDisplayName(s *State, params Params, _ time.Time) *State {
	p, valid := params.(UpdateDisplayNameParams)
	if !valid {
		return s
	}
	if p.ID == "" {
		return s
	}
	next := s.shallowClone()
	next.Users = s.cloneUsers()
	if existing, ok := s.Users[p.ID]; ok {
		renamed := *existing
		renamed.DisplayName = p.DisplayName
		next.Users[p.ID] = &renamed
	} else {
		next.Users[p.ID] = &User{DisplayName: p.DisplayName}
	}
	return next
}

func reduceUpdateColor(s *State, params Params, _ time.Time) *State {
	p, valid := params.(UpdateColorParams)
	if !valid {
		return s
	}
	u, ok := s.Users[p.ID]
	if !ok {
		return s
	}
	next := s.shallowClone()
	next.Users = s.cloneUsers()
	recolored := *u
	recolored.Color = p.Color
	next.Users[p.ID] = &recolored
	return next
}

func reduceUpdateClock(s *State, params Params, ts time.Time) *State {
	p, valid := params.(UpdateClockParams)
	if !valid {
		return s
	}
	if s.Game == nil {
		return s
	}
	clock := s.Game.Clock
	switch p.Action {
	case ClockActionStart:
		if !clock.Paused {
			return s
		}
		if !clock.LastPausedAt.IsZero() {
			clock.TotalPaused += ts.Sub(clock.LastPausedAt)
		} else {
			clock.StartedAt = ts
		}
		clock.Paused = false
	case ClockActionPause:
		if clock.Paused {
			return s
		}
		clock.Paused = true
		clock.LastPausedAt = ts
	case ClockActionReset:
		clock = Clock{StartedAt: ts, Paused: true}
	default:
		return s
	}
	next := s.shallowClone()
	next.Game = s.cloneGame()
	next.Game.Clock = clock
	return next
}

// reduceCheck verifies each in-scope cell of the team grid against the
// solution: correct cells become Good, filled incorrect cells become Bad.
// Already-Good cells are skipped. No scoring.
func reduceCheck(s *State, params Params, _ time.Time) *State {
	p, valid := params.(CheckParams)
	if !valid {
		return s
	}
	u, teamID, ok := s.userTeam(p.ID)
	if !ok || s.Game == nil {
		return s
	}
	cells := p.Scope.resolve(s.Game, u.Cursor)
	if len(cells) == 0 {
		return s
	}

	tg := s.Game.teamGrid(teamID)
	next := s.shallowClone()
	next.Game = s.cloneGame()
	next.Game.TeamGrids = cloneTeamGrids(s.Game.TeamGrids)
	tg = cloneGrid(tg)
	changed := false
	for _, pos := range cells {
		cell := tg[pos.Row][pos.Col]
		if cell.Good || cell.Value == "" {
			continue
		}
		row := cloneRow(tg, pos.Row)
		if cell.Value == s.Game.Solution[pos.Row][pos.Col] {
			row[pos.Col].Good = true
			row[pos.Col].Bad = false
			row[pos.Col].Pencil = false
		} else {
			row[pos.Col].Bad = true
		}
		changed = true
	}
	if !changed {
		return s
	}
	next.Game.TeamGrids[teamID] = tg
	return next
}

// reduceReveal fills exactly one cell from the solution for the user's team,
// reveals the owning clues to every team, and scores the user and team.
// Idempotent: a cell already Good changes nothing.
func reduceReveal(s *State, params Params, _ time.Time) *State {
	p, valid := params.(RevealParams)
	if !valid {
		return s
	}
	u, teamID, ok := s.userTeam(p.ID)
	if !ok || s.Game == nil {
		return s
	}
	if !p.Scope.IsExplicit() || len(p.Scope.Cells) != 1 {
		return s
	}
	pos := p.Scope.Cells[0]
	if !s.Game.inBounds(pos) || s.Game.Grid[pos.Row][pos.Col].Black {
		return s
	}

	tg := s.Game.teamGrid(teamID)
	if tg[pos.Row][pos.Col].Good {
		return s
	}

	next := s.shallowClone()
	next.Game = s.cloneGame()
	next.Game.TeamGrids = cloneTeamGrids(s.Game.TeamGrids)

	solved := &Attribution{UserID: p.ID, TeamID: teamID}
	value := s.Game.Solution[pos.Row][pos.Col]

	tg = cloneGrid(tg)
	row := cloneRow(tg, pos.Row)
	row[pos.Col].Value = value
	row[pos.Col].Good = true
	row[pos.Col].Bad = false
	row[pos.Col].Revealed = true
	row[pos.Col].Pencil = false
	row[pos.Col].SolvedBy = solved
	next.Game.TeamGrids[teamID] = tg

	shared := cloneGrid(s.Game.Grid)
	sharedRow := cloneRow(shared, pos.Row)
	sharedRow[pos.Col].Value = value
	sharedRow[pos.Col].Good = true
	sharedRow[pos.Col].Bad = false
	sharedRow[pos.Col].Revealed = true
	sharedRow[pos.Col].SolvedBy = solved
	next.Game.Grid = shared

	parents := shared[pos.Row][pos.Col].Parents
	next.Game.TeamClueVisibility = revealClueToAllTeams(s, parents)

	next.Users = s.cloneUsers()
	scored := *u
	scored.Score++
	next.Users[p.ID] = &scored

	next.Teams = s.cloneTeams()
	team := *s.Teams[teamID]
	team.Score++
	next.Teams[teamID] = &team
	return next
}

// revealClueToAllTeams marks the across and down clues owning a revealed
// cell as visible for every known team.
func revealClueToAllTeams(s *State, parents ClueParents) map[string]*ClueVisibility {
	vis := cloneVisibility(s.Game.TeamClueVisibility)
	for teamID := range s.Teams {
		entry, ok := vis[teamID]
		if !ok {
			entry = &ClueVisibility{Across: make(map[int]bool), Down: make(map[int]bool)}
		} else {
			entry = cloneVisibilityEntry(entry)
		}
		if parents.Across != 0 {
			entry.Across[parents.Across] = true
		}
		if parents.Down != 0 {
			entry.Down[parents.Down] = true
		}
		vis[teamID] = entry
	}
	return vis
}

// reduceReset clears the in-scope cells of the team grid. Good cells are
// preserved unless force is set; force is the only path that reverts a cell
// verified correct.
func reduceReset(s *State, params Params, _ time.Time) *State {
	p, valid := params.(ResetParams)
	if !valid {
		return s
	}
	u, teamID, ok := s.userTeam(p.ID)
	if !ok || s.Game == nil {
		return s
	}
	cells := p.Scope.resolve(s.Game, u.Cursor)
	if len(cells) == 0 {
		return s
	}

	tg := s.Game.teamGrid(teamID)
	next := s.shallowClone()
	next.Game = s.cloneGame()
	next.Game.TeamGrids = cloneTeamGrids(s.Game.TeamGrids)
	tg = cloneGrid(tg)
	changed := false
	for _, pos := range cells {
		cell := tg[pos.Row][pos.Col]
		if cell.Good && !p.Force {
			continue
		}
		if cell.Value == "" && !cell.Bad && !cell.Revealed && !cell.Good {
			continue
		}
		row := cloneRow(tg, pos.Row)
		row[pos.Col] = Cell{
			Black:   cell.Black,
			Circled: cell.Circled,
			Parents: cell.Parents,
		}
		changed = true
	}
	if !changed {
		return s
	}
	next.Game.TeamGrids[teamID] = tg
	return next
}

func reduceSendChatMessage(s *State, params Params, ts time.Time) *State {
	p, valid := params.(SendChatMessageParams)
	if !valid {
		return s
	}
	u, ok := s.Users[p.ID]
	if !ok || s.Game == nil || p.Text == "" {
		return s
	}
	next := s.shallowClone()
	next.Game = s.cloneGame()
	chat := make([]ChatMessage, len(s.Game.Chat), len(s.Game.Chat)+1)
	copy(chat, s.Game.Chat)
	next.Game.Chat = append(chat, ChatMessage{
		UserID:      p.ID,
		DisplayName: u.DisplayName,
		Text:        p.Text,
		SentAt:      ts,
	})
	return next
}

func reduceUpdateTeamName(s *State, params Params, _ time.Time) *State {
	p, valid := params.(UpdateTeamNameParams)
	if !valid {
		return s
	}
	if _, ok := s.Users[p.ID]; !ok {
		return s
	}
	team, ok := s.Teams[p.TeamID]
	if !ok || p.Name == "" {
		return s
	}
	next := s.shallowClone()
	next.Teams = s.cloneTeams()
	renamed := *team
	renamed.Name = p.Name
	next.Teams[p.TeamID] = &renamed
	return next
}

// reduceUpdateTeamID assigns the user to a team, creating the team record if
// it does not exist yet so the users-reference-teams invariant always holds.
func reduceUpdateTeamID(s *State, params Params, _ time.Time) *State {
	p, valid := params.(UpdateTeamIDParams)
	if !valid {
		return s
	}
	u, ok := s.Users[p.ID]
	if !ok || p.TeamID == "" {
		return s
	}
	next := s.shallowClone()
	next.Users = s.cloneUsers()
	moved := *u
	moved.TeamID = p.TeamID
	next.Users[p.ID] = &moved
	if _, ok := s.Teams[p.TeamID]; !ok {
		next.Teams = s.cloneTeams()
		next.Teams[p.TeamID] = &Team{Name: "Team " + p.TeamID}
	}
	return next
}

func reduceRevealAllClues(s *State, params Params, _ time.Time) *State {
	p, valid := params.(RevealAllCluesParams)
	if !valid {
		return s
	}
	if s.Game == nil {
		return s
	}
	if _, ok := s.Teams[p.TeamID]; !ok {
		return s
	}
	entry := &ClueVisibility{
		Across: make(map[int]bool, len(s.Game.Clues.Across)),
		Down:   make(map[int]bool, len(s.Game.Clues.Down)),
	}
	for number := range s.Game.Clues.Across {
		entry.Across[number] = true
	}
	for number := range s.Game.Clues.Down {
		entry.Down[number] = true
	}
	next := s.shallowClone()
	next.Game = s.cloneGame()
	next.Game.TeamClueVisibility = cloneVisibility(s.Game.TeamClueVisibility)
	next.Game.TeamClueVisibility[p.TeamID] = entry
	return next
}

func reduceStartGame(s *State, params Params, ts time.Time) *State {
	if s.Game == nil || s.Game.Started {
		return s
	}
	next := s.shallowClone()
	next.Game = s.cloneGame()
	next.Game.Started = true
	next.Game.Clock = Clock{StartedAt: ts}
	return next
}
