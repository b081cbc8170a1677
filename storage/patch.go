package storage

import "encoding/json"

// Patch is a field-level partial update of a record. Apply returns a new
// value; fields the patch leaves nil are preserved.
type Patch[T any] interface {
	Target() string
	Apply(T) T
}

// Ptr returns a pointer to v, for building patches inline.
func Ptr[T any](v T) *T { return &v }

// RoomPatch updates a room.
type RoomPatch struct {
	ID          string
	Name        *string
	Description *string
}

func (p RoomPatch) Target() string { return p.ID }

func (p RoomPatch) Apply(r Room) Room {
	if p.Name != nil {
		r.Name = *p.Name
	}
	if p.Description != nil {
		r.Description = *p.Description
	}
	return r
}

// PlayerPatch updates a player.
type PlayerPatch struct {
	ID       string
	RoomID   *string
	Name     *string
	Nickname *string
}

func (p PlayerPatch) Target() string { return p.ID }

func (p PlayerPatch) Apply(pl Player) Player {
	if p.RoomID != nil {
		pl.RoomID = *p.RoomID
	}
	if p.Name != nil {
		pl.Name = *p.Name
	}
	if p.Nickname != nil {
		pl.Nickname = *p.Nickname
	}
	return pl
}

// MatchPatch updates a match. The date and participants are fixed once
// recorded; changing a score re-derives the winner.
type MatchPatch struct {
	ID           string
	Player1Score *int
	Player2Score *int
	Notes        *string
}

func (p MatchPatch) Target() string { return p.ID }

func (p MatchPatch) Apply(m Match) Match {
	rescored := false
	if p.Player1Score != nil {
		m.Player1Score = *p.Player1Score
		rescored = true
	}
	if p.Player2Score != nil {
		m.Player2Score = *p.Player2Score
		rescored = true
	}
	if p.Notes != nil {
		m.Notes = *p.Notes
	}
	if rescored {
		m = m.withWinner()
	}
	return m
}

// SettingPatch replaces a setting's value.
type SettingPatch struct {
	ID    string
	Value json.RawMessage
}

func (p SettingPatch) Target() string { return p.ID }

func (p SettingPatch) Apply(s Setting) Setting {
	if p.Value != nil {
		s.Value = p.Value
	}
	return s
}
