// Package storage provides the matchroom record store: rooms, players,
// matches and settings persisted through a pluggable key-value Backend.
package storage

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Collection names one of the four record collections.
type Collection string

const (
	CollectionRooms    Collection = "rooms"
	CollectionPlayers  Collection = "players"
	CollectionMatches  Collection = "matches"
	CollectionSettings Collection = "settings"
)

// Collections lists every collection in dependency order (parents first).
var Collections = []Collection{
	CollectionRooms,
	CollectionPlayers,
	CollectionMatches,
	CollectionSettings,
}

// Secondary index fields.
const (
	FieldRoomID    = "roomId"
	FieldPlayer1ID = "player1Id"
	FieldPlayer2ID = "player2Id"
	FieldWinnerID  = "winnerId"
)

// Well-known setting keys.
const (
	SettingLastSelectedRoom = "lastSelectedRoom"
	SettingLastBackup       = "lastBackup"
)

// NewID generates a new unique record id. Ids are UUIDv7, so their lexical
// order follows creation order.
func NewID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.New().String()
	}
	return id.String()
}

// Record is implemented by the four entity types. Methods return new values;
// records are never mutated in place.
type Record[T any] interface {
	// Key returns the primary key.
	Key() string
	// IndexValue returns the value of a secondary index field and whether
	// the field is indexed for this record type at all.
	IndexValue(field string) (string, bool)
	// Validate checks the fields a stored record must carry.
	Validate() error

	create(id string, now time.Time) T
	touch(now time.Time) T
}

// Room is an isolated namespace containing its own players and matches.
type Room struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

func (r Room) Key() string { return r.ID }

func (r Room) IndexValue(string) (string, bool) { return "", false }

func (r Room) Validate() error {
	if r.Name == "" {
		return invalid(CollectionRooms, "name", "must not be empty")
	}
	return nil
}

func (r Room) create(id string, now time.Time) Room {
	r.ID = id
	r.CreatedAt = now
	r.UpdatedAt = now
	return r
}

func (r Room) touch(now time.Time) Room {
	r.UpdatedAt = later(now, r.CreatedAt)
	return r
}

// Player belongs to exactly one room.
type Player struct {
	ID        string    `json:"id"`
	RoomID    string    `json:"roomId"`
	Name      string    `json:"name"`
	Nickname  string    `json:"nickname,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func (p Player) Key() string { return p.ID }

func (p Player) IndexValue(field string) (string, bool) {
	if field == FieldRoomID {
		return p.RoomID, true
	}
	return "", false
}

func (p Player) Validate() error {
	if p.RoomID == "" {
		return invalid(CollectionPlayers, FieldRoomID, "must not be empty")
	}
	if p.Name == "" {
		return invalid(CollectionPlayers, "name", "must not be empty")
	}
	return nil
}

// DisplayName returns the nickname when set, the name otherwise.
func (p Player) DisplayName() string {
	if p.Nickname != "" {
		return p.Nickname
	}
	return p.Name
}

func (p Player) create(id string, now time.Time) Player {
	p.ID = id
	p.CreatedAt = now
	p.UpdatedAt = now
	return p
}

func (p Player) touch(now time.Time) Player {
	p.UpdatedAt = later(now, p.CreatedAt)
	return p
}

// Match is a single 1v1 result. WinnerID is derived from the scores.
type Match struct {
	ID           string    `json:"id"`
	RoomID       string    `json:"roomId"`
	Player1ID    string    `json:"player1Id"`
	Player2ID    string    `json:"player2Id"`
	Player1Score int       `json:"player1Score"`
	Player2Score int       `json:"player2Score"`
	WinnerID     string    `json:"winnerId"`
	Notes        string    `json:"notes,omitempty"`
	Date         time.Time `json:"date"`
}

func (m Match) Key() string { return m.ID }

func (m Match) IndexValue(field string) (string, bool) {
	switch field {
	case FieldRoomID:
		return m.RoomID, true
	case FieldPlayer1ID:
		return m.Player1ID, true
	case FieldPlayer2ID:
		return m.Player2ID, true
	case FieldWinnerID:
		return m.WinnerID, true
	}
	return "", false
}

func (m Match) Validate() error {
	switch {
	case m.RoomID == "":
		return invalid(CollectionMatches, FieldRoomID, "must not be empty")
	case m.Player1ID == "":
		return invalid(CollectionMatches, FieldPlayer1ID, "must not be empty")
	case m.Player2ID == "":
		return invalid(CollectionMatches, FieldPlayer2ID, "must not be empty")
	case m.Player1ID == m.Player2ID:
		return invalid(CollectionMatches, FieldPlayer2ID, "must differ from player1Id")
	case m.Player1Score < 0:
		return invalid(CollectionMatches, "player1Score", "must not be negative")
	case m.Player2Score < 0:
		return invalid(CollectionMatches, "player2Score", "must not be negative")
	case m.Player1Score == m.Player2Score:
		return invalid(CollectionMatches, "player2Score", "scores are tied, a match needs a winner")
	}
	return nil
}

// Winner returns the id of the player with the strictly higher score.
// It reports false for a tie.
func (m Match) Winner() (string, bool) {
	switch {
	case m.Player1Score > m.Player2Score:
		return m.Player1ID, true
	case m.Player2Score > m.Player1Score:
		return m.Player2ID, true
	}
	return "", false
}

// Involves reports whether the player took part in the match.
func (m Match) Involves(playerID string) bool {
	return playerID != "" && (m.Player1ID == playerID || m.Player2ID == playerID)
}

// Scores returns the player's score and the opponent's score.
func (m Match) Scores(playerID string) (scoreFor, scoreAgainst int) {
	if m.Player2ID == playerID {
		return m.Player2Score, m.Player1Score
	}
	return m.Player1Score, m.Player2Score
}

// Opponent returns the other participant.
func (m Match) Opponent(playerID string) string {
	if m.Player1ID == playerID {
		return m.Player2ID
	}
	return m.Player1ID
}

func (m Match) withWinner() Match {
	m.WinnerID, _ = m.Winner()
	return m
}

func (m Match) create(id string, now time.Time) Match {
	m.ID = id
	m.Date = now
	return m.withWinner()
}

// Match dates are immutable and matches carry no update timestamp.
func (m Match) touch(time.Time) Match { return m }

// Setting is a process-wide key-value entry.
type Setting struct {
	ID        string          `json:"id"`
	Value     json.RawMessage `json:"value"`
	UpdatedAt time.Time       `json:"updatedAt"`
}

func (s Setting) Key() string { return s.ID }

func (s Setting) IndexValue(string) (string, bool) { return "", false }

func (s Setting) Validate() error {
	if s.ID == "" {
		return invalid(CollectionSettings, "id", "must not be empty")
	}
	return nil
}

// Settings keep a caller-supplied key; the generated id is used only when
// none was given.
func (s Setting) create(id string, now time.Time) Setting {
	if s.ID == "" {
		s.ID = id
	}
	s.UpdatedAt = now
	return s
}

func (s Setting) touch(now time.Time) Setting {
	s.UpdatedAt = now
	return s
}

func later(a, b time.Time) time.Time {
	if a.Before(b) {
		return b
	}
	return a
}
