// Package export produces and consumes matchroom bundles: JSON snapshots of
// the whole store or of a single room, used for backups and interchange.
package export

import (
	"encoding/json"
	"time"

	"github.com/c360studio/matchroom/storage"
)

// SchemaVersion is the bundle version written by this package.
const SchemaVersion = 1

// Bundle is the export/import document. A full export carries Rooms and
// Settings; a single-room export carries Room instead.
type Bundle struct {
	Version    int               `json:"version"`
	ExportDate time.Time         `json:"exportDate"`
	Rooms      []storage.Room    `json:"rooms,omitempty"`
	Room       *storage.Room     `json:"room,omitempty"`
	Players    []storage.Player  `json:"players"`
	Matches    []storage.Match   `json:"matches"`
	Settings   []storage.Setting `json:"settings,omitempty"`
}

type fullBundle struct {
	Version    int               `json:"version"`
	ExportDate time.Time         `json:"exportDate"`
	Rooms      []storage.Room    `json:"rooms"`
	Players    []storage.Player  `json:"players"`
	Matches    []storage.Match   `json:"matches"`
	Settings   []storage.Setting `json:"settings"`
}

type roomBundle struct {
	Version    int              `json:"version"`
	ExportDate time.Time        `json:"exportDate"`
	Room       *storage.Room    `json:"room"`
	Players    []storage.Player `json:"players"`
	Matches    []storage.Match  `json:"matches"`
}

// MarshalJSON writes exactly one of the two bundle shapes, with empty
// collections as [] rather than omitted.
func (b Bundle) MarshalJSON() ([]byte, error) {
	if b.Room != nil {
		return json.Marshal(roomBundle{
			Version:    b.Version,
			ExportDate: b.ExportDate,
			Room:       b.Room,
			Players:    nonNil(b.Players),
			Matches:    nonNil(b.Matches),
		})
	}
	return json.Marshal(fullBundle{
		Version:    b.Version,
		ExportDate: b.ExportDate,
		Rooms:      nonNil(b.Rooms),
		Players:    nonNil(b.Players),
		Matches:    nonNil(b.Matches),
		Settings:   nonNil(b.Settings),
	})
}

// IsRoomExport reports whether the bundle is a single-room export.
func (b *Bundle) IsRoomExport() bool { return b.Room != nil }

// AllRooms returns the rooms of either bundle shape.
func (b *Bundle) AllRooms() []storage.Room {
	rooms := append([]storage.Room(nil), b.Rooms...)
	if b.Room != nil {
		rooms = append(rooms, *b.Room)
	}
	return rooms
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
