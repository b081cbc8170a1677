package export

import (
	"encoding/json"
	"fmt"
	"math"
	"time"

	"github.com/c360studio/matchroom/storage"
)

// Required fields per collection, in the order they are checked.
var (
	roomFields    = []string{"id", "name"}
	playerFields  = []string{"id", "roomId", "name"}
	matchFields   = []string{"id", "roomId", "player1Id", "player2Id"}
	settingFields = []string{"id"}
)

// Validate checks the structure of a raw bundle and decodes it. The
// returned error is a *storage.ValidationError naming the first offending
// collection, record index and field.
func Validate(data []byte) (*Bundle, error) {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, &storage.ValidationError{Index: -1, Reason: "invalid JSON: " + err.Error()}
	}
	doc, ok := raw.(map[string]any)
	if !ok {
		return nil, &storage.ValidationError{Index: -1, Reason: "bundle must be a JSON object"}
	}

	if err := checkVersion(doc); err != nil {
		return nil, err
	}

	rooms, hasRooms := doc["rooms"]
	if hasRooms {
		if err := checkRecords("rooms", rooms, checkRoom); err != nil {
			return nil, err
		}
	}
	room, hasRoom := doc["room"]
	if hasRoom {
		obj, ok := room.(map[string]any)
		if !ok {
			return nil, &storage.ValidationError{Collection: "room", Index: -1, Reason: "must be an object"}
		}
		if err := checkRoom(obj); err != nil {
			err.Collection = "room"
			return nil, err
		}
	}
	for _, c := range []struct {
		name  string
		check func(map[string]any) *storage.ValidationError
	}{
		{"players", checkPlayer},
		{"matches", checkMatch},
		{"settings", checkSetting},
	} {
		if v, ok := doc[c.name]; ok {
			if err := checkRecords(c.name, v, c.check); err != nil {
				return nil, err
			}
		}
	}

	if !hasRooms && !hasRoom {
		return nil, &storage.ValidationError{Index: -1, Field: "rooms", Reason: "bundle needs a rooms array or a room object"}
	}

	var b Bundle
	if err := json.Unmarshal(data, &b); err != nil {
		return nil, &storage.ValidationError{Index: -1, Reason: err.Error()}
	}
	return &b, nil
}

func checkVersion(doc map[string]any) *storage.ValidationError {
	v, ok := doc["version"]
	if !ok {
		return &storage.ValidationError{Index: -1, Field: "version", Reason: "is required"}
	}
	n, ok := v.(float64)
	if !ok || n != math.Trunc(n) || n < 1 {
		return &storage.ValidationError{Index: -1, Field: "version", Reason: "must be a positive integer"}
	}
	if int(n) > SchemaVersion {
		return &storage.ValidationError{
			Index:  -1,
			Field:  "version",
			Reason: fmt.Sprintf("unsupported schema version %d (newest supported is %d)", int(n), SchemaVersion),
		}
	}
	return nil
}

func checkRecords(name string, v any, check func(map[string]any) *storage.ValidationError) *storage.ValidationError {
	list, ok := v.([]any)
	if !ok {
		return &storage.ValidationError{Collection: name, Index: -1, Reason: "must be an array"}
	}
	for i, item := range list {
		obj, ok := item.(map[string]any)
		if !ok {
			return &storage.ValidationError{Collection: name, Index: i, Reason: "must be an object"}
		}
		if err := check(obj); err != nil {
			err.Collection = name
			err.Index = i
			return err
		}
	}
	return nil
}

func checkRoom(rec map[string]any) *storage.ValidationError {
	return requireStrings(rec, roomFields)
}

func checkPlayer(rec map[string]any) *storage.ValidationError {
	return requireStrings(rec, playerFields)
}

func checkMatch(rec map[string]any) *storage.ValidationError {
	if err := requireStrings(rec, matchFields); err != nil {
		return err
	}
	for _, field := range []string{"player1Score", "player2Score"} {
		v, ok := rec[field]
		if !ok {
			return fieldErr(field, "is required")
		}
		n, ok := v.(float64)
		if !ok || n != math.Trunc(n) || n < 0 {
			return fieldErr(field, "must be a non-negative integer")
		}
	}
	if err := requireStrings(rec, []string{"winnerId", "date"}); err != nil {
		return err
	}
	if rec["player1Score"] == rec["player2Score"] {
		return fieldErr("player2Score", "must differ from player1Score, a match has a winner")
	}
	if w := rec["winnerId"]; w != rec["player1Id"] && w != rec["player2Id"] {
		return fieldErr("winnerId", "must be player1Id or player2Id")
	}
	if _, err := time.Parse(time.RFC3339, rec["date"].(string)); err != nil {
		return fieldErr("date", "must be an RFC 3339 timestamp")
	}
	return nil
}

func checkSetting(rec map[string]any) *storage.ValidationError {
	return requireStrings(rec, settingFields)
}

func requireStrings(rec map[string]any, fields []string) *storage.ValidationError {
	for _, field := range fields {
		v, ok := rec[field]
		if !ok {
			return fieldErr(field, "is required")
		}
		s, ok := v.(string)
		if !ok {
			return fieldErr(field, "must be a string")
		}
		if s == "" {
			return fieldErr(field, "must not be empty")
		}
	}
	return nil
}

func fieldErr(field, reason string) *storage.ValidationError {
	return &storage.ValidationError{Index: -1, Field: field, Reason: reason}
}
