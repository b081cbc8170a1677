package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// RoomPlayers returns the players of a room.
func (s *Store) RoomPlayers(ctx context.Context, roomID string) ([]Player, error) {
	return s.Players.ByIndex(ctx, FieldRoomID, roomID)
}

// RoomMatches returns the matches of a room.
func (s *Store) RoomMatches(ctx context.Context, roomID string) ([]Match, error) {
	return s.Matches.ByIndex(ctx, FieldRoomID, roomID)
}

// PlayerMatches returns every match the player took part in, on either
// side, de-duplicated by match id.
func (s *Store) PlayerMatches(ctx context.Context, playerID string) ([]Match, error) {
	asFirst, err := s.Matches.ByIndex(ctx, FieldPlayer1ID, playerID)
	if err != nil {
		return nil, err
	}
	asSecond, err := s.Matches.ByIndex(ctx, FieldPlayer2ID, playerID)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool, len(asFirst)+len(asSecond))
	out := make([]Match, 0, len(asFirst)+len(asSecond))
	for _, group := range [][]Match{asFirst, asSecond} {
		for _, m := range group {
			if seen[m.ID] {
				continue
			}
			seen[m.ID] = true
			out = append(out, m)
		}
	}
	return out, nil
}

// RoomSummary is the per-room overview shown in room lists.
type RoomSummary struct {
	PlayerCount     int    `json:"playerCount"`
	MatchCount      int    `json:"matchCount"`
	MostRecentMatch *Match `json:"mostRecentMatch,omitempty"`
}

// RoomSummary counts a room's players and matches and finds its latest
// match.
func (s *Store) RoomSummary(ctx context.Context, roomID string) (RoomSummary, error) {
	players, err := s.RoomPlayers(ctx, roomID)
	if err != nil {
		return RoomSummary{}, err
	}
	matches, err := s.RoomMatches(ctx, roomID)
	if err != nil {
		return RoomSummary{}, err
	}

	summary := RoomSummary{PlayerCount: len(players), MatchCount: len(matches)}
	for i := range matches {
		m := matches[i]
		if summary.MostRecentMatch == nil || MoreRecent(m, *summary.MostRecentMatch) {
			summary.MostRecentMatch = &m
		}
	}
	return summary, nil
}

// MoreRecent orders matches by date, breaking equal dates by id. Generated
// ids are time ordered, so the later-created match wins the tie.
func MoreRecent(a, b Match) bool {
	if !a.Date.Equal(b.Date) {
		return a.Date.After(b.Date)
	}
	return a.ID > b.ID
}

// DeleteRoomCascade deletes the room, then its players, then its matches.
// Child deletions run as batches; every item is attempted even when some
// fail. Completed deletions are not rolled back.
func (s *Store) DeleteRoomCascade(ctx context.Context, roomID string) (*BatchResult, error) {
	logger := s.logger.With("room_id", roomID)
	result := &BatchResult{}

	err := s.Rooms.Delete(ctx, roomID)
	result.Items = append(result.Items, BatchItem{Collection: CollectionRooms, Key: roomID, Err: err})
	if err != nil {
		logger.Error("Failed to delete room", "error", err)
		return result, fmt.Errorf("delete room %s: %w", roomID, err)
	}

	players, err := s.RoomPlayers(ctx, roomID)
	if err != nil {
		return result, fmt.Errorf("list players of room %s: %w", roomID, err)
	}
	result.Merge(DeleteAll(ctx, s.Players, keysOf(players)))

	matches, err := s.RoomMatches(ctx, roomID)
	if err != nil {
		return result, fmt.Errorf("list matches of room %s: %w", roomID, err)
	}
	result.Merge(DeleteAll(ctx, s.Matches, keysOf(matches)))

	if err := result.Err(); err != nil {
		logger.Warn("Room cascade partially failed",
			"failed", len(result.Failed()),
			"succeeded", result.Succeeded())
		return result, fmt.Errorf("delete room %s: %w", roomID, err)
	}

	logger.Info("Room deleted",
		"players", len(players),
		"matches", len(matches))
	return result, nil
}

// SetSetting stores value as JSON under key, replacing any previous value.
func (s *Store) SetSetting(ctx context.Context, key string, value any) (Setting, error) {
	raw, err := json.Marshal(value)
	if err != nil {
		return Setting{}, fmt.Errorf("marshal setting %s: %w", key, err)
	}
	rec := Setting{ID: key, Value: raw, UpdatedAt: s.now()}
	if err := s.Settings.Put(ctx, rec); err != nil {
		return Setting{}, err
	}
	return rec, nil
}

// Setting decodes the value stored under key into dst. It reports false
// when the key is unset.
func (s *Store) Setting(ctx context.Context, key string, dst any) (bool, error) {
	rec, found, err := s.Settings.Get(ctx, key)
	if err != nil || !found {
		return false, err
	}
	if err := json.Unmarshal(rec.Value, dst); err != nil {
		return false, fmt.Errorf("decode setting %s: %w", key, err)
	}
	return true, nil
}

// SelectRoom remembers roomID as the last selected room.
func (s *Store) SelectRoom(ctx context.Context, roomID string) error {
	if _, err := s.Rooms.MustGet(ctx, roomID); err != nil {
		return err
	}
	_, err := s.SetSetting(ctx, SettingLastSelectedRoom, roomID)
	return err
}

// SelectedRoom returns the last selected room id, or "" when none is set.
func (s *Store) SelectedRoom(ctx context.Context) (string, error) {
	var id string
	if _, err := s.Setting(ctx, SettingLastSelectedRoom, &id); err != nil {
		return "", err
	}
	return id, nil
}

// MarkBackup records the time of the last successful backup.
func (s *Store) MarkBackup(ctx context.Context, at time.Time) error {
	_, err := s.SetSetting(ctx, SettingLastBackup, at.UTC().Format(time.RFC3339))
	return err
}

// LastBackup returns the time of the last successful backup, or the zero
// time when none was recorded.
func (s *Store) LastBackup(ctx context.Context) (time.Time, error) {
	var raw string
	found, err := s.Setting(ctx, SettingLastBackup, &raw)
	if err != nil || !found {
		return time.Time{}, err
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse %s: %w", SettingLastBackup, err)
	}
	return t, nil
}
