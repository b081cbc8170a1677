package export

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sort"

	"github.com/c360studio/matchroom/storage"
)

// Exporter snapshots the store into bundles and merges bundles back.
type Exporter struct {
	store  *storage.Store
	logger *slog.Logger
}

// NewExporter creates an exporter over store.
func NewExporter(store *storage.Store, logger *slog.Logger) *Exporter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Exporter{store: store, logger: logger}
}

// ExportAll snapshots every room, player, match and setting.
func (e *Exporter) ExportAll(ctx context.Context) (*Bundle, error) {
	rooms, err := e.store.Rooms.All(ctx)
	if err != nil {
		return nil, fmt.Errorf("export rooms: %w", err)
	}
	players, err := e.store.Players.All(ctx)
	if err != nil {
		return nil, fmt.Errorf("export players: %w", err)
	}
	matches, err := e.store.Matches.All(ctx)
	if err != nil {
		return nil, fmt.Errorf("export matches: %w", err)
	}
	settings, err := e.store.Settings.All(ctx)
	if err != nil {
		return nil, fmt.Errorf("export settings: %w", err)
	}

	sortRooms(rooms)
	sortPlayers(players)
	sortMatches(matches)
	sort.Slice(settings, func(i, j int) bool { return settings[i].ID < settings[j].ID })

	return &Bundle{
		Version:    SchemaVersion,
		ExportDate: e.store.Now(),
		Rooms:      rooms,
		Players:    players,
		Matches:    matches,
		Settings:   settings,
	}, nil
}

// ExportRoom snapshots one room with its players and matches. A missing
// room is a *storage.NotFoundError.
func (e *Exporter) ExportRoom(ctx context.Context, roomID string) (*Bundle, error) {
	room, err := e.store.Rooms.MustGet(ctx, roomID)
	if err != nil {
		return nil, err
	}
	players, err := e.store.RoomPlayers(ctx, roomID)
	if err != nil {
		return nil, fmt.Errorf("export room %s players: %w", roomID, err)
	}
	matches, err := e.store.RoomMatches(ctx, roomID)
	if err != nil {
		return nil, fmt.Errorf("export room %s matches: %w", roomID, err)
	}

	sortPlayers(players)
	sortMatches(matches)

	return &Bundle{
		Version:    SchemaVersion,
		ExportDate: e.store.Now(),
		Room:       &room,
		Players:    players,
		Matches:    matches,
	}, nil
}

// ImportReport describes what an import wrote.
type ImportReport struct {
	Rooms    int `json:"rooms"`
	Players  int `json:"players"`
	Matches  int `json:"matches"`
	Settings int `json:"settings"`
	// Result holds one item per upserted record.
	Result *storage.BatchResult `json:"-"`
}

// Total is the number of records in the bundle.
func (r *ImportReport) Total() int {
	return r.Rooms + r.Players + r.Matches + r.Settings
}

// Import validates a raw bundle and upserts its records.
func (e *Exporter) Import(ctx context.Context, data []byte) (*ImportReport, error) {
	b, err := Validate(data)
	if err != nil {
		return nil, err
	}
	return e.ImportBundle(ctx, b)
}

// ImportBundle upserts every record of b, overwriting records with the same
// id and leaving every other record alone. Collections are written rooms
// first and settings last; a failing collection stops the import and
// nothing already written is undone.
func (e *Exporter) ImportBundle(ctx context.Context, b *Bundle) (*ImportReport, error) {
	rooms := b.AllRooms()
	report := &ImportReport{
		Rooms:    len(rooms),
		Players:  len(b.Players),
		Matches:  len(b.Matches),
		Settings: len(b.Settings),
		Result:   &storage.BatchResult{},
	}

	steps := []struct {
		coll storage.Collection
		run  func() *storage.BatchResult
	}{
		{storage.CollectionRooms, func() *storage.BatchResult { return storage.PutAll(ctx, e.store.Rooms, rooms) }},
		{storage.CollectionPlayers, func() *storage.BatchResult { return storage.PutAll(ctx, e.store.Players, b.Players) }},
		{storage.CollectionMatches, func() *storage.BatchResult { return storage.PutAll(ctx, e.store.Matches, b.Matches) }},
		{storage.CollectionSettings, func() *storage.BatchResult { return storage.PutAll(ctx, e.store.Settings, b.Settings) }},
	}
	for _, step := range steps {
		res := step.run()
		report.Result.Merge(res)
		if err := res.Err(); err != nil {
			e.logger.Warn("Import stopped",
				"collection", step.coll,
				"failed", len(res.Failed()),
				"written", report.Result.Succeeded())
			return report, fmt.Errorf("import %s: %w", step.coll, err)
		}
	}

	e.logger.Info("Bundle imported",
		"rooms", report.Rooms,
		"players", report.Players,
		"matches", report.Matches,
		"settings", report.Settings)
	return report, nil
}

// ImportFile reads a bundle file, detecting the format from its extension.
func (e *Exporter) ImportFile(ctx context.Context, path string) (*ImportReport, error) {
	format, err := FormatFromPath(path)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read bundle: %w", err)
	}
	raw, err := Decode(data, format)
	if err != nil {
		return nil, err
	}
	report, err := e.Import(ctx, raw)
	if err != nil {
		return report, fmt.Errorf("import %s: %w", path, err)
	}
	return report, nil
}

func sortRooms(rooms []storage.Room) {
	sort.Slice(rooms, func(i, j int) bool {
		if !rooms[i].CreatedAt.Equal(rooms[j].CreatedAt) {
			return rooms[i].CreatedAt.Before(rooms[j].CreatedAt)
		}
		return rooms[i].ID < rooms[j].ID
	})
}

func sortPlayers(players []storage.Player) {
	sort.Slice(players, func(i, j int) bool {
		if !players[i].CreatedAt.Equal(players[j].CreatedAt) {
			return players[i].CreatedAt.Before(players[j].CreatedAt)
		}
		return players[i].ID < players[j].ID
	})
}

func sortMatches(matches []storage.Match) {
	sort.Slice(matches, func(i, j int) bool { return storage.MoreRecent(matches[j], matches[i]) })
}
