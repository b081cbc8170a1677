package commands

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/c360studio/matchroom/storage"
	"github.com/spf13/cobra"
)

// ErrNoRoom is returned when a command needs a room and none was given or
// selected.
var ErrNoRoom = errors.New("no room given and none selected, run 'matchroom room use <room>'")

// resolveRoom finds a room by id or by case-insensitive name. An empty ref
// means the last selected room.
func resolveRoom(ctx context.Context, store *storage.Store, ref string) (storage.Room, error) {
	if ref == "" {
		selected, err := store.SelectedRoom(ctx)
		if err != nil {
			return storage.Room{}, err
		}
		if selected == "" {
			return storage.Room{}, ErrNoRoom
		}
		return store.Rooms.MustGet(ctx, selected)
	}

	if room, found, err := store.Rooms.Get(ctx, ref); err != nil {
		return storage.Room{}, err
	} else if found {
		return room, nil
	}

	rooms, err := store.Rooms.All(ctx)
	if err != nil {
		return storage.Room{}, err
	}
	var matched []storage.Room
	for _, r := range rooms {
		if strings.EqualFold(r.Name, ref) {
			matched = append(matched, r)
		}
	}
	switch len(matched) {
	case 0:
		return storage.Room{}, &storage.NotFoundError{Collection: storage.CollectionRooms, ID: ref}
	case 1:
		return matched[0], nil
	}
	return storage.Room{}, fmt.Errorf("room name %q is ambiguous, use an id", ref)
}

// resolvePlayer finds a player of the room by id, name or nickname.
func resolvePlayer(players []storage.Player, ref string) (storage.Player, error) {
	for _, p := range players {
		if p.ID == ref {
			return p, nil
		}
	}
	var matched []storage.Player
	for _, p := range players {
		if strings.EqualFold(p.Name, ref) || (p.Nickname != "" && strings.EqualFold(p.Nickname, ref)) {
			matched = append(matched, p)
		}
	}
	switch len(matched) {
	case 0:
		return storage.Player{}, &storage.NotFoundError{Collection: storage.CollectionPlayers, ID: ref}
	case 1:
		return matched[0], nil
	}
	return storage.Player{}, fmt.Errorf("player %q is ambiguous, use an id", ref)
}

// roomScope loads the store and the room named by the --room flag.
func roomScope(cmd *cobra.Command, env Env, ref string) (*storage.Store, storage.Room, error) {
	store, err := env.Store(cmd.Context())
	if err != nil {
		return nil, storage.Room{}, err
	}
	room, err := resolveRoom(cmd.Context(), store, ref)
	if err != nil {
		return nil, storage.Room{}, err
	}
	return store, room, nil
}

// playerNames maps player ids to display names. Matches may reference
// deleted players; those fall back to the raw id.
type playerNames map[string]string

func namesOf(players []storage.Player) playerNames {
	names := make(playerNames, len(players))
	for _, p := range players {
		names[p.ID] = p.DisplayName()
	}
	return names
}

func (n playerNames) get(id string) string {
	if name, ok := n[id]; ok {
		return name
	}
	return id
}

func addRoomFlag(cmd *cobra.Command, ref *string) {
	cmd.PersistentFlags().StringVarP(ref, "room", "r", "", "Room id or name (default: selected room)")
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func newTable(w io.Writer) *tabwriter.Writer {
	return tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
}

func formatDate(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format("2006-01-02 15:04")
}
