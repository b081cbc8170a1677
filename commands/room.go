package commands

import (
	"fmt"
	"sort"

	"github.com/c360studio/matchroom/storage"
	"github.com/spf13/cobra"
)

func newRoomCmd(env Env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "room",
		Short: "Manage rooms",
	}
	cmd.AddCommand(
		newRoomCreateCmd(env),
		newRoomListCmd(env),
		newRoomShowCmd(env),
		newRoomRenameCmd(env),
		newRoomDeleteCmd(env),
		newRoomUseCmd(env),
	)
	return cmd
}

func newRoomCreateCmd(env Env) *cobra.Command {
	var (
		description string
		use         bool
	)
	cmd := &cobra.Command{
		Use:   "create <name>",
		Short: "Create a room",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			store, err := env.Store(ctx)
			if err != nil {
				return err
			}
			room, err := store.Rooms.Create(ctx, storage.Room{Name: args[0], Description: description})
			if err != nil {
				return err
			}

			// The first room becomes the selected one.
			selected, err := store.SelectedRoom(ctx)
			if err != nil {
				return err
			}
			if use || selected == "" {
				if err := store.SelectRoom(ctx, room.ID); err != nil {
					return err
				}
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Created room %s (%s)\n", room.Name, room.ID)
			return nil
		},
	}
	cmd.Flags().StringVarP(&description, "description", "d", "", "Room description")
	cmd.Flags().BoolVar(&use, "use", false, "Select the new room")
	return cmd
}

type roomListing struct {
	storage.Room
	storage.RoomSummary
	Selected bool `json:"selected"`
}

func newRoomListCmd(env Env) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List rooms",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			store, err := env.Store(ctx)
			if err != nil {
				return err
			}
			rooms, err := store.Rooms.All(ctx)
			if err != nil {
				return err
			}
			sort.Slice(rooms, func(i, j int) bool {
				if !rooms[i].CreatedAt.Equal(rooms[j].CreatedAt) {
					return rooms[i].CreatedAt.Before(rooms[j].CreatedAt)
				}
				return rooms[i].ID < rooms[j].ID
			})
			selected, err := store.SelectedRoom(ctx)
			if err != nil {
				return err
			}

			listing := make([]roomListing, 0, len(rooms))
			for _, r := range rooms {
				summary, err := store.RoomSummary(ctx, r.ID)
				if err != nil {
					return err
				}
				listing = append(listing, roomListing{Room: r, RoomSummary: summary, Selected: r.ID == selected})
			}

			out := cmd.OutOrStdout()
			if asJSON {
				return printJSON(out, listing)
			}
			if len(listing) == 0 {
				fmt.Fprintln(out, "No rooms yet. Create one with 'matchroom room create <name>'.")
				return nil
			}
			tw := newTable(out)
			fmt.Fprintln(tw, "\tID\tNAME\tPLAYERS\tMATCHES\tLAST MATCH")
			for _, l := range listing {
				mark := ""
				if l.Selected {
					mark = "*"
				}
				last := "-"
				if l.MostRecentMatch != nil {
					last = formatDate(l.MostRecentMatch.Date)
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%d\t%s\n", mark, l.ID, l.Name, l.PlayerCount, l.MatchCount, last)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print JSON")
	return cmd
}

func newRoomShowCmd(env Env) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "show [room]",
		Short: "Show a room (default: selected room)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, room, err := roomScope(cmd, env, firstArg(args))
			if err != nil {
				return err
			}
			summary, err := store.RoomSummary(cmd.Context(), room.ID)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if asJSON {
				return printJSON(out, roomListing{Room: room, RoomSummary: summary})
			}
			fmt.Fprintf(out, "Room: %s\n", room.Name)
			fmt.Fprintf(out, "ID: %s\n", room.ID)
			if room.Description != "" {
				fmt.Fprintf(out, "Description: %s\n", room.Description)
			}
			fmt.Fprintf(out, "Created: %s\n", formatDate(room.CreatedAt))
			fmt.Fprintf(out, "Players: %d\n", summary.PlayerCount)
			fmt.Fprintf(out, "Matches: %d\n", summary.MatchCount)
			if summary.MostRecentMatch != nil {
				fmt.Fprintf(out, "Last match: %s\n", formatDate(summary.MostRecentMatch.Date))
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print JSON")
	return cmd
}

func newRoomRenameCmd(env Env) *cobra.Command {
	var description string
	cmd := &cobra.Command{
		Use:   "rename <room> <new-name>",
		Short: "Rename a room",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, room, err := roomScope(cmd, env, args[0])
			if err != nil {
				return err
			}
			patch := storage.RoomPatch{ID: room.ID, Name: storage.Ptr(args[1])}
			if cmd.Flags().Changed("description") {
				patch.Description = storage.Ptr(description)
			}
			updated, err := store.Rooms.Update(cmd.Context(), patch)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Renamed room %s to %s\n", room.Name, updated.Name)
			return nil
		},
	}
	cmd.Flags().StringVarP(&description, "description", "d", "", "New description")
	return cmd
}

func newRoomDeleteCmd(env Env) *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "delete <room>",
		Short: "Delete a room with all its players and matches",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			store, room, err := roomScope(cmd, env, args[0])
			if err != nil {
				return err
			}
			if !yes {
				summary, err := store.RoomSummary(ctx, room.ID)
				if err != nil {
					return err
				}
				return fmt.Errorf("room %s has %d players and %d matches, pass --yes to delete it",
					room.Name, summary.PlayerCount, summary.MatchCount)
			}

			result, err := store.DeleteRoomCascade(ctx, room.ID)
			if err != nil {
				return err
			}

			selected, err := store.SelectedRoom(ctx)
			if err != nil {
				return err
			}
			if selected == room.ID {
				if _, err := store.SetSetting(ctx, storage.SettingLastSelectedRoom, ""); err != nil {
					return err
				}
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Deleted room %s (%d records)\n", room.Name, result.Succeeded())
			return nil
		},
	}
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Confirm the deletion")
	return cmd
}

func newRoomUseCmd(env Env) *cobra.Command {
	return &cobra.Command{
		Use:   "use <room>",
		Short: "Select the room other commands default to",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, room, err := roomScope(cmd, env, args[0])
			if err != nil {
				return err
			}
			if err := store.SelectRoom(cmd.Context(), room.ID); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Using room %s\n", room.Name)
			return nil
		},
	}
}

func firstArg(args []string) string {
	if len(args) == 0 {
		return ""
	}
	return args[0]
}
