package commands

import (
	"fmt"
	"sort"

	"github.com/c360studio/matchroom/stats"
	"github.com/c360studio/matchroom/storage"
	"github.com/spf13/cobra"
)

func newPlayerCmd(env Env) *cobra.Command {
	var roomRef string
	cmd := &cobra.Command{
		Use:   "player",
		Short: "Manage the players of a room",
	}
	addRoomFlag(cmd, &roomRef)
	cmd.AddCommand(
		newPlayerAddCmd(env, &roomRef),
		newPlayerListCmd(env, &roomRef),
		newPlayerRenameCmd(env, &roomRef),
		newPlayerDeleteCmd(env, &roomRef),
	)
	return cmd
}

func newPlayerAddCmd(env Env, roomRef *string) *cobra.Command {
	var nickname string
	cmd := &cobra.Command{
		Use:   "add <name>",
		Short: "Add a player",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, room, err := roomScope(cmd, env, *roomRef)
			if err != nil {
				return err
			}
			player, err := store.Players.Create(cmd.Context(), storage.Player{
				RoomID:   room.ID,
				Name:     args[0],
				Nickname: nickname,
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Added %s to %s (%s)\n", player.DisplayName(), room.Name, player.ID)
			return nil
		},
	}
	cmd.Flags().StringVarP(&nickname, "nickname", "n", "", "Nickname shown instead of the name")
	return cmd
}

func newPlayerListCmd(env Env, roomRef *string) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List players with their records",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			store, room, err := roomScope(cmd, env, *roomRef)
			if err != nil {
				return err
			}
			players, err := store.RoomPlayers(ctx, room.ID)
			if err != nil {
				return err
			}
			matches, err := store.RoomMatches(ctx, room.ID)
			if err != nil {
				return err
			}
			sort.Slice(players, func(i, j int) bool {
				if !players[i].CreatedAt.Equal(players[j].CreatedAt) {
					return players[i].CreatedAt.Before(players[j].CreatedAt)
				}
				return players[i].ID < players[j].ID
			})

			out := cmd.OutOrStdout()
			if asJSON {
				return printJSON(out, players)
			}
			if len(players) == 0 {
				fmt.Fprintf(out, "No players in %s yet.\n", room.Name)
				return nil
			}
			tw := newTable(out)
			fmt.Fprintln(tw, "ID\tNAME\tNICKNAME\tMATCHES\tWINS\tLOSSES")
			for _, p := range players {
				st := stats.ForPlayer(p, matches)
				fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%d\t%d\n", p.ID, p.Name, p.Nickname, st.MatchCount, st.Wins, st.Losses)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print JSON")
	return cmd
}

func newPlayerRenameCmd(env Env, roomRef *string) *cobra.Command {
	var nickname string
	cmd := &cobra.Command{
		Use:   "rename <player> <new-name>",
		Short: "Rename a player",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			store, room, err := roomScope(cmd, env, *roomRef)
			if err != nil {
				return err
			}
			players, err := store.RoomPlayers(ctx, room.ID)
			if err != nil {
				return err
			}
			player, err := resolvePlayer(players, args[0])
			if err != nil {
				return err
			}

			patch := storage.PlayerPatch{ID: player.ID, Name: storage.Ptr(args[1])}
			if cmd.Flags().Changed("nickname") {
				patch.Nickname = storage.Ptr(nickname)
			}
			updated, err := store.Players.Update(ctx, patch)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Renamed %s to %s\n", player.Name, updated.Name)
			return nil
		},
	}
	cmd.Flags().StringVarP(&nickname, "nickname", "n", "", "New nickname (empty clears it)")
	return cmd
}

func newPlayerDeleteCmd(env Env, roomRef *string) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <player>",
		Short: "Delete a player. Their matches are kept.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			store, room, err := roomScope(cmd, env, *roomRef)
			if err != nil {
				return err
			}
			players, err := store.RoomPlayers(ctx, room.ID)
			if err != nil {
				return err
			}
			player, err := resolvePlayer(players, args[0])
			if err != nil {
				return err
			}
			if err := store.Players.Delete(ctx, player.ID); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted player %s\n", player.Name)
			return nil
		},
	}
}
