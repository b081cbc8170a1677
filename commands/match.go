package commands

import (
	"fmt"
	"sort"
	"strconv"

	"github.com/c360studio/matchroom/storage"
	"github.com/spf13/cobra"
)

func newMatchCmd(env Env) *cobra.Command {
	var roomRef string
	cmd := &cobra.Command{
		Use:   "match",
		Short: "Record and review matches",
	}
	addRoomFlag(cmd, &roomRef)
	cmd.AddCommand(
		newMatchRecordCmd(env, &roomRef),
		newMatchListCmd(env, &roomRef),
		newMatchDeleteCmd(env, &roomRef),
	)
	return cmd
}

func newMatchRecordCmd(env Env, roomRef *string) *cobra.Command {
	var notes string
	cmd := &cobra.Command{
		Use:   "record <player1> <score1> <player2> <score2>",
		Short: "Record a match result",
		Example: `  matchroom match record ann 11 bob 7
  matchroom match record ann 9 bob 11 --notes "rematch"`,
		Args: cobra.ExactArgs(4),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			score1, err := parseScore(args[1])
			if err != nil {
				return err
			}
			score2, err := parseScore(args[3])
			if err != nil {
				return err
			}

			store, room, err := roomScope(cmd, env, *roomRef)
			if err != nil {
				return err
			}
			players, err := store.RoomPlayers(ctx, room.ID)
			if err != nil {
				return err
			}
			p1, err := resolvePlayer(players, args[0])
			if err != nil {
				return err
			}
			p2, err := resolvePlayer(players, args[2])
			if err != nil {
				return err
			}

			m, err := store.Matches.Create(ctx, storage.Match{
				RoomID:       room.ID,
				Player1ID:    p1.ID,
				Player2ID:    p2.ID,
				Player1Score: score1,
				Player2Score: score2,
				Notes:        notes,
			})
			if err != nil {
				return err
			}

			names := namesOf(players)
			fmt.Fprintf(cmd.OutOrStdout(), "%s %d - %d %s, %s wins (%s)\n",
				p1.DisplayName(), score1, score2, p2.DisplayName(), names.get(m.WinnerID), m.ID)
			return nil
		},
	}
	cmd.Flags().StringVar(&notes, "notes", "", "Free-form notes")
	return cmd
}

func parseScore(s string) (int, error) {
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("score %q is not a whole number", s)
	}
	return n, nil
}

func newMatchListCmd(env Env, roomRef *string) *cobra.Command {
	var (
		playerRef string
		limit     int
		asJSON    bool
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List matches, newest first",
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

			var matches []storage.Match
			if playerRef != "" {
				player, err := resolvePlayer(players, playerRef)
				if err != nil {
					return err
				}
				matches, err = store.PlayerMatches(ctx, player.ID)
				if err != nil {
					return err
				}
			} else {
				matches, err = store.RoomMatches(ctx, room.ID)
				if err != nil {
					return err
				}
			}
			sort.Slice(matches, func(i, j int) bool { return storage.MoreRecent(matches[i], matches[j]) })
			if limit > 0 && len(matches) > limit {
				matches = matches[:limit]
			}

			out := cmd.OutOrStdout()
			if asJSON {
				return printJSON(out, matches)
			}
			if len(matches) == 0 {
				fmt.Fprintln(out, "No matches recorded.")
				return nil
			}
			names := namesOf(players)
			tw := newTable(out)
			fmt.Fprintln(tw, "DATE\tPLAYER 1\tSCORE\tPLAYER 2\tWINNER\tID")
			for _, m := range matches {
				fmt.Fprintf(tw, "%s\t%s\t%d - %d\t%s\t%s\t%s\n",
					formatDate(m.Date),
					names.get(m.Player1ID),
					m.Player1Score, m.Player2Score,
					names.get(m.Player2ID),
					names.get(m.WinnerID),
					m.ID)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().StringVarP(&playerRef, "player", "p", "", "Only matches of this player")
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum matches to show (0 = all)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print JSON")
	return cmd
}

func newMatchDeleteCmd(env Env, roomRef *string) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <match-id>",
		Short: "Delete a match",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			store, room, err := roomScope(cmd, env, *roomRef)
			if err != nil {
				return err
			}
			m, err := store.Matches.MustGet(ctx, args[0])
			if err != nil {
				return err
			}
			if m.RoomID != room.ID {
				return fmt.Errorf("match %s belongs to another room", m.ID)
			}
			if err := store.Matches.Delete(ctx, m.ID); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted match %s\n", m.ID)
			return nil
		},
	}
}
