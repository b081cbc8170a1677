package commands

import (
	"fmt"
	"io"
	"math"
	"strings"
	"time"

	"github.com/c360studio/matchroom/stats"
	"github.com/c360studio/matchroom/storage"
	"github.com/spf13/cobra"
)

// statsScope carries the flags shared by every stats subcommand.
type statsScope struct {
	room   string
	tz     string
	asJSON bool
}

func (s *statsScope) location() (*time.Location, error) {
	if s.tz == "" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(s.tz)
	if err != nil {
		return nil, fmt.Errorf("time zone %q: %w", s.tz, err)
	}
	return loc, nil
}

// roomData is a snapshot of a room's players and matches.
type roomData struct {
	room    storage.Room
	players []storage.Player
	matches []storage.Match
}

func (s *statsScope) load(cmd *cobra.Command, env Env) (*roomData, error) {
	ctx := cmd.Context()
	store, room, err := roomScope(cmd, env, s.room)
	if err != nil {
		return nil, err
	}
	players, err := store.RoomPlayers(ctx, room.ID)
	if err != nil {
		return nil, err
	}
	matches, err := store.RoomMatches(ctx, room.ID)
	if err != nil {
		return nil, err
	}
	return &roomData{room: room, players: players, matches: matches}, nil
}

func newStatsCmd(env Env) *cobra.Command {
	scope := &statsScope{}
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show player and room statistics",
	}
	addRoomFlag(cmd, &scope.room)
	cmd.PersistentFlags().StringVar(&scope.tz, "tz", "", "IANA time zone for calendar days (default: local)")
	cmd.PersistentFlags().BoolVar(&scope.asJSON, "json", false, "Print JSON")

	cmd.AddCommand(
		newStatsPlayerCmd(env, scope),
		newStatsRoomCmd(env, scope),
		newStatsH2HCmd(env, scope),
		newStatsLeaderboardCmd(env, scope),
		newStatsActivityCmd(env, scope),
		newStatsDistributionCmd(env, scope),
	)
	return cmd
}

// playerStatsView adds a JSON-safe ratio to PlayerStats.
type playerStatsView struct {
	stats.PlayerStats
	WinLossRatio string `json:"winLossRatio"`
}

func viewOf(st stats.PlayerStats) playerStatsView {
	return playerStatsView{PlayerStats: st, WinLossRatio: formatRatio(st.WinLossRatio)}
}

func formatRatio(r float64) string {
	if math.IsInf(r, 1) {
		return "inf"
	}
	return fmt.Sprintf("%.2f", r)
}

func formatStreak(n int, winning bool) string {
	switch {
	case n == 0:
		return "-"
	case winning:
		return fmt.Sprintf("W%d", n)
	}
	return fmt.Sprintf("L%d", n)
}

func newStatsPlayerCmd(env Env, scope *statsScope) *cobra.Command {
	return &cobra.Command{
		Use:   "player <player>",
		Short: "Show one player's record",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := scope.load(cmd, env)
			if err != nil {
				return err
			}
			player, err := resolvePlayer(data.players, args[0])
			if err != nil {
				return err
			}
			st := stats.ForPlayer(player, data.matches)

			out := cmd.OutOrStdout()
			if scope.asJSON {
				return printJSON(out, viewOf(st))
			}
			fmt.Fprintf(out, "Player: %s\n", player.DisplayName())
			fmt.Fprintf(out, "Matches: %d\n", st.MatchCount)
			fmt.Fprintf(out, "Wins: %d\n", st.Wins)
			fmt.Fprintf(out, "Losses: %d\n", st.Losses)
			fmt.Fprintf(out, "Win rate: %d%%\n", st.WinPercentage)
			fmt.Fprintf(out, "W/L ratio: %s\n", formatRatio(st.WinLossRatio))
			fmt.Fprintf(out, "Streak: %s\n", formatStreak(st.CurrentStreak, st.StreakIsWinning))
			fmt.Fprintf(out, "Avg score: %.1f for, %.1f against\n", st.AvgScoreFor, st.AvgScoreAgainst)
			return nil
		},
	}
}

func newStatsRoomCmd(env Env, scope *statsScope) *cobra.Command {
	return &cobra.Command{
		Use:   "room",
		Short: "Show room totals",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			loc, err := scope.location()
			if err != nil {
				return err
			}
			data, err := scope.load(cmd, env)
			if err != nil {
				return err
			}
			st := stats.ForRoom(data.players, data.matches, loc)

			out := cmd.OutOrStdout()
			if scope.asJSON {
				return printJSON(out, st)
			}
			fmt.Fprintf(out, "Room: %s\n", data.room.Name)
			fmt.Fprintf(out, "Matches: %d\n", st.TotalMatches)
			fmt.Fprintf(out, "Active days: %d\n", st.ActiveDays)
			fmt.Fprintf(out, "Matches per day: %.1f\n", st.AvgMatchesPerDay)
			fmt.Fprintf(out, "Avg combined score: %.1f\n", st.AvgScorePerMatch)
			printTally(out, "Most active", st.MostActivePlayer, "matches")
			printTally(out, "Most wins", st.MostWinningPlayer, "wins")
			return nil
		},
	}
}

func printTally(w io.Writer, label string, t *stats.PlayerTally, unit string) {
	if t == nil {
		fmt.Fprintf(w, "%s: -\n", label)
		return
	}
	fmt.Fprintf(w, "%s: %s (%d %s)\n", label, t.Name, t.Count, unit)
}

func newStatsH2HCmd(env Env, scope *statsScope) *cobra.Command {
	return &cobra.Command{
		Use:   "h2h <player> <player>",
		Short: "Compare two players",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := scope.load(cmd, env)
			if err != nil {
				return err
			}
			a, err := resolvePlayer(data.players, args[0])
			if err != nil {
				return err
			}
			b, err := resolvePlayer(data.players, args[1])
			if err != nil {
				return err
			}
			h := stats.HeadToHead(a, b, data.matches)

			out := cmd.OutOrStdout()
			if scope.asJSON {
				return printJSON(out, h)
			}
			if h.Matches == 0 {
				fmt.Fprintf(out, "%s and %s have not played each other.\n", a.DisplayName(), b.DisplayName())
				return nil
			}
			fmt.Fprintf(out, "%s %d - %d %s over %d matches\n", a.DisplayName(), h.A.Wins, h.B.Wins, b.DisplayName(), h.Matches)
			fmt.Fprintf(out, "Avg score: %.1f - %.1f\n", h.A.AvgScore, h.B.AvgScore)
			if h.StreakHolder != "" {
				fmt.Fprintf(out, "Streak: %s has won the last %d\n", namesOf(data.players).get(h.StreakHolder), h.StreakLength)
			}
			return nil
		},
	}
}

func newStatsLeaderboardCmd(env Env, scope *statsScope) *cobra.Command {
	return &cobra.Command{
		Use:   "leaderboard",
		Short: "Rank players by win rate",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := scope.load(cmd, env)
			if err != nil {
				return err
			}
			board := stats.Leaderboard(data.players, data.matches)

			out := cmd.OutOrStdout()
			if scope.asJSON {
				views := make([]playerStatsView, 0, len(board))
				for _, st := range board {
					views = append(views, viewOf(st))
				}
				return printJSON(out, views)
			}
			tw := newTable(out)
			fmt.Fprintln(tw, "#\tPLAYER\tWIN%\tW\tL\tSTREAK")
			for i, st := range board {
				fmt.Fprintf(tw, "%d\t%s\t%d\t%d\t%d\t%s\n",
					i+1, st.Name, st.WinPercentage, st.Wins, st.Losses,
					formatStreak(st.CurrentStreak, st.StreakIsWinning))
			}
			return tw.Flush()
		},
	}
}

func newStatsActivityCmd(env Env, scope *statsScope) *cobra.Command {
	var days int
	cmd := &cobra.Command{
		Use:   "activity",
		Short: "Show matches per day",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			loc, err := scope.location()
			if err != nil {
				return err
			}
			data, err := scope.load(cmd, env)
			if err != nil {
				return err
			}
			activity := stats.MatchActivity(data.matches, days, loc)

			out := cmd.OutOrStdout()
			if scope.asJSON {
				return printJSON(out, activity)
			}
			if len(activity) == 0 {
				fmt.Fprintln(out, "No matches recorded.")
				return nil
			}
			peak := 0
			for _, d := range activity {
				peak = max(peak, d.Count)
			}
			tw := newTable(out)
			for _, d := range activity {
				fmt.Fprintf(tw, "%s\t%d\t%s\n", d.Date, d.Count, bar(d.Count, peak, 30))
			}
			return tw.Flush()
		},
	}
	cmd.Flags().IntVar(&days, "days", 30, "Number of active days to show (0 = all)")
	return cmd
}

func bar(n, peak, width int) string {
	if peak == 0 {
		return ""
	}
	return strings.Repeat("#", max(1, n*width/peak))
}

func newStatsDistributionCmd(env Env, scope *statsScope) *cobra.Command {
	return &cobra.Command{
		Use:   "distribution",
		Short: "Show each player's share of wins",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := scope.load(cmd, env)
			if err != nil {
				return err
			}
			shares := stats.WinDistribution(data.players, data.matches)

			out := cmd.OutOrStdout()
			if scope.asJSON {
				return printJSON(out, shares)
			}
			tw := newTable(out)
			fmt.Fprintln(tw, "PLAYER\tWINS\tSHARE")
			for _, s := range shares {
				fmt.Fprintf(tw, "%s\t%d\t%d%%\n", s.Name, s.Wins, s.WinPercentage)
			}
			return tw.Flush()
		},
	}
}
