// Package stats derives player, room and head-to-head statistics from
// snapshots of players and matches. Every function is pure: it never
// queries storage and never fails; empty input yields zero values.
package stats

import (
	"math"
	"sort"

	"github.com/c360studio/matchroom/storage"
)

// PlayerStats summarizes one player's results.
type PlayerStats struct {
	PlayerID        string  `json:"playerId"`
	Name            string  `json:"name"`
	MatchCount      int     `json:"matchCount"`
	Wins            int     `json:"wins"`
	Losses          int     `json:"losses"`
	WinPercentage   int     `json:"winPercentage"`
	CurrentStreak   int     `json:"currentStreak"`
	StreakIsWinning bool    `json:"streakIsWinning"`
	AvgScoreFor     float64 `json:"avgScoreFor"`
	AvgScoreAgainst float64 `json:"avgScoreAgainst"`
	// WinLossRatio is +Inf for a player with wins and no losses.
	WinLossRatio float64 `json:"-"`
}

// ForPlayer computes a player's statistics. Matches the player did not take
// part in are ignored.
func ForPlayer(player storage.Player, matches []storage.Match) PlayerStats {
	st := PlayerStats{PlayerID: player.ID, Name: player.Name}

	played := involving(player.ID, matches)
	if len(played) == 0 {
		return st
	}

	var scoreFor, scoreAgainst int
	for _, m := range played {
		st.MatchCount++
		if m.WinnerID == player.ID {
			st.Wins++
		} else {
			st.Losses++
		}
		f, a := m.Scores(player.ID)
		scoreFor += f
		scoreAgainst += a
	}

	st.WinPercentage = percent(st.Wins, st.MatchCount)
	st.AvgScoreFor = mean(scoreFor, st.MatchCount)
	st.AvgScoreAgainst = mean(scoreAgainst, st.MatchCount)
	st.WinLossRatio = winLossRatio(st.Wins, st.Losses)
	st.CurrentStreak, st.StreakIsWinning = streak(played, func(m storage.Match) bool {
		return m.WinnerID == player.ID
	})
	return st
}

// Leaderboard ranks every player by win percentage, then total wins, then
// fewest matches played.
func Leaderboard(players []storage.Player, matches []storage.Match) []PlayerStats {
	board := make([]PlayerStats, 0, len(players))
	for _, p := range players {
		board = append(board, ForPlayer(p, matches))
	}
	sort.SliceStable(board, func(i, j int) bool {
		a, b := board[i], board[j]
		if a.WinPercentage != b.WinPercentage {
			return a.WinPercentage > b.WinPercentage
		}
		if a.Wins != b.Wins {
			return a.Wins > b.Wins
		}
		return a.MatchCount < b.MatchCount
	})
	return board
}

// WinShare is one slice of a room's win distribution.
type WinShare struct {
	PlayerID string `json:"playerId"`
	Name     string `json:"name"`
	Wins     int    `json:"wins"`
	// WinPercentage is the player's share of all decided matches.
	WinPercentage int `json:"winPercentage"`
}

// WinDistribution lists every player's wins, most wins first.
func WinDistribution(players []storage.Player, matches []storage.Match) []WinShare {
	wins := make(map[string]int, len(players))
	decided := 0
	for _, m := range matches {
		if m.WinnerID == "" {
			continue
		}
		decided++
		wins[m.WinnerID]++
	}

	out := make([]WinShare, 0, len(players))
	for _, p := range players {
		out = append(out, WinShare{
			PlayerID:      p.ID,
			Name:          p.Name,
			Wins:          wins[p.ID],
			WinPercentage: percent(wins[p.ID], decided),
		})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Wins > out[j].Wins })
	return out
}

func involving(playerID string, matches []storage.Match) []storage.Match {
	out := make([]storage.Match, 0, len(matches))
	for _, m := range matches {
		if m.Involves(playerID) {
			out = append(out, m)
		}
	}
	return out
}

// streak walks matches from most recent to oldest and counts how many share
// the outcome of the most recent one.
func streak(matches []storage.Match, won func(storage.Match) bool) (int, bool) {
	if len(matches) == 0 {
		return 0, false
	}
	ordered := make([]storage.Match, len(matches))
	copy(ordered, matches)
	sort.SliceStable(ordered, func(i, j int) bool {
		return storage.MoreRecent(ordered[i], ordered[j])
	})

	winning := won(ordered[0])
	n := 0
	for _, m := range ordered {
		if won(m) != winning {
			break
		}
		n++
	}
	return n, winning
}

func percent(part, whole int) int {
	if whole == 0 {
		return 0
	}
	return int(math.Round(float64(part) / float64(whole) * 100))
}

func winLossRatio(wins, losses int) float64 {
	switch {
	case losses > 0:
		return float64(wins) / float64(losses)
	case wins > 0:
		return math.Inf(1)
	}
	return 0
}

func mean(total, n int) float64 {
	if n == 0 {
		return 0
	}
	return float64(total) / float64(n)
}
