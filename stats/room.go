package stats

import (
	"sort"
	"time"

	"github.com/c360studio/matchroom/storage"
)

// PlayerTally pairs a player with a count.
type PlayerTally struct {
	PlayerID string `json:"playerId"`
	Name     string `json:"name"`
	Count    int    `json:"count"`
}

// RoomStats summarizes a room's activity.
type RoomStats struct {
	TotalMatches int `json:"totalMatches"`
	// AvgScorePerMatch is the mean of both players' scores added together.
	AvgScorePerMatch  float64      `json:"avgScorePerMatch"`
	AvgMatchesPerDay  float64      `json:"avgMatchesPerDay"`
	ActiveDays        int          `json:"activeDays"`
	MostActivePlayer  *PlayerTally `json:"mostActivePlayer,omitempty"`
	MostWinningPlayer *PlayerTally `json:"mostWinningPlayer,omitempty"`
}

// ForRoom computes room statistics. Days are calendar days in loc; a nil
// loc means the local time zone.
func ForRoom(players []storage.Player, matches []storage.Match, loc *time.Location) RoomStats {
	st := RoomStats{TotalMatches: len(matches)}
	if len(matches) == 0 {
		return st
	}

	total := 0
	days := make(map[time.Time]bool)
	for _, m := range matches {
		total += m.Player1Score + m.Player2Score
		days[day(m.Date, loc)] = true
	}
	st.AvgScorePerMatch = mean(total, len(matches))
	st.ActiveDays = len(days)
	st.AvgMatchesPerDay = mean(len(matches), len(days))

	played := make(map[string]int)
	wins := make(map[string]int)
	for _, m := range matches {
		played[m.Player1ID]++
		played[m.Player2ID]++
		if m.WinnerID != "" {
			wins[m.WinnerID]++
		}
	}
	st.MostActivePlayer = top(players, played)
	st.MostWinningPlayer = top(players, wins)
	return st
}

// top returns the first player with the highest non-zero count.
func top(players []storage.Player, counts map[string]int) *PlayerTally {
	var best *PlayerTally
	for _, p := range players {
		n := counts[p.ID]
		if n == 0 || (best != nil && n <= best.Count) {
			continue
		}
		best = &PlayerTally{PlayerID: p.ID, Name: p.Name, Count: n}
	}
	return best
}

// Side is one player's half of a head-to-head record.
type Side struct {
	PlayerID string  `json:"playerId"`
	Name     string  `json:"name"`
	Wins     int     `json:"wins"`
	AvgScore float64 `json:"avgScore"`
}

// HeadToHeadStats is the record between two players.
type HeadToHeadStats struct {
	A       Side `json:"a"`
	B       Side `json:"b"`
	Matches int  `json:"matches"`
	// StreakHolder won the most recent meetings in a row; empty when the
	// two have never met.
	StreakHolder string `json:"streakHolder,omitempty"`
	StreakLength int    `json:"streakLength"`
}

// HeadToHead compares two players over the matches they played against
// each other, regardless of which side each was on.
func HeadToHead(a, b storage.Player, matches []storage.Match) HeadToHeadStats {
	h := HeadToHeadStats{
		A: Side{PlayerID: a.ID, Name: a.Name},
		B: Side{PlayerID: b.ID, Name: b.Name},
	}

	var meetings []storage.Match
	for _, m := range matches {
		if m.Involves(a.ID) && m.Involves(b.ID) && a.ID != b.ID {
			meetings = append(meetings, m)
		}
	}
	if len(meetings) == 0 {
		return h
	}
	h.Matches = len(meetings)

	var scoreA, scoreB int
	for _, m := range meetings {
		switch m.WinnerID {
		case a.ID:
			h.A.Wins++
		case b.ID:
			h.B.Wins++
		}
		sa, sb := m.Scores(a.ID)
		scoreA += sa
		scoreB += sb
	}
	h.A.AvgScore = mean(scoreA, len(meetings))
	h.B.AvgScore = mean(scoreB, len(meetings))

	latest := meetings[0]
	for _, m := range meetings[1:] {
		if storage.MoreRecent(m, latest) {
			latest = m
		}
	}
	if latest.WinnerID != "" {
		h.StreakHolder = latest.WinnerID
		h.StreakLength, _ = streak(meetings, func(m storage.Match) bool {
			return m.WinnerID == h.StreakHolder
		})
	}
	return h
}

// DayActivity groups the matches played on one calendar day.
type DayActivity struct {
	Day     time.Time       `json:"-"`
	Date    string          `json:"date"`
	Count   int             `json:"count"`
	Matches []storage.Match `json:"matches,omitempty"`
}

// MatchActivity groups matches by calendar day in ascending order and keeps
// the latest dayLimit days that have any activity. Days without matches are
// not filled in. A dayLimit of zero or less keeps every day.
func MatchActivity(matches []storage.Match, dayLimit int, loc *time.Location) []DayActivity {
	byDay := make(map[time.Time][]storage.Match)
	for _, m := range matches {
		d := day(m.Date, loc)
		byDay[d] = append(byDay[d], m)
	}

	out := make([]DayActivity, 0, len(byDay))
	for d, ms := range byDay {
		sort.SliceStable(ms, func(i, j int) bool { return storage.MoreRecent(ms[j], ms[i]) })
		out = append(out, DayActivity{
			Day:     d,
			Date:    d.Format(time.DateOnly),
			Count:   len(ms),
			Matches: ms,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Day.Before(out[j].Day) })

	if dayLimit > 0 && len(out) > dayLimit {
		out = out[len(out)-dayLimit:]
	}
	return out
}

func day(t time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.Local
	}
	y, m, d := t.In(loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, loc)
}
