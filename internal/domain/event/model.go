package event

import "strings"

// Status is the canonical game state derived from a raw feed record.
type Status string

const (
	StatusScheduled Status = "Scheduled"
	StatusLive      Status = "LIVE"
	StatusFinal     Status = "Final"
)

// Raw is one event record as upstream feeds deliver it. Fields are
// heterogeneous and optional: scores arrive as numeric strings or null,
// status and progress are free text, and the start moment may be spread
// across a date, a local time-of-day and a timestamp. A Raw is immutable
// once decoded; classification derives from it and never writes back.
type Raw struct {
	ID        string `json:"idEvent"`
	Name      string `json:"strEvent"`
	LeagueID  string `json:"idLeague"`
	Season    string `json:"strSeason"`
	HomeTeam  string `json:"strHomeTeam"`
	AwayTeam  string `json:"strAwayTeam"`
	HomeScore string `json:"intHomeScore"`
	AwayScore string `json:"intAwayScore"`
	Status    string `json:"strStatus"`
	Progress  string `json:"strProgress"`
	Date      string `json:"dateEvent"`
	DateLocal string `json:"dateEventLocal"`
	Time      string `json:"strTime"`
	TimeLocal string `json:"strTimeLocal"`
	Timestamp string `json:"strTimestamp"`
	Venue     string `json:"strVenue"`
}

// Classified pairs a raw record with its resolved start and status. It is
// recomputed on every use: status depends on the wall clock and must not go
// stale inside a cache window.
type Classified struct {
	Raw         Raw
	StartMillis int64 // 0 when no time field resolved
	Status      Status
}

// DedupKey identifies one real-world event across feeds: the upstream id
// when present, otherwise home, away and date combined.
func (r Raw) DedupKey() string {
	if id := strings.TrimSpace(r.ID); id != "" {
		return "id:" + id
	}
	return strings.ToLower(strings.TrimSpace(r.HomeTeam)) + "|" +
		strings.ToLower(strings.TrimSpace(r.AwayTeam)) + "|" +
		strings.TrimSpace(r.Date)
}
