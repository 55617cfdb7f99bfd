package event

import (
	"strconv"
	"strings"
	"time"
)

const (
	// scheduledGrace keeps an event Scheduled while its start is still in
	// the near future, absorbing clock skew between feeds and this host.
	scheduledGrace = 90 * time.Second

	// minLiveElapsed is how long past kickoff a scoreless, token-less
	// event must be before elapsed time alone marks it live.
	minLiveElapsed = 5 * time.Minute

	// FinalRecencyWindow bounds how long a completed event stays on the
	// board after its start moment.
	FinalRecencyWindow = 15 * time.Minute
)

// finalPhrases end an event when the status or progress text contains them.
// "finished" covers the provider's canonical "Match Finished" status.
var finalPhrases = []string{"final", "finished", "full time", "full-time"}

// inGamePhrases signal play in progress wherever they appear in the text.
var inGamePhrases = []string{"quarter", "period", "inning", "half", "overtime", "in progress", "live"}

// inGameWords signal play in progress only as standalone tokens; most are
// short enough to collide with team names as substrings.
var inGameWords = map[string]struct{}{
	"ht": {}, "ot": {},
	"q1": {}, "q2": {}, "q3": {}, "q4": {},
	"1st": {}, "2nd": {}, "3rd": {}, "4th": {},
	"top": {}, "bottom": {},
}

var dateTimeLayouts = []string{
	"2006-01-02 15:04:05Z07:00",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04Z07:00",
	"2006-01-02 15:04",
}

var timestampLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
}

// ResolveStartTime extracts the event's start as epoch milliseconds, trying
// the most explicit field combinations first: UTC date+time, localized
// date+time, the timestamp field (millisecond or second integer, or a
// datetime string), then date-only at midnight UTC. Returns 0 when nothing
// parses.
func ResolveStartTime(r Raw) int64 {
	if ms := parseDateTime(r.Date, r.Time); ms != 0 {
		return ms
	}
	if ms := parseDateTime(r.DateLocal, r.TimeLocal); ms != 0 {
		return ms
	}
	if ms := parseTimestamp(r.Timestamp); ms != 0 {
		return ms
	}
	if ms := parseDateOnly(r.Date); ms != 0 {
		return ms
	}
	return parseDateOnly(r.DateLocal)
}

func parseDateTime(date, clock string) int64 {
	date, clock = strings.TrimSpace(date), strings.TrimSpace(clock)
	if date == "" || clock == "" {
		return 0
	}
	for _, layout := range dateTimeLayouts {
		if t, err := time.ParseInLocation(layout, date+" "+clock, time.UTC); err == nil {
			return t.UnixMilli()
		}
	}
	return 0
}

func parseTimestamp(raw string) int64 {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0
	}
	if n, err := strconv.ParseInt(raw, 10, 64); err == nil {
		if n >= 1e12 {
			return n // already milliseconds
		}
		if n > 0 {
			return n * 1000
		}
		return 0
	}
	for _, layout := range timestampLayouts {
		if t, err := time.ParseInLocation(layout, raw, time.UTC); err == nil {
			return t.UnixMilli()
		}
	}
	return 0
}

func parseDateOnly(date string) int64 {
	date = strings.TrimSpace(date)
	if date == "" {
		return 0
	}
	t, err := time.ParseInLocation("2006-01-02", date, time.UTC)
	if err != nil {
		return 0
	}
	return t.UnixMilli()
}

// Classify resolves an event's start and derives its status at the given
// instant. Finished vocabulary wins outright. Otherwise a future start
// beyond the grace window means Scheduled; a start at or before now+grace
// means live only when the score, an in-game token, or enough elapsed time
// corroborates it. Events with no resolvable start need both a token and a
// score to count as live.
func Classify(r Raw, now time.Time) Classified {
	c := Classified{Raw: r, StartMillis: ResolveStartTime(r)}

	text := strings.ToLower(r.Status + " " + r.Progress)
	if containsAny(text, finalPhrases) || hasWord(text, "ft") {
		c.Status = StatusFinal
		return c
	}

	token := containsAny(text, inGamePhrases) || hasAnyWord(text)
	scored := combinedScore(r) > 0
	nowMs := now.UnixMilli()

	switch {
	case c.StartMillis == 0:
		if token && scored {
			c.Status = StatusLive
		} else {
			c.Status = StatusScheduled
		}
	case c.StartMillis > nowMs+scheduledGrace.Milliseconds():
		c.Status = StatusScheduled
	case scored || token || nowMs-c.StartMillis >= minLiveElapsed.Milliseconds():
		c.Status = StatusLive
	default:
		c.Status = StatusScheduled
	}
	return c
}

// WithinFinalWindow reports whether a completed event is still recent
// enough to show. Finals with no resolvable start are dropped rather than
// lingering forever.
func WithinFinalWindow(c Classified, now time.Time) bool {
	if c.StartMillis == 0 {
		return false
	}
	return now.UnixMilli()-c.StartMillis <= FinalRecencyWindow.Milliseconds()
}

func combinedScore(r Raw) int {
	return parseScore(r.HomeScore) + parseScore(r.AwayScore)
}

func parseScore(raw string) int {
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || n < 0 {
		return 0
	}
	return n
}

func containsAny(text string, phrases []string) bool {
	for _, p := range phrases {
		if strings.Contains(text, p) {
			return true
		}
	}
	return false
}

func hasAnyWord(text string) bool {
	for _, w := range strings.Fields(text) {
		if _, ok := inGameWords[w]; ok {
			return true
		}
	}
	return false
}

func hasWord(text, word string) bool {
	for _, w := range strings.Fields(text) {
		if w == word {
			return true
		}
	}
	return false
}
