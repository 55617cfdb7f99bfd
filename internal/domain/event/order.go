package event

// statusRank orders board buckets: finals first, then live, then upcoming.
func statusRank(s Status) int {
	switch s {
	case StatusFinal:
		return 0
	case StatusLive:
		return 1
	default:
		return 2
	}
}

// Less defines board order. Buckets sort by status rank; within a bucket,
// finals run newest first and live/scheduled events run soonest first.
// Events with no resolvable start sort after resolved ones in every bucket.
func Less(a, b Classified) bool {
	ra, rb := statusRank(a.Status), statusRank(b.Status)
	if ra != rb {
		return ra < rb
	}
	if a.StartMillis == 0 || b.StartMillis == 0 {
		return a.StartMillis != 0 && b.StartMillis == 0
	}
	if a.Status == StatusFinal {
		return a.StartMillis > b.StartMillis
	}
	return a.StartMillis < b.StartMillis
}
