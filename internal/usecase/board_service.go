package usecase

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/sourcegraph/conc"

	"github.com/riskibarqy/scoreboard/internal/domain/event"
	"github.com/riskibarqy/scoreboard/internal/platform/logging"
	"github.com/riskibarqy/scoreboard/internal/platform/resilience"
)

const (
	MinBoardRows = 5
	MaxBoardRows = 10

	maxDayScanDays   = 30
	dayScanNeedFloor = 10
)

// FeedProvider is the upstream feed surface the board needs. The production
// implementation lives in external/sportsdb.
type FeedProvider interface {
	Livescore(ctx context.Context, sport string) ([]event.Raw, error)
	NextFixtures(ctx context.Context, leagueID string) ([]event.Raw, error)
	SeasonEvents(ctx context.Context, leagueID, season string) ([]event.Raw, error)
	RecentFinals(ctx context.Context, leagueID string) ([]event.Raw, error)
	EventsByDay(ctx context.Context, day time.Time, sportLabel string) ([]event.Raw, error)
}

type BoardRequest struct {
	Sport        string // livescore path segment, lowercase
	SportLabel   string // provider's display label for day queries
	LeagueID     string
	SeasonLabels []string // candidate season listings, most likely first
	Rows         int
}

// BoardService assembles the scoreboard for one league: recent finals, then
// live play, then enough upcoming events to fill the requested row count.
// Every feed failure degrades to an empty contribution; only invalid input
// surfaces as an error.
type BoardService struct {
	feeds   FeedProvider
	limiter *resilience.TokenBucket
	logger  *logging.Logger
	now     func() time.Time
}

func NewBoardService(feeds FeedProvider, limiter *resilience.TokenBucket, logger *logging.Logger) *BoardService {
	if logger == nil {
		logger = logging.Default()
	}
	return &BoardService{
		feeds:   feeds,
		limiter: limiter,
		logger:  logger,
		now:     time.Now,
	}
}

// SetClock overrides the wall clock, for tests only.
func (s *BoardService) SetClock(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// ClampRows bounds the requested row count to what the board supports.
func ClampRows(n int) int {
	if n < MinBoardRows {
		return MinBoardRows
	}
	if n > MaxBoardRows {
		return MaxBoardRows
	}
	return n
}

// SeasonLabels returns candidate season labels for listings at the given
// instant. Sports whose seasons span the year boundary label them
// "startYear-endYear"; those candidates go first when crossYear is set.
func SeasonLabels(now time.Time, crossYear bool) []string {
	year := now.UTC().Year()
	single := strconv.Itoa(year)

	span := fmt.Sprintf("%d-%d", year-1, year)
	if now.UTC().Month() >= time.July {
		span = fmt.Sprintf("%d-%d", year, year+1)
	}

	if crossYear {
		return []string{span, single}
	}
	return []string{single, span}
}

func (s *BoardService) BuildBoard(ctx context.Context, req BoardRequest) ([]event.Classified, error) {
	ctx, span := startBoardSpan(ctx, "BoardService.BuildBoard", req)
	defer span.End()

	req.Sport = strings.TrimSpace(req.Sport)
	req.LeagueID = strings.TrimSpace(req.LeagueID)
	if req.Sport == "" {
		return nil, fmt.Errorf("%w: sport is required", ErrInvalidInput)
	}
	if req.LeagueID == "" {
		return nil, fmt.Errorf("%w: league id is required", ErrInvalidInput)
	}
	rows := ClampRows(req.Rows)
	now := s.now().UTC()

	// The first three feeds are independent; fetch them together and merge
	// in stage order below.
	var finalsRaw, liveRaw, nextRaw []event.Raw
	var wg conc.WaitGroup
	wg.Go(func() {
		finalsRaw = s.fetchFeed(ctx, "recent_finals", func(ctx context.Context) ([]event.Raw, error) {
			return s.feeds.RecentFinals(ctx, req.LeagueID)
		})
	})
	wg.Go(func() {
		liveRaw = s.fetchFeed(ctx, "livescore", func(ctx context.Context) ([]event.Raw, error) {
			return s.feeds.Livescore(ctx, req.Sport)
		})
	})
	wg.Go(func() {
		nextRaw = s.fetchFeed(ctx, "next_fixtures", func(ctx context.Context) ([]event.Raw, error) {
			return s.feeds.NextFixtures(ctx, req.LeagueID)
		})
	})
	wg.Wait()

	board := make([]event.Classified, 0, rows)
	seen := make(map[string]struct{}, rows*2)
	add := func(c event.Classified) {
		key := c.Raw.DedupKey()
		if _, dup := seen[key]; dup {
			return
		}
		seen[key] = struct{}{}
		board = append(board, c)
	}

	for _, c := range s.classifyLeague(finalsRaw, req.LeagueID, now) {
		if c.Status == event.StatusFinal && event.WithinFinalWindow(c, now) {
			add(c)
		}
	}

	for _, c := range s.classifyLeague(liveRaw, req.LeagueID, now) {
		if c.Status == event.StatusLive {
			add(c)
		}
	}

	for _, c := range upcomingSoonestFirst(s.classifyLeague(nextRaw, req.LeagueID, now), now) {
		if len(board) >= rows {
			break
		}
		add(c)
	}

	if len(board) < rows {
		s.fillFromSeasons(ctx, req, now, rows, add, func() int { return len(board) })
	}
	if len(board) < rows {
		s.fillFromDayScan(ctx, req, now, rows, add, func() int { return len(board) })
	}

	sort.SliceStable(board, func(i, j int) bool { return event.Less(board[i], board[j]) })
	if len(board) > rows {
		board = board[:rows]
	}
	return board, nil
}

func (s *BoardService) fillFromSeasons(ctx context.Context, req BoardRequest, now time.Time, rows int, add func(event.Classified), size func() int) {
	for _, label := range req.SeasonLabels {
		if size() >= rows {
			return
		}
		raw := s.fetchFeed(ctx, "season_"+label, func(ctx context.Context) ([]event.Raw, error) {
			return s.feeds.SeasonEvents(ctx, req.LeagueID, label)
		})
		for _, c := range upcomingSoonestFirst(s.classifyLeague(raw, req.LeagueID, now), now) {
			if size() >= rows {
				break
			}
			add(c)
		}
	}
}

// fillFromDayScan walks forward one calendar day per query. The token grant
// is debited up front; a zero grant skips the scan outright.
func (s *BoardService) fillFromDayScan(ctx context.Context, req BoardRequest, now time.Time, rows int, add func(event.Classified), size func() int) {
	shortfall := rows - size()
	want := 2 * shortfall
	if want < dayScanNeedFloor {
		want = dayScanNeedFloor
	}
	grant := s.limiter.TakeUpTo(want)
	if grant == 0 {
		s.logger.WarnContext(ctx, "day scan skipped: token bucket empty",
			"league_id", req.LeagueID, "shortfall", shortfall)
		return
	}

	for day := 0; day < maxDayScanDays && day < grant; day++ {
		if size() >= rows {
			return
		}
		date := now.AddDate(0, 0, day)
		raw := s.fetchFeed(ctx, "events_day", func(ctx context.Context) ([]event.Raw, error) {
			return s.feeds.EventsByDay(ctx, date, req.SportLabel)
		})
		for _, c := range upcomingSoonestFirst(s.classifyLeague(raw, req.LeagueID, now), now) {
			if size() >= rows {
				return
			}
			add(c)
		}
	}
}

func (s *BoardService) fetchFeed(ctx context.Context, stage string, fetch func(context.Context) ([]event.Raw, error)) []event.Raw {
	items, err := fetch(ctx)
	if err != nil {
		s.logger.WarnContext(ctx, "board feed degraded to empty contribution", "stage", stage, "error", err)
		return nil
	}
	return items
}

func (s *BoardService) classifyLeague(raw []event.Raw, leagueID string, now time.Time) []event.Classified {
	out := make([]event.Classified, 0, len(raw))
	for _, r := range raw {
		if strings.TrimSpace(r.LeagueID) != leagueID {
			continue
		}
		out = append(out, event.Classify(r, now))
	}
	return out
}

// upcomingSoonestFirst keeps only future scheduled events, ordered ascending
// with unresolved starts last. Events with no resolvable start stay in: they
// are usually far-future fixtures the provider has not timed yet.
func upcomingSoonestFirst(items []event.Classified, now time.Time) []event.Classified {
	nowMs := now.UnixMilli()
	out := make([]event.Classified, 0, len(items))
	for _, c := range items {
		if c.Status != event.StatusScheduled {
			continue
		}
		if c.StartMillis != 0 && c.StartMillis <= nowMs {
			continue
		}
		out = append(out, c)
	}
	sort.SliceStable(out, func(i, j int) bool { return event.Less(out[i], out[j]) })
	return out
}
