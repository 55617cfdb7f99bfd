package usecase

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/riskibarqy/scoreboard/internal/domain/event"
	"github.com/riskibarqy/scoreboard/internal/platform/logging"
	"github.com/riskibarqy/scoreboard/internal/platform/resilience"
)

const testLeague = "4387"

var boardNow = time.Date(2026, 3, 7, 18, 0, 0, 0, time.UTC)

type fakeFeeds struct {
	mu      sync.Mutex
	finals  []event.Raw
	live    []event.Raw
	next    []event.Raw
	seasons map[string][]event.Raw
	days    map[string][]event.Raw

	finalsErr error
	liveErr   error
	nextErr   error

	dayQueries    []string
	seasonQueries []string
}

func (f *fakeFeeds) Livescore(_ context.Context, _ string) ([]event.Raw, error) {
	return f.live, f.liveErr
}

func (f *fakeFeeds) NextFixtures(_ context.Context, _ string) ([]event.Raw, error) {
	return f.next, f.nextErr
}

func (f *fakeFeeds) SeasonEvents(_ context.Context, _, season string) ([]event.Raw, error) {
	f.mu.Lock()
	f.seasonQueries = append(f.seasonQueries, season)
	f.mu.Unlock()
	return f.seasons[season], nil
}

func (f *fakeFeeds) RecentFinals(_ context.Context, _ string) ([]event.Raw, error) {
	return f.finals, f.finalsErr
}

func (f *fakeFeeds) EventsByDay(_ context.Context, day time.Time, _ string) ([]event.Raw, error) {
	key := day.Format("2006-01-02")
	f.mu.Lock()
	f.dayQueries = append(f.dayQueries, key)
	f.mu.Unlock()
	return f.days[key], nil
}

func rawAt(id string, offset time.Duration) event.Raw {
	start := boardNow.Add(offset)
	return event.Raw{
		ID:       id,
		LeagueID: testLeague,
		HomeTeam: "Home " + id,
		AwayTeam: "Away " + id,
		Date:     start.Format("2006-01-02"),
		Time:     start.Format("15:04:05"),
	}
}

func finalAt(id string, offset time.Duration) event.Raw {
	r := rawAt(id, offset)
	r.Status = "Match Finished"
	r.HomeScore, r.AwayScore = "102", "99"
	return r
}

func liveAt(id string, offset time.Duration) event.Raw {
	r := rawAt(id, offset)
	r.Status = "2nd Half"
	r.HomeScore, r.AwayScore = "54", "51"
	return r
}

func newTestBoardService(feeds FeedProvider, limiter *resilience.TokenBucket) *BoardService {
	if limiter == nil {
		limiter = resilience.NewTokenBucket(resilience.DefaultTokenBucketConfig())
	}
	svc := NewBoardService(feeds, limiter, logging.NewNop())
	svc.SetClock(func() time.Time { return boardNow })
	return svc
}

func buildRequest(rows int) BoardRequest {
	return BoardRequest{
		Sport:        "basketball",
		SportLabel:   "Basketball",
		LeagueID:     testLeague,
		SeasonLabels: []string{"2025-2026", "2026"},
		Rows:         rows,
	}
}

func TestBuildBoard_OrdersFinalsLiveUpcoming(t *testing.T) {
	t.Parallel()

	feeds := &fakeFeeds{
		finals: []event.Raw{
			finalAt("old", -16*time.Minute), // outside recency window
			finalAt("f1", -10*time.Minute),
		},
		live: []event.Raw{liveAt("l1", -30*time.Minute)},
		next: []event.Raw{
			rawAt("s2", 4*time.Hour),
			rawAt("s1", 1*time.Hour),
			rawAt("s3", 8*time.Hour),
		},
	}
	svc := newTestBoardService(feeds, nil)

	board, err := svc.BuildBoard(context.Background(), buildRequest(5))
	if err != nil {
		t.Fatalf("BuildBoard: %v", err)
	}
	if len(board) != 5 {
		t.Fatalf("expected 5 rows, got=%d", len(board))
	}

	wantIDs := []string{"f1", "l1", "s1", "s2", "s3"}
	for i, want := range wantIDs {
		if board[i].Raw.ID != want {
			t.Fatalf("row %d: got=%s want=%s", i, board[i].Raw.ID, want)
		}
	}
}

func TestBuildBoard_DedupPrefersFinalOverLive(t *testing.T) {
	t.Parallel()

	feeds := &fakeFeeds{
		finals: []event.Raw{finalAt("dup", -5*time.Minute)},
		live:   []event.Raw{liveAt("dup", -5*time.Minute)},
		next: []event.Raw{
			rawAt("s1", time.Hour),
			rawAt("s2", 2*time.Hour),
			rawAt("s3", 3*time.Hour),
			rawAt("s4", 4*time.Hour),
		},
	}
	svc := newTestBoardService(feeds, nil)

	board, err := svc.BuildBoard(context.Background(), buildRequest(5))
	if err != nil {
		t.Fatalf("BuildBoard: %v", err)
	}

	seen := 0
	for _, row := range board {
		if row.Raw.ID == "dup" {
			seen++
			if row.Status != event.StatusFinal {
				t.Fatalf("duplicate kept as %s, want %s", row.Status, event.StatusFinal)
			}
		}
	}
	if seen != 1 {
		t.Fatalf("duplicate appeared %d times, want once", seen)
	}
}

func TestBuildBoard_FeedFailureDegradesToEmptyContribution(t *testing.T) {
	t.Parallel()

	feeds := &fakeFeeds{
		finalsErr: errors.New("provider status=500"),
		liveErr:   errors.New("provider status=429"),
		next: []event.Raw{
			rawAt("s1", time.Hour),
			rawAt("s2", 2*time.Hour),
			rawAt("s3", 3*time.Hour),
			rawAt("s4", 4*time.Hour),
			rawAt("s5", 5*time.Hour),
		},
	}
	svc := newTestBoardService(feeds, nil)

	board, err := svc.BuildBoard(context.Background(), buildRequest(5))
	if err != nil {
		t.Fatalf("feed failures must not surface: %v", err)
	}
	if len(board) != 5 {
		t.Fatalf("expected 5 rows from surviving feed, got=%d", len(board))
	}
}

func TestBuildBoard_SeasonListingsFillShortfall(t *testing.T) {
	t.Parallel()

	feeds := &fakeFeeds{
		next: []event.Raw{rawAt("n1", time.Hour)},
		seasons: map[string][]event.Raw{
			"2025-2026": {
				rawAt("x1", 24 * time.Hour),
				rawAt("x2", 48 * time.Hour),
			},
			"2026": {
				rawAt("y1", 72 * time.Hour),
				rawAt("y2", 96 * time.Hour),
			},
		},
	}
	svc := newTestBoardService(feeds, nil)

	board, err := svc.BuildBoard(context.Background(), buildRequest(5))
	if err != nil {
		t.Fatalf("BuildBoard: %v", err)
	}
	if len(board) != 5 {
		t.Fatalf("expected 5 rows, got=%d", len(board))
	}
	if feeds.seasonQueries[0] != "2025-2026" {
		t.Fatalf("season candidates queried out of order: %v", feeds.seasonQueries)
	}

	wantIDs := []string{"n1", "x1", "x2", "y1", "y2"}
	for i, want := range wantIDs {
		if board[i].Raw.ID != want {
			t.Fatalf("row %d: got=%s want=%s", i, board[i].Raw.ID, want)
		}
	}
}

func TestBuildBoard_DayScanBoundedByTokenGrant(t *testing.T) {
	t.Parallel()

	feeds := &fakeFeeds{
		days: map[string][]event.Raw{
			boardNow.AddDate(0, 0, 1).Format("2006-01-02"): {rawAt("d1", 24 * time.Hour)},
		},
	}
	limiter := resilience.NewTokenBucket(resilience.TokenBucketConfig{
		MaxTokens:      3,
		RefillAmount:   1,
		RefillInterval: time.Hour,
	})
	svc := newTestBoardService(feeds, limiter)

	board, err := svc.BuildBoard(context.Background(), buildRequest(5))
	if err != nil {
		t.Fatalf("BuildBoard: %v", err)
	}
	if len(feeds.dayQueries) != 3 {
		t.Fatalf("day queries=%d, want 3 (one per granted token)", len(feeds.dayQueries))
	}
	if len(board) != 1 || board[0].Raw.ID != "d1" {
		t.Fatalf("unexpected board: %+v", board)
	}
	if limiter.Available() != 0 {
		t.Fatalf("grant should debit the bucket, available=%d", limiter.Available())
	}
}

func TestBuildBoard_DayScanSkippedWhenBucketEmpty(t *testing.T) {
	t.Parallel()

	feeds := &fakeFeeds{}
	limiter := resilience.NewTokenBucket(resilience.TokenBucketConfig{
		MaxTokens:      5,
		RefillAmount:   1,
		RefillInterval: time.Hour,
	})
	limiter.TakeUpTo(5)
	svc := newTestBoardService(feeds, limiter)

	board, err := svc.BuildBoard(context.Background(), buildRequest(5))
	if err != nil {
		t.Fatalf("BuildBoard: %v", err)
	}
	if len(feeds.dayQueries) != 0 {
		t.Fatalf("empty bucket must skip the scan, queried=%v", feeds.dayQueries)
	}
	if len(board) != 0 {
		t.Fatalf("expected empty board, got=%d rows", len(board))
	}
}

func TestBuildBoard_RowCountClamped(t *testing.T) {
	t.Parallel()

	next := make([]event.Raw, 0, 12)
	for i := 0; i < 12; i++ {
		next = append(next, rawAt(string(rune('a'+i)), time.Duration(i+1)*time.Hour))
	}
	feeds := &fakeFeeds{next: next}
	limiter := resilience.NewTokenBucket(resilience.TokenBucketConfig{
		MaxTokens:      1,
		RefillAmount:   1,
		RefillInterval: time.Hour,
	})
	limiter.TakeUpTo(1)
	svc := newTestBoardService(feeds, limiter)

	board, err := svc.BuildBoard(context.Background(), buildRequest(50))
	if err != nil {
		t.Fatalf("BuildBoard: %v", err)
	}
	if len(board) != MaxBoardRows {
		t.Fatalf("rows=%d, want clamp to %d", len(board), MaxBoardRows)
	}
}

func TestBuildBoard_RejectsMissingInput(t *testing.T) {
	t.Parallel()

	svc := newTestBoardService(&fakeFeeds{}, nil)

	_, err := svc.BuildBoard(context.Background(), BoardRequest{Sport: "basketball"})
	if !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("missing league: got %v", err)
	}

	_, err = svc.BuildBoard(context.Background(), BoardRequest{LeagueID: testLeague})
	if !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("missing sport: got %v", err)
	}
}

func TestSeasonLabels(t *testing.T) {
	t.Parallel()

	spring := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	if got := SeasonLabels(spring, true); got[0] != "2025-2026" || got[1] != "2026" {
		t.Fatalf("cross-year spring: %v", got)
	}
	autumn := time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC)
	if got := SeasonLabels(autumn, true); got[0] != "2026-2027" {
		t.Fatalf("cross-year autumn: %v", got)
	}
	if got := SeasonLabels(spring, false); got[0] != "2026" {
		t.Fatalf("single-year first: %v", got)
	}
}

func TestClampRows(t *testing.T) {
	t.Parallel()

	cases := map[int]int{0: 5, 4: 5, 5: 5, 7: 7, 10: 10, 11: 10}
	for in, want := range cases {
		if got := ClampRows(in); got != want {
			t.Fatalf("ClampRows(%d)=%d, want %d", in, got, want)
		}
	}
}
