package httpapi

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/riskibarqy/scoreboard/internal/domain/event"
	"github.com/riskibarqy/scoreboard/internal/platform/logging"
	"github.com/riskibarqy/scoreboard/internal/usecase"
)

type Handler struct {
	boardService *usecase.BoardService
	logger       *logging.Logger
	validator    *validator.Validate
	defaultRows  int
	crossYear    func(sport string) bool
	now          func() time.Time
}

func NewHandler(boardService *usecase.BoardService, logger *logging.Logger, defaultRows int, crossYear func(string) bool) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	if crossYear == nil {
		crossYear = func(string) bool { return false }
	}

	return &Handler{
		boardService: boardService,
		logger:       logger,
		validator:    validator.New(),
		defaultRows:  defaultRows,
		crossYear:    crossYear,
		now:          time.Now,
	}
}

// SetClock overrides the wall clock, for tests only.
func (h *Handler) SetClock(now func() time.Time) {
	if now != nil {
		h.now = now
	}
}

func (h *Handler) Healthz(w http.ResponseWriter, r *http.Request) {
	ctx, span := startSpan(r.Context(), "httpapi.Handler.Healthz")
	defer span.End()

	writeSuccess(ctx, w, http.StatusOK, map[string]string{"status": "ok"})
}

type boardQuery struct {
	Sport  string `validate:"required,max=40"`
	League string `validate:"required,max=20"`
}

type boardRowDTO struct {
	Team1    string  `json:"team1"`
	Team2    string  `json:"team2"`
	Score1   string  `json:"score1"`
	Score2   string  `json:"score2"`
	Headline string  `json:"headline"`
	Start    *string `json:"start"`
}

func (h *Handler) GetBoard(w http.ResponseWriter, r *http.Request) {
	ctx, span := startSpan(r.Context(), "httpapi.Handler.GetBoard")
	defer span.End()

	query := boardQuery{
		Sport:  strings.TrimSpace(r.URL.Query().Get("sport")),
		League: strings.TrimSpace(r.URL.Query().Get("league")),
	}
	if err := h.validator.Struct(query); err != nil {
		writeError(ctx, w, fmt.Errorf("%w: %s", usecase.ErrInvalidInput, err.Error()))
		return
	}

	rows := h.defaultRows
	if rawN := strings.TrimSpace(r.URL.Query().Get("n")); rawN != "" {
		parsed, err := strconv.Atoi(rawN)
		if err != nil {
			writeError(ctx, w, fmt.Errorf("%w: n must be an integer", usecase.ErrInvalidInput))
			return
		}
		rows = parsed
	}

	sport := strings.ToLower(query.Sport)
	board, err := h.boardService.BuildBoard(ctx, usecase.BoardRequest{
		Sport:        sport,
		SportLabel:   sportLabel(sport),
		LeagueID:     query.League,
		SeasonLabels: usecase.SeasonLabels(h.now().UTC(), h.crossYear(sport)),
		Rows:         rows,
	})
	if err != nil {
		h.logger.WarnContext(ctx, "build board failed", "sport", sport, "league_id", query.League, "error", err)
		writeError(ctx, w, err)
		return
	}

	items := make([]boardRowDTO, 0, len(board))
	for _, row := range board {
		items = append(items, boardRowToDTO(row))
	}
	writeSuccess(ctx, w, http.StatusOK, items)
}

func boardRowToDTO(row event.Classified) boardRowDTO {
	home := strings.TrimSpace(row.Raw.HomeTeam)
	away := strings.TrimSpace(row.Raw.AwayTeam)

	var start *string
	if row.StartMillis != 0 {
		formatted := time.UnixMilli(row.StartMillis).UTC().Format(time.RFC3339)
		start = &formatted
	}

	return boardRowDTO{
		Team1:    home,
		Team2:    away,
		Score1:   scoreText(row.Raw.HomeScore),
		Score2:   scoreText(row.Raw.AwayScore),
		Headline: home + " vs " + away + " - " + string(row.Status),
		Start:    start,
	}
}

func scoreText(raw string) string {
	raw = strings.TrimSpace(raw)
	if _, err := strconv.Atoi(raw); err != nil {
		return "N/A"
	}
	return raw
}

// sportLabel turns a path-style sport name into the provider's display label
// used by day queries, e.g. "ice_hockey" becomes "Ice Hockey".
func sportLabel(sport string) string {
	words := strings.FieldsFunc(sport, func(r rune) bool { return r == '_' || r == '-' || r == ' ' })
	for i, word := range words {
		words[i] = strings.ToUpper(word[:1]) + word[1:]
	}
	return strings.Join(words, " ")
}
