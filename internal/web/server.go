package web

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"cloud.google.com/go/civil"
	"github.com/google/uuid"
	"github.com/samber/lo"

	"github.com/conorfennell/cardstreak/internal/domain"
	"github.com/conorfennell/cardstreak/internal/streak"
	"github.com/conorfennell/cardstreak/internal/study"
)

// Service is the study API the server exposes.
type Service interface {
	SubmitRating(ctx context.Context, req study.SubmitRequest) (domain.ReviewState, error)
	StudyBatch(ctx context.Context, req study.BatchRequest) ([]study.BatchItem, error)
	Streak(ctx context.Context, userID int64) (study.StreakSummary, error)
	TodayProgress(ctx context.Context, userID int64, dailyGoal int) (streak.Progress, error)
}

// Server holds the dependencies for the HTTP server.
type Server struct {
	svc    Service
	log    *slog.Logger
	router *http.ServeMux
}

// NewServer creates and configures a new server.
func NewServer(svc Service, log *slog.Logger) *Server {
	s := &Server{
		svc:    svc,
		log:    log,
		router: http.NewServeMux(),
	}
	s.routes()
	return s
}

// ServeHTTP implements the http.Handler interface.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.withRequestLog(s.router).ServeHTTP(w, r)
}

// routes sets up the routing for the server.
func (s *Server) routes() {
	s.router.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	s.router.HandleFunc("POST /users/{user}/cards/{card}/reviews", s.handlePostReview())
	s.router.HandleFunc("GET /users/{user}/batch", s.handleGetBatch())
	s.router.HandleFunc("GET /users/{user}/streak", s.handleGetStreak())
	s.router.HandleFunc("GET /users/{user}/progress", s.handleGetProgress())
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// withRequestLog tags every request with an id and logs its outcome.
func (s *Server) withRequestLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-Id")
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-Id", id)

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()
		next.ServeHTTP(rec, r)

		level := slog.LevelInfo
		switch {
		case rec.status >= 500:
			level = slog.LevelError
		case rec.status >= 400:
			level = slog.LevelWarn
		}
		s.log.Log(r.Context(), level, "request completed",
			"request_id", id,
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration", time.Since(start),
		)
	})
}

type reviewRequest struct {
	Rating int  `json:"rating"`
	Cram   bool `json:"cram"`
}

type stateResponse struct {
	CardID       int64       `json:"card_id"`
	EaseFactor   float64     `json:"ease_factor"`
	Interval     int         `json:"interval"`
	Repetitions  int         `json:"repetitions"`
	NextReview   *civil.Date `json:"next_review"`
	LastReviewed *time.Time  `json:"last_reviewed"`
	Status       string      `json:"status"`
}

func toStateResponse(st domain.ReviewState) stateResponse {
	return stateResponse{
		CardID:       st.CardID,
		EaseFactor:   st.EaseFactor,
		Interval:     st.Interval,
		Repetitions:  st.Repetitions,
		NextReview:   st.NextReview,
		LastReviewed: st.LastReviewed,
		Status:       string(st.Status()),
	}
}

type batchItemResponse struct {
	CardID   int64         `json:"card_id"`
	DeckID   int64         `json:"deck_id"`
	Question string        `json:"question"`
	Answer   string        `json:"answer"`
	Context  string        `json:"context,omitempty"`
	Status   string        `json:"status"`
	State    stateResponse `json:"state"`
}

// handlePostReview records a rating for one card.
func (s *Server) handlePostReview() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := pathID(w, r, "user")
		if !ok {
			return
		}
		cardID, ok := pathID(w, r, "card")
		if !ok {
			return
		}

		var body reviewRequest
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}

		state, err := s.svc.SubmitRating(r.Context(), study.SubmitRequest{
			UserID: userID,
			CardID: cardID,
			Rating: domain.Rating(body.Rating),
			Cram:   body.Cram,
		})
		if err != nil {
			s.writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, toStateResponse(state))
	}
}

// handleGetBatch returns the next cards to study.
func (s *Server) handleGetBatch() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := pathID(w, r, "user")
		if !ok {
			return
		}
		q := r.URL.Query()
		deckID, ok := queryInt(w, q.Get("deck"), "deck")
		if !ok {
			return
		}
		limit, ok := queryInt(w, q.Get("limit"), "limit")
		if !ok {
			return
		}

		items, err := s.svc.StudyBatch(r.Context(), study.BatchRequest{
			UserID:   userID,
			DeckID:   deckID,
			Mode:     domain.SessionMode(q.Get("mode")),
			CardType: domain.CardType(q.Get("type")),
			Limit:    int(limit),
		})
		if err != nil {
			s.writeServiceError(w, r, err)
			return
		}

		writeJSON(w, http.StatusOK, map[string]any{
			"count": len(items),
			"cards": lo.Map(items, func(it study.BatchItem, _ int) batchItemResponse {
				return batchItemResponse{
					CardID:   it.Card.ID,
					DeckID:   it.Card.DeckID,
					Question: it.Card.Question,
					Answer:   it.Card.Answer,
					Context:  it.Card.Context,
					Status:   string(it.Status),
					State:    toStateResponse(it.State),
				}
			}),
		})
	}
}

// handleGetStreak reports the user's streak.
func (s *Server) handleGetStreak() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := pathID(w, r, "user")
		if !ok {
			return
		}
		sum, err := s.svc.Streak(r.Context(), userID)
		if err != nil {
			s.writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"current_streak": sum.Current,
			"longest_streak": sum.Longest,
			"studied_today":  sum.StudiedToday,
		})
	}
}

// handleGetProgress reports today's progress toward the daily goal.
func (s *Server) handleGetProgress() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := pathID(w, r, "user")
		if !ok {
			return
		}
		goal, ok := queryInt(w, r.URL.Query().Get("goal"), "goal")
		if !ok {
			return
		}
		p, err := s.svc.TodayProgress(r.Context(), userID, int(goal))
		if err != nil {
			s.writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]int{
			"studied": p.Studied,
			"goal":    p.Goal,
			"percent": p.Percent,
		})
	}
}

func pathID(w http.ResponseWriter, r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue(name), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, "invalid "+name+" id")
		return 0, false
	}
	return id, true
}

func queryInt(w http.ResponseWriter, raw, name string) (int64, bool) {
	if raw == "" {
		return 0, true
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid "+name)
		return 0, false
	}
	return v, true
}

func (s *Server) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, domain.ErrValidation):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrForbidden):
		writeError(w, http.StatusForbidden, "card not found in your decks")
	default:
		s.log.ErrorContext(r.Context(), "request failed", "path", r.URL.Path, "error", err)
		writeError(w, http.StatusInternalServerError, "Internal Server Error")
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
