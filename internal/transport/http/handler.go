package http

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/go-playground/validator/v10"

	"eduquiz-service/internal/app"
	"eduquiz-service/internal/domain"
)

// studentHeader carries the verified caller identity. Token verification
// happens upstream; by the time a request lands here the ID is trusted.
const studentHeader = "X-Student-ID"

// QuizLister exposes the published catalog for the availability view.
type QuizLister interface {
	ListActiveQuizzes(ctx context.Context) ([]domain.Quiz, error)
}

// Handler wires the quiz-attempt use cases into a REST surface.
type Handler struct {
	attempts *app.AttemptService
	ranking  *app.RankingService
	stats    *app.StatsService
	quizzes  QuizLister
	validate *validator.Validate
}

func NewHandler(attempts *app.AttemptService, ranking *app.RankingService, stats *app.StatsService, quizzes QuizLister) *Handler {
	return &Handler{
		attempts: attempts,
		ranking:  ranking,
		stats:    stats,
		quizzes:  quizzes,
		validate: validator.New(),
	}
}

// Routes builds the router, including the websocket ranking feed.
func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", studentHeader},
	}))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/quizzes", h.listQuizzes)
		r.Post("/quizzes/{quizID}/attempts", h.startAttempt)
		r.Post("/quizzes/{quizID}/submission", h.submitFullQuiz)
		r.Post("/attempts/{attemptID}/answers", h.submitAnswer)
		r.Get("/attempts/{attemptID}/progress", h.getProgress)
		r.Post("/attempts/{attemptID}/complete", h.completeAttempt)
		r.Get("/rankings/{categoryID}", h.getRanking)
		r.Get("/me/dashboard", h.getDashboard)
		r.Get("/me/performance", h.getPerformance)
	})

	r.Get("/ws/rankings", NewRankingWSHandler(h.ranking).ServeWS)
	return r
}

type submitAnswerRequest struct {
	QuestionID string `json:"questionId" validate:"required"`
	OptionID   string `json:"optionId"`
	Text       string `json:"text"`
}

type fullQuizRequest struct {
	Answers []submitAnswerRequest `json:"answers" validate:"required,min=1,dive"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (h *Handler) startAttempt(w http.ResponseWriter, r *http.Request) {
	studentID, ok := h.studentID(w, r)
	if !ok {
		return
	}
	started, err := h.attempts.Start(r.Context(), studentID, chi.URLParam(r, "quizID"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, started)
}

func (h *Handler) submitAnswer(w http.ResponseWriter, r *http.Request) {
	studentID, ok := h.studentID(w, r)
	if !ok {
		return
	}
	var req submitAnswerRequest
	if !h.decode(w, r, &req) {
		return
	}
	outcome, err := h.attempts.SubmitAnswer(r.Context(), studentID, chi.URLParam(r, "attemptID"), domain.AnswerSubmission{
		QuestionID: req.QuestionID,
		OptionID:   req.OptionID,
		Text:       req.Text,
	})
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, outcome)
}

func (h *Handler) submitFullQuiz(w http.ResponseWriter, r *http.Request) {
	studentID, ok := h.studentID(w, r)
	if !ok {
		return
	}
	var req fullQuizRequest
	if !h.decode(w, r, &req) {
		return
	}
	submissions := make([]domain.AnswerSubmission, 0, len(req.Answers))
	for _, a := range req.Answers {
		submissions = append(submissions, domain.AnswerSubmission{
			QuestionID: a.QuestionID,
			OptionID:   a.OptionID,
			Text:       a.Text,
		})
	}
	result, err := h.attempts.SubmitFullQuiz(r.Context(), studentID, chi.URLParam(r, "quizID"), submissions)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, result)
}

func (h *Handler) getProgress(w http.ResponseWriter, r *http.Request) {
	studentID, ok := h.studentID(w, r)
	if !ok {
		return
	}
	progress, err := h.attempts.GetProgress(r.Context(), studentID, chi.URLParam(r, "attemptID"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, progress)
}

func (h *Handler) completeAttempt(w http.ResponseWriter, r *http.Request) {
	studentID, ok := h.studentID(w, r)
	if !ok {
		return
	}
	result, err := h.attempts.Complete(r.Context(), studentID, chi.URLParam(r, "attemptID"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, result)
}

func (h *Handler) listQuizzes(w http.ResponseWriter, r *http.Request) {
	studentID, ok := h.studentID(w, r)
	if !ok {
		return
	}
	quizzes, err := h.quizzes.ListActiveQuizzes(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}
	statuses, err := h.attempts.AvailableQuizzes(r.Context(), studentID, quizzes)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, statuses)
}

func (h *Handler) getRanking(w http.ResponseWriter, r *http.Request) {
	list, err := h.ranking.GetRanking(r.Context(), chi.URLParam(r, "categoryID"), r.URL.Query().Get("search"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, list)
}

func (h *Handler) getDashboard(w http.ResponseWriter, r *http.Request) {
	studentID, ok := h.studentID(w, r)
	if !ok {
		return
	}
	dashboard, err := h.stats.Dashboard(r.Context(), studentID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, dashboard)
}

func (h *Handler) getPerformance(w http.ResponseWriter, r *http.Request) {
	studentID, ok := h.studentID(w, r)
	if !ok {
		return
	}
	records, err := h.stats.PerformanceHistory(r.Context(), studentID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, records)
}

func (h *Handler) studentID(w http.ResponseWriter, r *http.Request) (string, bool) {
	studentID := r.Header.Get(studentHeader)
	if studentID == "" {
		h.writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "missing student identity"})
		return "", false
	}
	return studentID, true
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		h.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return false
	}
	if err := h.validate.Struct(dst); err != nil {
		h.writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return false
	}
	return true
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	switch {
	case domain.IsNotFound(err):
		h.writeJSON(w, http.StatusNotFound, errorResponse{Error: err.Error()})
	case domain.IsConflict(err):
		h.writeJSON(w, http.StatusConflict, errorResponse{Error: err.Error()})
	case errors.Is(err, domain.ErrNotAttemptOwner):
		h.writeJSON(w, http.StatusForbidden, errorResponse{Error: err.Error()})
	case errors.Is(err, domain.ErrInvalidQuestionConfig):
		h.writeJSON(w, http.StatusUnprocessableEntity, errorResponse{Error: err.Error()})
	default:
		log.Printf("internal error: %v", err)
		h.writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal error"})
	}
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("write response: %v", err)
	}
}
