package http

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	auth "github.com/mind-engage/mindengage-testbot/internal/auth/middleware"
	"github.com/mind-engage/mindengage-testbot/internal/exam"
)

type testView struct {
	ID            string `json:"id"`
	AnswerKey     string `json:"answer_key"`
	Questions     int    `json:"questions"`
	Deadline      string `json:"deadline"`
	CheckTime     string `json:"check_time"`
	CreatedAt     string `json:"created_at"`
	Open          bool   `json:"open"`
	Registrations int    `json:"registrations"`
}

func toTestView(t exam.Test, regs int, now time.Time) testView {
	return testView{
		ID:            t.ID,
		AnswerKey:     t.AnswerKey,
		Questions:     t.QuestionCount(),
		Deadline:      exam.FormatTime(t.Deadline),
		CheckTime:     exam.FormatTime(t.CheckTime),
		CreatedAt:     exam.FormatTime(t.CreatedAt),
		Open:          t.OpenAt(now),
		Registrations: regs,
	}
}

// GET /admin/tests
func ListTestsHandler(store exam.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tests, err := store.ListTests(r.Context())
		if err != nil {
			http.Error(w, "list tests: "+err.Error(), http.StatusInternalServerError)
			return
		}
		counts, err := store.RegistrationCounts(r.Context())
		if err != nil {
			http.Error(w, "registration counts: "+err.Error(), http.StatusInternalServerError)
			return
		}
		now := time.Now()
		out := make([]testView, 0, len(tests))
		for _, t := range tests {
			out = append(out, toTestView(t, counts[t.ID], now))
		}
		writeJSON(w, http.StatusOK, out)
	}
}

// POST /admin/tests   {id, answer_key, deadline, check_time}
//
// Same semantics as the bot's authoring flow: last write wins.
func CreateTestHandler(store exam.Store, loc *time.Location) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			ID        string `json:"id"`
			AnswerKey string `json:"answer_key"`
			Deadline  string `json:"deadline"`
			CheckTime string `json:"check_time"`
		}
		if err := testValidator.decode(r.Body, &req); err != nil {
			http.Error(w, "bad json: "+err.Error(), http.StatusBadRequest)
			return
		}
		deadline, err := exam.ParseTime(req.Deadline, loc)
		if err != nil {
			http.Error(w, "deadline: "+err.Error(), http.StatusBadRequest)
			return
		}
		checkTime, err := exam.ParseTime(req.CheckTime, loc)
		if err != nil {
			http.Error(w, "check_time: "+err.Error(), http.StatusBadRequest)
			return
		}
		now := time.Now().In(loc)
		t := exam.Test{
			ID:        strings.TrimSpace(req.ID),
			AnswerKey: strings.TrimSpace(req.AnswerKey),
			Deadline:  deadline,
			CheckTime: checkTime,
			CreatedAt: now,
		}
		if err := store.PutTest(r.Context(), t); err != nil {
			status := http.StatusInternalServerError
			if errors.Is(err, exam.ErrInvalid) {
				status = http.StatusBadRequest
			}
			http.Error(w, "save test: "+err.Error(), status)
			return
		}
		log.Printf("admin %s saved test %s", auth.SubjectFromContext(r.Context()), t.ID)
		writeJSON(w, http.StatusCreated, toTestView(t, 0, now))
	}
}

type registrationView struct {
	UserID        string   `json:"user_id"`
	Name          string   `json:"name"`
	RegisteredAt  string   `json:"registered_at"`
	Answers       string   `json:"answers,omitempty"`
	SubmittedAt   string   `json:"submitted_at,omitempty"`
	Score         string   `json:"score,omitempty"`
	RawCorrect    *int     `json:"raw_correct,omitempty"`
	WeightedScore *float64 `json:"weighted_score,omitempty"`
	Tier          string   `json:"certificate_tier,omitempty"`
}

// GET /admin/tests/{testID}/registrations
func ListRegistrationsHandler(store exam.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		testID := strings.TrimSpace(chi.URLParam(r, "testID"))
		if _, err := store.GetTest(r.Context(), testID); err != nil {
			writeStoreError(w, "get test", err)
			return
		}
		regs, err := store.ListRegistrations(r.Context(), testID)
		if err != nil {
			writeStoreError(w, "list registrations", err)
			return
		}
		out := make([]registrationView, 0, len(regs))
		for _, g := range regs {
			v := registrationView{
				UserID:        g.UserID,
				Name:          g.FullName(),
				RegisteredAt:  exam.FormatTime(g.RegisteredAt),
				Answers:       g.Answers,
				Score:         g.Score,
				RawCorrect:    g.RawCorrect,
				WeightedScore: g.WeightedScore,
				Tier:          g.Tier,
			}
			if g.SubmittedAt != nil {
				v.SubmittedAt = exam.FormatTime(*g.SubmittedAt)
			}
			out = append(out, v)
		}
		writeJSON(w, http.StatusOK, out)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeStoreError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, exam.ErrNotFound):
		http.Error(w, "not found", http.StatusNotFound)
	case errors.Is(err, exam.ErrConflict):
		http.Error(w, op+": "+err.Error(), http.StatusConflict)
	default:
		http.Error(w, op+": "+err.Error(), http.StatusInternalServerError)
	}
}
