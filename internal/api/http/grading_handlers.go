package http

import (
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/mind-engage/mindengage-testbot/internal/bot"
	"github.com/mind-engage/mindengage-testbot/internal/grading"
)

type rawResultView struct {
	UserID  string  `json:"user_id"`
	Name    string  `json:"name"`
	Answers string  `json:"answers"`
	Score   string  `json:"score"`
	Correct int     `json:"correct"`
	Percent float64 `json:"percent"`
}

// POST /admin/tests/{testID}/grade/raw
func GradeRawHandler(g bot.Grader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		testID := strings.TrimSpace(chi.URLParam(r, "testID"))
		rep, err := g.GradeRaw(r.Context(), testID)
		if err != nil {
			writeGradingError(w, err)
			return
		}
		results := make([]rawResultView, 0, len(rep.Results))
		for _, res := range rep.Results {
			results = append(results, rawResultView{
				UserID: res.UserID, Name: res.Name, Answers: res.Answers,
				Score: res.Score(), Correct: res.Correct, Percent: res.Percent,
			})
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"test_id":       rep.TestID,
			"questions":     rep.Total,
			"results":       results,
			"not_submitted": nonNil(rep.NotSubmitted),
		})
	}
}

type itemView struct {
	Question   int     `json:"question"`
	PCorrect   float64 `json:"p_correct"`
	Difficulty float64 `json:"difficulty"`
	Weight     float64 `json:"weight"`
}

type psychometricResultView struct {
	UserID      string  `json:"user_id"`
	Name        string  `json:"name"`
	Correct     int     `json:"correct"`
	WeightedRaw float64 `json:"weighted_raw"`
	Score       float64 `json:"score"`
	Tier        string  `json:"certificate_tier"`
}

// POST /admin/tests/{testID}/grade/psychometric
func GradePsychometricHandler(g bot.Grader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		testID := strings.TrimSpace(chi.URLParam(r, "testID"))
		rep, err := g.ScorePsychometric(r.Context(), testID)
		if err != nil {
			writeGradingError(w, err)
			return
		}
		items := make([]itemView, 0, len(rep.Items))
		for _, it := range rep.Items {
			items = append(items, itemView(it))
		}
		results := make([]psychometricResultView, 0, len(rep.Results))
		for _, res := range rep.Results {
			results = append(results, psychometricResultView{
				UserID: res.UserID, Name: res.Name, Correct: res.Correct,
				WeightedRaw: res.WeightedRaw, Score: res.Score, Tier: string(res.Tier),
			})
		}
		out := map[string]any{
			"test_id":      rep.TestID,
			"questions":    rep.Total,
			"max_possible": rep.MaxPossible,
			"items":        items,
			"results":      results,
		}
		if rep.ChartKey != "" {
			out["chart"] = "/admin/" + rep.ChartKey
		}
		writeJSON(w, http.StatusOK, out)
	}
}

func writeGradingError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, grading.ErrNoData):
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
	case errors.Is(err, grading.ErrEmptyAnswerKey):
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
	default:
		writeStoreError(w, "grade", err)
	}
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
