package http

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/mind-engage/mindengage-testbot/internal/exam"
	syncx "github.com/mind-engage/mindengage-testbot/internal/sync"
)

const maxEventLimit = 500

type eventView struct {
	Seq       int64           `json:"seq"`
	Type      string          `json:"type"`
	Key       string          `json:"key"`
	Data      json.RawMessage `json:"data"`
	CreatedAt string          `json:"created_at"`
}

// GET /admin/events?type=DeliveryFailed&limit=50
//
// Newest first. type is one of DeliverySent, DeliveryFailed, GradingRun or
// empty for all; key is the recipient or the test id.
func ListEventsHandler(events syncx.Log, loc *time.Location) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		typ := r.URL.Query().Get("type")
		switch typ {
		case "", syncx.TypeDeliverySent, syncx.TypeDeliveryFailed, syncx.TypeGradingRun:
		default:
			http.Error(w, "unknown event type "+strconv.Quote(typ), http.StatusBadRequest)
			return
		}
		limit := 50
		if v := r.URL.Query().Get("limit"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n < 1 || n > maxEventLimit {
				http.Error(w, "limit must be 1.."+strconv.Itoa(maxEventLimit), http.StatusBadRequest)
				return
			}
			limit = n
		}
		if events == nil {
			writeJSON(w, http.StatusOK, []eventView{})
			return
		}
		evs, err := events.Recent(r.Context(), typ, limit)
		if err != nil {
			http.Error(w, "recent events: "+err.Error(), http.StatusInternalServerError)
			return
		}
		out := make([]eventView, 0, len(evs))
		for _, e := range evs {
			data := json.RawMessage(e.DataJSON)
			if !json.Valid(data) {
				data = json.RawMessage("{}")
			}
			out = append(out, eventView{
				Seq:       e.Seq,
				Type:      e.Type,
				Key:       e.Key,
				Data:      data,
				CreatedAt: exam.FormatTime(time.Unix(e.CreatedAt, 0).In(loc)),
			})
		}
		writeJSON(w, http.StatusOK, out)
	}
}
