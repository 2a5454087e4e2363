package http

import (
	"crypto/subtle"
	"encoding/json"
	"net/http"

	"github.com/mind-engage/mindengage-testbot/internal/bot"
)

// POST /bot/updates
//
// The messaging gateway forwards every platform update here and relays the
// returned replies to the same user.
func BotUpdatesHandler(b *bot.Bot, secret string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if secret != "" && subtle.ConstantTimeCompare([]byte(r.Header.Get("X-Bot-Secret")), []byte(secret)) != 1 {
			http.Error(w, "forbidden", http.StatusForbidden)
			return
		}
		var u bot.Update
		if err := updateValidator.decode(r.Body, &u); err != nil {
			http.Error(w, "bad update: "+err.Error(), http.StatusBadRequest)
			return
		}
		replies := b.Handle(r.Context(), u)
		if replies == nil {
			replies = []bot.Reply{}
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"replies": replies})
	}
}
