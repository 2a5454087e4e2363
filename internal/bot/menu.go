package bot

import (
	"context"
	"fmt"
	"log"
)

// menu lists every test still open for enrollment.
func (b *Bot) menu(ctx context.Context) Reply {
	return b.menuWith(ctx, "")
}

func (b *Bot) menuWith(ctx context.Context, header string) Reply {
	tests, err := b.store.ListTests(ctx)
	if err != nil {
		log.Printf("bot: list tests: %v", err)
		return Reply{Text: msgTryAgain, Keyboard: [][]string{{refreshButton}}}
	}
	now := b.now()
	var rows [][]string
	for _, t := range tests {
		if t.OpenAt(now) {
			rows = append(rows, []string{testButton(t)})
		}
	}
	msg := msgNoTests
	if len(rows) > 0 {
		msg = fmt.Sprintf("📋 Available tests: %d\n\nPress a button to pick a test:", len(rows))
	}
	if header != "" {
		msg = header + "\n\n" + msg
	}
	return Reply{Text: msg, Keyboard: append(rows, []string{refreshButton})}
}
