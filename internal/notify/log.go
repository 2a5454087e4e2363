package notify

import (
	"context"
	"log"
)

// LogNotifier writes payloads to the process log. It is the default when no
// transport is configured.
type LogNotifier struct{}

func (LogNotifier) Notify(_ context.Context, recipient string, p Payload) error {
	log.Printf("notify[%s] -> %s: %q (image=%d bytes)", p.Kind, recipient, p.Text, len(p.Image))
	return nil
}
