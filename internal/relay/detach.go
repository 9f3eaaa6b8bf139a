package relay

import (
	"context"
	"log"

	"github.com/google/uuid"
)

// Detach runs fn in the background, detached from the caller's lifecycle.
// Slack expects webhook acknowledgments within a few seconds, while the
// pipeline chains several slow external calls, so handlers acknowledge
// first and Detach carries the real work. The task gets a fresh background
// context: once started it always runs to completion or exhausts its own
// fallback chain, there is no external cancellation.
//
// It returns the task's request ID for correlation in logs.
func Detach(name string, fn func(ctx context.Context) error) string {
	id := uuid.NewString()[:8]
	go func() {
		defer func() {
			if r := recover(); r != nil {
				log.Printf("relay: task %s [%s] panicked: %v", name, id, r)
			}
		}()
		if err := fn(context.Background()); err != nil {
			log.Printf("relay: task %s [%s] failed: %v", name, id, err)
			return
		}
		log.Printf("relay: task %s [%s] done", name, id)
	}()
	return id
}
