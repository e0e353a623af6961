package pipeline

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/engram-ai/engram/src/memory/session"
	"github.com/engram-ai/engram/src/memory/store"
)

// ResetCommands are chat inputs that trigger a full memory wipe.
var ResetCommands = map[string]struct{}{
	"reset": {}, "wipe": {}, "clear": {},
	"clear memory": {}, "wipe memory": {}, "delete memory": {}, "forget all": {},
}

// IsResetCommand reports whether a chat input asks for a wipe.
func IsResetCommand(text string) bool {
	_, ok := ResetCommands[strings.ToLower(strings.TrimSpace(text))]
	return ok
}

// Reset clears the graph store, the vector store, and every short-term
// buffer. Best-effort: each target is attempted even if an earlier one
// fails, and the first error is returned. It may race with in-flight
// reads; those readers see either pre- or post-wipe state.
func Reset(ctx context.Context, graph store.GraphStore, vectors store.VectorStore, buffer *session.RAMContext) error {
	var firstErr error

	if graph != nil {
		if err := graph.Wipe(ctx); err != nil {
			log.Printf("[Reset] graph wipe failed: %v", err)
			firstErr = fmt.Errorf("graph wipe: %w", err)
		}
	}
	if vectors != nil {
		if err := vectors.Wipe(ctx); err != nil {
			log.Printf("[Reset] vector wipe failed: %v", err)
			if firstErr == nil {
				firstErr = fmt.Errorf("vector wipe: %w", err)
			}
		}
	}
	if buffer != nil {
		buffer.Clear()
	}
	return firstErr
}
