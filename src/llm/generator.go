package llm

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/engram-ai/engram/src/models"
	"github.com/engram-ai/engram/src/reasoning"
)

// DefaultFallback is returned when the generation backend is down.
const DefaultFallback = "I'm here. Could you rephrase or tell me a bit more?"

var questionWords = []string{
	"what", "when", "where", "who", "why", "how", "do i", "did i", "am i",
}

// IsQuestion reports whether the utterance reads as a question: ends
// with "?" or opens with an interrogative word.
func IsQuestion(text string) bool {
	t := strings.ToLower(strings.TrimSpace(text))
	if strings.HasSuffix(t, "?") {
		return true
	}
	for _, w := range questionWords {
		if strings.HasPrefix(t, w) {
			return true
		}
	}
	return false
}

// Generator assembles the reply prompt from recent turns and retrieved
// memories. It never surfaces a backend error; failures become the
// fixed fallback string.
type Generator struct {
	LLM   models.Agent
	nowFn func() time.Time
}

func NewGenerator(llm models.Agent) *Generator {
	return &Generator{LLM: llm, nowFn: time.Now}
}

// Generate produces the assistant reply for one turn.
func (g *Generator) Generate(ctx context.Context, userInput string, recentTurns []string, memories []reasoning.Candidate) string {
	isQuestion := IsQuestion(userInput)
	hasMemory := len(memories) > 0

	systemPrompt := fmt.Sprintf(`You are a helpful and friendly assistant. Your goal is to have a natural, flowing conversation. Today is %s.

RULES:
- When answering questions, use the "Relevant facts" provided below.
- If no relevant facts are available, answer the question based on general knowledge or ask for clarification.
- When the user provides new information, acknowledge it naturally (e.g., "Okay, I'll remember that.").
- Seamlessly integrate facts into your response. Do NOT say "according to my facts" or "based on my memory".
- Keep your responses concise and conversational.`, g.nowFn().Format("January 2, 2006"))

	var history strings.Builder
	if len(recentTurns) > 0 {
		history.WriteString("\nRecent conversation:\n")
		start := len(recentTurns) - 3
		if start < 0 {
			start = 0
		}
		for _, turn := range recentTurns[start:] {
			history.WriteString("- " + turn + "\n")
		}
	}

	var memoryBlock strings.Builder
	if hasMemory {
		memoryBlock.WriteString("Relevant facts (use ONLY these):\n")
		for _, m := range memories {
			text := strings.TrimSpace(m.Text)
			if text != "" {
				memoryBlock.WriteString("- " + text + "\n")
			}
		}
		memoryBlock.WriteString("\nRemember: Only use facts listed above. Do not invent or assume anything else.")
	}

	var userMessage string
	switch {
	case !isQuestion:
		userMessage = fmt.Sprintf("%s%s\nUser statement: %s\nRespond naturally and briefly.",
			history.String(), memoryBlock.String(), userInput)
	case hasMemory:
		userMessage = fmt.Sprintf("%s%s\nUser question: %s\nAnswer using the known facts only.",
			history.String(), memoryBlock.String(), userInput)
	default:
		userMessage = fmt.Sprintf("%sUser question: %s\nRespond with a relevant general answer or ask one short clarification.",
			history.String(), userInput)
	}

	reply, err := g.LLM.Generate(ctx, systemPrompt+"\n\n"+userMessage)
	if err != nil {
		log.Printf("[Generator] backend failed, using fallback: %v", err)
		return DefaultFallback
	}
	reply = strings.TrimSpace(reply)
	if reply == "" {
		return DefaultFallback
	}
	return reply
}
