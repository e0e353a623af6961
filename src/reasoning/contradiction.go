package reasoning

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/engram-ai/engram/src/cache"
	"github.com/engram-ai/engram/src/memory/model"
	"github.com/engram-ai/engram/src/models"
)

// DefaultTrivialRelations are conversational-act relations that never
// carry a checkable fact; edges using them skip the judge entirely.
var DefaultTrivialRelations = []string{"GREETS", "THANKS", "SAYS", "ASKS", "VERB_PHRASE"}

const contradictionPromptFormat = `Analyze these two statements for logical contradiction.

Statement A (Old Knowledge): %q
Statement B (New Input): %q

Do these statements contradict each other?
- "I like apples" vs "I hate apples" -> YES
- "I live in NY" vs "I live in SF" -> YES (assuming current residence)
- "I ate pizza" vs "I ate sushi" -> NO (can eat both at different times)
- "My name is Bob" vs "My name is Robert" -> NO (synonyms)

Reply ONLY with JSON: {"contradiction": true} or {"contradiction": false}.`

// ContradictionJudge asks a small model whether a new fact conflicts
// with an existing one. It fails open: any backend or parse failure is
// reported as "no contradiction", so an unavailable judge never blocks
// a legitimate write.
type ContradictionJudge struct {
	LLM     models.Agent
	trivial map[string]struct{}
	// verdicts caches (old, new) statement pairs; the judge is called
	// from the hot write path with a lot of repeated subjects.
	verdicts *cache.LRUCache
}

func NewContradictionJudge(llm models.Agent, trivialRelations []string) *ContradictionJudge {
	if len(trivialRelations) == 0 {
		trivialRelations = DefaultTrivialRelations
	}
	trivial := make(map[string]struct{}, len(trivialRelations))
	for _, r := range trivialRelations {
		trivial[model.SanitizeRelation(r)] = struct{}{}
	}
	return &ContradictionJudge{
		LLM:      llm,
		trivial:  trivial,
		verdicts: cache.NewLRUCache(256, 10*time.Minute),
	}
}

// IsTrivial reports whether a relation is exempt from checking.
func (j *ContradictionJudge) IsTrivial(relation string) bool {
	_, ok := j.trivial[model.SanitizeRelation(relation)]
	return ok
}

// Detect reports whether newFact contradicts existing. Trivial
// relations on either side short-circuit to false.
func (j *ContradictionJudge) Detect(ctx context.Context, newFact, existing model.Edge) bool {
	if j.IsTrivial(newFact.Relation) || j.IsTrivial(existing.Relation) {
		return false
	}

	oldStmt := existing.Statement()
	newStmt := newFact.Statement()
	key := cache.HashKey(oldStmt + "\x00" + newStmt)
	if v, ok := j.verdicts.Get(key); ok {
		if verdict, ok := v.(bool); ok {
			return verdict
		}
	}

	prompt := fmt.Sprintf(contradictionPromptFormat, oldStmt, newStmt)
	content, err := j.LLM.GenerateJSON(ctx, prompt)
	if err != nil {
		log.Printf("[Omniscience] judge unavailable, allowing write: %v", err)
		return false
	}

	var verdict struct {
		Contradiction bool `json:"contradiction"`
	}
	if err := json.Unmarshal([]byte(strings.TrimSpace(stripFences(content))), &verdict); err != nil {
		log.Printf("[Omniscience] unparseable verdict %.100q, allowing write", content)
		return false
	}

	j.verdicts.Set(key, verdict.Contradiction)
	return verdict.Contradiction
}
