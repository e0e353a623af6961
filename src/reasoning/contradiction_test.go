package reasoning

import (
	"context"
	"errors"
	"testing"

	"github.com/engram-ai/engram/src/memory/model"
	"github.com/engram-ai/engram/src/models"
)

func TestDetectContradiction(t *testing.T) {
	j := NewContradictionJudge(models.NewDummyLLM("").Queue(`{"contradiction": true}`), nil)
	newFact := model.Edge{Src: "User", Relation: "ORIGIN_FROM", Dst: "UP"}
	oldFact := model.Edge{Src: "User", Relation: "ORIGIN_FROM", Dst: "Kerala"}
	if !j.Detect(context.Background(), newFact, oldFact) {
		t.Fatal("expected contradiction")
	}
}

func TestDetectFailsOpen(t *testing.T) {
	newFact := model.Edge{Src: "User", Relation: "LIVES_IN", Dst: "NY"}
	oldFact := model.Edge{Src: "User", Relation: "LIVES_IN", Dst: "SF"}

	j := NewContradictionJudge(models.NewDummyLLM("").Fail(errors.New("timeout")), nil)
	if j.Detect(context.Background(), newFact, oldFact) {
		t.Fatal("backend failure must report no contradiction")
	}

	j = NewContradictionJudge(models.NewDummyLLM("").Queue("I think they conflict, yes"), nil)
	if j.Detect(context.Background(), newFact, oldFact) {
		t.Fatal("unparseable verdict must report no contradiction")
	}
}

func TestDetectSkipsTrivialRelations(t *testing.T) {
	llm := models.NewDummyLLM("")
	j := NewContradictionJudge(llm, nil)

	greeting := model.Edge{Src: "User", Relation: "GREETS", Dst: "Assistant"}
	fact := model.Edge{Src: "User", Relation: "LIVES_IN", Dst: "Kerala"}
	if j.Detect(context.Background(), greeting, fact) {
		t.Fatal("trivial new fact can never contradict")
	}
	if j.Detect(context.Background(), fact, greeting) {
		t.Fatal("trivial existing fact can never contradict")
	}
	if calls := len(llm.Prompts()); calls != 0 {
		t.Fatalf("trivial relations hit the model %d times", calls)
	}

	// Lowercase config values still match sanitized relations.
	j = NewContradictionJudge(llm, []string{"greets"})
	if !j.IsTrivial("GREETS") {
		t.Fatal("trivial set should be case-insensitive")
	}
}

func TestDetectCachesVerdicts(t *testing.T) {
	llm := models.NewDummyLLM("").Queue(`{"contradiction": true}`)
	j := NewContradictionJudge(llm, nil)
	newFact := model.Edge{Src: "User", Relation: "LIKES", Dst: "apples"}
	oldFact := model.Edge{Src: "User", Relation: "HATES", Dst: "apples"}

	for i := 0; i < 3; i++ {
		if !j.Detect(context.Background(), newFact, oldFact) {
			t.Fatalf("call %d lost the verdict", i)
		}
	}
	if calls := len(llm.Prompts()); calls != 1 {
		t.Fatalf("model called %d times, want 1 (cached)", calls)
	}
}
