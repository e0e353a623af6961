package models

import "context"

// Agent is a text-in, text-out language model. GenerateJSON asks the
// backend for a JSON object response where the API supports forcing it;
// callers still validate the payload, since smaller local models ignore
// format hints often enough.
type Agent interface {
	Generate(ctx context.Context, prompt string) (string, error)
	GenerateJSON(ctx context.Context, prompt string) (string, error)
}

const jsonOnlyInstruction = "Respond with a single JSON object and nothing else. No prose, no markdown fences."
