//go:build fastembed

package embed

import (
	"context"
	"errors"
	"os"

	fastembed "github.com/anush008/fastembed-go"
)

func defaultFastEmbedOptions() *FastEmbedOptions {
	return &FastEmbedOptions{
		Model:     os.Getenv("ENGRAM_EMBED_MODEL"),
		CacheDir:  os.Getenv("ENGRAM_FASTEMBED_CACHE"),
		MaxLength: 512,
	}
}

// fastEmbedder runs BGE-class models locally through ONNX runtime, the
// same family of sentence transformers the hosted backends replace.
type fastEmbedder struct {
	model *fastembed.FlagEmbedding
}

func NewFastEmbed(_ context.Context, opts *FastEmbedOptions) (Embedder, error) {
	if opts == nil {
		return nil, errors.New("fastembed options are nil")
	}
	initOpts := fastembed.InitOptions{
		MaxLength: opts.MaxLength,
	}
	if opts.Model != "" {
		initOpts.Model = fastembed.EmbeddingModel(opts.Model)
	}
	if opts.CacheDir != "" {
		initOpts.CacheDir = opts.CacheDir
	}
	model, err := fastembed.NewFlagEmbedding(&initOpts)
	if err != nil {
		return nil, err
	}
	return &fastEmbedder{model: model}, nil
}

func (f *fastEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	vecs, err := f.model.QueryEmbed(text)
	if err != nil {
		return nil, err
	}
	if len(vecs) == 0 {
		return nil, errors.New("fastembed: empty embedding")
	}
	return vecs, nil
}

func (f *fastEmbedder) Close() error {
	if f == nil || f.model == nil {
		return nil
	}
	return f.model.Destroy()
}
