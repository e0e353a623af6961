//go:build !fastembed

package embed

import (
	"context"
	"fmt"
)

func defaultFastEmbedOptions() *FastEmbedOptions { return nil }

// NewFastEmbed is only available when built with -tags fastembed.
func NewFastEmbed(_ context.Context, _ *FastEmbedOptions) (Embedder, error) {
	return nil, fmt.Errorf("fastembed support not included; rebuild with -tags fastembed")
}
