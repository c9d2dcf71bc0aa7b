// Package describe writes short marketing copy for products. Generation is best
// effort: callers always get a string back, either the description or a
// human-readable explanation of why there is none.
package describe

import (
	"context"
	"fmt"
	"strings"
	"time"

	"nexuspos/internal/cache"
	"nexuspos/internal/logger"
)

const (
	MissingKeyMessage = "API Key not configured. Please set the NEXUSPOS_GEMINI_API_KEY environment variable."
	failurePrefix     = "Failed to generate description: "
)

// TextGenerator completes a prompt.
type TextGenerator interface {
	GenerateText(ctx context.Context, prompt string) (string, error)
}

type Options struct {
	// Generator is nil when no API key is configured.
	Generator TextGenerator
	Cache     cache.DescriptionCache
	CacheTTL  time.Duration
	Timeout   time.Duration
	Logger    *logger.Logger
}

type Describer struct {
	generator TextGenerator
	cache     cache.DescriptionCache
	cacheTTL  time.Duration
	timeout   time.Duration
	log       *logger.Logger
}

func New(opts Options) *Describer {
	d := &Describer{
		generator: opts.Generator,
		cache:     opts.Cache,
		cacheTTL:  opts.CacheTTL,
		timeout:   opts.Timeout,
		log:       opts.Logger,
	}
	if d.cache == nil {
		d.cache = cache.NoopDescriptionCache{}
	}
	if d.log == nil {
		d.log = logger.Nop()
	}
	return d
}

func Prompt(productName string) string {
	return fmt.Sprintf("Create a compelling, short (2-3 sentences) marketing description for a product named %q. Focus on its key benefits and target audience. Do not use markdown.", productName)
}

// Generate never fails. Only successful descriptions are cached.
func (d *Describer) Generate(ctx context.Context, productName string) string {
	if d.generator == nil {
		return MissingKeyMessage
	}
	productName = strings.TrimSpace(productName)
	key := cache.DescriptionKey(productName)

	if cached, ok, err := d.cache.Get(ctx, key); err != nil {
		d.log.Error(ctx, "description cache read failed", err)
	} else if ok {
		return cached
	}

	genCtx := ctx
	if d.timeout > 0 {
		var cancel context.CancelFunc
		genCtx, cancel = context.WithTimeout(ctx, d.timeout)
		defer cancel()
	}
	text, err := d.generator.GenerateText(genCtx, Prompt(productName))
	if err != nil {
		d.log.WarnFields(ctx, "description generation failed", map[string]any{"product": productName, "error": err.Error()})
		return failurePrefix + err.Error()
	}
	text = strings.TrimSpace(text)

	if err := d.cache.Set(ctx, key, text, d.cacheTTL); err != nil {
		d.log.Error(ctx, "description cache write failed", err)
	}
	return text
}
