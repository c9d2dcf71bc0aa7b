package describe

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nexuspos/internal/cache"
)

type generatorFunc func(ctx context.Context, prompt string) (string, error)

func (f generatorFunc) GenerateText(ctx context.Context, prompt string) (string, error) {
	return f(ctx, prompt)
}

type mapCache struct {
	mu   sync.Mutex
	data map[string]string
}

func (c *mapCache) Get(_ context.Context, key string) (string, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.data[key]
	return v, ok, nil
}

func (c *mapCache) Set(_ context.Context, key, value string, _ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[key] = value
	return nil
}

func TestGenerateWithoutKeyReturnsFallback(t *testing.T) {
	d := New(Options{})
	assert.Equal(t, MissingKeyMessage, d.Generate(context.Background(), "Espresso"))
}

func TestGenerateTrimsAndCaches(t *testing.T) {
	calls := 0
	gen := generatorFunc(func(_ context.Context, prompt string) (string, error) {
		calls++
		assert.Contains(t, prompt, `"Leather Jacket"`)
		assert.Contains(t, prompt, "Do not use markdown.")
		return "  Timeless style that ages with you.\n", nil
	})
	c := &mapCache{data: map[string]string{}}
	d := New(Options{Generator: gen, Cache: c, CacheTTL: time.Hour})

	first := d.Generate(context.Background(), "Leather Jacket")
	second := d.Generate(context.Background(), " leather  jacket ")

	assert.Equal(t, "Timeless style that ages with you.", first)
	assert.Equal(t, first, second)
	assert.Equal(t, 1, calls)
	assert.Equal(t, first, c.data[cache.DescriptionKey("Leather Jacket")])
}

func TestGenerateFailureIsNotCached(t *testing.T) {
	calls := 0
	gen := generatorFunc(func(context.Context, string) (string, error) {
		calls++
		return "", errors.New("quota exceeded")
	})
	c := &mapCache{data: map[string]string{}}
	d := New(Options{Generator: gen, Cache: c})

	assert.Equal(t, "Failed to generate description: quota exceeded", d.Generate(context.Background(), "Espresso"))
	d.Generate(context.Background(), "Espresso")
	assert.Equal(t, 2, calls)
	assert.Empty(t, c.data)
}

func TestGenerateAppliesTimeout(t *testing.T) {
	gen := generatorFunc(func(ctx context.Context, _ string) (string, error) {
		<-ctx.Done()
		return "", ctx.Err()
	})
	d := New(Options{Generator: gen, Timeout: 20 * time.Millisecond})
	assert.Equal(t, "Failed to generate description: context deadline exceeded", d.Generate(context.Background(), "Espresso"))
}

func TestGeminiClientGenerateText(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/models/gemini-2.5-flash:generateContent", r.URL.Path)
		assert.Equal(t, "test-key", r.URL.Query().Get("key"))

		var req geminiRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		if assert.Len(t, req.Contents, 1) && assert.Len(t, req.Contents[0].Parts, 1) {
			assert.Equal(t, "hello", req.Contents[0].Parts[0].Text)
		}
		_, _ = w.Write([]byte(`{"candidates":[{"content":{"parts":[{"text":"Bright "},{"text":"and bold."}]}}]}`))
	}))
	defer srv.Close()

	client := NewGeminiClient("test-key", "", srv.URL, srv.Client())
	text, err := client.GenerateText(context.Background(), "hello")
	require.NoError(t, err)
	assert.Equal(t, "Bright and bold.", text)
}

func TestGeminiClientSurfacesAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":{"code":400,"message":"API key not valid."}}`))
	}))
	defer srv.Close()

	client := NewGeminiClient("bad", "gemini-2.5-flash", srv.URL+"/", nil)
	_, err := client.GenerateText(context.Background(), "hello")
	require.Error(t, err)
	assert.Equal(t, "gemini API error (status 400): API key not valid.", err.Error())
}

func TestGeminiClientRejectsEmptyCandidates(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"candidates":[]}`))
	}))
	defer srv.Close()

	_, err := NewGeminiClient("k", "", srv.URL, nil).GenerateText(context.Background(), "hello")
	assert.EqualError(t, err, "no candidates in Gemini response")
}

func TestGeminiClientWithoutKey(t *testing.T) {
	_, err := NewGeminiClient("", "", "", nil).GenerateText(context.Background(), "hello")
	assert.Error(t, err)
}
