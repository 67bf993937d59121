package embedder

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vidsim/vidsim/internal/models"
)

func embedService(t *testing.T, vec []float32, status int) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/embed", r.URL.Path)
		var req struct {
			ImageBase64 string `json:"image_base64"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.NotEmpty(t, req.ImageBase64)

		w.WriteHeader(status)
		json.NewEncoder(w).Encode(map[string]any{"embedding": vec})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestClientEmbed(t *testing.T) {
	srv := embedService(t, []float32{1, 0, 0, 0}, http.StatusOK)
	c := NewClient(srv.URL, 4)

	vec, err := c.Embed(context.Background(), []byte("jpeg-bytes"))
	require.NoError(t, err)
	assert.Equal(t, []float32{1, 0, 0, 0}, vec)
	assert.Equal(t, 4, c.Dimension())
}

func TestClientEmbedNormalizesDrift(t *testing.T) {
	srv := embedService(t, []float32{3, 4, 0, 0}, http.StatusOK)
	c := NewClient(srv.URL, 4)

	vec, err := c.Embed(context.Background(), []byte("x"))
	require.NoError(t, err)

	var sum float64
	for _, v := range vec {
		sum += float64(v) * float64(v)
	}
	assert.InDelta(t, 1.0, math.Sqrt(sum), 1e-6)
	assert.InDelta(t, 0.6, float64(vec[0]), 1e-6)
	assert.InDelta(t, 0.8, float64(vec[1]), 1e-6)
}

func TestClientEmbedFailures(t *testing.T) {
	t.Run("wrong dimension", func(t *testing.T) {
		srv := embedService(t, []float32{1, 0}, http.StatusOK)
		c := NewClient(srv.URL, 4)
		_, err := c.Embed(context.Background(), []byte("x"))
		assert.ErrorIs(t, err, models.ErrEmbedding)
	})

	t.Run("service error status", func(t *testing.T) {
		srv := embedService(t, nil, http.StatusInternalServerError)
		c := NewClient(srv.URL, 4)
		_, err := c.Embed(context.Background(), []byte("x"))
		assert.ErrorIs(t, err, models.ErrEmbedding)
	})

	t.Run("unreachable service", func(t *testing.T) {
		c := NewClient("http://127.0.0.1:1", 4)
		_, err := c.Embed(context.Background(), []byte("x"))
		assert.ErrorIs(t, err, models.ErrEmbedding)
	})
}

func TestNormalize(t *testing.T) {
	t.Run("zero vector rejected", func(t *testing.T) {
		err := Normalize([]float32{0, 0, 0}, 3)
		assert.ErrorIs(t, err, models.ErrEmbedding)
	})

	t.Run("nan rejected", func(t *testing.T) {
		err := Normalize([]float32{float32(math.NaN()), 0, 0}, 3)
		assert.ErrorIs(t, err, models.ErrEmbedding)
	})

	t.Run("dimension mismatch rejected", func(t *testing.T) {
		err := Normalize([]float32{1, 0}, 3)
		assert.ErrorIs(t, err, models.ErrEmbedding)
	})

	t.Run("already unit is untouched", func(t *testing.T) {
		vec := []float32{0, 1, 0}
		require.NoError(t, Normalize(vec, 3))
		assert.Equal(t, []float32{0, 1, 0}, vec)
	})
}

type fakeProvider struct {
	mu    sync.Mutex
	calls int
	fail  map[int]bool
}

func (p *fakeProvider) Embed(_ context.Context, jpeg []byte) ([]float32, error) {
	p.mu.Lock()
	p.calls++
	p.mu.Unlock()

	idx := int(jpeg[0])
	if p.fail[idx] {
		return nil, fmt.Errorf("%w: boom", models.ErrEmbedding)
	}
	return []float32{float32(idx), 1, 0, 0}, nil
}

func (p *fakeProvider) Dimension() int { return 4 }

func TestEmbedAllPreservesOrder(t *testing.T) {
	frames := make([]models.Frame, 8)
	for i := range frames {
		frames[i] = models.Frame{Index: i, JPEG: []byte{byte(i)}}
	}

	p := &fakeProvider{}
	vecs, err := EmbedAll(context.Background(), p, frames, 3)
	require.NoError(t, err)
	require.Len(t, vecs, 8)
	for i, vec := range vecs {
		assert.Equal(t, float32(i), vec[0], "vector %d out of order", i)
	}
}

func TestEmbedAllPropagatesFailure(t *testing.T) {
	frames := make([]models.Frame, 4)
	for i := range frames {
		frames[i] = models.Frame{Index: i, JPEG: []byte{byte(i)}}
	}

	p := &fakeProvider{fail: map[int]bool{2: true}}
	_, err := EmbedAll(context.Background(), p, frames, 2)
	require.Error(t, err)
	assert.True(t, errors.Is(err, models.ErrEmbedding))
}
