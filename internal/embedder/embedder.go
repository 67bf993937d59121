// Package embedder defines the embedding provider contract and an HTTP
// client for a CLIP-style image embedding service.
package embedder

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/vidsim/vidsim/internal/models"
)

// Provider maps one JPEG frame to one unit-normalized feature vector of
// fixed dimensionality. Calls are independent and safe to issue
// concurrently.
type Provider interface {
	Embed(ctx context.Context, jpeg []byte) ([]float32, error)
	Dimension() int
}

// Client calls an external embedding service over HTTP. The service
// receives a base64 JPEG and answers {"embedding": [...]}.
type Client struct {
	baseURL string
	dim     int
	http    *http.Client
}

func NewClient(baseURL string, dim int) *Client {
	return &Client{
		baseURL: baseURL,
		dim:     dim,
		http:    &http.Client{Timeout: 30 * time.Second},
	}
}

func (c *Client) Dimension() int { return c.dim }

type embedRequest struct {
	ImageBase64 string `json:"image_base64"`
}

type embedResponse struct {
	Embedding []float32 `json:"embedding"`
}

// Embed posts one frame and validates the returned vector. Every failure
// wraps models.ErrEmbedding so callers can map it to a request failure.
func (c *Client) Embed(ctx context.Context, jpeg []byte) ([]float32, error) {
	body, err := json.Marshal(embedRequest{ImageBase64: base64.StdEncoding.EncodeToString(jpeg)})
	if err != nil {
		return nil, fmt.Errorf("%w: encode request: %v", models.ErrEmbedding, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/embed", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%w: build request: %v", models.ErrEmbedding, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrEmbedding, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
		return nil, fmt.Errorf("%w: service returned %d: %s", models.ErrEmbedding, resp.StatusCode, msg)
	}

	var out embedResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("%w: decode response: %v", models.ErrEmbedding, err)
	}

	if err := Normalize(out.Embedding, c.dim); err != nil {
		return nil, err
	}
	return out.Embedding, nil
}

// Normalize validates a vector's dimensionality and enforces the
// unit-norm invariant in place. Similarity is defined over normalized
// vectors, so a degenerate vector is rejected rather than stored.
func Normalize(vec []float32, dim int) error {
	if len(vec) != dim {
		return fmt.Errorf("%w: got %d dimensions, want %d", models.ErrEmbedding, len(vec), dim)
	}
	var sum float64
	for _, v := range vec {
		f := float64(v)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return fmt.Errorf("%w: non-finite component", models.ErrEmbedding)
		}
		sum += f * f
	}
	norm := math.Sqrt(sum)
	if norm == 0 {
		return fmt.Errorf("%w: zero vector", models.ErrEmbedding)
	}
	if math.Abs(norm-1) > 1e-6 {
		for i := range vec {
			vec[i] = float32(float64(vec[i]) / norm)
		}
	}
	return nil
}

// EmbedAll computes one embedding per frame with bounded concurrency,
// preserving frame order. The first failure cancels the remaining calls.
func EmbedAll(ctx context.Context, p Provider, frames []models.Frame, workers int) ([][]float32, error) {
	if workers <= 0 {
		workers = 4
	}
	vecs := make([][]float32, len(frames))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, frame := range frames {
		g.Go(func() error {
			vec, err := p.Embed(ctx, frame.JPEG)
			if err != nil {
				return fmt.Errorf("frame %d: %w", i, err)
			}
			vecs[i] = vec
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return vecs, nil
}
