// Package captioner describes sampled frames with a local vision model so
// ingested segments carry a human-readable label in their Extra field.
package captioner

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/agent-api/core/pkg/agent"
	"github.com/agent-api/core/types"
	"github.com/agent-api/ollama"
)

type Captioner struct {
	agent *agent.DefaultAgent
}

// New sets up an Ollama-backed vision agent.
func New(ctx context.Context, logger *slog.Logger, baseURL string, port int, model string) (*Captioner, error) {
	opts := &ollama.ProviderOpts{
		Logger:  logger,
		BaseURL: baseURL,
		Port:    port,
	}
	provider := ollama.NewProvider(opts)
	provider.UseModel(ctx, &types.Model{ID: model})

	agentConf := &agent.NewAgentConfig{
		Provider:     provider,
		Logger:       logger,
		SystemPrompt: "You are a visual analysis assistant. Describe the content of each frame in one short sentence.",
	}

	return &Captioner{agent: agent.NewAgent(agentConf)}, nil
}

// Describe returns a one-line description of the frame at framePath.
func (c *Captioner) Describe(ctx context.Context, framePath string) (string, error) {
	response := c.agent.Run(
		ctx,
		agent.WithInput("Describe this frame in one sentence."),
		agent.WithImagePath(framePath),
	)
	if response.Err != nil {
		return "", response.Err
	}
	if len(response.Messages) == 0 {
		return "", fmt.Errorf("no response from vision model")
	}
	return response.Messages[len(response.Messages)-1].Content, nil
}
