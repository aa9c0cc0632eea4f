package oracle

import (
	"context"
	"fmt"
	"strings"
	"time"

	"quorum/internal/logger"
	"quorum/internal/venue"
)

// ChatOracle adapts a ChatClient to the Oracle contract.
type ChatOracle struct {
	name   string
	client *ChatClient
}

func NewChatOracle(name string, client *ChatClient) *ChatOracle {
	return &ChatOracle{name: strings.TrimSpace(name), client: client}
}

func (o *ChatOracle) Name() string { return o.name }

// Analyze queries the model and decodes its verdict. Transport errors
// and timeouts propagate so the vote is excluded; a reply the model did
// produce but we cannot parse fails closed to hold/0 instead, since the
// oracle did answer.
func (o *ChatOracle) Analyze(ctx context.Context, inst venue.Instrument, snap Snapshot) (Decision, error) {
	user := buildUserPrompt(inst, snap)
	logger.LogOracleRequest(o.name, systemPrompt, user)

	started := time.Now()
	raw, err := o.client.CallWithMessages(ctx, systemPrompt, user)
	elapsed := time.Since(started)
	if err != nil {
		return Decision{}, fmt.Errorf("oracle %s: %w", o.name, err)
	}
	logger.LogOracleResponse(o.name, raw)

	dec, perr := parseDecision(o.name, raw)
	if perr != nil {
		logger.Warnf("oracle %s: unparseable reply (%v), failing closed to hold", o.name, perr)
		dec = FailClosed(o.name, fmt.Sprintf("unparseable oracle reply: %v", perr))
	}
	dec.ElapsedMs = elapsed.Milliseconds()
	dec.CreatedAt = time.Now()
	return dec, nil
}

// Config describes one oracle model entry from the config file.
type Config struct {
	ID         string
	Provider   string
	APIURL     string
	APIKey     string
	Model      string
	Enabled    bool
	Timeout    time.Duration // per-model override of the default
	MaxRetries int
	Headers    map[string]string
}

// BuildFromConfig constructs the enabled oracles. Unknown provider
// strings still work as long as the endpoint is chat-completions
// compatible, which is what every configured vendor here speaks.
func BuildFromConfig(models []Config, timeout time.Duration) []Oracle {
	out := make([]Oracle, 0, len(models))
	for _, m := range models {
		if !m.Enabled {
			continue
		}
		id := strings.TrimSpace(m.ID)
		if id == "" {
			id = strings.TrimSpace(m.Provider)
			if model := strings.TrimSpace(m.Model); model != "" {
				id = fmt.Sprintf("%s:%s", id, model)
			}
			logger.Warnf("oracles.id missing for %q, generated %s", m.Provider, id)
		}
		client := &ChatClient{
			BaseURL:      m.APIURL,
			APIKey:       m.APIKey,
			Model:        m.Model,
			MaxRetries:   m.MaxRetries,
			ExtraHeaders: m.Headers,
		}
		if timeout > 0 {
			client.Timeout = timeout
		}
		if m.Timeout > 0 {
			client.Timeout = m.Timeout
		}
		out = append(out, NewChatOracle(id, client))
	}
	return out
}
