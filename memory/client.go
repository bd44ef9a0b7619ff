// Package memory is the runtime's client surface for the external semantic
// memory collaborator, the Go shape of
// ag3nt_agent/autonomous/context_engine_client.py. It is deliberately a
// narrow two-method interface, the style used for external collaborators
// throughout the example pack (narrow interface over an out-of-process
// dependency rather than a wide client struct).
package memory

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/agentflux/core/learning"
)

// Collection names the six semantic memory partitions spec.md §6 defines.
type Collection string

const (
	CollectionActions      Collection = "agent_actions"
	CollectionOutcomes     Collection = "agent_outcomes"
	CollectionGoals        Collection = "agent_goals"
	CollectionDecisions    Collection = "agent_decisions"
	CollectionObservations Collection = "agent_observations"
	CollectionSummaries    Collection = "agent_summaries"
)

// HTTPClient talks to an external semantic memory service over plain JSON
// HTTP. stdlib net/http is used deliberately here: no repo in the example
// pack wires a dedicated REST client library (go-resty et al.) for a
// bespoke internal service endpoint, only for third-party cloud SDKs that
// ship their own clients.
type HTTPClient struct {
	baseURL string
	hc      *http.Client
}

// NewHTTPClient builds a Client against baseURL (e.g.
// "http://localhost:8200").
func NewHTTPClient(baseURL string) *HTTPClient {
	return &HTTPClient{
		baseURL: baseURL,
		hc:      &http.Client{Timeout: 10 * time.Second},
	}
}

type storeActionRequest struct {
	Collection string         `json:"collection"`
	ActionType string         `json:"action_type"`
	GoalID     string         `json:"goal_id"`
	Context    string         `json:"context"`
	Success    bool           `json:"success"`
	DurationMs int64          `json:"duration_ms"`
	Timestamp  time.Time      `json:"timestamp"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

// StoreAction persists an executed action's outcome for future confidence
// lookups.
func (c *HTTPClient) StoreAction(ctx context.Context, rec learning.ActionRecord) error {
	body, err := json.Marshal(storeActionRequest{
		Collection: string(CollectionActions),
		ActionType: rec.ActionType,
		GoalID:     rec.GoalID,
		Context:    rec.Context,
		Success:    rec.Success,
		DurationMs: rec.DurationMs,
		Timestamp:  rec.Timestamp,
		Metadata:   rec.Metadata,
	})
	if err != nil {
		return fmt.Errorf("memory: encoding store request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/store", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("memory: building store request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.hc.Do(req)
	if err != nil {
		return fmt.Errorf("memory: calling store: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("memory: store returned status %d", resp.StatusCode)
	}
	return nil
}

type findMemoriesRequest struct {
	Collection string  `json:"collection"`
	Query      string  `json:"query"`
	Limit      int     `json:"limit"`
	MinScore   float64 `json:"min_score"`
}

type findMemoriesResponse struct {
	Results []struct {
		ActionType string    `json:"action_type"`
		GoalID     string    `json:"goal_id"`
		Context    string    `json:"context"`
		Success    bool      `json:"success"`
		DurationMs int64     `json:"duration_ms"`
		Timestamp  time.Time `json:"timestamp"`
		Similarity float64   `json:"similarity"`
	} `json:"results"`
}

// FindMemories queries the memory service for the most similar past
// actions to query, filtered by a minimum similarity score.
func (c *HTTPClient) FindMemories(ctx context.Context, query string, limit int, minScore float64) ([]learning.MemoryMatch, error) {
	body, err := json.Marshal(findMemoriesRequest{
		Collection: string(CollectionActions),
		Query:      query,
		Limit:      limit,
		MinScore:   minScore,
	})
	if err != nil {
		return nil, fmt.Errorf("memory: encoding find request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/find", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("memory: building find request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.hc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("memory: calling find: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("memory: find returned status %d", resp.StatusCode)
	}

	var parsed findMemoriesResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("memory: decoding find response: %w", err)
	}

	out := make([]learning.MemoryMatch, 0, len(parsed.Results))
	for _, r := range parsed.Results {
		out = append(out, learning.MemoryMatch{
			ActionType: r.ActionType,
			GoalID:     r.GoalID,
			Context:    r.Context,
			Success:    r.Success,
			DurationMs: r.DurationMs,
			Timestamp:  r.Timestamp,
			Similarity: r.Similarity,
		})
	}
	return out, nil
}
