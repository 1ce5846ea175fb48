// Package github triggers GitHub Actions workflows, the remote hands that
// restart the Windows VPS services this system cannot reach directly.
package github

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const (
	defaultBaseURL = "https://api.github.com"
	requestTimeout = 10 * time.Second

	// Custom event type the VPS-restart workflow listens for.
	fullRestartEventType = "restart-vps"
)

// DispatchClient triggers workflow runs in the operations repository
type DispatchClient struct {
	client   *resty.Client
	repo     string // "owner/repo"
	workflow string // workflow file name, e.g. "restart-bridge.yml"
	branch   string
	log      zerolog.Logger
}

// NewDispatchClient creates a client authenticated with a fine-grained token
func NewDispatchClient(repo, token, workflow, branch string, log zerolog.Logger) *DispatchClient {
	client := resty.New().
		SetBaseURL(defaultBaseURL).
		SetTimeout(requestTimeout).
		SetAuthToken(token).
		SetHeader("Accept", "application/vnd.github+json").
		SetHeader("X-GitHub-Api-Version", "2022-11-28")

	return &DispatchClient{
		client:   client,
		repo:     repo,
		workflow: workflow,
		branch:   branch,
		log:      log.With().Str("client", "github").Logger(),
	}
}

// TriggerWorkflow dispatches the bridge-restart workflow on the configured
// branch. GitHub answers 204 with no body on success.
func (c *DispatchClient) TriggerWorkflow(ctx context.Context, reason string) error {
	c.log.Info().
		Str("workflow", c.workflow).
		Str("reason", reason).
		Msg("Triggering workflow dispatch")

	resp, err := c.client.R().
		SetContext(ctx).
		SetBody(map[string]interface{}{
			"ref": c.branch,
			"inputs": map[string]string{
				"reason": reason,
			},
		}).
		Post(fmt.Sprintf("/repos/%s/actions/workflows/%s/dispatches", c.repo, c.workflow))
	if err != nil {
		return fmt.Errorf("workflow dispatch request failed: %w", err)
	}
	if resp.StatusCode() != 204 {
		return fmt.Errorf("workflow dispatch returned status %d: %s", resp.StatusCode(), resp.String())
	}

	return nil
}

// TriggerRepositoryEvent fires the repository_dispatch event that the
// full-restart workflow listens for. Used when a plain service restart is
// known to be insufficient.
func (c *DispatchClient) TriggerRepositoryEvent(ctx context.Context, reason string) error {
	eventID := uuid.NewString()

	c.log.Info().
		Str("event_type", fullRestartEventType).
		Str("event_id", eventID).
		Str("reason", reason).
		Msg("Triggering repository dispatch")

	resp, err := c.client.R().
		SetContext(ctx).
		SetBody(map[string]interface{}{
			"event_type": fullRestartEventType,
			"client_payload": map[string]string{
				"reason":    reason,
				"event_id":  eventID,
				"timestamp": time.Now().UTC().Format(time.RFC3339),
			},
		}).
		Post(fmt.Sprintf("/repos/%s/dispatches", c.repo))
	if err != nil {
		return fmt.Errorf("repository dispatch request failed: %w", err)
	}
	if resp.StatusCode() != 204 {
		return fmt.Errorf("repository dispatch returned status %d: %s", resp.StatusCode(), resp.String())
	}

	return nil
}
