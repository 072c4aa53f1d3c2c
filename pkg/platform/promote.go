package platform

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// Promotion statuses.
const (
	PromotionPending   = "pending"
	PromotionCompleted = "completed"
	TargetSucceeded    = "succeeded"
	TargetFailed       = "failed"
)

type appRef struct {
	App Ref `json:"app"`
}

type promotionRequest struct {
	Pipeline Ref      `json:"pipeline"`
	Source   appRef   `json:"source"`
	Targets  []appRef `json:"targets"`
}

// Promote copies the staging build to production and waits until the
// platform reports the promotion completed.
func (c *Client) Promote(ctx context.Context, r *Resolution) ([]PromotionTarget, error) {
	req := promotionRequest{
		Pipeline: Ref{ID: r.Pipeline.ID},
		Source:   appRef{App: Ref{ID: r.Staging.ID}},
		Targets:  []appRef{{App: Ref{ID: r.Production.ID}}},
	}

	var promotion Promotion
	if err := c.do(ctx, http.MethodPost, "/pipeline-promotions", req, &promotion); err != nil {
		return nil, fmt.Errorf("failed to start promotion: %w", err)
	}
	c.logger.Info().Str("promotion", promotion.ID).Str("pipeline", r.Pipeline.Name).Msg("promotion started")

	ticker := time.NewTicker(c.pollEvery)
	defer ticker.Stop()
	for promotion.Status == PromotionPending || promotion.Status == "" {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
		if err := c.get(ctx, "/pipeline-promotions/"+escape(promotion.ID), &promotion); err != nil {
			return nil, fmt.Errorf("failed to poll promotion: %w", err)
		}
	}

	var targets []PromotionTarget
	if err := c.get(ctx, "/pipeline-promotions/"+escape(promotion.ID)+"/promotion-targets", &targets); err != nil {
		return nil, fmt.Errorf("failed to read promotion targets: %w", err)
	}

	var failed []string
	for _, t := range targets {
		if t.Status == TargetFailed {
			failed = append(failed, fmt.Sprintf("%s: %s", t.App.Name, t.ErrorMessage))
		}
	}
	if len(failed) > 0 {
		return targets, fmt.Errorf("promotion failed: %s", strings.Join(failed, "; "))
	}
	return targets, nil
}
