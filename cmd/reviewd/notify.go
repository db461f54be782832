package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/heimdex/heimdex-review/internal/logging"
	"github.com/heimdex/heimdex-review/internal/notify"
)

// newNotifyCommand publishes a tag-created event for a running agent, the
// way an out-of-process tagging tool would.
func newNotifyCommand(ctx *commandContext) *cobra.Command {
	var ev notify.TagEvent

	cmd := &cobra.Command{
		Use:   "notify",
		Short: "Signal a running agent that a moment was tagged",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if cfg.RedisURL() == "" {
				return errors.New("no redis_url configured; set REVIEW_REDIS_URL or [notify] redis_url")
			}

			src, err := notify.NewRedisSource(cfg.RedisURL(), cfg.RedisChannel(), nil, logging.NewLogger(cfg.LogLevel()))
			if err != nil {
				return err
			}
			defer src.Close()

			if ev.Source == "" {
				ev.Source = "cli"
			}
			pubCtx, cancel := context.WithTimeout(cmd.Context(), 5*time.Second)
			defer cancel()
			if err := src.Publish(pubCtx, ev); err != nil {
				return fmt.Errorf("publish tag event: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Published tag event on %s\n", cfg.RedisChannel())
			return nil
		},
	}
	cmd.Flags().StringVar(&ev.MomentID, "moment", "", "Tagged moment id")
	cmd.Flags().StringVar(&ev.GameID, "game", "", "Game the moment belongs to")
	cmd.Flags().StringVar(&ev.ProjectID, "project-id", "", "Project the game belongs to")
	return cmd
}
