package catalog

import (
	"context"
	"fmt"
	"log/slog"
)

const currentProjectKey = "current_project_id"

// ProjectContext reports which project is open. ok is false when none is.
type ProjectContext interface {
	CurrentProjectID(ctx context.Context) (id string, ok bool)
}

// ConfigProjectContext keeps the open project in the config table so it
// survives restarts of the agent.
type ConfigProjectContext struct {
	repo   Repository
	logger *slog.Logger
}

func NewConfigProjectContext(repo Repository, logger *slog.Logger) *ConfigProjectContext {
	return &ConfigProjectContext{repo: repo, logger: logger}
}

func (c *ConfigProjectContext) CurrentProjectID(ctx context.Context) (string, bool) {
	id, err := c.repo.GetConfig(ctx, currentProjectKey)
	if err != nil {
		if c.logger != nil {
			c.logger.Warn("failed to read current project", "error", err)
		}
		return "", false
	}
	if id == "" {
		return "", false
	}

	// The tagging side may delete the project out from under us.
	p, err := c.repo.GetProject(ctx, id)
	if err != nil {
		if c.logger != nil {
			c.logger.Warn("failed to read current project", "project_id", id, "error", err)
		}
		return "", false
	}
	if p == nil {
		if c.logger != nil {
			c.logger.Info("current project no longer exists, closing it", "project_id", id)
		}
		if err := c.repo.DeleteConfig(ctx, currentProjectKey); err != nil && c.logger != nil {
			c.logger.Warn("failed to clear current project", "project_id", id, "error", err)
		}
		return "", false
	}
	return id, true
}

// Open makes id the current project. The project must exist.
func (c *ConfigProjectContext) Open(ctx context.Context, id string) error {
	p, err := c.repo.GetProject(ctx, id)
	if err != nil {
		return err
	}
	if p == nil {
		return fmt.Errorf("project %s: %w", id, ErrNotFound)
	}
	return c.repo.SetConfig(ctx, currentProjectKey, id)
}

func (c *ConfigProjectContext) Close(ctx context.Context) error {
	return c.repo.DeleteConfig(ctx, currentProjectKey)
}

// StaticProjectContext is a fixed project context, used by the CLI when a
// project is named on the command line.
type StaticProjectContext string

func (s StaticProjectContext) CurrentProjectID(context.Context) (string, bool) {
	return string(s), s != ""
}
