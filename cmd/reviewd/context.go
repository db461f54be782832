package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"github.com/heimdex/heimdex-review/internal/catalog"
	"github.com/heimdex/heimdex-review/internal/config"
	"github.com/heimdex/heimdex-review/internal/db"
	"github.com/heimdex/heimdex-review/internal/logging"
	"github.com/heimdex/heimdex-review/internal/review"
)

type commandContext struct {
	configFlag  *string
	projectFlag *string

	configOnce sync.Once
	config     *config.EnvConfig
	configErr  error
}

func newCommandContext(configFlag, projectFlag *string) *commandContext {
	return &commandContext{
		configFlag:  configFlag,
		projectFlag: projectFlag,
	}
}

func (c *commandContext) ensureConfig() (*config.EnvConfig, error) {
	c.configOnce.Do(func() {
		var path string
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}
		cfg, err := config.Load(path)
		if err != nil {
			c.configErr = fmt.Errorf("load config: %w", err)
			return
		}
		if err := os.MkdirAll(cfg.DataDir(), 0755); err != nil {
			c.configErr = fmt.Errorf("create data dir: %w", err)
			return
		}
		c.config = cfg
	})
	return c.config, c.configErr
}

func (c *commandContext) projectOverride() string {
	if c.projectFlag == nil {
		return ""
	}
	return strings.TrimSpace(*c.projectFlag)
}

// store is an opened database for the one-shot inspection commands.
type store struct {
	db     *db.DB
	repo   *catalog.SQLiteRepository
	logger *slog.Logger
}

func (s *store) Close() error {
	return s.db.Close()
}

func (c *commandContext) openStore() (*store, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	// Inspection output goes to stdout; keep the log quiet unless asked.
	level := cfg.LogLevel()
	if level == config.DefaultLogLevel {
		level = "warn"
	}
	logger := logging.NewLogger(level)

	database, err := db.New(cfg.DBPath(), logger)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	return &store{db: database, repo: catalog.NewRepository(database.Conn()), logger: logger}, nil
}

// withReview opens the store, reconciles the current (or --project) project
// once and hands the loaded service to fn.
func (c *commandContext) withReview(ctx context.Context, fn func(*review.Service) error) error {
	cfg, err := c.ensureConfig()
	if err != nil {
		return err
	}
	s, err := c.openStore()
	if err != nil {
		return err
	}
	defer s.Close()

	var projects catalog.ProjectContext = catalog.NewConfigProjectContext(s.repo, s.logger)
	if id := c.projectOverride(); id != "" {
		projects = catalog.StaticProjectContext(id)
	}

	svc := review.NewService(review.Options{
		Repository: s.repo,
		Projects:   projects,
		FrameRate:  cfg.FrameRate(),
		Logger:     s.logger,
	})
	if _, err := svc.Reload(ctx); err != nil {
		return fmt.Errorf("load review state: %w", err)
	}
	return fn(svc)
}

func shouldSkipConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations != nil && c.Annotations["skipConfigLoad"] == "true" {
			return true
		}
	}
	return false
}

func yesNo(value bool) string {
	if value {
		return "yes"
	}
	return "no"
}
