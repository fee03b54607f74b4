package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/ChamsBouzaiene/autocoder/internal/config"
	"github.com/ChamsBouzaiene/autocoder/internal/logging"
	"github.com/ChamsBouzaiene/autocoder/internal/plans"
)

type runtimeEnv struct {
	RepoRoot  string
	Config    *config.Config
	Logger    *slog.Logger
	Plans     *plans.SQLiteStore
	SessionID string
}

func (r *runtimeEnv) Close() {
	if r.Plans != nil {
		if err := r.Plans.Close(); err != nil {
			r.Logger.Warn("failed to close plan store", "error", err)
		}
	}
}

func resolveRepoRoot(repoFlag string) (string, error) {
	repoRoot := repoFlag
	if repoRoot == "" {
		wd, err := os.Getwd()
		if err != nil {
			return "", fmt.Errorf("failed to get current directory: %w", err)
		}
		repoRoot = wd
	}
	abs, err := filepath.Abs(repoRoot)
	if err != nil {
		return "", fmt.Errorf("failed to resolve repository path: %w", err)
	}
	if info, err := os.Stat(abs); err != nil || !info.IsDir() {
		return "", fmt.Errorf("repository path is not a valid directory: %s", abs)
	}
	return abs, nil
}

// prepareRuntimeEnv resolves the repository, loads its configuration, sets
// up logging on logOut and opens the plan store scoped to sessionID.
func prepareRuntimeEnv(ctx context.Context, repoFlag, sessionID string, logOut io.Writer) (*runtimeEnv, error) {
	repoRoot, err := resolveRepoRoot(repoFlag)
	if err != nil {
		return nil, err
	}
	cfg, err := config.Load(repoRoot)
	if err != nil {
		return nil, err
	}
	logger, err := logging.Setup(cfg.LogLevel, cfg.LogFormat, logOut)
	if err != nil {
		return nil, err
	}
	logger.Debug("repository root", "path", repoRoot, "data_dir", cfg.DataDir)

	store, err := plans.OpenSQLite(ctx, cfg.PlansDBPath(), sessionID)
	if err != nil {
		return nil, err
	}
	return &runtimeEnv{
		RepoRoot:  repoRoot,
		Config:    cfg,
		Logger:    logger,
		Plans:     store,
		SessionID: sessionID,
	}, nil
}
