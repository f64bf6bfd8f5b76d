package app

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"os"
	"strings"

	"go.uber.org/zap"

	"forestlog/internal/config"
	"forestlog/internal/db"
	"forestlog/internal/engine"
	"forestlog/internal/logging"
	"forestlog/internal/migrate"
)

// SecretEnv names the variable holding the JWT signing secret.
const SecretEnv = "FORESTLOG_JWT_SECRET"

// Options tune how a workspace is opened.
type Options struct {
	// LogWriter receives console log output. Defaults to stdout.
	LogWriter io.Writer
	// RequireSecret fails Open when no JWT secret is configured.
	RequireSecret bool
}

// Workspace bundles everything a command needs to operate on one workspace.
type Workspace struct {
	Path       string
	ConfigPath string
	DB         *sql.DB
	Config     *config.Config
	Logger     *zap.Logger
	Engine     engine.Engine
}

// Open prepares the workspace directory, migrates the database, loads the
// config (writing the default file when missing) and wires the engine.
func Open(ctx context.Context, workspace string, opts Options) (*Workspace, error) {
	if workspace == "" {
		workspace = "."
	}
	if _, err := db.EnsureWorkspace(workspace); err != nil {
		return nil, err
	}
	cfgPath, err := config.WriteDefault(workspace)
	if err != nil {
		return nil, fmt.Errorf("seed config: %w", err)
	}
	cfg, err := config.Load(workspace)
	if err != nil {
		return nil, err
	}
	secret := strings.TrimSpace(os.Getenv(SecretEnv))
	if secret == "" && opts.RequireSecret {
		return nil, fmt.Errorf("%s is required for bearer auth", SecretEnv)
	}

	w := opts.LogWriter
	if w == nil {
		w = os.Stdout
	}
	logger, err := logging.NewWithWriter(cfg.Logging, w)
	if err != nil {
		return nil, fmt.Errorf("build logger: %w", err)
	}

	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		return nil, err
	}
	if err := conn.PingContext(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("open db %s: %w", db.Path(workspace), err)
	}
	if err := migrate.Migrate(conn); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	e := engine.New(conn, cfg)
	e.Log = logger
	e.JWTSecret = []byte(secret)
	return &Workspace{
		Path:       workspace,
		ConfigPath: cfgPath,
		DB:         conn,
		Config:     cfg,
		Logger:     logger,
		Engine:     e,
	}, nil
}

func (w *Workspace) Close() error {
	if w == nil {
		return nil
	}
	_ = w.Logger.Sync()
	return w.DB.Close()
}
