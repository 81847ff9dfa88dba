package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"

	"sitework/internal/auth"
	"sitework/internal/config"
	"sitework/internal/db"
	"sitework/internal/docstore"
	"sitework/internal/engine"
	"sitework/internal/migrate"
	"sitework/internal/repo"
	"sitework/internal/session"
)

// Env bundles everything a command needs after bootstrap.
type Env struct {
	DB     *sql.DB
	Config *config.Config
	Engine engine.Engine
	Repo   repo.Repo
}

// Open loads the workspace config, opens the database and applies pending
// migrations. The caller owns the returned handle.
func Open(workspace string) (*Env, error) {
	cfg, err := config.LoadOptional(workspace)
	if err != nil {
		return nil, err
	}
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		return nil, err
	}
	if err := migrate.Migrate(conn); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &Env{
		DB:     conn,
		Config: cfg,
		Engine: engine.New(conn, cfg),
		Repo:   repo.Repo{DB: conn},
	}, nil
}

func (e *Env) Close() error {
	return e.DB.Close()
}

// AuthService wires the credential service against Redis. The JWT secret
// comes from config or the SW_JWT_SECRET environment variable.
func (e *Env) AuthService(ctx context.Context) (auth.Service, error) {
	secret := e.Config.Auth.JWTSecret
	if env := os.Getenv("SW_JWT_SECRET"); env != "" {
		secret = env
	}
	if secret == "" {
		return auth.Service{}, errors.New("jwt secret not configured; set auth.jwt_secret or SW_JWT_SECRET")
	}
	sessions, err := session.New(ctx, e.Config.Redis.URL)
	if err != nil {
		return auth.Service{}, err
	}
	return auth.Service{
		Repo:       e.Repo,
		Sessions:   sessions,
		Secret:     secret,
		AccessTTL:  e.Config.AccessTTL(),
		RefreshTTL: e.Config.RefreshTTL(),
	}, nil
}

// Store exposes the document store for maintenance commands.
func (e *Env) Store() docstore.Store {
	return e.Engine.Store
}
