package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"

	"sitework/internal/auth"
	"sitework/internal/config"
	"sitework/internal/db"
	"sitework/internal/engine"
	"sitework/internal/migrate"
	"sitework/internal/server"
)

// Smoke check: boot the API against a scratch workspace, create a project
// and start a shift over HTTP.
func main() {
	workspace := "/tmp/sitework-check"
	if _, err := db.EnsureWorkspace(workspace); err != nil {
		panic(err)
	}
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		panic(err)
	}
	defer conn.Close()
	if err := migrate.Migrate(conn); err != nil {
		panic(err)
	}
	cfg := config.Default()
	e := engine.New(conn, cfg)

	ctx := context.Background()
	p, err := e.CreateProject(ctx, engine.ProjectCreateOptions{
		ProjectName: "Smoke site",
		ForemanID:   "tester",
		ActorID:     "tester",
	})
	if err != nil {
		panic(err)
	}
	if _, err := e.SetField(ctx, p.ProjectID, "work_stages.0", map[string]any{
		"stage_id": "s1",
		"work_kinds": []any{map[string]any{
			"work_kind_id": "k1",
			"work_types": []any{map[string]any{
				"work_type_id": "w1",
				"tasks":        []any{map[string]any{"task_id": "t1", "task_name": "Dig"}},
			}},
		}},
	}, "tester"); err != nil {
		panic(err)
	}

	jwtSecret := "test-secret"
	h, err := server.New(server.Config{
		Engine:   e,
		BasePath: "/api/v1",
		JWT:      server.AuthConfig{JWTSecret: jwtSecret},
		Logger:   zerolog.New(os.Stderr),
	})
	if err != nil {
		panic(err)
	}
	ts := httptest.NewServer(h)
	defer ts.Close()

	token := signToken(jwtSecret, "tester")
	body, _ := json.Marshal(map[string]any{
		"project_id": p.ProjectID,
		"task_ids":   []string{"t1"},
	})
	req, _ := http.NewRequest(http.MethodPost, ts.URL+"/api/v1/shifts/start", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)
	res, err := http.DefaultClient.Do(req)
	if err != nil {
		panic(err)
	}
	defer res.Body.Close()
	var resp any
	_ = json.NewDecoder(res.Body).Decode(&resp)
	fmt.Printf("status=%d resp=%v\n", res.StatusCode, resp)

	status, err := e.ShiftStatus(ctx, engine.Scope{ForemanID: "tester"})
	if err != nil {
		panic(err)
	}
	fmt.Println("shift status:", status)
}

func signToken(secret, actorID string) string {
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, auth.Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   actorID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
		},
		Role:      "user",
		TokenType: auth.TokenAccess,
	})
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		panic(err)
	}
	return signed
}
