//go:build e2e

package e2e

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/recipebox/apiserver/config"
	"github.com/recipebox/apiserver/internal/db"
	"github.com/recipebox/apiserver/internal/server"
)

const (
	serverPort = 18080
)

func TestMain(m *testing.M) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Minute)
	defer cancel()

	root, err := repoRoot()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to locate repo root: %v\n", err)
		os.Exit(1)
	}

	setEnv()

	if err := dockerCompose(ctx, root, "up", "-d"); err != nil {
		fmt.Fprintf(os.Stderr, "failed to start docker compose: %v\n", err)
		os.Exit(1)
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	if err := waitForPostgres(ctx, cfg); err != nil {
		fmt.Fprintf(os.Stderr, "postgres not ready: %v\n", err)
		_ = dockerCompose(context.Background(), root, "down")
		os.Exit(1)
	}

	if err := runMigrations(root, cfg); err != nil {
		fmt.Fprintf(os.Stderr, "failed to run migrations: %v\n", err)
		_ = dockerCompose(context.Background(), root, "down")
		os.Exit(1)
	}

	srv, err := server.New(ctx, cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to start server: %v\n", err)
		_ = dockerCompose(context.Background(), root, "down")
		os.Exit(1)
	}
	go func() {
		_ = srv.Start()
	}()

	baseURL := fmt.Sprintf("http://localhost:%d", serverPort)
	if err := waitForHealth(ctx, baseURL+"/healthz"); err != nil {
		fmt.Fprintf(os.Stderr, "server not healthy: %v\n", err)
		_ = srv.Shutdown(context.Background())
		_ = dockerCompose(context.Background(), root, "down")
		os.Exit(1)
	}

	code := m.Run()

	_ = srv.Shutdown(context.Background())
	_ = dockerCompose(context.Background(), root, "down")
	os.Exit(code)
}

func TestRecipeLifecycle(t *testing.T) {
	baseURL := fmt.Sprintf("http://localhost:%d", serverPort)
	suffix := time.Now().UnixNano()
	email := fmt.Sprintf("cook_%d@Example.com", suffix)

	if err := createUser(baseURL, email, fmt.Sprintf("cook_%d", suffix), "testpass123"); err != nil {
		t.Fatalf("create user: %v", err)
	}
	token, err := obtainToken(baseURL, email, "testpass123")
	if err != nil {
		t.Fatalf("obtain token: %v", err)
	}

	var created recipeResponse
	status, err := call(http.MethodPost, baseURL+"/recipe/", token, map[string]any{
		"title":             "Thai Prawn Curry",
		"description":       "Creamy and spicy.",
		"make_time_minutes": 30,
		"price":             "7.50",
		"tag":               []map[string]string{{"name": "Thai"}, {"name": "Dinner"}},
		"ingredients":       []map[string]string{{"name": "Prawns"}},
	}, &created)
	if err != nil || status != http.StatusCreated {
		t.Fatalf("create recipe: status %d: %v", status, err)
	}
	if created.ID == 0 {
		t.Fatalf("expected recipe ID to be set")
	}

	var detail map[string]any
	status, err = call(http.MethodGet, fmt.Sprintf("%s/recipe/%d/", baseURL, created.ID), token, nil, &detail)
	if err != nil || status != http.StatusOK {
		t.Fatalf("get recipe: status %d: %v", status, err)
	}
	if _, ok := detail["description"]; !ok {
		t.Fatalf("expected description in detail response")
	}
	if tags, _ := detail["tag"].([]any); len(tags) != 2 {
		t.Fatalf("expected 2 tags, got %v", detail["tag"])
	}

	var list []map[string]any
	status, err = call(http.MethodGet, baseURL+"/recipe/", token, nil, &list)
	if err != nil || status != http.StatusOK {
		t.Fatalf("list recipes: status %d: %v", status, err)
	}
	if len(list) != 1 {
		t.Fatalf("expected 1 recipe, got %d", len(list))
	}
	if _, ok := list[0]["description"]; ok {
		t.Fatalf("description must not appear in list response")
	}

	status, err = call(http.MethodPatch, fmt.Sprintf("%s/recipe/%d/", baseURL, created.ID), token, map[string]any{
		"tag": []any{},
	}, &detail)
	if err != nil || status != http.StatusOK {
		t.Fatalf("clear tags: status %d: %v", status, err)
	}
	if tags, _ := detail["tag"].([]any); len(tags) != 0 {
		t.Fatalf("expected tags to be cleared, got %v", detail["tag"])
	}

	status, err = call(http.MethodDelete, fmt.Sprintf("%s/recipe/%d/", baseURL, created.ID), token, nil, nil)
	if err != nil || status != http.StatusNoContent {
		t.Fatalf("delete recipe: status %d: %v", status, err)
	}

	status, err = call(http.MethodGet, fmt.Sprintf("%s/recipe/%d/", baseURL, created.ID), token, nil, nil)
	if err != nil || status != http.StatusNotFound {
		t.Fatalf("expected deleted recipe to be missing: status %d: %v", status, err)
	}
}

type recipeResponse struct {
	ID    int    `json:"id"`
	Title string `json:"title"`
}

type tokenResponse struct {
	Token string `json:"token"`
}

func createUser(baseURL, email, username, password string) error {
	status, err := call(http.MethodPost, baseURL+"/users/create/", "", map[string]string{
		"email":    email,
		"username": username,
		"password": password,
	}, nil)
	if err != nil {
		return err
	}
	if status != http.StatusCreated {
		return fmt.Errorf("create user status %d", status)
	}
	return nil
}

func obtainToken(baseURL, email, password string) (string, error) {
	var parsed tokenResponse
	status, err := call(http.MethodPost, baseURL+"/users/token/", "", map[string]string{
		"email":    email,
		"password": password,
	}, &parsed)
	if err != nil {
		return "", err
	}
	if status != http.StatusOK {
		return "", fmt.Errorf("token status %d", status)
	}
	if parsed.Token == "" {
		return "", fmt.Errorf("missing token in response")
	}
	return parsed.Token, nil
}

func call(method, url, token string, payload any, out any) (int, error) {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return 0, err
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, url, body)
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		msg, _ := io.ReadAll(resp.Body)
		if len(msg) > 0 {
			fmt.Fprintf(os.Stderr, "%s %s: %d %s\n", method, url, resp.StatusCode, bytes.TrimSpace(msg))
		}
		return resp.StatusCode, nil
	}
	if out != nil && resp.StatusCode != http.StatusNoContent {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return resp.StatusCode, err
		}
	}
	return resp.StatusCode, nil
}

func setEnv() {
	_ = os.Setenv("TOKEN_SECRET", "test-secret")
	_ = os.Setenv("SERVER_PORT", fmt.Sprintf("%d", serverPort))
	_ = os.Setenv("DB_HOST", "localhost")
	_ = os.Setenv("DB_PORT", "5432")
	_ = os.Setenv("DB_USER", "recipes")
	_ = os.Setenv("DB_PASSWORD", "password")
	_ = os.Setenv("DB_NAME", "recipes_db")
	_ = os.Setenv("DB_USE_SSL", "false")
	_ = os.Setenv("STORAGE_BACKEND", "minio")
	_ = os.Setenv("MINIO_ACCESS_KEY", "minioadmin")
	_ = os.Setenv("MINIO_SECRET_KEY", "minioadmin")
	_ = os.Setenv("MINIO_BUCKET", "recipes")
	_ = os.Setenv("MQ_BACKEND", "rabbitmq")
}

func waitForPostgres(ctx context.Context, cfg config.Config) error {
	ticker := time.NewTicker(1 * time.Second)
	defer ticker.Stop()

	for {
		conn, err := db.Open(ctx, cfg)
		if err == nil {
			return conn.Close()
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("postgres ping timeout: %w", err)
		case <-ticker.C:
		}
	}
}

func waitForHealth(ctx context.Context, url string) error {
	client := &http.Client{Timeout: 2 * time.Second}
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	for {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return err
		}
		resp, err := client.Do(req)
		if err == nil {
			_ = resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				return nil
			}
		}
		select {
		case <-ctx.Done():
			if err != nil {
				return fmt.Errorf("health check failed: %w", err)
			}
			return fmt.Errorf("health check failed with status")
		case <-ticker.C:
		}
	}
}

func runMigrations(root string, cfg config.Config) error {
	migrationsURL := "file://" + filepath.Join(root, "internal", "db", "migrations")

	migrator, err := migrate.New(migrationsURL, db.PostgresURL(cfg.Database))
	if err != nil {
		return err
	}
	defer func() {
		_, _ = migrator.Close()
	}()

	if err := migrator.Up(); err != nil && err != migrate.ErrNoChange {
		return err
	}
	return nil
}

func dockerCompose(ctx context.Context, root string, args ...string) error {
	composeFile := filepath.Join(root, "development", "docker-compose.yml")
	baseArgs := append([]string{"compose", "-f", composeFile}, args...)
	cmd := exec.CommandContext(ctx, "docker", baseArgs...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	return cmd.Run()
}

func repoRoot() (string, error) {
	dir, err := os.Getwd()
	if err != nil {
		return "", err
	}

	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", fmt.Errorf("go.mod not found")
		}
		dir = parent
	}
}
