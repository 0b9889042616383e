//go:build e2e

package e2e

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	_ "github.com/lib/pq"
	"golang.org/x/crypto/bcrypt"

	"github.com/boardtrack/apiserver/config"
	"github.com/boardtrack/apiserver/internal/db"
	"github.com/boardtrack/apiserver/internal/server"
)

const (
	serverPort    = 18090
	adminUsername = "e2e_admin"
	adminPassword = "e2e_password"
)

func TestMain(m *testing.M) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Minute)
	defer cancel()

	root, err := repoRoot()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to locate repo root: %v\n", err)
		os.Exit(1)
	}

	if err := dockerCompose(ctx, root, "up", "-d", "postgres"); err != nil {
		fmt.Fprintf(os.Stderr, "failed to start docker compose: %v\n", err)
		os.Exit(1)
	}

	setServerEnv()

	if err := waitForPostgres(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "postgres not ready: %v\n", err)
		_ = dockerCompose(context.Background(), root, "down")
		os.Exit(1)
	}

	if err := runMigrations(root); err != nil {
		fmt.Fprintf(os.Stderr, "failed to run migrations: %v\n", err)
		_ = dockerCompose(context.Background(), root, "down")
		os.Exit(1)
	}

	if err := seedAdmin(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "failed to seed admin: %v\n", err)
		_ = dockerCompose(context.Background(), root, "down")
		os.Exit(1)
	}

	srv, err := startServer()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to start server: %v\n", err)
		_ = dockerCompose(context.Background(), root, "down")
		os.Exit(1)
	}

	baseURL := fmt.Sprintf("http://localhost:%d", serverPort)
	if err := waitForHealth(ctx, baseURL+"/healthz"); err != nil {
		fmt.Fprintf(os.Stderr, "server not healthy: %v\n", err)
		_ = srv.Shutdown()
		_ = dockerCompose(context.Background(), root, "down")
		os.Exit(1)
	}

	code := m.Run()

	_ = srv.Shutdown()
	_ = dockerCompose(context.Background(), root, "down")
	os.Exit(code)
}

func TestScanLifecycle(t *testing.T) {
	baseURL := fmt.Sprintf("http://localhost:%d", serverPort)
	suffix := time.Now().UnixNano()

	adminToken := login(t, baseURL, adminUsername, adminPassword)

	deptName := fmt.Sprintf("Assembly %d", suffix)
	deptID := createDepartment(t, baseURL, adminToken, deptName)

	operatorName := fmt.Sprintf("operator_%d", suffix)
	createUser(t, baseURL, adminToken, operatorName, "op_password", "Standard", &deptID)
	managerName := fmt.Sprintf("manager_%d", suffix)
	createUser(t, baseURL, adminToken, managerName, "mgr_password", "Manager", &deptID)

	managerToken := login(t, baseURL, managerName, "mgr_password")
	orderNumber := fmt.Sprintf("MO-%d", suffix)
	orderID := createOrder(t, baseURL, managerToken, orderNumber)

	// Standard users may not create orders.
	status, _ := postJSON(t, baseURL+"/orders", login(t, baseURL, operatorName, "op_password"), map[string]any{
		"order_number": "MO-FORBIDDEN",
	})
	if status != http.StatusForbidden {
		t.Fatalf("expected 403 for standard user order creation, got %d", status)
	}

	operatorToken := login(t, baseURL, operatorName, "op_password")
	barcode := fmt.Sprintf("BRD-%d", suffix)

	status, body := postJSON(t, baseURL+"/scans", operatorToken, map[string]any{
		"barcode":  barcode,
		"status":   "Pass",
		"order_id": orderID,
	})
	if status != http.StatusCreated {
		t.Fatalf("record scan status %d: %s", status, body)
	}

	// Same barcode against the same order must be rejected.
	status, _ = postJSON(t, baseURL+"/scans", operatorToken, map[string]any{
		"barcode":  barcode,
		"status":   "Fail",
		"order_id": orderID,
	})
	if status != http.StatusConflict {
		t.Fatalf("expected 409 for duplicate barcode, got %d", status)
	}

	scans := listScans(t, baseURL, adminToken, orderID)
	if len(scans) != 1 {
		t.Fatalf("expected 1 scan, got %d", len(scans))
	}
	if scans[0].Barcode != barcode {
		t.Fatalf("unexpected barcode %q", scans[0].Barcode)
	}
	if scans[0].OrderNumber != orderNumber {
		t.Fatalf("unexpected order number %q", scans[0].OrderNumber)
	}
	if scans[0].Username != operatorName {
		t.Fatalf("unexpected username %q", scans[0].Username)
	}
}

type scanResponse struct {
	ID          int    `json:"id"`
	Barcode     string `json:"barcode"`
	OrderNumber string `json:"order_number"`
	Username    string `json:"username"`
}

func login(t *testing.T, baseURL, username, password string) string {
	t.Helper()

	status, body := postJSON(t, baseURL+"/auth/login", "", map[string]any{
		"username": username,
		"password": password,
	})
	if status != http.StatusOK {
		t.Fatalf("login status %d: %s", status, body)
	}

	var parsed struct {
		Token string `json:"token"`
	}
	if err := json.Unmarshal([]byte(body), &parsed); err != nil {
		t.Fatalf("decode login response: %v", err)
	}
	if parsed.Token == "" {
		t.Fatalf("missing token in login response")
	}
	return parsed.Token
}

func createDepartment(t *testing.T, baseURL, token, name string) int {
	t.Helper()

	status, body := postJSON(t, baseURL+"/departments", token, map[string]any{"name": name})
	if status != http.StatusCreated {
		t.Fatalf("create department status %d: %s", status, body)
	}

	var parsed struct {
		ID int `json:"id"`
	}
	if err := json.Unmarshal([]byte(body), &parsed); err != nil {
		t.Fatalf("decode department response: %v", err)
	}
	return parsed.ID
}

func createUser(t *testing.T, baseURL, token, username, password, role string, departmentID *int) {
	t.Helper()

	payload := map[string]any{
		"username": username,
		"password": password,
		"role":     role,
	}
	if departmentID != nil {
		payload["department_id"] = *departmentID
	}

	status, body := postJSON(t, baseURL+"/users", token, payload)
	if status != http.StatusCreated {
		t.Fatalf("create user status %d: %s", status, body)
	}
}

func createOrder(t *testing.T, baseURL, token, orderNumber string) int {
	t.Helper()

	status, body := postJSON(t, baseURL+"/orders", token, map[string]any{
		"order_number": orderNumber,
		"description":  "e2e order",
	})
	if status != http.StatusCreated {
		t.Fatalf("create order status %d: %s", status, body)
	}

	var parsed struct {
		ID int `json:"id"`
	}
	if err := json.Unmarshal([]byte(body), &parsed); err != nil {
		t.Fatalf("decode order response: %v", err)
	}
	return parsed.ID
}

func listScans(t *testing.T, baseURL, token string, orderID int) []scanResponse {
	t.Helper()

	req, err := http.NewRequest(http.MethodGet, fmt.Sprintf("%s/scans?order_id=%d", baseURL, orderID), nil)
	if err != nil {
		t.Fatalf("build list request: %v", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("list scans: %v", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("list scans status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var parsed []scanResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		t.Fatalf("decode scan list: %v", err)
	}
	return parsed
}

func postJSON(t *testing.T, url, token string, payload map[string]any) (int, string) {
	t.Helper()

	body, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}

	req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("post %s: %v", url, err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)
	return resp.StatusCode, strings.TrimSpace(string(respBody))
}

func seedAdmin(ctx context.Context) error {
	cfg := config.LoadConfig()
	conn, err := sql.Open("postgres", db.BuildDSN(cfg))
	if err != nil {
		return err
	}
	defer conn.Close()

	hashed, err := bcrypt.GenerateFromPassword([]byte(adminPassword), bcrypt.MinCost)
	if err != nil {
		return err
	}

	_, err = conn.ExecContext(ctx, `
		INSERT INTO users (username, password_hash, role_id)
		VALUES ($1, $2, (SELECT id FROM roles WHERE name = 'Admin'))
		ON CONFLICT (username) DO NOTHING`,
		adminUsername, string(hashed))
	return err
}

func waitForPostgres(ctx context.Context) error {
	cfg := config.LoadConfig()
	conn, err := sql.Open("postgres", db.BuildDSN(cfg))
	if err != nil {
		return err
	}
	defer conn.Close()

	ticker := time.NewTicker(1 * time.Second)
	defer ticker.Stop()

	for {
		pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		err := conn.PingContext(pingCtx)
		cancel()
		if err == nil {
			return nil
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

func runMigrations(root string) error {
	cfg := config.LoadConfig()
	migrationsPath := filepath.Join(root, "internal", "db", "migrations")
	migrationsURL := "file://" + migrationsPath

	migrator, err := migrate.New(migrationsURL, db.BuildDSN(cfg))
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

func setServerEnv() {
	_ = os.Setenv("JWT_SECRET", "test-secret")
	_ = os.Setenv("SERVER_PORT", fmt.Sprintf("%d", serverPort))
	_ = os.Setenv("DB_HOST", "localhost")
	_ = os.Setenv("DB_PORT", "5432")
	_ = os.Setenv("DB_USER", "boardtrack")
	_ = os.Setenv("DB_PASSWORD", "password")
	_ = os.Setenv("DB_NAME", "boardtrack_db")
	_ = os.Setenv("DB_USE_SSL", "false")
	_ = os.Setenv("MQ_BACKEND", "")
}

func startServer() (*server.Server, error) {
	cfg := config.LoadConfig()
	srv, err := server.New(context.Background(), cfg)
	if err != nil {
		return nil, err
	}

	go func() {
		_ = srv.Start()
	}()

	return srv, nil
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
