package middleware

import (
	"errors"
	"net/http/httptest"
	"testing"
	"time"

	"tree-game-server/services"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
)

type fakeParser struct{}

func (fakeParser) ParseToken(token string) (*services.Claims, error) {
	if token != "good" {
		return nil, errors.New("bad token")
	}
	return &services.Claims{
		Name:             "alice",
		Admin:            true,
		RegisteredClaims: jwt.RegisteredClaims{Subject: "u1", ID: "s1"},
	}, nil
}

func whoami(c *fiber.Ctx) error {
	return c.SendString(UserID(c) + "/" + UserName(c))
}

func status(t *testing.T, app *fiber.App, path string, headers map[string]string) int {
	t.Helper()
	req := httptest.NewRequest("GET", path, nil)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := app.Test(req, -1)
	if err != nil {
		t.Fatalf("request %s: %v", path, err)
	}
	return resp.StatusCode
}

func TestSessionAuthMiddleware(t *testing.T) {
	app := fiber.New()
	app.Get("/me", SessionAuthMiddleware(fakeParser{}), whoami)

	if code := status(t, app, "/me", nil); code != fiber.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", code)
	}
	if code := status(t, app, "/me", map[string]string{"Authorization": "Bearer nope"}); code != fiber.StatusUnauthorized {
		t.Fatalf("expected 401 for bad token, got %d", code)
	}
	if code := status(t, app, "/me", map[string]string{"Authorization": "good"}); code != fiber.StatusUnauthorized {
		t.Fatalf("expected 401 without Bearer prefix, got %d", code)
	}
	if code := status(t, app, "/me", map[string]string{"Authorization": "Bearer good"}); code != fiber.StatusOK {
		t.Fatalf("expected 200, got %d", code)
	}
}

func TestStreamAuthReadsQuery(t *testing.T) {
	app := fiber.New()
	app.Get("/stream", StreamAuthMiddleware(fakeParser{}), whoami)

	if code := status(t, app, "/stream", nil); code != fiber.StatusBadRequest {
		t.Fatalf("expected 400 without token, got %d", code)
	}
	if code := status(t, app, "/stream?token=bad", nil); code != fiber.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", code)
	}
	if code := status(t, app, "/stream?token=good", nil); code != fiber.StatusOK {
		t.Fatalf("expected 200, got %d", code)
	}
}

func TestAdminTokenMiddleware(t *testing.T) {
	app := fiber.New()
	app.Get("/admin", AdminTokenMiddleware("s3cret"), whoami)
	app.Get("/off", AdminTokenMiddleware(""), whoami)

	if code := status(t, app, "/admin", map[string]string{"Authorization": "Bearer good"}); code != fiber.StatusUnauthorized {
		t.Fatalf("expected player token refused, got %d", code)
	}
	if code := status(t, app, "/admin", map[string]string{"X-Admin-Token": "s3cret"}); code != fiber.StatusOK {
		t.Fatalf("expected 200 with admin header, got %d", code)
	}
	if code := status(t, app, "/off", map[string]string{"X-Admin-Token": ""}); code != fiber.StatusServiceUnavailable {
		t.Fatalf("expected 503 when disabled, got %d", code)
	}
}

func TestRateLimiterPerKey(t *testing.T) {
	l := NewRateLimiter(1, 2)
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return now }

	if !l.Allow("a") || !l.Allow("a") {
		t.Fatal("expected burst of two")
	}
	if l.Allow("a") {
		t.Fatal("expected third request refused")
	}
	if !l.Allow("b") {
		t.Fatal("expected other key unaffected")
	}
	now = now.Add(time.Second)
	if !l.Allow("a") {
		t.Fatal("expected refill after a second")
	}
}

func TestRateLimiterMiddleware(t *testing.T) {
	l := NewRateLimiter(0.001, 1)
	app := fiber.New()
	app.Get("/hit", SessionAuthMiddleware(fakeParser{}), l.Middleware(), whoami)

	auth := map[string]string{"Authorization": "Bearer good"}
	if code := status(t, app, "/hit", auth); code != fiber.StatusOK {
		t.Fatalf("expected first hit allowed, got %d", code)
	}
	if code := status(t, app, "/hit", auth); code != fiber.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", code)
	}
}
