package handlers

import (
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/support-gateway/internal/autoreply"
	"github.com/spec-kit/support-gateway/internal/domain"
)

func newSimulateApp() *fiber.App {
	rules := []domain.AutoReplyRule{{
		ID:         "delivery",
		Name:       "delivery question",
		IncludeAny: []string{"доставк"},
		Response:   "Доставка занимает до 15 минут.",
		Enabled:    true,
		DelaySecs:  3,
	}}
	engine := autoreply.NewEngine(autoreply.PhraseConfig{}, rules)
	app := fiber.New()
	app.Post("/api/simulate", NewSimulateHandler(engine).Simulate)
	return app
}

func simulate(t *testing.T, app *fiber.App, body string) domain.Decision {
	t.Helper()
	req := httptest.NewRequest("POST", "/api/simulate", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("unexpected status %d", resp.StatusCode)
	}

	var decision domain.Decision
	if err := json.NewDecoder(resp.Body).Decode(&decision); err != nil {
		t.Fatalf("decode decision: %v", err)
	}
	return decision
}

func TestSimulateReturnsFullDecision(t *testing.T) {
	app := newSimulateApp()
	decision := simulate(t, app, `{"content":"где моя доставка","channel_id":"chan-1"}`)

	if decision.Action != domain.ActionSend {
		t.Fatalf("expected action send, got %q", decision.Action)
	}
	if decision.RuleID != "delivery" || decision.Reason != domain.ReasonRuleMatched {
		t.Fatalf("unexpected decision: %+v", decision)
	}
	if decision.Response != "Доставка занимает до 15 минут." {
		t.Fatalf("unexpected response %q", decision.Response)
	}
	if decision.DelaySecs != 3 {
		t.Fatalf("rule delay must be carried, got %d", decision.DelaySecs)
	}
	if decision.CheckedRules != 1 {
		t.Fatalf("expected 1 checked rule, got %d", decision.CheckedRules)
	}
	if decision.Source != domain.SourceGateway {
		t.Fatalf("default source must be gateway, got %q", decision.Source)
	}
}

func TestSimulateNoMatch(t *testing.T) {
	app := newSimulateApp()
	decision := simulate(t, app, `{"content":"вопрос по оплате","source":"poll"}`)

	if decision.Action != domain.ActionNone {
		t.Fatalf("expected action none, got %q", decision.Action)
	}
	if decision.Reason != domain.ReasonNoRuleMatched {
		t.Fatalf("unexpected reason %q", decision.Reason)
	}
	if decision.Source != domain.SourcePoll {
		t.Fatalf("poll source must pass through, got %q", decision.Source)
	}
}
