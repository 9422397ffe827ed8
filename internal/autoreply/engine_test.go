package autoreply

import (
	"reflect"
	"testing"

	"github.com/spec-kit/support-gateway/internal/domain"
)

func newTestEngine(rules ...domain.AutoReplyRule) *Engine {
	return NewEngine(PhraseConfig{}, rules)
}

func TestEvaluateEmptyContent(t *testing.T) {
	e := newTestEngine(domain.AutoReplyRule{
		ID: "r1", Name: "greeting", IncludeAny: []string{"привет"},
		Response: "hello", Enabled: true,
	})
	d := e.Evaluate(Input{Content: "   "})
	if d.Action != domain.ActionNone {
		t.Fatalf("expected no action, got %q", d.Action)
	}
	if d.CheckedRules != 0 {
		t.Fatalf("expected 0 checked rules, got %d", d.CheckedRules)
	}
	if d.Reason != domain.ReasonNoRuleMatched {
		t.Fatalf("unexpected reason %q", d.Reason)
	}
}

func TestEvaluateModerationShortCircuit(t *testing.T) {
	e := newTestEngine(domain.AutoReplyRule{
		ID: "r1", Name: "anydesk", IncludeAny: []string{"анидеск"},
		Response: "rule reply", Enabled: true,
	})
	d := e.Evaluate(Input{
		Content: "Мне нужна проверка через анидеск, модератор не отвечает уже час, что делать?",
	})
	if d.Action != domain.ActionSend {
		t.Fatalf("expected send, got %q", d.Action)
	}
	if d.RuleID != ModerationRuleID {
		t.Fatalf("expected moderation rule id, got %q", d.RuleID)
	}
	// The configured rule also matches but must never be reached.
	if d.CheckedRules != 0 {
		t.Fatalf("moderation match must report 0 checked rules, got %d", d.CheckedRules)
	}
	if d.Response != DefaultSupportResponse {
		t.Fatalf("expected support template, got %q", d.Response)
	}
	if d.DelaySecs != defaultDelaySeconds {
		t.Fatalf("expected default delay, got %d", d.DelaySecs)
	}
}

func TestEvaluateRuleOrderIsPriority(t *testing.T) {
	e := newTestEngine(
		domain.AutoReplyRule{
			ID: "first", Name: "first", IncludeAny: []string{"привилегию"},
			Response: "first reply", Enabled: true,
		},
		domain.AutoReplyRule{
			ID: "second", Name: "second", IncludeAny: []string{"привилегию"},
			Response: "second reply", Enabled: true,
		},
	)
	d := e.Evaluate(Input{Content: "не выдали привилегию"})
	if d.RuleID != "first" {
		t.Fatalf("expected first rule to win, got %q", d.RuleID)
	}
	if d.CheckedRules != 1 {
		t.Fatalf("expected 1 checked rule, got %d", d.CheckedRules)
	}
	if d.Reason != domain.ReasonRuleMatched {
		t.Fatalf("unexpected reason %q", d.Reason)
	}
}

func TestEvaluateDisabledRuleSkipped(t *testing.T) {
	e := newTestEngine(domain.AutoReplyRule{
		ID: "off", Name: "off", IncludeAny: []string{"привилегию"},
		Response: "reply", Enabled: false,
	})
	d := e.Evaluate(Input{Content: "не выдали привилегию"})
	if d.Action != domain.ActionNone {
		t.Fatalf("disabled rule must not fire")
	}
}

func TestEvaluateExcludeBlocksMatch(t *testing.T) {
	e := newTestEngine(domain.AutoReplyRule{
		ID: "r1", Name: "privilege", IncludeAny: []string{"привилегию"},
		ExcludeAny: []string{"выдали"},
		Response:   "reply", Enabled: true,
	})
	d := e.Evaluate(Input{Content: "уже выдали привилегию, спасибо"})
	if d.Action != domain.ActionNone {
		t.Fatalf("excluded content must not match")
	}
}

func TestEvaluateIncludeAllGroup(t *testing.T) {
	rule := domain.AutoReplyRule{
		ID: "r1", Name: "combo",
		IncludeAll: [][]string{{"пропал", "предмет"}},
		Response:   "reply", Enabled: true,
	}
	e := newTestEngine(rule)

	d := e.Evaluate(Input{Content: "пропал мой предмет из инвентаря"})
	if d.Action != domain.ActionSend {
		t.Fatalf("expected full AND group to match")
	}
	d = e.Evaluate(Input{Content: "пропал интернет"})
	if d.Action != domain.ActionNone {
		t.Fatalf("partial AND group must not match")
	}
}

func TestEvaluateChannelScope(t *testing.T) {
	e := newTestEngine(domain.AutoReplyRule{
		ID: "r1", Name: "scoped", ChannelID: "chan-1",
		IncludeAny: []string{"привилегию"},
		Response:   "reply", Enabled: true,
	})
	if d := e.Evaluate(Input{Content: "про привилегию", ChannelID: "chan-2"}); d.Action != domain.ActionNone {
		t.Fatalf("rule must not fire outside its channel")
	}
	if d := e.Evaluate(Input{Content: "про привилегию", ChannelID: "chan-1"}); d.Action != domain.ActionSend {
		t.Fatalf("rule must fire in its channel")
	}
}

func TestEvaluateBanAppealOverride(t *testing.T) {
	e := newTestEngine(domain.AutoReplyRule{
		ID: "appeal", Name: "Ошибочный бан", IncludeAny: []string{"бан"},
		Response: "appeal template", Enabled: true,
	})
	d := e.Evaluate(Input{Content: "забанили ошибочно, хочу купить разбан"})
	if d.Action != domain.ActionSend {
		t.Fatalf("expected send, got %q", d.Action)
	}
	if d.Reason != domain.ReasonBanAppealOverride {
		t.Fatalf("expected override reason, got %q", d.Reason)
	}
	// The unban plus purchase intent redirects to the support template
	// instead of the rule's own response.
	if d.Response != DefaultSupportResponse {
		t.Fatalf("expected support template, got %q", d.Response)
	}
	if d.Confidence != 0.9 {
		t.Fatalf("expected confidence 0.9, got %v", d.Confidence)
	}
}

func TestEvaluateBanAppealSuppression(t *testing.T) {
	e := newTestEngine(
		domain.AutoReplyRule{
			ID: "appeal", Name: "Ошибочный бан", IncludeAny: []string{"бан"},
			Response: "appeal template", Enabled: true,
		},
		domain.AutoReplyRule{
			ID: "cheats", Name: "cheats", IncludeAny: []string{"читы"},
			Response: "cheats reply", Enabled: true,
		},
	)
	// Simple-mention appeal rule is suppressed and scanning continues.
	d := e.Evaluate(Input{Content: "забанили за читы"})
	if d.RuleID != "cheats" {
		t.Fatalf("expected later rule after suppression, got %q", d.RuleID)
	}
	if d.CheckedRules != 2 {
		t.Fatalf("expected 2 checked rules, got %d", d.CheckedRules)
	}
}

func TestEvaluateDeterministic(t *testing.T) {
	e := newTestEngine(domain.AutoReplyRule{
		ID: "r1", Name: "privilege", IncludeAny: []string{"привилегию"},
		Response: "reply", Enabled: true,
	})
	in := Input{Content: "не выдали привилегию", GuildID: "g", ChannelID: "c"}
	first := e.Evaluate(in)
	second := e.Evaluate(in)
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("identical inputs produced different decisions:\n%+v\n%+v", first, second)
	}
}

func TestEvaluateDefaultSource(t *testing.T) {
	e := newTestEngine()
	if d := e.Evaluate(Input{Content: "привет"}); d.Source != domain.SourceGateway {
		t.Fatalf("expected gateway source default, got %q", d.Source)
	}
	if d := e.Evaluate(Input{Content: "привет", Source: domain.SourcePoll}); d.Source != domain.SourcePoll {
		t.Fatalf("expected poll source preserved, got %q", d.Source)
	}
}

func TestReplaceConfigSwapsRules(t *testing.T) {
	e := newTestEngine(domain.AutoReplyRule{
		ID: "old", Name: "old", IncludeAny: []string{"привилегию"},
		Response: "old reply", Enabled: true,
	})
	e.ReplaceConfig(PhraseConfig{}, []domain.AutoReplyRule{{
		ID: "new", Name: "new", IncludeAny: []string{"привилегию"},
		Response: "new reply", Enabled: true,
	}})
	d := e.Evaluate(Input{Content: "не выдали привилегию"})
	if d.RuleID != "new" {
		t.Fatalf("expected swapped rule set, got %q", d.RuleID)
	}
}
