package autoreply

import (
	"strings"
	"sync"

	"github.com/spec-kit/support-gateway/internal/domain"
)

// ModerationRuleID labels decisions produced by the moderation heuristic.
const ModerationRuleID = "moderation_check"

const defaultDelaySeconds = 2

// Input is one evaluation request.
type Input struct {
	Content   string
	GuildID   string
	ChannelID string
	Source    domain.DecisionSource
}

// Engine maps message content plus the configured rule set to a Decision.
// Evaluation is pure: no I/O, identical inputs produce identical outputs. The
// live gateway path, the polling fallback and the simulate endpoint all call
// the same Evaluate.
type Engine struct {
	mu      sync.RWMutex
	rules   []domain.AutoReplyRule
	phrases PhraseConfig
}

// NewEngine builds an engine over the given phrase lists and rules.
func NewEngine(phrases PhraseConfig, rules []domain.AutoReplyRule) *Engine {
	return &Engine{phrases: phrases.withDefaults(), rules: rules}
}

// ReplaceRules swaps the rule set atomically (hot reload).
func (e *Engine) ReplaceRules(rules []domain.AutoReplyRule) {
	e.mu.Lock()
	e.rules = rules
	e.mu.Unlock()
}

// ReplaceConfig swaps both the phrase lists and the rule set atomically.
func (e *Engine) ReplaceConfig(phrases PhraseConfig, rules []domain.AutoReplyRule) {
	e.mu.Lock()
	e.phrases = phrases.withDefaults()
	e.rules = rules
	e.mu.Unlock()
}

// Phrases returns the active phrase configuration.
func (e *Engine) Phrases() PhraseConfig {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.phrases
}

// Rules returns a copy of the current rule set.
func (e *Engine) Rules() []domain.AutoReplyRule {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]domain.AutoReplyRule, len(e.rules))
	copy(out, e.rules)
	return out
}

// Evaluate produces a Decision for the given input. It never panics and is
// total: any input, including empty content, yields a populated Decision.
func (e *Engine) Evaluate(in Input) domain.Decision {
	e.mu.RLock()
	rules := e.rules
	phrases := e.phrases
	e.mu.RUnlock()

	source := in.Source
	if source == "" {
		source = domain.SourceGateway
	}

	text := normalize(in.Content)
	if text == "" {
		return domain.Decision{
			Action:       domain.ActionNone,
			Source:       source,
			Reason:       domain.ReasonNoRuleMatched,
			Keywords:     []string{},
			CheckedRules: 0,
		}
	}

	// The moderation heuristic runs first and short-circuits the rule scan.
	if mod := CheckModeration(in.Content, phrases); mod.Matched {
		return domain.Decision{
			Action:       domain.ActionSend,
			Source:       source,
			RuleID:       ModerationRuleID,
			RuleName:     ModerationRuleID,
			Response:     mod.Response,
			Reason:       mod.Reason,
			Keywords:     mod.Keywords,
			Confidence:   mod.Confidence,
			CheckedRules: 0,
			DelaySecs:    defaultDelaySeconds,
		}
	}

	checked := 0
	for _, rule := range rules {
		checked++
		if !rule.Enabled {
			continue
		}
		if !scopeMatches(rule, in.GuildID, in.ChannelID) {
			continue
		}
		matched, keywords := keywordsMatch(text, rule)
		if !matched {
			continue
		}

		if isBanAppealRule(rule) {
			unban, kwUnban := firstHit(text, phrases.UnbanIntent)
			purchase, kwBuy := firstHit(text, phrases.PurchaseIntent)
			if unban && purchase {
				// Override branch: the user claims an unban and wants to pay;
				// the configured appeal response would mislead them.
				return domain.Decision{
					Action:       domain.ActionSend,
					Source:       source,
					RuleID:       rule.ID,
					RuleName:     rule.Name,
					Response:     phrases.SupportResponse,
					Reason:       domain.ReasonBanAppealOverride,
					Keywords:     append(keywords, kwUnban, kwBuy),
					Confidence:   0.9,
					CheckedRules: checked,
					DelaySecs:    ruleDelay(rule),
				}
			}
			question, _ := firstHit(text, phrases.QuestionIntent)
			if isSimpleMentionRule(rule) || !question {
				// Suppression branch: keep scanning the remaining rules.
				continue
			}
		}

		return domain.Decision{
			Action:       domain.ActionSend,
			Source:       source,
			RuleID:       rule.ID,
			RuleName:     rule.Name,
			Response:     rule.Response,
			Reason:       domain.ReasonRuleMatched,
			Keywords:     keywords,
			Confidence:   1.0,
			CheckedRules: checked,
			DelaySecs:    ruleDelay(rule),
		}
	}

	return domain.Decision{
		Action:       domain.ActionNone,
		Source:       source,
		Reason:       domain.ReasonNoRuleMatched,
		Keywords:     []string{},
		CheckedRules: checked,
	}
}

func scopeMatches(rule domain.AutoReplyRule, guildID, channelID string) bool {
	if rule.GuildID != "" && guildID != "" && rule.GuildID != guildID {
		return false
	}
	if rule.ChannelID != "" && channelID != "" && rule.ChannelID != channelID {
		return false
	}
	return true
}

// keywordsMatch applies the include/exclude logic: any IncludeAny hit, or any
// IncludeAll group fully present, and no ExcludeAny hit.
func keywordsMatch(text string, rule domain.AutoReplyRule) (bool, []string) {
	var keywords []string
	matched := false

	if hit, kw := firstHit(text, rule.IncludeAny); hit {
		matched = true
		keywords = append(keywords, kw)
	}
	if !matched {
		for _, group := range rule.IncludeAll {
			if len(group) == 0 {
				continue
			}
			all := true
			for _, term := range group {
				if !strings.Contains(text, strings.ToLower(term)) {
					all = false
					break
				}
			}
			if all {
				matched = true
				keywords = append(keywords, group...)
				break
			}
		}
	}
	if !matched {
		return false, nil
	}
	if hit, _ := firstHit(text, rule.ExcludeAny); hit {
		return false, nil
	}
	return true, keywords
}

// isBanAppealRule recognizes the mistaken-ban appeal rule category by name.
func isBanAppealRule(rule domain.AutoReplyRule) bool {
	name := strings.ToLower(rule.Name)
	if strings.Contains(name, "ошибочн") && strings.Contains(name, "бан") {
		return true
	}
	return strings.Contains(name, "ban appeal")
}

// isSimpleMentionRule flags low-specificity rules: a bare IncludeAny list of
// single-word terms with no AND-groups and no exclusions.
func isSimpleMentionRule(rule domain.AutoReplyRule) bool {
	if len(rule.IncludeAll) > 0 || len(rule.ExcludeAny) > 0 {
		return false
	}
	if len(rule.IncludeAny) == 0 {
		return false
	}
	for _, term := range rule.IncludeAny {
		if strings.ContainsAny(term, " \t") {
			return false
		}
	}
	return true
}

func ruleDelay(rule domain.AutoReplyRule) int {
	if rule.DelaySecs > 0 {
		return rule.DelaySecs
	}
	return defaultDelaySeconds
}
