package autoreply

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spec-kit/support-gateway/internal/domain"
)

// RulesFile is the on-disk rule configuration: the editable rule list plus
// optional phrase-list overrides for the moderation heuristic.
type RulesFile struct {
	Phrases PhraseConfig           `json:"phrases"`
	Rules   []domain.AutoReplyRule `json:"rules"`
}

// LoadRulesFile reads and validates the rule configuration at path. A missing
// file is not an error; it yields an empty rule set with default phrases.
func LoadRulesFile(path string) (*RulesFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &RulesFile{Phrases: DefaultPhrases()}, nil
		}
		return nil, fmt.Errorf("read rules file: %w", err)
	}

	var file RulesFile
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse rules file: %w", err)
	}

	seen := make(map[string]struct{}, len(file.Rules))
	for i := range file.Rules {
		rule := &file.Rules[i]
		if rule.ID == "" {
			return nil, fmt.Errorf("rule %d: missing id", i)
		}
		if _, dup := seen[rule.ID]; dup {
			return nil, fmt.Errorf("rule %q: duplicate id", rule.ID)
		}
		seen[rule.ID] = struct{}{}
		if rule.Response == "" {
			return nil, fmt.Errorf("rule %q: missing response", rule.ID)
		}
	}

	file.Phrases = file.Phrases.withDefaults()
	return &file, nil
}
