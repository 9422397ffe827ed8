package domain

// AutoReplyRule is one configured keyword-matching policy. Rules are immutable
// during a matching pass; order in the configured list is priority.
type AutoReplyRule struct {
	ID         string     `json:"id"`
	Name       string     `json:"name"`
	GuildID    string     `json:"guild_id,omitempty"`
	ChannelID  string     `json:"channel_id,omitempty"`
	IncludeAny []string   `json:"include_any,omitempty"`
	IncludeAll [][]string `json:"include_all,omitempty"`
	ExcludeAny []string   `json:"exclude_any,omitempty"`
	Response   string     `json:"response"`
	Enabled    bool       `json:"enabled"`
	DelaySecs  int        `json:"delay,omitempty"`
}

// DecisionAction enumerates engine outcomes.
type DecisionAction string

const (
	ActionSend DecisionAction = "send"
	ActionNone DecisionAction = "none"
)

// DecisionSource identifies which ingest path asked for the decision.
type DecisionSource string

const (
	SourceGateway DecisionSource = "gateway"
	SourcePoll    DecisionSource = "poll"
)

// Decision reason codes.
const (
	ReasonModerationCheck      = "moderation_check"
	ReasonModerationBanAppeal  = "moderation_check_ban_appeal"
	ReasonRuleMatched          = "rule_matched"
	ReasonBanAppealOverride    = "ban_appeal_override_to_support"
	ReasonNoRuleMatched        = "no_rule_matched"
	ReasonEmptyContent         = "empty"
	ReasonAnnouncementTemplate = "announcement"
)

// Decision is the engine's sole output. Fully populated even for action=none.
type Decision struct {
	Action       DecisionAction `json:"action"`
	Source       DecisionSource `json:"source"`
	RuleID       string         `json:"rule_id,omitempty"`
	RuleName     string         `json:"rule_name,omitempty"`
	Response     string         `json:"response,omitempty"`
	Reason       string         `json:"reason"`
	Keywords     []string       `json:"keywords"`
	Confidence   float64        `json:"confidence"`
	CheckedRules int            `json:"checked_rules"`
	DelaySecs    int            `json:"delay_seconds"`
}
