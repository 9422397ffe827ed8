package autoreply

import (
	"strings"

	"github.com/spec-kit/support-gateway/internal/domain"
)

// ModerationResult is the verdict of the moderation-check heuristic.
type ModerationResult struct {
	Matched    bool
	Reason     string
	Response   string
	Keywords   []string
	Confidence float64
}

const (
	confidenceBase     = 0.55
	confidenceCheckCtx = 0.12
	confidenceModWord  = 0.10
	confidenceWait     = 0.10
	confidenceQuestion = 0.07
	confidenceFirstPer = 0.05
	confidenceCap      = 0.99
)

// CheckModeration runs the moderation-check heuristic over message content.
// It is evaluated before any configured rule and short-circuits the rule scan
// when it matches.
func CheckModeration(content string, phrases PhraseConfig) ModerationResult {
	phrases = phrases.withDefaults()

	text := normalize(content)
	if text == "" {
		return ModerationResult{Reason: domain.ReasonEmptyContent}
	}

	if hit, _ := firstHit(text, phrases.Announcements); hit {
		return ModerationResult{Reason: domain.ReasonAnnouncementTemplate}
	}

	var keywords []string
	checkCtx, kw := firstHit(text, phrases.CheckContext)
	keywords = appendHit(keywords, kw)
	modWord, kw := firstHit(text, phrases.ModeratorWords)
	keywords = appendHit(keywords, kw)
	wait, kw := firstHit(text, phrases.WaitSignals)
	keywords = appendHit(keywords, kw)
	question, kw := firstHit(text, phrases.QuestionIntent)
	keywords = appendHit(keywords, kw)
	firstPerson, _ := firstHit(text, phrases.FirstPerson)

	if !checkCtx && !(modWord && wait) {
		return ModerationResult{Reason: "no_check_context"}
	}
	if !wait && !(question && firstPerson) {
		return ModerationResult{Reason: "no_urgency_signal"}
	}

	confidence := confidenceBase
	if checkCtx {
		confidence += confidenceCheckCtx
	}
	if modWord {
		confidence += confidenceModWord
	}
	if wait {
		confidence += confidenceWait
	}
	if question {
		confidence += confidenceQuestion
	}
	if firstPerson {
		confidence += confidenceFirstPer
	}
	if confidence > confidenceCap {
		confidence = confidenceCap
	}

	result := ModerationResult{
		Matched:    true,
		Reason:     domain.ReasonModerationCheck,
		Response:   phrases.SupportResponse,
		Keywords:   keywords,
		Confidence: confidence,
	}
	if ban, kw := firstHit(text, phrases.BanContext); ban {
		result.Reason = domain.ReasonModerationBanAppeal
		result.Response = phrases.AppealResponse
		result.Keywords = appendHit(result.Keywords, kw)
	}
	return result
}

// normalize lowercases and collapses whitespace runs to single spaces.
func normalize(content string) string {
	return strings.Join(strings.Fields(strings.ToLower(content)), " ")
}

func firstHit(text string, terms []string) (bool, string) {
	for _, term := range terms {
		if term == "" {
			continue
		}
		if strings.Contains(text, strings.ToLower(term)) {
			return true, term
		}
	}
	return false, ""
}

func appendHit(keywords []string, hit string) []string {
	if hit == "" {
		return keywords
	}
	return append(keywords, hit)
}
