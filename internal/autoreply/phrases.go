package autoreply

// PhraseConfig carries the trigger phrase lists and response templates used by
// the moderation heuristic. The defaults are tuned empirically for a
// Russian-speaking community; deployments override them from the rules file.
type PhraseConfig struct {
	CheckContext    []string `json:"check_context,omitempty"`
	ModeratorWords  []string `json:"moderator_words,omitempty"`
	WaitSignals     []string `json:"wait_signals,omitempty"`
	QuestionIntent  []string `json:"question_intent,omitempty"`
	FirstPerson     []string `json:"first_person,omitempty"`
	BanContext      []string `json:"ban_context,omitempty"`
	UnbanIntent     []string `json:"unban_intent,omitempty"`
	PurchaseIntent  []string `json:"purchase_intent,omitempty"`
	Announcements   []string `json:"announcements,omitempty"`
	Profanity       []string `json:"profanity,omitempty"`
	SupportResponse string   `json:"support_response,omitempty"`
	AppealResponse  string   `json:"appeal_response,omitempty"`
	ProfanityNotice string   `json:"profanity_notice,omitempty"`
}

// DefaultSupportResponse is the generic support-contact template.
const DefaultSupportResponse = "Пожалуйста, обратитесь в поддержку: опишите проблему, укажите ваш ник и приложите скриншоты. Модератор ответит в этом тикете."

// DefaultAppealResponse is the ban-appeal instructions template.
const DefaultAppealResponse = "Если вы считаете бан ошибочным, оформите апелляцию: укажите ник, дату бана и причину из личного кабинета. Апелляции рассматриваются до 48 часов."

// DefaultProfanityNotice is posted once per cooldown window when a message
// trips the profanity list.
const DefaultProfanityNotice = "Пожалуйста, соблюдайте правила общения в тикете. Модераторы отвечают быстрее на вежливые сообщения."

// DefaultPhrases returns the built-in phrase lists.
func DefaultPhrases() PhraseConfig {
	return PhraseConfig{
		CheckContext: []string{
			"анидеск", "anydesk", "проверк", "скриншер", "screenshare",
			"скрин шер", "демк", "демо запис",
		},
		ModeratorWords: []string{
			"модератор", "модера", "модер ", "админ", "moderator",
		},
		WaitSignals: []string{
			"не отвечает", "не отвечают", "не пишет", "игнор", "жду уже",
			"уже час", "уже давно", "долго ждать",
		},
		QuestionIntent: []string{
			"что делать", "как ", "почему", "помогите", "подскаж", "?",
		},
		FirstPerson: []string{
			"я ", "меня", "мне", "у меня", "мой", "моя",
		},
		BanContext: []string{
			"бан", "заблокирован", "блокировк",
		},
		UnbanIntent: []string{
			"разбан", "анбан", "unban", "сняли бан",
		},
		PurchaseIntent: []string{
			"куп", "покуп", "оплат", "донат", "привилеги", "приобре",
		},
		Announcements: []string{
			"набор модераторов", "требуются модераторы", "ищем модераторов",
			"открыт набор",
		},
		Profanity: []string{
			"идиот", "дебил", "тупой модер", "мразь",
		},
		SupportResponse: DefaultSupportResponse,
		AppealResponse:  DefaultAppealResponse,
		ProfanityNotice: DefaultProfanityNotice,
	}
}

// withDefaults fills any empty list or template from the built-ins.
func (p PhraseConfig) withDefaults() PhraseConfig {
	def := DefaultPhrases()
	if len(p.CheckContext) == 0 {
		p.CheckContext = def.CheckContext
	}
	if len(p.ModeratorWords) == 0 {
		p.ModeratorWords = def.ModeratorWords
	}
	if len(p.WaitSignals) == 0 {
		p.WaitSignals = def.WaitSignals
	}
	if len(p.QuestionIntent) == 0 {
		p.QuestionIntent = def.QuestionIntent
	}
	if len(p.FirstPerson) == 0 {
		p.FirstPerson = def.FirstPerson
	}
	if len(p.BanContext) == 0 {
		p.BanContext = def.BanContext
	}
	if len(p.UnbanIntent) == 0 {
		p.UnbanIntent = def.UnbanIntent
	}
	if len(p.PurchaseIntent) == 0 {
		p.PurchaseIntent = def.PurchaseIntent
	}
	if len(p.Announcements) == 0 {
		p.Announcements = def.Announcements
	}
	if len(p.Profanity) == 0 {
		p.Profanity = def.Profanity
	}
	if p.SupportResponse == "" {
		p.SupportResponse = def.SupportResponse
	}
	if p.AppealResponse == "" {
		p.AppealResponse = def.AppealResponse
	}
	if p.ProfanityNotice == "" {
		p.ProfanityNotice = def.ProfanityNotice
	}
	return p
}
