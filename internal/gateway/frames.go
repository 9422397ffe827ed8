package gateway

import (
	"encoding/json"
)

// Gateway op codes.
const (
	OpDispatch       = 0
	OpHeartbeat      = 1
	OpIdentify       = 2
	OpResume         = 6
	OpReconnect      = 7
	OpInvalidSession = 9
	OpHello          = 10
	OpHeartbeatACK   = 11
	OpSubscribeGuild = 14
)

// CloseInvalidAuth is the close code for a rejected credential. It must never
// enter the fast reconnect path.
const CloseInvalidAuth = 4004

// resumableCloseCodes is the fixed allow-list of close codes after which the
// server-side session survives and a resume is worth attempting.
var resumableCloseCodes = map[int]bool{
	4000: true, // unknown error
	4001: true, // unknown op code
	4002: true, // decode error
	4003: true, // not authenticated
	4005: true, // already authenticated
	4007: true, // invalid seq
	4008: true, // rate limited
	4009: true, // session timed out
}

// IsResumableClose reports whether the close code preserves the session.
func IsResumableClose(code int) bool {
	return resumableCloseCodes[code]
}

// Envelope is the JSON frame shape shared by every gateway message.
type Envelope struct {
	Op int             `json:"op"`
	D  json.RawMessage `json:"d,omitempty"`
	S  *int64          `json:"s,omitempty"`
	T  string          `json:"t,omitempty"`
}

type helloData struct {
	HeartbeatIntervalMs int64 `json:"heartbeat_interval"`
}

type identityProperties struct {
	OS      string `json:"os"`
	Browser string `json:"browser"`
	Device  string `json:"device"`
}

type identifyData struct {
	Token      string             `json:"token"`
	Intents    *int               `json:"intents,omitempty"`
	Properties identityProperties `json:"properties"`
}

type resumeData struct {
	Token     string `json:"token"`
	SessionID string `json:"session_id"`
	Seq       int64  `json:"seq"`
}

type heartbeatFramePayload struct {
	Op int    `json:"op"`
	D  *int64 `json:"d"`
}

// identifyFrame builds the identify payload. Bot mode declares intents and a
// library fingerprint; user mode mimics a browser client and omits intents.
func identifyFrame(token string, mode AuthMode, intents int) Envelope {
	data := identifyData{Token: token}
	if mode == AuthModeBot {
		data.Intents = &intents
		data.Properties = identityProperties{
			OS:      "linux",
			Browser: "support-gateway",
			Device:  "support-gateway",
		}
	} else {
		data.Properties = identityProperties{
			OS:      "Windows",
			Browser: "Chrome",
			Device:  "",
		}
	}
	raw, _ := json.Marshal(data)
	return Envelope{Op: OpIdentify, D: raw}
}

func resumeFrame(token, sessionID string, seq int64) Envelope {
	raw, _ := json.Marshal(resumeData{Token: token, SessionID: sessionID, Seq: seq})
	return Envelope{Op: OpResume, D: raw}
}

func heartbeatFrame(seq *int64) heartbeatFramePayload {
	return heartbeatFramePayload{Op: OpHeartbeat, D: seq}
}

type subscribeData struct {
	GuildID  string              `json:"guild_id"`
	Channels map[string][][2]int `json:"channels"`
}

// subscribeFrame requests store/forward delivery for a channel (user-mode
// transport variant only).
func subscribeFrame(guildID, channelID string) Envelope {
	raw, _ := json.Marshal(subscribeData{
		GuildID:  guildID,
		Channels: map[string][][2]int{channelID: {{0, 99}}},
	})
	return Envelope{Op: OpSubscribeGuild, D: raw}
}
