package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/support-gateway/internal/config"
)

const (
	queueSize   = 256
	sendTimeout = 10 * time.Second
)

// TelegramOutbox mirrors ticket lifecycle events to a Telegram chat. Enqueue
// is fire and forget: a full queue drops the message rather than blocking the
// event path, and send failures are logged and forgotten.
type TelegramOutbox struct {
	cfg    config.TelegramConfig
	http   *http.Client
	logger *zap.Logger

	queue chan string
	stop  chan struct{}
	done  sync.WaitGroup
}

// NewTelegramOutbox builds the outbox. It is inert until Start.
func NewTelegramOutbox(cfg config.TelegramConfig, logger *zap.Logger) *TelegramOutbox {
	return &TelegramOutbox{
		cfg:    cfg,
		http:   &http.Client{Timeout: sendTimeout},
		logger: logger,
		queue:  make(chan string, queueSize),
		stop:   make(chan struct{}),
	}
}

// Enabled reports whether credentials are configured.
func (o *TelegramOutbox) Enabled() bool {
	return o.cfg.BotToken != "" && o.cfg.ChatID != ""
}

// Start launches the delivery worker. A no-op when credentials are missing.
func (o *TelegramOutbox) Start() {
	if !o.Enabled() {
		o.logger.Info("telegram mirror disabled, no credentials")
		return
	}
	o.done.Add(1)
	go o.worker()
}

// Stop drains the worker. Pending messages are abandoned.
func (o *TelegramOutbox) Stop() {
	close(o.stop)
	o.done.Wait()
}

// Enqueue queues one notification for delivery.
func (o *TelegramOutbox) Enqueue(text string) {
	if !o.Enabled() || text == "" {
		return
	}
	select {
	case o.queue <- text:
	default:
		o.logger.Warn("telegram queue full, dropping notification")
	}
}

func (o *TelegramOutbox) worker() {
	defer o.done.Done()
	for {
		select {
		case <-o.stop:
			return
		case text := <-o.queue:
			if err := o.send(text); err != nil {
				o.logger.Warn("telegram send failed", zap.Error(err))
			}
		}
	}
}

type sendMessageRequest struct {
	ChatID string `json:"chat_id"`
	Text   string `json:"text"`
}

func (o *TelegramOutbox) send(text string) error {
	body, err := json.Marshal(sendMessageRequest{ChatID: o.cfg.ChatID, Text: text})
	if err != nil {
		return err
	}
	url := fmt.Sprintf("https://api.telegram.org/bot%s/sendMessage", o.cfg.BotToken)

	ctx, cancel := context.WithTimeout(context.Background(), sendTimeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := o.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("telegram api status %d", resp.StatusCode)
	}
	return nil
}
