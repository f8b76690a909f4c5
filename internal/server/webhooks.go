package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"protodesk/internal/config"
	"protodesk/internal/domain"
	"protodesk/internal/engine"
)

const (
	defaultNotifyInterval = time.Minute
	defaultWebhookTimeout = 5 * time.Second
	defaultNotifyBatch    = 100
)

// Notifier posts due reminders to the configured webhooks and marks them sent once every
// enabled hook accepted the delivery. Hooks that already accepted a reminder are not posted
// to again, and reminders with failed deliveries queue behind untried ones.
type Notifier struct {
	Engine   engine.Engine
	Webhooks []config.WebhookConfig
	Interval time.Duration
	// Lookahead picks reminders up this long before they are due.
	Lookahead time.Duration
	Logger    *zap.Logger
	Client    *http.Client
}

func (n *Notifier) logger() *zap.Logger {
	if n.Logger != nil {
		return n.Logger
	}
	return zap.NewNop()
}

func (n *Notifier) enabled() []config.WebhookConfig {
	var hooks []config.WebhookConfig
	for _, hook := range n.Webhooks {
		if hook.Enabled != nil && !*hook.Enabled {
			continue
		}
		if strings.TrimSpace(hook.URL) == "" {
			continue
		}
		hooks = append(hooks, hook)
	}
	return hooks
}

// Run dispatches on every tick until ctx is done.
func (n *Notifier) Run(ctx context.Context) error {
	if len(n.enabled()) == 0 {
		n.logger().Debug("reminder notifier disabled: no webhooks")
		return nil
	}
	interval := n.Interval
	if interval <= 0 {
		interval = defaultNotifyInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		if _, err := n.DispatchDue(ctx); err != nil && ctx.Err() == nil {
			n.logger().Warn("reminder dispatch failed", zap.Error(err))
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// DispatchDue delivers one batch and reports how many reminders were marked sent.
func (n *Notifier) DispatchDue(ctx context.Context) (int, error) {
	hooks := n.enabled()
	if len(hooks) == 0 {
		return 0, nil
	}
	due, err := n.Engine.DueReminders(ctx, n.Lookahead, defaultNotifyBatch)
	if err != nil {
		return 0, err
	}
	sent := 0
	for _, rm := range due {
		p, err := n.Engine.GetProtocol(ctx, rm.ProtocolID)
		if err != nil {
			n.logger().Warn("reminder protocol lookup failed", zap.Int64("reminder_id", rm.ID), zap.Error(err))
			continue
		}
		done, err := n.Engine.DeliveredHooks(ctx, rm.ID)
		if err != nil {
			return sent, err
		}
		delivered := true
		for _, hook := range hooks {
			if done[hook.URL] {
				continue
			}
			if err := n.post(ctx, hook, reminderPayload(rm, p)); err != nil {
				n.logger().Warn("webhook delivery failed", zap.String("url", hook.URL), zap.Int64("reminder_id", rm.ID), zap.Error(err))
				delivered = false
				continue
			}
			if err := n.Engine.RecordDelivery(ctx, rm.ID, hook.URL); err != nil {
				return sent, err
			}
		}
		if !delivered {
			if err := n.Engine.MarkReminderAttempted(ctx, rm.ID); err != nil {
				return sent, err
			}
			continue
		}
		if err := n.Engine.MarkReminderSent(ctx, rm.ID); err != nil {
			return sent, err
		}
		sent++
	}
	return sent, nil
}

type reminderEvent struct {
	Type           string    `json:"type"`
	ReminderID     int64     `json:"reminder_id"`
	ProtocolID     int64     `json:"protocol_id"`
	ProtocolNumber string    `json:"protocol_number"`
	Title          string    `json:"title"`
	AssignedTo     int64     `json:"assigned_to"`
	Text           string    `json:"reminder_text"`
	Message        string    `json:"reminder_message,omitempty"`
	ReminderDate   time.Time `json:"reminder_date"`
}

func reminderPayload(rm domain.Reminder, p domain.Protocol) reminderEvent {
	return reminderEvent{
		Type:           "reminder.due",
		ReminderID:     rm.ID,
		ProtocolID:     p.ID,
		ProtocolNumber: p.Number,
		Title:          p.Title,
		AssignedTo:     p.AssignedTo,
		Text:           rm.Text,
		Message:        rm.Message,
		ReminderDate:   rm.ReminderDate,
	}
}

func (n *Notifier) post(ctx context.Context, hook config.WebhookConfig, evt reminderEvent) error {
	data, err := json.Marshal(evt)
	if err != nil {
		return err
	}
	client := n.Client
	if client == nil {
		client = &http.Client{Timeout: defaultWebhookTimeout}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, hook.URL, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Protodesk-Event", evt.Type)
	req.Header.Set("X-Protodesk-Delivery", strconv.FormatInt(evt.ReminderID, 10))
	for k, v := range hook.Headers {
		req.Header.Set(k, v)
	}
	res, err := client.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
		return fmt.Errorf("status %d: %s", res.StatusCode, strings.TrimSpace(string(body)))
	}
	return nil
}
