package options

import (
	"fmt"
	"net/url"

	"github.com/spf13/pflag"
)

var _ IOptions = (*NotificationOptions)(nil)

// NotificationOptions configures where failure reports are delivered.
// Every configured sink receives each report.
type NotificationOptions struct {
	// WebhookURL receives JSON reports (chat incoming-webhook style).
	WebhookURL string `json:"webhook-url" mapstructure:"webhook-url"`

	// RateLimit is the sustained number of webhook posts per second.
	RateLimit float64 `json:"rate-limit" mapstructure:"rate-limit"`

	// Burst is the webhook limiter burst size.
	Burst int `json:"burst" mapstructure:"burst"`

	// MQTT publishes reports below the MQTT notification root.
	MQTT bool `json:"mqtt" mapstructure:"mqtt"`

	TelegramToken  string `json:"telegram-token" mapstructure:"telegram-token"`
	TelegramChatID int64  `json:"telegram-chat-id" mapstructure:"telegram-chat-id"`
}

func NewNotificationOptions() *NotificationOptions {
	return &NotificationOptions{
		RateLimit: 1,
		Burst:     5,
		MQTT:      true,
	}
}

func (o *NotificationOptions) Validate() []error {
	var errs []error

	if o.WebhookURL != "" {
		if u, err := url.Parse(o.WebhookURL); err != nil || u.Scheme == "" || u.Host == "" {
			errs = append(errs, fmt.Errorf("notification: invalid webhook url %q", o.WebhookURL))
		}
	}
	if o.RateLimit <= 0 || o.Burst < 1 {
		errs = append(errs, fmt.Errorf("notification: rate limit and burst must be positive"))
	}
	if o.TelegramToken != "" && o.TelegramChatID == 0 {
		errs = append(errs, fmt.Errorf("notification: telegram chat id is required with a token"))
	}

	return errs
}

func (o *NotificationOptions) AddFlags(fs *pflag.FlagSet, prefixes ...string) {
	fs.StringVar(&o.WebhookURL, "notification.webhook-url", o.WebhookURL, "Incoming webhook URL for failure reports.")
	fs.Float64Var(&o.RateLimit, "notification.rate-limit", o.RateLimit, "Maximum webhook posts per second.")
	fs.IntVar(&o.Burst, "notification.burst", o.Burst, "Webhook rate limiter burst.")
	fs.BoolVar(&o.MQTT, "notification.mqtt", o.MQTT, "Publish failure reports over MQTT.")
	fs.StringVar(&o.TelegramToken, "notification.telegram-token", o.TelegramToken, "Telegram bot token for failure reports.")
	fs.Int64Var(&o.TelegramChatID, "notification.telegram-chat-id", o.TelegramChatID, "Telegram chat receiving failure reports.")
}
