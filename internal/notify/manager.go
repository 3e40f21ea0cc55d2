package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"benchhist/internal/regression"

	"github.com/slack-go/slack"
	"github.com/spf13/viper"
)

// Event types
const (
	EventRegression  = "on_regression"
	EventImprovement = "on_improvement"
)

type slackPoster interface {
	PostMessageContext(ctx context.Context, channelID string, options ...slack.MsgOption) (string, string, error)
}

// Manager fans reports out to the configured providers (Slack and Discord).
type Manager struct {
	// Slack: the bot client when a token is present, else the webhook
	client    slackPoster
	webhook   Notifier
	channelID string

	// Discord
	discord Notifier

	logger *slog.Logger
}

// NewManager creates a Manager from the notifications.* configuration.
func NewManager(logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	m := &Manager{logger: logger}

	// Initialize Slack
	m.initSlack()

	// Initialize Discord
	m.initDiscord()

	return m
}

func (m *Manager) initSlack() {
	if !m.isProviderEnabled("slack") {
		return
	}
	m.channelID = viper.GetString("notifications.slack.channel")

	if botToken := os.Getenv("SLACK_BOT_USER_TOKEN"); botToken != "" {
		m.client = slack.New(botToken)
		return
	}

	webhookURL := viper.GetString("notifications.slack.webhook_url")
	if webhookURL == "" {
		webhookURL = os.Getenv("SLACK_WEBHOOK_URL")
	}
	if webhookURL == "" {
		m.logger.Warn("neither SLACK_BOT_USER_TOKEN nor a Slack webhook is set, slack notifications disabled")
		return
	}
	m.webhook = NewSlackNotifier(webhookURL)
}

func (m *Manager) initDiscord() {
	if !m.isProviderEnabled("discord") {
		return
	}

	webhookURL := viper.GetString("notifications.discord.webhook_url")
	if webhookURL == "" {
		webhookURL = os.Getenv("DISCORD_WEBHOOK_URL")
	}
	if webhookURL == "" {
		m.logger.Warn("DISCORD_WEBHOOK_URL not set, discord notifications disabled")
		return
	}
	m.discord = NewDiscordNotifier(webhookURL)
}

// Active reports whether any provider is configured.
func (m *Manager) Active() bool {
	return m.client != nil || m.webhook != nil || m.discord != nil
}

// Emit sends the report to every provider whose enabled events match one of
// its verdicts. Provider failures are joined; a report with nothing to
// announce sends nothing.
func (m *Manager) Emit(ctx context.Context, report *regression.Report) error {
	var errs []error

	if m.client != nil || m.webhook != nil {
		if msg := FormatReport(report, m.formatFor("slack")); msg != "" {
			if err := m.notifySlack(ctx, msg); err != nil {
				m.logger.Error("Failed to send Slack notification", "suite", report.Suite, "error", err)
				errs = append(errs, err)
			}
		}
	}

	if m.discord != nil {
		if msg := FormatReport(report, m.formatFor("discord")); msg != "" {
			if err := m.discord.Notify(ctx, msg); err != nil {
				m.logger.Error("Failed to send Discord notification", "suite", report.Suite, "error", err)
				errs = append(errs, err)
			}
		}
	}

	return errors.Join(errs...)
}

func (m *Manager) notifySlack(ctx context.Context, message string) error {
	if m.client == nil {
		return m.webhook.Notify(ctx, message)
	}

	channelID := m.channelID
	if channelID == "" {
		channelID = "#benchmarks"
	}
	_, _, err := m.client.PostMessageContext(ctx, channelID, slack.MsgOptionText(message, false))
	if err != nil {
		return fmt.Errorf("failed to post slack message: %w", err)
	}
	return nil
}

func (m *Manager) formatFor(provider string) FormatOptions {
	return FormatOptions{
		Regressions:  m.isEventEnabled(provider, EventRegression),
		Improvements: m.isEventEnabled(provider, EventImprovement),
	}
}

func (m *Manager) isEventEnabled(provider, event string) bool {
	return viper.GetBool("notifications." + provider + ".events." + event)
}

func (m *Manager) isProviderEnabled(provider string) bool {
	return viper.GetBool("notifications." + provider + ".enabled")
}
