// Package alertsink fans ALERT_CREATED events out to delivery channels. The
// review queue in the store is authoritative; sinks are best-effort
// notifications and a failed delivery is logged, never retried into the bus.
package alertsink

import (
	"fmt"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"

	"github.com/truthplane/engine/internal/bus"
	"github.com/truthplane/engine/internal/models"
)

// Sink delivers one alert to a channel.
type Sink interface {
	Name() string
	Deliver(alert *models.GamingAlert) error
}

// Router subscribes to the bus and pushes each alert through every sink.
type Router struct {
	bus   *bus.Bus
	sinks []Sink
	log   zerolog.Logger
	sub   *bus.Subscription
}

// NewRouter builds a router over the given sinks.
func NewRouter(b *bus.Bus, log zerolog.Logger, sinks ...Sink) *Router {
	return &Router{
		bus:   b,
		sinks: sinks,
		log:   log.With().Str("component", "alert_sink").Logger(),
	}
}

// Start subscribes to ALERT_CREATED. Stop disposes the subscription.
func (r *Router) Start() {
	r.sub = r.bus.Subscribe(bus.EventAlertCreated, func(ev bus.Event) {
		alert, ok := ev.Payload.(*models.GamingAlert)
		if !ok {
			return
		}
		for _, sink := range r.sinks {
			if err := sink.Deliver(alert); err != nil {
				r.log.Warn().Err(err).Str("sink", sink.Name()).
					Str("alert_id", alert.ID.String()).Msg("Alert delivery failed")
			}
		}
	})
}

// Stop detaches the router from the bus.
func (r *Router) Stop() {
	if r.sub != nil {
		r.sub.Unsubscribe()
	}
}

// LogSink writes alerts to the structured log.
type LogSink struct {
	log zerolog.Logger
}

// NewLogSink builds the log sink.
func NewLogSink(log zerolog.Logger) *LogSink {
	return &LogSink{log: log}
}

func (s *LogSink) Name() string { return "log" }

func (s *LogSink) Deliver(alert *models.GamingAlert) error {
	s.log.Warn().
		Str("alert_id", alert.ID.String()).
		Str("type", string(alert.Type)).
		Str("severity", string(alert.Severity)).
		Str("platform", string(alert.Platform)).
		Strs("wallets", alert.Wallets).
		Msg("Gaming alert raised")
	return nil
}

// TelegramSink posts alerts to a chat.
type TelegramSink struct {
	bot    *tgbotapi.BotAPI
	chatID int64
}

// NewTelegramSink connects the bot. Fails fast on a bad token.
func NewTelegramSink(token string, chatID int64) (*TelegramSink, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("failed to connect telegram bot: %w", err)
	}
	return &TelegramSink{bot: bot, chatID: chatID}, nil
}

func (s *TelegramSink) Name() string { return "telegram" }

func (s *TelegramSink) Deliver(alert *models.GamingAlert) error {
	msg := tgbotapi.NewMessage(s.chatID, FormatAlert(alert))
	msg.ParseMode = tgbotapi.ModeMarkdown
	_, err := s.bot.Send(msg)
	return err
}

// severityEmoji maps alert severity to a message prefix.
func severityEmoji(s models.AlertSeverity) string {
	switch s {
	case models.SeverityCritical:
		return "🚨"
	case models.SeverityWarning:
		return "⚠️"
	default:
		return "ℹ️"
	}
}

// FormatAlert renders one alert as a Markdown chat message.
func FormatAlert(alert *models.GamingAlert) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s *%s* (%s)\n", severityEmoji(alert.Severity), alert.Type, alert.Severity)
	fmt.Fprintf(&b, "Platform: `%s`\n", alert.Platform)

	wallets := alert.Wallets
	truncated := false
	if len(wallets) > 5 {
		wallets = wallets[:5]
		truncated = true
	}
	fmt.Fprintf(&b, "Wallets: `%s`", strings.Join(wallets, "`, `"))
	if truncated {
		fmt.Fprintf(&b, " +%d more", len(alert.Wallets)-5)
	}
	b.WriteString("\n")

	if alert.RecommendedAction != "" {
		fmt.Fprintf(&b, "Action: %s\n", alert.RecommendedAction)
	}
	return b.String()
}
