package bus

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"
)

// NATSBridge mirrors bus events onto external NATS subjects so out-of-process
// consumers (dashboard workers, the Telegram bot, the copy-trade executor)
// can follow the stream without holding a WebSocket. The mirror is one-way
// and best-effort: a down NATS never blocks or fails the in-process bus.
type NATSBridge struct {
	nc     *nats.Conn
	prefix string
	sub    *Subscription
}

// NATSBridgeConfig configures the mirror.
type NATSBridgeConfig struct {
	URL    string
	Prefix string // subject prefix, default "truthplane.events."
}

// NewNATSBridge connects to NATS and starts mirroring every bus event to
// subject {prefix}{event_type}.
func NewNATSBridge(b *Bus, cfg NATSBridgeConfig) (*NATSBridge, error) {
	nc, err := nats.Connect(
		cfg.URL,
		nats.Name("truthplane-engine"),
		nats.ReconnectWait(2*time.Second),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			if err != nil {
				log.Warn().Err(err).Msg("NATS disconnected")
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info().Str("url", nc.ConnectedUrl()).Msg("NATS reconnected")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	if cfg.Prefix == "" {
		cfg.Prefix = "truthplane.events."
	}

	br := &NATSBridge{nc: nc, prefix: cfg.Prefix}
	br.sub = b.Subscribe(Wildcard, br.forward)

	log.Info().
		Str("nats_url", cfg.URL).
		Str("prefix", cfg.Prefix).
		Msg("NATS event bridge started")

	return br, nil
}

func (br *NATSBridge) forward(ev Event) {
	if !br.nc.IsConnected() {
		return
	}
	data, err := json.Marshal(ev)
	if err != nil {
		log.Warn().Err(err).Str("event_type", string(ev.Type)).Msg("Failed to marshal event for NATS")
		return
	}
	subject := br.prefix + string(ev.Type)
	if err := br.nc.Publish(subject, data); err != nil {
		log.Warn().Err(err).Str("subject", subject).Msg("Failed to mirror event to NATS")
	}
}

// Close stops the mirror and drops the NATS connection.
func (br *NATSBridge) Close() {
	if br.sub != nil {
		br.sub.Unsubscribe()
	}
	if br.nc != nil {
		br.nc.Close()
		log.Info().Msg("NATS event bridge closed")
	}
}
