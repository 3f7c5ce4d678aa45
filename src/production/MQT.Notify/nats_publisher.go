package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"gitlab.com/maplesense1/mpt.pinmask_server/src/production/MQT.Bitmask"
	logger "gitlab.com/maplesense1/mpt.pinmask_server/src/production/MQT.Logger"
	mqtmodels "gitlab.com/maplesense1/mpt.pinmask_server/src/production/MQT.Models"
)

type natsConn interface {
	Publish(subj string, data []byte) error
	Close()
}

// NATSPublisher publishes each new mask on <prefix>.<device_id>.state
type NATSPublisher struct {
	conn   natsConn
	prefix string
	gate   versionGate
	logger *logger.Logger
}

// NewNATSPublisher connects to url
func NewNATSPublisher(url, prefix string, log *logger.Logger) (*NATSPublisher, error) {
	log = log.WithComponent("nats")
	conn, err := nats.Connect(url,
		nats.Name("pinmask-api"),
		nats.Timeout(5*time.Second),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.Logger.Warn().Err(err).Msg("NATS disconnected")
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Logger.Info().Str("url", nc.ConnectedUrl()).Msg("NATS reconnected")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	log.Logger.Info().Str("url", url).Str("prefix", prefix).Msg("NATS publisher initialized")
	return &NATSPublisher{conn: conn, prefix: prefix, logger: log}, nil
}

func (p *NATSPublisher) Name() string { return "nats" }

// Subject returns the state subject of a device
func (p *NATSPublisher) Subject(deviceID string) string {
	return fmt.Sprintf("%s.%s.state", p.prefix, deviceID)
}

func (p *NATSPublisher) Publish(_ context.Context, change mqtmodels.StateChange) error {
	subject := p.Subject(change.DeviceID)
	var err error
	p.gate.send(change, func() {
		err = p.conn.Publish(subject, bitmask.Encode(change.Bitmask))
	})
	if err != nil {
		return fmt.Errorf("publish to %s: %w", subject, err)
	}
	return nil
}

func (p *NATSPublisher) Close() error {
	p.conn.Close()
	return nil
}
