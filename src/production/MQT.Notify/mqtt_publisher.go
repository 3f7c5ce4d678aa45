package notify

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"gitlab.com/maplesense1/mpt.pinmask_server/src/production/MQT.Bitmask"
	config "gitlab.com/maplesense1/mpt.pinmask_server/src/production/MQT.Config"
	logger "gitlab.com/maplesense1/mpt.pinmask_server/src/production/MQT.Logger"
	mqtmodels "gitlab.com/maplesense1/mpt.pinmask_server/src/production/MQT.Models"
)

// mqttClient is the part of mqtt.Client the publisher needs
type mqttClient interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
	IsConnected() bool
	Disconnect(quiesce uint)
}

// MQTTPublisher pushes each new mask as a retained message so a device that
// (re)subscribes immediately receives its current state. Changes older than
// the last one published for a device are dropped, so the retained value
// always ends on the newest version.
type MQTTPublisher struct {
	client  mqttClient
	prefix  string
	timeout time.Duration
	gate    versionGate
	logger  *logger.Logger
}

// NewMQTTPublisher connects to the broker described by cfg
func NewMQTTPublisher(cfg *config.MQTTConfig, brokerURL string, log *logger.Logger) (*MQTTPublisher, error) {
	opts := mqtt.NewClientOptions().
		AddBroker(brokerURL).
		SetClientID(cfg.ClientID).
		SetKeepAlive(cfg.KeepAlive).
		SetPingTimeout(cfg.PingTimeout).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5 * time.Second).
		SetCleanSession(true)

	if cfg.BrokerUser != "" {
		opts.SetUsername(cfg.BrokerUser)
		opts.SetPassword(cfg.BrokerPass)
	}

	if cfg.UseTLS {
		tlsCfg, err := tlsConfig(cfg.CACertPath)
		if err != nil {
			return nil, err
		}
		opts.SetTLSConfig(tlsCfg)
	}

	log = log.WithComponent("mqtt")
	opts.OnConnectionLost = func(_ mqtt.Client, err error) {
		log.Logger.Error().Err(err).Msg("MQTT connection lost")
	}
	opts.OnConnect = func(_ mqtt.Client) {
		log.Logger.Info().Str("broker", brokerURL).Msg("MQTT connected")
	}

	client := mqtt.NewClient(opts)
	// with connect retry enabled the token only completes once connected,
	// so don't block startup on it
	if tk := client.Connect(); tk.WaitTimeout(10*time.Second) && tk.Error() != nil {
		return nil, fmt.Errorf("failed to connect to MQTT broker: %w", tk.Error())
	}

	return newMQTTPublisher(client, cfg.TopicPrefix, log), nil
}

func newMQTTPublisher(client mqttClient, prefix string, log *logger.Logger) *MQTTPublisher {
	return &MQTTPublisher{client: client, prefix: prefix, timeout: 5 * time.Second, logger: log}
}

func (p *MQTTPublisher) Name() string { return "mqtt" }

// Topic returns the state topic of a device
func (p *MQTTPublisher) Topic(deviceID string) string {
	return fmt.Sprintf("%s/%s/state", p.prefix, deviceID)
}

func (p *MQTTPublisher) Publish(ctx context.Context, change mqtmodels.StateChange) error {
	if !p.client.IsConnected() {
		return fmt.Errorf("mqtt client not connected")
	}

	topic := p.Topic(change.DeviceID)
	var token mqtt.Token
	// paho sends in the order Publish is called, so enqueueing under the
	// gate is enough; the wait below happens outside it
	sent := p.gate.send(change, func() {
		token = p.client.Publish(topic, 1, true, bitmask.Encode(change.Bitmask))
	})
	if !sent {
		p.logger.Logger.Debug().Str("topic", topic).Int64("version", change.Version).Msg("Dropped stale device state")
		return nil
	}

	select {
	case <-token.Done():
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(p.timeout):
		return fmt.Errorf("publish to %s timed out", topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish to %s: %w", topic, err)
	}

	p.logger.Logger.Debug().Str("topic", topic).Uint16("bitmask", change.Bitmask).Msg("Published device state")
	return nil
}

// Close disconnects after letting in-flight messages drain
func (p *MQTTPublisher) Close() error {
	if p.client.IsConnected() {
		p.client.Disconnect(500)
	}
	return nil
}

func tlsConfig(caFile string) (*tls.Config, error) {
	cfg := &tls.Config{MinVersion: tls.VersionTLS12}
	if caFile == "" {
		return cfg, nil
	}
	ca, err := os.ReadFile(caFile)
	if err != nil {
		return nil, err
	}
	cp := x509.NewCertPool()
	if !cp.AppendCertsFromPEM(ca) {
		return nil, fmt.Errorf("bad CA file")
	}
	cfg.RootCAs = cp
	return cfg, nil
}
