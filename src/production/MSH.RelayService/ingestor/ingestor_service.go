package relayingestor

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	config "gitlab.com/meshsense1/msh.mesh_server/src/production/MSH.Config"
	logger "gitlab.com/meshsense1/msh.mesh_server/src/production/MSH.Logger"
	"gitlab.com/meshsense1/msh.mesh_server/src/production/MSH.RelayService/client"
)

// sample is one MQTT message annotated with the identity parsed from its topic.
type sample struct {
	AdminID    string
	NodeID     string
	Topic      string
	Payload    map[string]interface{}
	ReceivedAt time.Time

	// Relay samples bypass persistence and only refresh the latest-value
	// store on the API side.
	Relay bool
}

// Ingestor subscribes to the mesh broker and forwards samples to the API
// Service over HTTP. Durable samples are batched; relay samples are forwarded
// one at a time to the volatile endpoint.
type Ingestor struct {
	cfg        *config.RelayConfig
	apiClient  *client.APIClient
	mqttClient mqtt.Client
	msgCh      chan sample
	wg         sync.WaitGroup
	logger     *logger.Logger
}

func New(cfg *config.RelayConfig, apiClient *client.APIClient, logger *logger.Logger) *Ingestor {
	return &Ingestor{
		cfg:       cfg,
		apiClient: apiClient,
		msgCh:     make(chan sample, 4096),
		logger:    logger,
	}
}

func (i *Ingestor) Start(ctx context.Context) error {
	opts := mqtt.NewClientOptions().
		AddBroker(i.cfg.GetMQTTBrokerURL()).
		SetClientID(i.cfg.MQTT.ClientID).
		SetOrderMatters(false).
		SetKeepAlive(i.cfg.MQTT.KeepAlive).
		SetPingTimeout(i.cfg.MQTT.PingTimeout).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5 * time.Second).
		SetCleanSession(false)

	if i.cfg.MQTT.BrokerUser != "" {
		opts.SetUsername(i.cfg.MQTT.BrokerUser)
		opts.SetPassword(i.cfg.MQTT.BrokerPass)
	}

	if i.cfg.MQTT.UseTLS {
		tlsCfg, err := i.tlsConfig(i.cfg.MQTT.CACertPath)
		if err != nil {
			return err
		}
		opts.SetTLSConfig(tlsCfg)
	}

	opts.OnConnectionLost = func(_ mqtt.Client, err error) {
		i.logger.Logger.Error().Err(err).Msg("MQTT connection lost")
	}
	opts.OnConnect = func(c mqtt.Client) {
		topic := i.cfg.MQTT.Topic
		if i.cfg.MQTT.SharedGroup != "" {
			topic = fmt.Sprintf("$share/%s/%s", i.cfg.MQTT.SharedGroup, i.cfg.MQTT.Topic)
		}
		i.logger.Logger.Info().Str("topic", topic).Msg("MQTT connected, subscribing to topic")
		if token := c.Subscribe(topic, 1, i.onMessage); token.Wait() && token.Error() != nil {
			i.logger.Logger.Error().Err(token.Error()).Str("topic", topic).Msg("Failed to subscribe to MQTT topic")
		}
	}

	i.mqttClient = mqtt.NewClient(opts)
	if tk := i.mqttClient.Connect(); tk.Wait() && tk.Error() != nil {
		return tk.Error()
	}

	// batch writer
	i.wg.Add(1)
	go func() {
		defer i.wg.Done()
		i.batchWriter(ctx)
	}()

	return nil
}

func (i *Ingestor) Stop() {
	if i.mqttClient != nil && i.mqttClient.IsConnected() {
		i.mqttClient.Disconnect(500)
	}
	close(i.msgCh)
	i.wg.Wait()
}

func (i *Ingestor) IsConnected() bool {
	return i.mqttClient != nil && i.mqttClient.IsConnected()
}

func (i *Ingestor) onMessage(_ mqtt.Client, m mqtt.Message) {
	i.logger.Logger.Debug().Str("topic", m.Topic()).Str("payload", string(m.Payload())).Msg("Received MQTT message")

	var payload map[string]interface{}
	if err := json.Unmarshal(m.Payload(), &payload); err != nil {
		payload = map[string]interface{}{"raw": string(m.Payload())}
	}

	// Parse topic to extract admin_id and node_id
	// Expected format: mesh/<admin_id>/<node_id>[/relay]
	parts := strings.Split(m.Topic(), "/")
	if len(parts) < 3 {
		i.logger.Logger.Warn().Str("topic", m.Topic()).Str("expected", "mesh/<admin_id>/<node_id>").Msg("Invalid topic format")
		adminID := "unknown"
		if len(parts) >= 2 {
			adminID = parts[1]
		}
		i.publishError(adminID, "unknown", "invalid_topic", fmt.Sprintf("Invalid topic format: %s, expected: mesh/<admin_id>/<node_id>", m.Topic()))
		return
	}

	adminID := parts[1]
	nodeID := parts[2]
	relay := len(parts) >= 4 && parts[3] == "relay"

	// The topic is authoritative for identity; payload fields are filled in
	// only when the device omitted them.
	if _, ok := payload["nodeId"]; !ok {
		payload["nodeId"] = nodeID
	}
	if _, ok := payload["adminId"]; !ok {
		payload["adminId"] = adminID
	}

	s := sample{
		AdminID:    adminID,
		NodeID:     nodeID,
		Topic:      m.Topic(),
		Payload:    payload,
		ReceivedAt: time.Now().UTC(),
		Relay:      relay,
	}

	i.logger.Logger.Debug().Str("admin_id", adminID).Str("node_id", nodeID).Bool("relay", relay).Msg("Queuing sample")
	i.msgCh <- s
}

func (i *Ingestor) batchWriter(ctx context.Context) {
	batch := make([]sample, 0, i.cfg.BatchSize)
	timer := time.NewTimer(i.cfg.BatchWindow)
	defer timer.Stop()

	flush := func() {
		if len(batch) == 0 {
			return
		}
		i.logger.Logger.Info().Int("batch_size", len(batch)).Msg("Flushing batch to API Service")

		// Relay samples go one at a time; durable samples are grouped per
		// admin so the API records them under the right account.
		durable := make(map[string][]map[string]interface{})
		for _, s := range batch {
			if s.Relay {
				if err := i.apiClient.SubmitRelaySample(ctx, s.Payload); err != nil {
					i.logger.Logger.Error().Err(err).Str("node_id", s.NodeID).Msg("Error forwarding relay sample")
					i.publishError(s.AdminID, s.NodeID, "relay_forward_error", fmt.Sprintf("Failed to forward relay sample: %v", err))
				}
				continue
			}
			durable[s.AdminID] = append(durable[s.AdminID], s.Payload)
		}

		for adminID, samples := range durable {
			resp, err := i.apiClient.SubmitBatch(ctx, adminID, samples)
			if err != nil {
				i.logger.Logger.Error().Err(err).Str("admin_id", adminID).Int("count", len(samples)).Msg("Error submitting batch via API")
				i.publishError(adminID, "batch", "submit_batch_error", fmt.Sprintf("Failed to submit batch of %d samples: %v", len(samples), err))
				continue
			}
			if resp.FailedCount > 0 {
				i.logger.Logger.Warn().Str("admin_id", adminID).Int("accepted", resp.AcceptedCount).Int("failed", resp.FailedCount).Msg("Batch partially accepted")
			}
		}

		i.logger.Logger.Info().Int("count", len(batch)).Msg("Successfully processed samples")
		batch = batch[:0]
	}

	for {
		select {
		case <-ctx.Done():
			flush()
			return
		case s, ok := <-i.msgCh:
			if !ok {
				flush()
				return
			}
			batch = append(batch, s)
			if len(batch) >= i.cfg.BatchSize {
				flush()
				if !timer.Stop() {
					<-timer.C
				}
				timer.Reset(i.cfg.BatchWindow)
			}
		case <-timer.C:
			flush()
			timer.Reset(i.cfg.BatchWindow)
		}
	}
}

func (i *Ingestor) tlsConfig(caFile string) (*tls.Config, error) {
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

// publishError publishes an error message to the error topic for device feedback
func (i *Ingestor) publishError(adminID, nodeID, errorType, message string) {
	if i.mqttClient == nil || !i.mqttClient.IsConnected() {
		return
	}

	errorPayload := map[string]interface{}{
		"error_type": errorType,
		"message":    message,
		"admin_id":   adminID,
		"node_id":    nodeID,
		"timestamp":  time.Now().UTC(),
	}

	payloadJSON, err := json.Marshal(errorPayload)
	if err != nil {
		i.logger.Logger.Error().Err(err).Msg("Failed to marshal error payload")
		return
	}

	errorTopic := fmt.Sprintf("relay/errors/%s/%s", adminID, nodeID)
	token := i.mqttClient.Publish(errorTopic, 1, false, payloadJSON)

	if token.Wait() && token.Error() != nil {
		i.logger.Logger.Error().Err(token.Error()).Str("topic", errorTopic).Msg("Failed to publish error")
	}
}
