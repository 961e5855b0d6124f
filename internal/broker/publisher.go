package broker

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"

	"github.com/alexxcrz/IXORA-sub001/internal/config"
	"github.com/alexxcrz/IXORA-sub001/internal/model"
)

const (
	// TopicInventoryUpdated 导入完成后通知其他客户端刷新库存
	TopicInventoryUpdated = "inventario/actualizado"
	// TopicImportProgress 导入进度快照
	TopicImportProgress = "inventario/importacion/progreso"

	publishTimeout = 5 * time.Second
)

// Message 发布到 broker 的消息
type Message struct {
	Event     string      `json:"event"`
	RunID     string      `json:"runId"`
	Data      interface{} `json:"data"`
	Timestamp time.Time   `json:"timestamp"`
}

// Publisher MQTT 发布者
type Publisher struct {
	client mqtt.Client
	prefix string
	logger *zap.Logger
}

// NewPublisher 连接 broker 并创建发布者
func NewPublisher(cfg config.BrokerConfig, logger *zap.Logger) (*Publisher, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("broker")

	opts := mqtt.NewClientOptions().
		AddBroker(cfg.URL).
		SetClientID(cfg.ClientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5 * time.Second).
		SetOnConnectHandler(func(c mqtt.Client) {
			logger.Info("connected to message broker", zap.String("url", cfg.URL))
		}).
		SetConnectionLostHandler(func(c mqtt.Client, err error) {
			logger.Warn("connection lost", zap.Error(err))
		})

	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}

	client := mqtt.NewClient(opts)

	token := client.Connect()
	if !token.WaitTimeout(10 * time.Second) {
		client.Disconnect(0)
		return nil, fmt.Errorf("broker connection timeout")
	}
	if token.Error() != nil {
		return nil, fmt.Errorf("failed to connect to broker: %w", token.Error())
	}

	return newPublisher(client, cfg.TopicPrefix, logger), nil
}

func newPublisher(client mqtt.Client, prefix string, logger *zap.Logger) *Publisher {
	return &Publisher{client: client, prefix: prefix, logger: logger}
}

// BuildTopic 拼接主题，忽略空段
func BuildTopic(parts ...string) string {
	segs := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.Trim(p, "/")
		if p != "" {
			segs = append(segs, p)
		}
	}
	return strings.Join(segs, "/")
}

// InventoryUpdated 导入完成通知
func (p *Publisher) InventoryUpdated(run *model.ImportRun) error {
	return p.publish(TopicInventoryUpdated, 1, Message{
		Event: "inventario_actualizado",
		RunID: run.ID,
		Data: map[string]interface{}{
			"mode":      run.Mode,
			"state":     run.State,
			"total":     run.Total,
			"succeeded": run.Succeeded,
			"failed":    run.Failed,
			"created":   run.Created,
			"updated":   run.Updated,
		},
		Timestamp: time.Now(),
	})
}

// Progress 进度快照（QoS 0，尽力而为）
func (p *Publisher) Progress(runID string, snap model.ProgressSnapshot) error {
	return p.publish(TopicImportProgress, 0, Message{
		Event:     "importacion_progreso",
		RunID:     runID,
		Data:      snap,
		Timestamp: time.Now(),
	})
}

func (p *Publisher) publish(topic string, qos byte, msg Message) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	full := BuildTopic(p.prefix, topic)
	token := p.client.Publish(full, qos, false, payload)
	if !token.WaitTimeout(publishTimeout) {
		return fmt.Errorf("publish timeout")
	}
	if token.Error() != nil {
		return fmt.Errorf("failed to publish: %w", token.Error())
	}

	p.logger.Debug("published", zap.String("topic", full))
	return nil
}

// Close 断开连接
func (p *Publisher) Close() {
	p.client.Disconnect(1000)
	p.logger.Info("disconnected from message broker")
}
