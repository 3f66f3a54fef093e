package event

import (
	"context"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/json"
	"fmt"
	"hash"
	"sync"
	"time"

	"github.com/IBM/sarama"
	"github.com/xdg-go/scram"
	"go.uber.org/zap"
)

// SHA256 SCRAM-SHA-256 哈希函数
var SHA256 scram.HashGeneratorFcn = func() hash.Hash { return sha256.New() }

// SHA512 SCRAM-SHA-512 哈希函数
var SHA512 scram.HashGeneratorFcn = func() hash.Hash { return sha512.New() }

// XDGSCRAMClient SCRAM 客户端实现
type XDGSCRAMClient struct {
	*scram.Client
	*scram.ClientConversation
	HashGeneratorFcn scram.HashGeneratorFcn
}

// Begin 开始 SCRAM 认证
func (x *XDGSCRAMClient) Begin(userName, password, authzID string) (err error) {
	x.Client, err = x.HashGeneratorFcn.NewClient(userName, password, authzID)
	if err != nil {
		return err
	}
	x.ClientConversation = x.Client.NewConversation()
	return nil
}

// Step 执行认证步骤
func (x *XDGSCRAMClient) Step(challenge string) (response string, err error) {
	return x.ClientConversation.Step(challenge)
}

// Done 检查认证是否完成
func (x *XDGSCRAMClient) Done() bool {
	return x.ClientConversation.Done()
}

// KafkaConfig Kafka 事件发布配置
type KafkaConfig struct {
	// Brokers Kafka 集群地址列表
	Brokers []string `mapstructure:"brokers"`

	// ClientID 客户端标识
	ClientID string `mapstructure:"client_id"`

	// Version Kafka 协议版本，如 "3.6.0"
	Version string `mapstructure:"version"`

	// RequiredAcks 确认级别: 0=NoResponse, 1=WaitForLocal, -1=WaitForAll
	RequiredAcks int `mapstructure:"required_acks"`

	// Timeout 发送超时
	Timeout time.Duration `mapstructure:"timeout"`

	// RetryMax 最大重试次数
	RetryMax int `mapstructure:"retry_max"`

	// SASL 认证配置（可选）
	SASL *SASLConfig `mapstructure:"sasl"`
}

// SASLConfig SASL 认证配置
type SASLConfig struct {
	Enabled bool `mapstructure:"enabled"`

	// Mechanism 认证机制: PLAIN, SCRAM-SHA-256, SCRAM-SHA-512
	Mechanism string `mapstructure:"mechanism"`

	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
}

// ApplyDefaults 填充默认值
func (c *KafkaConfig) ApplyDefaults() {
	if c.ClientID == "" {
		c.ClientID = "fabric-event"
	}
	if c.Version == "" {
		c.Version = "3.6.0"
	}
	if c.RequiredAcks == 0 {
		c.RequiredAcks = 1
	}
	if c.Timeout <= 0 {
		c.Timeout = 10 * time.Second
	}
	if c.RetryMax <= 0 {
		c.RetryMax = 3
	}
}

// saramaPublisher 基于 sarama 同步生产者的 KafkaPublisher 实现
type saramaPublisher struct {
	producer sarama.SyncProducer
	logger   *zap.Logger

	mu     sync.RWMutex
	closed bool
}

// NewSaramaPublisher 创建 Kafka 事件发布器
func NewSaramaPublisher(cfg KafkaConfig, logger *zap.Logger) (KafkaPublisher, error) {
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("kafka brokers cannot be empty")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg.ApplyDefaults()

	saramaCfg, err := buildSaramaConfig(cfg)
	if err != nil {
		return nil, err
	}

	producer, err := sarama.NewSyncProducer(cfg.Brokers, saramaCfg)
	if err != nil {
		return nil, fmt.Errorf("create sync producer failed: %w", err)
	}

	logger.Debug("📨 Kafka 事件发布器已创建",
		zap.Strings("brokers", cfg.Brokers),
		zap.String("client_id", cfg.ClientID))

	return &saramaPublisher{producer: producer, logger: logger}, nil
}

// buildSaramaConfig 构建 sarama 配置
func buildSaramaConfig(cfg KafkaConfig) (*sarama.Config, error) {
	saramaCfg := sarama.NewConfig()

	version, err := sarama.ParseKafkaVersion(cfg.Version)
	if err != nil {
		return nil, fmt.Errorf("parse kafka version failed: %w", err)
	}
	saramaCfg.Version = version
	saramaCfg.ClientID = cfg.ClientID

	saramaCfg.Producer.Return.Successes = true
	saramaCfg.Producer.Return.Errors = true
	saramaCfg.Producer.Timeout = cfg.Timeout
	saramaCfg.Producer.Retry.Max = cfg.RetryMax

	switch cfg.RequiredAcks {
	case 0:
		saramaCfg.Producer.RequiredAcks = sarama.NoResponse
	case -1:
		saramaCfg.Producer.RequiredAcks = sarama.WaitForAll
	default:
		saramaCfg.Producer.RequiredAcks = sarama.WaitForLocal
	}

	// SASL 认证
	if cfg.SASL != nil && cfg.SASL.Enabled {
		saramaCfg.Net.SASL.Enable = true
		saramaCfg.Net.SASL.User = cfg.SASL.Username
		saramaCfg.Net.SASL.Password = cfg.SASL.Password

		switch cfg.SASL.Mechanism {
		case "SCRAM-SHA-256":
			saramaCfg.Net.SASL.Mechanism = sarama.SASLTypeSCRAMSHA256
			saramaCfg.Net.SASL.SCRAMClientGeneratorFunc = func() sarama.SCRAMClient {
				return &XDGSCRAMClient{HashGeneratorFcn: SHA256}
			}
		case "SCRAM-SHA-512":
			saramaCfg.Net.SASL.Mechanism = sarama.SASLTypeSCRAMSHA512
			saramaCfg.Net.SASL.SCRAMClientGeneratorFunc = func() sarama.SCRAMClient {
				return &XDGSCRAMClient{HashGeneratorFcn: SHA512}
			}
		case "PLAIN", "":
			saramaCfg.Net.SASL.Mechanism = sarama.SASLTypePlaintext
		default:
			return nil, fmt.Errorf("unsupported SASL mechanism: %s", cfg.SASL.Mechanism)
		}
	}

	return saramaCfg, nil
}

// PublishJSON 将 payload 序列化后同步发送
func (p *saramaPublisher) PublishJSON(ctx context.Context, topic string, key string, payload any) error {
	p.mu.RLock()
	if p.closed {
		p.mu.RUnlock()
		return ErrKafkaNotAvailable
	}
	p.mu.RUnlock()

	if topic == "" {
		return ErrKafkaTopicRequired
	}

	value, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal event payload failed: %w", err)
	}

	msg := &sarama.ProducerMessage{
		Topic: topic,
		Value: sarama.ByteEncoder(value),
	}
	if key != "" {
		msg.Key = sarama.StringEncoder(key)
	}

	partition, offset, err := p.producer.SendMessage(msg)
	if err != nil {
		p.logger.Error("发布事件到 Kafka 失败",
			zap.String("topic", topic),
			zap.Error(err))
		return fmt.Errorf("send message to kafka failed: %w", err)
	}

	p.logger.Debug("✅ 事件已发布到 Kafka",
		zap.String("topic", topic),
		zap.Int32("partition", partition),
		zap.Int64("offset", offset))
	return nil
}

// Close 关闭生产者
func (p *saramaPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	return p.producer.Close()
}
