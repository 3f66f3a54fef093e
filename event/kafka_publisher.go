package event

import "context"

// KafkaPublisher 将事件投递到 Kafka 的抽象
// dispatcher 不直接依赖 sarama，方便测试时用内存实现替换
type KafkaPublisher interface {
	// PublishJSON 将 payload 序列化为 JSON 后发布到指定 topic
	PublishJSON(ctx context.Context, topic string, key string, payload any) error

	// Close 关闭底层生产者
	Close() error
}
