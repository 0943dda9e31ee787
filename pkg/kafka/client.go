// Package kafka 提供了与 Kafka 消息队列交互的功能。
package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/segmentio/kafka-go"

	"pdf-rag-go/internal/config"
	"pdf-rag-go/pkg/log"
	"pdf-rag-go/pkg/tasks"
)

// MaxAttempts 是同一任务失败后放弃（提交 offset）之前的最大尝试次数。
const MaxAttempts = 3

// TaskProcessor 是能处理入库任务的服务，用于把消费者与具体的入库实现解耦。
type TaskProcessor interface {
	Process(ctx context.Context, task tasks.IngestionTask) error
}

var producer *kafka.Writer

func brokers(cfg config.KafkaConfig) []string {
	var out []string
	for _, b := range strings.Split(cfg.Brokers, ",") {
		if b = strings.TrimSpace(b); b != "" {
			out = append(out, b)
		}
	}
	return out
}

// InitProducer 初始化 Kafka 生产者。
func InitProducer(cfg config.KafkaConfig) {
	producer = &kafka.Writer{
		Addr:     kafka.TCP(brokers(cfg)...),
		Topic:    cfg.Topic,
		Balancer: &kafka.Hash{},
	}
	log.Info("Kafka 生产者初始化成功")
}

// CloseProducer 关闭生产者。
func CloseProducer() error {
	if producer == nil {
		return nil
	}
	return producer.Close()
}

// ProduceIngestionTask 发送一个入库任务，以内容指纹作为消息键，同一文档的任务落在同一分区。
func ProduceIngestionTask(ctx context.Context, task tasks.IngestionTask) error {
	if producer == nil {
		return errors.New("Kafka 生产者未初始化")
	}
	taskBytes, err := json.Marshal(task)
	if err != nil {
		return err
	}
	return producer.WriteMessages(ctx, kafka.Message{Key: []byte(task.DocHash), Value: taskBytes})
}

// Consumer 消费入库任务。失败次数记录在 Redis 中，达到 MaxAttempts 后提交 offset 放弃该任务。
// Redis 不可用时退回到进程内计数，重试次数依然有上限。
type Consumer struct {
	processor TaskProcessor
	rdb       *redis.Client
	backoff   time.Duration

	mu    sync.Mutex
	local map[string]int
}

// NewConsumer 创建消费者。
func NewConsumer(processor TaskProcessor, rdb *redis.Client) *Consumer {
	return &Consumer{processor: processor, rdb: rdb, backoff: 2 * time.Second, local: make(map[string]int)}
}

// recordFailure 累加失败次数并返回当前值。
func (c *Consumer) recordFailure(ctx context.Context, hash string) int64 {
	attempts, err := c.rdb.Incr(ctx, attemptsKey(hash)).Result()
	if err == nil {
		_ = c.rdb.Expire(ctx, attemptsKey(hash), 24*time.Hour).Err()
		return attempts
	}
	log.Warnf("[Consumer] 记录失败次数失败, 使用本地计数: %v", err)
	c.mu.Lock()
	defer c.mu.Unlock()
	c.local[hash]++
	return int64(c.local[hash])
}

func (c *Consumer) resetFailures(ctx context.Context, hash string) {
	c.mu.Lock()
	delete(c.local, hash)
	c.mu.Unlock()
	_ = c.rdb.Del(ctx, attemptsKey(hash)).Err()
}

func attemptsKey(hash string) string {
	return fmt.Sprintf("kafka:attempts:%s", hash)
}

// Handle 处理一条消息，返回是否应该提交 offset。
// 处理失败且未达到重试上限时返回 false，调用方应在退避后重新处理同一条消息。
func (c *Consumer) Handle(ctx context.Context, value []byte) bool {
	var task tasks.IngestionTask
	if err := json.Unmarshal(value, &task); err != nil {
		log.Errorf("[Consumer] 无法解析 Kafka 消息: %v, value: %s", err, string(value))
		// 消息格式错误，直接提交，避免阻塞队列
		return true
	}

	log.Infof("[Consumer] 开始处理入库任务: hash=%s, file=%s", task.DocHash, task.FileName)
	err := c.processor.Process(ctx, task)
	if err == nil {
		log.Infof("[Consumer] 入库任务处理成功: hash=%s", task.DocHash)
		c.resetFailures(ctx, task.DocHash)
		return true
	}

	log.Errorf("[Consumer] 处理入库任务失败: hash=%s, error: %v", task.DocHash, err)
	if attempts := c.recordFailure(ctx, task.DocHash); attempts >= MaxAttempts {
		log.Errorf("[Consumer] 入库任务多次失败(>=%d)，提交 offset 终止重试: hash=%s", MaxAttempts, task.DocHash)
		c.mu.Lock()
		delete(c.local, task.DocHash)
		c.mu.Unlock()
		return true
	}
	return false
}

// Run 阻塞消费直到 ctx 结束。
func (c *Consumer) Run(ctx context.Context, cfg config.KafkaConfig) error {
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers(cfg),
		Topic:    cfg.Topic,
		GroupID:  cfg.GroupID,
		MinBytes: 1,
		MaxBytes: 10e6, // 10MB
	})
	defer func() {
		if err := r.Close(); err != nil {
			log.Errorf("[Consumer] 关闭 Kafka 消费者失败: %v", err)
		}
	}()

	log.Infof("Kafka 消费者已启动，正在监听主题 '%s'", cfg.Topic)
	for {
		m, err := r.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("从 Kafka 读取消息失败: %w", err)
		}
		log.Infof("[Consumer] 收到 Kafka 消息: partition %d, offset %d", m.Partition, m.Offset)

		for !c.Handle(ctx, m.Value) {
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(c.backoff):
			}
		}
		if err := r.CommitMessages(ctx, m); err != nil {
			log.Errorf("[Consumer] 提交 Kafka 消息 offset 失败: %v", err)
		}
	}
}
