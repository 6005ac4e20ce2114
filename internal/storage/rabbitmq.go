package storage

import (
	"context"
	"fmt"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"

	"ats-agent-go/internal/config"
)

// RabbitMQ 提供消息发布功能，仅用于向下游投递决定事件，不消费任何队列
type RabbitMQ struct {
	conn    *amqp.Connection
	channel *amqp.Channel
	cfg     *config.RabbitMQConfig
	mu      sync.Mutex
}

// NewRabbitMQ 创建RabbitMQ客户端并声明决定事件交换机
func NewRabbitMQ(cfg *config.RabbitMQConfig) (*RabbitMQ, error) {
	if cfg == nil || cfg.URL == "" {
		return nil, fmt.Errorf("RabbitMQ配置不能为空")
	}

	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("连接RabbitMQ失败: %w", err)
	}

	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("打开RabbitMQ通道失败: %w", err)
	}

	r := &RabbitMQ{
		conn:    conn,
		channel: channel,
		cfg:     cfg,
	}

	if err := r.EnsureExchange(cfg.DecisionExchange); err != nil {
		r.Close()
		return nil, err
	}

	return r, nil
}

// EnsureExchange 声明topic类型的持久化交换机
func (r *RabbitMQ) EnsureExchange(exchange string) error {
	err := r.channel.ExchangeDeclare(
		exchange,
		"topic",
		true,  // durable
		false, // autoDelete
		false, // internal
		false, // noWait
		nil,
	)
	if err != nil {
		return fmt.Errorf("声明交换机 %s 失败: %w", exchange, err)
	}
	return nil
}

// PublishMessage 向指定交换机发布一条持久化JSON消息
func (r *RabbitMQ) PublishMessage(ctx context.Context, exchange string, routingKey string, body []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	err := r.channel.PublishWithContext(ctx,
		exchange,
		routingKey,
		false, // mandatory
		false, // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Body:         body,
		},
	)
	if err != nil {
		return fmt.Errorf("发布消息到 %s/%s 失败: %w", exchange, routingKey, err)
	}
	return nil
}

// Close 关闭RabbitMQ连接
func (r *RabbitMQ) Close() error {
	if r.channel != nil {
		r.channel.Close()
	}
	if r.conn != nil {
		return r.conn.Close()
	}
	return nil
}
