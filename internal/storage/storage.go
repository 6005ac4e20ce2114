package storage

import (
	"fmt"
	"log"

	"ats-agent-go/internal/config"
)

// Storage 聚合所有存储组件，统一初始化与关闭
type Storage struct {
	Postgres *Postgres
	MinIO    *MinIO
	Redis    *Redis
	RabbitMQ *RabbitMQ
}

// NewStorage 创建所有存储组件
// Postgres是硬依赖，失败即返回错误；其余组件失败时降级为nil并记录日志，
// 相关功能（文件上传、MD5去重、事件发布）在运行期自行判空
func NewStorage(cfg *config.Config) (*Storage, error) {
	s := &Storage{}

	pg, err := NewPostgres(&cfg.Postgres)
	if err != nil {
		return nil, fmt.Errorf("初始化Postgres失败: %w", err)
	}
	s.Postgres = pg

	minioClient, err := NewMinIO(&cfg.MinIO)
	if err != nil {
		log.Printf("初始化MinIO失败，文件存储功能不可用: %v", err)
	} else {
		s.MinIO = minioClient
	}

	redisClient, err := NewRedis(&cfg.Redis)
	if err != nil {
		log.Printf("初始化Redis失败，CV去重功能不可用: %v", err)
	} else {
		s.Redis = redisClient
	}

	rabbitMQ, err := NewRabbitMQ(&cfg.RabbitMQ)
	if err != nil {
		log.Printf("初始化RabbitMQ失败，事件发布功能不可用: %v", err)
	} else {
		s.RabbitMQ = rabbitMQ
	}

	return s, nil
}

// Close 关闭所有存储连接
func (s *Storage) Close() {
	if s.Postgres != nil {
		if err := s.Postgres.Close(); err != nil {
			log.Printf("关闭Postgres连接失败: %v", err)
		}
	}
	if s.Redis != nil {
		if err := s.Redis.Close(); err != nil {
			log.Printf("关闭Redis连接失败: %v", err)
		}
	}
	if s.RabbitMQ != nil {
		if err := s.RabbitMQ.Close(); err != nil {
			log.Printf("关闭RabbitMQ连接失败: %v", err)
		}
	}
}
