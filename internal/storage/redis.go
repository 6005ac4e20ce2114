package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"ats-agent-go/internal/config"
	"ats-agent-go/internal/constants"
)

// Redis 提供缓存功能，目前仅用于CV文件MD5去重
type Redis struct {
	client *redis.Client
	cfg    *config.RedisConfig
}

// NewRedis 创建Redis客户端
func NewRedis(cfg *config.RedisConfig) (*Redis, error) {
	if cfg == nil {
		return nil, fmt.Errorf("Redis配置不能为空")
	}

	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Address,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("连接Redis失败: %w", err)
	}

	return &Redis{
		client: client,
		cfg:    cfg,
	}, nil
}

// md5Key 构造单个MD5记录的键，便于按条设置过期时间
func md5Key(md5Hex string) string {
	return fmt.Sprintf("%s:%s", constants.CVFileMD5SetKey, md5Hex)
}

// CheckCVFileMD5Exists 检查CV文件MD5是否已记录，用于重复上传检测
func (r *Redis) CheckCVFileMD5Exists(ctx context.Context, md5Hex string) (bool, error) {
	n, err := r.client.Exists(ctx, md5Key(md5Hex)).Result()
	if err != nil {
		return false, fmt.Errorf("检查CV文件MD5失败: %w", err)
	}
	return n > 0, nil
}

// AddCVFileMD5 记录CV文件MD5，值为候选人ID，带过期时间
func (r *Redis) AddCVFileMD5(ctx context.Context, md5Hex string, candidateID string) error {
	expire := constants.DefaultMD5Expire()
	if r.cfg.MD5RecordExpireDays > 0 {
		expire = time.Duration(r.cfg.MD5RecordExpireDays) * 24 * time.Hour
	}
	if err := r.client.Set(ctx, md5Key(md5Hex), candidateID, expire).Err(); err != nil {
		return fmt.Errorf("记录CV文件MD5失败: %w", err)
	}
	return nil
}

// Close 关闭Redis连接
func (r *Redis) Close() error {
	return r.client.Close()
}
