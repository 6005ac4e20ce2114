package models

import (
	"time"

	"gorm.io/datatypes"
)

// Outbox消息状态
const (
	OutboxStatusPending = "PENDING"
	OutboxStatusSent    = "SENT"
	OutboxStatusFailed  = "FAILED"
)

// OutboxMessage 事务性发件箱表，终态评分决定与流程关闭事件经由此表异步发布
type OutboxMessage struct {
	ID               uint64         `gorm:"primaryKey;autoIncrement"`
	AggregateID      string         `gorm:"type:char(36);not null;index:idx_outbox_aggregate_id"` // 候选人或流程ID
	EventType        string         `gorm:"type:varchar(100);not null"`
	Payload          datatypes.JSON `gorm:"type:jsonb;not null"`
	TargetExchange   string         `gorm:"type:varchar(255);not null"`
	TargetRoutingKey string         `gorm:"type:varchar(255);not null"`
	Status           string         `gorm:"type:varchar(20);default:'PENDING';index:idx_outbox_status"`
	RetryCount       int            `gorm:"default:0"`
	LastError        *string        `gorm:"type:text"`
	CreatedAt        time.Time      `gorm:"autoCreateTime;index:idx_outbox_created_at"`
	ProcessedAt      *time.Time
}

func (OutboxMessage) TableName() string {
	return "outbox_messages"
}
