package storage

import (
	"context"
	"fmt"
	"log"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"ats-agent-go/internal/config"
	"ats-agent-go/internal/constants"
	"ats-agent-go/internal/storage/models"
)

var pgTracer = otel.Tracer("ats-agent-go/storage/postgres")

// ErrNotFound 记录不存在时返回，封装底层gorm错误以便调用方判断
var ErrNotFound = gorm.ErrRecordNotFound

// GormTracingPlugin 是一个GORM插件，用于向OpenTelemetry中添加数据库操作的追踪点
type GormTracingPlugin struct {
	tracer trace.Tracer
	dbName string
}

// Name 返回插件名称
func (p *GormTracingPlugin) Name() string {
	return "GormOpenTelemetryPlugin"
}

// Initialize 注册GORM回调以启用追踪
func (p *GormTracingPlugin) Initialize(db *gorm.DB) error {
	cb := db.Callback()

	if err := cb.Create().Before("gorm:create").Register("otel:before_create", p.before("CREATE")); err != nil {
		return err
	}
	if err := cb.Create().After("gorm:create").Register("otel:after_create", p.after()); err != nil {
		return err
	}
	if err := cb.Query().Before("gorm:query").Register("otel:before_query", p.before("SELECT")); err != nil {
		return err
	}
	if err := cb.Query().After("gorm:query").Register("otel:after_query", p.after()); err != nil {
		return err
	}
	if err := cb.Update().Before("gorm:update").Register("otel:before_update", p.before("UPDATE")); err != nil {
		return err
	}
	if err := cb.Update().After("gorm:update").Register("otel:after_update", p.after()); err != nil {
		return err
	}
	if err := cb.Delete().Before("gorm:delete").Register("otel:before_delete", p.before("DELETE")); err != nil {
		return err
	}
	if err := cb.Delete().After("gorm:delete").Register("otel:after_delete", p.after()); err != nil {
		return err
	}
	if err := cb.Row().Before("gorm:row").Register("otel:before_row", p.before("ROW")); err != nil {
		return err
	}
	if err := cb.Row().After("gorm:row").Register("otel:after_row", p.after()); err != nil {
		return err
	}

	return nil
}

type otelSpanKey struct{}

// before 返回在GORM操作之前执行的回调函数
func (p *GormTracingPlugin) before(operation string) func(db *gorm.DB) {
	return func(db *gorm.DB) {
		ctx := db.Statement.Context
		if ctx == nil {
			ctx = context.Background()
		}

		tableName := db.Statement.Table
		if tableName == "" {
			tableName = "unknown"
		}

		spanName := fmt.Sprintf("%s %s", operation, tableName)
		opts := []trace.SpanStartOption{
			trace.WithSpanKind(trace.SpanKindClient),
			trace.WithAttributes(
				semconv.DBSystemPostgreSQL,
				attribute.String("db.name", p.dbName),
				attribute.String("db.operation", operation),
				attribute.String("db.sql.table", tableName),
			),
		}

		newCtx, span := p.tracer.Start(ctx, spanName, opts...)
		db.Statement.Context = context.WithValue(newCtx, otelSpanKey{}, span)
	}
}

// after 返回在GORM操作之后执行的回调函数
func (p *GormTracingPlugin) after() func(db *gorm.DB) {
	return func(db *gorm.DB) {
		span, ok := db.Statement.Context.Value(otelSpanKey{}).(trace.Span)
		if !ok {
			return
		}
		defer span.End()

		span.SetAttributes(attribute.Int64("db.rows_affected", db.Statement.RowsAffected))

		if db.Error != nil {
			if db.Error == gorm.ErrRecordNotFound {
				// 记录不存在属于正常业务分支，不作为错误上报
				span.SetAttributes(attribute.String("error.type", "record_not_found"))
				span.SetStatus(codes.Ok, "record not found")
			} else {
				span.SetAttributes(attribute.String("error.type", "database_error"))
				span.RecordError(db.Error)
				span.SetStatus(codes.Error, db.Error.Error())
			}
		} else {
			span.SetStatus(codes.Ok, "")
		}
	}
}

// NewGormTracingPlugin 创建一个新的GORM追踪插件
func NewGormTracingPlugin(dbName string) *GormTracingPlugin {
	return &GormTracingPlugin{
		tracer: pgTracer,
		dbName: dbName,
	}
}

// Postgres 提供关系数据库功能
type Postgres struct {
	db  *gorm.DB
	cfg *config.PostgresConfig
}

// NewPostgres 创建Postgres客户端
func NewPostgres(cfg *config.PostgresConfig) (*Postgres, error) {
	if cfg == nil {
		return nil, fmt.Errorf("Postgres配置不能为空")
	}

	sslMode := cfg.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	dsn := fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%d sslmode=%s",
		cfg.Host, cfg.Username, cfg.Password, cfg.Database, cfg.Port, sslMode)

	// 配置GORM日志级别
	var logLevel logger.LogLevel
	switch cfg.LogLevel {
	case 1:
		logLevel = logger.Silent
	case 2:
		logLevel = logger.Error
	case 3:
		logLevel = logger.Warn
	case 4:
		logLevel = logger.Info
	default:
		logLevel = logger.Warn
	}

	gormConfig := &gorm.Config{
		Logger:      logger.Default.LogMode(logLevel),
		PrepareStmt: true, // 开启预编译语句缓存
		NowFunc: func() time.Time {
			return time.Now().Local()
		},
	}

	db, err := gorm.Open(postgres.Open(dsn), gormConfig)
	if err != nil {
		return nil, fmt.Errorf("连接Postgres失败: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("获取底层 sql.DB 失败: %w", err)
	}

	// 设置连接池参数
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetConnMaxLifetime(time.Duration(cfg.ConnMaxLifetimeMinutes) * time.Minute)
	sqlDB.SetConnMaxIdleTime(time.Duration(cfg.ConnMaxIdleTimeMinutes) * time.Minute)

	p := &Postgres{
		db:  db,
		cfg: cfg,
	}

	// 注册OpenTelemetry追踪插件
	if err := db.Use(NewGormTracingPlugin(cfg.Database)); err != nil {
		return nil, fmt.Errorf("注册追踪插件失败: %w", err)
	}

	if err := p.autoMigrateSchema(); err != nil {
		if sqlDB, _ := db.DB(); sqlDB != nil {
			sqlDB.Close()
		}
		return nil, fmt.Errorf("自动迁移数据库结构失败: %w", err)
	}

	log.Println("成功连接到Postgres并自动迁移数据库结构")
	return p, nil
}

// autoMigrateSchema 使用GORM自动迁移数据库表结构
func (p *Postgres) autoMigrateSchema() error {
	return p.db.AutoMigrate(
		&models.Process{},
		&models.Candidate{},
		&models.Question{},
		&models.OutboxMessage{},
	)
}

// DB 返回GORM数据库连接实例
func (p *Postgres) DB() *gorm.DB {
	return p.db
}

// Close 关闭数据库连接
func (p *Postgres) Close() error {
	sqlDB, err := p.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// GetProcessByID 根据ID获取招聘流程
func (p *Postgres) GetProcessByID(ctx context.Context, processID string) (*models.Process, error) {
	var process models.Process
	if err := p.db.WithContext(ctx).Where("process_id = ?", processID).First(&process).Error; err != nil {
		return nil, err
	}
	return &process, nil
}

// CreateProcess 创建招聘流程
func (p *Postgres) CreateProcess(ctx context.Context, process *models.Process) error {
	return p.db.WithContext(ctx).Create(process).Error
}

// GetCandidateByID 根据ID获取候选人
func (p *Postgres) GetCandidateByID(ctx context.Context, candidateID string) (*models.Candidate, error) {
	var candidate models.Candidate
	if err := p.db.WithContext(ctx).Where("candidate_id = ?", candidateID).First(&candidate).Error; err != nil {
		return nil, err
	}
	return &candidate, nil
}

// CreateCandidate 创建候选人
func (p *Postgres) CreateCandidate(ctx context.Context, candidate *models.Candidate) error {
	return p.db.WithContext(ctx).Create(candidate).Error
}

// UpdateCandidateFields 更新候选人的指定字段
func (p *Postgres) UpdateCandidateFields(ctx context.Context, candidateID string, updates map[string]interface{}) error {
	result := p.db.WithContext(ctx).Model(&models.Candidate{}).
		Where("candidate_id = ?", candidateID).
		Updates(updates)
	if result.Error != nil {
		return fmt.Errorf("更新候选人 %s 字段失败: %w", candidateID, result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// CreateQuestions 批量写入AI生成的甄别问题
func (p *Postgres) CreateQuestions(ctx context.Context, questions []models.Question) error {
	if len(questions) == 0 {
		return nil
	}
	return p.db.WithContext(ctx).Create(&questions).Error
}

// ListQuestionsByCandidate 按创建顺序返回候选人的全部问题
func (p *Postgres) ListQuestionsByCandidate(ctx context.Context, candidateID string) ([]models.Question, error) {
	var questions []models.Question
	err := p.db.WithContext(ctx).
		Where("candidate_id = ?", candidateID).
		Order("created_at asc, question_id asc").
		Find(&questions).Error
	if err != nil {
		return nil, err
	}
	return questions, nil
}

// CountQuestionsByCandidate 统计候选人已有的问题数量
func (p *Postgres) CountQuestionsByCandidate(ctx context.Context, candidateID string) (int64, error) {
	var count int64
	err := p.db.WithContext(ctx).Model(&models.Question{}).
		Where("candidate_id = ?", candidateID).
		Count(&count).Error
	return count, err
}

// GetQuestionByID 根据ID获取问题
func (p *Postgres) GetQuestionByID(ctx context.Context, questionID string) (*models.Question, error) {
	var question models.Question
	if err := p.db.WithContext(ctx).Where("question_id = ?", questionID).First(&question).Error; err != nil {
		return nil, err
	}
	return &question, nil
}

// UpdateQuestionAnswer 记录外部采集到的问题答案
func (p *Postgres) UpdateQuestionAnswer(ctx context.Context, questionID string, answerText string) error {
	result := p.db.WithContext(ctx).Model(&models.Question{}).
		Where("question_id = ?", questionID).
		Updates(map[string]interface{}{
			"answer_text": answerText,
			"is_answered": true,
		})
	if result.Error != nil {
		return fmt.Errorf("更新问题 %s 答案失败: %w", questionID, result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// CountCompletedCandidates 统计流程下已完成的候选人数量
// excludeCandidateID 非空时将该候选人排除在计数之外，用于评估其自身待定转换时的名额检查
// 每次调用都是一次新鲜读取，不做缓存
func (p *Postgres) CountCompletedCandidates(ctx context.Context, processID string, excludeCandidateID string) (int64, error) {
	ctx, span := pgTracer.Start(ctx, "storage.CountCompletedCandidates",
		trace.WithAttributes(
			attribute.String("process.id", processID),
		),
	)
	defer span.End()

	query := p.db.WithContext(ctx).Model(&models.Candidate{}).
		Where("process_id = ? AND status = ?", processID, constants.CandidateStatusCompleted)
	if excludeCandidateID != "" {
		query = query.Where("candidate_id <> ?", excludeCandidateID)
	}

	var count int64
	if err := query.Count(&count).Error; err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return 0, fmt.Errorf("统计流程 %s 已完成候选人失败: %w", processID, err)
	}
	span.SetAttributes(attribute.Int64("process.completed_count", count))
	return count, nil
}

// CloseProcess 将流程状态置为closed，并在同一事务内写入流程关闭事件
func (p *Postgres) CloseProcess(ctx context.Context, processID string, event *models.OutboxMessage) error {
	return p.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&models.Process{}).
			Where("process_id = ?", processID).
			Update("status", constants.ProcessStatusClosed)
		if result.Error != nil {
			return fmt.Errorf("关闭流程 %s 失败: %w", processID, result.Error)
		}
		if result.RowsAffected == 0 {
			return ErrNotFound
		}
		if event != nil {
			if err := tx.Create(event).Error; err != nil {
				return fmt.Errorf("写入流程关闭事件失败: %w", err)
			}
		}
		return nil
	})
}

// FinalizeCandidateScoring 在单个事务内持久化候选人的终态评分结果并追加决定事件
// 候选人的 score/scoring_details/终态status 必须一次性写入，这里是唯一入口
func (p *Postgres) FinalizeCandidateScoring(ctx context.Context, candidateID string, updates map[string]interface{}, event *models.OutboxMessage) error {
	return p.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&models.Candidate{}).
			Where("candidate_id = ?", candidateID).
			Updates(updates)
		if result.Error != nil {
			return fmt.Errorf("写入候选人 %s 评分结果失败: %w", candidateID, result.Error)
		}
		if result.RowsAffected == 0 {
			return ErrNotFound
		}
		if event != nil {
			if err := tx.Create(event).Error; err != nil {
				return fmt.Errorf("写入候选人决定事件失败: %w", err)
			}
		}
		return nil
	})
}
