package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cloudwego/hertz/pkg/app/server"
	"github.com/cloudwego/hertz/pkg/common/hlog"
	hertzzerolog "github.com/hertz-contrib/logger/zerolog"
	"github.com/spf13/pflag"

	"ats-agent-go/internal/api/handler"
	"ats-agent-go/internal/api/router"
	"ats-agent-go/internal/config"
	"ats-agent-go/internal/extractor"
	"ats-agent-go/internal/llm"
	"ats-agent-go/internal/logger"
	"ats-agent-go/internal/outbox"
	"ats-agent-go/internal/pipeline"
	"ats-agent-go/internal/prompt"
	"ats-agent-go/internal/storage"
)

func main() {
	configPath := pflag.StringP("config", "c", "", "配置文件路径")
	pflag.Parse()

	// 1. 加载配置并初始化日志系统
	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "加载配置文件失败: %v\n", err)
		os.Exit(1)
	}
	initLogger(cfg)

	// 2. 初始化存储组件
	storageManager, err := storage.NewStorage(cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("初始化存储组件失败")
	}
	defer storageManager.Close()

	// 3. 组装评估流水线
	processHandler, candidateHandler, evaluationHandler, err := initializeHandlers(cfg, storageManager)
	if err != nil {
		logger.Fatal().Err(err).Msg("初始化业务处理器失败")
	}
	logger.Info().Msg("评估流水线初始化成功")

	// 4. 启动outbox消息中继
	var relay *outbox.MessageRelay
	if storageManager.RabbitMQ != nil {
		relay = outbox.NewMessageRelay(storageManager.Postgres.DB(), storageManager.RabbitMQ, &cfg.RabbitMQ)
		relay.Start()
		defer relay.Stop()
	} else {
		logger.Warn().Msg("RabbitMQ不可用，决定事件将在outbox中等待")
	}

	// 5. 创建HTTP服务器
	hlog.SetLogger(hertzzerolog.New())
	h := server.Default(
		server.WithHostPorts(cfg.Server.Address),
	)
	router.RegisterRoutes(h, processHandler, candidateHandler, evaluationHandler)

	go func() {
		if err := h.Run(); err != nil {
			logger.Fatal().Err(err).Msg("启动HTTP服务器失败")
		}
	}()

	// 6. 等待终止信号后优雅退出
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info().Msg("接收到终止信号，正在优雅退出...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := h.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("服务器关闭失败")
	}
	logger.Info().Msg("优雅退出完成")
}

// initLogger 初始化日志系统
func initLogger(cfg *config.Config) {
	logConfig := logger.Config{
		Level:        cfg.Logger.Level,
		Format:       cfg.Logger.Format,
		TimeFormat:   cfg.Logger.TimeFormat,
		ReportCaller: cfg.Logger.ReportCaller,
	}
	logger.Init(logConfig)

	logger.Logger = logger.Logger.With().
		Str("app", "ats-agent-go").
		Logger()
}

// initializeHandlers 组装流水线与请求处理器
func initializeHandlers(cfg *config.Config, storageManager *storage.Storage) (*handler.ProcessHandler, *handler.CandidateHandler, *handler.EvaluationHandler, error) {
	if storageManager.Postgres == nil {
		return nil, nil, nil, fmt.Errorf("Postgres实例未初始化")
	}
	if storageManager.MinIO == nil {
		return nil, nil, nil, fmt.Errorf("MinIO实例未初始化")
	}

	gateway, err := llm.NewGateway(&cfg.LLM)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("初始化LLM网关失败: %w", err)
	}

	cvExtractor, err := extractor.New(context.Background(),
		extractor.WithMinChars(cfg.Evaluation.MinCVChars),
	)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("初始化CV提取器失败: %w", err)
	}

	builder := prompt.NewBuilder(prompt.PolicyFromConfig(cfg.Evaluation))

	questionStage := pipeline.NewQuestionStage(
		storageManager.Postgres,
		gateway,
		builder,
		cvExtractor,
		storageManager.MinIO,
		cfg.QuestionStage,
	)
	scoringStage := pipeline.NewScoringStage(
		storageManager.Postgres,
		gateway,
		builder,
		cfg.ScoringStage,
		cfg.RabbitMQ,
	)

	processHandler := handler.NewProcessHandler(storageManager)
	candidateHandler := handler.NewCandidateHandler(storageManager)
	evaluationHandler := handler.NewEvaluationHandler(questionStage, scoringStage, handler.PermissiveOwnershipChecker{})

	return processHandler, candidateHandler, evaluationHandler, nil
}
