package pipeline

import (
	"context"
	"io"

	"ats-agent-go/internal/extractor"
	"ats-agent-go/internal/llm"
	"ats-agent-go/internal/storage/models"
)

// Store 流水线所需的持久化操作集合
type Store interface {
	GetProcessByID(ctx context.Context, processID string) (*models.Process, error)
	GetCandidateByID(ctx context.Context, candidateID string) (*models.Candidate, error)
	UpdateCandidateFields(ctx context.Context, candidateID string, updates map[string]interface{}) error
	CreateQuestions(ctx context.Context, questions []models.Question) error
	ListQuestionsByCandidate(ctx context.Context, candidateID string) ([]models.Question, error)
	CountQuestionsByCandidate(ctx context.Context, candidateID string) (int64, error)
	CountCompletedCandidates(ctx context.Context, processID string, excludeCandidateID string) (int64, error)
	CloseProcess(ctx context.Context, processID string, event *models.OutboxMessage) error
	FinalizeCandidateScoring(ctx context.Context, candidateID string, updates map[string]interface{}, event *models.OutboxMessage) error
}

// Gateway LLM补全调用的抽象，测试时注入假实现
type Gateway interface {
	Complete(ctx context.Context, prompt string, opts llm.CompletionOptions) (string, error)
}

// CVExtractor CV文本提取的抽象
type CVExtractor interface {
	Extract(ctx context.Context, reader io.Reader, fileType string) (*extractor.Result, error)
}

// BlobFetcher 对象存储的读取抽象
type BlobFetcher interface {
	FetchCV(ctx context.Context, objectKey string) (io.ReadCloser, error)
}
