package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gofrs/uuid/v5"

	"ats-agent-go/internal/config"
	"ats-agent-go/internal/constants"
	"ats-agent-go/internal/llm"
	"ats-agent-go/internal/logger"
	"ats-agent-go/internal/prompt"
	"ats-agent-go/internal/storage"
	"ats-agent-go/internal/storage/models"
)

// QuestionResult 问题生成阶段的结果
type QuestionResult struct {
	QuestionsCount int
	Metadata       map[string]interface{}
}

// QuestionStage 问题生成阶段
// 状态转换: cv_uploaded → questions_generated；网关失败时仅设置失败标记，状态不变
type QuestionStage struct {
	store     Store
	gateway   Gateway
	builder   *prompt.Builder
	extractor CVExtractor
	blobs     BlobFetcher
	stageCfg  config.StageConfig
}

// NewQuestionStage 创建问题生成阶段
func NewQuestionStage(store Store, gateway Gateway, builder *prompt.Builder, cvExtractor CVExtractor, blobs BlobFetcher, stageCfg config.StageConfig) *QuestionStage {
	return &QuestionStage{
		store:     store,
		gateway:   gateway,
		builder:   builder,
		extractor: cvExtractor,
		blobs:     blobs,
		stageCfg:  stageCfg,
	}
}

// GenerateQuestions 为候选人生成甄别问题
// 重复调用会追加第二批问题而非替换，因此已有问题的候选人直接拒绝本次调用
func (s *QuestionStage) GenerateQuestions(ctx context.Context, candidateID string) (*QuestionResult, error) {
	startTime := time.Now()

	// 1. 加载候选人并校验状态机
	candidate, err := s.store.GetCandidateByID(ctx, candidateID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, ErrCandidateNotFound
		}
		return nil, &StageError{Stage: "question", Err: fmt.Errorf("查询候选人失败: %w", err)}
	}
	if isTerminalStatus(candidate.Status) {
		return nil, ErrCandidateAlreadyFinalized
	}
	if !canTransition(candidate.Status, constants.CandidateStatusQuestionsGenerated) {
		return nil, ErrQuestionsAlreadyGenerated
	}

	existing, err := s.store.CountQuestionsByCandidate(ctx, candidateID)
	if err != nil {
		return nil, &StageError{Stage: "question", Err: fmt.Errorf("统计已有问题失败: %w", err)}
	}
	if existing > 0 {
		return nil, ErrQuestionsAlreadyGenerated
	}

	// 2. CV文本缺失时先提取
	cvText := ""
	if candidate.CVText != nil {
		cvText = *candidate.CVText
	}
	if cvText == "" {
		cvText, err = s.extractCVText(ctx, candidate)
		if err != nil {
			return nil, err
		}
	}

	// 3. 加载所属流程的需求与自定义说明
	process, err := s.store.GetProcessByID(ctx, candidate.ProcessID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, ErrProcessNotFound
		}
		return nil, &StageError{Stage: "question", Err: fmt.Errorf("查询流程失败: %w", err)}
	}
	mandatory, err := process.MandatoryRequirements()
	if err != nil {
		return nil, &StageError{Stage: "question", Err: fmt.Errorf("解析必备需求失败: %w", err)}
	}
	optional, err := process.OptionalRequirements()
	if err != nil {
		return nil, &StageError{Stage: "question", Err: fmt.Errorf("解析加分需求失败: %w", err)}
	}

	// 4. 构建Prompt并调用LLM
	promptText := s.builder.BuildQuestionPrompt(cvText, mandatory, optional, process.CustomPrompt)
	rawResponse, err := s.gateway.Complete(ctx, promptText, llm.CompletionOptions{
		Temperature:    s.stageCfg.Temperature,
		MaxTokens:      s.stageCfg.MaxTokens,
		ResponseFormat: s.stageCfg.ResponseFormat,
	})
	if err != nil {
		// 网关失败记入失败标记，候选人停留在cv_uploaded
		if updateErr := s.store.UpdateCandidateFields(ctx, candidateID, map[string]interface{}{
			"ai_analysis_failed": true,
		}); updateErr != nil {
			logger.Error().Err(updateErr).Str("candidate_id", candidateID).Msg("记录问题生成失败标记失败")
		}
		return nil, &StageError{Stage: "question", Err: err}
	}

	// 5. 规范化响应；格式错误不变更任何状态，调用方可重试
	generated, err := llm.ParseQuestionResponse(rawResponse, s.builder.Policy().MaxQuestions)
	if err != nil {
		return nil, &StageError{Stage: "question", Err: err}
	}

	// 6. 持久化问题并推进状态机，同时清除历史失败标记
	questions := make([]models.Question, 0, len(generated))
	for _, g := range generated {
		id, err := uuid.NewV7()
		if err != nil {
			return nil, &StageError{Stage: "question", Err: fmt.Errorf("生成问题ID失败: %w", err)}
		}
		questions = append(questions, models.Question{
			QuestionID:  id.String(),
			CandidateID: candidateID,
			Question:    g.Question,
			Reason:      g.Reason,
			CVEvidence:  g.CVEvidence,
			IsMandatory: g.IsMandatory,
		})
	}
	if err := s.store.CreateQuestions(ctx, questions); err != nil {
		return nil, &StageError{Stage: "question", Err: fmt.Errorf("保存问题失败: %w", err)}
	}
	if err := s.store.UpdateCandidateFields(ctx, candidateID, map[string]interface{}{
		"status":             constants.CandidateStatusQuestionsGenerated,
		"ai_analysis_failed": false,
		"parsing_failed":     false,
		"parsing_error":      nil,
	}); err != nil {
		return nil, &StageError{Stage: "question", Err: fmt.Errorf("更新候选人状态失败: %w", err)}
	}

	logger.Info().
		Str("candidate_id", candidateID).
		Int("questions_count", len(questions)).
		Dur("duration", time.Since(startTime)).
		Msg("问题生成完成")

	return &QuestionResult{
		QuestionsCount: len(questions),
		Metadata: map[string]interface{}{
			"candidate_id": candidateID,
			"process_id":   candidate.ProcessID,
			"duration_ms":  time.Since(startTime).Milliseconds(),
		},
	}, nil
}

// extractCVText 从对象存储拉取CV文件并提取文本，结果持久化到候选人
// 提取失败时记录parsing_failed与错误消息后原样上抛
func (s *QuestionStage) extractCVText(ctx context.Context, candidate *models.Candidate) (string, error) {
	if candidate.CVReference == "" {
		return "", ErrCVTextMissing
	}

	reader, err := s.blobs.FetchCV(ctx, candidate.CVReference)
	if err != nil {
		s.recordParsingFailure(ctx, candidate.CandidateID, err)
		return "", &StageError{Stage: "question", Err: fmt.Errorf("获取CV文件失败: %w", err)}
	}
	defer reader.Close()

	result, err := s.extractor.Extract(ctx, reader, candidate.CVFileType)
	if err != nil {
		s.recordParsingFailure(ctx, candidate.CandidateID, err)
		return "", &StageError{Stage: "question", Err: err}
	}

	if err := s.store.UpdateCandidateFields(ctx, candidate.CandidateID, map[string]interface{}{
		"cv_text":        result.Text,
		"parsing_failed": false,
		"parsing_error":  nil,
	}); err != nil {
		return "", &StageError{Stage: "question", Err: fmt.Errorf("保存CV文本失败: %w", err)}
	}
	return result.Text, nil
}

// recordParsingFailure 将提取失败状态写回候选人
func (s *QuestionStage) recordParsingFailure(ctx context.Context, candidateID string, cause error) {
	msg := cause.Error()
	if err := s.store.UpdateCandidateFields(ctx, candidateID, map[string]interface{}{
		"parsing_failed": true,
		"parsing_error":  msg,
	}); err != nil {
		logger.Error().Err(err).Str("candidate_id", candidateID).Msg("记录CV解析失败状态失败")
	}
}
