package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"ats-agent-go/internal/config"
	"ats-agent-go/internal/constants"
	"ats-agent-go/internal/llm"
	"ats-agent-go/internal/logger"
	"ats-agent-go/internal/prompt"
	"ats-agent-go/internal/storage"
	"ats-agent-go/internal/storage/models"
	"ats-agent-go/internal/types"
)

// 固定拒绝理由，面向候选人所在市场使用西班牙语
const (
	reasonMandatoryUnmet = "El candidato no cumple todos los requisitos indispensables"
	reasonLimitReached   = "El proceso alcanzó el límite máximo de candidatos"
)

// ScoringDecision 评分阶段的决定结果
type ScoringDecision struct {
	Approved     bool
	Score        int
	Reason       string
	LimitReached bool
	Details      *types.ScoringResult
}

// ScoringStage 评分阶段
// 状态转换: questions_generated → completed | rejected
type ScoringStage struct {
	store    Store
	gateway  Gateway
	builder  *prompt.Builder
	stageCfg config.StageConfig
	mqCfg    config.RabbitMQConfig
}

// NewScoringStage 创建评分阶段
func NewScoringStage(store Store, gateway Gateway, builder *prompt.Builder, stageCfg config.StageConfig, mqCfg config.RabbitMQConfig) *ScoringStage {
	return &ScoringStage{
		store:    store,
		gateway:  gateway,
		builder:  builder,
		stageCfg: stageCfg,
		mqCfg:    mqCfg,
	}
}

// ScoreCandidate 对候选人执行终态评分
// 决定顺序：必备需求门槛 → 名额预检 → 通过写入后复查并自动关闭流程
func (s *ScoringStage) ScoreCandidate(ctx context.Context, candidateID string) (*ScoringDecision, error) {
	startTime := time.Now()

	// 1. 加载候选人并逐项校验前置条件，违反时不变更任何状态
	candidate, err := s.store.GetCandidateByID(ctx, candidateID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, ErrCandidateNotFound
		}
		return nil, &StageError{Stage: "scoring", Err: fmt.Errorf("查询候选人失败: %w", err)}
	}
	if isTerminalStatus(candidate.Status) {
		return nil, ErrCandidateAlreadyFinalized
	}
	if !canTransition(candidate.Status, constants.CandidateStatusCompleted) {
		return nil, ErrNoQuestions
	}
	if candidate.CVText == nil || *candidate.CVText == "" {
		return nil, ErrCVTextMissing
	}

	questions, err := s.store.ListQuestionsByCandidate(ctx, candidateID)
	if err != nil {
		return nil, &StageError{Stage: "scoring", Err: fmt.Errorf("查询问题列表失败: %w", err)}
	}
	if len(questions) == 0 {
		return nil, ErrNoQuestions
	}
	answered := make([]types.QuestionAnswer, 0, len(questions))
	for _, q := range questions {
		if !q.IsAnswered || q.AnswerText == nil {
			return nil, ErrUnansweredQuestions
		}
		answered = append(answered, types.QuestionAnswer{
			Question:    q.Question,
			Answer:      *q.AnswerText,
			IsMandatory: q.IsMandatory,
		})
	}

	// 2. 加载流程需求、自定义说明与名额上限
	process, err := s.store.GetProcessByID(ctx, candidate.ProcessID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, ErrProcessNotFound
		}
		return nil, &StageError{Stage: "scoring", Err: fmt.Errorf("查询流程失败: %w", err)}
	}
	mandatory, err := process.MandatoryRequirements()
	if err != nil {
		return nil, &StageError{Stage: "scoring", Err: fmt.Errorf("解析必备需求失败: %w", err)}
	}
	optional, err := process.OptionalRequirements()
	if err != nil {
		return nil, &StageError{Stage: "scoring", Err: fmt.Errorf("解析加分需求失败: %w", err)}
	}

	// 3. 构建评分Prompt并调用LLM
	promptText := s.builder.BuildScoringPrompt(*candidate.CVText, mandatory, optional, answered, process.CustomPrompt)
	rawResponse, err := s.gateway.Complete(ctx, promptText, llm.CompletionOptions{
		Temperature:    s.stageCfg.Temperature,
		MaxTokens:      s.stageCfg.MaxTokens,
		ResponseFormat: s.stageCfg.ResponseFormat,
	})
	if err != nil {
		// 与问题生成阶段对称的失败标记
		if updateErr := s.store.UpdateCandidateFields(ctx, candidateID, map[string]interface{}{
			"scoring_failed": true,
		}); updateErr != nil {
			logger.Error().Err(updateErr).Str("candidate_id", candidateID).Msg("记录评分失败标记失败")
		}
		return nil, &StageError{Stage: "scoring", Err: err}
	}

	// 4. 规范化响应；格式错误不变更状态，调用方可重试
	result, err := llm.ParseScoringResponse(rawResponse)
	if err != nil {
		return nil, &StageError{Stage: "scoring", Err: err}
	}

	detailsJSON, err := models.ScoringResultToJSON(result)
	if err != nil {
		return nil, &StageError{Stage: "scoring", Err: fmt.Errorf("序列化评分详情失败: %w", err)}
	}
	baseUpdates := map[string]interface{}{
		"score":                result.Score,
		"scoring_details_json": detailsJSON,
		"scoring_failed":       false,
	}

	// 5. 决定策略第一步：必备需求门槛
	if !result.MeetsAllMandatory {
		reason := result.Summary
		if reason == "" {
			reason = reasonMandatoryUnmet
		}
		decision := &ScoringDecision{Approved: false, Score: result.Score, Reason: reason, Details: result}
		if err := s.finalize(ctx, candidate, decision, baseUpdates); err != nil {
			return nil, err
		}
		logger.Info().
			Str("candidate_id", candidateID).
			Int("score", result.Score).
			Dur("duration", time.Since(startTime)).
			Msg("候选人因必备需求未满足被拒绝")
		return decision, nil
	}

	// 6. 第二步：名额预检，写入本候选人结果之前执行
	if process.CandidateLimit != nil {
		completedCount, err := s.store.CountCompletedCandidates(ctx, candidate.ProcessID, candidateID)
		if err != nil {
			return nil, &StageError{Stage: "scoring", Err: err}
		}
		if completedCount >= int64(*process.CandidateLimit) {
			decision := &ScoringDecision{Approved: false, Score: result.Score, Reason: reasonLimitReached, LimitReached: true, Details: result}
			if err := s.finalize(ctx, candidate, decision, baseUpdates); err != nil {
				return nil, err
			}
			logger.Info().
				Str("candidate_id", candidateID).
				Str("process_id", candidate.ProcessID).
				Int64("completed_count", completedCount).
				Msg("候选人因流程名额已满被拒绝")
			return decision, nil
		}
	}

	// 7. 通过：写入completed，随后复查名额并在达到上限时关闭流程
	decision := &ScoringDecision{Approved: true, Score: result.Score, Details: result}
	if err := s.finalize(ctx, candidate, decision, baseUpdates); err != nil {
		return nil, err
	}

	if process.CandidateLimit != nil {
		s.closeProcessIfFull(ctx, candidate.ProcessID, *process.CandidateLimit)
	}

	logger.Info().
		Str("candidate_id", candidateID).
		Int("score", result.Score).
		Dur("duration", time.Since(startTime)).
		Msg("候选人评分通过")
	return decision, nil
}

// finalize 在单个事务内写入候选人终态与决定事件
func (s *ScoringStage) finalize(ctx context.Context, candidate *models.Candidate, decision *ScoringDecision, updates map[string]interface{}) error {
	if decision.Approved {
		updates["status"] = constants.CandidateStatusCompleted
		updates["rejection_reason"] = nil
	} else {
		updates["status"] = constants.CandidateStatusRejected
		updates["rejection_reason"] = decision.Reason
	}

	event, err := s.newScoredEvent(candidate, decision)
	if err != nil {
		return &StageError{Stage: "scoring", Err: err}
	}
	if err := s.store.FinalizeCandidateScoring(ctx, candidate.CandidateID, updates, event); err != nil {
		return &StageError{Stage: "scoring", Err: err}
	}
	return nil
}

// closeProcessIfFull 写入后复查名额，达到上限时关闭流程
// 关闭失败只记日志，候选人的通过结果不受影响
func (s *ScoringStage) closeProcessIfFull(ctx context.Context, processID string, limit int) {
	count, err := s.store.CountCompletedCandidates(ctx, processID, "")
	if err != nil {
		logger.Error().Err(err).Str("process_id", processID).Msg("复查流程名额失败")
		return
	}
	if count < int64(limit) {
		return
	}

	event, err := s.newClosedEvent(processID, count, limit)
	if err != nil {
		logger.Error().Err(err).Str("process_id", processID).Msg("构造流程关闭事件失败")
		event = nil
	}
	if err := s.store.CloseProcess(ctx, processID, event); err != nil {
		logger.Error().Err(err).Str("process_id", processID).Msg("自动关闭流程失败")
		return
	}
	logger.Info().
		Str("process_id", processID).
		Int64("completed_count", count).
		Int("candidate_limit", limit).
		Msg("流程名额已满，自动关闭")
}

// newScoredEvent 构造候选人评分决定事件
func (s *ScoringStage) newScoredEvent(candidate *models.Candidate, decision *ScoringDecision) (*models.OutboxMessage, error) {
	payload, err := json.Marshal(map[string]interface{}{
		"candidate_id":  candidate.CandidateID,
		"process_id":    candidate.ProcessID,
		"approved":      decision.Approved,
		"score":         decision.Score,
		"reason":        decision.Reason,
		"limit_reached": decision.LimitReached,
		"occurred_at":   time.Now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		return nil, fmt.Errorf("序列化评分事件失败: %w", err)
	}
	return &models.OutboxMessage{
		AggregateID:      candidate.CandidateID,
		EventType:        constants.EventCandidateScored,
		Payload:          payload,
		TargetExchange:   s.mqCfg.DecisionExchange,
		TargetRoutingKey: s.mqCfg.ScoredRoutingKey,
		Status:           models.OutboxStatusPending,
	}, nil
}

// newClosedEvent 构造流程关闭事件
func (s *ScoringStage) newClosedEvent(processID string, completedCount int64, limit int) (*models.OutboxMessage, error) {
	payload, err := json.Marshal(map[string]interface{}{
		"process_id":      processID,
		"completed_count": completedCount,
		"candidate_limit": limit,
		"occurred_at":     time.Now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		return nil, fmt.Errorf("序列化关闭事件失败: %w", err)
	}
	return &models.OutboxMessage{
		AggregateID:      processID,
		EventType:        constants.EventProcessClosed,
		Payload:          payload,
		TargetExchange:   s.mqCfg.DecisionExchange,
		TargetRoutingKey: s.mqCfg.ClosedRoutingKey,
		Status:           models.OutboxStatusPending,
	}, nil
}
