package handler

import (
	"context"
	"errors"
	"fmt"

	"ats-agent-go/internal/extractor"
	"ats-agent-go/internal/llm"
	"ats-agent-go/internal/logger"
	"ats-agent-go/internal/pipeline"
	"ats-agent-go/internal/types"
)

// EvaluationHandler 候选人评估流水线的请求处理器
type EvaluationHandler struct {
	questionStage *pipeline.QuestionStage
	scoringStage  *pipeline.ScoringStage
	ownership     OwnershipChecker
}

// NewEvaluationHandler 创建评估处理器
func NewEvaluationHandler(questionStage *pipeline.QuestionStage, scoringStage *pipeline.ScoringStage, ownership OwnershipChecker) *EvaluationHandler {
	if ownership == nil {
		ownership = PermissiveOwnershipChecker{}
	}
	return &EvaluationHandler{
		questionStage: questionStage,
		scoringStage:  scoringStage,
		ownership:     ownership,
	}
}

// GenerateQuestionsResponse 问题生成响应
type GenerateQuestionsResponse struct {
	QuestionsCount int                    `json:"questions_count"`
	Metadata       map[string]interface{} `json:"metadata"`
}

// HandleGenerateQuestions 处理问题生成请求
func (h *EvaluationHandler) HandleGenerateQuestions(ctx context.Context, candidateID string, recruiterID string) (*GenerateQuestionsResponse, error) {
	ok, err := h.ownership.VerifyCandidateOwnership(ctx, candidateID, recruiterID)
	if err != nil {
		return nil, fmt.Errorf("归属校验失败: %w", err)
	}
	if !ok {
		return nil, ErrOwnershipDenied
	}

	result, err := h.questionStage.GenerateQuestions(ctx, candidateID)
	if err != nil {
		return nil, err
	}
	return &GenerateQuestionsResponse{
		QuestionsCount: result.QuestionsCount,
		Metadata:       result.Metadata,
	}, nil
}

// ScoreCandidateResponse 评分响应
type ScoreCandidateResponse struct {
	Approved     bool                 `json:"approved"`
	Score        int                  `json:"score"`
	Reason       string               `json:"reason,omitempty"`
	LimitReached bool                 `json:"limit_reached,omitempty"`
	Details      *types.ScoringResult `json:"details,omitempty"`
}

// HandleScoreCandidate 处理候选人评分请求
func (h *EvaluationHandler) HandleScoreCandidate(ctx context.Context, candidateID string, recruiterID string) (*ScoreCandidateResponse, error) {
	ok, err := h.ownership.VerifyCandidateOwnership(ctx, candidateID, recruiterID)
	if err != nil {
		return nil, fmt.Errorf("归属校验失败: %w", err)
	}
	if !ok {
		return nil, ErrOwnershipDenied
	}

	decision, err := h.scoringStage.ScoreCandidate(ctx, candidateID)
	if err != nil {
		return nil, err
	}
	return &ScoreCandidateResponse{
		Approved:     decision.Approved,
		Score:        decision.Score,
		Reason:       decision.Reason,
		LimitReached: decision.LimitReached,
		Details:      decision.Details,
	}, nil
}

// ErrOwnershipDenied 归属校验未通过
var ErrOwnershipDenied = errors.New("无权操作该资源")

// ErrValidation 请求参数校验失败
var ErrValidation = errors.New("参数校验失败")

// ErrorBody 统一的错误响应体
type ErrorBody struct {
	Error string `json:"error"`
	Debug string `json:"debug,omitempty"`
}

// MapError 将流水线错误映射为HTTP状态码与响应体
// 前置条件类→4xx；AI网关失败→502通用消息（原始错误只进日志）；格式错误→502带诊断片段
func MapError(err error) (int, ErrorBody) {
	var malformed *llm.MalformedResponseError
	var gatewayErr *llm.GatewayError

	switch {
	case errors.Is(err, pipeline.ErrCandidateNotFound),
		errors.Is(err, pipeline.ErrProcessNotFound):
		return 404, ErrorBody{Error: err.Error()}
	case errors.Is(err, pipeline.ErrQuestionsAlreadyGenerated),
		errors.Is(err, pipeline.ErrCandidateAlreadyFinalized):
		return 409, ErrorBody{Error: err.Error()}
	case errors.Is(err, ErrValidation),
		errors.Is(err, pipeline.ErrCVTextMissing),
		errors.Is(err, pipeline.ErrNoQuestions),
		errors.Is(err, pipeline.ErrUnansweredQuestions),
		errors.Is(err, extractor.ErrUnsupportedFormat),
		errors.Is(err, extractor.ErrEmptyDocument):
		return 400, ErrorBody{Error: err.Error()}
	case errors.Is(err, ErrOwnershipDenied):
		return 403, ErrorBody{Error: err.Error()}
	case errors.As(err, &malformed):
		return 502, ErrorBody{Error: "AI响应格式异常，请稍后重试", Debug: malformed.RawExcerpt}
	case errors.Is(err, llm.ErrNoValidQuestions):
		return 502, ErrorBody{Error: "AI未生成有效问题，请稍后重试"}
	case errors.Is(err, llm.ErrGatewayTimeout):
		return 502, ErrorBody{Error: "AI服务超时，请稍后重试"}
	case errors.As(err, &gatewayErr):
		logger.Error().Err(err).Msg("AI网关错误")
		return 502, ErrorBody{Error: "AI服务暂时不可用，请稍后重试"}
	default:
		logger.Error().Err(err).Msg("请求处理失败")
		return 500, ErrorBody{Error: "内部错误"}
	}
}
