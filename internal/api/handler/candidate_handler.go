package handler

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/gofrs/uuid/v5"

	"ats-agent-go/internal/constants"
	"ats-agent-go/internal/extractor"
	"ats-agent-go/internal/logger"
	"ats-agent-go/internal/pipeline"
	"ats-agent-go/internal/storage"
	"ats-agent-go/internal/storage/models"
	"ats-agent-go/internal/types"
)

// CandidateHandler 候选人生命周期处理器：创建、CV上传、答案采集、结果查询
type CandidateHandler struct {
	storage *storage.Storage
}

// NewCandidateHandler 创建候选人处理器
func NewCandidateHandler(s *storage.Storage) *CandidateHandler {
	return &CandidateHandler{storage: s}
}

// CreateCandidateRequest 创建候选人请求
type CreateCandidateRequest struct {
	ProcessID string `json:"process_id"`
	Name      string `json:"name"`
	Email     string `json:"email"`
	Phone     string `json:"phone"`
}

// CreateCandidateResponse 创建候选人响应
type CreateCandidateResponse struct {
	CandidateID string `json:"candidate_id"`
	Status      string `json:"status"`
}

// HandleCreateCandidate 创建候选人，初始状态为cv_uploaded（等待CV文件）
func (h *CandidateHandler) HandleCreateCandidate(ctx context.Context, req *CreateCandidateRequest) (*CreateCandidateResponse, error) {
	if req.ProcessID == "" {
		return nil, fmt.Errorf("%w: process_id不能为空", ErrValidation)
	}
	if _, err := h.storage.Postgres.GetProcessByID(ctx, req.ProcessID); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, pipeline.ErrProcessNotFound
		}
		return nil, fmt.Errorf("查询流程失败: %w", err)
	}

	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("生成候选人ID失败: %w", err)
	}
	candidate := &models.Candidate{
		CandidateID: id.String(),
		ProcessID:   req.ProcessID,
		Name:        req.Name,
		Email:       req.Email,
		Phone:       req.Phone,
		Status:      constants.CandidateStatusCVUploaded,
	}
	if err := h.storage.Postgres.CreateCandidate(ctx, candidate); err != nil {
		return nil, fmt.Errorf("创建候选人失败: %w", err)
	}
	return &CreateCandidateResponse{
		CandidateID: candidate.CandidateID,
		Status:      candidate.Status,
	}, nil
}

// CVUploadResponse CV上传响应
type CVUploadResponse struct {
	CandidateID string `json:"candidate_id"`
	CVReference string `json:"cv_reference"`
	Status      string `json:"status"`
	Duplicate   bool   `json:"duplicate,omitempty"`
}

// HandleCVUpload 上传候选人CV文件
// 先做Redis文件MD5去重，再写入MinIO，最后回写候选人的文件引用并重置提取状态
func (h *CandidateHandler) HandleCVUpload(ctx context.Context, candidateID string, reader io.Reader, filename string) (*CVUploadResponse, error) {
	if h.storage.MinIO == nil {
		return nil, fmt.Errorf("文件存储不可用")
	}

	candidate, err := h.storage.Postgres.GetCandidateByID(ctx, candidateID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, pipeline.ErrCandidateNotFound
		}
		return nil, fmt.Errorf("查询候选人失败: %w", err)
	}
	if candidate.Status != constants.CandidateStatusCVUploaded {
		return nil, pipeline.ErrCandidateAlreadyFinalized
	}

	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(filename), "."))
	if ext != "pdf" && ext != "docx" {
		return nil, fmt.Errorf("%w: %s", extractor.ErrUnsupportedFormat, ext)
	}

	// reader只能读一次，去重检查需要先拿到完整内容
	fileBytes, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("读取上传文件内容失败: %w", err)
	}

	objectKey, md5Hex, err := h.storage.MinIO.UploadCVFile(ctx, candidateID, bytes.NewReader(fileBytes), int64(len(fileBytes)), ext)
	if err != nil {
		return nil, fmt.Errorf("上传CV文件失败: %w", err)
	}

	duplicate := false
	if h.storage.Redis != nil {
		exists, err := h.storage.Redis.CheckCVFileMD5Exists(ctx, md5Hex)
		if err != nil {
			// 去重检查失败不阻断上传，只记日志
			logger.Warn().Err(err).Str("md5", md5Hex).Msg("查询CV文件MD5失败")
		} else if exists {
			duplicate = true
			logger.Info().
				Str("md5", md5Hex).
				Str("candidate_id", candidateID).
				Msg("检测到重复的CV文件MD5")
		}
		if err := h.storage.Redis.AddCVFileMD5(ctx, md5Hex, candidateID); err != nil {
			logger.Warn().Err(err).Str("md5", md5Hex).Msg("记录CV文件MD5失败")
		}
	}

	if err := h.storage.Postgres.UpdateCandidateFields(ctx, candidateID, map[string]interface{}{
		"cv_reference":   objectKey,
		"cv_file_type":   ext,
		"cv_text":        nil,
		"parsing_failed": false,
		"parsing_error":  nil,
	}); err != nil {
		return nil, fmt.Errorf("更新候选人CV引用失败: %w", err)
	}

	return &CVUploadResponse{
		CandidateID: candidateID,
		CVReference: objectKey,
		Status:      constants.CandidateStatusCVUploaded,
		Duplicate:   duplicate,
	}, nil
}

// AnswerRequest 答案采集请求
type AnswerRequest struct {
	Answer string `json:"answer"`
}

// HandleAnswerQuestion 记录候选人对甄别问题的回答
func (h *CandidateHandler) HandleAnswerQuestion(ctx context.Context, questionID string, req *AnswerRequest) error {
	if strings.TrimSpace(req.Answer) == "" {
		return fmt.Errorf("%w: 答案不能为空", ErrValidation)
	}

	question, err := h.storage.Postgres.GetQuestionByID(ctx, questionID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return fmt.Errorf("%w: 问题不存在", ErrValidation)
		}
		return fmt.Errorf("查询问题失败: %w", err)
	}

	// 候选人已终态时答案不再可变
	candidate, err := h.storage.Postgres.GetCandidateByID(ctx, question.CandidateID)
	if err != nil {
		return fmt.Errorf("查询候选人失败: %w", err)
	}
	if candidate.Status == constants.CandidateStatusCompleted || candidate.Status == constants.CandidateStatusRejected {
		return pipeline.ErrCandidateAlreadyFinalized
	}

	return h.storage.Postgres.UpdateQuestionAnswer(ctx, questionID, req.Answer)
}

// QuestionView 问题的对外视图
type QuestionView struct {
	QuestionID  string `json:"question_id"`
	Question    string `json:"question"`
	IsMandatory bool   `json:"is_mandatory"`
	IsAnswered  bool   `json:"is_answered"`
	AnswerText  string `json:"answer_text,omitempty"`
}

// HandleListQuestions 列出候选人的全部甄别问题
func (h *CandidateHandler) HandleListQuestions(ctx context.Context, candidateID string) ([]QuestionView, error) {
	if _, err := h.storage.Postgres.GetCandidateByID(ctx, candidateID); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, pipeline.ErrCandidateNotFound
		}
		return nil, fmt.Errorf("查询候选人失败: %w", err)
	}

	questions, err := h.storage.Postgres.ListQuestionsByCandidate(ctx, candidateID)
	if err != nil {
		return nil, fmt.Errorf("查询问题列表失败: %w", err)
	}

	views := make([]QuestionView, 0, len(questions))
	for _, q := range questions {
		view := QuestionView{
			QuestionID:  q.QuestionID,
			Question:    q.Question,
			IsMandatory: q.IsMandatory,
			IsAnswered:  q.IsAnswered,
		}
		if q.AnswerText != nil {
			view.AnswerText = *q.AnswerText
		}
		views = append(views, view)
	}
	return views, nil
}

// EvaluationView 候选人评估结果视图
type EvaluationView struct {
	CandidateID     string               `json:"candidate_id"`
	Status          string               `json:"status"`
	Score           *int                 `json:"score,omitempty"`
	RejectionReason string               `json:"rejection_reason,omitempty"`
	ScoringDetails  *types.ScoringResult `json:"scoring_details,omitempty"`
	ParsingFailed   bool                 `json:"parsing_failed"`
	AIFailed        bool                 `json:"ai_analysis_failed"`
	ScoringFailed   bool                 `json:"scoring_failed"`
}

// HandleGetEvaluation 查询候选人当前的评估状态与结果
func (h *CandidateHandler) HandleGetEvaluation(ctx context.Context, candidateID string) (*EvaluationView, error) {
	candidate, err := h.storage.Postgres.GetCandidateByID(ctx, candidateID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, pipeline.ErrCandidateNotFound
		}
		return nil, fmt.Errorf("查询候选人失败: %w", err)
	}

	view := &EvaluationView{
		CandidateID:   candidate.CandidateID,
		Status:        candidate.Status,
		Score:         candidate.Score,
		ParsingFailed: candidate.ParsingFailed,
		AIFailed:      candidate.AIAnalysisFailed,
		ScoringFailed: candidate.ScoringFailed,
	}
	if candidate.RejectionReason != nil {
		view.RejectionReason = *candidate.RejectionReason
	}
	details, err := candidate.ScoringDetails()
	if err != nil {
		logger.Warn().Err(err).Str("candidate_id", candidateID).Msg("解析评分详情失败")
	} else {
		view.ScoringDetails = details
	}
	return view, nil
}
