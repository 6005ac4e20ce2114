package handler

import (
	"context"
	"fmt"

	"github.com/gofrs/uuid/v5"

	"ats-agent-go/internal/constants"
	"ats-agent-go/internal/storage"
	"ats-agent-go/internal/storage/models"
	"ats-agent-go/internal/types"
)

// ProcessHandler 招聘流程处理器
type ProcessHandler struct {
	storage *storage.Storage
}

// NewProcessHandler 创建流程处理器
func NewProcessHandler(s *storage.Storage) *ProcessHandler {
	return &ProcessHandler{storage: s}
}

// CreateProcessRequest 创建流程请求
type CreateProcessRequest struct {
	RecruiterID          string              `json:"recruiter_id"`
	Title                string              `json:"title"`
	CompanyName          string              `json:"company_name"`
	Description          string              `json:"description"`
	MandatoryRequirement []types.Requirement `json:"mandatory_requirements"`
	OptionalRequirement  []types.Requirement `json:"optional_requirements"`
	CustomPrompt         string              `json:"custom_prompt"`
	CandidateLimit       *int                `json:"candidate_limit"`
}

// CreateProcessResponse 创建流程响应
type CreateProcessResponse struct {
	ProcessID string `json:"process_id"`
	Status    string `json:"status"`
}

// HandleCreateProcess 创建招聘流程
func (h *ProcessHandler) HandleCreateProcess(ctx context.Context, req *CreateProcessRequest) (*CreateProcessResponse, error) {
	if req.Title == "" {
		return nil, fmt.Errorf("%w: title不能为空", ErrValidation)
	}
	if req.CandidateLimit != nil && *req.CandidateLimit <= 0 {
		return nil, fmt.Errorf("%w: candidate_limit必须为正整数", ErrValidation)
	}

	mandatoryJSON, err := models.RequirementsToJSON(req.MandatoryRequirement)
	if err != nil {
		return nil, fmt.Errorf("序列化必备需求失败: %w", err)
	}
	optionalJSON, err := models.RequirementsToJSON(req.OptionalRequirement)
	if err != nil {
		return nil, fmt.Errorf("序列化加分需求失败: %w", err)
	}

	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("生成流程ID失败: %w", err)
	}
	process := &models.Process{
		ProcessID:                 id.String(),
		RecruiterID:               req.RecruiterID,
		Title:                     req.Title,
		CompanyName:               req.CompanyName,
		Description:               req.Description,
		MandatoryRequirementsJSON: mandatoryJSON,
		OptionalRequirementsJSON:  optionalJSON,
		CustomPrompt:              req.CustomPrompt,
		CandidateLimit:            req.CandidateLimit,
		Status:                    constants.ProcessStatusActive,
	}
	if err := h.storage.Postgres.CreateProcess(ctx, process); err != nil {
		return nil, fmt.Errorf("创建流程失败: %w", err)
	}

	return &CreateProcessResponse{
		ProcessID: process.ProcessID,
		Status:    process.Status,
	}, nil
}
