package models

import (
	"encoding/json"
	"time"

	"gorm.io/datatypes"

	"ats-agent-go/internal/types"
)

// Process 招聘流程主表
type Process struct {
	ProcessID                 string         `gorm:"type:char(36);primaryKey"`
	RecruiterID               string         `gorm:"type:char(36);not null;index:idx_processes_recruiter_id"`
	Title                     string         `gorm:"type:varchar(255);not null"`
	CompanyName               string         `gorm:"type:varchar(255)"`
	Description               string         `gorm:"type:text"`
	MandatoryRequirementsJSON datatypes.JSON `gorm:"type:jsonb"` // 有序的必备需求列表
	OptionalRequirementsJSON  datatypes.JSON `gorm:"type:jsonb"` // 有序的加分需求列表
	CustomPrompt              string         `gorm:"type:text"`  // 招聘方的自定义评估说明，可为空
	CandidateLimit            *int           `gorm:"type:int"`   // 名额上限，NULL表示不限
	Status                    string         `gorm:"type:varchar(20);default:'active';index:idx_processes_status"`
	CreatedAt                 time.Time      `gorm:"autoCreateTime"`
	UpdatedAt                 time.Time      `gorm:"autoUpdateTime"`
}

func (Process) TableName() string {
	return "processes"
}

// MandatoryRequirements 反序列化必备需求列表，保持存储顺序
func (p *Process) MandatoryRequirements() ([]types.Requirement, error) {
	return decodeRequirements(p.MandatoryRequirementsJSON, true)
}

// OptionalRequirements 反序列化加分需求列表，保持存储顺序
func (p *Process) OptionalRequirements() ([]types.Requirement, error) {
	return decodeRequirements(p.OptionalRequirementsJSON, false)
}

func decodeRequirements(raw datatypes.JSON, mandatory bool) ([]types.Requirement, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var reqs []types.Requirement
	if err := json.Unmarshal(raw, &reqs); err != nil {
		return nil, err
	}
	// isMandatory由所在列表推导，不信任存储的字段值
	for i := range reqs {
		reqs[i].IsMandatory = mandatory
	}
	return reqs, nil
}

// Candidate 候选人主表
type Candidate struct {
	CandidateID        string         `gorm:"type:char(36);primaryKey"`
	ProcessID          string         `gorm:"type:char(36);not null;index:idx_candidates_process_id;index:idx_candidates_process_status,priority:1"`
	Name               string         `gorm:"type:varchar(255)"`
	Email              string         `gorm:"type:varchar(255)"`
	Phone              string         `gorm:"type:varchar(50)"`
	CVReference        string         `gorm:"type:varchar(1024)"` // 对象存储中的CV文件键
	CVText             *string        `gorm:"type:text"`          // 提取出的纯文本，提取成功前为NULL
	CVFileType         string         `gorm:"type:varchar(10)"`
	ParsingFailed      bool           `gorm:"default:false"`
	ParsingError       *string        `gorm:"type:text"`
	AIAnalysisFailed   bool           `gorm:"default:false"` // 问题生成阶段的网关失败标记
	ScoringFailed      bool           `gorm:"default:false"` // 评分阶段的网关失败标记
	Status             string         `gorm:"type:varchar(30);default:'cv_uploaded';index:idx_candidates_process_status,priority:2"`
	Score              *int           `gorm:"type:int"` // 0-100，评分完成前为NULL
	ScoringDetailsJSON datatypes.JSON `gorm:"type:jsonb"`
	RejectionReason    *string        `gorm:"type:text"`
	CreatedAt          time.Time      `gorm:"autoCreateTime"`
	UpdatedAt          time.Time      `gorm:"autoUpdateTime"`
}

func (Candidate) TableName() string {
	return "candidates"
}

// ScoringDetails 反序列化评分详情，未评分时返回nil
func (c *Candidate) ScoringDetails() (*types.ScoringResult, error) {
	if len(c.ScoringDetailsJSON) == 0 {
		return nil, nil
	}
	var result types.ScoringResult
	if err := json.Unmarshal(c.ScoringDetailsJSON, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// Question AI生成的甄别问题表
type Question struct {
	QuestionID  string    `gorm:"type:char(36);primaryKey"`
	CandidateID string    `gorm:"type:char(36);not null;index:idx_questions_candidate_id"`
	Question    string    `gorm:"type:text;not null"`
	Reason      string    `gorm:"type:text"`
	CVEvidence  string    `gorm:"type:text"`
	IsMandatory bool      `gorm:"not null"` // 继承自其验证的需求的必备/加分属性
	AnswerText  *string   `gorm:"type:text"`
	IsAnswered  bool      `gorm:"default:false"`
	CreatedAt   time.Time `gorm:"autoCreateTime"`

	Candidate *Candidate `gorm:"foreignKey:CandidateID;references:CandidateID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

func (Question) TableName() string {
	return "questions"
}

// RequirementsToJSON 序列化需求列表为JSON列值
func RequirementsToJSON(reqs []types.Requirement) (datatypes.JSON, error) {
	bytes, err := json.Marshal(reqs)
	if err != nil {
		return nil, err
	}
	return bytes, nil
}

// ScoringResultToJSON 序列化评分结果为JSON列值
func ScoringResultToJSON(result *types.ScoringResult) (datatypes.JSON, error) {
	bytes, err := json.Marshal(result)
	if err != nil {
		return nil, err
	}
	return bytes, nil
}
