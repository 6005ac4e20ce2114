package types

// Requirement 流程需求值对象，挂在Process的需求列表上
// Level 可以是 básico/intermedio/avanzado 枚举之一，也允许自由文本
type Requirement struct {
	Title       string `json:"title"`
	Level       string `json:"level,omitempty"`
	Category    string `json:"category,omitempty"`
	IsMandatory bool   `json:"is_mandatory"`
}

// QuestionAnswer 已回答的甄别问题，评分Prompt的输入之一
type QuestionAnswer struct {
	Question    string `json:"question"`
	Answer      string `json:"answer"`
	IsMandatory bool   `json:"is_mandatory"`
}

// RequirementEvaluation 单项需求的评估结论
type RequirementEvaluation struct {
	Requirement string `json:"requirement"`
	Meets       bool   `json:"meets"`
	Evidence    string `json:"evidence"`
}

// ScoringResult LLM评分结果，完整持久化到候选人的 scoring_details_json 字段
type ScoringResult struct {
	Score               int                     `json:"score"`
	MeetsAllMandatory   bool                    `json:"meetsAllMandatory"`
	MandatoryEvaluation []RequirementEvaluation `json:"mandatory_evaluation"`
	OptionalEvaluation  []RequirementEvaluation `json:"optional_evaluation"`
	Summary             string                  `json:"summary"`
}

// GeneratedQuestion LLM问题生成阶段的单个产出
type GeneratedQuestion struct {
	Question    string `json:"question"`
	Reason      string `json:"reason"`
	CVEvidence  string `json:"cv_evidence"`
	IsMandatory bool   `json:"is_mandatory"`
}
