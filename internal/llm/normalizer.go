package llm

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"ats-agent-go/internal/types"
)

// RawExcerptLen 诊断信息中保留的原始响应长度
const RawExcerptLen = 300

// ErrNoValidQuestions 问题生成响应中没有任何有效的问题元素
var ErrNoValidQuestions = errors.New("LLM响应中没有有效的问题")

// MalformedResponseError LLM输出无法解析或缺少阶段必需的字段
// 携带原始文本的截断片段用于诊断，候选人状态不因此变更
type MalformedResponseError struct {
	Reason     string
	RawExcerpt string
}

func (e *MalformedResponseError) Error() string {
	return fmt.Sprintf("LLM响应格式错误: %s", e.Reason)
}

func newMalformedError(reason string, raw string) *MalformedResponseError {
	excerpt := raw
	if len(excerpt) > RawExcerptLen {
		excerpt = excerpt[:RawExcerptLen]
	}
	return &MalformedResponseError{Reason: reason, RawExcerpt: excerpt}
}

// stripCodeFence 去掉响应外层的Markdown代码块包裹（```json ... ```）
func stripCodeFence(raw string) string {
	s := strings.TrimSpace(raw)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	// 去掉语言标签行，如 "json"
	if idx := strings.Index(s, "\n"); idx >= 0 {
		firstLine := strings.TrimSpace(s[:idx])
		if firstLine == "json" || firstLine == "JSON" || firstLine == "" {
			s = s[idx+1:]
		}
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

// extractJSONObject 从文本中定位第一个配平的JSON对象
// 模型偶尔会在JSON前后输出解释性文字，这里做大括号匹配截取
func extractJSONObject(raw string) (string, bool) {
	start := strings.Index(raw, "{")
	if start < 0 {
		return "", false
	}
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(raw); i++ {
		c := raw[i]
		if escaped {
			escaped = false
			continue
		}
		switch c {
		case '\\':
			if inString {
				escaped = true
			}
		case '"':
			inString = !inString
		case '{':
			if !inString {
				depth++
			}
		case '}':
			if !inString {
				depth--
				if depth == 0 {
					return raw[start : i+1], true
				}
			}
		}
	}
	return "", false
}

// normalizeJSON 统一的预处理：去围栏、截取JSON对象
func normalizeJSON(raw string) (string, error) {
	s := stripCodeFence(raw)
	jsonText, ok := extractJSONObject(s)
	if !ok {
		return "", newMalformedError("未找到JSON对象", raw)
	}
	return jsonText, nil
}

// rawQuestion 问题元素的宽松形态，is_mandatory用指针区分缺失与false
type rawQuestion struct {
	Question    string `json:"question"`
	Reason      string `json:"reason"`
	CVEvidence  string `json:"cv_evidence"`
	IsMandatory *bool  `json:"is_mandatory"`
}

// ParseQuestionResponse 解析问题生成阶段的LLM响应
// 无效元素静默丢弃；全部无效时返回ErrNoValidQuestions；超出maxQuestions的有效元素按输入顺序截断
func ParseQuestionResponse(raw string, maxQuestions int) ([]types.GeneratedQuestion, error) {
	jsonText, err := normalizeJSON(raw)
	if err != nil {
		return nil, err
	}

	// 逐元素解码，单个元素类型不符不拖垮整批
	var envelope struct {
		Questions []json.RawMessage `json:"questions"`
	}
	if err := json.Unmarshal([]byte(jsonText), &envelope); err != nil {
		return nil, newMalformedError("JSON解析失败: "+err.Error(), raw)
	}
	if envelope.Questions == nil {
		return nil, newMalformedError("缺少questions数组", raw)
	}

	var questions []types.GeneratedQuestion
	for _, rawElem := range envelope.Questions {
		var q rawQuestion
		if err := json.Unmarshal(rawElem, &q); err != nil {
			continue
		}
		if strings.TrimSpace(q.Question) == "" || q.IsMandatory == nil {
			continue
		}
		questions = append(questions, types.GeneratedQuestion{
			Question:    strings.TrimSpace(q.Question),
			Reason:      q.Reason,
			CVEvidence:  q.CVEvidence,
			IsMandatory: *q.IsMandatory,
		})
		if maxQuestions > 0 && len(questions) >= maxQuestions {
			break
		}
	}

	if len(questions) == 0 {
		return nil, fmt.Errorf("%w: 原始响应片段: %s", ErrNoValidQuestions, truncate(raw, RawExcerptLen))
	}
	return questions, nil
}

// rawScoring 评分结果的宽松形态，score与meetsAllMandatory为必需字段
type rawScoring struct {
	Score               *float64                      `json:"score"`
	MeetsAllMandatory   *bool                         `json:"meetsAllMandatory"`
	MandatoryEvaluation []types.RequirementEvaluation `json:"mandatory_evaluation"`
	OptionalEvaluation  []types.RequirementEvaluation `json:"optional_evaluation"`
	Summary             string                        `json:"summary"`
}

// rawScoringMinimal 仅必需字段，完整形态解析失败时的降级路径
type rawScoringMinimal struct {
	Score             *float64 `json:"score"`
	MeetsAllMandatory *bool    `json:"meetsAllMandatory"`
}

// ParseScoringResponse 解析评分阶段的LLM响应
// score与meetsAllMandatory缺一不可，其余字段缺失时容忍并填默认值
func ParseScoringResponse(raw string) (*types.ScoringResult, error) {
	jsonText, err := normalizeJSON(raw)
	if err != nil {
		return nil, err
	}

	var scoring rawScoring
	if err := json.Unmarshal([]byte(jsonText), &scoring); err != nil {
		// 评估数组形态异常时降级为仅解析必需字段
		var minimal rawScoringMinimal
		if err2 := json.Unmarshal([]byte(jsonText), &minimal); err2 != nil {
			return nil, newMalformedError("JSON解析失败: "+err.Error(), raw)
		}
		scoring = rawScoring{Score: minimal.Score, MeetsAllMandatory: minimal.MeetsAllMandatory}
	}

	if scoring.Score == nil {
		return nil, newMalformedError("缺少score字段", raw)
	}
	if scoring.MeetsAllMandatory == nil {
		return nil, newMalformedError("缺少meetsAllMandatory字段", raw)
	}

	score := int(*scoring.Score)
	if score < 0 {
		score = 0
	} else if score > 100 {
		score = 100
	}

	result := &types.ScoringResult{
		Score:               score,
		MeetsAllMandatory:   *scoring.MeetsAllMandatory,
		MandatoryEvaluation: scoring.MandatoryEvaluation,
		OptionalEvaluation:  scoring.OptionalEvaluation,
		Summary:             scoring.Summary,
	}
	if result.MandatoryEvaluation == nil {
		result.MandatoryEvaluation = []types.RequirementEvaluation{}
	}
	if result.OptionalEvaluation == nil {
		result.OptionalEvaluation = []types.RequirementEvaluation{}
	}
	return result, nil
}
