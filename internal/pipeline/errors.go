package pipeline

import (
	"errors"
	"fmt"
)

// 前置条件类错误，均为4xx语义：不变更候选人状态，调用方修正后可安全重试
var (
	ErrCandidateNotFound         = errors.New("候选人不存在")
	ErrProcessNotFound           = errors.New("招聘流程不存在")
	ErrCVTextMissing             = errors.New("候选人CV文本缺失")
	ErrNoQuestions               = errors.New("候选人没有任何甄别问题")
	ErrUnansweredQuestions       = errors.New("存在未回答的甄别问题")
	ErrQuestionsAlreadyGenerated = errors.New("候选人已生成过甄别问题")
	ErrCandidateAlreadyFinalized = errors.New("候选人已处于终态")
)

// StageError 流水线阶段失败的结构化包装，标记失败发生的阶段
type StageError struct {
	Stage string // "question" 或 "scoring"
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s阶段失败: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}
