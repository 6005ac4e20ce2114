package handler

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"ats-agent-go/internal/extractor"
	"ats-agent-go/internal/llm"
	"ats-agent-go/internal/pipeline"
)

func TestMapErrorStatusCodes(t *testing.T) {
	cases := []struct {
		name       string
		err        error
		wantStatus int
	}{
		{"候选人不存在", pipeline.ErrCandidateNotFound, 404},
		{"流程不存在", pipeline.ErrProcessNotFound, 404},
		{"重复生成问题", pipeline.ErrQuestionsAlreadyGenerated, 409},
		{"候选人已终态", pipeline.ErrCandidateAlreadyFinalized, 409},
		{"CV文本缺失", pipeline.ErrCVTextMissing, 400},
		{"没有问题", pipeline.ErrNoQuestions, 400},
		{"未回答的问题", pipeline.ErrUnansweredQuestions, 400},
		{"不支持的格式", extractor.ErrUnsupportedFormat, 400},
		{"文档过短", extractor.ErrEmptyDocument, 400},
		{"参数校验失败", fmt.Errorf("%w: title不能为空", ErrValidation), 400},
		{"归属校验未通过", ErrOwnershipDenied, 403},
		{"无有效问题", fmt.Errorf("包装: %w", llm.ErrNoValidQuestions), 502},
		{"网关超时", llm.ErrGatewayTimeout, 502},
		{"网关错误", &llm.GatewayError{Message: "提供方返回状态 500"}, 502},
		{"未知错误", fmt.Errorf("algo salió mal"), 500},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			status, body := MapError(tc.err)
			assert.Equal(t, tc.wantStatus, status)
			assert.NotEmpty(t, body.Error)
		})
	}
}

func TestMapErrorStageErrorUnwrapping(t *testing.T) {
	// 流水线包装不改变映射结果
	wrapped := &pipeline.StageError{Stage: "scoring", Err: llm.ErrGatewayTimeout}
	status, body := MapError(wrapped)
	assert.Equal(t, 502, status)
	assert.NotContains(t, body.Error, "timeout")
}

func TestMapErrorMalformedResponseCarriesDebugExcerpt(t *testing.T) {
	malformed := &llm.MalformedResponseError{
		Reason:     "未找到JSON对象",
		RawExcerpt: "la respuesta del modelo en prosa...",
	}
	status, body := MapError(&pipeline.StageError{Stage: "scoring", Err: malformed})
	assert.Equal(t, 502, status)
	assert.Equal(t, "la respuesta del modelo en prosa...", body.Debug)
	// 对外消息不暴露原始响应
	assert.NotContains(t, body.Error, "prosa")
}

func TestMapErrorGatewayErrorHidesProviderDetail(t *testing.T) {
	gatewayErr := &llm.GatewayError{Message: "提供方错误: rate_limit"}
	status, body := MapError(gatewayErr)
	assert.Equal(t, 502, status)
	assert.NotContains(t, body.Error, "rate_limit")
	assert.Empty(t, body.Debug)
}
