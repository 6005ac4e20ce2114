package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"ats-agent-go/internal/config"
	"ats-agent-go/internal/logger"
)

// ErrGatewayTimeout LLM调用超过硬超时上限
var ErrGatewayTimeout = errors.New("LLM网关调用超时")

// GatewayError LLM提供方或传输层错误，保留底层消息用于日志，不直接暴露给调用方
type GatewayError struct {
	Message string
	Err     error
}

func (e *GatewayError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("LLM网关错误: %s: %v", e.Message, e.Err)
	}
	return fmt.Sprintf("LLM网关错误: %s", e.Message)
}

func (e *GatewayError) Unwrap() error {
	return e.Err
}

// CompletionOptions 单次补全调用的生成参数
type CompletionOptions struct {
	Temperature    float64
	MaxTokens      int
	ResponseFormat string // "json" 时请求json_object输出
}

// Gateway OpenAI兼容chat completions端点的客户端
// 每次调用带固定上限的硬超时，不做自动重试，需要重试的调用方自行包装
type Gateway struct {
	apiKey     string
	apiURL     string
	model      string
	timeout    time.Duration
	httpClient *http.Client
}

// GatewayOption 网关配置选项
type GatewayOption func(*Gateway)

// WithHTTPClient 覆盖HTTP客户端，测试时注入httptest服务器的客户端
func WithHTTPClient(client *http.Client) GatewayOption {
	return func(g *Gateway) {
		g.httpClient = client
	}
}

// NewGateway 创建LLM网关
func NewGateway(cfg *config.LLMConfig, options ...GatewayOption) (*Gateway, error) {
	if cfg == nil {
		return nil, fmt.Errorf("LLM配置不能为空")
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("LLM API Key不能为空")
	}
	if cfg.APIURL == "" {
		return nil, fmt.Errorf("LLM API URL不能为空")
	}

	timeout := 30 * time.Second
	if cfg.TimeoutSeconds > 0 {
		timeout = time.Duration(cfg.TimeoutSeconds) * time.Second
	}

	g := &Gateway{
		apiKey:  cfg.APIKey,
		apiURL:  cfg.APIURL,
		model:   cfg.Model,
		timeout: timeout,
		httpClient: &http.Client{
			Timeout: timeout + 5*time.Second, // 兜底，正常情况下context先超时
		},
	}

	for _, option := range options {
		option(g)
	}

	return g, nil
}

// chatCompletionRequest chat completions请求体
type chatCompletionRequest struct {
	Model          string          `json:"model"`
	Messages       []chatMessage   `json:"messages"`
	Temperature    float64         `json:"temperature"`
	MaxTokens      int             `json:"max_tokens,omitempty"`
	ResponseFormat *responseFormat `json:"response_format,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type responseFormat struct {
	Type string `json:"type"`
}

// chatCompletionResponse chat completions响应体
type chatCompletionResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error,omitempty"`
}

// Complete 执行一次补全调用，返回模型生成的原始文本
func (g *Gateway) Complete(ctx context.Context, prompt string, opts CompletionOptions) (string, error) {
	reqBody := chatCompletionRequest{
		Model: g.model,
		Messages: []chatMessage{
			{Role: "user", Content: prompt},
		},
		Temperature: opts.Temperature,
		MaxTokens:   opts.MaxTokens,
	}
	if opts.ResponseFormat == "json" {
		reqBody.ResponseFormat = &responseFormat{Type: "json_object"}
	}

	payload, err := json.Marshal(reqBody)
	if err != nil {
		return "", &GatewayError{Message: "序列化请求体失败", Err: err}
	}

	// 每次调用固定上限的硬超时
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.apiURL, bytes.NewReader(payload))
	if err != nil {
		return "", &GatewayError{Message: "构造HTTP请求失败", Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+g.apiKey)

	startTime := time.Now()
	resp, err := g.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			logger.Warn().Dur("duration", time.Since(startTime)).Msg("LLM调用超时")
			return "", fmt.Errorf("%w: 超过%s上限", ErrGatewayTimeout, g.timeout)
		}
		return "", &GatewayError{Message: "HTTP请求失败", Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", &GatewayError{Message: "读取响应体失败", Err: err}
	}

	if resp.StatusCode != http.StatusOK {
		// 原始提供方错误只进日志，不透传给最终调用方
		logger.Error().
			Int("status_code", resp.StatusCode).
			Str("body", truncate(string(body), 500)).
			Msg("LLM提供方返回非200状态")
		return "", &GatewayError{Message: fmt.Sprintf("提供方返回状态 %d", resp.StatusCode)}
	}

	var completion chatCompletionResponse
	if err := json.Unmarshal(body, &completion); err != nil {
		return "", &GatewayError{Message: "解析响应体失败", Err: err}
	}
	if completion.Error != nil {
		logger.Error().Str("provider_error", completion.Error.Message).Msg("LLM提供方返回错误")
		return "", &GatewayError{Message: fmt.Sprintf("提供方错误: %s", completion.Error.Type)}
	}
	if len(completion.Choices) == 0 {
		return "", &GatewayError{Message: "提供方未返回任何choices"}
	}

	logger.Debug().
		Dur("duration", time.Since(startTime)).
		Int("response_chars", len(completion.Choices[0].Message.Content)).
		Msg("LLM调用完成")

	return completion.Choices[0].Message.Content, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
