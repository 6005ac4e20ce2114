package extractor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"code.sajari.com/docconv"
	"github.com/cloudwego/eino-ext/components/document/parser/pdf"
	einoParser "github.com/cloudwego/eino/components/document/parser"

	"ats-agent-go/internal/logger"
)

var (
	// ErrUnsupportedFormat 文件格式不在支持范围内（仅PDF与DOCX）
	ErrUnsupportedFormat = errors.New("不支持的CV文件格式")
	// ErrEmptyDocument 提取出的文本过短，不足以进行评估
	ErrEmptyDocument = errors.New("CV文本内容为空或过短")
)

// Result CV文本提取结果
type Result struct {
	Text           string
	FileType       string
	CharacterCount int
}

// DecodeFunc 将单一格式的文件流解码为纯文本
type DecodeFunc func(ctx context.Context, reader io.Reader) (string, error)

// Extractor 按文件类型分发的CV文本提取器
type Extractor struct {
	minChars int
	timeout  time.Duration
	decoders map[string]DecodeFunc
}

// Option 提取器的配置选项
type Option func(*Extractor)

// WithMinChars 配置可用文本的最小字符数
func WithMinChars(n int) Option {
	return func(e *Extractor) {
		if n > 0 {
			e.minChars = n
		}
	}
}

// WithTimeout 配置单次提取的超时时间
func WithTimeout(d time.Duration) Option {
	return func(e *Extractor) {
		if d > 0 {
			e.timeout = d
		}
	}
}

// WithDecoder 覆盖指定文件类型的解码函数，测试时注入假实现
func WithDecoder(fileType string, decode DecodeFunc) Option {
	return func(e *Extractor) {
		e.decoders[strings.ToLower(fileType)] = decode
	}
}

// New 创建提取器，默认支持pdf与docx
func New(ctx context.Context, options ...Option) (*Extractor, error) {
	pdfParser, err := pdf.NewPDFParser(ctx, &pdf.Config{
		ToPages: false, // 获取整个文档的连续文本
	})
	if err != nil {
		return nil, fmt.Errorf("创建PDF解析器失败: %w", err)
	}

	e := &Extractor{
		minChars: 50,
		timeout:  30 * time.Second,
		decoders: map[string]DecodeFunc{
			"pdf":  pdfDecoder(pdfParser),
			"docx": docxDecoder,
		},
	}

	for _, option := range options {
		option(e)
	}

	return e, nil
}

// SupportedTypes 返回当前支持的文件类型列表
func (e *Extractor) SupportedTypes() []string {
	types := make([]string, 0, len(e.decoders))
	for t := range e.decoders {
		types = append(types, t)
	}
	return types
}

// Extract 从文件流中提取纯文本
// fileType 为不带点的小写扩展名；文本短于最小长度时返回ErrEmptyDocument
func (e *Extractor) Extract(ctx context.Context, reader io.Reader, fileType string) (*Result, error) {
	fileType = strings.ToLower(strings.TrimPrefix(fileType, "."))

	decode, ok := e.decoders[fileType]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, fileType)
	}

	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	startTime := time.Now()
	text, err := decode(ctx, reader)
	if err != nil {
		return nil, fmt.Errorf("提取%s文本失败: %w", fileType, err)
	}

	text = strings.TrimSpace(text)
	if len(text) < e.minChars {
		return nil, fmt.Errorf("%w: 提取到 %d 个字符，最少需要 %d 个", ErrEmptyDocument, len(text), e.minChars)
	}

	logger.Debug().
		Str("file_type", fileType).
		Int("char_count", len(text)).
		Dur("duration", time.Since(startTime)).
		Msg("CV文本提取完成")

	return &Result{
		Text:           text,
		FileType:       fileType,
		CharacterCount: len(text),
	}, nil
}

// pdfDecoder 基于eino PDF解析器构造解码函数
func pdfDecoder(p *pdf.PDFParser) DecodeFunc {
	return func(ctx context.Context, reader io.Reader) (string, error) {
		docs, err := p.Parse(ctx, reader,
			einoParser.WithURI("candidate-cv.pdf"),
		)
		if err != nil {
			return "", err
		}
		if len(docs) == 0 {
			return "", fmt.Errorf("PDF解析器未返回任何文档")
		}

		// 合并所有文档的内容，以防返回多个
		var builder strings.Builder
		for i, doc := range docs {
			if i > 0 {
				builder.WriteString("\n\n")
			}
			builder.WriteString(doc.Content)
		}
		return builder.String(), nil
	}
}

// docxDecoder 使用docconv解码DOCX文件
func docxDecoder(_ context.Context, reader io.Reader) (string, error) {
	text, _, err := docconv.ConvertDocx(reader)
	if err != nil {
		return "", err
	}
	return text, nil
}
