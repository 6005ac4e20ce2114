package pipeline_test

import (
	"context"
	"fmt"
	"io"
	"strings"

	"gorm.io/datatypes"

	"ats-agent-go/internal/constants"
	"ats-agent-go/internal/extractor"
	"ats-agent-go/internal/llm"
	"ats-agent-go/internal/storage"
	"ats-agent-go/internal/storage/models"
)

// mockStore 内存版Store实现，状态写入直接作用于map，计数基于真实数据
type mockStore struct {
	processes  map[string]*models.Process
	candidates map[string]*models.Candidate
	questions  map[string][]models.Question

	scoredEvents []*models.OutboxMessage
	closeEvents  []*models.OutboxMessage

	countErr    error
	finalizeErr error
	closeErr    error
}

func newMockStore() *mockStore {
	return &mockStore{
		processes:  make(map[string]*models.Process),
		candidates: make(map[string]*models.Candidate),
		questions:  make(map[string][]models.Question),
	}
}

func (m *mockStore) GetProcessByID(_ context.Context, processID string) (*models.Process, error) {
	p, ok := m.processes[processID]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return p, nil
}

func (m *mockStore) GetCandidateByID(_ context.Context, candidateID string) (*models.Candidate, error) {
	c, ok := m.candidates[candidateID]
	if !ok {
		return nil, storage.ErrNotFound
	}
	copied := *c
	return &copied, nil
}

func (m *mockStore) UpdateCandidateFields(_ context.Context, candidateID string, updates map[string]interface{}) error {
	c, ok := m.candidates[candidateID]
	if !ok {
		return storage.ErrNotFound
	}
	applyCandidateUpdates(c, updates)
	return nil
}

func (m *mockStore) CreateQuestions(_ context.Context, questions []models.Question) error {
	for _, q := range questions {
		m.questions[q.CandidateID] = append(m.questions[q.CandidateID], q)
	}
	return nil
}

func (m *mockStore) ListQuestionsByCandidate(_ context.Context, candidateID string) ([]models.Question, error) {
	return m.questions[candidateID], nil
}

func (m *mockStore) CountQuestionsByCandidate(_ context.Context, candidateID string) (int64, error) {
	return int64(len(m.questions[candidateID])), nil
}

func (m *mockStore) CountCompletedCandidates(_ context.Context, processID string, excludeCandidateID string) (int64, error) {
	if m.countErr != nil {
		return 0, m.countErr
	}
	var count int64
	for id, c := range m.candidates {
		if c.ProcessID == processID && c.Status == constants.CandidateStatusCompleted && id != excludeCandidateID {
			count++
		}
	}
	return count, nil
}

func (m *mockStore) CloseProcess(_ context.Context, processID string, event *models.OutboxMessage) error {
	if m.closeErr != nil {
		return m.closeErr
	}
	p, ok := m.processes[processID]
	if !ok {
		return storage.ErrNotFound
	}
	p.Status = constants.ProcessStatusClosed
	if event != nil {
		m.closeEvents = append(m.closeEvents, event)
	}
	return nil
}

func (m *mockStore) FinalizeCandidateScoring(_ context.Context, candidateID string, updates map[string]interface{}, event *models.OutboxMessage) error {
	if m.finalizeErr != nil {
		return m.finalizeErr
	}
	c, ok := m.candidates[candidateID]
	if !ok {
		return storage.ErrNotFound
	}
	applyCandidateUpdates(c, updates)
	if event != nil {
		m.scoredEvents = append(m.scoredEvents, event)
	}
	return nil
}

func applyCandidateUpdates(c *models.Candidate, updates map[string]interface{}) {
	for column, value := range updates {
		switch column {
		case "status":
			c.Status = value.(string)
		case "score":
			v := value.(int)
			c.Score = &v
		case "scoring_details_json":
			c.ScoringDetailsJSON = value.(datatypes.JSON)
		case "rejection_reason":
			if value == nil {
				c.RejectionReason = nil
			} else {
				v := value.(string)
				c.RejectionReason = &v
			}
		case "scoring_failed":
			c.ScoringFailed = value.(bool)
		case "ai_analysis_failed":
			c.AIAnalysisFailed = value.(bool)
		case "parsing_failed":
			c.ParsingFailed = value.(bool)
		case "parsing_error":
			if value == nil {
				c.ParsingError = nil
			} else {
				v := value.(string)
				c.ParsingError = &v
			}
		case "cv_text":
			if value == nil {
				c.CVText = nil
			} else {
				v := value.(string)
				c.CVText = &v
			}
		}
	}
}

// mockGateway 按调用顺序弹出预设响应
type mockGateway struct {
	responses []string
	errs      []error
	prompts   []string
}

func (m *mockGateway) Complete(_ context.Context, prompt string, _ llm.CompletionOptions) (string, error) {
	m.prompts = append(m.prompts, prompt)
	idx := len(m.prompts) - 1
	if idx < len(m.errs) && m.errs[idx] != nil {
		return "", m.errs[idx]
	}
	if idx < len(m.responses) {
		return m.responses[idx], nil
	}
	return "", fmt.Errorf("mockGateway: 没有预设的响应")
}

// mockExtractor 返回固定文本或错误
type mockExtractor struct {
	text string
	err  error
}

func (m *mockExtractor) Extract(_ context.Context, _ io.Reader, fileType string) (*extractor.Result, error) {
	if m.err != nil {
		return nil, m.err
	}
	return &extractor.Result{Text: m.text, FileType: fileType, CharacterCount: len(m.text)}, nil
}

// mockBlobFetcher 返回固定内容的文件流
type mockBlobFetcher struct {
	content string
	err     error
	fetched []string
}

func (m *mockBlobFetcher) FetchCV(_ context.Context, objectKey string) (io.ReadCloser, error) {
	m.fetched = append(m.fetched, objectKey)
	if m.err != nil {
		return nil, m.err
	}
	return io.NopCloser(strings.NewReader(m.content)), nil
}

func strPtr(s string) *string { return &s }
