package pipeline_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ats-agent-go/internal/config"
	"ats-agent-go/internal/constants"
	"ats-agent-go/internal/llm"
	"ats-agent-go/internal/pipeline"
	"ats-agent-go/internal/prompt"
	"ats-agent-go/internal/storage/models"
)

func newAnsweredCandidate(store *mockStore, candidateID string) {
	store.candidates[candidateID] = &models.Candidate{
		CandidateID: candidateID,
		ProcessID:   "proc-1",
		CVText:      strPtr(testCVText),
		Status:      constants.CandidateStatusQuestionsGenerated,
	}
	store.questions[candidateID] = []models.Question{
		{QuestionID: candidateID + "-q1", CandidateID: candidateID, Question: "¿Cuántos años con React?", IsMandatory: true, IsAnswered: true, AnswerText: strPtr("5 años en Acme Corp")},
		{QuestionID: candidateID + "-q2", CandidateID: candidateID, Question: "¿Docker en producción?", IsMandatory: false, IsAnswered: true, AnswerText: strPtr("Sí, desde 2020")},
	}
}

func scoringStageFixture(t *testing.T, gateway *mockGateway, limit *int) (*mockStore, *pipeline.ScoringStage) {
	t.Helper()
	store := newMockStore()
	store.processes["proc-1"] = newTestProcess(t, limit)
	newAnsweredCandidate(store, "cand-1")

	mqCfg := config.RabbitMQConfig{
		DecisionExchange: "candidate.decision.exchange",
		ScoredRoutingKey: "candidate.scored",
		ClosedRoutingKey: "process.closed",
	}
	stage := pipeline.NewScoringStage(
		store,
		gateway,
		prompt.NewBuilder(prompt.DefaultPolicy()),
		config.StageConfig{Temperature: 0.3, MaxTokens: 2000, ResponseFormat: "json"},
		mqCfg,
	)
	return store, stage
}

const approvedResponse = `{
	"score": 85,
	"meetsAllMandatory": true,
	"mandatory_evaluation": [{"requirement": "React", "meets": true, "evidence": "5 años en Acme Corp"}],
	"optional_evaluation": [{"requirement": "Docker", "meets": true, "evidence": "desde 2020"}],
	"summary": "Cumple todos los requisitos indispensables"
}`

func TestScoreCandidateApproved(t *testing.T) {
	gateway := &mockGateway{responses: []string{approvedResponse}}
	store, stage := scoringStageFixture(t, gateway, nil)

	decision, err := stage.ScoreCandidate(context.Background(), "cand-1")
	require.NoError(t, err)

	assert.True(t, decision.Approved)
	assert.Equal(t, 85, decision.Score)
	assert.False(t, decision.LimitReached)
	require.NotNil(t, decision.Details)
	assert.True(t, decision.Details.MeetsAllMandatory)

	candidate := store.candidates["cand-1"]
	assert.Equal(t, constants.CandidateStatusCompleted, candidate.Status)
	require.NotNil(t, candidate.Score)
	assert.Equal(t, 85, *candidate.Score)
	assert.Nil(t, candidate.RejectionReason)
	assert.NotEmpty(t, candidate.ScoringDetailsJSON)
	assert.False(t, candidate.ScoringFailed)

	// 终态写入同时追加决定事件
	require.Len(t, store.scoredEvents, 1)
	assert.Equal(t, constants.EventCandidateScored, store.scoredEvents[0].EventType)
	assert.Equal(t, "cand-1", store.scoredEvents[0].AggregateID)

	// 无名额上限时流程保持active
	assert.Equal(t, constants.ProcessStatusActive, store.processes["proc-1"].Status)
}

func TestScoreCandidateMandatoryUnmet(t *testing.T) {
	gateway := &mockGateway{responses: []string{`{
		"score": 35,
		"meetsAllMandatory": false,
		"mandatory_evaluation": [{"requirement": "React", "meets": false, "evidence": "solo 2 años"}],
		"optional_evaluation": [],
		"summary": "Experiencia en React insuficiente"
	}`}}
	store, stage := scoringStageFixture(t, gateway, nil)

	decision, err := stage.ScoreCandidate(context.Background(), "cand-1")
	require.NoError(t, err)

	assert.False(t, decision.Approved)
	assert.Equal(t, 35, decision.Score)
	assert.Equal(t, "Experiencia en React insuficiente", decision.Reason)

	candidate := store.candidates["cand-1"]
	assert.Equal(t, constants.CandidateStatusRejected, candidate.Status)
	require.NotNil(t, candidate.RejectionReason)
	assert.Equal(t, "Experiencia en React insuficiente", *candidate.RejectionReason)
	require.NotNil(t, candidate.Score)
	assert.Equal(t, 35, *candidate.Score)
	require.Len(t, store.scoredEvents, 1)
}

func TestScoreCandidateMandatoryUnmetFallbackReason(t *testing.T) {
	gateway := &mockGateway{responses: []string{`{"score": 20, "meetsAllMandatory": false}`}}
	store, stage := scoringStageFixture(t, gateway, nil)

	decision, err := stage.ScoreCandidate(context.Background(), "cand-1")
	require.NoError(t, err)

	// summary为空时使用固定的兜底理由
	assert.Equal(t, "El candidato no cumple todos los requisitos indispensables", decision.Reason)
	require.NotNil(t, store.candidates["cand-1"].RejectionReason)
	assert.Equal(t, decision.Reason, *store.candidates["cand-1"].RejectionReason)
}

func TestScoreCandidatePreconditions(t *testing.T) {
	t.Run("候选人不存在", func(t *testing.T) {
		_, stage := scoringStageFixture(t, &mockGateway{}, nil)
		_, err := stage.ScoreCandidate(context.Background(), "no-such")
		assert.ErrorIs(t, err, pipeline.ErrCandidateNotFound)
	})

	t.Run("CV文本缺失", func(t *testing.T) {
		store, stage := scoringStageFixture(t, &mockGateway{}, nil)
		store.candidates["cand-1"].CVText = nil
		_, err := stage.ScoreCandidate(context.Background(), "cand-1")
		assert.ErrorIs(t, err, pipeline.ErrCVTextMissing)
	})

	t.Run("没有任何问题", func(t *testing.T) {
		store, stage := scoringStageFixture(t, &mockGateway{}, nil)
		store.questions["cand-1"] = nil
		_, err := stage.ScoreCandidate(context.Background(), "cand-1")
		assert.ErrorIs(t, err, pipeline.ErrNoQuestions)
	})

	t.Run("存在未回答的问题", func(t *testing.T) {
		store, stage := scoringStageFixture(t, &mockGateway{}, nil)
		store.questions["cand-1"][1].IsAnswered = false
		store.questions["cand-1"][1].AnswerText = nil
		_, err := stage.ScoreCandidate(context.Background(), "cand-1")
		assert.ErrorIs(t, err, pipeline.ErrUnansweredQuestions)
	})

	t.Run("问题尚未生成", func(t *testing.T) {
		store, stage := scoringStageFixture(t, &mockGateway{}, nil)
		store.candidates["cand-1"].Status = constants.CandidateStatusCVUploaded
		_, err := stage.ScoreCandidate(context.Background(), "cand-1")
		assert.ErrorIs(t, err, pipeline.ErrNoQuestions)
	})
}

func TestScoreCandidateTerminalIdempotencyGuard(t *testing.T) {
	gateway := &mockGateway{}
	store, stage := scoringStageFixture(t, gateway, nil)
	store.candidates["cand-1"].Status = constants.CandidateStatusRejected

	_, err := stage.ScoreCandidate(context.Background(), "cand-1")
	assert.ErrorIs(t, err, pipeline.ErrCandidateAlreadyFinalized)
	// 终态候选人不再触发LLM调用
	assert.Empty(t, gateway.prompts)
}

func TestScoreCandidateMalformedResponseNoMutation(t *testing.T) {
	gateway := &mockGateway{responses: []string{"aquí tienes mi evaluación en prosa libre"}}
	store, stage := scoringStageFixture(t, gateway, nil)

	_, err := stage.ScoreCandidate(context.Background(), "cand-1")
	require.Error(t, err)

	var malformed *llm.MalformedResponseError
	require.ErrorAs(t, err, &malformed)
	assert.NotEmpty(t, malformed.RawExcerpt)

	// 候选人状态完全不变
	candidate := store.candidates["cand-1"]
	assert.Equal(t, constants.CandidateStatusQuestionsGenerated, candidate.Status)
	assert.Nil(t, candidate.Score)
	assert.Empty(t, store.scoredEvents)
}

func TestScoreCandidateGatewayFailureSetsFlag(t *testing.T) {
	gateway := &mockGateway{errs: []error{llm.ErrGatewayTimeout}}
	store, stage := scoringStageFixture(t, gateway, nil)

	_, err := stage.ScoreCandidate(context.Background(), "cand-1")
	assert.ErrorIs(t, err, llm.ErrGatewayTimeout)

	candidate := store.candidates["cand-1"]
	assert.True(t, candidate.ScoringFailed)
	assert.Equal(t, constants.CandidateStatusQuestionsGenerated, candidate.Status)
	assert.Nil(t, candidate.Score)
}

func TestScoreCandidateCapacityExactCutoff(t *testing.T) {
	limit := 1
	gateway := &mockGateway{responses: []string{approvedResponse, approvedResponse}}
	store, stage := scoringStageFixture(t, gateway, &limit)
	newAnsweredCandidate(store, "cand-2")

	// 候选人A通过并占满名额，流程自动关闭
	decisionA, err := stage.ScoreCandidate(context.Background(), "cand-1")
	require.NoError(t, err)
	assert.True(t, decisionA.Approved)
	assert.Equal(t, constants.CandidateStatusCompleted, store.candidates["cand-1"].Status)
	assert.Equal(t, constants.ProcessStatusClosed, store.processes["proc-1"].Status)
	require.Len(t, store.closeEvents, 1)
	assert.Equal(t, constants.EventProcessClosed, store.closeEvents[0].EventType)

	// 候选人B在预检阶段被拒绝，带limit_reached标记与固定理由
	decisionB, err := stage.ScoreCandidate(context.Background(), "cand-2")
	require.NoError(t, err)
	assert.False(t, decisionB.Approved)
	assert.True(t, decisionB.LimitReached)
	assert.Equal(t, "El proceso alcanzó el límite máximo de candidatos", decisionB.Reason)
	assert.Equal(t, 85, decisionB.Score)

	candidateB := store.candidates["cand-2"]
	assert.Equal(t, constants.CandidateStatusRejected, candidateB.Status)
	require.NotNil(t, candidateB.Score)
	assert.NotEmpty(t, candidateB.ScoringDetailsJSON)
}

func TestScoreCandidateCloseFailureNonFatal(t *testing.T) {
	limit := 1
	gateway := &mockGateway{responses: []string{approvedResponse}}
	store, stage := scoringStageFixture(t, gateway, &limit)
	store.closeErr = assert.AnError

	decision, err := stage.ScoreCandidate(context.Background(), "cand-1")
	require.NoError(t, err)

	// 关闭流程失败不影响候选人的通过结果
	assert.True(t, decision.Approved)
	assert.Equal(t, constants.CandidateStatusCompleted, store.candidates["cand-1"].Status)
	assert.Equal(t, constants.ProcessStatusActive, store.processes["proc-1"].Status)
}

func TestScoreCandidatePersistsClampedScore(t *testing.T) {
	gateway := &mockGateway{responses: []string{`{"score": 140, "meetsAllMandatory": true}`}}
	store, stage := scoringStageFixture(t, gateway, nil)

	decision, err := stage.ScoreCandidate(context.Background(), "cand-1")
	require.NoError(t, err)
	assert.Equal(t, 100, decision.Score)
	require.NotNil(t, store.candidates["cand-1"].Score)
	assert.Equal(t, 100, *store.candidates["cand-1"].Score)
}
