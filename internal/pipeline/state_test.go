package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"ats-agent-go/internal/constants"
)

func TestCandidateTransitionTable(t *testing.T) {
	assert.True(t, canTransition(constants.CandidateStatusCVUploaded, constants.CandidateStatusQuestionsGenerated))
	assert.True(t, canTransition(constants.CandidateStatusQuestionsGenerated, constants.CandidateStatusCompleted))
	assert.True(t, canTransition(constants.CandidateStatusQuestionsGenerated, constants.CandidateStatusRejected))

	// 禁止跳级与回退
	assert.False(t, canTransition(constants.CandidateStatusCVUploaded, constants.CandidateStatusCompleted))
	assert.False(t, canTransition(constants.CandidateStatusCVUploaded, constants.CandidateStatusRejected))
	assert.False(t, canTransition(constants.CandidateStatusQuestionsGenerated, constants.CandidateStatusCVUploaded))
	assert.False(t, canTransition(constants.CandidateStatusCompleted, constants.CandidateStatusRejected))
	assert.False(t, canTransition(constants.CandidateStatusRejected, constants.CandidateStatusCompleted))
}

func TestIsTerminalStatus(t *testing.T) {
	assert.True(t, isTerminalStatus(constants.CandidateStatusCompleted))
	assert.True(t, isTerminalStatus(constants.CandidateStatusRejected))
	assert.False(t, isTerminalStatus(constants.CandidateStatusCVUploaded))
	assert.False(t, isTerminalStatus(constants.CandidateStatusQuestionsGenerated))
}
