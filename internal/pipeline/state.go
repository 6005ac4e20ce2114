package pipeline

import "ats-agent-go/internal/constants"

// candidateTransitions 候选人状态机的显式转换表
// cv_uploaded → questions_generated → completed | rejected
var candidateTransitions = map[string][]string{
	constants.CandidateStatusCVUploaded: {
		constants.CandidateStatusQuestionsGenerated,
	},
	constants.CandidateStatusQuestionsGenerated: {
		constants.CandidateStatusCompleted,
		constants.CandidateStatusRejected,
	},
}

// canTransition 检查状态转换是否合法
func canTransition(from, to string) bool {
	for _, allowed := range candidateTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// isTerminalStatus 候选人是否已处于终态
func isTerminalStatus(status string) bool {
	return status == constants.CandidateStatusCompleted || status == constants.CandidateStatusRejected
}
