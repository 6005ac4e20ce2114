package constants

import "time"

// 候选人状态机：cv_uploaded → questions_generated → completed | rejected
const (
	CandidateStatusCVUploaded         = "cv_uploaded"
	CandidateStatusQuestionsGenerated = "questions_generated"
	CandidateStatusCompleted          = "completed"
	CandidateStatusRejected           = "rejected"
)

// 招聘流程状态
const (
	ProcessStatusActive = "active"
	ProcessStatusPaused = "paused"
	ProcessStatusClosed = "closed"
)

// Outbox事件类型
const (
	EventCandidateScored = "candidate.scored"
	EventProcessClosed   = "process.closed"
)

// Redis相关常量
const (
	CVFileMD5SetKey = "candidates:cv_md5s" // 已上传CV文件MD5集合，用于去重
	CVMD5ExpireDays = 30                   // MD5记录默认过期天数
)

// DefaultMD5Expire 返回CV文件MD5记录的默认过期时间
func DefaultMD5Expire() time.Duration {
	return CVMD5ExpireDays * 24 * time.Hour
}
