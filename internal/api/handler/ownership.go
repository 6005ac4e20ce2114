package handler

import (
	"context"
)

// OwnershipChecker 候选人/流程归属校验
// 两个流水线阶段只在归属校验通过后才会被调用
type OwnershipChecker interface {
	VerifyCandidateOwnership(ctx context.Context, candidateID string, recruiterID string) (bool, error)
	VerifyProcessOwnership(ctx context.Context, processID string, recruiterID string) (bool, error)
}

// PermissiveOwnershipChecker 放行所有请求的默认实现，接入真实权限系统时替换
type PermissiveOwnershipChecker struct{}

func (PermissiveOwnershipChecker) VerifyCandidateOwnership(_ context.Context, _ string, _ string) (bool, error) {
	return true, nil
}

func (PermissiveOwnershipChecker) VerifyProcessOwnership(_ context.Context, _ string, _ string) (bool, error) {
	return true, nil
}
