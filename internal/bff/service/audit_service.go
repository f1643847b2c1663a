package service

import (
	"context"
	"fmt"

	"github.com/xela07ax/radar-bff/internal/audit"
)

// AuditLogProvider описывает контракт для чтения журнала запросов.
type AuditLogProvider interface {
	FetchRecent(ctx context.Context, f audit.Filter) ([]audit.QueryEvent, error)
}

type AuditService struct {
	repo     AuditLogProvider
	maxLimit int
}

func NewAuditService(repo AuditLogProvider, maxLimit int) *AuditService {
	if maxLimit <= 0 {
		maxLimit = 500
	}
	return &AuditService{repo: repo, maxLimit: maxLimit}
}

// FetchLogs: последние события, новые первыми.
func (s *AuditService) FetchLogs(ctx context.Context, f audit.Filter) ([]audit.QueryEvent, error) {
	if f.Limit <= 0 || f.Limit > s.maxLimit {
		f.Limit = s.maxLimit
	}
	logs, err := s.repo.FetchRecent(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("audit_service: failed to fetch logs: %w", err)
	}
	if logs == nil {
		logs = []audit.QueryEvent{}
	}
	return logs, nil
}
