package repository

import (
	"context"
	"fmt"
	"os"
	"strings"

	"backoffice/backend/internal/policy/domain"
)

// FileRepository serves a single Rego module read once from disk (POLICY_FILE).
type FileRepository struct {
	policy *domain.Policy
}

// NewFileRepository reads path. An empty path yields a repository with no policies.
func NewFileRepository(path string) (*FileRepository, error) {
	if strings.TrimSpace(path) == "" {
		return &FileRepository{}, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("policy: read %s: %w", path, err)
	}
	return &FileRepository{policy: &domain.Policy{ID: path, Rules: string(b), Enabled: true}}, nil
}

// GetEnabledPolicies returns the loaded module, if any.
func (r *FileRepository) GetEnabledPolicies(ctx context.Context) ([]*domain.Policy, error) {
	if r.policy == nil {
		return nil, nil
	}
	return []*domain.Policy{r.policy}, nil
}
