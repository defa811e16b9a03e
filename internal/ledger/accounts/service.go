package accounts

import (
	"context"

	"github.com/pamoja-sacco/pamoja-sacco/internal/shared"
)

type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

func (s *Service) List(ctx context.Context) ([]Account, error) {
	return s.repo.List(ctx)
}

func (s *Service) GetByCode(ctx context.Context, code string) (Account, error) {
	return s.repo.GetByCode(ctx, code)
}

func (s *Service) Create(ctx context.Context, acc Account) (Account, error) {
	if acc.Code == "" {
		return Account{}, shared.Validationf("account code required")
	}
	if acc.Name == "" {
		return Account{}, shared.Validationf("account name required")
	}
	if !acc.Type.Valid() {
		return Account{}, shared.Validationf("unknown account type %q", acc.Type)
	}
	return s.repo.Create(ctx, acc)
}

// EnsurePostable rejects postings against header or inactive accounts.
func EnsurePostable(acc Account) error {
	if acc.IsHeader {
		return shared.Validationf("account %s is a header and cannot hold postings", acc.Code)
	}
	if !acc.IsActive {
		return shared.Validationf("account %s is inactive", acc.Code)
	}
	return nil
}
