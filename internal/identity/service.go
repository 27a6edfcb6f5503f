// Package identity はアイデンティティ管理のドメインロジックを提供する。
// アイデンティティは削除せず、一時停止のみ行う。
package identity

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/hitoshi/senderpool/internal/model"
	"github.com/hitoshi/senderpool/internal/repository"
)

// CounterReader は当日のアクション数を返す。
type CounterReader interface {
	TodayCounters(ctx context.Context, identityID int64, now time.Time) (model.IdentityCounters, error)
}

// Info はアイデンティティと当日のアクション数を結合したもの。
type Info struct {
	Identity *model.Identity
	Today    model.IdentityCounters
}

// CreateInput はアイデンティティ作成の入力。
type CreateInput struct {
	Name           string
	Email          string
	BrowserProfile string        // 空の場合は名前から生成する
	Quotas         *model.Quotas // nil の場合はデフォルト上限
}

// Service はアイデンティティ管理のサービス層。
type Service struct {
	repo          repository.IdentityRepository
	counters      CounterReader
	maxIdentities int
	defaultQuotas model.Quotas
	now           func() time.Time
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(repo repository.IdentityRepository, counters CounterReader, maxIdentities int, defaultQuotas model.Quotas) *Service {
	return &Service{
		repo:          repo,
		counters:      counters,
		maxIdentities: maxIdentities,
		defaultQuotas: defaultQuotas,
		now:           time.Now,
	}
}

var profileUnsafe = regexp.MustCompile(`[^a-z0-9_-]+`)

// Create はアイデンティティを作成する。登録数がmaxIdentitiesに達している場合はエラー。
func (s *Service) Create(ctx context.Context, in CreateInput) (*model.Identity, error) {
	name := strings.TrimSpace(in.Name)
	email := strings.ToLower(strings.TrimSpace(in.Email))
	if name == "" {
		return nil, model.NewInvalidRequestError("名前は必須です")
	}
	if email == "" || !strings.Contains(email, "@") {
		return nil, model.NewInvalidRequestError("メールアドレスが不正です")
	}

	quotas := s.defaultQuotas
	if in.Quotas != nil {
		quotas = *in.Quotas
	}
	if err := ValidateQuotas(quotas); err != nil {
		return nil, err
	}

	existing, err := s.repo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("アイデンティティ一覧の取得に失敗しました: %w", err)
	}
	if len(existing) >= s.maxIdentities {
		return nil, model.NewIdentityLimitError(s.maxIdentities)
	}
	for _, e := range existing {
		if e.Email == email {
			return nil, model.NewInvalidRequestError("このメールアドレスは登録済みです")
		}
	}

	profile := strings.TrimSpace(in.BrowserProfile)
	if profile == "" {
		profile = strings.Trim(profileUnsafe.ReplaceAllString(strings.ToLower(name), "-"), "-")
	}

	now := s.now()
	identity := &model.Identity{
		Name:           name,
		Email:          email,
		BrowserProfile: profile,
		Status:         model.IdentityStatusActive,
		Quotas:         quotas,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := s.repo.Create(ctx, identity); err != nil {
		return nil, err
	}
	return identity, nil
}

// Get はアイデンティティを当日のアクション数付きで返す。
func (s *Service) Get(ctx context.Context, id int64) (*Info, error) {
	identity, err := s.find(ctx, id)
	if err != nil {
		return nil, err
	}
	today, err := s.counters.TodayCounters(ctx, id, s.now())
	if err != nil {
		return nil, fmt.Errorf("当日のアクション数の取得に失敗しました: %w", err)
	}
	return &Info{Identity: identity, Today: today}, nil
}

// List は全アイデンティティを当日のアクション数付きでID昇順に返す。
func (s *Service) List(ctx context.Context) ([]Info, error) {
	identities, err := s.repo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("アイデンティティ一覧の取得に失敗しました: %w", err)
	}

	now := s.now()
	infos := make([]Info, len(identities))
	for i, identity := range identities {
		today, err := s.counters.TodayCounters(ctx, identity.ID, now)
		if err != nil {
			return nil, fmt.Errorf("当日のアクション数の取得に失敗しました: %w", err)
		}
		infos[i] = Info{Identity: identity, Today: today}
	}
	return infos, nil
}

// SetStatus はアイデンティティの状態を変更する。
func (s *Service) SetStatus(ctx context.Context, id int64, status model.IdentityStatus) (*model.Identity, error) {
	if !model.ValidIdentityStatus(status) {
		return nil, model.NewInvalidIdentityStatusError(string(status))
	}
	identity, err := s.find(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.repo.UpdateStatus(ctx, id, status); err != nil {
		return nil, err
	}
	identity.Status = status
	return identity, nil
}

// UpdateQuotas はアイデンティティの上限を変更する。
func (s *Service) UpdateQuotas(ctx context.Context, id int64, quotas model.Quotas) (*model.Identity, error) {
	if err := ValidateQuotas(quotas); err != nil {
		return nil, err
	}
	identity, err := s.find(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.repo.UpdateQuotas(ctx, id, quotas); err != nil {
		return nil, err
	}
	identity.Quotas = quotas
	return identity, nil
}

// ValidateQuotas は上限が0以上で、日次が週次を超えないことを確認する。
func ValidateQuotas(q model.Quotas) error {
	for _, a := range model.AllActionTypes() {
		v := q.For(a)
		if v.Daily < 0 || v.Weekly < 0 {
			return model.NewInvalidQuotaError(fmt.Sprintf("%s の上限は0以上である必要があります", a))
		}
		if v.Daily > v.Weekly {
			return model.NewInvalidQuotaError(fmt.Sprintf("%s の日次上限が週次上限を超えています", a))
		}
	}
	return nil
}

func (s *Service) find(ctx context.Context, id int64) (*model.Identity, error) {
	identity, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("アイデンティティの取得に失敗しました: %w", err)
	}
	if identity == nil {
		return nil, model.NewIdentityNotFoundError(id)
	}
	return identity, nil
}
