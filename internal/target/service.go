// Package target はターゲットリストの取り込みとクールダウン状態の照会を提供する。
package target

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/senderpool/internal/cooldown"
	"github.com/hitoshi/senderpool/internal/model"
	"github.com/hitoshi/senderpool/internal/repository"
)

// Registry はクールダウンエンジンのうち照会に使う部分。
type Registry interface {
	Lookup(ctx context.Context, targetIDs []string) (map[string]*model.RegistryEntry, error)
	Evaluate(ctx context.Context, targetID string, kind model.ActionType, identityID int64, now time.Time) (cooldown.Decision, error)
	IsAvailableForRedistribution(entry *model.RegistryEntry, kind model.ActionType, candidates []int64, now time.Time) bool
}

// Availability はターゲット一覧の絞り込み条件。
type Availability string

const (
	AvailabilityAll       Availability = ""
	AvailabilityAvailable Availability = "available"
	AvailabilityBlocked   Availability = "blocked"
)

// ImportEntry は取り込むターゲット1件。
type ImportEntry struct {
	URL      string
	Name     string
	Headline string
	Company  string
}

// ImportInput はリスト取り込みの入力。
type ImportInput struct {
	Name        string
	Description string
	Targets     []ImportEntry
}

// ImportResult はリスト取り込みの結果。
type ImportResult struct {
	List       *model.TargetList
	Duplicates int
	Invalid    []string // 正規化できなかったURL
}

// Status はターゲットのクールダウン状態。
type Status struct {
	Target    model.Target
	Entry     *model.RegistryEntry // 未接触の場合はnil
	Available bool
	Remaining time.Duration
}

// Service はターゲット管理のサービス層。
type Service struct {
	targets    repository.TargetRepository
	identities repository.IdentityRepository
	registry   Registry
	now        func() time.Time
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(targets repository.TargetRepository, identities repository.IdentityRepository, registry Registry) *Service {
	return &Service{
		targets:    targets,
		identities: identities,
		registry:   registry,
		now:        time.Now,
	}
}

// ImportList はターゲットを正規化・重複除去して登録し、リストを作成する。
// 正規化できないURLは取り込まずに結果へ含める。有効なURLが1件もない場合はエラー。
func (s *Service) ImportList(ctx context.Context, in ImportInput) (*ImportResult, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, model.NewInvalidRequestError("リスト名は必須です")
	}

	result := &ImportResult{}
	seen := make(map[string]bool, len(in.Targets))
	var targets []model.Target
	for _, e := range in.Targets {
		id, err := model.CanonicalTargetID(e.URL)
		if err != nil {
			result.Invalid = append(result.Invalid, e.URL)
			continue
		}
		if seen[id] {
			result.Duplicates++
			continue
		}
		seen[id] = true
		targets = append(targets, model.Target{
			ID:       id,
			Name:     strings.TrimSpace(e.Name),
			Headline: strings.TrimSpace(e.Headline),
			Company:  strings.TrimSpace(e.Company),
		})
	}
	if len(targets) == 0 {
		return nil, model.NewInvalidTargetError("取り込み可能なURLがありません")
	}

	if err := s.targets.UpsertTargets(ctx, targets); err != nil {
		return nil, err
	}

	ids := make([]string, len(targets))
	for i, t := range targets {
		ids[i] = t.ID
	}
	list := &model.TargetList{
		ID:          uuid.NewString(),
		Name:        name,
		Description: strings.TrimSpace(in.Description),
		CreatedAt:   s.now(),
	}
	if err := s.targets.CreateList(ctx, list, ids); err != nil {
		return nil, err
	}
	result.List = list
	return result, nil
}

// GetList はリストとそのメンバーを返す。
func (s *Service) GetList(ctx context.Context, id string) (*model.TargetList, []model.Target, error) {
	list, err := s.targets.FindList(ctx, id)
	if err != nil {
		return nil, nil, fmt.Errorf("リストの取得に失敗しました: %w", err)
	}
	if list == nil {
		return nil, nil, model.NewListNotFoundError(id)
	}
	members, err := s.targets.ListMembers(ctx, id)
	if err != nil {
		return nil, nil, fmt.Errorf("リストメンバーの取得に失敗しました: %w", err)
	}
	return list, members, nil
}

// ListLists は全リストを返す。
func (s *Service) ListLists(ctx context.Context) ([]*model.TargetList, error) {
	return s.targets.ListLists(ctx)
}

// Query は登録済みターゲットを kind に対するクールダウン状態付きで返す。
// 実行可能かは有効な全アイデンティティを候補として判定する。
func (s *Service) Query(ctx context.Context, kind model.ActionType, filter Availability, limit int) ([]Status, error) {
	if !kind.Valid() {
		return nil, model.NewInvalidActionTypeError(string(kind))
	}
	if filter != AvailabilityAll && filter != AvailabilityAvailable && filter != AvailabilityBlocked {
		return nil, model.NewInvalidRequestError(fmt.Sprintf("status には available か blocked を指定してください: %s", filter))
	}

	targets, err := s.targets.ListTargets(ctx, limit)
	if err != nil {
		return nil, err
	}
	ids := make([]string, len(targets))
	for i, t := range targets {
		ids[i] = t.ID
	}
	entries, err := s.registry.Lookup(ctx, ids)
	if err != nil {
		return nil, err
	}
	candidates, err := s.activeIdentityIDs(ctx)
	if err != nil {
		return nil, err
	}

	now := s.now()
	out := make([]Status, 0, len(targets))
	for _, t := range targets {
		entry := entries[t.ID]
		st := Status{Target: t, Entry: entry}
		if len(candidates) > 0 {
			st.Available = s.registry.IsAvailableForRedistribution(entry, kind, candidates, now)
		} else {
			// 有効なアイデンティティがない場合はクールダウン期間のみで判定する
			st.Available = entry == nil || !entry.InCooldown(now)
		}
		if entry != nil {
			st.Remaining = entry.Remaining(now)
		}
		switch {
		case filter == AvailabilityAvailable && !st.Available:
			continue
		case filter == AvailabilityBlocked && st.Available:
			continue
		}
		out = append(out, st)
	}
	return out, nil
}

// Evaluate は identityID が rawTarget に kind を実行してよいかを判定する。
// レジストリは更新しない。
func (s *Service) Evaluate(ctx context.Context, rawTarget string, identityID int64, kind model.ActionType) (cooldown.Decision, error) {
	if !kind.Valid() {
		return cooldown.Decision{}, model.NewInvalidActionTypeError(string(kind))
	}
	targetID, err := model.CanonicalTargetID(rawTarget)
	if err != nil {
		return cooldown.Decision{}, err
	}
	identity, err := s.identities.FindByID(ctx, identityID)
	if err != nil {
		return cooldown.Decision{}, fmt.Errorf("アイデンティティの取得に失敗しました: %w", err)
	}
	if identity == nil {
		return cooldown.Decision{}, model.NewIdentityNotFoundError(identityID)
	}
	return s.registry.Evaluate(ctx, targetID, kind, identityID, s.now())
}

func (s *Service) activeIdentityIDs(ctx context.Context) ([]int64, error) {
	identities, err := s.identities.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("アイデンティティ一覧の取得に失敗しました: %w", err)
	}
	var ids []int64
	for _, i := range identities {
		if i.IsActive() {
			ids = append(ids, i.ID)
		}
	}
	return ids, nil
}
