// Package campaign はキャンペーンのライフサイクル管理を提供する。
// 開始時にリード配分を行い、結果をアクションキューに登録する。
package campaign

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/senderpool/internal/distribution"
	"github.com/hitoshi/senderpool/internal/model"
	"github.com/hitoshi/senderpool/internal/repository"
)

// Distributor はターゲットをアイデンティティ間に配分するインターフェース。
type Distributor interface {
	Distribute(ctx context.Context, targets []model.Target, kind model.ActionType, identityIDs []int64) (*distribution.Result, error)
}

// CreateInput はキャンペーン作成の入力。
type CreateInput struct {
	Name        string
	ListID      string
	ActionType  model.ActionType
	IdentityIDs []int64
}

// StartResult はキャンペーン開始の結果。
type StartResult struct {
	Campaign    *model.Campaign
	Queued      int
	Excluded    []model.Target
	PerIdentity map[int64]int
}

// Service はキャンペーン管理のサービス層。
type Service struct {
	campaigns     repository.CampaignRepository
	queue         repository.QueueRepository
	targets       repository.TargetRepository
	identities    repository.IdentityRepository
	distributor   Distributor
	maxIdentities int
	logger        *slog.Logger
	now           func() time.Time
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(
	campaigns repository.CampaignRepository,
	queue repository.QueueRepository,
	targets repository.TargetRepository,
	identities repository.IdentityRepository,
	distributor Distributor,
	maxIdentities int,
	logger *slog.Logger,
) *Service {
	return &Service{
		campaigns:     campaigns,
		queue:         queue,
		targets:       targets,
		identities:    identities,
		distributor:   distributor,
		maxIdentities: maxIdentities,
		logger:        logger,
		now:           time.Now,
	}
}

// Create はdraft状態のキャンペーンを作成する。
// アイデンティティは選択順を保ったまま重複を除去する。
func (s *Service) Create(ctx context.Context, in CreateInput) (*model.Campaign, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, model.NewInvalidRequestError("キャンペーン名は必須です")
	}
	if !in.ActionType.Valid() {
		return nil, model.NewInvalidActionTypeError(string(in.ActionType))
	}

	ids := dedupe(in.IdentityIDs)
	if len(ids) == 0 {
		return nil, model.NewNoIdentitiesSelectedError()
	}
	if len(ids) > s.maxIdentities {
		return nil, model.NewIdentityLimitError(s.maxIdentities)
	}
	for _, id := range ids {
		identity, err := s.identities.FindByID(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("アイデンティティの取得に失敗しました: %w", err)
		}
		if identity == nil {
			return nil, model.NewIdentityNotFoundError(id)
		}
	}

	list, err := s.targets.FindList(ctx, in.ListID)
	if err != nil {
		return nil, fmt.Errorf("リストの取得に失敗しました: %w", err)
	}
	if list == nil {
		return nil, model.NewListNotFoundError(in.ListID)
	}

	now := s.now()
	c := &model.Campaign{
		ID:          uuid.NewString(),
		Name:        name,
		ListID:      list.ID,
		ActionType:  in.ActionType,
		IdentityIDs: ids,
		Status:      model.CampaignStatusDraft,
		Counters:    model.CampaignCounters{Total: list.TargetCount},
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.campaigns.Create(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

// Start はリストのターゲットを配分し、キュー項目を登録してキャンペーンをrunningにする。
// 配分対象が0件の場合はそのままcompletedにする。
func (s *Service) Start(ctx context.Context, id string) (*StartResult, error) {
	c, err := s.find(ctx, id)
	if err != nil {
		return nil, err
	}
	if c.Status != model.CampaignStatusDraft {
		return nil, model.NewInvalidCampaignStateError(c.Status, "start")
	}

	members, err := s.targets.ListMembers(ctx, c.ListID)
	if err != nil {
		return nil, fmt.Errorf("リストメンバーの取得に失敗しました: %w", err)
	}
	res, err := s.distributor.Distribute(ctx, members, c.ActionType, c.IdentityIDs)
	if err != nil {
		return nil, err
	}

	now := s.now()
	items := res.QueueItems(c.ID, c.ActionType, now)
	if err := s.campaigns.Launch(ctx, c.ID, items, len(res.Excluded), now); err != nil {
		return nil, err
	}
	if len(items) == 0 {
		if _, err := s.campaigns.CompleteIfDrained(ctx, c.ID, now); err != nil {
			return nil, err
		}
	}

	perIdentity := make(map[int64]int, len(res.Order))
	for _, identityID := range res.Order {
		perIdentity[identityID] = len(res.Assignments[identityID])
	}

	s.logger.Info("キャンペーンを開始しました",
		slog.String("campaign_id", c.ID),
		slog.String("action", c.ActionType.String()),
		slog.Int("queued", len(items)),
		slog.Int("in_cooldown", len(res.Excluded)),
	)

	started, err := s.find(ctx, c.ID)
	if err != nil {
		return nil, err
	}
	return &StartResult{
		Campaign:    started,
		Queued:      len(items),
		Excluded:    res.Excluded,
		PerIdentity: perIdentity,
	}, nil
}

// Pause はrunningのキャンペーンをpausedにする。実行中の項目は完了まで待つ。
func (s *Service) Pause(ctx context.Context, id string) (*model.Campaign, error) {
	return s.transition(ctx, id, model.CampaignStatusRunning, model.CampaignStatusPaused, "pause")
}

// Resume はpausedのキャンペーンをrunningに戻す。
func (s *Service) Resume(ctx context.Context, id string) (*model.Campaign, error) {
	return s.transition(ctx, id, model.CampaignStatusPaused, model.CampaignStatusRunning, "resume")
}

// Cancel はキャンペーンをcancelledにし、未着手の項目をskippedにする。
func (s *Service) Cancel(ctx context.Context, id string) (*model.Campaign, error) {
	c, err := s.find(ctx, id)
	if err != nil {
		return nil, err
	}
	if c.Status.Terminal() {
		return nil, model.NewInvalidCampaignStateError(c.Status, "cancel")
	}

	skipped, err := s.campaigns.Cancel(ctx, id, s.now())
	if err != nil {
		return nil, err
	}
	s.logger.Info("キャンペーンをキャンセルしました",
		slog.String("campaign_id", id),
		slog.Int("skipped", skipped),
	)
	return s.find(ctx, id)
}

// Get はキャンペーンを返す。
func (s *Service) Get(ctx context.Context, id string) (*model.Campaign, error) {
	return s.find(ctx, id)
}

// List は全キャンペーンを返す。
func (s *Service) List(ctx context.Context) ([]*model.Campaign, error) {
	return s.campaigns.List(ctx)
}

// Items はキャンペーンのキュー項目をエンキュー順で返す。statusが空の場合は全状態。
func (s *Service) Items(ctx context.Context, id string, status model.QueueStatus, limit int) ([]*model.QueueItem, error) {
	if _, err := s.find(ctx, id); err != nil {
		return nil, err
	}
	return s.queue.ListByCampaign(ctx, id, status, limit)
}

func (s *Service) transition(ctx context.Context, id string, from, to model.CampaignStatus, op string) (*model.Campaign, error) {
	c, err := s.find(ctx, id)
	if err != nil {
		return nil, err
	}
	if c.Status != from {
		return nil, model.NewInvalidCampaignStateError(c.Status, op)
	}
	ok, err := s.campaigns.UpdateStatus(ctx, id, from, to)
	if err != nil {
		return nil, err
	}
	if !ok {
		// 判定から更新までの間に状態が変わった
		latest, err := s.find(ctx, id)
		if err != nil {
			return nil, err
		}
		return nil, model.NewInvalidCampaignStateError(latest.Status, op)
	}
	c.Status = to
	return c, nil
}

func (s *Service) find(ctx context.Context, id string) (*model.Campaign, error) {
	c, err := s.campaigns.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("キャンペーンの取得に失敗しました: %w", err)
	}
	if c == nil {
		return nil, model.NewCampaignNotFoundError(id)
	}
	return c, nil
}

func dedupe(ids []int64) []int64 {
	seen := make(map[int64]bool, len(ids))
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}
