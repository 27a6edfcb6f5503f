// Package session はアイデンティティごとのブラウザセッションを管理する。
// 実行ホスト上で同時に保持できるセッションは常に1つだけ。
package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/hitoshi/senderpool/internal/model"
)

// Session は起動済みのブラウザセッション。
type Session interface {
	// ControlURL は実行層がブラウザを操作するためのDevTools URLを返す。
	ControlURL() string
	Close() error
}

// Launcher はアイデンティティのプロファイルでブラウザを起動する。
type Launcher interface {
	Launch(ctx context.Context, identity *model.Identity) (Session, error)
}

// Manager はセッションの排他を管理する。
// 前のアイデンティティのセッションが解放されるまで次のセッションは起動されない。
type Manager struct {
	launcher Launcher
	sem      chan struct{}
	logger   *slog.Logger

	mu     sync.Mutex
	active int64
}

// NewManager はManagerを生成する。
func NewManager(launcher Launcher, logger *slog.Logger) *Manager {
	return &Manager{
		launcher: launcher,
		sem:      make(chan struct{}, 1),
		logger:   logger,
	}
}

// Lease は取得したセッションの利用権。Releaseで必ず返却する。
type Lease struct {
	IdentityID int64
	session    Session
	manager    *Manager
	once       sync.Once
	closeErr   error
}

// ControlURL はセッションのDevTools URLを返す。
func (l *Lease) ControlURL() string {
	return l.session.ControlURL()
}

// Release はブラウザを閉じて排他を解放する。複数回呼んでもよい。
func (l *Lease) Release() error {
	l.once.Do(func() {
		l.closeErr = l.session.Close()
		l.manager.mu.Lock()
		l.manager.active = 0
		l.manager.mu.Unlock()
		<-l.manager.sem
		l.manager.logger.Info("ブラウザセッションを解放しました", slog.Int64("identity_id", l.IdentityID))
	})
	return l.closeErr
}

// Acquire は排他を取得してからidentityのブラウザを起動する。
// 他のセッションが保持されている間はctxが終了するまで待つ。
func (m *Manager) Acquire(ctx context.Context, identity *model.Identity) (*Lease, error) {
	select {
	case m.sem <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	s, err := m.launcher.Launch(ctx, identity)
	if err != nil {
		<-m.sem
		return nil, fmt.Errorf("ブラウザセッションの起動に失敗しました (identity %d): %w", identity.ID, err)
	}

	m.mu.Lock()
	m.active = identity.ID
	m.mu.Unlock()

	m.logger.Info("ブラウザセッションを取得しました",
		slog.Int64("identity_id", identity.ID),
		slog.String("profile", identity.BrowserProfile),
	)
	return &Lease{IdentityID: identity.ID, session: s, manager: m}, nil
}

// Active は現在セッションを保持しているアイデンティティを返す。
func (m *Manager) Active() (int64, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.active, m.active != 0
}
