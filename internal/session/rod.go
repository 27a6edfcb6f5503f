package session

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"

	"github.com/hitoshi/senderpool/internal/model"
)

// RodOptions はブラウザ起動の設定。
type RodOptions struct {
	ProfileDir string // アイデンティティごとのユーザーデータディレクトリの親
	Headless   bool
	Bin        string // 空の場合はrodが検出・取得したブラウザを使う
}

// RodLauncher はgo-rodでアイデンティティ専用のプロファイルを使ってブラウザを起動する。
type RodLauncher struct {
	opts RodOptions
}

// NewRodLauncher はRodLauncherを生成する。
func NewRodLauncher(opts RodOptions) *RodLauncher {
	return &RodLauncher{opts: opts}
}

// ProfilePath はアイデンティティのユーザーデータディレクトリを返す。
func (r *RodLauncher) ProfilePath(identity *model.Identity) string {
	name := identity.BrowserProfile
	if name == "" {
		name = fmt.Sprintf("identity-%d", identity.ID)
	}
	return filepath.Join(r.opts.ProfileDir, filepath.Base(name))
}

// Launch はブラウザを起動して接続する。
func (r *RodLauncher) Launch(ctx context.Context, identity *model.Identity) (Session, error) {
	dir := r.ProfilePath(identity)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("プロファイルディレクトリの作成に失敗しました: %w", err)
	}

	l := launcher.New().
		Context(ctx).
		UserDataDir(dir).
		Headless(r.opts.Headless).
		Leakless(false)
	if r.opts.Bin != "" {
		l = l.Bin(r.opts.Bin)
	}

	u, err := l.Launch()
	if err != nil {
		return nil, fmt.Errorf("ブラウザの起動に失敗しました: %w", err)
	}

	browser := rod.New().ControlURL(u)
	if err := browser.Connect(); err != nil {
		l.Kill()
		return nil, fmt.Errorf("ブラウザへの接続に失敗しました: %w", err)
	}

	return &rodSession{url: u, browser: browser, launcher: l}, nil
}

type rodSession struct {
	url      string
	browser  *rod.Browser
	launcher *launcher.Launcher
}

func (s *rodSession) ControlURL() string { return s.url }

// Close はブラウザを閉じてプロセスを終了する。プロファイルは次回のために残す。
func (s *rodSession) Close() error {
	err := s.browser.Close()
	s.launcher.Kill()
	if err != nil {
		return fmt.Errorf("ブラウザの終了に失敗しました: %w", err)
	}
	return nil
}

// compile-time interface check
var _ Launcher = (*RodLauncher)(nil)
