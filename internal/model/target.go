package model

import (
	"net/url"
	"strings"
	"time"
)

// Target はアクション対象の外部プロフィール。
// IDは正規化したプロフィールURLで、レジストリとキューの共通キーとなる。
type Target struct {
	ID       string
	Name     string
	Headline string
	Company  string
}

// TargetList はキャンペーンが参照するターゲットの名前付きリスト。
type TargetList struct {
	ID          string
	Name        string
	Description string
	TargetCount int
	CreatedAt   time.Time
}

// CanonicalTargetID はプロフィールURLを正規化してターゲットIDを返す。
// スキームはhttps、ホストは小文字、クエリ・フラグメント・末尾スラッシュを除去する。
func CanonicalTargetID(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", NewInvalidTargetError("URLが空です")
	}
	if !strings.Contains(raw, "://") {
		raw = "https://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", NewInvalidTargetError(err.Error())
	}
	if u.Host == "" {
		return "", NewInvalidTargetError("ホストがありません")
	}
	host := strings.ToLower(u.Hostname())
	host = strings.TrimPrefix(host, "www.")
	path := strings.TrimRight(u.EscapedPath(), "/")
	if path == "" {
		return "", NewInvalidTargetError("プロフィールのパスがありません")
	}
	return "https://" + host + path, nil
}
