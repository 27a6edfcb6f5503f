// Package automation は外部の実行レイヤー（ブラウザ操作サービス）を呼び出すクライアントを提供する。
// 接続申請・いいね・コメントの実行はすべてこのサービスに委譲する。
package automation

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/hitoshi/senderpool/internal/model"
)

const (
	actionsPath  = "/actions"
	postTextPath = "/post-text"
	// maxResponseBytes はレスポンスボディの読み取り上限。
	maxResponseBytes = 1 << 20

	// ErrorCredentialExpired はログイン状態が失われたことを示す Result.Error の値。
	ErrorCredentialExpired = "credential_expired"
)

// Request はアクション実行リクエスト。
type Request struct {
	IdentityID     int64            `json:"identity_id"`
	IdentityName   string           `json:"identity_name"`
	BrowserProfile string           `json:"browser_profile"`
	ControlURL     string           `json:"control_url"`
	TargetID       string           `json:"target_id"`
	Action         model.ActionType `json:"action"`
	Payload        string           `json:"payload,omitempty"`
}

// Result は実行レイヤーの応答。
// Success が false の場合、Error に理由が入る。
type Result struct {
	Success    bool   `json:"success"`
	ResultText string `json:"result_text"`
	Error      string `json:"error"`
}

type postTextRequest struct {
	ControlURL string `json:"control_url"`
	TargetID   string `json:"target_id"`
}

type postTextResponse struct {
	Text string `json:"text"`
}

// Client は実行レイヤーのHTTPクライアント。
type Client struct {
	httpClient *http.Client
	logger     *slog.Logger
	endpoint   string // ベースURL。末尾のスラッシュは取り除く
	apiKey     string
}

// NewClient はClient の新しいインスタンスを生成する。
func NewClient(httpClient *http.Client, endpoint, apiKey string, logger *slog.Logger) *Client {
	return &Client{
		httpClient: httpClient,
		logger:     logger,
		endpoint:   strings.TrimRight(endpoint, "/"),
		apiKey:     apiKey,
	}
}

// PerformAction は1件のアクションを実行レイヤーに依頼する。
// 通信エラーや不正な応答はエラーとして返し、実行レイヤーが失敗を報告した場合は
// Success=false の Result を返す。
func (c *Client) PerformAction(ctx context.Context, req Request) (*Result, error) {
	if !req.Action.Valid() {
		return nil, model.NewInvalidActionTypeError(string(req.Action))
	}

	var result Result
	if err := c.post(ctx, actionsPath, req, &result); err != nil {
		c.logger.Error("アクションの実行依頼に失敗しました",
			slog.Int64("identity_id", req.IdentityID),
			slog.String("target_id", req.TargetID),
			slog.String("action", req.Action.String()),
			slog.String("error", err.Error()),
		)
		return nil, err
	}

	if !result.Success && result.Error == "" {
		result.Error = "実行レイヤーが理由なしで失敗を返しました"
	}
	return &result, nil
}

// ExtractPostText は対象の最新投稿の本文を取得する。
// 投稿が見つからない場合は空文字を返す。
func (c *Client) ExtractPostText(ctx context.Context, controlURL, targetID string) (string, error) {
	var resp postTextResponse
	if err := c.post(ctx, postTextPath, postTextRequest{ControlURL: controlURL, TargetID: targetID}, &resp); err != nil {
		c.logger.Warn("投稿本文の取得に失敗しました",
			slog.String("target_id", targetID),
			slog.String("error", err.Error()),
		)
		return "", err
	}
	return strings.TrimSpace(resp.Text), nil
}

func (c *Client) post(ctx context.Context, path string, in, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("リクエストのエンコードに失敗しました: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("HTTPリクエストの作成に失敗しました: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "Senderpool/1.0")
	if c.apiKey != "" {
		req.Header.Set("X-API-Key", c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("実行レイヤーの呼び出しに失敗しました: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return fmt.Errorf("レスポンスボディの読み取りに失敗しました: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("実行レイヤーがステータス %d を返しました", resp.StatusCode)
	}

	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("レスポンスJSONのパースに失敗しました: %w", err)
	}
	return nil
}
