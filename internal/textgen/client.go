// Package textgen はコメント文の選定を外部のテキスト生成サービスに依頼する。
// リクエストはAPIキーによるHMAC-SHA256署名で認証する。
package textgen

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// ErrNoCandidates は候補コメントが空の場合に返される。
var ErrNoCandidates = errors.New("候補コメントがありません")

// Suggestion はテキスト生成サービスが選んだコメント。
type Suggestion struct {
	Index      int
	Text       string
	Confidence float64
}

type suggestRequest struct {
	PostText string   `json:"post_text"`
	Comments []string `json:"comments"`
}

type suggestResponse struct {
	SelectedIndex int     `json:"selected_index"`
	CommentText   string  `json:"comment_text"`
	Confidence    float64 `json:"confidence"`
}

// Client はテキスト生成サービスのHTTPクライアント。
type Client struct {
	httpClient *http.Client
	logger     *slog.Logger
	endpoint   string
	apiKey     string
	now        func() time.Time // テスト用に差し替え可能
}

// NewClient はClient の新しいインスタンスを生成する。
func NewClient(httpClient *http.Client, endpoint, apiKey string, logger *slog.Logger) *Client {
	return &Client{
		httpClient: httpClient,
		logger:     logger,
		endpoint:   endpoint,
		apiKey:     apiKey,
		now:        time.Now,
	}
}

// Sign は timestamp と body を連結した文字列のHMAC-SHA256署名を16進文字列で返す。
func Sign(key, timestamp string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(key))
	mac.Write([]byte(timestamp))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// SuggestComment は投稿本文に最も合う候補コメントを選ばせる。
// 応答が得られない場合はエラーを返し、代替の選定は呼び出し元が行う。
func (c *Client) SuggestComment(ctx context.Context, postText string, candidates []string) (*Suggestion, error) {
	if len(candidates) == 0 {
		return nil, ErrNoCandidates
	}

	body, err := json.Marshal(suggestRequest{PostText: postText, Comments: candidates})
	if err != nil {
		return nil, fmt.Errorf("リクエストのエンコードに失敗しました: %w", err)
	}
	timestamp := strconv.FormatInt(c.now().Unix(), 10)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("HTTPリクエストの作成に失敗しました: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-API-Key", c.apiKey)
	req.Header.Set("X-Request-Timestamp", timestamp)
	req.Header.Set("X-Signature", Sign(c.apiKey, timestamp, body))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Warn("テキスト生成サービスの呼び出しに失敗しました",
			slog.String("error", err.Error()),
		)
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		c.logger.Warn("テキスト生成サービスがエラーステータスを返しました",
			slog.Int("http_status", resp.StatusCode),
		)
		return nil, fmt.Errorf("テキスト生成サービスがステータス %d を返しました", resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("レスポンスボディの読み取りに失敗しました: %w", err)
	}

	var out suggestResponse
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("レスポンスJSONのパースに失敗しました: %w", err)
	}
	if out.SelectedIndex < 0 || out.SelectedIndex >= len(candidates) {
		return nil, fmt.Errorf("選択インデックスが範囲外です: %d", out.SelectedIndex)
	}

	text := strings.TrimSpace(out.CommentText)
	if text == "" {
		text = candidates[out.SelectedIndex]
	}
	return &Suggestion{Index: out.SelectedIndex, Text: text, Confidence: out.Confidence}, nil
}
