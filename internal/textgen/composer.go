package textgen

import (
	"context"
	"log/slog"
	"strings"

	"github.com/hitoshi/senderpool/internal/model"
	"github.com/hitoshi/senderpool/internal/security"
)

// Suggester は候補コメントから1件を選ぶ外部サービスのインターフェース。
type Suggester interface {
	SuggestComment(ctx context.Context, postText string, candidates []string) (*Suggestion, error)
}

// TemplateSource はコメントテンプレートの取得元。
type TemplateSource interface {
	ListActive(ctx context.Context, category string) ([]*model.CommentTemplate, error)
	IncrementUsage(ctx context.Context, id string) error
}

// Rand はランダム選択に使う乱数源。
type Rand interface {
	IntN(n int) int
}

// Composer はコメントアクションの本文を組み立てる。
type Composer struct {
	suggester Suggester // nil の場合は常にランダム選択
	templates TemplateSource
	sanitizer security.TextSanitizer
	rng       Rand
	logger    *slog.Logger
}

// NewComposer はComposerを生成する。
func NewComposer(suggester Suggester, templates TemplateSource, sanitizer security.TextSanitizer, rng Rand, logger *slog.Logger) *Composer {
	return &Composer{
		suggester: suggester,
		templates: templates,
		sanitizer: sanitizer,
		rng:       rng,
		logger:    logger,
	}
}

// Compose は投稿本文に対するコメントを返す。
// 採用告知の投稿にはハッシュタグコメントを返す。それ以外は有効なテンプレートを候補として
// テキスト生成サービスに選ばせ、応答がなければ候補からランダムに選ぶ。
// テンプレートが1件もない場合は投稿の話題に合った組み込みの定型文を使う。
func (c *Composer) Compose(ctx context.Context, postText string) (string, error) {
	postText = strings.TrimSpace(postText)
	if hiring, _ := DetectHiring(postText); hiring {
		return HiringComment(postText), nil
	}

	templates, err := c.templates.ListActive(ctx, "")
	if err != nil {
		return "", err
	}
	if len(templates) == 0 {
		return c.sanitizer.Sanitize(c.pick(fallbackFor(postText))), nil
	}

	candidates := make([]string, len(templates))
	for i, t := range templates {
		candidates[i] = t.Text
	}

	idx, text := -1, ""
	if c.suggester != nil && postText != "" {
		s, err := c.suggester.SuggestComment(ctx, postText, candidates)
		if err != nil {
			c.logger.Warn("コメント選定の応答がないためランダムに選択します",
				slog.String("error", err.Error()),
			)
		} else {
			idx, text = s.Index, s.Text
		}
	}
	if idx < 0 {
		idx = c.rng.IntN(len(candidates))
		text = candidates[idx]
	}

	if err := c.templates.IncrementUsage(ctx, templates[idx].ID); err != nil {
		c.logger.Warn("テンプレート使用回数の更新に失敗しました",
			slog.String("template_id", templates[idx].ID),
			slog.String("error", err.Error()),
		)
	}
	return c.sanitizer.Sanitize(text), nil
}

func (c *Composer) pick(options []string) string {
	return options[c.rng.IntN(len(options))]
}
