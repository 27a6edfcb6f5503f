// Package cooldown はグローバル接触レジストリに対するクールダウン判定を提供する。
//
// 判定規則:
//   - レジストリに記録のないターゲットは常に許可する。
//   - 最後に接触したアイデンティティ自身は、クールダウンに関係なく別種別のアクションを実行できる。
//     同じ種別を自身がすでに実行済みの場合は already_done_by_self で拒否する。
//   - 別のアイデンティティは cooldown_expires_at まで拒否する。
package cooldown

import (
	"time"

	"github.com/hitoshi/senderpool/internal/model"
)

// Reason は判定理由を表す。
type Reason string

const (
	ReasonOK                Reason = "ok"
	ReasonCooldownActive    Reason = "cooldown_active"
	ReasonAlreadyDoneBySelf Reason = "already_done_by_self"
)

// Decision はクールダウン判定の結果。
// 拒否はエラーではなく値として返す。
type Decision struct {
	Allowed          bool
	Reason           Reason
	BlockedUntil     time.Time // ReasonCooldownActive の場合のみ設定
	BlockingIdentity int64     // ReasonCooldownActive の場合のみ設定
}

// Decide はレジストリエントリに対する判定を行う純粋関数。entryがnilの場合は未接触として扱う。
func Decide(entry *model.RegistryEntry, kind model.ActionType, identityID int64, now time.Time) Decision {
	if entry == nil {
		return Decision{Allowed: true, Reason: ReasonOK}
	}

	if entry.LastActionIdentityID == identityID {
		if entry.Record(kind).IdentityID == identityID {
			return Decision{Allowed: false, Reason: ReasonAlreadyDoneBySelf}
		}
		return Decision{Allowed: true, Reason: ReasonOK}
	}

	if entry.InCooldown(now) {
		return Decision{
			Allowed:          false,
			Reason:           ReasonCooldownActive,
			BlockedUntil:     entry.CooldownExpiresAt,
			BlockingIdentity: entry.LastActionIdentityID,
		}
	}
	return Decision{Allowed: true, Reason: ReasonOK}
}

// Apply は成功したアクションを反映した新しいエントリを返す。currentは変更しない。
// 最終アクションとクールダウン期限は常に上書きし、種別ごとの履歴は該当種別のみ更新する。
func Apply(current *model.RegistryEntry, targetID string, kind model.ActionType, identityID int64, now time.Time, duration time.Duration) *model.RegistryEntry {
	var next model.RegistryEntry
	if current != nil {
		next = *current
	} else {
		next.CreatedAt = now
	}
	next.TargetID = targetID
	next.LastActionType = kind
	next.LastActionIdentityID = identityID
	next.LastActionAt = now
	next.CooldownExpiresAt = now.Add(duration)
	next.SetRecord(kind, model.ActionRecord{IdentityID: identityID, PerformedAt: now})
	next.UpdatedAt = now
	return &next
}

// AvailableFor は候補アイデンティティの少なくとも1つについて Decide が許可する場合にtrueを返す。
func AvailableFor(entry *model.RegistryEntry, kind model.ActionType, candidates []int64, now time.Time) bool {
	for _, id := range candidates {
		if Decide(entry, kind, id, now).Allowed {
			return true
		}
	}
	return false
}
