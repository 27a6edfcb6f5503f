// Package config は環境変数からアプリケーション設定を読み込む。
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/hitoshi/senderpool/internal/model"
)

// HardMaxIdentities は1ホストで扱えるアイデンティティ数の上限。
const HardMaxIdentities = 4

// DelayRange はアクション間の待ち時間の範囲。
type DelayRange struct {
	Min time.Duration
	Max time.Duration
}

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Database
	DatabaseURL string

	// Cooldown / Rotation
	CooldownDuration        time.Duration
	MaxIdentities           int
	InterIdentityGapMinutes int

	// Work window
	WorkStartHour int
	WorkEndHour   int
	WorkDays      []time.Weekday
	Location      *time.Location

	// Quota
	DefaultQuotas     model.Quotas
	RampUpWeeks       int
	RampUpPercentage  int
	ConnectDelay      DelayRange
	LikeDelay         DelayRange
	CommentDelay      DelayRange
	ActionTimeout     time.Duration
	SchedulerInterval time.Duration

	// Automation
	AutomationURL    string
	AutomationAPIKey string

	// Text generation
	TextgenURL     string
	TextgenAPIKey  string
	TextgenTimeout time.Duration

	// Browser
	BrowserProfileDir string
	BrowserHeadless   bool
	BrowserBin        string

	// Logging
	LogLevel         string
	LogRetentionDays int

	// Server
	ServerPort        string
	MetricsPort       string // ワーカーの/metrics公開用
	CORSAllowedOrigin string
	RateLimitGeneral  int
	RateLimitStart    int
}

// DelayFor はアクション種別ごとの待ち時間範囲を返す。
func (c *Config) DelayFor(a model.ActionType) DelayRange {
	switch a {
	case model.ActionConnect:
		return c.ConnectDelay
	case model.ActionLike:
		return c.LikeDelay
	default:
		return c.CommentDelay
	}
}

// Load は.envファイル（存在する場合）と環境変数からConfigを読み込む。
// 必須環境変数が未設定、または値が不正な場合はエラーを返す。
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf(".envファイルの読み込みに失敗しました: %w", err)
	}

	cfg := &Config{}

	var missing []string
	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	if cfg.DatabaseURL == "" {
		missing = append(missing, "DATABASE_URL")
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("required environment variables are not set: %v", missing)
	}

	cfg.CooldownDuration = time.Duration(getEnvInt("COOLDOWN_DURATION_DAYS", 3)) * 24 * time.Hour
	cfg.MaxIdentities = getEnvInt("MAX_IDENTITIES", HardMaxIdentities)
	cfg.InterIdentityGapMinutes = getEnvInt("INTER_IDENTITY_GAP_MINUTES", 5)

	cfg.WorkStartHour = getEnvInt("WORK_START_HOUR", 9)
	cfg.WorkEndHour = getEnvInt("WORK_END_HOUR", 18)
	days, err := parseWeekdays(getEnvString("WORK_DAYS", "mon,tue,wed,thu,fri"))
	if err != nil {
		return nil, err
	}
	cfg.WorkDays = days
	loc, err := time.LoadLocation(getEnvString("WORK_TIMEZONE", "Asia/Kolkata"))
	if err != nil {
		return nil, fmt.Errorf("WORK_TIMEZONE が不正です: %w", err)
	}
	cfg.Location = loc

	cfg.DefaultQuotas = model.Quotas{
		Connect: model.Quota{Daily: getEnvInt("DAILY_CONNECT_LIMIT", 25), Weekly: getEnvInt("WEEKLY_CONNECT_LIMIT", 100)},
		Like:    model.Quota{Daily: getEnvInt("DAILY_LIKE_LIMIT", 100), Weekly: getEnvInt("WEEKLY_LIKE_LIMIT", 300)},
		Comment: model.Quota{Daily: getEnvInt("DAILY_COMMENT_LIMIT", 50), Weekly: getEnvInt("WEEKLY_COMMENT_LIMIT", 200)},
	}
	cfg.RampUpWeeks = getEnvInt("RAMP_UP_WEEKS", 2)
	cfg.RampUpPercentage = getEnvInt("RAMP_UP_PERCENTAGE", 30)
	cfg.ConnectDelay = getEnvDelay("CONNECT", 300, 900)
	cfg.LikeDelay = getEnvDelay("LIKE", 240, 840)
	cfg.CommentDelay = getEnvDelay("COMMENT", 480, 1320)
	cfg.ActionTimeout = getEnvDuration("ACTION_TIMEOUT", 2*time.Minute)
	cfg.SchedulerInterval = getEnvDuration("SCHEDULER_INTERVAL", time.Minute)

	cfg.AutomationURL = getEnvString("AUTOMATION_URL", "http://localhost:9222")
	cfg.AutomationAPIKey = getEnvString("AUTOMATION_API_KEY", "")
	cfg.TextgenURL = getEnvString("TEXTGEN_URL", "")
	cfg.TextgenAPIKey = getEnvString("TEXTGEN_API_KEY", "")
	cfg.TextgenTimeout = getEnvDuration("TEXTGEN_TIMEOUT", 30*time.Second)

	cfg.BrowserProfileDir = getEnvString("BROWSER_PROFILE_DIR", "data/profiles")
	cfg.BrowserHeadless = getEnvBool("BROWSER_HEADLESS", false)
	cfg.BrowserBin = getEnvString("BROWSER_BIN", "")

	cfg.LogLevel = getEnvString("LOG_LEVEL", "info")
	cfg.LogRetentionDays = getEnvInt("LOG_RETENTION_DAYS", 30)

	cfg.ServerPort = getEnvString("SERVER_PORT", "8080")
	cfg.MetricsPort = getEnvString("METRICS_PORT", "9090")
	cfg.CORSAllowedOrigin = getEnvString("CORS_ALLOWED_ORIGIN", "http://localhost:3000")
	cfg.RateLimitGeneral = getEnvInt("RATE_LIMIT_GENERAL", 120)
	cfg.RateLimitStart = getEnvInt("RATE_LIMIT_CAMPAIGN_START", 10)

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	var problems []string
	if c.WorkStartHour < 0 || c.WorkEndHour > 24 || c.WorkStartHour >= c.WorkEndHour {
		problems = append(problems, fmt.Sprintf("WORK_START_HOUR/WORK_END_HOUR (%d-%d)", c.WorkStartHour, c.WorkEndHour))
	}
	if c.MaxIdentities < 1 || c.MaxIdentities > HardMaxIdentities {
		problems = append(problems, fmt.Sprintf("MAX_IDENTITIES (%d, 1-%d)", c.MaxIdentities, HardMaxIdentities))
	}
	if c.CooldownDuration < 24*time.Hour {
		problems = append(problems, "COOLDOWN_DURATION_DAYS (1以上)")
	}
	if c.InterIdentityGapMinutes < 0 {
		problems = append(problems, "INTER_IDENTITY_GAP_MINUTES (0以上)")
	}
	if c.RampUpPercentage < 0 || c.RampUpPercentage > 100 {
		problems = append(problems, "RAMP_UP_PERCENTAGE (0-100)")
	}
	for _, a := range model.AllActionTypes() {
		if d := c.DelayFor(a); d.Min < 0 || d.Min > d.Max {
			problems = append(problems, fmt.Sprintf("%s の待ち時間範囲", strings.ToUpper(a.String())))
		}
	}
	if len(problems) > 0 {
		return fmt.Errorf("invalid configuration: %v", problems)
	}
	return nil
}

var weekdayNames = map[string]time.Weekday{
	"sun": time.Sunday,
	"mon": time.Monday,
	"tue": time.Tuesday,
	"wed": time.Wednesday,
	"thu": time.Thursday,
	"fri": time.Friday,
	"sat": time.Saturday,
}

func parseWeekdays(v string) ([]time.Weekday, error) {
	var days []time.Weekday
	for _, part := range strings.Split(v, ",") {
		name := strings.ToLower(strings.TrimSpace(part))
		if name == "" {
			continue
		}
		d, ok := weekdayNames[name]
		if !ok {
			return nil, fmt.Errorf("WORK_DAYS に不明な曜日があります: %q", part)
		}
		days = append(days, d)
	}
	if len(days) == 0 {
		return nil, fmt.Errorf("WORK_DAYS が空です")
	}
	return days, nil
}

func getEnvString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func getEnvBool(key string, defaultVal bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return defaultVal
	}
	return b
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}

// getEnvDelay は PREFIX_MIN_DELAY / PREFIX_MAX_DELAY（秒）を読み込む。
func getEnvDelay(prefix string, minSec, maxSec int) DelayRange {
	return DelayRange{
		Min: time.Duration(getEnvInt(prefix+"_MIN_DELAY", minSec)) * time.Second,
		Max: time.Duration(getEnvInt(prefix+"_MAX_DELAY", maxSec)) * time.Second,
	}
}
