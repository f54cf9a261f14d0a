// Package config загружает конфигурацию бота из переменных окружения.
// Используется envconfig для маппинга переменных окружения на поля структуры.
// Конфигурация читается один раз при старте и дальше не меняется.
package config

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Бэкенды леджера.
const (
	LedgerBackendFile     = "file"
	LedgerBackendPostgres = "postgres"
)

// TokenPackage — пакет токенов на продажу (количество и цена в рупиях).
type TokenPackage struct {
	Amount int64
	Price  int64
}

// Config содержит ВСЕ настройки приложения.
type Config struct {
	// --- Telegram ---
	TelegramBotToken string `envconfig:"TELEGRAM_BOT_TOKEN" required:"true"`

	AdminIDsRaw   string  `envconfig:"ADMIN_IDS"`
	AdminIDs      []int64 `envconfig:"-"` // заполним вручную
	AllowedIDsRaw string  `envconfig:"ALLOWED_USER_IDS"`
	AllowedIDs    []int64 `envconfig:"-"`

	// Контакт админа для покупки токенов
	AdminContact string `envconfig:"ADMIN_CONTACT" default:"@admin"`
	// Argon2id-хеш пароля админки. Пустой: вход без пароля (достаточно ADMIN_IDS).
	AdminPasswordHash string `envconfig:"ADMIN_PASSWORD_HASH"`

	// --- Внешние утилиты ---
	YtDlpBinary  string `envconfig:"YTDLP_BINARY" default:"yt-dlp"`
	RcloneBinary string `envconfig:"RCLONE_BINARY" default:"rclone"`
	// Куда rclone кладёт файлы: "remote:folder". Пустое значение отключает облако.
	RcloneRemote string `envconfig:"RCLONE_REMOTE" default:"gdrive:YouTube_Downloads"`
	DownloadDir  string `envconfig:"DOWNLOAD_DIR" default:"/tmp/media-bot"`
	CookiesFile  string `envconfig:"COOKIES_FILE"`

	// --- Таймауты и лимиты загрузок ---
	PreviewTimeout    time.Duration `envconfig:"PREVIEW_TIMEOUT" default:"60s"`
	FetchTimeout      time.Duration `envconfig:"FETCH_TIMEOUT" default:"15m"`
	UploadTimeout     time.Duration `envconfig:"UPLOAD_TIMEOUT" default:"30m"`
	InlineMaxBytes    int64         `envconfig:"INLINE_MAX_BYTES" default:"52428800"`
	PlaylistMaxItems  int           `envconfig:"PLAYLIST_MAX_ITEMS" default:"50"`
	MaxFilenameLength int           `envconfig:"MAX_FILENAME_LENGTH" default:"120"`
	PendingJobTTL     time.Duration `envconfig:"PENDING_JOB_TTL" default:"15m"`
	ScratchMaxAge     time.Duration `envconfig:"SCRATCH_MAX_AGE" default:"6h"`

	// --- Токены ---
	TokenPricesRaw string         `envconfig:"TOKEN_PRICES" default:"1:5000,5:20000,10:35000,25:75000"`
	TokenPackages  []TokenPackage `envconfig:"-"`

	// --- Леджер ---
	LedgerBackend string `envconfig:"LEDGER_BACKEND" default:"file"`
	LedgerPath    string `envconfig:"LEDGER_PATH" default:"data/ledger.json"`

	// --- Database (только для LEDGER_BACKEND=postgres) ---
	DBHost     string `envconfig:"DB_HOST" default:"postgres"`
	DBPort     int    `envconfig:"DB_PORT" default:"5432"`
	DBUser     string `envconfig:"DB_USER" default:"botuser"`
	DBPassword string `envconfig:"DB_PASSWORD"`
	DBName     string `envconfig:"DB_NAME" default:"media_bot"`
	DBSSLMode  string `envconfig:"DB_SSLMODE" default:"disable"`
	DBMaxConns int32  `envconfig:"DB_MAX_CONNS" default:"10"`
	DBMinConns int32  `envconfig:"DB_MIN_CONNS" default:"2"`

	// --- Application ---
	AppEnv      string `envconfig:"APP_ENV" default:"development"`
	AppLogLevel string `envconfig:"APP_LOG_LEVEL" default:"debug"`
	AppTimezone string `envconfig:"APP_TIMEZONE" default:"Asia/Jakarta"`

	// --- Bot runtime ---
	// Сколько апдейтов обрабатываем параллельно. Загрузки идут в своих горутинах и сюда не входят.
	BotMaxInflight int `envconfig:"BOT_MAX_INFLIGHT" default:"64"`
	// Таймаут long polling (секунды)
	BotUpdateTimeoutSeconds int `envconfig:"BOT_UPDATE_TIMEOUT_SECONDS" default:"60"`

	// --- Rate Limiting ---
	RateLimitRequests int           `envconfig:"RATE_LIMIT_REQUESTS" default:"10"`
	RateLimitWindow   time.Duration `envconfig:"RATE_LIMIT_WINDOW" default:"1m"`
}

// DatabaseDSN возвращает строку подключения к PostgreSQL в формате DSN.
func (c *Config) DatabaseDSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.DBUser, c.DBPassword, c.DBHost, c.DBPort, c.DBName, c.DBSSLMode,
	)
}

// CloudEnabled сообщает, настроена ли выгрузка в облако.
func (c *Config) CloudEnabled() bool {
	return strings.TrimSpace(c.RcloneRemote) != ""
}

// IsAdmin проверяет, входит ли пользователь в ADMIN_IDS.
func (c *Config) IsAdmin(userID int64) bool {
	return containsID(c.AdminIDs, userID)
}

// IsAllowed проверяет, входит ли пользователь в ALLOWED_USER_IDS.
func (c *Config) IsAllowed(userID int64) bool {
	return containsID(c.AllowedIDs, userID)
}

func (c *Config) Validate() error {
	if c.BotMaxInflight <= 0 {
		return fmt.Errorf("BOT_MAX_INFLIGHT должен быть > 0")
	}
	if c.BotUpdateTimeoutSeconds <= 0 {
		return fmt.Errorf("BOT_UPDATE_TIMEOUT_SECONDS должен быть > 0")
	}
	if c.PreviewTimeout <= 0 || c.FetchTimeout <= 0 || c.UploadTimeout <= 0 {
		return fmt.Errorf("PREVIEW_TIMEOUT/FETCH_TIMEOUT/UPLOAD_TIMEOUT должны быть > 0")
	}
	if c.InlineMaxBytes <= 0 {
		return fmt.Errorf("INLINE_MAX_BYTES должен быть > 0")
	}
	if c.PlaylistMaxItems <= 0 {
		return fmt.Errorf("PLAYLIST_MAX_ITEMS должен быть > 0")
	}
	if c.MaxFilenameLength < 16 {
		return fmt.Errorf("MAX_FILENAME_LENGTH должен быть >= 16")
	}
	if c.DownloadDir == "" {
		return fmt.Errorf("DOWNLOAD_DIR не задан")
	}
	if rem := strings.TrimSpace(c.RcloneRemote); rem != "" && !strings.Contains(rem, ":") {
		return fmt.Errorf("RCLONE_REMOTE должен иметь вид remote:folder, получено %q", rem)
	}
	switch c.LedgerBackend {
	case LedgerBackendFile:
		if c.LedgerPath == "" {
			return fmt.Errorf("LEDGER_PATH не задан")
		}
	case LedgerBackendPostgres:
		if c.DBPassword == "" {
			return fmt.Errorf("DB_PASSWORD обязателен для LEDGER_BACKEND=postgres")
		}
		if c.DBMaxConns <= 0 || c.DBMinConns < 0 || c.DBMinConns > c.DBMaxConns {
			return fmt.Errorf("некорректные DB_MIN_CONNS/DB_MAX_CONNS")
		}
	default:
		return fmt.Errorf("LEDGER_BACKEND должен быть file или postgres, получено %q", c.LedgerBackend)
	}
	if len(c.AdminIDs) == 0 && len(c.AllowedIDs) == 0 {
		return fmt.Errorf("ADMIN_IDS и ALLOWED_USER_IDS пусты: ботом никто не сможет пользоваться")
	}
	return nil
}

// Load читает переменные окружения и заполняет структуру Config.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("не удалось загрузить конфигурацию: %w", err)
	}
	if err := cfg.parseLists(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) parseLists() error {
	ids, err := parseInt64CSV(c.AdminIDsRaw)
	if err != nil {
		return fmt.Errorf("ADMIN_IDS parse: %w", err)
	}
	c.AdminIDs = ids

	allowed, err := parseInt64CSV(c.AllowedIDsRaw)
	if err != nil {
		return fmt.Errorf("ALLOWED_USER_IDS parse: %w", err)
	}
	c.AllowedIDs = allowed

	packages, err := parseTokenPackages(c.TokenPricesRaw)
	if err != nil {
		return fmt.Errorf("TOKEN_PRICES parse: %w", err)
	}
	c.TokenPackages = packages
	return nil
}

func parseInt64CSV(s string) ([]int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	parts := strings.Split(s, ",")
	out := make([]int64, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		v, err := strconv.ParseInt(p, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("bad int64 %q: %w", p, err)
		}
		out = append(out, v)
	}
	return out, nil
}

// parseTokenPackages разбирает строку вида "1:5000,5:20000".
// Пакеты сортируются по количеству токенов.
func parseTokenPackages(s string) ([]TokenPackage, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	var out []TokenPackage
	for _, p := range strings.Split(s, ",") {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		amountRaw, priceRaw, ok := strings.Cut(p, ":")
		if !ok {
			return nil, fmt.Errorf("ожидается amount:price, получено %q", p)
		}
		amount, err := strconv.ParseInt(strings.TrimSpace(amountRaw), 10, 64)
		if err != nil || amount <= 0 {
			return nil, fmt.Errorf("bad amount %q", amountRaw)
		}
		price, err := strconv.ParseInt(strings.TrimSpace(priceRaw), 10, 64)
		if err != nil || price < 0 {
			return nil, fmt.Errorf("bad price %q", priceRaw)
		}
		out = append(out, TokenPackage{Amount: amount, Price: price})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Amount < out[j].Amount })
	return out, nil
}

func containsID(ids []int64, id int64) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}
