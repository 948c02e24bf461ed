package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Configはアプリ全体の設定
type Config struct {
	Port string // サーバーポート（8080）

	DatabaseURL      string // あればPOSTGRES_*より優先
	PostgresUser     string // DBユーザー
	PostgresPassword string // DBパスワード
	PostgresDB       string // DB名
	PostgresHost     string // DBホスト（localhost）
	PostgresPort     int    // DBポート（5432）
	PostgresSSLMode  string

	JWTSecret string // JWT署名シークレット

	PaystackSecretKey string        // APIキー兼Webhook署名キー
	PaystackBaseURL   string        // https://api.paystack.co
	PaystackTimeout   time.Duration // 外部呼び出しの上限

	Currency          string          // NGN
	CallbackURL       string          // 決済後の戻り先
	ReferencePrefix   string          // 決済referenceの接頭辞
	TaxRate           decimal.Decimal // 0.075
	CommissionPercent decimal.Decimal // プラットフォーム取り分（5）

	RedisAddr          string        // 空ならキャッシュなし
	RedisPassword      string
	SettlementCacheTTL time.Duration

	RateLimitPerSecond float64 // /checkout, /payments のユーザー毎上限

	GoEnv string // dev/prod
	FEURL string // フロントURL（CORSなどで使う）
}

// Loadは環境変数
func Load() (Config, error) {
	var err error
	cfg := Config{
		Port: getenv("PORT", "8080"),

		DatabaseURL:      os.Getenv("DATABASE_URL"),
		PostgresUser:     os.Getenv("POSTGRES_USER"),
		PostgresPassword: os.Getenv("POSTGRES_PASSWORD"),
		PostgresDB:       os.Getenv("POSTGRES_DB"),
		PostgresHost:     getenv("POSTGRES_HOST", "localhost"),
		PostgresSSLMode:  getenv("POSTGRES_SSLMODE", "disable"),

		JWTSecret: os.Getenv("JWT_SECRET"),

		PaystackSecretKey: os.Getenv("PAYSTACK_SECRET_KEY"),
		PaystackBaseURL:   strings.TrimRight(getenv("PAYSTACK_BASE_URL", "https://api.paystack.co"), "/"),

		Currency:        strings.ToUpper(getenv("PAYMENT_CURRENCY", "NGN")),
		CallbackURL:     os.Getenv("PAYMENT_CALLBACK_URL"),
		ReferencePrefix: getenv("PAYMENT_REFERENCE_PREFIX", "itha"),

		RedisAddr:     os.Getenv("REDIS_ADDR"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),

		GoEnv: getenv("GO_ENV", "dev"),
		FEURL: os.Getenv("FE_URL"),
	}

	if cfg.PostgresPort, err = atoiDefault("POSTGRES_PORT", 5432); err != nil {
		return Config{}, err
	}
	if cfg.PaystackTimeout, err = durationDefault("PAYSTACK_TIMEOUT", 15*time.Second); err != nil {
		return Config{}, err
	}
	if cfg.SettlementCacheTTL, err = durationDefault("SETTLEMENT_CACHE_TTL", 24*time.Hour); err != nil {
		return Config{}, err
	}
	if cfg.TaxRate, err = decimalDefault("TAX_RATE", "0.075"); err != nil {
		return Config{}, err
	}
	if cfg.CommissionPercent, err = decimalDefault("PLATFORM_COMMISSION_PERCENT", "5"); err != nil {
		return Config{}, err
	}
	if cfg.RateLimitPerSecond, err = floatDefault("RATE_LIMIT_PER_SECOND", 5); err != nil {
		return Config{}, err
	}

	//必須チェック
	if cfg.DatabaseURL == "" {
		if cfg.PostgresUser == "" {
			return Config{}, fmt.Errorf("POSTGRES_USER is required")
		}
		if cfg.PostgresDB == "" {
			return Config{}, fmt.Errorf("POSTGRES_DB is required")
		}
	}
	if cfg.JWTSecret == "" {
		return Config{}, fmt.Errorf("JWT_SECRET is required")
	}
	if cfg.PaystackSecretKey == "" {
		return Config{}, fmt.Errorf("PAYSTACK_SECRET_KEY is required")
	}
	if len(cfg.Currency) != 3 {
		return Config{}, fmt.Errorf("PAYMENT_CURRENCY must be a 3 letter code")
	}
	if cfg.TaxRate.IsNegative() {
		return Config{}, fmt.Errorf("TAX_RATE must be >= 0")
	}
	if cfg.CommissionPercent.IsNegative() || cfg.CommissionPercent.GreaterThan(decimal.NewFromInt(100)) {
		return Config{}, fmt.Errorf("PLATFORM_COMMISSION_PERCENT must be between 0 and 100")
	}

	return cfg, nil
}

// PostgresDSN はDATABASE_URLがあればそれを返す
func (c Config) PostgresDSN() string {
	if c.DatabaseURL != "" {
		return c.DatabaseURL
	}
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.PostgresHost, c.PostgresPort, c.PostgresUser, c.PostgresPassword, c.PostgresDB, c.PostgresSSLMode,
	)
}

func (c Config) IsProduction() bool {
	return c.GoEnv == "prod" || c.GoEnv == "production"
}

func getenv(key string, def string) string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	return v
}

func atoiDefault(key string, def int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s must be number: %w", key, err)
	}
	return i, nil
}

func floatDefault(key string, def float64) (float64, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("%s must be number: %w", key, err)
	}
	return f, nil
}

func durationDefault(key string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s must be duration (e.g. 15s): %w", key, err)
	}
	return d, nil
}

func decimalDefault(key string, def string) (decimal.Decimal, error) {
	v := getenv(key, def)
	d, err := decimal.NewFromString(v)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%s must be decimal: %w", key, err)
	}
	return d, nil
}
