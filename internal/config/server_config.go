package config

import (
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
	"github.com/subosito/gotenv"

	"github/finchase/go-signing/internal/util"
)

// EchoServer configures the HTTP listener.
type EchoServer struct {
	ListenAddress            string
	HideInternalServerErrors bool
	GracePeriod              time.Duration
	EnableRecoverMiddleware  bool
	EnableLoggerMiddleware   bool
}

// LoggerServer configures zerolog.
type LoggerServer struct {
	Level              zerolog.Level
	RequestLevel       zerolog.Level
	LogRequestBody     bool
	LogResponseBody    bool
	PrettyPrintConsole bool
}

// Database configures the Postgres connection for the relational stores.
type Database struct {
	Host     string
	Port     int
	Username string
	Password string `json:"-"` // sensitive
	Database string
	// AdditionalParams e.g. {"sslmode": "disable"}
	AdditionalParams map[string]string
	MaxOpenConns     int
	MaxIdleConns     int
	ConnMaxLifetime  time.Duration
}

// ConnectionString builds a keyword/value postgres connection string.
func (d Database) ConnectionString() string {
	var b strings.Builder
	b.WriteString("host=" + d.Host)
	b.WriteString(" port=" + strconv.Itoa(d.Port))
	b.WriteString(" user=" + d.Username)
	b.WriteString(" password=" + d.Password)
	b.WriteString(" dbname=" + d.Database)
	for k, v := range d.AdditionalParams {
		b.WriteString(" " + k + "=" + v)
	}
	return b.String()
}

// Redis configures the optional hot-path store.
type Redis struct {
	Enabled bool
	URL     string `json:"-"` // may embed credentials
}

// KMS configures the managed-HSM backend.
type KMS struct {
	Region      string
	KeySpec     string
	Endpoint    string // optional, for localstack-style testing
	SignTimeout time.Duration
}

// Signing selects and configures the key-custody backend.
type Signing struct {
	// Provider is "local" or "managed-hsm".
	Provider string
	// LocalMasterSecret is the hex-encoded 32-byte key protecting locally
	// stored key material. Required when Provider is "local".
	LocalMasterSecret string `json:"-"` // sensitive
	KMS               KMS
	DefaultChainID    int64
	IntentDomainName  string
	IntentDomainVer   string
}

// Server is the central, env-driven service configuration.
type Server struct {
	Database Database
	Redis    Redis
	Echo     EchoServer
	Logger   LoggerServer
	Signing  Signing
	// Management secret protects the /-/ endpoints.
	ManagementSecret string `json:"-"` // sensitive
}

var (
	configOnce sync.Once
)

// DefaultServiceConfigFromEnv returns the server config as parsed from the
// environment. A local .env file is loaded once beforehand outside of
// production to ease development.
func DefaultServiceConfigFromEnv() Server {
	configOnce.Do(func() {
		if os.Getenv("APP_ENV") != "production" {
			if err := gotenv.Load(); err != nil && !os.IsNotExist(err) {
				log.Warn().Err(err).Msg("Failed to load .env file")
			}
		}
		viper.AutomaticEnv()
	})

	return Server{
		Database: Database{
			Host:     getEnv("DB_HOST", "postgres"),
			Port:     getEnvAsInt("DB_PORT", 5432),
			Username: getEnv("DB_USER", "dbuser"),
			Password: getEnv("DB_PASSWORD", ""),
			Database: getEnv("DB_NAME", "signing"),
			AdditionalParams: map[string]string{
				"sslmode": getEnv("DB_SSL_MODE", "disable"),
			},
			MaxOpenConns:    getEnvAsInt("DB_MAX_OPEN_CONNS", 30),
			MaxIdleConns:    getEnvAsInt("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: time.Second * time.Duration(getEnvAsInt("DB_CONN_MAX_LIFETIME_SEC", 300)),
		},
		Redis: Redis{
			Enabled: getEnvAsBool("REDIS_ENABLED", false),
			URL:     getEnv("REDIS_URL", "redis://localhost:6379/0"),
		},
		Echo: EchoServer{
			ListenAddress:            getEnv("SERVER_ECHO_LISTEN_ADDRESS", ":9973"),
			HideInternalServerErrors: getEnvAsBool("SERVER_ECHO_HIDE_INTERNAL_SERVER_ERRORS", true),
			GracePeriod:              time.Second * time.Duration(getEnvAsInt("SERVER_ECHO_GRACE_PERIOD_SEC", 30)),
			EnableRecoverMiddleware:  getEnvAsBool("SERVER_ECHO_ENABLE_RECOVER_MIDDLEWARE", true),
			EnableLoggerMiddleware:   getEnvAsBool("SERVER_ECHO_ENABLE_LOGGER_MIDDLEWARE", true),
		},
		Logger: LoggerServer{
			Level:              parseLogLevel(getEnv("SERVER_LOGGER_LEVEL", "debug")),
			RequestLevel:       parseLogLevel(getEnv("SERVER_LOGGER_REQUEST_LEVEL", "debug")),
			LogRequestBody:     getEnvAsBool("SERVER_LOGGER_LOG_REQUEST_BODY", false),
			LogResponseBody:    getEnvAsBool("SERVER_LOGGER_LOG_RESPONSE_BODY", false),
			PrettyPrintConsole: getEnvAsBool("SERVER_LOGGER_PRETTY_PRINT_CONSOLE", false),
		},
		Signing: Signing{
			Provider:          getEnv("SIGNING_PROVIDER", "local"),
			LocalMasterSecret: getEnv("SIGNING_LOCAL_MASTER_SECRET", ""),
			KMS: KMS{
				Region:      getEnv("SIGNING_KMS_REGION", "us-east-1"),
				KeySpec:     getEnv("SIGNING_KMS_KEY_SPEC", "ECC_SECG_P256K1"),
				Endpoint:    getEnv("SIGNING_KMS_ENDPOINT", ""),
				SignTimeout: time.Second * time.Duration(getEnvAsInt("SIGNING_KMS_SIGN_TIMEOUT_SEC", 10)),
			},
			DefaultChainID:   int64(getEnvAsInt("SIGNING_DEFAULT_CHAIN_ID", 1)),
			IntentDomainName: getEnv("SIGNING_INTENT_DOMAIN_NAME", "FinchaseAutomation"),
			IntentDomainVer:  getEnv("SIGNING_INTENT_DOMAIN_VERSION", "1"),
		},
		ManagementSecret: getEnv("SERVER_MANAGEMENT_SECRET", ""),
	}
}

// Validate fails fast on configuration that would only surface as runtime
// signing failures later. A missing or malformed local master secret is
// rejected outright instead of generating a fallback key: a generated key
// would silently orphan every previously encrypted key on restart.
func (s Server) Validate() error {
	switch s.Signing.Provider {
	case "local":
		if s.Signing.LocalMasterSecret == "" {
			return errors.New("SIGNING_LOCAL_MASTER_SECRET is required for the local signing provider")
		}
		if _, err := util.DecodeHexFixed(s.Signing.LocalMasterSecret, 32); err != nil {
			return errors.Wrap(err, "SIGNING_LOCAL_MASTER_SECRET must be a hex-encoded 32-byte secret")
		}
	case "managed-hsm":
		if s.Signing.KMS.Region == "" {
			return errors.New("SIGNING_KMS_REGION is required for the managed-hsm signing provider")
		}
	default:
		return errors.Errorf("unsupported signing provider: %q", s.Signing.Provider)
	}

	return nil
}

func getEnv(key string, defaultVal string) string {
	if viper.IsSet(key) {
		return viper.GetString(key)
	}
	return defaultVal
}

func getEnvAsInt(key string, defaultVal int) int {
	if viper.IsSet(key) {
		return viper.GetInt(key)
	}
	return defaultVal
}

func getEnvAsBool(key string, defaultVal bool) bool {
	if viper.IsSet(key) {
		return viper.GetBool(key)
	}
	return defaultVal
}

func parseLogLevel(level string) zerolog.Level {
	l, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil {
		log.Warn().Str("level", level).Msg("Unknown log level, falling back to debug")
		return zerolog.DebugLevel
	}
	return l
}
