package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

type Config struct {
	PlantID    string
	DBPath     string
	RawMailDir string
	OutputDir  string

	MasterAPIBaseURL       string
	MasterAPIToken         string
	MasterRateLimit        int
	MasterTimeoutMs        int
	IncrementalLookbackHrs int

	// Pricing selection policy. The defaults are what production runs;
	// they are configuration, not invariants.
	PricingClientWeight  float64
	PricingSiteWeight    float64
	PricingSourceWeight  float64
	PricingRecencyWeight float64
	ConfidenceHighAbove  float64
	ConfidenceMedAbove   float64

	FuzzyMaxDistance int

	// Duplicate risk thresholds: score <= low is low risk, <= medium is
	// medium, anything above is high.
	RiskLowMax    int
	RiskMediumMax int

	GmailClientID     string
	GmailClientSecret string
	GmailRedirectURI  string
	GmailRefreshToken string

	IMAPHost     string
	IMAPPort     int
	IMAPSecure   bool
	IMAPUser     string
	IMAPPassword string
	IMAPMarkSeen bool

	// Only messages whose From header contains this substring are
	// ingested. Empty accepts every sender.
	MailFromFilter string

	MailListenerProvider     string
	MailListenerLabel        string
	MailListenerIntervalSec  int
	MailListenerFetchMax     int
	MailListenerProcessBatch int
	MailListenerAutoExport   bool
}

func Load() (Config, error) {
	_ = godotenv.Load()

	cwd, err := os.Getwd()
	if err != nil {
		return Config{}, err
	}

	cfg := Config{
		PlantID:    getEnv("ARKIK_PLANT_ID", ""),
		DBPath:     getEnv("DB_PATH", filepath.Join(cwd, "data", "arkik.db")),
		RawMailDir: getEnv("MAIL_RAW_DIR", filepath.Join(cwd, "data", "raw")),
		OutputDir:  getEnv("OUTPUT_DIR", filepath.Join(cwd, "out")),

		MasterAPIBaseURL:       getEnv("MASTER_API_BASE_URL", "https://plantops.example.com/api/v1"),
		MasterAPIToken:         getEnv("MASTER_API_TOKEN", ""),
		MasterRateLimit:        getEnvInt("MASTER_RATE_LIMIT_RPS", 5),
		MasterTimeoutMs:        getEnvInt("MASTER_TIMEOUT_MS", 30000),
		IncrementalLookbackHrs: getEnvInt("MASTER_INCREMENTAL_HOURS", 24),

		PricingClientWeight:  getEnvFloat("PRICING_CLIENT_WEIGHT", 0.4),
		PricingSiteWeight:    getEnvFloat("PRICING_SITE_WEIGHT", 0.3),
		PricingSourceWeight:  getEnvFloat("PRICING_SOURCE_WEIGHT", 0.2),
		PricingRecencyWeight: getEnvFloat("PRICING_RECENCY_WEIGHT", 0.1),
		ConfidenceHighAbove:  getEnvFloat("PRICING_CONFIDENCE_HIGH", 0.8),
		ConfidenceMedAbove:   getEnvFloat("PRICING_CONFIDENCE_MEDIUM", 0.6),

		FuzzyMaxDistance: getEnvInt("RECIPE_FUZZY_MAX_DISTANCE", 2),

		RiskLowMax:    getEnvInt("DUPLICATE_RISK_LOW_MAX", 2),
		RiskMediumMax: getEnvInt("DUPLICATE_RISK_MEDIUM_MAX", 5),

		GmailClientID:     getEnv("GMAIL_CLIENT_ID", ""),
		GmailClientSecret: getEnv("GMAIL_CLIENT_SECRET", ""),
		GmailRedirectURI:  getEnv("GMAIL_REDIRECT_URI", "https://developers.google.com/oauthplayground"),
		GmailRefreshToken: getEnv("GMAIL_REFRESH_TOKEN", ""),

		IMAPHost:     getEnv("IMAP_HOST", ""),
		IMAPPort:     getEnvInt("IMAP_PORT", 993),
		IMAPSecure:   getEnvBool("IMAP_SECURE", true),
		IMAPUser:     getEnv("IMAP_USER", ""),
		IMAPPassword: getEnv("IMAP_PASSWORD", ""),
		IMAPMarkSeen: getEnvBool("IMAP_MARK_SEEN", false),

		MailFromFilter: getEnv("MAIL_FROM_FILTER", ""),

		MailListenerProvider:     getEnv("MAIL_LISTENER_PROVIDER", "imap"),
		MailListenerLabel:        getEnv("MAIL_LISTENER_LABEL", "INBOX"),
		MailListenerIntervalSec:  getEnvInt("MAIL_LISTENER_INTERVAL_SEC", 60),
		MailListenerFetchMax:     getEnvInt("MAIL_LISTENER_FETCH_MAX", 20),
		MailListenerProcessBatch: getEnvInt("MAIL_LISTENER_PROCESS_BATCH", 20),
		MailListenerAutoExport:   getEnvBool("MAIL_LISTENER_AUTO_EXPORT", true),
	}

	return cfg, nil
}

func (c Config) Require(name, value string) error {
	if strings.TrimSpace(value) == "" {
		return fmt.Errorf("missing required env var: %s", name)
	}
	return nil
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	value := getEnv(key, "")
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvFloat(key string, fallback float64) float64 {
	value := getEnv(key, "")
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvBool(key string, fallback bool) bool {
	value := strings.ToLower(strings.TrimSpace(getEnv(key, "")))
	if value == "" {
		return fallback
	}
	if value == "1" || value == "true" || value == "yes" || value == "on" {
		return true
	}
	if value == "0" || value == "false" || value == "no" || value == "off" {
		return false
	}
	return fallback
}
