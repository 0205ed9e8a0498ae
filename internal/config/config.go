package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Port        string
	DatabaseURL string
	RedisAddr   string

	DefaultServiceMinutes int

	StaleCalledGrace    time.Duration
	StaleCalledInterval time.Duration
	StaleCalledBatch    int

	DispatchInterval   time.Duration
	DispatchBatchSize  int
	ReminderInterval   time.Duration
	ReminderBatchSize  int
	ReminderMaxRetries int
	ProducerInterval   time.Duration
	ProducerBatchSize  int
	EscalateInterval   time.Duration
	EscalateBatchSize  int

	ProviderRetryEnabled bool
	SMSAPIURL            string
	SMSFrom              string
	SMSToken             string
	SMTPHost             string
	SMTPPort             string
	SMTPUsername         string
	SMTPPassword         string
	SMTPFrom             string
	PushAPIURL           string
	PushServerKey        string
	WhatsAppAPIURL       string
	WhatsAppPhoneID      string
	WhatsAppToken        string
	ProviderTimeout      time.Duration

	BPJSBaseURL    string
	BPJSConsID     string
	BPJSSecretKey  string
	BPJSUserKey    string
	BPJSMaxRetries int
	SyncInterval   time.Duration
	SyncBatchSize  int
	SyncMaxRetries int

	PollInterval time.Duration
	BatchSize    int

	RateLimitPerMinute        int
	RateLimitBurst            int
	PatientRateLimitPerMinute int
	PatientRateLimitBurst     int
}

// Load reads configuration from the environment, pulling in a .env file
// first when one exists.
func Load() Config {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Printf("dotenv load error: %v", err)
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	return Config{
		Port:        port,
		DatabaseURL: os.Getenv("DB_DSN"),
		RedisAddr:   os.Getenv("REDIS_ADDR"),

		DefaultServiceMinutes: readInt("DEFAULT_SERVICE_MINUTES", 10),

		StaleCalledGrace:    readDurationSeconds("STALE_CALLED_GRACE_SECONDS", 300),
		StaleCalledInterval: readDurationSeconds("STALE_CALLED_SCAN_INTERVAL_SECONDS", 30),
		StaleCalledBatch:    readInt("STALE_CALLED_BATCH_SIZE", 100),

		DispatchInterval:   readDurationSeconds("DISPATCH_INTERVAL_SECONDS", 5),
		DispatchBatchSize:  readInt("DISPATCH_BATCH_SIZE", 50),
		ReminderInterval:   readDurationSeconds("REMINDER_INTERVAL_SECONDS", 60),
		ReminderBatchSize:  readInt("REMINDER_BATCH_SIZE", 50),
		ReminderMaxRetries: readInt("REMINDER_MAX_RETRIES", 3),
		ProducerInterval:   readDurationSeconds("PRODUCER_INTERVAL_SECONDS", 2),
		ProducerBatchSize:  readInt("PRODUCER_BATCH_SIZE", 100),
		EscalateInterval:   readDurationSeconds("ESCALATE_INTERVAL_SECONDS", 60),
		EscalateBatchSize:  readInt("ESCALATE_BATCH_SIZE", 100),

		ProviderRetryEnabled: readBool("PROVIDER_RETRY_ENABLED", false),
		SMSAPIURL:            os.Getenv("SMS_API_URL"),
		SMSFrom:              os.Getenv("SMS_FROM"),
		SMSToken:             os.Getenv("SMS_TOKEN"),
		SMTPHost:             os.Getenv("SMTP_HOST"),
		SMTPPort:             envOr("SMTP_PORT", "587"),
		SMTPUsername:         os.Getenv("SMTP_USERNAME"),
		SMTPPassword:         os.Getenv("SMTP_PASSWORD"),
		SMTPFrom:             os.Getenv("SMTP_FROM"),
		PushAPIURL:           os.Getenv("PUSH_API_URL"),
		PushServerKey:        os.Getenv("PUSH_SERVER_KEY"),
		WhatsAppAPIURL:       os.Getenv("WHATSAPP_API_URL"),
		WhatsAppPhoneID:      os.Getenv("WHATSAPP_PHONE_ID"),
		WhatsAppToken:        os.Getenv("WHATSAPP_TOKEN"),
		ProviderTimeout:      readDurationSeconds("PROVIDER_TIMEOUT_SECONDS", 30),

		BPJSBaseURL:    os.Getenv("BPJS_BASE_URL"),
		BPJSConsID:     os.Getenv("BPJS_CONS_ID"),
		BPJSSecretKey:  os.Getenv("BPJS_SECRET_KEY"),
		BPJSUserKey:    os.Getenv("BPJS_USER_KEY"),
		BPJSMaxRetries: readInt("BPJS_MAX_RETRIES", 3),
		SyncInterval:   readDurationSeconds("SYNC_INTERVAL_SECONDS", 15),
		SyncBatchSize:  readInt("SYNC_BATCH_SIZE", 50),
		SyncMaxRetries: readInt("SYNC_MAX_RETRIES", 3),

		PollInterval: readDurationSeconds("POLL_INTERVAL_SECONDS", 1),
		BatchSize:    readInt("BATCH_SIZE", 100),

		RateLimitPerMinute:        readInt("RATE_LIMIT_PER_MIN", 120),
		RateLimitBurst:            readInt("RATE_LIMIT_BURST", 30),
		PatientRateLimitPerMinute: readInt("PATIENT_RATE_LIMIT_PER_MIN", 600),
		PatientRateLimitBurst:     readInt("PATIENT_RATE_LIMIT_BURST", 120),
	}
}

func envOr(key, fallback string) string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	return value
}

func readDurationSeconds(key string, fallback int) time.Duration {
	value := readInt(key, fallback)
	if value <= 0 {
		return 0
	}
	return time.Duration(value) * time.Second
}

func readInt(key string, fallback int) int {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return value
}

func readBool(key string, fallback bool) bool {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	value, err := strconv.ParseBool(raw)
	if err != nil {
		return fallback
	}
	return value
}
