package config

import (
	"os"
	"strconv"
	"time"
)

// parseEnv overlays environment variables onto Config. Variable names match
// what the deployment already exports (SMTP_*, TELEGRAM_*, FRONTEND_URL);
// unset variables leave the current values in place.
func parseEnv(config *Config) {
	overlayString(&config.HTTPAddr, "HTTP_ADDR")
	overlayString(&config.DatabaseDSN, "DATABASE_DSN")
	overlayString(&config.RedisURI, "REDIS_URI")
	overlayString(&config.QueueName, "QUEUE_NAME")
	overlayString(&config.JWTSecret, "JWT_SECRET")
	overlayDuration(&config.AccessTokenTTL, "ACCESS_TOKEN_TTL")
	overlayDuration(&config.RefreshTokenTTL, "REFRESH_TOKEN_TTL")
	overlayString(&config.SessionSecret, "TELEGRAM_SESSION_SECRET")
	overlayString(&config.FrontendURL, "FRONTEND_URL")
	overlayString(&config.SMTPHost, "SMTP_HOST")
	overlayInt(&config.SMTPPort, "SMTP_PORT")
	overlayString(&config.SMTPUser, "SMTP_USER")
	overlayString(&config.SMTPPass, "SMTP_PASS")
	overlayString(&config.SMTPFrom, "SMTP_FROM")
	overlayInt(&config.TelegramAPIID, "TELEGRAM_API_ID")
	overlayString(&config.TelegramAPIHash, "TELEGRAM_API_HASH")
	overlayDuration(&config.TelegramCallTimeout, "TELEGRAM_CALL_TIMEOUT")
	overlayInt(&config.WorkerCount, "WORKER_COUNT")
	overlayBool(&config.UnifyLoginErrors, "UNIFY_LOGIN_ERRORS")
}

func overlayString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func overlayInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			*dst = parsed
		}
	}
}

func overlayBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if parsed, err := strconv.ParseBool(v); err == nil {
			*dst = parsed
		}
	}
}

func overlayDuration(dst *time.Duration, key string) {
	if v := os.Getenv(key); v != "" {
		if parsed, err := time.ParseDuration(v); err == nil {
			*dst = parsed
		}
	}
}
