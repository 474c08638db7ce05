package config

import (
	"encoding/json"
	"os"
	"time"

	"github.com/dmitrijs2005/tglinker/internal/flagx"
)

// duration allows JSON interval fields to be written either as strings such
// as "15m" or as integer nanoseconds.
type duration struct {
	time.Duration
}

func (d *duration) UnmarshalJSON(data []byte) error {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	switch value := v.(type) {
	case float64:
		d.Duration = time.Duration(value)
		return nil
	case string:
		parsed, err := time.ParseDuration(value)
		if err != nil {
			return err
		}
		d.Duration = parsed
		return nil
	default:
		return &json.UnsupportedTypeError{}
	}
}

// JsonConfig is an intermediate DTO used only for reading JSON configuration
// files. After unmarshalling, its fields are copied into the runtime Config.
// Zero values are treated as "not set" and leave the defaults in place.
type JsonConfig struct {
	HTTPAddr            string   `json:"http_addr"`
	DatabaseDSN         string   `json:"database_dsn"`
	RedisURI            string   `json:"redis_uri"`
	QueueName           string   `json:"queue_name"`
	SecretKey           string   `json:"secret_key"`
	AccessTokenTTL      duration `json:"access_token_ttl"`
	RefreshTokenTTL     duration `json:"refresh_token_ttl"`
	SessionSecret       string   `json:"session_secret"`
	FrontendURL         string   `json:"frontend_url"`
	SMTPHost            string   `json:"smtp_host"`
	SMTPPort            int      `json:"smtp_port"`
	SMTPUser            string   `json:"smtp_user"`
	SMTPPass            string   `json:"smtp_pass"`
	SMTPFrom            string   `json:"smtp_from"`
	TelegramAPIID       int      `json:"telegram_api_id"`
	TelegramAPIHash     string   `json:"telegram_api_hash"`
	TelegramCallTimeout duration `json:"telegram_call_timeout"`
	WorkerCount         int      `json:"worker_count"`
	RequestCodeAttempts int      `json:"request_code_attempts"`
	VerifyCodeAttempts  int      `json:"verify_code_attempts"`
	UnifyLoginErrors    *bool    `json:"unify_login_errors"`
	MinPasswordLength   int      `json:"min_password_length"`
}

// parseJson loads configuration values from a JSON file into the provided
// Config instance. The file path comes from the -c or -config command-line
// flags; when neither is set, no JSON file is loaded. An unreadable or
// invalid file panics, since a requested config file that cannot be applied
// is a startup error.
func parseJson(config *Config) {
	jsonConfigFile := flagx.JsonConfigFlags()
	if jsonConfigFile == "" {
		return
	}

	c := &JsonConfig{}

	file, err := os.ReadFile(jsonConfigFile)
	if err != nil {
		panic(err)
	}
	if err := json.Unmarshal(file, c); err != nil {
		panic(err)
	}

	setString(&config.HTTPAddr, c.HTTPAddr)
	setString(&config.DatabaseDSN, c.DatabaseDSN)
	setString(&config.RedisURI, c.RedisURI)
	setString(&config.QueueName, c.QueueName)
	setString(&config.JWTSecret, c.SecretKey)
	setDuration(&config.AccessTokenTTL, c.AccessTokenTTL)
	setDuration(&config.RefreshTokenTTL, c.RefreshTokenTTL)
	setString(&config.SessionSecret, c.SessionSecret)
	setString(&config.FrontendURL, c.FrontendURL)
	setString(&config.SMTPHost, c.SMTPHost)
	setInt(&config.SMTPPort, c.SMTPPort)
	setString(&config.SMTPUser, c.SMTPUser)
	setString(&config.SMTPPass, c.SMTPPass)
	setString(&config.SMTPFrom, c.SMTPFrom)
	setInt(&config.TelegramAPIID, c.TelegramAPIID)
	setString(&config.TelegramAPIHash, c.TelegramAPIHash)
	setDuration(&config.TelegramCallTimeout, c.TelegramCallTimeout)
	setInt(&config.WorkerCount, c.WorkerCount)
	setInt(&config.RequestCodeAttempts, c.RequestCodeAttempts)
	setInt(&config.VerifyCodeAttempts, c.VerifyCodeAttempts)
	if c.UnifyLoginErrors != nil {
		config.UnifyLoginErrors = *c.UnifyLoginErrors
	}
	setInt(&config.MinPasswordLength, c.MinPasswordLength)
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func setInt(dst *int, v int) {
	if v != 0 {
		*dst = v
	}
}

func setDuration(dst *time.Duration, v duration) {
	if v.Duration != 0 {
		*dst = v.Duration
	}
}
