/*
Copyright 2024 Blnk Finance Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"strings"
	"sync/atomic"
	"time"
	_ "time/tzdata"

	"github.com/kelseyhightower/envconfig"

	"github.com/sirupsen/logrus"
)

const (
	DEFAULT_PORT        = "5001"
	DEFAULT_DATA_SOURCE = "file://./data"
	DEFAULT_CONFIG_FILE = "payrecon.json"
)

var ConfigStore atomic.Value

type ServerConfig struct {
	SSL       bool   `json:"ssl" envconfig:"PAYRECON_SERVER_SSL"`
	Secure    bool   `json:"secure" envconfig:"PAYRECON_SERVER_SECURE"`
	SecretKey string `json:"secret_key" envconfig:"PAYRECON_SERVER_SECRET_KEY"`
	Domain    string `json:"domain" envconfig:"PAYRECON_SERVER_SSL_DOMAIN"`
	Email     string `json:"ssl_email" envconfig:"PAYRECON_SERVER_SSL_EMAIL"`
	Port      string `json:"port" envconfig:"PAYRECON_SERVER_PORT"`
}

// DataSourceConfig selects the blob store. The scheme of Dns picks the
// backend: file://, postgres://, mysql://, sqlite://, redis://.
type DataSourceConfig struct {
	Dns string `json:"dns" envconfig:"PAYRECON_DATA_SOURCE_DNS"`
}

type RedisConfig struct {
	Dns           string `json:"dns" envconfig:"PAYRECON_REDIS_DNS"`
	SkipTLSVerify bool   `json:"skip_tls_verify" envconfig:"PAYRECON_REDIS_SKIP_TLS_VERIFY"`
}

// GatewayConfig points at the HTTP chat gateway that owns the chat session.
type GatewayConfig struct {
	BaseURL    string `json:"base_url" envconfig:"PAYRECON_GATEWAY_BASE_URL"`
	Token      string `json:"token" envconfig:"PAYRECON_GATEWAY_TOKEN"`
	TimeoutSec int    `json:"timeout_sec" envconfig:"PAYRECON_GATEWAY_TIMEOUT_SEC"`
	MaxRetries uint64 `json:"max_retries" envconfig:"PAYRECON_GATEWAY_MAX_RETRIES"`
}

type OCRConfig struct {
	Provider string `json:"provider" envconfig:"PAYRECON_OCR_PROVIDER"` // openai, gemini or empty
	ApiKey   string `json:"api_key" envconfig:"PAYRECON_OCR_API_KEY"`
	Model    string `json:"model" envconfig:"PAYRECON_OCR_MODEL"`
	BaseURL  string `json:"base_url" envconfig:"PAYRECON_OCR_BASE_URL"`
}

type ReconciliationConfig struct {
	PendingTTLSec       int     `json:"pending_ttl_sec" envconfig:"PAYRECON_PENDING_TTL_SEC"`
	SweepIntervalSec    int     `json:"sweep_interval_sec" envconfig:"PAYRECON_PENDING_SWEEP_INTERVAL_SEC"`
	SimilarityThreshold float64 `json:"similarity_threshold" envconfig:"PAYRECON_SIMILARITY_THRESHOLD"`
	ConfirmationMarker  string  `json:"confirmation_marker" envconfig:"PAYRECON_CONFIRMATION_MARKER"`
	GrammarFile         string  `json:"grammar_file" envconfig:"PAYRECON_GRAMMAR_FILE"`
	Timezone            string  `json:"timezone" envconfig:"PAYRECON_TIMEZONE"`
	IgnoredSenderTag    string  `json:"ignored_sender_tag" envconfig:"PAYRECON_IGNORED_SENDER_TAG"`
	InactiveAfterDays   int     `json:"inactive_after_days" envconfig:"PAYRECON_INACTIVE_AFTER_DAYS"`
}

type SpamConfig struct {
	Threshold        int    `json:"threshold" envconfig:"PAYRECON_SPAM_THRESHOLD"`
	WindowSec        int    `json:"window_sec" envconfig:"PAYRECON_SPAM_WINDOW_SEC"`
	MinLength        int    `json:"min_length" envconfig:"PAYRECON_SPAM_MIN_LENGTH"`
	CommandPrefix    string `json:"command_prefix" envconfig:"PAYRECON_COMMAND_PREFIX"`
	SweepIntervalSec int    `json:"sweep_interval_sec" envconfig:"PAYRECON_SPAM_SWEEP_INTERVAL_SEC"`
	LockdownDelayMs  *int   `json:"lockdown_delay_ms" envconfig:"PAYRECON_SPAM_LOCKDOWN_DELAY_MS"`
	AdminCacheSec    int    `json:"admin_cache_sec" envconfig:"PAYRECON_ADMIN_CACHE_SEC"`
}

type MembershipConfig struct {
	CountryCode       string `json:"country_code" envconfig:"PAYRECON_COUNTRY_CODE"`
	CleanupConfirmSec int    `json:"cleanup_confirm_sec" envconfig:"PAYRECON_CLEANUP_CONFIRM_SEC"`
	RemovalDelayMs    *int   `json:"removal_delay_ms" envconfig:"PAYRECON_REMOVAL_DELAY_MS"`
}

type RateLimitConfig struct {
	RequestsPerSecond  *float64 `json:"requests_per_second" envconfig:"PAYRECON_RATE_LIMIT_RPS"`
	Burst              *int     `json:"burst" envconfig:"PAYRECON_RATE_LIMIT_BURST"`
	CleanupIntervalSec *int     `json:"cleanup_interval_sec" envconfig:"PAYRECON_RATE_LIMIT_CLEANUP_INTERVAL_SEC"`
}

type SlackWebhook struct {
	WebhookUrl string `json:"webhook_url" envconfig:"PAYRECON_SLACK_WEBHOOK_URL"`
}

type WebhookConfig struct {
	Url     string            `json:"url" envconfig:"PAYRECON_WEBHOOK_URL"`
	Headers map[string]string `json:"headers"`
}

type Notification struct {
	Slack   SlackWebhook  `json:"slack"`
	Webhook WebhookConfig `json:"webhook"`
}

type Configuration struct {
	ProjectName        string               `json:"project_name" envconfig:"PAYRECON_PROJECT_NAME"`
	BackupDir          string               `json:"backup_dir" envconfig:"PAYRECON_BACKUP_DIR"`
	AwsAccessKeyId     string               `json:"aws_access_key_id" envconfig:"PAYRECON_AWS_ACCESS_KEY_ID"`
	S3Endpoint         string               `json:"s3_endpoint" envconfig:"PAYRECON_S3_ENDPOINT"`
	AwsSecretAccessKey string               `json:"aws_secret_access_key" envconfig:"PAYRECON_AWS_SECRET_ACCESS_KEY"`
	S3BucketName       string               `json:"s3_bucket_name" envconfig:"PAYRECON_S3_BUCKET_NAME"`
	S3Region           string               `json:"s3_region" envconfig:"PAYRECON_S3_REGION"`
	EnableTelemetry    bool                 `json:"enable_telemetry" envconfig:"PAYRECON_ENABLE_TELEMETRY"`
	PostHogKey         string               `json:"posthog_key" envconfig:"PAYRECON_POSTHOG_KEY"`
	OtelEndpoint       string               `json:"otel_endpoint" envconfig:"PAYRECON_OTEL_ENDPOINT"`
	Server             ServerConfig         `json:"server"`
	DataSource         DataSourceConfig     `json:"data_source"`
	Redis              RedisConfig          `json:"redis"`
	Gateway            GatewayConfig        `json:"gateway"`
	OCR                OCRConfig            `json:"ocr"`
	Reconciliation     ReconciliationConfig `json:"reconciliation"`
	Spam               SpamConfig           `json:"spam"`
	Membership         MembershipConfig     `json:"membership"`
	Notification       Notification         `json:"notification"`
	RateLimit          RateLimitConfig      `json:"rate_limit"`
}

func loadConfigFromFile(file string) error {
	var cnf Configuration
	_, err := os.Stat(file)
	if err == nil {
		f, err := os.Open(file)
		if err != nil {
			return err
		}
		defer f.Close()
		err = json.NewDecoder(f).Decode(&cnf)
		if err != nil {
			return err
		}

	} else if errors.Is(err, os.ErrNotExist) {
		log.Println("config json not passed, will use env variables")
	}

	// override config from environment variables
	err = envconfig.Process("payrecon", &cnf)
	if err != nil {
		return err
	}

	err = cnf.validateAndAddDefaults()
	if err != nil {
		return err
	}

	ConfigStore.Store(&cnf)
	return err
}

func InitConfig(configFile string) error {
	logger()
	return loadConfigFromFile(configFile)
}

func Fetch() (*Configuration, error) {
	config := ConfigStore.Load()
	c, ok := config.(*Configuration)
	if !ok {
		return nil, errors.New("config not loaded from file. Create a json file called payrecon.json with your config ❌")
	}
	return c, nil
}

func intOr(v *int, def int) *int {
	if v != nil {
		return v
	}
	return &def
}

func (cnf *Configuration) validateAndAddDefaults() error {
	if cnf.ProjectName == "" {
		log.Println("Warning: Project name is empty. Setting a default name.")
		cnf.ProjectName = "Payrecon"
	}

	// Trim white spaces from fields
	cnf.ProjectName = strings.TrimSpace(cnf.ProjectName)
	cnf.Server.Port = strings.TrimSpace(cnf.Server.Port)
	cnf.DataSource.Dns = strings.TrimSpace(cnf.DataSource.Dns)
	cnf.Redis.Dns = strings.TrimSpace(cnf.Redis.Dns)
	cnf.Gateway.BaseURL = strings.TrimRight(strings.TrimSpace(cnf.Gateway.BaseURL), "/")

	if cnf.DataSource.Dns == "" {
		cnf.DataSource.Dns = DEFAULT_DATA_SOURCE
		log.Printf("Warning: Data source DNS not specified. Using file store: %s", DEFAULT_DATA_SOURCE)
	}

	// Set default value for Port if it's empty
	if cnf.Server.Port == "" {
		cnf.Server.Port = DEFAULT_PORT
		log.Printf("Warning: Port not specified in config. Setting default port: %s", DEFAULT_PORT)
	}

	if cnf.Gateway.TimeoutSec <= 0 {
		cnf.Gateway.TimeoutSec = 30
	}
	if cnf.Gateway.MaxRetries == 0 {
		cnf.Gateway.MaxRetries = 3
	}

	switch cnf.OCR.Provider {
	case "", "openai", "gemini":
	default:
		return fmt.Errorf("unknown OCR provider %q", cnf.OCR.Provider)
	}
	if cnf.OCR.Provider != "" && cnf.OCR.ApiKey == "" {
		return errors.New("OCR api key is required when an OCR provider is set")
	}

	r := &cnf.Reconciliation
	if r.PendingTTLSec <= 0 {
		r.PendingTTLSec = 30 * 60
	}
	if r.SweepIntervalSec <= 0 {
		r.SweepIntervalSec = 10 * 60
	}
	if r.SimilarityThreshold <= 0 || r.SimilarityThreshold > 1 {
		r.SimilarityThreshold = 0.8
	}
	if r.ConfirmationMarker == "" {
		r.ConfirmationMarker = "Transação Concluída Com Sucesso"
	}
	if r.Timezone == "" {
		r.Timezone = "Africa/Maputo"
	}
	if _, err := time.LoadLocation(r.Timezone); err != nil {
		return fmt.Errorf("invalid timezone %q: %w", r.Timezone, err)
	}
	if r.IgnoredSenderTag == "" {
		r.IgnoredSenderTag = "AutoBot"
	}
	if r.InactiveAfterDays <= 0 {
		r.InactiveAfterDays = 15
	}

	s := &cnf.Spam
	if s.Threshold <= 0 {
		s.Threshold = 5
	}
	if s.WindowSec <= 0 {
		s.WindowSec = 60
	}
	if s.MinLength <= 0 {
		s.MinLength = 10
	}
	if s.CommandPrefix == "" {
		s.CommandPrefix = "."
	}
	if s.SweepIntervalSec <= 0 {
		s.SweepIntervalSec = 5 * 60
	}
	s.LockdownDelayMs = intOr(s.LockdownDelayMs, 2000)
	if s.AdminCacheSec <= 0 {
		s.AdminCacheSec = 60
	}

	m := &cnf.Membership
	if m.CountryCode == "" {
		m.CountryCode = "258"
	}
	m.CountryCode = strings.TrimPrefix(strings.TrimSpace(m.CountryCode), "+")
	if m.CleanupConfirmSec <= 0 {
		m.CleanupConfirmSec = 120
	}
	m.RemovalDelayMs = intOr(m.RemovalDelayMs, 1000)

	if cnf.BackupDir == "" {
		cnf.BackupDir = "./backups"
	}

	// Rate limiting is disabled by default (when both RPS and Burst are nil)
	if cnf.RateLimit.RequestsPerSecond != nil && cnf.RateLimit.Burst == nil {
		defaultBurst := 2 * int(*cnf.RateLimit.RequestsPerSecond)
		cnf.RateLimit.Burst = &defaultBurst
		log.Printf("Warning: Rate limit burst not specified. Setting default value: %d", defaultBurst)
	}
	if cnf.RateLimit.RequestsPerSecond == nil && cnf.RateLimit.Burst != nil {
		defaultRPS := float64(*cnf.RateLimit.Burst) / 2
		cnf.RateLimit.RequestsPerSecond = &defaultRPS
		log.Printf("Warning: Rate limit RPS not specified. Setting default value: %.2f", defaultRPS)
	}

	// Set default cleanup interval if not specified
	if cnf.RateLimit.CleanupIntervalSec == nil {
		defaultCleanup := 10800 // 3 hours in seconds
		cnf.RateLimit.CleanupIntervalSec = &defaultCleanup
	}

	return nil
}

// Location returns the timezone used for day buckets and inactivity.
func (cnf *Configuration) Location() *time.Location {
	loc, err := time.LoadLocation(cnf.Reconciliation.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// Defaults returns a configuration holding only default values.
func Defaults() *Configuration {
	cnf := &Configuration{}
	_ = cnf.validateAndAddDefaults()
	return cnf
}

// MockConfig sets a mock configuration for testing purposes.
func MockConfig(mockConfig *Configuration) {
	ConfigStore.Store(mockConfig)
}

func logger() {
	logger := logrus.New()
	log.SetOutput(logger.Writer())
}
