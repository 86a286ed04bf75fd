package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	// HTTP Server
	Port string

	// Backend selection
	DataBackend string

	// REST backend (hosted AhorraPlus API)
	BackendBaseURL     string
	BackendAuthToken   string
	BackendCallTimeout time.Duration

	// Postgres backend
	PostgresURL string

	// SQLite backend
	SQLiteDBPath string

	// Session tokens
	JWTSecret string

	// AMQP
	AMQPURL      string
	AMQPExchange string
	AMQPQueue    string

	// SMTP (notify worker)
	SMTPHost     string
	SMTPPort     string
	SMTPUsername string
	SMTPPassword string
	SenderEmail  string

	// Periodic reconciliation
	RefreshSchedule string

	// Google Sheets export
	GoogleSpreadsheetID   string
	GoogleSheetName       string
	GoogleCredentialsFile string
	GoogleCredentialsJSON string
}

func Load() *Config {
	cfg := &Config{
		Port:        getEnv("PORT", "8080"),
		DataBackend: getEnv("DATA_BACKEND", "rest"),

		BackendBaseURL:     getEnv("BACKEND_BASE_URL", "http://localhost:3000/api"),
		BackendAuthToken:   getEnv("BACKEND_AUTH_TOKEN", ""),
		BackendCallTimeout: getEnvDuration("BACKEND_CALL_TIMEOUT", 10*time.Second),

		PostgresURL:  getEnv("POSTGRES_URL", ""),
		SQLiteDBPath: getEnv("SQLITE_DB_PATH", "./data/ahorraplus.db"),

		JWTSecret: getEnv("JWT_SECRET", ""),

		AMQPURL:      getEnv("AMQP_URL", ""),
		AMQPExchange: getEnv("AMQP_EXCHANGE", "ahorraplus"),
		AMQPQueue:    getEnv("AMQP_QUEUE", "goal_completions"),

		SMTPHost:     getEnv("SMTP_HOST", ""),
		SMTPPort:     getEnv("SMTP_PORT", "587"),
		SMTPUsername: getEnv("SMTP_USERNAME", ""),
		SMTPPassword: getEnv("SMTP_PASSWORD", ""),
		SenderEmail:  getEnv("SENDER_EMAIL", ""),

		RefreshSchedule: getEnv("REFRESH_SCHEDULE", "@every 5m"),

		GoogleSpreadsheetID:   getEnv("GOOGLE_SPREADSHEET_ID", ""),
		GoogleSheetName:       getEnv("GOOGLE_SHEET_NAME", "Metas"),
		GoogleCredentialsFile: getEnv("GOOGLE_CREDENTIALS_FILE", ""),
		GoogleCredentialsJSON: getEnv("GOOGLE_CREDENTIALS_JSON", ""),
	}

	return cfg
}

// Validate validates the configuration and returns an error if invalid
func (c *Config) Validate() error {
	var errors []string

	// Validate port
	if port, err := strconv.Atoi(c.Port); err != nil {
		errors = append(errors, fmt.Sprintf("invalid port '%s': must be a number", c.Port))
	} else if port < 1 || port > 65535 {
		errors = append(errors, fmt.Sprintf("invalid port %d: must be between 1 and 65535", port))
	}

	// Validate data backend
	validBackends := []string{"rest", "postgres", "sqlite", "memory"}
	isValidBackend := false
	for _, backend := range validBackends {
		if c.DataBackend == backend {
			isValidBackend = true
			break
		}
	}
	if !isValidBackend {
		errors = append(errors, fmt.Sprintf("invalid data backend '%s': must be one of %v", c.DataBackend, validBackends))
	}

	// Validate REST configuration if backend is rest
	if c.DataBackend == "rest" {
		if c.BackendBaseURL == "" {
			errors = append(errors, "backend base URL cannot be empty when using rest backend")
		} else if parsedURL, err := url.Parse(c.BackendBaseURL); err != nil {
			errors = append(errors, fmt.Sprintf("invalid backend base URL '%s': %v", c.BackendBaseURL, err))
		} else if parsedURL.Scheme != "http" && parsedURL.Scheme != "https" {
			errors = append(errors, fmt.Sprintf("invalid backend base URL scheme '%s': must be 'http' or 'https'", parsedURL.Scheme))
		}
		if c.BackendCallTimeout < time.Second {
			errors = append(errors, fmt.Sprintf("invalid backend call timeout %v: must be at least 1 second", c.BackendCallTimeout))
		} else if c.BackendCallTimeout > time.Minute {
			errors = append(errors, fmt.Sprintf("invalid backend call timeout %v: must be at most 1 minute", c.BackendCallTimeout))
		}
	}

	// Validate Postgres configuration if backend is postgres
	if c.DataBackend == "postgres" && c.PostgresURL == "" {
		errors = append(errors, "Postgres URL cannot be empty when using postgres backend")
	}

	// Validate SQLite configuration if backend is sqlite
	if c.DataBackend == "sqlite" {
		if c.SQLiteDBPath == "" {
			errors = append(errors, "SQLite database path cannot be empty when using sqlite backend")
		} else {
			dir := filepath.Dir(c.SQLiteDBPath)
			if dir != "." && dir != "" {
				if _, err := os.Stat(dir); os.IsNotExist(err) {
					if err := os.MkdirAll(dir, 0755); err != nil {
						errors = append(errors, fmt.Sprintf("cannot create SQLite database directory '%s': %v", dir, err))
					}
				}
			}
		}
	}

	// Validate AMQP URL if provided
	if c.AMQPURL != "" {
		if parsedURL, err := url.Parse(c.AMQPURL); err != nil {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL '%s': %v", c.AMQPURL, err))
		} else if parsedURL.Scheme != "amqp" && parsedURL.Scheme != "amqps" {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL scheme '%s': must be 'amqp' or 'amqps'", parsedURL.Scheme))
		}
		if c.AMQPExchange == "" {
			errors = append(errors, "AMQP exchange name cannot be empty when AMQP URL is provided")
		}
		if c.AMQPQueue == "" {
			errors = append(errors, "AMQP queue name cannot be empty when AMQP URL is provided")
		}
	}

	// Validate SMTP configuration if a host is provided
	if c.SMTPHost != "" {
		if _, err := strconv.Atoi(c.SMTPPort); err != nil {
			errors = append(errors, fmt.Sprintf("invalid SMTP port '%s': must be a number", c.SMTPPort))
		}
		if c.SenderEmail == "" {
			errors = append(errors, "sender email cannot be empty when SMTP host is provided")
		}
	}

	if c.RefreshSchedule == "" {
		errors = append(errors, "refresh schedule cannot be empty")
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed:\n- %s", strings.Join(errors, "\n- "))
	}

	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
