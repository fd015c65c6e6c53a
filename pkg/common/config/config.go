package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	BackendAirtable = "airtable"
	BackendPostgres = "postgres"
	BackendMemory   = "memory"
)

type Config struct {
	// Server
	ServerPort         string
	ServerHost         string
	ReadTimeout        time.Duration
	WriteTimeout       time.Duration
	MaxRequestBody     int64
	CORSAllowedOrigins []string

	// Record store
	RecordStoreBackend string

	// Airtable
	AirtableToken           string
	AirtableBaseID          string
	AirtableAPIURL          string
	AirtableTableName       string
	AirtablePatientsTable   string
	AirtableProviderIDField string
	AirtableViewName        string

	// Database
	PostgresHost     string
	PostgresPort     string
	PostgresUser     string
	PostgresPassword string
	PostgresDB       string
	PostgresSSLMode  string

	// Kafka
	KafkaBrokers []string
	KafkaTopic   string

	// Zoho CRM
	ZohoClientID     string
	ZohoClientSecret string
	ZohoRedirectURI  string
	ZohoDC           string
	ZohoScopes       []string
	ZohoLeadCompany  string
	ZohoLeadSource   string

	// LLM
	LLMCatalogPath    string
	LLMRequestTimeout time.Duration

	// DLP
	DLPRulesPath string
}

func Load() *Config {
	return &Config{
		ServerPort:     getEnv("SERVER_PORT", "8080"),
		ServerHost:     getEnv("SERVER_HOST", "0.0.0.0"),
		ReadTimeout:    getDuration("READ_TIMEOUT", 30*time.Second),
		WriteTimeout:   getDuration("WRITE_TIMEOUT", 60*time.Second),
		MaxRequestBody: int64(getIntEnv("MAX_REQUEST_BODY_BYTES", 4*1024*1024)),
		CORSAllowedOrigins: getStringSliceEnv("CORS_ALLOWED_ORIGINS", []string{
			"https://creator.voiceflow.com",
			"https://general.voiceflow.com",
			"https://api.bastiongpt.com",
		}),

		RecordStoreBackend: strings.ToLower(getEnv("RECORD_STORE_BACKEND", BackendAirtable)),

		AirtableToken:           getEnv("AIRTABLE_PERSONAL_TOKEN", os.Getenv("AIRTABLE_API_KEY")),
		AirtableBaseID:          getEnv("AIRTABLE_BASE_ID", ""),
		AirtableAPIURL:          getEnv("AIRTABLE_API_URL", "https://api.airtable.com/v0"),
		AirtableTableName:       getEnv("AIRTABLE_TABLE_NAME", "Doctors"),
		AirtablePatientsTable:   getEnv("AIRTABLE_PATIENTS_TABLE_NAME", "Patients"),
		AirtableProviderIDField: strings.TrimSpace(getEnv("AIRTABLE_PROVIDER_ID_FIELD", "")),
		AirtableViewName:        getEnv("AIRTABLE_VIEW_NAME", ""),

		PostgresHost:     getEnv("POSTGRES_HOST", "localhost"),
		PostgresPort:     getEnv("POSTGRES_PORT", "5432"),
		PostgresUser:     getEnv("POSTGRES_USER", "providerhub"),
		PostgresPassword: getEnv("POSTGRES_PASSWORD", ""),
		PostgresDB:       getEnv("POSTGRES_DB", "providerhub"),
		PostgresSSLMode:  getEnv("POSTGRES_SSLMODE", "disable"),

		KafkaBrokers: getStringSliceEnv("KAFKA_BROKERS", nil),
		KafkaTopic:   getEnv("KAFKA_TOPIC", "providerhub.events"),

		ZohoClientID:     getEnv("ZOHO_CLIENT_ID", ""),
		ZohoClientSecret: getEnv("ZOHO_CLIENT_SECRET", ""),
		ZohoRedirectURI:  getEnv("ZOHO_REDIRECT_URI", ""),
		ZohoDC:           strings.TrimSpace(getEnv("ZOHO_DC", "com")),
		ZohoScopes:       getStringSliceEnv("ZOHO_SCOPES", []string{"ZohoCRM.modules.ALL", "ZohoCRM.settings.ALL"}),
		ZohoLeadCompany:  getEnv("ZOHO_LEAD_COMPANY", "Inbound - Voiceflow"),
		ZohoLeadSource:   getEnv("ZOHO_LEAD_SOURCE", "Chatbot"),

		LLMCatalogPath:    getEnv("LLM_CATALOG_PATH", ""),
		LLMRequestTimeout: getDuration("LLM_REQUEST_TIMEOUT", 60*time.Second),

		DLPRulesPath: getEnv("DLP_RULES_PATH", ""),
	}
}

// Validate reports settings the selected record store backend cannot run without.
func (c *Config) Validate() error {
	switch c.RecordStoreBackend {
	case BackendAirtable:
		if c.AirtableToken == "" || c.AirtableBaseID == "" {
			return fmt.Errorf("airtable backend requires AIRTABLE_PERSONAL_TOKEN and AIRTABLE_BASE_ID")
		}
	case BackendPostgres, BackendMemory:
	default:
		return fmt.Errorf("unknown RECORD_STORE_BACKEND %q", c.RecordStoreBackend)
	}
	if c.AirtableTableName == "" || c.AirtablePatientsTable == "" {
		return fmt.Errorf("provider and patient table names must be set")
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// getStringSliceEnv splits a comma separated value, dropping empty entries.
func getStringSliceEnv(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func getDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
