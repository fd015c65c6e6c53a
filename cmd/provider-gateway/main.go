package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/synaptica-ai/provider-hub/pkg/common/config"
	"github.com/synaptica-ai/provider-hub/pkg/common/database"
	"github.com/synaptica-ai/provider-hub/pkg/common/kafka"
	"github.com/synaptica-ai/provider-hub/pkg/common/logger"
	"github.com/synaptica-ai/provider-hub/pkg/directory"
	"github.com/synaptica-ai/provider-hub/pkg/dlp"
	"github.com/synaptica-ai/provider-hub/pkg/gateway/httpclient"
	"github.com/synaptica-ai/provider-hub/pkg/gateway/routes"
	"github.com/synaptica-ai/provider-hub/pkg/llm"
	"github.com/synaptica-ai/provider-hub/pkg/patients"
	"github.com/synaptica-ai/provider-hub/pkg/recordstore"
	"github.com/synaptica-ai/provider-hub/pkg/zoho"
	"gorm.io/gorm"
)

const (
	recordStoreTimeout = 30 * time.Second
	crmTimeout         = 12 * time.Second
)

func main() {
	logger.Init("provider-gateway")
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		logger.Log.WithError(err).Fatal("Invalid configuration")
	}

	store, db, err := openRecordStore(cfg)
	if err != nil {
		logger.Log.WithError(err).Fatal("Failed to open record store")
	}
	if db != nil {
		defer database.ClosePostgres(db)
	}

	masker := mustMasker(cfg.DLPRulesPath)
	catalog, err := llm.LoadCatalog(cfg.LLMCatalogPath)
	if err != nil {
		logger.Log.WithError(err).Fatal("Failed to load LLM catalog")
	}

	events := kafka.NewPublisher(cfg.KafkaBrokers, cfg.KafkaTopic)
	defer events.Close()

	providers := directory.NewService(store, cfg.AirtableTableName, cfg.AirtableViewName, cfg.AirtableProviderIDField)

	crmClient := httpclient.New(crmTimeout)
	tokens := zoho.NewTokenManager(providers, zoho.DefaultHosts, crmClient)
	crm := zoho.NewGateway(tokens, zoho.DefaultHosts, crmClient)
	oauth := zoho.NewOAuthFlow(providers, zoho.DefaultHosts, crmClient, zoho.OAuthSettings{
		ClientID:     cfg.ZohoClientID,
		ClientSecret: cfg.ZohoClientSecret,
		RedirectURI:  cfg.ZohoRedirectURI,
		DataCenter:   cfg.ZohoDC,
		Scopes:       cfg.ZohoScopes,
	})
	leads := zoho.NewLeadService(crm, zoho.LeadSettings{Company: cfg.ZohoLeadCompany, Source: cfg.ZohoLeadSource}, events)

	handler := routes.NewRouter(routes.Handlers{
		Doctors:  routes.NewDoctorHandler(providers, llm.NewClient(catalog, httpclient.New(cfg.LLMRequestTimeout))),
		Patients: routes.NewPatientHandler(patients.NewService(store, cfg.AirtablePatientsTable, providers, events, masker)),
		Zoho:     routes.NewZohoHandler(oauth, leads, events, masker),
	}, routes.RouterOptions{
		AllowedOrigins: cfg.CORSAllowedOrigins,
		MaxBodyBytes:   cfg.MaxRequestBody,
	})

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%s", cfg.ServerHost, cfg.ServerPort),
		Handler:      handler,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	go func() {
		logger.Log.WithFields(map[string]interface{}{
			"host":         cfg.ServerHost,
			"port":         cfg.ServerPort,
			"record_store": cfg.RecordStoreBackend,
			"events":       len(cfg.KafkaBrokers) > 0,
		}).Info("Provider Gateway started")

		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Log.WithError(err).Fatal("Failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Log.Info("Shutting down Provider Gateway...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Log.WithError(err).Error("Server forced to shutdown")
	}

	logger.Log.Info("Provider Gateway stopped")
}

// openRecordStore returns the configured backend; the *gorm.DB is non-nil only
// for postgres so main can close it.
func openRecordStore(cfg *config.Config) (recordstore.Store, *gorm.DB, error) {
	switch cfg.RecordStoreBackend {
	case config.BackendPostgres:
		db, err := database.OpenPostgres(cfg)
		if err != nil {
			return nil, nil, err
		}
		store := recordstore.NewPostgresStore(db)
		if err := store.AutoMigrate(); err != nil {
			database.ClosePostgres(db)
			return nil, nil, fmt.Errorf("migrate records table: %w", err)
		}
		return store, db, nil
	case config.BackendMemory:
		logger.Log.Warn("Using in-memory record store; data is lost on restart")
		return recordstore.NewMemoryStore(), nil, nil
	default:
		return recordstore.NewAirtableClient(cfg.AirtableAPIURL, cfg.AirtableBaseID, cfg.AirtableToken, httpclient.New(recordStoreTimeout)), nil, nil
	}
}

func mustMasker(path string) *dlp.Masker {
	rules, err := dlp.LoadRules(path)
	if err != nil {
		logger.Log.WithError(err).Fatal("Failed to load DLP rules")
	}
	masker, err := dlp.NewMasker(rules)
	if err != nil {
		logger.Log.WithError(err).Fatal("Invalid DLP rules")
	}
	return masker
}
