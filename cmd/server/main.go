// cmd/server/main.go
package main

import (
	"context"
	"encoding/json"
	"net/http"
	"os"

	"github.com/go-chi/chi/v5"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/bulkwave/messaging-backend/internal/config"
	"github.com/bulkwave/messaging-backend/internal/controller"
	"github.com/bulkwave/messaging-backend/internal/db"
	"github.com/bulkwave/messaging-backend/internal/dispatch"
	"github.com/bulkwave/messaging-backend/internal/gateway"
	"github.com/bulkwave/messaging-backend/internal/handler"
	"github.com/bulkwave/messaging-backend/internal/notify"
	"github.com/bulkwave/messaging-backend/internal/queue"
	"github.com/bulkwave/messaging-backend/internal/quota"
	"github.com/bulkwave/messaging-backend/internal/repository"
	"github.com/bulkwave/messaging-backend/internal/webhook"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Info().Msg("no .env file found, relying on OS environment variables")
	}
	cfg := config.MustLoad()
	setupLogging(cfg)

	conn, err := db.Connect(cfg.DSN())
	if err != nil {
		log.Fatal().Err(err).Msg("database connection failed")
	}

	accountRepo := &repository.AccountRepository{DB: conn}
	contactRepo := &repository.ContactRepository{DB: conn}
	templateRepo := &repository.TemplateRepository{DB: conn}
	campaignRepo := &repository.CampaignRepository{DB: conn}
	reportRepo := &repository.ReportRepository{DB: conn}
	stagingRepo := &repository.StagingRepository{DB: conn}
	conversationRepo := &repository.ConversationRepository{DB: conn}

	dispatcher := &dispatch.Dispatcher{
		Campaigns: campaignRepo,
		Contacts:  contactRepo,
		Templates: templateRepo,
		Reports:   reportRepo,
		Staging:   stagingRepo,
		Accounts:  accountRepo,
		Quota:     &quota.Guard{Accounts: accountRepo},
		Gateway:   gateway.New(cfg.ProviderBaseURL, cfg.SendTimeout),
		Log:       log.With().Str("component", "dispatcher").Logger(),
	}

	ctx := context.Background()
	publisher := notify.NewRedisPublisher(cfg.RedisURL, cfg.RedisPass)
	hub := notify.NewHub(log.With().Str("component", "hub").Logger())
	go hub.Run(ctx)
	go hub.ListenRedis(ctx, publisher.Client)

	stager := &webhook.Stager{
		Staging:        stagingRepo,
		Conversations:  conversationRepo,
		Notifier:       publisher,
		UnassignedPool: cfg.UnassignedAgentPool,
		Log:            log.With().Str("component", "stager").Logger(),
	}

	q := buildQueue(cfg, dispatcher)

	campaignController := &controller.CampaignController{
		Dispatcher: dispatcher,
		Queue:      q,
		Log:        log.With().Str("component", "campaigns").Logger(),
	}
	webhookHandler := &handler.WebhookHandler{
		Stager: stager,
		Log:    log.With().Str("component", "webhook").Logger(),
	}
	conversationHandler := &handler.ConversationHandler{Conversations: conversationRepo}
	importHandler := &handler.ImportHandler{
		Contacts: contactRepo,
		Staging:  stagingRepo,
		Log:      log.With().Str("component", "import").Logger(),
	}

	r := chi.NewRouter()

	// Campaign routes
	r.Post("/campaigns", campaignController.CreateCampaign)
	r.Get("/campaigns", campaignController.ListCampaigns)
	r.Get("/campaigns/{id}", campaignController.GetCampaign)
	r.Get("/campaigns/{id}/reports", campaignController.ListReports)
	r.Post("/campaigns/{id}/send", campaignController.SendCampaign)
	r.Post("/campaigns/{id}/personalized-preview", campaignController.PersonalizedPreview)

	// Ingestion and read models
	r.Post("/webhooks/provider", webhookHandler.Receive)
	r.Get("/conversations", conversationHandler.ListConversations)
	r.Get("/conversations/{id}", conversationHandler.GetConversation)
	r.Post("/lists/{id}/import", importHandler.ImportContacts)

	// Realtime + operations
	r.Get("/ws/agents", notify.ServeWS(hub))
	r.Handle("/metrics", promhttp.Handler())
	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	log.Info().Str("port", cfg.Port).Msg("server running")
	log.Fatal().Err(srv.ListenAndServe()).Msg("server stopped")
}

// buildQueue prefers the broker; without AMQP_URL dispatch jobs run
// in-process, which is how local development works.
func buildQueue(cfg config.Config, dispatcher *dispatch.Dispatcher) queue.Queue {
	if cfg.AMQPURL != "" {
		q, err := queue.DialAMQP(cfg.AMQPURL)
		if err != nil {
			log.Fatal().Err(err).Msg("amqp connection failed")
		}
		return q
	}

	q := queue.NewInMemoryQueue(log.With().Str("component", "queue").Logger())
	q.Subscribe(queue.TopicDispatch, func(body []byte) error {
		var job queue.DispatchJob
		if err := json.Unmarshal(body, &job); err != nil {
			log.Warn().Err(err).Msg("invalid dispatch job payload")
			return nil
		}
		_, err := dispatcher.Dispatch(context.Background(), job.CampaignID)
		return err
	})
	return q
}

func setupLogging(cfg config.Config) {
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	if cfg.LogPretty {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}
}
