package main

import (
	"context"
	"encoding/json"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/bulkwave/messaging-backend/internal/aggregate"
	"github.com/bulkwave/messaging-backend/internal/config"
	"github.com/bulkwave/messaging-backend/internal/db"
	"github.com/bulkwave/messaging-backend/internal/dispatch"
	"github.com/bulkwave/messaging-backend/internal/gateway"
	"github.com/bulkwave/messaging-backend/internal/queue"
	"github.com/bulkwave/messaging-backend/internal/quota"
	"github.com/bulkwave/messaging-backend/internal/repository"
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

	aggregator := &aggregate.Aggregator{
		Staging:       stagingRepo,
		Conversations: conversationRepo,
		Reports:       reportRepo,
		Accounts:      accountRepo,
		Log:           log.With().Str("component", "aggregator").Logger(),
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	q, err := queue.DialAMQP(cfg.AMQPURL)
	if err != nil {
		log.Fatal().Err(err).Msg("amqp connection failed")
	}
	defer q.Close()

	err = q.Subscribe(queue.TopicDispatch, func(body []byte) error {
		var job queue.DispatchJob
		if err := json.Unmarshal(body, &job); err != nil {
			log.Warn().Err(err).Msg("invalid dispatch job payload")
			return nil
		}
		res, err := dispatcher.Dispatch(ctx, job.CampaignID)
		if err != nil {
			return err
		}
		log.Info().
			Int("campaign_id", res.CampaignID).
			Int("succeeded", res.Succeeded).
			Int("failed", res.Failed).
			Msg("campaign dispatched")
		return nil
	})
	if err != nil {
		log.Fatal().Err(err).Msg("consumer setup failed")
	}

	go pollScheduled(ctx, campaignRepo, q, cfg.SchedulePollEach)
	go runSweeps(ctx, aggregator, cfg.SweepInterval)

	log.Info().Msg("worker running, waiting for messages")
	<-ctx.Done()
	log.Info().Msg("worker shutting down")
}

// pollScheduled promotes due scheduled campaigns onto the dispatch queue.
// ClaimScheduled flips the status first so two workers never enqueue the
// same campaign.
func pollScheduled(ctx context.Context, campaigns *repository.CampaignRepository, q queue.Queue, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			due, err := campaigns.ListDueScheduled(time.Now())
			if err != nil {
				log.Error().Err(err).Msg("scheduled campaign poll failed")
				continue
			}
			for _, id := range due {
				claimed, err := campaigns.ClaimScheduled(id)
				if err != nil {
					log.Error().Err(err).Int("campaign_id", id).Msg("claim failed")
					continue
				}
				if !claimed {
					continue
				}
				if err := q.Publish(queue.TopicDispatch, queue.DispatchJob{CampaignID: id}); err != nil {
					log.Error().Err(err).Int("campaign_id", id).Msg("enqueue failed")
				}
			}
		}
	}
}

func runSweeps(ctx context.Context, agg *aggregate.Aggregator, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := agg.Sweep(ctx); err != nil {
				log.Error().Err(err).Msg("aggregation sweep failed")
			}
		}
	}
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
