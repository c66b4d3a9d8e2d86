package main

import (
	"context"
	"log"
	"log/slog"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"

	"campfire/internal/membertoken"
	"campfire/internal/ratelimit"
	"campfire/internal/util"
	"campfire/pkg/domain"
	"campfire/pkg/notify"
	"campfire/pkg/queue"
	"campfire/pkg/realtime"
	"campfire/pkg/storage"
	"campfire/pkg/store"
	"campfire/services/community/internal/app"
	"campfire/services/community/internal/assistantclient"
	"campfire/services/community/internal/billingclient"
	"campfire/services/community/internal/config"
	"campfire/services/community/internal/identityclient"
	"campfire/services/community/internal/server"
)

func main() {
	cfg, err := config.Load(config.ConfigPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger := util.InitLogger(cfg.LogLevel)
	jwtLeeway, err := config.ParseJWTLeeway(cfg.JWTLeeway)
	if err != nil {
		log.Fatalf("failed to parse jwt leeway: %v", err)
	}
	tokenVerifier, err := membertoken.NewVerifier(membertoken.Config{
		JWKSURL:    cfg.IdentityJWKSURL,
		Issuer:     cfg.JWTIssuer,
		Audience:   cfg.JWTAudience,
		Leeway:     jwtLeeway,
		HTTPClient: &http.Client{Timeout: 5 * time.Second},
	})
	if err != nil {
		log.Fatalf("failed to init jwks verifier: %v", err)
	}

	var rdb *redis.Client
	if cfg.RedisAddr != "" {
		rdb = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword})
	} else {
		slog.Warn("redis not configured; running single-instance realtime without presence")
	}
	hub := realtime.NewHub(rdb, cfg.EventTopic)
	defer hub.Shutdown()

	var presence *realtime.PresenceTracker
	if rdb != nil {
		presence, err = realtime.NewPresenceTracker(rdb, "")
		if err != nil {
			log.Fatalf("failed to init presence tracker: %v", err)
		}
	}

	limits, err := ratelimit.NewSet(budgetsFromConfig(cfg))
	if err != nil {
		log.Fatalf("failed to init rate limits: %v", err)
	}
	defer limits.Close()

	var dataStore store.Store
	if cfg.DatabaseURL == "" {
		slog.Warn("databaseURL empty; using in-memory store, data will not survive restarts")
		dataStore = store.NewMemoryStore()
	} else {
		dataStore, err = store.NewGormStore(cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("failed to init postgres store: %v", err)
		}
	}

	notifier := notify.NewDispatcher(dataStore, hub)
	if rdb != nil && cfg.DeliveryStream != "" {
		startEmailDelivery(cfg, notifier)
	}

	appCore, err := app.New(app.Config{
		Store:    dataStore,
		Hub:      hub,
		Notifier: notifier,
		Limits:   limits,
		Presence: presence,
	})
	if err != nil {
		log.Fatalf("failed to init app: %v", err)
	}

	if err := seedChannels(appCore.Store(), cfg.Channels); err != nil {
		log.Fatalf("failed to seed channels: %v", err)
	}

	var images storage.ImageStore
	if cfg.MinioEndpoint != "" {
		images, err = storage.NewMinioImageStore(cfg.MinioEndpoint, cfg.MinioAccessKey,
			cfg.MinioSecretKey, cfg.MinioBucket, cfg.MinioUseSSL)
		if err != nil {
			log.Fatalf("failed to init image store: %v", err)
		}
	} else {
		slog.Warn("minio not configured; image uploads disabled")
	}

	var assistant *assistantclient.Client
	if cfg.AssistantServiceURL != "" {
		assistant = assistantclient.NewClient(cfg.AssistantServiceURL, cfg.AssistantAPIKey)
	}
	var billing *billingclient.Client
	if cfg.BillingServiceURL != "" {
		billing = billingclient.NewClient(cfg.BillingServiceURL)
	}

	trustedProxies, err := util.NewTrustedProxies(cfg.TrustedProxyCIDRs)
	if err != nil {
		log.Fatalf("failed to parse trusted proxy cidrs: %v", err)
	}

	httpServer := server.New(server.Config{
		App:            appCore,
		Hub:            hub,
		TokenVerifier:  tokenVerifier,
		Identity:       identityclient.NewClient(cfg.IdentityServiceURL),
		Billing:        billing,
		Assistant:      assistant,
		Images:         images,
		AllowedOrigins: cfg.AllowedOrigins,
		TrustedProxies: trustedProxies,
	})

	addr := ":" + cfg.Port
	srv := &http.Server{
		Addr:         addr,
		Handler:      httpServer.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	slog.Info("community server listening", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("server error", "err", err)
	}
}

// startEmailDelivery queues created notifications onto a Redis stream and
// drains them into the email exchange. In-app notifications never depend
// on this path; enqueue and publish failures only cost the email copy.
func startEmailDelivery(cfg config.FileConfig, notifier *notify.Dispatcher) {
	deliveryQueue, err := queue.NewRedisDeliveryQueue(queue.RedisQueueConfig{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		Stream:   cfg.DeliveryStream,
		Group:    "email-workers",
	})
	if err != nil {
		log.Fatalf("failed to init delivery queue: %v", err)
	}

	var emailBus *queue.AMQPPublisher
	if cfg.AMQPURL != "" {
		emailBus, err = queue.NewAMQPPublisher(cfg.AMQPURL, cfg.AMQPExchange)
		if err != nil {
			log.Fatalf("failed to connect to amqp: %v", err)
		}
	} else {
		slog.Warn("amqp not configured; delivery jobs will drain without publishing")
	}

	deliveryQueue.Start(context.Background(), 4, func(ctx context.Context, job queue.DeliveryJob) error {
		return emailBus.PublishEmail(ctx, queue.EmailEvent{
			NotificationID: job.NotificationID,
			RecipientID:    job.RecipientID,
			OccurredAt:     time.Now().UTC(),
		})
	})
	notifier.EnableEmail(deliveryQueue)
}

func budgetsFromConfig(cfg config.FileConfig) map[ratelimit.Action]ratelimit.Budget {
	budgets := ratelimit.DefaultBudgets()
	if cfg.SendRateLimitPerMinute > 0 {
		budgets[ratelimit.ActionSendMessage] = ratelimit.Budget{Limit: cfg.SendRateLimitPerMinute, Window: time.Minute}
	}
	if cfg.PostRateLimitPerMinute > 0 {
		budgets[ratelimit.ActionForumPost] = ratelimit.Budget{Limit: cfg.PostRateLimitPerMinute, Window: time.Minute}
	}
	if cfg.ReactionRateLimitPerMinute > 0 {
		budgets[ratelimit.ActionReaction] = ratelimit.Budget{Limit: cfg.ReactionRateLimitPerMinute, Window: time.Minute}
	}
	if cfg.ReportRateLimitPerMinute > 0 {
		budgets[ratelimit.ActionReport] = ratelimit.Budget{Limit: cfg.ReportRateLimitPerMinute, Window: time.Minute}
	}
	return budgets
}

func seedChannels(s store.Store, seeds []config.ChannelSeed) error {
	if len(seeds) == 0 {
		return nil
	}
	channels := make([]domain.Channel, 0, len(seeds))
	for _, seed := range seeds {
		channelType := domain.ChannelType(seed.Type)
		if channelType == "" {
			channelType = domain.ChannelChat
		}
		channels = append(channels, domain.Channel{
			ID:       util.NewID(),
			Slug:     seed.Slug,
			Name:     seed.Name,
			Category: seed.Category,
			Position: seed.Position,
			Type:     channelType,
			Readonly: seed.Readonly,
			MinRole:  domain.ParseRole(seed.MinRole),
		})
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return s.SeedChannels(ctx, channels)
}
