package main

import (
	"context"
	"log"
	"strings"

	api "mailpilot-backend/cmd/api"
	authdomain "mailpilot-backend/internal/auth/domain"
	authrepo "mailpilot-backend/internal/auth/repository"
	authusecase "mailpilot-backend/internal/auth/usecase"
	conndomain "mailpilot-backend/internal/connection/domain"
	connrepo "mailpilot-backend/internal/connection/repository"
	connusecase "mailpilot-backend/internal/connection/usecase"
	crmdomain "mailpilot-backend/internal/crm/domain"
	crmrepo "mailpilot-backend/internal/crm/repository"
	"mailpilot-backend/internal/notification"
	pipedomain "mailpilot-backend/internal/pipeline/domain"
	piperepo "mailpilot-backend/internal/pipeline/repository"
	"mailpilot-backend/internal/pipeline/scheduler"
	pipeusecase "mailpilot-backend/internal/pipeline/usecase"
	"mailpilot-backend/pkg/chroma"
	"mailpilot-backend/pkg/config"
	"mailpilot-backend/pkg/crypto"
	"mailpilot-backend/pkg/database"
	"mailpilot-backend/pkg/fcm"
	"mailpilot-backend/pkg/gmail"
	"mailpilot-backend/pkg/imap"
	"mailpilot-backend/pkg/llm"
)

func main() {
	// Load configuration
	cfg := config.Load()

	// Initialize database
	db, err := database.NewPostgresConnection(cfg)
	if err != nil {
		log.Fatal("Failed to connect to database:", err)
	}

	// Auto-migrate database schemas
	if err := db.AutoMigrate(
		&authdomain.User{}, &authdomain.RefreshToken{}, &authdomain.DeviceToken{},
		&conndomain.MailConnection{},
		&pipedomain.NormalizedEmail{}, &pipedomain.ClassificationResult{},
		&pipedomain.ReviewFlag{}, &pipedomain.Rule{}, &pipedomain.DeletionRecord{},
		&crmdomain.Deal{}, &crmdomain.DealParticipant{}, &crmdomain.Contact{},
		&crmdomain.Client{}, &crmdomain.Property{}, &crmdomain.Activity{},
	); err != nil {
		log.Fatal("Failed to migrate database:", err)
	}

	// Credential sealer. An empty key leaves credentials in plaintext,
	// acceptable only for local development.
	sealer, err := crypto.NewSealer(cfg.SealKey)
	if err != nil {
		log.Fatal("Invalid SEAL_KEY:", err)
	}
	if sealer == nil {
		log.Println("[WARN] SEAL_KEY not set, stored credentials are not encrypted")
	}

	// Initialize repositories (dependency injection)
	userRepo := authrepo.NewUserRepository(db)
	deviceRepo := authrepo.NewDeviceTokenRepository(db)
	connectionRepo := connrepo.NewConnectionRepository(db)
	emailRepo := piperepo.NewEmailRepository(db)
	ruleRepo := piperepo.NewRuleRepository(db)
	classificationRepo := piperepo.NewClassificationRepository(db)
	reviewFlagRepo := piperepo.NewReviewFlagRepository(db)
	deletionRepo := piperepo.NewDeletionRecordRepository(db)

	// CRM repository, with Chroma-backed semantic contact search when
	// configured.
	var crmRepository crmrepo.CRMRepository
	if cfg.ChromaAPIKey != "" {
		chromaClient, err := chroma.NewChromaClient(cfg)
		if err != nil {
			log.Printf("[WARN] Failed to initialize Chroma client (semantic contact search disabled): %v", err)
			crmRepository = crmrepo.NewCRMRepository(db)
		} else {
			crmRepository = crmrepo.NewCRMRepositoryWithSemanticSearch(db, chromaClient)
			log.Println("Chroma client initialized successfully")
			go reindexContacts(crmRepository, chromaClient)
		}
	} else {
		crmRepository = crmrepo.NewCRMRepository(db)
	}

	// Mail providers
	gmailService := gmail.NewService(cfg.GoogleClientID, cfg.GoogleClientSecret, cfg.SyncFullWindow)
	imapService := imap.NewService(cfg.SyncFullWindow)
	providers := map[string]pipedomain.MailProvider{
		conndomain.ProviderGmail: gmailService,
		conndomain.ProviderIMAP:  imapService,
	}

	// Reasoning engine
	chatService, err := llm.NewChatService(llm.Config{
		Provider:      llm.ProviderType(cfg.LLMProvider),
		GeminiAPIKey:  cfg.GeminiAPIKey,
		OllamaBaseURL: cfg.OllamaBaseURL,
		OllamaModel:   cfg.OllamaModel,
	})
	if err != nil {
		log.Fatal("Failed to initialize chat service:", err)
	}

	// FCM client (optional, review-flag pushes)
	var fcmClient *fcm.Client
	if cfg.FirebaseCredentials != "" {
		fcmClient, err = fcm.NewClient(cfg.FirebaseCredentials)
		if err != nil {
			log.Printf("[WARN] Failed to initialize FCM client (push notifications disabled): %v", err)
		}
	}
	flagNotifier := notification.NewFlagNotifier(fcmClient, deviceRepo)

	// Initialize use cases (dependency injection)
	authUc := authusecase.NewAuthUsecase(userRepo, cfg)
	connUc := connusecase.NewConnectionUsecase(connectionRepo, gmailService, imapService, sealer, cfg)
	pipelineUc := pipeusecase.NewPipelineUsecase(
		connectionRepo, emailRepo, ruleRepo, classificationRepo, reviewFlagRepo,
		deletionRepo, crmRepository, providers, chatService, sealer, flagNotifier, cfg,
	)

	// Gmail push notifications (optional)
	if cfg.GoogleProjectID != "" {
		topicName := cfg.GooglePubSubTopic
		if parts := strings.Split(topicName, "/"); len(parts) > 1 {
			topicName = parts[len(parts)-1]
		}

		notifService, err := notification.NewService(cfg.GoogleProjectID, topicName, cfg.GoogleCredentials, pipelineUc)
		if err != nil {
			log.Printf("[ERROR] Failed to initialize notification service: %v", err)
		} else {
			go notifService.Start(context.Background())
		}
	} else {
		log.Println("[WARN] GOOGLE_PROJECT_ID not configured, push notifications disabled; polling only")
	}

	// Periodic sync + classification
	pipelineScheduler := scheduler.NewPipelineScheduler(pipelineUc, cfg.SyncInterval)
	pipelineScheduler.Start()

	// Initialize HTTP handler
	handler := api.NewHandler(authUc, connUc, pipelineUc, ruleRepo, deviceRepo, cfg)

	log.Printf("Server starting on port %s", cfg.Port)
	if err := handler.Start(":" + cfg.Port); err != nil {
		log.Fatal("Failed to start server:", err)
	}
}

// reindexContacts rebuilds the contact vector index on startup so
// semantic search covers contacts created while it was offline.
func reindexContacts(crm crmrepo.CRMRepository, client *chroma.ChromaClient) {
	contacts, err := crm.AllContacts()
	if err != nil {
		log.Printf("[Chroma] Contact reindex failed to load contacts: %v", err)
		return
	}

	ctx := context.Background()
	indexed := 0
	for _, c := range contacts {
		if err := client.UpsertContactEmbedding(ctx, c.ID, c.UserID, c.Name, c.Email, c.Company); err != nil {
			log.Printf("[Chroma] Failed to index contact %s: %v", c.ID, err)
			continue
		}
		indexed++
	}
	log.Printf("[Chroma] Reindexed %d/%d contacts", indexed, len(contacts))
}
