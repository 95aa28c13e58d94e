package main

import (
	"context"
	"log"
	"strings"

	api "daybrief-backend/cmd/api"
	authdomain "daybrief-backend/internal/auth/domain"
	authRepo "daybrief-backend/internal/auth/repository"
	authUsecase "daybrief-backend/internal/auth/usecase"
	briefdomain "daybrief-backend/internal/briefing/domain"
	briefRepo "daybrief-backend/internal/briefing/repository"
	briefUsecase "daybrief-backend/internal/briefing/usecase"
	conndomain "daybrief-backend/internal/connection/domain"
	connRepo "daybrief-backend/internal/connection/repository"
	connUsecase "daybrief-backend/internal/connection/usecase"
	"daybrief-backend/internal/notification"
	secdomain "daybrief-backend/internal/security/domain"
	secRepo "daybrief-backend/internal/security/repository"
	secUsecase "daybrief-backend/internal/security/usecase"
	syncdomain "daybrief-backend/internal/sync/domain"
	"daybrief-backend/internal/sync/orchestrator"
	"daybrief-backend/internal/sync/provider"
	syncRepo "daybrief-backend/internal/sync/repository"
	"daybrief-backend/internal/sync/strategy"
	syncUsecase "daybrief-backend/internal/sync/usecase"
	"daybrief-backend/pkg/chroma"
	"daybrief-backend/pkg/config"
	"daybrief-backend/pkg/database"
	"daybrief-backend/pkg/dlp"
	"daybrief-backend/pkg/fcm"
	"daybrief-backend/pkg/gemini"
	"daybrief-backend/pkg/google"
	"daybrief-backend/pkg/imap"
	"daybrief-backend/pkg/sse"
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
		&authdomain.User{}, &authdomain.RefreshToken{}, &authdomain.FCMToken{},
		&conndomain.Connection{},
		&syncdomain.SyncJob{}, &syncdomain.EmailMessage{}, &syncdomain.CalendarEvent{}, &syncdomain.Document{},
		&secdomain.VaultEntry{},
		&briefdomain.Briefing{},
	); err != nil {
		log.Fatal("Failed to migrate database:", err)
	}

	// Initialize repositories (dependency injection)
	userRepo := authRepo.NewUserRepository(db)
	fcmTokenRepo := authRepo.NewFCMTokenRepository(db)
	connectionRepo := connRepo.NewConnectionRepository(db)
	jobRepo := syncRepo.NewSyncJobRepository(db)
	emailRepo := syncRepo.NewEmailRepository(db)
	eventRepo := syncRepo.NewEventRepository(db)
	docRepo := syncRepo.NewDocumentRepository(db)
	vaultRepo := secRepo.NewVaultRepository(db)
	briefingRepo := briefRepo.NewBriefingRepository(db)

	// Initialize SSE Manager
	sseManager := sse.NewManager()
	go sseManager.Run()

	// Provider clients behind the shared pagination contract
	googleService := google.NewService(cfg.GoogleClientID, cfg.GoogleClientSecret)
	registry := provider.NewRegistry()
	registry.Register(conndomain.ProviderMail, conndomain.TransportGoogle, google.NewGmailClient(googleService, cfg.SyncFanout))
	registry.Register(conndomain.ProviderCalendar, conndomain.TransportGoogle, google.NewCalendarClient(googleService))
	registry.Register(conndomain.ProviderDrive, conndomain.TransportGoogle, google.NewDriveClient(googleService))
	registry.Register(conndomain.ProviderMail, conndomain.TransportIMAP, imap.NewService(cfg.EncryptionKey))

	// DLP gate + vault
	dlpClient := dlp.NewClient(cfg.DLPBaseURL, cfg.DLPBatchSize, cfg.DLPMaxRetries)
	gate := secUsecase.NewDLPGate(dlpClient, vaultRepo, cfg.EncryptionKey)

	// Vector store (optional; search and embedding degrade without it)
	var chromaClient *chroma.ChromaClient
	if cfg.ChromaAPIKey != "" {
		chromaClient, err = chroma.NewChromaClient(cfg)
		if err != nil {
			log.Printf("Warning: Failed to initialize Chroma client: %v. Semantic search will not be available.", err)
			chromaClient = nil
		} else {
			log.Println("Chroma client initialized successfully")
		}
	} else {
		log.Println("Warning: CHROMA_API_KEY not set. Semantic search will not be available.")
	}

	// Initialize use cases (dependency injection)
	authUc := authUsecase.NewAuthUsecase(userRepo, cfg)
	selector := strategy.NewSelector(cfg)

	var embedder syncUsecase.Embedder
	if chromaClient != nil {
		embedder = chromaClient
	}
	syncUc := syncUsecase.NewSyncUsecase(cfg, connectionRepo, jobRepo, emailRepo, eventRepo, docRepo, registry, selector, gate, embedder)

	geminiService := gemini.NewGeminiService(cfg.GeminiApiKey)
	briefingUc := briefUsecase.NewBriefingUsecase(briefingRepo, emailRepo, eventRepo, docRepo, userRepo, geminiService, gate, sseManager)

	connUc := connUsecase.NewConnectionUsecase(cfg, connectionRepo, syncUc, briefingUc)

	// Orchestrator: per-user FIFO queues plus the wall-clock timers
	orch := orchestrator.NewOrchestrator(cfg, syncUc, briefingUc, connectionRepo, sseManager)
	if err := orch.Start(); err != nil {
		log.Fatal("Failed to start orchestrator:", err)
	}
	defer orch.Stop()

	// Initialize Notification Service (Pub/Sub)
	// Only start if project ID is configured
	if cfg.GoogleProjectID != "" {
		topicName := cfg.GooglePubSubTopic
		if parts := strings.Split(topicName, "/"); len(parts) > 1 {
			topicName = parts[len(parts)-1]
		}

		var fcmClient *fcm.Client
		if cfg.FirebaseCredentials != "" {
			fcmClient, err = fcm.NewClient(cfg.FirebaseCredentials)
			if err != nil {
				log.Printf("Warning: Failed to initialize FCM client (push notifications disabled): %v", err)
			}
		}

		notifService, err := notification.NewService(cfg.GoogleProjectID, topicName, sseManager, connectionRepo, fcmTokenRepo, fcmClient, orch, cfg.GoogleCredentials)
		if err != nil {
			log.Printf("Failed to initialize notification service: %v", err)
		} else {
			go notifService.Start(context.Background())
		}
	} else {
		log.Println("GoogleProjectID not configured, notification service disabled")
	}

	// Initialize HTTP handler
	handler := api.NewHandler(cfg, authUc, fcmTokenRepo, connUc, briefingUc, gate, orch, jobRepo, chromaClient, sseManager)

	log.Printf("Server starting on port %s", cfg.Port)
	if err := handler.Start(":" + cfg.Port); err != nil {
		log.Fatal("Failed to start server:", err)
	}
}
