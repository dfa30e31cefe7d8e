package main

import (
	"context"
	"log"
	"os"

	"cloud.google.com/go/firestore"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"google.golang.org/api/option"

	fbapp "firebase.google.com/go/v4"

	"agromart/internal/adapter/api/handler"
	apimiddleware "agromart/internal/adapter/api/middleware"
	"agromart/internal/adapter/api/router"
	"agromart/internal/adapter/repository"
	"agromart/internal/infrastructure/firebase"
	"agromart/internal/infrastructure/mail"
	"agromart/internal/infrastructure/queue"
	"agromart/internal/infrastructure/ratelimit"
	"agromart/internal/infrastructure/websocket"
	"agromart/internal/usecase"
	"agromart/pkg/config"
	"agromart/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	ctx := context.Background()

	var opt option.ClientOption
	if serviceAccountJSON := os.Getenv("FIREBASE_SERVICE_ACCOUNT_JSON"); serviceAccountJSON != "" {
		opt = option.WithCredentialsJSON([]byte(serviceAccountJSON))
	} else {
		serviceAccountPath := os.Getenv("FIREBASE_SERVICE_ACCOUNT_PATH")
		if serviceAccountPath == "" {
			serviceAccountPath = "./serviceAccountKey.json"
		}
		if _, err := os.Stat(serviceAccountPath); os.IsNotExist(err) {
			log.Fatalf("Service account file does not exist: %s", serviceAccountPath)
		}
		opt = option.WithCredentialsFile(serviceAccountPath)
	}

	firebaseApp, err := fbapp.NewApp(ctx, &fbapp.Config{ProjectID: cfg.FirebaseProject}, opt)
	if err != nil {
		log.Fatalf("Failed to initialize Firebase: %v", err)
	}

	fbAuth, err := firebaseApp.Auth(ctx)
	if err != nil {
		log.Fatalf("Failed to initialize Firebase Auth: %v", err)
	}

	firestoreClient, err := firestore.NewClient(ctx, cfg.FirebaseProject, opt)
	if err != nil {
		log.Fatalf("Failed to create Firestore client: %v", err)
	}
	defer firestoreClient.Close()

	userRepo := repository.NewFirestoreUserRepository(firestoreClient)
	listingRepo := repository.NewFirestoreListingRepository(firestoreClient)
	chatRepo := repository.NewFirestoreChatRepository(firestoreClient)

	authClient := firebase.NewAuthClient(fbAuth)

	wsManager := websocket.NewManager()
	wsManager.Start(ctx)

	limiter := ratelimit.NewRateLimiter()
	limiter.StartCleanupRoutine()

	mailer := mail.NewSender(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUser, cfg.SMTPPassword, cfg.SMTPFrom)
	worker := usecase.NewNotificationWorker(userRepo, listingRepo, mailer)

	// With Redis configured, unread alerts go through the asynq queue and
	// a worker consumes them here. Without it, the same worker runs in
	// process.
	var dispatcher usecase.NotificationDispatcher
	if cfg.RedisURL != "" {
		queueClient, err := queue.NewClient(cfg.RedisURL)
		if err != nil {
			log.Fatalf("Failed to create queue client: %v", err)
		}
		defer queueClient.Close()

		queueServer, err := queue.NewServer(cfg.RedisURL, 5)
		if err != nil {
			log.Fatalf("Failed to create queue server: %v", err)
		}
		queueServer.Handle(usecase.TaskTypeUnreadAlert, worker.HandleUnreadAlert)
		go func() {
			if err := queueServer.Run(); err != nil {
				log.Fatalf("Queue server stopped: %v", err)
			}
		}()
		defer queueServer.Shutdown()

		dispatcher = usecase.NewQueueDispatcher(queueClient)
	} else {
		logger.Warn("REDIS_URL not set, dispatching unread alerts in process")
		dispatcher = usecase.NewDirectDispatcher(worker)
	}

	chatUseCase := usecase.NewChatUseCase(chatRepo, userRepo, listingRepo, wsManager, dispatcher, limiter, cfg.UnreadThreshold)
	wsManager.Bind(chatUseCase)

	e := echo.New()

	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	if len(cfg.AllowedOrigins) > 0 {
		e.Use(middleware.CORSWithConfig(middleware.CORSConfig{AllowOrigins: cfg.AllowedOrigins}))
	} else {
		e.Use(middleware.CORS())
	}

	e.Validator = router.NewValidator()

	authMiddleware := apimiddleware.NewAuthMiddleware(authClient)

	chatHandler := handler.NewChatHandler(chatUseCase)
	wsHandler := handler.NewWebSocketHandler(wsManager, authMiddleware, cfg.AllowedOrigins)
	healthHandler := handler.NewHealthHandler(wsManager)

	router.SetupChatRouter(e, chatHandler, authMiddleware)
	router.SetupWebSocketRouter(e, wsHandler)
	router.SetupHealthRouter(e, healthHandler)

	log.Printf("Starting server on port %s...", cfg.ServerPort)
	e.Logger.Fatal(e.Start(":" + cfg.ServerPort))
}
