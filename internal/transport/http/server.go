package http

import (
	"bytes"
	"time"

	"github.com/gin-gonic/gin"

	"aichat-backend/internal/ai"
	appsvc "aichat-backend/internal/app"
	"aichat-backend/internal/bootstrap"
	"aichat-backend/internal/cache"
	"aichat-backend/internal/ingest"
	"aichat-backend/internal/pkg/pdfextract"
	"aichat-backend/internal/platform/rabbitmq"
	"aichat-backend/internal/repository"
	"aichat-backend/internal/session"
	"aichat-backend/internal/tool"
	"aichat-backend/internal/transport/http/handler"
	"aichat-backend/internal/transport/http/middleware"
)

func NewRouter(app *bootstrap.App) *gin.Engine {
	cfg := app.Config
	gin.SetMode(cfg.App.GinMode)
	router := gin.New()
	router.Use(gin.Logger(), gin.Recovery())

	healthHandler := handler.NewHealthHandler(app)
	router.GET("/healthz", healthHandler.Check)
	router.Static(cfg.Upload.PublicPrefix, cfg.UploadDir())

	userRepo := repository.NewUserRepository(app.MySQL)
	chatRepo := repository.NewChatRepository(app.MySQL)
	messageRepo := repository.NewMessageRepository(app.MySQL)
	documentRepo := repository.NewDocumentRepository(app.MySQL)
	suggestionRepo := repository.NewSuggestionRepository(app.MySQL)

	authService := appsvc.NewAuthService(
		userRepo,
		cfg.Auth.JWTSecret,
		time.Duration(cfg.Auth.JWTExpireMinute)*time.Minute,
	)

	llmClient := ai.NewOpenAICompatibleClient()
	toolLLMConfig := ai.ChatConfig{
		BaseURL: cfg.LLM.BaseURL,
		APIKey:  cfg.LLM.APIKey,
		Model:   cfg.LLM.ChatModel,
	}
	toolRegistry := tool.NewRegistry(
		tool.NewWeatherTool(),
		tool.NewCreateDocumentTool(documentRepo, llmClient, toolLLMConfig),
		tool.NewUpdateDocumentTool(documentRepo, llmClient, toolLLMConfig),
		tool.NewRequestSuggestionsTool(documentRepo, suggestionRepo, llmClient, toolLLMConfig),
	)

	historyCache := cache.NewHistoryCache(
		app.Redis,
		time.Duration(cfg.Redis.HistoryTTLSeconds)*time.Second,
		time.Duration(cfg.Redis.HistoryDirtyTTLSeconds)*time.Second,
	)
	publisher := rabbitmq.NewMessagePublisher(app.MQConn, cfg.RabbitMQ.MessagePersistQueue)
	ingestor := ingest.NewAttachmentIngestor(cfg.Upload.PublicRoot, func(data []byte) (string, error) {
		return pdfextract.ExtractText(bytes.NewReader(data))
	})

	chatService := appsvc.NewChatService(
		chatRepo,
		messageRepo,
		publisher,
		historyCache,
		llmClient,
		toolRegistry,
		ingestor,
		appsvc.LLMSettings{
			BaseURL:        cfg.LLM.BaseURL,
			APIKey:         cfg.LLM.APIKey,
			ChatModel:      cfg.LLM.ChatModel,
			ReasoningModel: cfg.LLM.ReasoningModel,
		},
		cfg.LLM.MaxToolSteps,
		time.Duration(cfg.LLM.RequestTimeoutSeconds)*time.Second,
	)
	uploadService := appsvc.NewUploadService(cfg.UploadDir(), cfg.Upload.PublicPrefix)
	suggestionService := appsvc.NewSuggestionService(documentRepo, suggestionRepo)

	authHandler := handler.NewAuthHandler(authService)
	chatHandler := handler.NewChatHandler(chatService)
	fileHandler := handler.NewFileHandler(uploadService)
	suggestionHandler := handler.NewSuggestionHandler(suggestionService)

	var resolver session.Resolver
	if cfg.Auth.Mode == "static" {
		resolver = session.NewStaticResolver(cfg.Auth.StaticUserID, cfg.Auth.StaticUsername)
	} else {
		resolver = session.NewJWTResolver(cfg.Auth.JWTSecret)
	}
	requireSession := middleware.Auth(resolver)

	v1 := router.Group("/api/v1")
	authGroup := v1.Group("/auth")
	authGroup.POST("/register", authHandler.Register)
	authGroup.POST("/login", authHandler.Login)
	authGroup.GET("/me", requireSession, authHandler.Me)

	chatGroup := v1.Group("/chat")
	chatGroup.Use(requireSession)
	chatGroup.POST("", chatHandler.StreamChat)
	chatGroup.DELETE("", chatHandler.DeleteChat)
	chatGroup.GET("/list", chatHandler.ListChats)
	chatGroup.GET("/history", chatHandler.GetHistory)

	filesGroup := v1.Group("/files")
	filesGroup.Use(requireSession)
	filesGroup.POST("/upload", fileHandler.Upload)

	docsGroup := v1.Group("")
	docsGroup.Use(requireSession)
	docsGroup.GET("/suggestions", suggestionHandler.ListByDocument)
	docsGroup.GET("/documents", suggestionHandler.ListDocuments)
	docsGroup.GET("/documents/:id", suggestionHandler.GetDocument)

	return router
}
