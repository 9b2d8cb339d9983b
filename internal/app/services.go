package app

import (
	"github.com/AmaniTsuma/smartdesk-backend-sub000/internal/auth"
	"github.com/AmaniTsuma/smartdesk-backend-sub000/internal/chat"
	"github.com/AmaniTsuma/smartdesk-backend-sub000/internal/repo"
	"github.com/AmaniTsuma/smartdesk-backend-sub000/internal/services"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

// Services holds every wired application service. Construction is explicit
// so the dependency order is visible in one place.
type Services struct {
	DB             *gorm.DB
	UserRepo       *repo.UserRepository
	ChatRepo       *repo.ChatRepository
	AuthService    *auth.Service
	ChatService    *chat.Service
	StorageService *services.StorageService
}

// NewServices wires all services together
func NewServices(db *gorm.DB) *Services {
	userRepo := repo.NewUserRepository(db)
	chatRepo := repo.NewChatRepository(db)

	authService := auth.NewService(userRepo)
	chatService := chat.NewService(chatRepo, userRepo, log.Logger)

	// Attachment storage is optional; without S3 credentials the upload
	// endpoint reports the feature as unavailable.
	storageService, err := services.NewStorageService()
	if err != nil {
		log.Warn().Err(err).Msg("attachment storage disabled")
		storageService = nil
	}

	return &Services{
		DB:             db,
		UserRepo:       userRepo,
		ChatRepo:       chatRepo,
		AuthService:    authService,
		ChatService:    chatService,
		StorageService: storageService,
	}
}
