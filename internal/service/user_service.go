package service

import (
	"context"

	"corruption-report-service/internal/model"
	"corruption-report-service/internal/repository"

	"github.com/apex/log"
)

// UserService turns an authenticated identity into an Actor. The stored
// profile is authoritative for role and disabled state.
type UserService struct {
	userRepo *repository.UserRepository
}

func NewUserService(userRepo *repository.UserRepository) *UserService {
	return &UserService{userRepo: userRepo}
}

// Resolve loads the profile of uid. A first sign-in with a known email
// creates a plain user profile.
func (s *UserService) Resolve(ctx context.Context, uid, email string) (model.Actor, error) {
	if uid == "" {
		return model.Actor{}, denied("authentication required")
	}
	profile, err := s.userRepo.FindByID(ctx, uid)
	if err != nil {
		return model.Actor{}, classify(err)
	}
	if profile == nil {
		if email == "" {
			return model.Actor{UserID: uid, Role: model.RoleUser}, nil
		}
		profile = &model.UserProfile{UID: uid, Email: email, Role: model.RoleUser}
		if err := s.userRepo.Upsert(ctx, profile); err != nil {
			return model.Actor{}, classify(err)
		}
		log.WithFields(log.Fields{"uid": uid}).Info("user: profile created")
	}
	return model.Actor{UserID: profile.UID, Role: profile.Role, Disabled: profile.Disabled}, nil
}
