package core

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"kansha-backend-go/internal/db"
	"kansha-backend-go/internal/identity"
	"kansha-backend-go/internal/models"
)

// userService implements the UserService interface.
type userService struct {
	userRepo db.UserRepository
	gate     *AuthGate
	logger   *zap.Logger
	now      func() time.Time
}

// NewUserService creates a new UserService instance.
func NewUserService(userRepo db.UserRepository, gate *AuthGate, logger *zap.Logger) UserService {
	return &userService{userRepo: userRepo, gate: gate, logger: logger, now: time.Now}
}

// GetOrCreate retrieves a user by ID, creating the profile from the token claims when missing.
// Returns the user, a boolean indicating if the user was created, and an error if any.
func (s *userService) GetOrCreate(ctx context.Context, id *identity.Identity) (*models.User, bool, error) {
	user, err := s.userRepo.GetByID(ctx, id.UID)
	if err == nil {
		now := s.now().UTC()
		if touchErr := s.userRepo.TouchSignIn(ctx, id.UID, now); touchErr != nil {
			s.logger.Warn("Failed to record sign-in", zap.String("userID", id.UID), zap.Error(touchErr))
		} else {
			user.LastSignIn = now
		}
		return user, false, nil
	}
	if !errors.Is(err, db.ErrNotFound) {
		return nil, false, fmt.Errorf("failed to get user by ID '%s' from repository: %w", id.UID, err)
	}

	now := s.now().UTC()
	newUser := &models.User{
		ID:          id.UID,
		Email:       id.Email,
		DisplayName: id.DisplayName,
		CreatedAt:   now,
		LastSignIn:  now,
	}
	if err := s.userRepo.Create(ctx, newUser); err != nil {
		if errors.Is(err, db.ErrAlreadyExists) {
			// Created concurrently by another request.
			existing, getErr := s.userRepo.GetByID(ctx, id.UID)
			if getErr != nil {
				return nil, false, fmt.Errorf("failed to reload user '%s' after concurrent create: %w", id.UID, getErr)
			}
			return existing, false, nil
		}
		return nil, false, fmt.Errorf("failed to create user (id: %s) after not found: %w", id.UID, err)
	}
	return newUser, true, nil
}

// GetByID retrieves a user by their ID.
func (s *userService) GetByID(ctx context.Context, userID string) (*models.User, error) {
	user, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			return nil, fmt.Errorf("%w: user with ID '%s'", ErrUserNotFound, userID)
		}
		return nil, fmt.Errorf("failed to get user by ID '%s' from repository: %w", userID, err)
	}
	return user, nil
}

func (s *userService) SelectRole(ctx context.Context, id *identity.Identity, rawRole string) (*models.User, Destination, error) {
	role := models.ParseRole(rawRole)
	if !role.Selectable() {
		return nil, "", fmt.Errorf("%w: got %q", ErrInvalidRole, rawRole)
	}

	seed := &models.User{ID: id.UID, Email: id.Email, DisplayName: id.DisplayName}
	user, err := s.userRepo.SaveRole(ctx, seed, role)
	if err != nil {
		return nil, "", err
	}

	s.logger.Info("User selected role", zap.String("userID", id.UID), zap.String("role", role.String()))
	if s.gate != nil {
		s.gate.Notify(id.UID, id)
	}
	return user, DestinationForRole(role), nil
}
