package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/vovakirdan/studyroom-server/internal/store"
)

var (
	// ErrUnknownToken is returned when a token does not belong to any user.
	ErrUnknownToken = errors.New("unknown token")
)

// maxTokenAttempts bounds retries on the (astronomically unlikely) token collision.
const maxTokenAttempts = 3

// Service maps opaque device tokens to users.
type Service struct {
	store store.UserStore
}

// NewService creates a new identity service.
func NewService(userStore store.UserStore) *Service {
	return &Service{store: userStore}
}

// CreateUser generates a new token and persists a user bound to it.
// The caller is responsible for handing the token to the client.
func (s *Service) CreateUser(ctx context.Context) (*store.User, error) {
	for attempt := 0; attempt < maxTokenAttempts; attempt++ {
		token, err := GenerateToken()
		if err != nil {
			return nil, fmt.Errorf("generate token: %w", err)
		}

		user, err := s.store.CreateUser(ctx, token)
		if errors.Is(err, store.ErrDuplicate) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("create user: %w", err)
		}
		return user, nil
	}
	return nil, fmt.Errorf("create user: %w", store.ErrDuplicate)
}

// Resolve returns the user owning token.
func (s *Service) Resolve(ctx context.Context, token string) (*store.User, error) {
	if token == "" {
		return nil, ErrUnknownToken
	}

	user, err := s.store.GetUserByToken(ctx, token)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrUnknownToken
		}
		return nil, fmt.Errorf("resolve token: %w", err)
	}
	return user, nil
}
