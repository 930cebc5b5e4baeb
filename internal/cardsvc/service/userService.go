package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/avvvet/viand-services/internal/cardsvc/models"
	"github.com/avvvet/viand-services/internal/cardsvc/store"
	"github.com/go-playground/validator/v10"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"golang.org/x/crypto/bcrypt"
)

type UserStore interface {
	CreateUser(ctx context.Context, u *models.User) error
	GetByID(ctx context.Context, id primitive.ObjectID) (*models.User, error)
	GetByEmail(ctx context.Context, email string) (*models.User, error)
}

type TokenIssuer interface {
	Issue(userID string) (string, error)
}

type Registration struct {
	Name     string `json:"name" validate:"required"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=6"`
}

type Credentials struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// UserService registers users and exchanges credentials for tokens.
type UserService struct {
	userStore UserStore
	tokens    TokenIssuer
	validate  *validator.Validate
	cost      int
}

func NewUserService(userStore UserStore, tokens TokenIssuer) *UserService {
	return &UserService{
		userStore: userStore,
		tokens:    tokens,
		validate:  newValidator(),
		cost:      bcrypt.DefaultCost,
	}
}

// SetHashCost overrides the bcrypt cost; tests lower it.
func (s *UserService) SetHashCost(cost int) {
	s.cost = cost
}

// Register creates the user and returns a token for them.
func (s *UserService) Register(ctx context.Context, r Registration) (string, error) {
	r.Email = strings.ToLower(strings.TrimSpace(r.Email))
	if err := firstViolation(s.validate.Struct(r)); err != nil {
		return "", err
	}

	existing, err := s.userStore.GetByEmail(ctx, r.Email)
	if err != nil {
		return "", err
	}
	if existing != nil {
		return "", ErrUserExists
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(r.Password), s.cost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}

	user := &models.User{
		Name:     r.Name,
		Email:    r.Email,
		Password: string(hash),
		Date:     time.Now().UTC().Truncate(time.Millisecond),
	}
	if err := s.userStore.CreateUser(ctx, user); err != nil {
		if errors.Is(err, store.ErrDuplicateKey) {
			return "", ErrUserExists
		}
		return "", err
	}

	return s.tokens.Issue(user.ID.Hex())
}

// Login checks the credentials and returns a fresh token.
func (s *UserService) Login(ctx context.Context, c Credentials) (string, error) {
	c.Email = strings.ToLower(strings.TrimSpace(c.Email))
	if err := firstViolation(s.validate.Struct(c)); err != nil {
		return "", err
	}

	user, err := s.userStore.GetByEmail(ctx, c.Email)
	if err != nil {
		return "", err
	}
	if user == nil {
		return "", ErrInvalidCredentials
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(c.Password)); err != nil {
		return "", ErrInvalidCredentials
	}

	return s.tokens.Issue(user.ID.Hex())
}

func (s *UserService) Get(ctx context.Context, id primitive.ObjectID) (*models.User, error) {
	user, err := s.userStore.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, ErrUserNotFound
	}
	return user, nil
}
