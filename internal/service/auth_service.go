package service

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"task-manager/internal/cerr"
	"task-manager/internal/model"
	"task-manager/internal/repository"
)

const minPasswordLength = 8

var usernamePattern = regexp.MustCompile(`^[A-Za-z0-9@.+_-]{3,150}$`)

var errInvalidCredentials = cerr.NewError(cerr.Unauthenticated, "invalid username or password", nil)

// dummyHash is compared against when the username is unknown so both login
// failures cost one bcrypt comparison.
var dummyHash = sync.OnceValue(func() []byte {
	hash, err := bcrypt.GenerateFromPassword([]byte("not-a-real-password"), bcrypt.DefaultCost)
	if err != nil {
		panic(fmt.Sprintf("generate dummy hash: %v", err))
	}
	return hash
})

type RegisterInput struct {
	Username string
	Email    string
	Password string
}

// AuthService registers accounts, issues access tokens and edits the contact
// details the dispatcher delivers to.
type AuthService struct {
	tx         *repository.Transactor
	userRepo   *repository.UserRepository
	reportRepo *repository.ReportRepository
	secret     []byte
	ttl        time.Duration
	now        func() time.Time
	compare    func(hash, password []byte) error
}

func NewAuthService(
	tx *repository.Transactor,
	userRepo *repository.UserRepository,
	reportRepo *repository.ReportRepository,
	secret string,
	ttl time.Duration,
) *AuthService {
	return &AuthService{
		tx:         tx,
		userRepo:   userRepo,
		reportRepo: reportRepo,
		secret:     []byte(secret),
		ttl:        ttl,
		now:        time.Now,
		compare:    bcrypt.CompareHashAndPassword,
	}
}

// Register creates the user together with its report record.
func (s *AuthService) Register(ctx context.Context, input RegisterInput) (*model.User, error) {
	input.Username = strings.TrimSpace(input.Username)
	if !usernamePattern.MatchString(input.Username) {
		return nil, cerr.Invalid("username must be 3-150 letters, digits or @.+-_")
	}
	email, err := normalizeEmail(input.Email)
	if err != nil {
		return nil, err
	}
	if len(input.Password) < minPasswordLength {
		return nil, cerr.Invalid("password must have at least 8 characters")
	}

	if _, err := s.userRepo.FindByUsername(ctx, input.Username); err == nil {
		return nil, cerr.NewError(cerr.AlreadyExists, "username already taken", nil)
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(input.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	user := model.User{Username: input.Username, Email: email, PasswordHash: string(hash)}
	err = s.tx.WithinTx(ctx, func(tx *gorm.DB) error {
		if err := s.userRepo.WithTx(tx).Create(ctx, &user); err != nil {
			return err
		}
		return s.reportRepo.WithTx(tx).Create(ctx, &model.Report{UserID: user.ID})
	})
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return nil, cerr.NewError(cerr.AlreadyExists, "username already taken", err)
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// Login checks the credentials and returns a signed access token.
func (s *AuthService) Login(ctx context.Context, username, password string) (string, *model.User, error) {
	user, err := s.userRepo.FindByUsername(ctx, strings.TrimSpace(username))
	if errors.Is(err, gorm.ErrRecordNotFound) {
		_ = s.compare(dummyHash(), []byte(password))
		return "", nil, errInvalidCredentials
	}
	if err != nil {
		return "", nil, err
	}
	if err := s.compare([]byte(user.PasswordHash), []byte(password)); err != nil {
		return "", nil, errInvalidCredentials
	}

	now := s.now()
	claims := jwt.RegisteredClaims{
		Subject:   strconv.FormatUint(uint64(user.ID), 10),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", nil, fmt.Errorf("sign token: %w", err)
	}
	return token, user, nil
}

// Authenticate resolves a bearer token to its user.
func (s *AuthService) Authenticate(ctx context.Context, token string) (*model.User, error) {
	var claims jwt.RegisteredClaims
	_, err := jwt.ParseWithClaims(token, &claims, func(*jwt.Token) (interface{}, error) {
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		return nil, cerr.NewError(cerr.Unauthenticated, "invalid token", err)
	}

	id, err := strconv.ParseUint(claims.Subject, 10, 64)
	if err != nil {
		return nil, cerr.NewError(cerr.Unauthenticated, "invalid token", err)
	}
	user, err := s.userRepo.FindByID(ctx, uint(id))
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, cerr.NewError(cerr.Unauthenticated, "unknown user", err)
	}
	if err != nil {
		return nil, err
	}
	return user, nil
}

// UpdateContact sets the email and the linked Telegram chat (nil unlinks).
func (s *AuthService) UpdateContact(ctx context.Context, user *model.User, email string, chatID *int64) error {
	email, err := normalizeEmail(email)
	if err != nil {
		return err
	}
	errLinked := cerr.NewError(cerr.AlreadyExists, "telegram chat already linked to another user", nil)
	if chatID != nil {
		owner, err := s.userRepo.FindByTelegramChatID(ctx, *chatID)
		switch {
		case err == nil && owner.ID != user.ID:
			return errLinked
		case err != nil && !errors.Is(err, gorm.ErrRecordNotFound):
			return err
		}
	}
	err = s.userRepo.UpdateContact(ctx, user, email, chatID)
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return errLinked
	}
	return err
}

func normalizeEmail(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	addr, err := mail.ParseAddress(raw)
	if err != nil || addr.Address != raw {
		return "", cerr.NewError(cerr.InvalidArgument, "invalid email address", err)
	}
	return addr.Address, nil
}
