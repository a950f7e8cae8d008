package service

import (
	"context"
	"errors"
	"strings"

	"github.com/yakoovad/reviewmate/internal/auth"
	"github.com/yakoovad/reviewmate/internal/db"
	"github.com/yakoovad/reviewmate/internal/model"
	"github.com/yakoovad/reviewmate/internal/repository"
)

type UserService struct {
	tx db.Transactor

	users repository.UserRepository
	vault TokenVault
}

func NewUserService(tx db.Transactor) *UserService {
	return &UserService{tx: tx}
}

// Register creates a user with a hashed password and the GitHub token
// already encrypted at rest, then issues a session token.
func (u *UserService) Register(ctx context.Context, email, password, githubToken string) (string, *model.User, *Error) {
	email = strings.ToLower(strings.TrimSpace(email))

	passwordHash, err := auth.HashPassword(password)
	if err != nil {
		return "", nil, NewError(ErrorCodeUnspecified, "failed to hash password")
	}

	encryptedToken, err := u.vault.Encrypt(strings.TrimSpace(githubToken))
	if err != nil {
		return "", nil, NewError(ErrorCodeUnspecified, "failed to encrypt token")
	}

	record := &repository.User{
		Email:        email,
		PasswordHash: passwordHash,
		GithubToken:  encryptedToken,
	}

	txErr := u.tx.WithinTransaction(ctx, func(txCtx context.Context) error {
		if _, err := u.users.GetByEmail(txCtx, email); err == nil {
			return NewError(ErrorCodeUserExists, "user already exists")
		} else if !errors.Is(err, repository.ErrNotFound) {
			return NewError(ErrorCodeUnspecified, "failed to check existing user")
		}

		err := u.users.Create(txCtx, record)
		switch {
		case errors.Is(err, repository.ErrAlreadyExists):
			return NewError(ErrorCodeUserExists, "user already exists")
		case err != nil:
			return NewError(ErrorCodeUnspecified, "failed to create user")
		}
		return nil
	})

	var svcErr *Error
	if errors.As(txErr, &svcErr) {
		return "", nil, svcErr
	}
	if txErr != nil {
		return "", nil, NewError(ErrorCodeUnspecified, "failed to register user")
	}

	user := toModelUser(record)
	token, err := auth.GenerateToken(user.ID, user.Email, auth.SessionDuration)
	if err != nil {
		return "", nil, NewError(ErrorCodeUnspecified, "failed to issue session token")
	}

	return token, user, nil
}

// Login checks credentials and issues a session token. The same error is
// returned whether the email or the password was wrong.
func (u *UserService) Login(ctx context.Context, email, password string) (string, *model.User, *Error) {
	record, err := u.users.GetByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if errors.Is(err, repository.ErrNotFound) {
		return "", nil, NewError(ErrorCodeInvalidCredentials, "invalid credentials")
	}
	if err != nil {
		return "", nil, NewError(ErrorCodeUnspecified, "failed to look up user")
	}

	if !auth.CheckPassword(record.PasswordHash, password) {
		return "", nil, NewError(ErrorCodeInvalidCredentials, "invalid credentials")
	}

	user := toModelUser(record)
	token, err := auth.GenerateToken(user.ID, user.Email, auth.SessionDuration)
	if err != nil {
		return "", nil, NewError(ErrorCodeUnspecified, "failed to issue session token")
	}

	return token, user, nil
}

// UpdateGithubToken replaces the stored encrypted credential.
func (u *UserService) UpdateGithubToken(ctx context.Context, userID, githubToken string) *Error {
	encrypted, err := u.vault.Encrypt(strings.TrimSpace(githubToken))
	if err != nil {
		return NewError(ErrorCodeUnspecified, "failed to encrypt token")
	}

	err = u.users.SetGithubToken(ctx, userID, encrypted)
	if errors.Is(err, repository.ErrNotFound) {
		return NewError(ErrorCodeNotFound, "user not found")
	}
	if err != nil {
		return NewError(ErrorCodeUnspecified, "failed to update token")
	}
	return nil
}

// GetByID loads the user for an authenticated request.
func (u *UserService) GetByID(ctx context.Context, userID string) (*model.User, *Error) {
	record, err := u.users.Get(ctx, userID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, NewError(ErrorCodeNotFound, "user not found")
	}
	if err != nil {
		return nil, NewError(ErrorCodeUnspecified, "failed to get user")
	}
	return toModelUser(record), nil
}

func toModelUser(record *repository.User) *model.User {
	return &model.User{
		ID:           record.ID,
		Email:        record.Email,
		PasswordHash: record.PasswordHash,
		GithubToken:  record.GithubToken,
		CreatedAt:    record.CreatedAt,
	}
}

func (u *UserService) WithUserRepo(r repository.UserRepository) *UserService {
	u.users = r
	return u
}

func (u *UserService) WithVault(v TokenVault) *UserService {
	u.vault = v
	return u
}
