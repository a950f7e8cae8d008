package service

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/yakoovad/reviewmate/internal/githubapi"
	"github.com/yakoovad/reviewmate/internal/model"
	"github.com/yakoovad/reviewmate/internal/repository"
)

type MockTransactor struct {
	mock.Mock
}

func (m *MockTransactor) WithinTransaction(ctx context.Context, fn func(context.Context) error) error {
	return fn(ctx)
}

type MockReviewRepository struct {
	mock.Mock
}

func (m *MockReviewRepository) Create(ctx context.Context, review *repository.Review) error {
	args := m.Called(ctx, review)
	return args.Error(0)
}

func (m *MockReviewRepository) Replace(ctx context.Context, review *repository.Review) (*repository.Review, error) {
	args := m.Called(ctx, review)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*repository.Review), args.Error(1)
}

func (m *MockReviewRepository) Get(ctx context.Context, prID, userID string) (*repository.Review, error) {
	args := m.Called(ctx, prID, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*repository.Review), args.Error(1)
}

func (m *MockReviewRepository) Delete(ctx context.Context, prID, userID string) error {
	args := m.Called(ctx, prID, userID)
	return args.Error(0)
}

func (m *MockReviewRepository) List(ctx context.Context, userID string, filter *repository.ListFilter) ([]*repository.Review, error) {
	args := m.Called(ctx, userID, filter)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*repository.Review), args.Error(1)
}

func (m *MockReviewRepository) SetLastStatusNotified(ctx context.Context, prID, userID string, status model.ReviewStatus) error {
	args := m.Called(ctx, prID, userID, status)
	return args.Error(0)
}

type MockUserRepository struct {
	mock.Mock
}

func (m *MockUserRepository) Create(ctx context.Context, user *repository.User) error {
	args := m.Called(ctx, user)
	return args.Error(0)
}

func (m *MockUserRepository) Get(ctx context.Context, userID string) (*repository.User, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*repository.User), args.Error(1)
}

func (m *MockUserRepository) GetByEmail(ctx context.Context, email string) (*repository.User, error) {
	args := m.Called(ctx, email)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*repository.User), args.Error(1)
}

func (m *MockUserRepository) SetGithubToken(ctx context.Context, userID, encryptedToken string) error {
	args := m.Called(ctx, userID, encryptedToken)
	return args.Error(0)
}

func (m *MockUserRepository) ListAll(ctx context.Context) ([]*repository.User, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*repository.User), args.Error(1)
}

type MockGithubClient struct {
	mock.Mock
}

func (m *MockGithubClient) FetchPullRequest(ctx context.Context, owner, repo string, number int, token string) (*githubapi.PullRequest, error) {
	args := m.Called(ctx, owner, repo, number, token)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*githubapi.PullRequest), args.Error(1)
}

type MockVault struct {
	mock.Mock
}

func (m *MockVault) Encrypt(plaintext string) (string, error) {
	args := m.Called(plaintext)
	return args.String(0), args.Error(1)
}

func (m *MockVault) Decrypt(opaque string) (string, error) {
	args := m.Called(opaque)
	return args.String(0), args.Error(1)
}

type MockNotifier struct {
	mock.Mock
}

func (m *MockNotifier) NotifyStatusChange(ctx context.Context, user *model.User, review *model.Review) error {
	args := m.Called(ctx, user, review)
	return args.Error(0)
}

type MockEmitter struct {
	mock.Mock
}

func (m *MockEmitter) Emit(userID, event string, payload any) {
	m.Called(userID, event, payload)
}

type MockUpserter struct {
	mock.Mock
}

func (m *MockUpserter) Upsert(ctx context.Context, user *model.User, prURL, overrideToken string) (*model.Review, UpsertAction, *Error) {
	args := m.Called(ctx, user, prURL, overrideToken)
	var review *model.Review
	if args.Get(0) != nil {
		review = args.Get(0).(*model.Review)
	}
	var svcErr *Error
	if args.Get(2) != nil {
		svcErr = args.Get(2).(*Error)
	}
	return review, args.Get(1).(UpsertAction), svcErr
}
