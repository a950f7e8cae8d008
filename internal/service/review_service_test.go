package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/yakoovad/reviewmate/internal/githubapi"
	"github.com/yakoovad/reviewmate/internal/model"
	"github.com/yakoovad/reviewmate/internal/repository"
)

func testUser() *model.User {
	return &model.User{
		ID:          "u1",
		Email:       "dev@example.com",
		GithubToken: "encrypted-token",
	}
}

func remotePR(additions, deletions int) *githubapi.PullRequest {
	pr := &githubapi.PullRequest{
		Title:        "feat: add caching layer",
		Body:         "Adds a cache in front of the store",
		State:        "open",
		CreatedAt:    time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
		Additions:    additions,
		Deletions:    deletions,
		ChangedFiles: 4,
	}
	pr.User.Login = "octocat"
	return pr
}

func storedReview(status model.ReviewStatus) *repository.Review {
	return &repository.Review{
		UserID:             "u1",
		PRID:               "octo/repo#42",
		PRNumber:           42,
		PRURL:              "https://github.com/octo/repo/pull/42",
		Repository:         "octo/repo",
		Author:             "octocat",
		Title:              "feat: add caching layer",
		Additions:          150,
		Deletions:          100,
		FilesChanged:       4,
		LinesChanged:       250,
		Priority:           model.PriorityHigh,
		Status:             status,
		LastStatusNotified: status,
		CreatedAt:          time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
		UpdatedAt:          time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestReviewService_Upsert(t *testing.T) {
	prURL := "https://github.com/octo/repo/pull/42"
	mergedAt := time.Date(2025, 6, 2, 9, 0, 0, 0, time.UTC)

	tests := []struct {
		name             string
		prURL            string
		overrideToken    string
		setupMocks       func(*MockReviewRepository, *MockUserRepository, *MockGithubClient, *MockVault, *MockNotifier, *MockEmitter)
		expectedError    bool
		errorCode        ErrorCode
		expectedAction   UpsertAction
		expectedPriority model.Priority
		expectedStatus   model.ReviewStatus
	}{
		{
			name:  "success: first fetch creates a high priority review",
			prURL: prURL,
			setupMocks: func(rr *MockReviewRepository, ur *MockUserRepository, gh *MockGithubClient, v *MockVault, n *MockNotifier, em *MockEmitter) {
				v.On("Decrypt", "encrypted-token").Return("ghp_plain", nil)
				gh.On("FetchPullRequest", mock.Anything, "octo", "repo", 42, "ghp_plain").
					Return(remotePR(150, 100), nil)

				rr.On("Get", mock.Anything, "octo/repo#42", "u1").Return(nil, repository.ErrNotFound)
				rr.On("Create", mock.Anything, mock.MatchedBy(func(r *repository.Review) bool {
					return r.PRID == "octo/repo#42" &&
						r.LinesChanged == 250 &&
						r.Priority == model.PriorityHigh &&
						r.Status == model.ReviewStatusOpen &&
						r.LastStatusNotified == model.ReviewStatusOpen
				})).Return(nil)

				em.On("Emit", "u1", EventReviewCreated, mock.Anything).Once()
			},
			expectedAction:   ActionCreated,
			expectedPriority: model.PriorityHigh,
			expectedStatus:   model.ReviewStatusOpen,
		},
		{
			name:  "success: refetch with merge transition notifies once",
			prURL: prURL,
			setupMocks: func(rr *MockReviewRepository, ur *MockUserRepository, gh *MockGithubClient, v *MockVault, n *MockNotifier, em *MockEmitter) {
				remote := remotePR(150, 100)
				remote.State = "closed"
				remote.MergedAt = &mergedAt

				v.On("Decrypt", "encrypted-token").Return("ghp_plain", nil)
				gh.On("FetchPullRequest", mock.Anything, "octo", "repo", 42, "ghp_plain").
					Return(remote, nil)

				rr.On("Get", mock.Anything, "octo/repo#42", "u1").Return(storedReview(model.ReviewStatusOpen), nil)
				rr.On("Replace", mock.Anything, mock.MatchedBy(func(r *repository.Review) bool {
					return r.Status == model.ReviewStatusMerged
				})).Return(storedReview(model.ReviewStatusMerged), nil)

				n.On("NotifyStatusChange", mock.Anything, mock.Anything, mock.Anything).Return(nil).Once()
				rr.On("SetLastStatusNotified", mock.Anything, "octo/repo#42", "u1", model.ReviewStatusMerged).Return(nil).Once()

				em.On("Emit", "u1", EventReviewUpdated, mock.Anything).Once()
			},
			expectedAction:   ActionUpdated,
			expectedPriority: model.PriorityHigh,
			expectedStatus:   model.ReviewStatusMerged,
		},
		{
			name:  "success: refetch without transition skips notification",
			prURL: prURL,
			setupMocks: func(rr *MockReviewRepository, ur *MockUserRepository, gh *MockGithubClient, v *MockVault, n *MockNotifier, em *MockEmitter) {
				v.On("Decrypt", "encrypted-token").Return("ghp_plain", nil)
				gh.On("FetchPullRequest", mock.Anything, "octo", "repo", 42, "ghp_plain").
					Return(remotePR(150, 100), nil)

				rr.On("Get", mock.Anything, "octo/repo#42", "u1").Return(storedReview(model.ReviewStatusOpen), nil)
				rr.On("Replace", mock.Anything, mock.Anything).Return(storedReview(model.ReviewStatusOpen), nil)

				em.On("Emit", "u1", EventReviewUpdated, mock.Anything).Once()
			},
			expectedAction:   ActionUpdated,
			expectedPriority: model.PriorityHigh,
			expectedStatus:   model.ReviewStatusOpen,
		},
		{
			name:  "success: remote outage degrades to stored record",
			prURL: prURL,
			setupMocks: func(rr *MockReviewRepository, ur *MockUserRepository, gh *MockGithubClient, v *MockVault, n *MockNotifier, em *MockEmitter) {
				v.On("Decrypt", "encrypted-token").Return("ghp_plain", nil)
				gh.On("FetchPullRequest", mock.Anything, "octo", "repo", 42, "ghp_plain").
					Return(nil, githubapi.ErrUnavailable)

				rr.On("Get", mock.Anything, "octo/repo#42", "u1").Return(storedReview(model.ReviewStatusOpen), nil)
			},
			expectedAction:   ActionUnchanged,
			expectedPriority: model.PriorityHigh,
			expectedStatus:   model.ReviewStatusOpen,
		},
		{
			name:  "success: lost create race falls back to update",
			prURL: prURL,
			setupMocks: func(rr *MockReviewRepository, ur *MockUserRepository, gh *MockGithubClient, v *MockVault, n *MockNotifier, em *MockEmitter) {
				v.On("Decrypt", "encrypted-token").Return("ghp_plain", nil)
				gh.On("FetchPullRequest", mock.Anything, "octo", "repo", 42, "ghp_plain").
					Return(remotePR(150, 100), nil)

				rr.On("Get", mock.Anything, "octo/repo#42", "u1").Return(nil, repository.ErrNotFound).Once()
				rr.On("Create", mock.Anything, mock.Anything).Return(repository.ErrAlreadyExists)
				rr.On("Get", mock.Anything, "octo/repo#42", "u1").Return(storedReview(model.ReviewStatusOpen), nil).Once()
				rr.On("Replace", mock.Anything, mock.Anything).Return(storedReview(model.ReviewStatusOpen), nil)

				em.On("Emit", "u1", EventReviewUpdated, mock.Anything).Once()
			},
			expectedAction:   ActionUpdated,
			expectedPriority: model.PriorityHigh,
			expectedStatus:   model.ReviewStatusOpen,
		},
		{
			name:  "failure: malformed URL short-circuits",
			prURL: "https://gitlab.com/octo/repo/merge_requests/42",
			setupMocks: func(rr *MockReviewRepository, ur *MockUserRepository, gh *MockGithubClient, v *MockVault, n *MockNotifier, em *MockEmitter) {
			},
			expectedError: true,
			errorCode:     ErrorCodeInvalidURL,
		},
		{
			name:  "failure: no stored credential",
			prURL: prURL,
			setupMocks: func(rr *MockReviewRepository, ur *MockUserRepository, gh *MockGithubClient, v *MockVault, n *MockNotifier, em *MockEmitter) {
				v.On("Decrypt", "encrypted-token").Return("", nil)
			},
			expectedError: true,
			errorCode:     ErrorCodeMissingCredential,
		},
		{
			name:  "failure: remote rejects the call",
			prURL: prURL,
			setupMocks: func(rr *MockReviewRepository, ur *MockUserRepository, gh *MockGithubClient, v *MockVault, n *MockNotifier, em *MockEmitter) {
				v.On("Decrypt", "encrypted-token").Return("ghp_plain", nil)
				gh.On("FetchPullRequest", mock.Anything, "octo", "repo", 42, "ghp_plain").
					Return(nil, &githubapi.APIError{StatusCode: 404, Message: "Not Found"})
			},
			expectedError: true,
			errorCode:     ErrorCodeRemoteAPI,
		},
		{
			name:  "failure: outage with no stored record",
			prURL: prURL,
			setupMocks: func(rr *MockReviewRepository, ur *MockUserRepository, gh *MockGithubClient, v *MockVault, n *MockNotifier, em *MockEmitter) {
				v.On("Decrypt", "encrypted-token").Return("ghp_plain", nil)
				gh.On("FetchPullRequest", mock.Anything, "octo", "repo", 42, "ghp_plain").
					Return(nil, githubapi.ErrUnavailable)

				rr.On("Get", mock.Anything, "octo/repo#42", "u1").Return(nil, repository.ErrNotFound)
			},
			expectedError: true,
			errorCode:     ErrorCodeRemoteUnavailable,
		},
		{
			name:          "success: override token is stored before use",
			prURL:         prURL,
			overrideToken: "  ghp_fresh  ",
			setupMocks: func(rr *MockReviewRepository, ur *MockUserRepository, gh *MockGithubClient, v *MockVault, n *MockNotifier, em *MockEmitter) {
				v.On("Encrypt", "ghp_fresh").Return("encrypted-fresh", nil)
				ur.On("SetGithubToken", mock.Anything, "u1", "encrypted-fresh").Return(nil)

				gh.On("FetchPullRequest", mock.Anything, "octo", "repo", 42, "ghp_fresh").
					Return(remotePR(30, 10), nil)

				rr.On("Get", mock.Anything, "octo/repo#42", "u1").Return(nil, repository.ErrNotFound)
				rr.On("Create", mock.Anything, mock.MatchedBy(func(r *repository.Review) bool {
					return r.Priority == model.PriorityLow
				})).Return(nil)

				em.On("Emit", "u1", EventReviewCreated, mock.Anything).Once()
			},
			expectedAction:   ActionCreated,
			expectedPriority: model.PriorityLow,
			expectedStatus:   model.ReviewStatusOpen,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockReviewRepo := new(MockReviewRepository)
			mockUserRepo := new(MockUserRepository)
			mockGithub := new(MockGithubClient)
			mockVault := new(MockVault)
			mockNotifier := new(MockNotifier)
			mockEmitter := new(MockEmitter)

			tt.setupMocks(mockReviewRepo, mockUserRepo, mockGithub, mockVault, mockNotifier, mockEmitter)

			service := NewReviewService().
				WithReviewRepo(mockReviewRepo).
				WithUserRepo(mockUserRepo).
				WithGithubClient(mockGithub).
				WithVault(mockVault).
				WithNotifier(mockNotifier).
				WithEmitter(mockEmitter)

			got, action, err := service.Upsert(context.Background(), testUser(), tt.prURL, tt.overrideToken)

			if tt.expectedError {
				assert.NotNil(t, err)
				assert.Equal(t, tt.errorCode, err.Code)
				assert.Nil(t, got)
			} else {
				assert.Nil(t, err)
				assert.NotNil(t, got)
				assert.Equal(t, tt.expectedAction, action)
				assert.Equal(t, tt.expectedPriority, got.Priority)
				assert.Equal(t, tt.expectedStatus, got.Status)
			}

			mockReviewRepo.AssertExpectations(t)
			mockUserRepo.AssertExpectations(t)
			mockGithub.AssertExpectations(t)
			mockVault.AssertExpectations(t)
			mockNotifier.AssertExpectations(t)
			mockEmitter.AssertExpectations(t)
		})
	}
}

func TestReviewService_Upsert_NotificationFailureDoesNotFailUpsert(t *testing.T) {
	mergedAt := time.Date(2025, 6, 2, 9, 0, 0, 0, time.UTC)
	remote := remotePR(150, 100)
	remote.State = "closed"
	remote.MergedAt = &mergedAt

	mockReviewRepo := new(MockReviewRepository)
	mockUserRepo := new(MockUserRepository)
	mockGithub := new(MockGithubClient)
	mockVault := new(MockVault)
	mockNotifier := new(MockNotifier)
	mockEmitter := new(MockEmitter)

	mockVault.On("Decrypt", "encrypted-token").Return("ghp_plain", nil)
	mockGithub.On("FetchPullRequest", mock.Anything, "octo", "repo", 42, "ghp_plain").
		Return(remote, nil)
	mockReviewRepo.On("Get", mock.Anything, "octo/repo#42", "u1").
		Return(storedReview(model.ReviewStatusOpen), nil)
	mockReviewRepo.On("Replace", mock.Anything, mock.Anything).
		Return(storedReview(model.ReviewStatusMerged), nil)

	mockNotifier.On("NotifyStatusChange", mock.Anything, mock.Anything, mock.Anything).
		Return(errors.New("smtp down")).Once()
	mockReviewRepo.On("SetLastStatusNotified", mock.Anything, "octo/repo#42", "u1", model.ReviewStatusMerged).
		Return(nil).Once()
	mockEmitter.On("Emit", "u1", EventReviewUpdated, mock.Anything).Once()

	service := NewReviewService().
		WithReviewRepo(mockReviewRepo).
		WithUserRepo(mockUserRepo).
		WithGithubClient(mockGithub).
		WithVault(mockVault).
		WithNotifier(mockNotifier).
		WithEmitter(mockEmitter)

	got, action, err := service.Upsert(context.Background(), testUser(), "https://github.com/octo/repo/pull/42", "")

	assert.Nil(t, err)
	assert.Equal(t, ActionUpdated, action)
	assert.Equal(t, model.ReviewStatusMerged, got.Status)

	mockReviewRepo.AssertExpectations(t)
	mockNotifier.AssertExpectations(t)
	mockEmitter.AssertExpectations(t)
}

func TestReviewService_Delete(t *testing.T) {
	tests := []struct {
		name          string
		prID          string
		setupMocks    func(*MockReviewRepository, *MockEmitter)
		expectedError bool
		errorCode     ErrorCode
	}{
		{
			name: "success: delete emits removal event",
			prID: "octo/repo#42",
			setupMocks: func(rr *MockReviewRepository, em *MockEmitter) {
				rr.On("Delete", mock.Anything, "octo/repo#42", "u1").Return(nil)
				em.On("Emit", "u1", EventReviewDeleted, map[string]string{"prId": "octo/repo#42"}).Once()
			},
		},
		{
			name: "failure: unknown review",
			prID: "octo/repo#404",
			setupMocks: func(rr *MockReviewRepository, em *MockEmitter) {
				rr.On("Delete", mock.Anything, "octo/repo#404", "u1").Return(repository.ErrNotFound)
			},
			expectedError: true,
			errorCode:     ErrorCodeNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockReviewRepo := new(MockReviewRepository)
			mockEmitter := new(MockEmitter)

			tt.setupMocks(mockReviewRepo, mockEmitter)

			service := NewReviewService().
				WithReviewRepo(mockReviewRepo).
				WithEmitter(mockEmitter)

			err := service.Delete(context.Background(), "u1", tt.prID)

			if tt.expectedError {
				assert.NotNil(t, err)
				assert.Equal(t, tt.errorCode, err.Code)
			} else {
				assert.Nil(t, err)
			}

			mockReviewRepo.AssertExpectations(t)
			mockEmitter.AssertExpectations(t)
		})
	}
}

func TestReviewService_Analytics(t *testing.T) {
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	record := func(prID, repo, author string, status model.ReviewStatus, hours float64) *repository.Review {
		r := storedReview(status)
		r.PRID = prID
		r.Repository = repo
		r.Author = author
		r.CreatedAt = base
		r.UpdatedAt = base.Add(time.Duration(hours * float64(time.Hour)))
		return r
	}

	mockReviewRepo := new(MockReviewRepository)
	mockReviewRepo.On("List", mock.Anything, "u1", mock.Anything).Return([]*repository.Review{
		record("a/x#1", "a/x", "alice", model.ReviewStatusOpen, 0),
		record("a/x#2", "a/x", "bob", model.ReviewStatusMerged, 10),
		record("b/y#3", "b/y", "alice", model.ReviewStatusClosed, 5),
	}, nil)

	service := NewReviewService().WithReviewRepo(mockReviewRepo)

	analytics, err := service.Analytics(context.Background(), "u1")

	assert.Nil(t, err)
	assert.Equal(t, 1, analytics.StatusCounts.Open)
	assert.Equal(t, 1, analytics.StatusCounts.Closed)
	assert.Equal(t, 1, analytics.StatusCounts.Merged)
	assert.Equal(t, 7.5, analytics.AverageReviewTimeHours)

	assert.Equal(t, []model.RepositoryActivity{
		{Repo: "a/x", Count: 2},
		{Repo: "b/y", Count: 1},
	}, analytics.RepositoryActivity)
	assert.Equal(t, []model.ContributorActivity{
		{Author: "alice", Count: 2},
		{Author: "bob", Count: 1},
	}, analytics.TopContributors)

	mockReviewRepo.AssertExpectations(t)
}
