package service

import (
	"context"
	"errors"
	"math"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/yakoovad/reviewmate/internal/githubapi"
	"github.com/yakoovad/reviewmate/internal/model"
	"github.com/yakoovad/reviewmate/internal/repository"
	"github.com/yakoovad/reviewmate/pkg/logger"
)

type UpsertAction string

const (
	ActionCreated   UpsertAction = "created"
	ActionUpdated   UpsertAction = "updated"
	ActionUnchanged UpsertAction = "unchanged"
)

const (
	EventReviewCreated = "review.created"
	EventReviewUpdated = "review.updated"
	EventReviewDeleted = "review.deleted"
)

// GithubClient fetches single-PR metadata from the remote API.
type GithubClient interface {
	FetchPullRequest(ctx context.Context, owner, repo string, number int, token string) (*githubapi.PullRequest, error)
}

// TokenVault encrypts credentials at rest and decrypts them for use.
type TokenVault interface {
	Encrypt(plaintext string) (string, error)
	Decrypt(opaque string) (string, error)
}

// Notifier delivers a status-change notification. Best-effort: upsert
// swallows its failures.
type Notifier interface {
	NotifyStatusChange(ctx context.Context, user *model.User, review *model.Review) error
}

// Emitter pushes an event to the user's live connections.
type Emitter interface {
	Emit(userID, event string, payload any)
}

type ReviewService struct {
	reviews repository.ReviewRepository
	users   repository.UserRepository

	github   GithubClient
	vault    TokenVault
	notifier Notifier
	emitter  Emitter
}

func NewReviewService() *ReviewService {
	return &ReviewService{}
}

// Upsert reconciles a PR URL against the store: resolve identity, resolve
// credential, fetch remote metadata, then create or fully overwrite the
// record. A transient remote outage for an already-tracked PR degrades to
// returning the stored record unchanged.
func (s *ReviewService) Upsert(ctx context.Context, user *model.User, prURL, overrideToken string) (*model.Review, UpsertAction, *Error) {
	identity, err := githubapi.ParsePRURL(prURL)
	if err != nil {
		return nil, "", NewError(ErrorCodeInvalidURL, err.Error())
	}

	token, svcErr := s.resolveGithubToken(ctx, user, overrideToken)
	if svcErr != nil {
		return nil, "", svcErr
	}

	remote, err := s.github.FetchPullRequest(ctx, identity.Owner, identity.Repo, identity.Number, token)
	if err != nil {
		if errors.Is(err, githubapi.ErrUnavailable) {
			// Nothing new to report beats a hard failure for a PR we
			// already track.
			if existing, getErr := s.reviews.Get(ctx, identity.PRID, user.ID); getErr == nil {
				return toModelReview(existing), ActionUnchanged, nil
			}
		}
		return nil, "", s.fetchError(err)
	}

	fresh := buildReview(user.ID, identity, prURL, remote)
	if err = fresh.Validate(); err != nil {
		return nil, "", NewError(ErrorCodeUnspecified, "fetched PR failed validation").WithDetails(err.Error())
	}

	existing, err := s.reviews.Get(ctx, identity.PRID, user.ID)
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return s.createReview(ctx, user, fresh)
	case err != nil:
		return nil, "", NewError(ErrorCodeUnspecified, "failed to look up review")
	}

	return s.updateReview(ctx, user, existing.Status, fresh)
}

func (s *ReviewService) createReview(ctx context.Context, user *model.User, fresh *model.Review) (*model.Review, UpsertAction, *Error) {
	// First sight: there is no transition to announce yet.
	fresh.LastStatusNotified = fresh.Status

	record := toRepoReview(fresh)
	err := s.reviews.Create(ctx, record)
	if errors.Is(err, repository.ErrAlreadyExists) {
		// Lost a create race. The unique constraint is the backstop;
		// fall back to update semantics instead of surfacing a conflict.
		existing, getErr := s.reviews.Get(ctx, fresh.PRID, user.ID)
		if getErr != nil {
			return nil, "", NewError(ErrorCodeUnspecified, "failed to re-read review after create conflict")
		}
		return s.updateReview(ctx, user, existing.Status, fresh)
	}
	if err != nil {
		return nil, "", NewError(ErrorCodeUnspecified, "failed to create review")
	}

	created := toModelReview(record)
	s.emitter.Emit(user.ID, EventReviewCreated, created)
	return created, ActionCreated, nil
}

func (s *ReviewService) updateReview(ctx context.Context, user *model.User, previousStatus model.ReviewStatus, fresh *model.Review) (*model.Review, UpsertAction, *Error) {
	record, err := s.reviews.Replace(ctx, toRepoReview(fresh))
	if err != nil {
		return nil, "", NewError(ErrorCodeUnspecified, "failed to update review")
	}

	updated := toModelReview(record)

	if previousStatus != updated.Status {
		l := logger.FromContext(ctx)
		if notifyErr := s.notifier.NotifyStatusChange(ctx, user, updated); notifyErr != nil {
			// A failed email must never fail the upsert.
			l.Warn("status change notification failed",
				zap.String("pr_id", updated.PRID),
				zap.Error(notifyErr))
		}
		if err = s.reviews.SetLastStatusNotified(ctx, updated.PRID, user.ID, updated.Status); err != nil {
			l.Warn("failed to persist last notified status",
				zap.String("pr_id", updated.PRID),
				zap.Error(err))
		} else {
			updated.LastStatusNotified = updated.Status
		}
	}

	s.emitter.Emit(user.ID, EventReviewUpdated, updated)
	return updated, ActionUpdated, nil
}

// resolveGithubToken returns the plaintext token for this call. A non-empty
// override replaces the stored credential before use.
func (s *ReviewService) resolveGithubToken(ctx context.Context, user *model.User, overrideToken string) (string, *Error) {
	if trimmed := strings.TrimSpace(overrideToken); trimmed != "" {
		encrypted, err := s.vault.Encrypt(trimmed)
		if err != nil {
			return "", NewError(ErrorCodeUnspecified, "failed to encrypt token")
		}
		if err = s.users.SetGithubToken(ctx, user.ID, encrypted); err != nil {
			return "", NewError(ErrorCodeUnspecified, "failed to store token")
		}
		user.GithubToken = encrypted
		return trimmed, nil
	}

	stored, err := s.vault.Decrypt(user.GithubToken)
	if err != nil || stored == "" {
		return "", NewError(ErrorCodeMissingCredential, "GitHub token not configured for this user")
	}
	return stored, nil
}

func (s *ReviewService) fetchError(err error) *Error {
	apiErr := &githubapi.APIError{}
	switch {
	case errors.As(err, &apiErr):
		return NewError(ErrorCodeRemoteAPI, "GitHub API call failed").
			WithDetails(apiErr.Message).
			WithUpstreamStatus(apiErr.StatusCode)
	case errors.Is(err, githubapi.ErrProtocol):
		return NewError(ErrorCodeRemoteProtocol, "GitHub API returned unparseable data")
	case errors.Is(err, githubapi.ErrUnavailable):
		return NewError(ErrorCodeRemoteUnavailable, "GitHub API is unreachable")
	default:
		return NewError(ErrorCodeUnspecified, "failed to fetch PR")
	}
}

func (s *ReviewService) List(ctx context.Context, userID string, filter *repository.ListFilter) ([]*model.Review, *Error) {
	records, err := s.reviews.List(ctx, userID, filter)
	if err != nil {
		return nil, NewError(ErrorCodeUnspecified, "failed to list reviews")
	}

	reviews := make([]*model.Review, 0, len(records))
	for _, record := range records {
		reviews = append(reviews, toModelReview(record))
	}
	return reviews, nil
}

func (s *ReviewService) Get(ctx context.Context, userID, prID string) (*model.Review, *Error) {
	record, err := s.reviews.Get(ctx, prID, userID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, NewError(ErrorCodeNotFound, "review not found")
	}
	if err != nil {
		return nil, NewError(ErrorCodeUnspecified, "failed to get review")
	}
	return toModelReview(record), nil
}

func (s *ReviewService) Delete(ctx context.Context, userID, prID string) *Error {
	err := s.reviews.Delete(ctx, prID, userID)
	if errors.Is(err, repository.ErrNotFound) {
		return NewError(ErrorCodeNotFound, "review not found")
	}
	if err != nil {
		return NewError(ErrorCodeUnspecified, "failed to delete review")
	}

	s.emitter.Emit(userID, EventReviewDeleted, map[string]string{"prId": prID})
	return nil
}

const analyticsTopSize = 5

// Analytics aggregates the user's tracked reviews in memory. The per-user
// data set is small enough that the store does not need to aggregate.
func (s *ReviewService) Analytics(ctx context.Context, userID string) (*model.Analytics, *Error) {
	records, err := s.reviews.List(ctx, userID, &repository.ListFilter{SortBy: "date", SortDesc: true})
	if err != nil {
		return nil, NewError(ErrorCodeUnspecified, "failed to load reviews for analytics")
	}

	analytics := &model.Analytics{
		RepositoryActivity: []model.RepositoryActivity{},
		TopContributors:    []model.ContributorActivity{},
	}

	var completed int
	var totalHours float64
	repoCounts := make(map[string]int)
	authorCounts := make(map[string]int)

	for _, record := range records {
		switch record.Status {
		case model.ReviewStatusOpen:
			analytics.StatusCounts.Open++
		case model.ReviewStatusClosed:
			analytics.StatusCounts.Closed++
		case model.ReviewStatusMerged:
			analytics.StatusCounts.Merged++
		}

		if record.Status == model.ReviewStatusClosed || record.Status == model.ReviewStatusMerged {
			completed++
			totalHours += record.UpdatedAt.Sub(record.CreatedAt).Hours()
		}

		repoCounts[record.Repository]++
		authorCounts[record.Author]++
	}

	if completed > 0 {
		analytics.AverageReviewTimeHours = math.Round(totalHours/float64(completed)*100) / 100
	}

	analytics.RepositoryActivity = topRepositories(repoCounts)
	analytics.TopContributors = topContributors(authorCounts)

	return analytics, nil
}

func topRepositories(counts map[string]int) []model.RepositoryActivity {
	out := make([]model.RepositoryActivity, 0, len(counts))
	for repo, count := range counts {
		out = append(out, model.RepositoryActivity{Repo: repo, Count: count})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Repo < out[j].Repo
	})
	if len(out) > analyticsTopSize {
		out = out[:analyticsTopSize]
	}
	return out
}

func topContributors(counts map[string]int) []model.ContributorActivity {
	out := make([]model.ContributorActivity, 0, len(counts))
	for author, count := range counts {
		out = append(out, model.ContributorActivity{Author: author, Count: count})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Author < out[j].Author
	})
	if len(out) > analyticsTopSize {
		out = out[:analyticsTopSize]
	}
	return out
}

func buildReview(userID string, identity *githubapi.PRIdentity, prURL string, remote *githubapi.PullRequest) *model.Review {
	author := remote.User.Login
	if author == "" {
		author = "unknown"
	}
	title := remote.Title
	if title == "" {
		title = "Untitled PR"
	}

	linesChanged := remote.Additions + remote.Deletions

	return &model.Review{
		UserID:       userID,
		PRID:         identity.PRID,
		PRNumber:     identity.Number,
		PRURL:        prURL,
		Repository:   identity.Owner + "/" + identity.Repo,
		Author:       author,
		Title:        title,
		Description:  remote.Body,
		Additions:    remote.Additions,
		Deletions:    remote.Deletions,
		FilesChanged: remote.ChangedFiles,
		LinesChanged: linesChanged,
		Priority:     model.PriorityFor(linesChanged),
		Status:       model.StatusFor(remote.State, remote.MergedAt),
		CreatedAt:    remote.CreatedAt,
	}
}

func toRepoReview(review *model.Review) *repository.Review {
	return &repository.Review{
		UserID:             review.UserID,
		PRID:               review.PRID,
		PRNumber:           review.PRNumber,
		PRURL:              review.PRURL,
		Repository:         review.Repository,
		Author:             review.Author,
		Title:              review.Title,
		Description:        review.Description,
		Additions:          review.Additions,
		Deletions:          review.Deletions,
		FilesChanged:       review.FilesChanged,
		LinesChanged:       review.LinesChanged,
		Priority:           review.Priority,
		Status:             review.Status,
		LastStatusNotified: review.LastStatusNotified,
		CreatedAt:          review.CreatedAt,
	}
}

func toModelReview(record *repository.Review) *model.Review {
	return &model.Review{
		UserID:             record.UserID,
		PRID:               record.PRID,
		PRNumber:           record.PRNumber,
		PRURL:              record.PRURL,
		Repository:         record.Repository,
		Author:             record.Author,
		Title:              record.Title,
		Description:        record.Description,
		Additions:          record.Additions,
		Deletions:          record.Deletions,
		FilesChanged:       record.FilesChanged,
		LinesChanged:       record.LinesChanged,
		Priority:           record.Priority,
		Status:             record.Status,
		LastStatusNotified: record.LastStatusNotified,
		CreatedAt:          record.CreatedAt,
		UpdatedAt:          record.UpdatedAt,
	}
}

func (s *ReviewService) WithReviewRepo(r repository.ReviewRepository) *ReviewService {
	s.reviews = r
	return s
}

func (s *ReviewService) WithUserRepo(r repository.UserRepository) *ReviewService {
	s.users = r
	return s
}

func (s *ReviewService) WithGithubClient(c GithubClient) *ReviewService {
	s.github = c
	return s
}

func (s *ReviewService) WithVault(v TokenVault) *ReviewService {
	s.vault = v
	return s
}

func (s *ReviewService) WithNotifier(n Notifier) *ReviewService {
	s.notifier = n
	return s
}

func (s *ReviewService) WithEmitter(e Emitter) *ReviewService {
	s.emitter = e
	return s
}
