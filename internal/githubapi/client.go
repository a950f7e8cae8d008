package githubapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/time/rate"
)

var (
	// ErrUnavailable marks transport-level failures (refused connection,
	// timeout, DNS). Transient: callers may degrade gracefully.
	ErrUnavailable = errors.New("github api unavailable")
	// ErrProtocol marks a 2xx response whose body is not the expected
	// pull request document.
	ErrProtocol = errors.New("github api returned unparseable data")
)

// APIError is a non-2xx answer from GitHub, carrying the upstream status
// and message when one was parseable.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("github api call failed: status %d: %s", e.StatusCode, e.Message)
}

// PullRequest is the subset of the GitHub pull request document this
// service consumes.
type PullRequest struct {
	Title        string     `json:"title"`
	Body         string     `json:"body"`
	State        string     `json:"state"`
	MergedAt     *time.Time `json:"merged_at"`
	CreatedAt    time.Time  `json:"created_at"`
	Additions    int        `json:"additions"`
	Deletions    int        `json:"deletions"`
	ChangedFiles int        `json:"changed_files"`
	User         struct {
		Login string `json:"login"`
	} `json:"user"`
}

type Client struct {
	baseURL string
	http    *http.Client
	limiter *rate.Limiter
}

// NewClient builds a client for single-PR metadata reads. The timeout
// bounds every call so a dead upstream cannot stall a batch loop; the
// limiter keeps outbound request rate polite regardless of caller.
func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: timeout},
		limiter: rate.NewLimiter(rate.Limit(5), 10),
	}
}

// FetchPullRequest performs one authenticated read of PR metadata. It does
// not retry; retry policy belongs to the caller.
func (c *Client) FetchPullRequest(ctx context.Context, owner, repo string, number int, token string) (*PullRequest, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, errors.Wrap(ErrUnavailable, err.Error())
	}

	url := fmt.Sprintf("%s/repos/%s/%s/pulls/%d", c.baseURL, owner, repo, number)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("User-Agent", "ReviewMate-Backend")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, errors.Wrap(ErrUnavailable, err.Error())
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{StatusCode: resp.StatusCode, Message: "Unknown error"}
		var body struct {
			Message string `json:"message"`
		}
		if decodeErr := json.NewDecoder(resp.Body).Decode(&body); decodeErr == nil && body.Message != "" {
			apiErr.Message = body.Message
		}
		return nil, apiErr
	}

	pr := &PullRequest{}
	if err = json.NewDecoder(resp.Body).Decode(pr); err != nil {
		return nil, errors.Wrap(ErrProtocol, err.Error())
	}

	return pr, nil
}
