package service

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/yakoovad/reviewmate/internal/githubapi"
	"github.com/yakoovad/reviewmate/internal/model"
)

const EventBatchProgress = "batch.progress"

type BatchStatus string

const (
	BatchStatusStarted    BatchStatus = "started"
	BatchStatusInProgress BatchStatus = "in_progress"
	BatchStatusCompleted  BatchStatus = "completed"
	BatchStatusFailed     BatchStatus = "failed"
)

// BatchResult describes the outcome of the most recently processed URL.
type BatchResult struct {
	PRURL   string `json:"prUrl"`
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

// BatchProgress is the payload of every batch.progress event.
type BatchProgress struct {
	BatchID    string       `json:"batchId"`
	Total      int          `json:"total"`
	Status     BatchStatus  `json:"status"`
	Processed  int          `json:"processed"`
	Successes  int          `json:"successes"`
	Failures   int          `json:"failures"`
	LastResult *BatchResult `json:"lastResult,omitempty"`
	Message    string       `json:"message,omitempty"`
}

// BatchAck is returned to the caller before any processing happens.
type BatchAck struct {
	BatchID string `json:"batchId"`
	Total   int    `json:"total"`
}

// Upserter is the slice of ReviewService the batch loop needs.
type Upserter interface {
	Upsert(ctx context.Context, user *model.User, prURL, overrideToken string) (*model.Review, UpsertAction, *Error)
}

// BatchService drives sequential PR imports. One goroutine per batch, no
// parallel fan-out: ordering of progress events stays deterministic and the
// outbound API rate stays bounded.
type BatchService struct {
	upserter Upserter
	emitter  Emitter
	logger   *zap.Logger
}

func NewBatchService() *BatchService {
	return &BatchService{logger: zap.NewNop()}
}

// ExtractPRURLs parses tabular text and keeps every cell that contains a
// PR URL. Identity rules are the resolver's; they never diverge from the
// single-fetch path.
func ExtractPRURLs(r io.Reader) ([]string, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("unable to parse CSV file: %w", err)
	}

	urls := make([]string, 0)
	for _, record := range records {
		for _, cell := range record {
			cell = strings.TrimSpace(cell)
			if cell != "" && githubapi.MatchesPRURL(cell) {
				urls = append(urls, cell)
			}
		}
	}
	return urls, nil
}

// Start acknowledges the batch and detaches the drive loop from the
// request. The returned ack carries everything the caller is promised
// before the first item is touched.
func (s *BatchService) Start(ctx context.Context, user *model.User, urls []string) *BatchAck {
	batchID := uuid.NewString()
	total := len(urls)

	s.emitProgress(user.ID, &BatchProgress{
		BatchID: batchID,
		Total:   total,
		Status:  BatchStatusStarted,
	})

	// Detach from the request's cancellation but keep its values.
	go s.process(context.WithoutCancel(ctx), user, batchID, urls)

	return &BatchAck{BatchID: batchID, Total: total}
}

func (s *BatchService) process(ctx context.Context, user *model.User, batchID string, urls []string) {
	total := len(urls)

	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("batch import failed",
				zap.String("batch_id", batchID),
				zap.Any("panic", r))
			s.emitProgress(user.ID, &BatchProgress{
				BatchID:  batchID,
				Total:    total,
				Status:   BatchStatusFailed,
				Failures: total,
				Message:  fmt.Sprint(r),
			})
		}
	}()

	var processed, successes, failures int

	for _, prURL := range urls {
		lastResult := &BatchResult{PRURL: prURL, Status: "success"}

		// A single bad PR never aborts the batch.
		if _, _, err := s.upserter.Upsert(ctx, user, prURL, ""); err != nil {
			failures++
			lastResult.Status = "error"
			lastResult.Message = err.Message
		} else {
			successes++
		}
		processed++

		s.emitProgress(user.ID, &BatchProgress{
			BatchID:    batchID,
			Total:      total,
			Status:     BatchStatusInProgress,
			Processed:  processed,
			Successes:  successes,
			Failures:   failures,
			LastResult: lastResult,
		})
	}

	s.emitProgress(user.ID, &BatchProgress{
		BatchID:   batchID,
		Total:     total,
		Status:    BatchStatusCompleted,
		Processed: processed,
		Successes: successes,
		Failures:  failures,
	})
}

func (s *BatchService) emitProgress(userID string, progress *BatchProgress) {
	s.emitter.Emit(userID, EventBatchProgress, progress)
}

func (s *BatchService) WithUpserter(u Upserter) *BatchService {
	s.upserter = u
	return s
}

func (s *BatchService) WithEmitter(e Emitter) *BatchService {
	s.emitter = e
	return s
}

func (s *BatchService) WithLogger(l *zap.Logger) *BatchService {
	s.logger = l
	return s
}
