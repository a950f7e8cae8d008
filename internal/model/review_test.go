package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestPriorityFor(t *testing.T) {
	tests := []struct {
		name         string
		linesChanged int
		expected     Priority
	}{
		{name: "zero lines", linesChanged: 0, expected: PriorityLow},
		{name: "just below medium", linesChanged: 49, expected: PriorityLow},
		{name: "medium boundary", linesChanged: 50, expected: PriorityMedium},
		{name: "just below high", linesChanged: 199, expected: PriorityMedium},
		{name: "high boundary", linesChanged: 200, expected: PriorityHigh},
		{name: "large change", linesChanged: 250, expected: PriorityHigh},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, PriorityFor(tt.linesChanged))
		})
	}
}

func TestStatusFor(t *testing.T) {
	mergedAt := time.Now()

	tests := []struct {
		name     string
		state    string
		mergedAt *time.Time
		expected ReviewStatus
	}{
		{name: "open state", state: "open", expected: ReviewStatusOpen},
		{name: "closed without merge", state: "closed", expected: ReviewStatusClosed},
		{name: "merge timestamp wins over state", state: "closed", mergedAt: &mergedAt, expected: ReviewStatusMerged},
		{name: "merge timestamp with open state", state: "open", mergedAt: &mergedAt, expected: ReviewStatusMerged},
		{name: "unknown state defaults to open", state: "draft", expected: ReviewStatusOpen},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, StatusFor(tt.state, tt.mergedAt))
		})
	}
}

func TestReviewValidate(t *testing.T) {
	valid := func() *Review {
		return &Review{
			UserID:       "u1",
			PRID:         "octo/repo#42",
			PRNumber:     42,
			PRURL:        "https://github.com/octo/repo/pull/42",
			Repository:   "octo/repo",
			Author:       "octocat",
			Title:        "feat: add caching layer",
			Additions:    10,
			Deletions:    5,
			FilesChanged: 2,
			LinesChanged: 15,
			Priority:     PriorityLow,
			Status:       ReviewStatusOpen,
		}
	}

	tests := []struct {
		name    string
		mutate  func(*Review)
		wantErr bool
	}{
		{name: "valid review", mutate: func(r *Review) {}},
		{name: "missing author", mutate: func(r *Review) { r.Author = "" }, wantErr: true},
		{name: "missing title", mutate: func(r *Review) { r.Title = "" }, wantErr: true},
		{name: "non-positive pr number", mutate: func(r *Review) { r.PRNumber = 0 }, wantErr: true},
		{name: "negative additions", mutate: func(r *Review) { r.Additions = -1 }, wantErr: true},
		{name: "unknown priority", mutate: func(r *Review) { r.Priority = "Critical" }, wantErr: true},
		{name: "unknown status", mutate: func(r *Review) { r.Status = "draft" }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			review := valid()
			tt.mutate(review)

			err := review.Validate()

			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
