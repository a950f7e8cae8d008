package model

import (
	"time"

	"github.com/go-playground/validator/v10"
)

type ReviewStatus string

const (
	ReviewStatusOpen   ReviewStatus = "open"
	ReviewStatusClosed ReviewStatus = "closed"
	ReviewStatusMerged ReviewStatus = "merged"
)

type Priority string

const (
	PriorityLow    Priority = "Low"
	PriorityMedium Priority = "Medium"
	PriorityHigh   Priority = "High"
)

// Priority tier thresholds, inclusive: a PR sitting exactly on a boundary
// takes the higher tier.
const (
	priorityHighLines   = 200
	priorityMediumLines = 50
)

// Review is a tracked pull request owned by a single user. Everything except
// UserID and LastStatusNotified mirrors the remote PR and is overwritten
// wholesale on every refetch.
type Review struct {
	UserID             string       `json:"-" validate:"required"`
	PRID               string       `json:"prId" validate:"required"`
	PRNumber           int          `json:"prNumber" validate:"gt=0"`
	PRURL              string       `json:"prUrl" validate:"required"`
	Repository         string       `json:"repository" validate:"required"`
	Author             string       `json:"author" validate:"required"`
	Title              string       `json:"title" validate:"required"`
	Description        string       `json:"description"`
	Additions          int          `json:"additions" validate:"gte=0"`
	Deletions          int          `json:"deletions" validate:"gte=0"`
	FilesChanged       int          `json:"filesChanged" validate:"gte=0"`
	LinesChanged       int          `json:"linesChanged" validate:"gte=0"`
	Priority           Priority     `json:"priority" validate:"oneof=Low Medium High"`
	Status             ReviewStatus `json:"status" validate:"oneof=open closed merged"`
	LastStatusNotified ReviewStatus `json:"lastStatusNotified,omitempty"`
	CreatedAt          time.Time    `json:"createdAt"`
	UpdatedAt          time.Time    `json:"updatedAt"`
}

// PriorityFor classifies a change size into a priority tier.
func PriorityFor(linesChanged int) Priority {
	switch {
	case linesChanged >= priorityHighLines:
		return PriorityHigh
	case linesChanged >= priorityMediumLines:
		return PriorityMedium
	default:
		return PriorityLow
	}
}

// StatusFor derives the review status from the remote merge/close state.
// A merge timestamp wins over the plain state string.
func StatusFor(state string, mergedAt *time.Time) ReviewStatus {
	switch {
	case mergedAt != nil:
		return ReviewStatusMerged
	case state == "closed":
		return ReviewStatusClosed
	default:
		return ReviewStatusOpen
	}
}

var validate = validator.New()

// Validate checks field constraints before the record hits the store.
// The constraints live here, not in the storage layer, so they hold for any
// storage technology.
func (r *Review) Validate() error {
	return validate.Struct(r)
}
