package repository

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pkg/errors"
	"github.com/stephenafamo/bob"
	"github.com/stephenafamo/bob/dialect/psql"
	"github.com/stephenafamo/bob/dialect/psql/dialect"
	"github.com/stephenafamo/bob/dialect/psql/dm"
	"github.com/stephenafamo/bob/dialect/psql/im"
	"github.com/stephenafamo/bob/dialect/psql/sm"
	"github.com/stephenafamo/bob/dialect/psql/um"
	"github.com/yakoovad/reviewmate/internal/db"
	"github.com/yakoovad/reviewmate/internal/model"
)

type Review struct {
	ID                 string             `db:"id"`
	UserID             string             `db:"user_id"`
	PRID               string             `db:"pr_id"`
	PRNumber           int                `db:"pr_number"`
	PRURL              string             `db:"pr_url"`
	Repository         string             `db:"repository"`
	Author             string             `db:"author"`
	Title              string             `db:"title"`
	Description        string             `db:"description"`
	Additions          int                `db:"additions"`
	Deletions          int                `db:"deletions"`
	FilesChanged       int                `db:"files_changed"`
	LinesChanged       int                `db:"lines_changed"`
	Priority           model.Priority     `db:"priority"`
	Status             model.ReviewStatus `db:"status"`
	LastStatusNotified model.ReviewStatus `db:"last_status_notified"`
	CreatedAt          time.Time          `db:"created_at"`
	UpdatedAt          time.Time          `db:"updated_at"`
}

// ListFilter narrows and orders a user's tracked reviews. Empty filter
// fields mean "no constraint".
type ListFilter struct {
	Status     string
	Priority   string
	Repository string
	SortBy     string // date | lines | files
	SortDesc   bool
}

type ReviewRepository interface {
	Create(ctx context.Context, review *Review) error
	Replace(ctx context.Context, review *Review) (*Review, error)
	Get(ctx context.Context, prID, userID string) (*Review, error)
	Delete(ctx context.Context, prID, userID string) error
	List(ctx context.Context, userID string, filter *ListFilter) ([]*Review, error)
	SetLastStatusNotified(ctx context.Context, prID, userID string, status model.ReviewStatus) error
}

type pgxReviewRepository struct {
	pool *pgxpool.Pool
}

func NewPgxReviewRepository(pool *pgxpool.Pool) ReviewRepository {
	return &pgxReviewRepository{pool: pool}
}

var reviewColumns = []string{
	"id", "user_id", "pr_id", "pr_number", "pr_url", "repository", "author",
	"title", "description", "additions", "deletions", "files_changed",
	"lines_changed", "priority", "status", "last_status_notified",
	"created_at", "updated_at",
}

func scanReview(row pgx.Row) (*Review, error) {
	r := &Review{}
	err := row.Scan(
		&r.ID,
		&r.UserID,
		&r.PRID,
		&r.PRNumber,
		&r.PRURL,
		&r.Repository,
		&r.Author,
		&r.Title,
		&r.Description,
		&r.Additions,
		&r.Deletions,
		&r.FilesChanged,
		&r.LinesChanged,
		&r.Priority,
		&r.Status,
		&r.LastStatusNotified,
		&r.CreatedAt,
		&r.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return r, nil
}

// Create inserts a new tracked review. The (pr_id, user_id) unique
// constraint is the concurrency backstop: a duplicate insert surfaces as
// ErrAlreadyExists so callers can fall back to update semantics.
func (p *pgxReviewRepository) Create(ctx context.Context, review *Review) error {
	e := db.GetPgxExecutorFromContext(ctx, p.pool)

	q := psql.Insert(
		im.Into("reviews",
			"user_id", "pr_id", "pr_number", "pr_url", "repository", "author",
			"title", "description", "additions", "deletions", "files_changed",
			"lines_changed", "priority", "status", "last_status_notified",
			"created_at", "updated_at",
		),
		im.Values(
			psql.Arg(review.UserID), psql.Arg(review.PRID), psql.Arg(review.PRNumber),
			psql.Arg(review.PRURL), psql.Arg(review.Repository), psql.Arg(review.Author),
			psql.Arg(review.Title), psql.Arg(review.Description), psql.Arg(review.Additions),
			psql.Arg(review.Deletions), psql.Arg(review.FilesChanged), psql.Arg(review.LinesChanged),
			psql.Arg(review.Priority), psql.Arg(review.Status), psql.Arg(review.LastStatusNotified),
			psql.Arg(review.CreatedAt), psql.Arg(time.Now().UTC()),
		),
		im.Returning(toAnySlice(reviewColumns)...),
	)

	sql, args, err := q.Build(ctx)
	if err != nil {
		return err
	}

	created, err := scanReview(e.QueryRow(ctx, sql, args...))
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505":
			return ErrAlreadyExists
		case "23503": // In this case user_id does not exist
			return ErrNotFound
		}
	}
	if err != nil {
		return err
	}

	*review = *created
	return nil
}

// Replace overwrites every remote-mirrored field of an existing review.
// Full replace, not a field merge: the remote is authoritative.
func (p *pgxReviewRepository) Replace(ctx context.Context, review *Review) (*Review, error) {
	e := db.GetPgxExecutorFromContext(ctx, p.pool)

	q := psql.Update(
		um.Table("reviews"),
		um.Where(
			psql.Quote("pr_id").EQ(psql.Arg(review.PRID)).
				And(psql.Quote("user_id").EQ(psql.Arg(review.UserID))),
		),
		um.Returning(toAnySlice(reviewColumns)...),
	)

	sets := []bob.Mod[*dialect.UpdateQuery]{
		um.SetCol("pr_number").ToArg(review.PRNumber),
		um.SetCol("pr_url").ToArg(review.PRURL),
		um.SetCol("repository").ToArg(review.Repository),
		um.SetCol("author").ToArg(review.Author),
		um.SetCol("title").ToArg(review.Title),
		um.SetCol("description").ToArg(review.Description),
		um.SetCol("additions").ToArg(review.Additions),
		um.SetCol("deletions").ToArg(review.Deletions),
		um.SetCol("files_changed").ToArg(review.FilesChanged),
		um.SetCol("lines_changed").ToArg(review.LinesChanged),
		um.SetCol("priority").ToArg(review.Priority),
		um.SetCol("status").ToArg(review.Status),
		um.SetCol("created_at").ToArg(review.CreatedAt),
		um.SetCol("updated_at").ToArg(time.Now().UTC()),
	}
	q.Apply(sets...)

	sql, args, err := q.Build(ctx)
	if err != nil {
		return nil, err
	}

	updated, err := scanReview(e.QueryRow(ctx, sql, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return updated, nil
}

func (p *pgxReviewRepository) Get(ctx context.Context, prID, userID string) (*Review, error) {
	e := db.GetPgxExecutorFromContext(ctx, p.pool)

	q := psql.Select(
		sm.Columns(toAnySlice(reviewColumns)...),
		sm.From("reviews"),
		sm.Where(
			psql.Quote("pr_id").EQ(psql.Arg(prID)).
				And(psql.Quote("user_id").EQ(psql.Arg(userID))),
		),
	)

	sql, args, err := q.Build(ctx)
	if err != nil {
		return nil, err
	}

	review, err := scanReview(e.QueryRow(ctx, sql, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return review, nil
}

func (p *pgxReviewRepository) Delete(ctx context.Context, prID, userID string) error {
	e := db.GetPgxExecutorFromContext(ctx, p.pool)

	q := psql.Delete(
		dm.From("reviews"),
		dm.Where(
			psql.Quote("pr_id").EQ(psql.Arg(prID)).
				And(psql.Quote("user_id").EQ(psql.Arg(userID))),
		),
	)

	sql, args, err := q.Build(ctx)
	if err != nil {
		return err
	}

	commandTag, err := e.Exec(ctx, sql, args...)
	if err != nil {
		return err
	}

	if commandTag.RowsAffected() == 0 {
		return ErrNotFound
	}

	return nil
}

func (p *pgxReviewRepository) List(ctx context.Context, userID string, filter *ListFilter) ([]*Review, error) {
	e := db.GetPgxExecutorFromContext(ctx, p.pool)

	where := psql.Quote("user_id").EQ(psql.Arg(userID))
	if filter.Status != "" {
		where = where.And(psql.Quote("status").EQ(psql.Arg(filter.Status)))
	}
	if filter.Priority != "" {
		where = where.And(psql.Quote("priority").EQ(psql.Arg(filter.Priority)))
	}
	if filter.Repository != "" {
		where = where.And(psql.Quote("repository").EQ(psql.Arg(filter.Repository)))
	}

	sortColumn := "created_at"
	switch filter.SortBy {
	case "lines":
		sortColumn = "lines_changed"
	case "files":
		sortColumn = "files_changed"
	}

	order := sm.OrderBy(psql.Quote(sortColumn)).Asc()
	if filter.SortDesc {
		order = sm.OrderBy(psql.Quote(sortColumn)).Desc()
	}

	q := psql.Select(
		sm.Columns(toAnySlice(reviewColumns)...),
		sm.From("reviews"),
		sm.Where(where),
		order,
	)

	sql, args, err := q.Build(ctx)
	if err != nil {
		return nil, err
	}

	rows, err := e.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	reviews, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (*Review, error) {
		return scanReview(row)
	})
	if err != nil {
		return nil, err
	}

	return reviews, nil
}

func (p *pgxReviewRepository) SetLastStatusNotified(ctx context.Context, prID, userID string, status model.ReviewStatus) error {
	e := db.GetPgxExecutorFromContext(ctx, p.pool)

	q := psql.Update(
		um.Table("reviews"),
		um.SetCol("last_status_notified").ToArg(status),
		um.Where(
			psql.Quote("pr_id").EQ(psql.Arg(prID)).
				And(psql.Quote("user_id").EQ(psql.Arg(userID))),
		),
	)

	sql, args, err := q.Build(ctx)
	if err != nil {
		return err
	}

	commandTag, err := e.Exec(ctx, sql, args...)
	if err != nil {
		return err
	}

	if commandTag.RowsAffected() == 0 {
		return ErrNotFound
	}

	return nil
}

func toAnySlice(cols []string) []any {
	out := make([]any, 0, len(cols))
	for _, c := range cols {
		out = append(out, c)
	}
	return out
}
