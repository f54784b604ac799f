package repository

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/pavitra93/go-multi-tenant-blog/shared/models"
	"github.com/pavitra93/go-multi-tenant-blog/shared/tenancy"
)

const schema = tenancy.Schema("tenant_6f1c2a9e-3b7d-4e51-8a0c-9d2e4f6b7c10")

func newMockRepo(t *testing.T) (*Repository, sqlmock.Sqlmock) {
	t.Helper()

	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })

	db, err := gorm.Open(postgres.New(postgres.Config{Conn: sqlDB}), &gorm.Config{
		SkipDefaultTransaction: true,
		TranslateError:         true,
		Logger:                 logger.Discard,
	})
	require.NoError(t, err)
	return New(db), mock
}

func TestRepository_RequiresSchema(t *testing.T) {
	t.Parallel()
	repo, mock := newMockRepo(t)
	ctx := context.Background()

	_, err := repo.FindUserByEmail(ctx, "", "a@b.c")
	assert.ErrorIs(t, err, tenancy.ErrTenantNotResolved)

	_, _, err = repo.ListArticles(ctx, "", ArticleFilter{Page: 1, PageSize: 10})
	assert.ErrorIs(t, err, tenancy.ErrTenantNotResolved)

	err = repo.CreateComment(ctx, "", &models.Comment{})
	assert.ErrorIs(t, err, tenancy.ErrTenantNotResolved)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRepository_QueriesAreSchemaQualified(t *testing.T) {
	t.Parallel()
	repo, mock := newMockRepo(t)
	ctx := context.Background()

	mock.ExpectQuery(`SELECT count\(\*\) FROM "` + schema.String() + `"\."users" WHERE email = \$1`).
		WithArgs("jane@example.com").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	n, err := repo.CountUsersByEmail(ctx, schema, "jane@example.com")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	id := uuid.New()
	mock.ExpectQuery(`SELECT \* FROM "` + schema.String() + `"\."users" WHERE email = \$1`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "email", "name", "password"}).
			AddRow(id.String(), "jane@example.com", "Jane", "hash"))

	user, err := repo.FindUserByEmail(ctx, schema, "jane@example.com")
	require.NoError(t, err)
	assert.Equal(t, id, user.ID)
	assert.Equal(t, "hash", user.Password)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRepository_FindUserNotFound(t *testing.T) {
	t.Parallel()
	repo, mock := newMockRepo(t)

	mock.ExpectQuery(`FROM "` + schema.String() + `"\."users"`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, err := repo.FindUserByID(context.Background(), schema, uuid.New())
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
}

func TestRepository_DeleteMissingRow(t *testing.T) {
	t.Parallel()
	repo, mock := newMockRepo(t)

	mock.ExpectExec(`DELETE FROM "` + schema.String() + `"\."articles" WHERE id = \$1`).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.DeleteArticle(context.Background(), schema, uuid.New())
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRepository_AdjustScore(t *testing.T) {
	t.Parallel()
	repo, mock := newMockRepo(t)
	commentID := uuid.New()

	mock.ExpectExec(`UPDATE "`+schema.String()+`"\."comments" SET "rating_score"=rating_score \+ \$1 WHERE id = \$2`).
		WithArgs(int64(-1), commentID.String()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.AdjustScore(context.Background(), schema, commentID, -1))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRepository_ListArticles(t *testing.T) {
	t.Parallel()
	repo, mock := newMockRepo(t)
	author := uuid.New()
	table := `"` + schema.String() + `"\.articles AS a`

	mock.ExpectQuery(`SELECT count\(\*\) FROM ` + table + ` WHERE a\.author_id = \$1`).
		WithArgs(author.String()).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(12))

	now := time.Now()
	rows := sqlmock.NewRows([]string{"id", "title", "perex", "content", "status", "author_id", "created_at", "updated_at", "comments_count", "image_url"}).
		AddRow(uuid.NewString(), "Second", "perex text", "body", "DRAFT", author.String(), now, now, 3, "/img/b.png")
	mock.ExpectQuery(`(?s)SELECT a\.\*,.*comments_count.*image_url FROM ` + table + ` WHERE a\.author_id = \$1 ORDER BY a\.created_at DESC LIMIT 10 OFFSET 10`).
		WithArgs(author.String()).
		WillReturnRows(rows)

	articles, total, err := repo.ListArticles(context.Background(), schema, ArticleFilter{AuthorID: &author, Page: 2, PageSize: 10})
	require.NoError(t, err)
	assert.Equal(t, int64(12), total)
	require.Len(t, articles, 1)
	assert.Equal(t, "Second", articles[0].Title)
	assert.Equal(t, int64(3), articles[0].CommentsCount)
	assert.Equal(t, "/img/b.png", articles[0].ImageURL)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestArticleFilter_Offset(t *testing.T) {
	assert.Equal(t, 0, ArticleFilter{Page: 0, PageSize: 10}.Offset())
	assert.Equal(t, 0, ArticleFilter{Page: 1, PageSize: 10}.Offset())
	assert.Equal(t, 20, ArticleFilter{Page: 3, PageSize: 10}.Offset())
}

func TestRepository_TransactionRollsBack(t *testing.T) {
	t.Parallel()
	repo, mock := newMockRepo(t)

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO "` + schema.String() + `"\."ratings"`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`UPDATE "` + schema.String() + `"\."comments"`).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	err := repo.Transaction(context.Background(), func(tx *Repository) error {
		commentID := uuid.New()
		if err := tx.CreateRating(context.Background(), schema, &models.Rating{UserID: uuid.New(), CommentID: commentID, IsUpvote: true}); err != nil {
			return err
		}
		return tx.AdjustScore(context.Background(), schema, commentID, 1)
	})
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}
