package projection

import (
	"context"
	"errors"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/conduit-lang/revstore/internal/orm/schema"
	"github.com/conduit-lang/revstore/internal/orm/transaction"
)

var runID = uuid.MustParse("6f1c2a9e-3b4d-4e5f-8a7b-9c0d1e2f3a4b")

func newLibrary(t *testing.T) *schema.Registry {
	t.Helper()

	registry := schema.NewRegistry()
	author := registry.MustDefine("Author")
	author.String("name", 100, false)
	tag := registry.MustDefine("Tag")
	tag.String("label", 50, false)

	book := registry.MustDefine("Book")
	book.String("title", 200, false)
	book.ForeignKey("authorId", author, schema.ForeignKeyOptions{})
	book.ForeignKeyArray("tagIds", tag)
	return registry
}

func newRebuilder(t *testing.T, opts ...Option) (*Rebuilder, sqlmock.Sqlmock) {
	t.Helper()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	opts = append([]Option{WithRunID(func() uuid.UUID { return runID })}, opts...)
	return NewRebuilder(newLibrary(t), transaction.NewManager(db, nil), opts...), mock
}

func TestRebuild(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	rebuilder, mock := newRebuilder(t, WithLogger(zap.New(core)))

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("SET FOREIGN_KEY_CHECKS = 0;")).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM `Book_tagIds`;")).WillReturnResult(sqlmock.NewResult(0, 7))
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM `Book`;")).WillReturnResult(sqlmock.NewResult(0, 3))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO `Book` (`id`, `editCommitId`, `editDate`, `title`, `authorId`)")).
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO `Book_tagIds` (ownerId, foreignId)")).WillReturnResult(sqlmock.NewResult(0, 5))
	mock.ExpectExec(regexp.QuoteMeta("SET FOREIGN_KEY_CHECKS = 1;")).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	report, err := rebuilder.Rebuild(context.Background(), "Book")
	require.NoError(t, err)
	assert.Equal(t, runID, report.RunID)
	require.Len(t, report.Models, 1)
	assert.Equal(t, "Book", report.Models[0].Model)
	assert.Equal(t, 4, report.Models[0].Statements)
	assert.Equal(t, int64(2), report.Models[0].Rows)

	assert.NoError(t, mock.ExpectationsWereMet())

	for _, entry := range logs.All() {
		assert.Equal(t, runID.String(), entry.ContextMap()["run_id"], entry.Message)
	}
	assert.Equal(t, 1, logs.FilterMessage("projection rebuilt").Len())
}

func TestRebuild_AllModels(t *testing.T) {
	rebuilder, mock := newRebuilder(t)

	mock.ExpectBegin()
	mock.ExpectExec("FOREIGN_KEY_CHECKS = 0").WillReturnResult(sqlmock.NewResult(0, 0))
	for _, table := range []string{"Author", "Tag"} {
		mock.ExpectExec(regexp.QuoteMeta("DELETE FROM `" + table + "`;")).WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectExec(regexp.QuoteMeta("INSERT INTO `" + table + "` (")).WillReturnResult(sqlmock.NewResult(0, 1))
	}
	mock.ExpectExec("DELETE FROM `Book_tagIds`").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("DELETE FROM `Book`").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("INSERT INTO `Book` ").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("INSERT INTO `Book_tagIds`").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("FOREIGN_KEY_CHECKS = 1").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	report, err := rebuilder.Rebuild(context.Background())
	require.NoError(t, err)

	names := make([]string, 0, len(report.Models))
	for _, m := range report.Models {
		names = append(names, m.Model)
	}
	assert.Equal(t, []string{"Author", "Tag", "Book"}, names)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRebuild_FailureRestoresChecks(t *testing.T) {
	rebuilder, mock := newRebuilder(t)

	mock.ExpectBegin()
	mock.ExpectExec("FOREIGN_KEY_CHECKS = 0").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("DELETE FROM `Author`").WillReturnError(errors.New("lock wait timeout"))
	mock.ExpectExec("FOREIGN_KEY_CHECKS = 1").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	report, err := rebuilder.Rebuild(context.Background(), "Author")
	require.Error(t, err)
	assert.Nil(t, report)
	assert.Contains(t, err.Error(), "rebuild Author")
	assert.Contains(t, err.Error(), "lock wait timeout")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRebuild_UnknownModel(t *testing.T) {
	rebuilder, mock := newRebuilder(t)

	_, err := rebuilder.Rebuild(context.Background(), "Missing")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown model "Missing"`)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestVerify(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	rebuilder, mock := newRebuilder(t, WithLogger(zap.New(core)), WithConcurrency(2))
	mock.MatchExpectationsInOrder(false)

	count := func(n int64) *sqlmock.Rows {
		return sqlmock.NewRows([]string{"count"}).AddRow(n)
	}
	mock.ExpectQuery("FROM `Author`$").WillReturnRows(count(2))
	mock.ExpectQuery(regexp.QuoteMeta("FROM `AuthorRevision` r")).WillReturnRows(count(1))
	mock.ExpectQuery("FROM `Book`$").WillReturnRows(count(3))
	mock.ExpectQuery(regexp.QuoteMeta("FROM `BookRevision` r")).WillReturnRows(count(3))

	counts, err := rebuilder.Verify(context.Background(), "Book", "Author")
	require.NoError(t, err)
	assert.Equal(t, []ModelCount{
		{Model: "Book", Fast: 3, Live: 3},
		{Model: "Author", Fast: 2, Live: 1},
	}, counts)
	assert.False(t, counts[0].Drifted())
	assert.True(t, counts[1].Drifted())

	drift := logs.FilterMessage("projection drift").All()
	require.Len(t, drift, 1)
	assert.Equal(t, "Author", drift[0].ContextMap()["model"])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestVerify_QueryError(t *testing.T) {
	rebuilder, mock := newRebuilder(t)

	mock.ExpectQuery("FROM `Tag`$").WillReturnError(errors.New("no such table"))

	_, err := rebuilder.Verify(context.Background(), "Tag")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "count Tag")
}
