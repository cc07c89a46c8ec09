package store

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCountProjects(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectQuery(`FROM projects WHERE user_id = \$1 AND deleted_at IS NULL`).WithArgs("u1").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(3))

	n, err := s.CountProjects(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}

func TestCountQueriesSince(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectQuery(`FROM feedback_queries WHERE user_id = \$1 AND created_at >= \$2`).WithArgs("u1", fixedNow).
		WillReturnError(errors.New("timeout"))

	_, err := s.CountQueriesSince(context.Background(), "u1", fixedNow)
	assert.Error(t, err)
}
