package db

import (
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStartTime(t *testing.T) {
	got, err := startTime(sql.NullString{String: "7:05:00", Valid: true})
	require.NoError(t, err)
	assert.Equal(t, "07:05:00", got)

	got, err = startTime(sql.NullString{String: "25:01:02", Valid: true})
	require.NoError(t, err)
	assert.Equal(t, "25:01:02", got)

	_, err = startTime(sql.NullString{})
	assert.ErrorIs(t, err, sql.ErrNoRows)

	_, err = startTime(sql.NullString{String: "garbage", Valid: true})
	assert.Error(t, err)
	assert.NotErrorIs(t, err, sql.ErrNoRows)
}
