package pglink

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCommandTagRowsAffected(t *testing.T) {
	assert.EqualValues(t, 1, CommandTag("SELECT 1").RowsAffected())
	assert.EqualValues(t, 5, CommandTag("INSERT 0 5").RowsAffected())
	assert.EqualValues(t, 0, CommandTag("CREATE TABLE").RowsAffected())
	assert.EqualValues(t, 0, CommandTag("BEGIN").RowsAffected())
}

func TestResultNumRows(t *testing.T) {
	r := &Result{Rows: [][]interface{}{{int64(1)}, {int64(2)}}}
	assert.Equal(t, 2, r.NumRows())
	assert.Equal(t, 0, (&Result{}).NumRows())
}
