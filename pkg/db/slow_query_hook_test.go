package db

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestQueryOperation(t *testing.T) {
	assert.Equal(t, "SELECT", queryOperation("SELECT 5"))
	assert.Equal(t, "INSERT", queryOperation("INSERT 0 1"))
	assert.Equal(t, "UNKNOWN", queryOperation(""))
}

func TestTableFromSQL(t *testing.T) {
	assert.Equal(t, "postings", tableFromSQL("SELECT id FROM postings WHERE id = $1"))
	assert.Equal(t, "change_events", tableFromSQL("INSERT INTO change_events (table_name) VALUES ($1)"))
	assert.Equal(t, "milestones", tableFromSQL("UPDATE milestones SET completed = $1"))
	assert.Equal(t, "other", tableFromSQL("BEGIN"))
}
