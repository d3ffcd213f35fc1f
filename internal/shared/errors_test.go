package shared

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindOfWalksWrappedChain(t *testing.T) {
	base := AuthRequired("mail.send", errors.New("token revoked"))
	wrapped := fmt.Errorf("send email: %w", base)

	assert.Equal(t, KindAuthRequired, KindOf(wrapped))
	assert.True(t, IsAuthRequired(wrapped))
	assert.Equal(t, "authentication required", MessageOf(wrapped))
	assert.Equal(t, KindInternal, KindOf(errors.New("plain")))
}

func TestErrorString(t *testing.T) {
	err := E(KindStore, "store.claim", "conflict", errors.New("busy"))
	assert.Equal(t, "store.claim: conflict: busy", err.Error())
	assert.Equal(t, "validation_error", Validation("", "missing").Kind.String())
	assert.Equal(t, "missing", Validation("", "missing").Error())
}

func TestSQLiteConflictByMessage(t *testing.T) {
	assert.True(t, IsSQLiteConflictError(errors.New("database is locked (5) (SQLITE_BUSY)")))
	assert.True(t, IsSQLiteLockedError(errors.New("database is locked")))
	assert.False(t, IsSQLiteConflictError(errors.New("no such table")))
	assert.False(t, IsSQLiteConflictError(nil))
}
