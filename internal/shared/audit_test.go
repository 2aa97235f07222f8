package shared

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAuditLoggerRejectsIncompleteRecords(t *testing.T) {
	var nilLogger *AuditLogger
	assert.Error(t, nilLogger.Record(context.Background(), AuditLog{Action: "a", Entity: "e", EntityID: "1"}))

	logger := NewAuditLogger(nil)
	assert.Error(t, logger.Record(context.Background(), AuditLog{Action: "a", Entity: "e", EntityID: "1"}))
}

func TestPrincipalRoundTrip(t *testing.T) {
	ctx := ContextWithPrincipal(context.Background(), Principal{ActorID: 3, CompanyID: 9})
	p, ok := PrincipalFromContext(ctx)
	require.True(t, ok)
	assert.Equal(t, int64(9), p.CompanyID)

	_, ok = PrincipalFromContext(context.Background())
	assert.False(t, ok)
}
