package models

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFailureErrorMatchesKind(t *testing.T) {
	netErr := NetworkFailure("analyze", errors.New("dial tcp: connection refused"))
	svcErr := ServiceFailure("chat", errors.New("status 500"))

	assert.ErrorIs(t, netErr, ErrNetworkFailure)
	assert.NotErrorIs(t, netErr, ErrServiceFailure)
	assert.ErrorIs(t, svcErr, ErrServiceFailure)
	assert.NotErrorIs(t, svcErr, ErrNetworkFailure)

	wrapped := fmt.Errorf("failed to generate report: %w", netErr)
	assert.ErrorIs(t, wrapped, ErrNetworkFailure)

	var fe *FailureError
	assert.True(t, errors.As(wrapped, &fe))
	assert.Equal(t, "analyze", fe.Op)
}

func TestPhaseBusy(t *testing.T) {
	assert.True(t, PhaseAwaitingReport.Busy())
	assert.True(t, PhaseAwaitingReply.Busy())
	assert.False(t, PhaseReady.Busy())
	assert.False(t, PhaseIdle.Busy())
}
