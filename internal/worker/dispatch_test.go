package worker

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/chatlab/chatlab-core/internal/coreerr"
)

func TestToCoreErrMapsContextCancellation(t *testing.T) {
	ce := toCoreErr(context.Canceled)
	assert.Equal(t, coreerr.CodeCancelled, ce.Code)

	ce = toCoreErr(context.DeadlineExceeded)
	assert.Equal(t, coreerr.CodeCancelled, ce.Code)
}

func TestToCoreErrPreservesTypedError(t *testing.T) {
	orig := coreerr.New(coreerr.CodeNotFound, "no such session")
	ce := toCoreErr(orig)
	assert.Same(t, orig, ce)
}

func TestToCoreErrFallsBackToIO(t *testing.T) {
	ce := toCoreErr(assert.AnError)
	assert.Equal(t, coreerr.CodeIO, ce.Code)
}
