package tracing

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
)

func TestInitExportsSpans(t *testing.T) {
	var buf bytes.Buffer
	shutdown, err := Init(&buf)
	require.NoError(t, err)

	_, span := Start(context.Background(), "cmdstan.optimize", attribute.String("backend", "CMDSTAN"))
	End(span, errors.New("exit status 70"))

	require.NoError(t, shutdown(context.Background()))
	assert.Contains(t, buf.String(), "cmdstan.optimize")
	assert.Contains(t, buf.String(), "exit status 70")
}
