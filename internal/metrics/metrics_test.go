package metrics

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordRunCountsByStatus(t *testing.T) {
	before := testutil.ToFloat64(RunsTotal.WithLabelValues("CMDSTAN", "fit", "error"))

	RecordRun("CMDSTAN", "fit", time.Now(), errors.New("boom"))
	RecordRun("CMDSTAN", "fit", time.Now(), nil)

	assert.Equal(t, before+1, testutil.ToFloat64(RunsTotal.WithLabelValues("CMDSTAN", "fit", "error")))
	assert.GreaterOrEqual(t, testutil.ToFloat64(RunsTotal.WithLabelValues("CMDSTAN", "fit", "ok")), 1.0)
}

func TestWriteTextfile(t *testing.T) {
	RecordFallback("CMDSTAN")

	path := filepath.Join(t.TempDir(), "prophet.prom")
	require.NoError(t, WriteTextfile(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `prophet_backend_fallbacks_total{backend="CMDSTAN"}`)
}
