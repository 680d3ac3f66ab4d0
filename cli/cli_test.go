package cli

import (
	"bytes"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/warp/gymdesk/api"
)

func run(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	root := NewRootCmd("test")
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetIn(strings.NewReader(stdin))
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

// useTempDatabase points configuration at a fresh SQLite file.
func useTempDatabase(t *testing.T) {
	t.Helper()
	for _, k := range []string{"GYMDESK_ADDR", "DATABASE_DRIVER", "GYMDESK_TIMEZONE", "GYMDESK_ADMIN_KEY_HASH",
		"GYMDESK_COST_RATIO", "GYMDESK_TAX_RATE", "GYMDESK_EXPIRING_SOON_DAYS", "OTEL_EXPORTER_OTLP_ENDPOINT"} {
		t.Setenv(k, "")
	}
	t.Setenv("DATABASE_URL", filepath.Join(t.TempDir(), "gymdesk.db"))
	t.Setenv("LOG_LEVEL", "error")
}

func TestVersion(t *testing.T) {
	out, err := run(t, "", "version")
	require.NoError(t, err)
	assert.Equal(t, "gymdesk test\n", out)
}

func TestPlans(t *testing.T) {
	out, err := run(t, "", "plans")
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 7)
	assert.Contains(t, lines[1], "DAILY")
	assert.Contains(t, lines[1], "5000.00")
	assert.Contains(t, lines[6], "CUSTOM")
}

func TestHashKey(t *testing.T) {
	out, err := run(t, "front-desk-admin-key\n", "hash-key")
	require.NoError(t, err)
	hash := strings.TrimSpace(out)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(hash), []byte("front-desk-admin-key")))

	_, err = run(t, "", "hash-key", "short")
	assert.Error(t, err)
}

func TestSeedThenReport(t *testing.T) {
	useTempDatabase(t)

	// GIVEN demo data in the database file
	out, err := run(t, "", "seed", "front-desk")
	require.NoError(t, err)
	assert.Contains(t, out, "loaded scenario front-desk")

	// WHEN the quarterly report is printed as JSON
	out, err = run(t, "", "report", "--period", "quarter", "-o", "json")
	require.NoError(t, err)

	// THEN it carries the seeded sales
	var report api.ReportDTO
	require.NoError(t, json.Unmarshal([]byte(out), &report))
	assert.Equal(t, 10, report.SaleCount)
	assert.Len(t, report.ByPlan, 6)
	assert.NotEqual(t, "0.00", report.Revenue.Total)

	// AND the text rendering shows the same total
	out, err = run(t, "", "report", "--period", "quarter")
	require.NoError(t, err)
	assert.Contains(t, out, report.Revenue.Total)
}

func TestReport_BadPeriod(t *testing.T) {
	useTempDatabase(t)

	_, err := run(t, "", "report", "--period", "decade")
	assert.Error(t, err)

	_, err = run(t, "", "report", "--start", "2024-02-01", "--end", "2024-01-01")
	assert.Error(t, err)
}

func TestSeed_Unknown(t *testing.T) {
	useTempDatabase(t)

	_, err := run(t, "", "seed", "olympics")
	assert.Error(t, err)
}
