package helpers

import (
	"io/ioutil"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testFlags struct {
	database string
	timeout  time.Duration
	attempts int
	regions  []string
}

func newTestFlagSet(f *testFlags) *pflag.FlagSet {
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	fs.StringVar(&f.database, "database", "rds-performance-insights-db", "")
	fs.DurationVar(&f.timeout, "timeout", 5*time.Minute, "")
	fs.IntVar(&f.attempts, "max-attempts", 3, "")
	fs.StringSliceVar(&f.regions, "regions", nil, "")
	return fs
}

func TestSetFlagsFromEnv(t *testing.T) {
	var f testFlags
	fs := newTestFlagSet(&f)
	require.NoError(t, fs.Parse([]string{"--database", "cli-db"}))

	os.Setenv("TENANT_COST_TEST_DATABASE", "env-db")
	os.Setenv("TENANT_COST_TEST_MAX_ATTEMPTS", "5")
	defer os.Unsetenv("TENANT_COST_TEST_DATABASE")
	defer os.Unsetenv("TENANT_COST_TEST_MAX_ATTEMPTS")

	require.NoError(t, SetFlagsFromEnv(fs, "TENANT_COST_TEST"))
	assert.Equal(t, "cli-db", f.database, "command line flags take precedence")
	assert.Equal(t, 5, f.attempts)

	os.Setenv("TENANT_COST_TEST_TIMEOUT", "soon")
	defer os.Unsetenv("TENANT_COST_TEST_TIMEOUT")
	assert.Error(t, SetFlagsFromEnv(fs, "TENANT_COST_TEST"))
}

func TestSetFlagsFromConfigFile(t *testing.T) {
	dir, err := ioutil.TempDir("", "tenant-cost")
	require.NoError(t, err)
	defer os.RemoveAll(dir)

	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, ioutil.WriteFile(path, []byte(`
database: file-db
timeout: 10m
max-attempts: 7
regions:
- us-east-1
- eu-west-1
`), 0644))

	var f testFlags
	fs := newTestFlagSet(&f)
	require.NoError(t, fs.Parse([]string{"--max-attempts", "2"}))
	require.NoError(t, SetFlagsFromConfigFile(fs, path))

	assert.Equal(t, "file-db", f.database)
	assert.Equal(t, 10*time.Minute, f.timeout)
	assert.Equal(t, 2, f.attempts, "command line flags take precedence")
	assert.Equal(t, []string{"us-east-1", "eu-west-1"}, f.regions)

	err = SetFlagsFromConfigFile(fs, filepath.Join(dir, "missing.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unable to read config file")
}

func TestSetupLogger(t *testing.T) {
	logger, err := SetupLogger("warn", true, false, nil)
	require.NoError(t, err)
	assert.NotNil(t, logger)

	_, err = SetupLogger("loud", true, false, nil)
	assert.EqualError(t, err, "invalid log level: loud")
}
