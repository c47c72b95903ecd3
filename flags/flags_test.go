package flags

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v2"
)

// TestUniqueFlags asserts that no flag names or env vars collide.
func TestUniqueFlags(t *testing.T) {
	seenNames := map[string]struct{}{}
	seenEnvVars := map[string]struct{}{}
	for _, flag := range Flags {
		names := flag.Names()
		require.NotEmpty(t, names)
		name := names[0]
		_, ok := seenNames[name]
		assert.False(t, ok, "duplicate flag name %s", name)
		seenNames[name] = struct{}{}

		envFlag, ok := flag.(interface{ GetEnvVars() []string })
		require.True(t, ok, "flag %s has no env vars", name)
		for _, envVar := range envFlag.GetEnvVars() {
			_, ok := seenEnvVars[envVar]
			assert.False(t, ok, "duplicate env var %s", envVar)
			seenEnvVars[envVar] = struct{}{}
		}
	}
}

// TestEnvVarFormat asserts that all flag env vars carry the app prefix and
// follow the derived naming convention.
func TestEnvVarFormat(t *testing.T) {
	for _, flag := range Flags {
		envFlag, ok := flag.(interface{ GetEnvVars() []string })
		require.True(t, ok)
		envVars := envFlag.GetEnvVars()
		require.Len(t, envVars, 1)

		expected := EnvVarPrefix + "_" + strings.ToUpper(strings.ReplaceAll(flag.Names()[0], "-", "_"))
		assert.Equal(t, expected, envVars[0])
	}
}

func runCheckValid(t *testing.T, args ...string) error {
	t.Helper()
	var checkErr error
	app := &cli.App{
		Name:  "check",
		Flags: Flags,
		Action: func(ctx *cli.Context) error {
			checkErr = CheckValid(ctx)
			return nil
		},
	}
	require.NoError(t, app.Run(append([]string{"check"}, args...)))
	return checkErr
}

func TestCheckValid(t *testing.T) {
	assert.NoError(t, runCheckValid(t))
	assert.NoError(t, runCheckValid(t, "--test-file", "checkout.yaml", "--session-id", "s1"))

	assert.Error(t, runCheckValid(t, "--max-concurrent", "0"))
	assert.Error(t, runCheckValid(t, "--max-concurrent", "-1"))
	assert.Error(t, runCheckValid(t, "--session-id", "s1"))
}
