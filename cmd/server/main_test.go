package main

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	t.Cleanup(func() {
		cfgFile = ""
		migrateStatus = false
		userInput = newUser{}
	})
	err := rootCmd.Execute()
	return out.String(), err
}

func setupEnv(t *testing.T) {
	t.Helper()
	dir := t.TempDir()
	t.Chdir(dir)
	t.Setenv("APPROVAL_DATABASE_PATH", filepath.Join(dir, "cli.db"))
	t.Setenv("APPROVAL_LOGGER_OUTPUT_PATH", filepath.Join(dir, "cli.log"))
}

func TestMigrateCommand(t *testing.T) {
	setupEnv(t)

	out, err := execute(t, "migrate")
	require.NoError(t, err)
	assert.Contains(t, out, "applied 1 migration(s)")

	out, err = execute(t, "migrate")
	require.NoError(t, err)
	assert.Contains(t, out, "applied 0 migration(s)")

	out, err = execute(t, "migrate", "--status")
	require.NoError(t, err)
	assert.Contains(t, out, "applied versions: [1]")
}

func TestUserCreateCommand(t *testing.T) {
	setupEnv(t)

	out, err := execute(t, "user", "create", "--name", "Alex", "--role", "admin", "--email", "alex@example.com")
	require.NoError(t, err)
	assert.Contains(t, out, "created user 1 (Alex, ADMIN)")

	out, err = execute(t, "user", "create", "--name", "Avery", "--role", "approver")
	require.NoError(t, err)
	assert.Contains(t, out, "created user 2 (Avery, APPROVER)")
}

func TestUserCreateCommand_Invalid(t *testing.T) {
	setupEnv(t)

	tests := []struct {
		name string
		args []string
	}{
		{"missing name", []string{"user", "create", "--role", "USER"}},
		{"unknown role", []string{"user", "create", "--name", "Sam", "--role", "OWNER"}},
		{"bad email", []string{"user", "create", "--name", "Sam", "--role", "USER", "--email", "not-an-email"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := execute(t, tt.args...)
			assert.Error(t, err)
		})
	}
}
