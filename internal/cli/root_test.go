package cli

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCommandsRegistered(t *testing.T) {
	names := map[string]bool{}
	for _, cmd := range GetRootCmd().Commands() {
		names[cmd.Name()] = true
	}
	for _, want := range []string{"start", "stop", "status", "version"} {
		assert.True(t, names[want], "missing command %q", want)
	}
}

func TestVersionCommand(t *testing.T) {
	root := GetRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs([]string{"version"})
	require.NoError(t, root.Execute())
	assert.NotEmpty(t, GetVersion())
}

func TestFormatDuration(t *testing.T) {
	cases := []struct {
		in   time.Duration
		want string
	}{
		{25 * time.Second, "25s"},
		{3*time.Minute + 4*time.Second, "3m 4s"},
		{2*time.Hour + 5*time.Minute + 6*time.Second, "2h 5m 6s"},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, formatDuration(tc.in))
	}
}
