package cli

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/specialistvlad/observedseq/internal/app"
)

func TestParse(t *testing.T) {
	testCases := []struct {
		name     string
		args     []string
		env      map[string]string
		want     app.Config
		wantExit bool
		wantErr  string
	}{
		{
			name: "positional config path",
			args: []string{"pipeline.hcl"},
			want: app.Config{ConfigPath: "pipeline.hcl", DBPath: "observedseq.db", Mode: app.ModeServe, LogFormat: "json", LogLevel: "info"},
		},
		{
			name: "all flags",
			args: []string{"-c", "p.hcl", "-db", "x.db", "-listen", ":9000", "-mode", "VIEW", "-refresh", "2s", "-log-format", "text", "-log-level", "DEBUG"},
			want: app.Config{ConfigPath: "p.hcl", DBPath: "x.db", Listen: ":9000", Mode: app.ModeView, Refresh: 2 * time.Second, LogFormat: "text", LogLevel: "debug"},
		},
		{
			name: "environment fills unset flags",
			args: []string{"-log-level", "warn"},
			env: map[string]string{
				"OBSEQ_CONFIG":    "env.hcl",
				"OBSEQ_DB":        "env.db",
				"OBSEQ_LOG_LEVEL": "debug",
				"OBSEQ_REFRESH":   "500ms",
			},
			want: app.Config{ConfigPath: "env.hcl", DBPath: "env.db", Mode: app.ModeServe, Refresh: 500 * time.Millisecond, LogFormat: "json", LogLevel: "warn"},
		},
		{
			name: "watch mode needs no config",
			args: []string{"-mode", "watch", "-url", "http://localhost:8080"},
			want: app.Config{DBPath: "observedseq.db", Mode: app.ModeWatch, URL: "http://localhost:8080", LogFormat: "json", LogLevel: "info"},
		},
		{name: "no config prints usage", args: []string{}, wantExit: true},
		{name: "help", args: []string{"-h"}, wantExit: true},
		{name: "unknown flag", args: []string{"-nope"}, wantErr: "flag provided but not defined: -nope"},
		{name: "bad log format", args: []string{"-log-format", "xml", "p.hcl"}, wantErr: "invalid log-format"},
		{name: "bad log level", args: []string{"p.hcl"}, env: map[string]string{"OBSEQ_LOG_LEVEL": "loud"}, wantErr: "invalid log-level"},
		{name: "watch without url", args: []string{"-mode", "watch"}, wantErr: "URL is required"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			// --- Arrange ---
			for k, v := range tc.env {
				t.Setenv(k, v)
			}
			out := &bytes.Buffer{}

			// --- Act ---
			cfg, shouldExit, err := Parse(tc.args, out)

			// --- Assert ---
			if tc.wantErr != "" {
				require.Error(t, err)
				var exitErr *ExitError
				require.ErrorAs(t, err, &exitErr)
				assert.Equal(t, 2, exitErr.Code)
				assert.Contains(t, err.Error(), tc.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.wantExit, shouldExit)
			if tc.wantExit {
				assert.Contains(t, out.String(), "Usage:")
				return
			}
			assert.Equal(t, tc.want, *cfg)
		})
	}
}
