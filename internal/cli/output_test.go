package cli

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrinter_JSONResult(t *testing.T) {
	buf := &bytes.Buffer{}
	p := &Printer{Format: "json", Out: buf}

	require.NoError(t, p.Result(map[string]int{"tenants": 3}))

	var resp Response
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, map[string]any{"tenants": float64(3)}, resp.Data)
	assert.Nil(t, resp.Error)
}

func TestPrinter_JSONFailure(t *testing.T) {
	out, diag := &bytes.Buffer{}, &bytes.Buffer{}
	p := &Printer{Format: "json", Out: out, Diag: diag}

	require.NoError(t, p.Failure(runtimeError(KindStore, "failed to open database", errors.New("disk full"))))

	var resp Response
	require.NoError(t, json.Unmarshal(out.Bytes(), &resp))
	assert.Equal(t, "error", resp.Status)
	require.NotNil(t, resp.Error)
	assert.Equal(t, KindStore, resp.Error.Code)
	assert.Equal(t, "failed to open database", resp.Error.Message)
	assert.Equal(t, "disk full", resp.Error.Details)
	assert.Empty(t, diag.String())
}

func TestPrinter_TextResult(t *testing.T) {
	buf := &bytes.Buffer{}
	p := &Printer{Format: "text", Out: buf}

	require.NoError(t, p.Result("schema applied"))
	assert.Equal(t, "schema applied\n", buf.String())
}

type textResult struct{ n int }

func (r textResult) Text() string { return fmt.Sprintf("rendered %d\n", r.n) }

func TestPrinter_TextRenderer(t *testing.T) {
	buf := &bytes.Buffer{}
	p := &Printer{Format: "text", Out: buf}

	require.NoError(t, p.Result(textResult{n: 7}))
	assert.Equal(t, "rendered 7\n", buf.String())
}

func TestPrinter_TextFailure(t *testing.T) {
	out, diag := &bytes.Buffer{}, &bytes.Buffer{}
	p := &Printer{Format: "text", Out: out, Diag: diag}

	require.NoError(t, p.Failure(commandError(KindFixtures, "failed to load fixtures", errors.New("yaml: line 4"))))
	assert.Empty(t, out.String())
	assert.Equal(t, "error [FIXTURES]: failed to load fixtures: yaml: line 4\n", diag.String())
}

func TestPrinter_PlainErrorIsUsage(t *testing.T) {
	diag := &bytes.Buffer{}
	p := &Printer{Format: "text", Diag: diag}

	require.NoError(t, p.Failure(errors.New(`required flag(s) "tenant" not set`)))
	assert.Equal(t, "error [USAGE]: required flag(s) \"tenant\" not set\n", diag.String())
}

func TestPrinter_Debugf(t *testing.T) {
	tests := []struct {
		name    string
		verbose bool
		want    string
	}{
		{"verbose_enabled", true, "Loaded 3 tenants from fixtures.yaml\n"},
		{"verbose_disabled", false, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, diag := &bytes.Buffer{}, &bytes.Buffer{}
			p := &Printer{Format: "json", Out: out, Diag: diag, Verbose: tt.verbose}

			p.Debugf("Loaded %d tenants from %s", 3, "fixtures.yaml")
			assert.Equal(t, tt.want, diag.String())
			assert.Empty(t, out.String())
		})
	}
}

func TestPrinter_DebugfFallsBackToOut(t *testing.T) {
	out := &bytes.Buffer{}
	p := &Printer{Out: out, Verbose: true}

	p.Debugf("opening %s", "laundrysync.db")
	assert.Equal(t, "opening laundrysync.db\n", out.String())
}

func TestExitCode(t *testing.T) {
	assert.Equal(t, ExitSuccess, ExitCode(nil))
	assert.Equal(t, ExitCommandError, ExitCode(commandError(KindUsage, "bad flag", nil)))
	assert.Equal(t, ExitFailure, ExitCode(errors.New("plain")))

	wrapped := runtimeError(KindStore, "failed to open database", errors.New("disk full"))
	assert.Equal(t, "failed to open database: disk full", wrapped.Error())
	assert.EqualError(t, errors.Unwrap(wrapped), "disk full")
	assert.Equal(t, ExitFailure, ExitCode(fmt.Errorf("serve: %w", wrapped)))
}

func TestExecute(t *testing.T) {
	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })
	db := filepath.Join(t.TempDir(), "sync.db")

	t.Run("success", func(t *testing.T) {
		out, errOut := &bytes.Buffer{}, &bytes.Buffer{}
		code := Execute([]string{"--db", db, "migrate"}, out, errOut)
		assert.Equal(t, ExitSuccess, code)
		assert.Equal(t, "schema at version 1 (sqlite)\n", out.String())
		assert.Empty(t, errOut.String())
	})

	t.Run("usage_text", func(t *testing.T) {
		out, errOut := &bytes.Buffer{}, &bytes.Buffer{}
		code := Execute([]string{"--db", db, "feed"}, out, errOut)
		assert.Equal(t, ExitCommandError, code)
		assert.Contains(t, errOut.String(), "error [USAGE]: ")
		assert.Contains(t, errOut.String(), `"tenant"`)
	})

	t.Run("unknown_command", func(t *testing.T) {
		code := Execute([]string{"launder"}, &bytes.Buffer{}, &bytes.Buffer{})
		assert.Equal(t, ExitCommandError, code)
	})

	t.Run("store_failure_json", func(t *testing.T) {
		out, errOut := &bytes.Buffer{}, &bytes.Buffer{}
		missing := filepath.Join(t.TempDir(), "no", "such", "dir", "sync.db")
		code := Execute([]string{"--db", missing, "--format", "json", "migrate"}, out, errOut)
		assert.Equal(t, ExitFailure, code)

		var resp Response
		require.NoError(t, json.Unmarshal(out.Bytes(), &resp), out.String())
		assert.Equal(t, "error", resp.Status)
		require.NotNil(t, resp.Error)
		assert.Equal(t, KindStore, resp.Error.Code)
		assert.Equal(t, "failed to open database", resp.Error.Message)
	})

	t.Run("invalid_format_falls_back_to_text", func(t *testing.T) {
		out, errOut := &bytes.Buffer{}, &bytes.Buffer{}
		code := Execute([]string{"--format", "xml", "migrate"}, out, errOut)
		assert.Equal(t, ExitCommandError, code)
		assert.Empty(t, out.String())
		assert.Contains(t, errOut.String(), `error [USAGE]: invalid format "xml"`)
	})
}
