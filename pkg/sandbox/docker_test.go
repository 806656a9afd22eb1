package sandbox

import (
	"strings"
	"testing"

	"github.com/dop251/goja"
	"github.com/stretchr/testify/require"
)

func TestDecodeHarnessReportUsesNonceLine(t *testing.T) {
	nonce := "@@run-1@@"
	stdout := strings.Join([]string{
		"noise from user code",
		"@@forged@@{\"logs\":[],\"ok\":true,\"error\":\"\"}",
		nonce + `{"logs":[{"level":"log","line":"hi"},{"level":"error","line":"bad"}],"ok":false,"error":"boom","truncated":true}`,
		"",
	}, "\n")

	report, found := decodeHarnessReport(stdout, nonce)
	require.True(t, found)
	require.False(t, report.OK)
	require.Equal(t, "boom", report.Error)
	require.True(t, report.Truncated)
	require.Len(t, report.Logs, 2)
	require.Equal(t, "error", report.Logs[1].Level)
	require.Equal(t, "bad", report.Logs[1].Line)
}

func TestDecodeHarnessReportMissing(t *testing.T) {
	_, found := decodeHarnessReport("Segmentation fault\n", "@@nonce@@")
	require.False(t, found)

	_, found = decodeHarnessReport("@@nonce@@{not json", "@@nonce@@")
	require.False(t, found)
}

func TestNodeEntrypointEmbedsHarness(t *testing.T) {
	require.True(t, strings.HasPrefix(nodeEntrypoint, "(function () {\n  const harness = (function (source, emit)"))
	require.Contains(t, nodeEntrypoint, "process.exit(0)")
	require.Contains(t, nodeEntrypoint, "PLAYGROUND_NONCE")
}

// runEntrypoint evaluates the node entrypoint in goja against a minimal
// process object and returns what it wrote to stdout.
func runEntrypoint(t *testing.T, source, nonce string) (string, bool) {
	t.Helper()
	vm := goja.New()

	var written strings.Builder
	exited := false

	env := vm.NewObject()
	require.NoError(t, env.Set("PLAYGROUND_SOURCE", source))
	require.NoError(t, env.Set("PLAYGROUND_NONCE", nonce))

	stdout := vm.NewObject()
	require.NoError(t, stdout.Set("write", func(call goja.FunctionCall) goja.Value {
		written.WriteString(call.Argument(0).String())
		if done, ok := goja.AssertFunction(call.Argument(1)); ok {
			_, _ = done(goja.Undefined())
		}
		return goja.Undefined()
	}))

	process := vm.NewObject()
	require.NoError(t, process.Set("env", env))
	require.NoError(t, process.Set("stdout", stdout))
	require.NoError(t, process.Set("exit", func(int) { exited = true }))
	require.NoError(t, vm.Set("process", process))

	_, err := vm.RunString(nodeEntrypoint)
	require.NoError(t, err)
	return written.String(), exited
}

func TestNodeEntrypointHidesNonceFromLearnerCode(t *testing.T) {
	nonce := "@@run-7@@"
	source := `
		console.log(typeof nonce, typeof logs, typeof encode);
		JSON.stringify = function () { return '{"logs":[],"ok":true,"error":""}'; };
		throw new Error("nope");
	`

	stdout, exited := runEntrypoint(t, source, nonce)
	require.True(t, exited)

	report, found := decodeHarnessReport(stdout, nonce)
	require.True(t, found)
	require.False(t, report.OK)
	require.Equal(t, "nope", report.Error)
	require.Len(t, report.Logs, 1)
	require.Equal(t, "undefined undefined undefined", report.Logs[0].Line)
}
