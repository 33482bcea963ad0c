package cmd

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fraudguard/inference"
)

func writeConfig(t *testing.T, modelPath string) string {
	t.Helper()
	abs, err := filepath.Abs(modelPath)
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "config.yaml")
	body := fmt.Sprintf(`model:
  kind: logistic_regression
  path: %q
database:
  path: ""
log:
  level: error
`, abs)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

// run executes the root command. Cobra keeps flag values between runs, so
// callers pass every flag they rely on.
func run(args ...string) (string, error) {
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

func TestVersionCommand(t *testing.T) {
	out, err := run("version")
	require.NoError(t, err)
	assert.Equal(t, "fraudguard (devel)\n", out)
}

func TestPredictCommand(t *testing.T) {
	cfg := writeConfig(t, "../models/fraud_detection_model.json")

	out, err := run("predict", "--config", cfg, "--preset", "fraud", "--json=false")
	require.NoError(t, err)
	assert.Contains(t, out, "FRAUDULENT TRANSACTION DETECTED!")
	assert.Contains(t, out, "Not Fraud: ")
	assert.Contains(t, out, "Not Fraud |")
	assert.Contains(t, out, "Fraud     |")

	out, err = run("predict", "--config", cfg, "--preset", "normal", "--amount", "50", "--json=true")
	require.NoError(t, err)
	var payload struct {
		Result inference.PredictionResult `json:"result"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &payload), out)
	assert.Equal(t, inference.Legitimate, payload.Result.Verdict)
	assert.Equal(t, 50.0, payload.Result.Features.Amount())
}

func TestPredictFailures(t *testing.T) {
	missing := writeConfig(t, filepath.Join(t.TempDir(), "nope.json"))
	_, err := run("predict", "--config", missing, "--preset", "clear", "--json=false")
	require.Error(t, err)
	assert.ErrorIs(t, err, inference.ErrModelUnavailable)

	cfg := writeConfig(t, "../models/fraud_detection_model.json")
	_, err = run("predict", "--config", cfg, "--preset", "bogus", "--json=false")
	assert.ErrorContains(t, err, "unknown preset")
}
