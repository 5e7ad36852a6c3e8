package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(t *testing.T, extra string) string {
	t.Helper()
	dir := t.TempDir()
	body := `
network:
  dump_path: "` + filepath.Join(dir, "dump.json") + `"
storage:
  path: "` + filepath.Join(dir, "run.db") + `"
  addresses_file: "` + filepath.Join(dir, "addresses.json") + `"
logging:
  level: error
  file: ""
` + extra
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))
	return path
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestVersionCmd(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.Equal(t, "artist-ipo version "+version+"\n", out)

	out, err = execute(t, "version", "--json")
	require.NoError(t, err)
	assert.JSONEq(t, `{"version":"`+version+`"}`, out)
}

func TestRunCmd(t *testing.T) {
	cfg := testConfig(t, "")

	t.Run("console", func(t *testing.T) {
		out, err := execute(t, "run", "--strict", "--config", cfg)
		require.NoError(t, err)
		assert.Contains(t, out, "IPO PROCEEDS: $82,500.00 over 11 purchases")
		assert.Contains(t, out, "FREE-FLOAT MARKET CAP ESTIMATE:")
		assert.Contains(t, out, "MARKET ipo")
		assert.Contains(t, out, "METRICS:")
		assert.NotContains(t, out, "FAIL")
	})

	t.Run("json", func(t *testing.T) {
		out, err := execute(t, "run", "--json", "--config", cfg)
		require.NoError(t, err)

		var decoded struct {
			RunID   string `json:"run_id"`
			Network string `json:"network"`
			Checks  []struct {
				Name string `json:"name"`
				Pass bool   `json:"pass"`
			} `json:"checks"`
			Metrics struct {
				Purchases   uint64 `json:"purchases"`
				ImpactSteps uint64 `json:"impact_steps"`
			} `json:"metrics"`
		}
		require.NoError(t, json.Unmarshal([]byte(out), &decoded))
		assert.NotEmpty(t, decoded.RunID)
		assert.Equal(t, "devnet", decoded.Network)
		assert.EqualValues(t, 11, decoded.Metrics.Purchases)
		assert.EqualValues(t, 10, decoded.Metrics.ImpactSteps)
		for _, c := range decoded.Checks {
			assert.True(t, c.Pass, c.Name)
		}
	})

	t.Run("addresses", func(t *testing.T) {
		out, err := execute(t, "addresses", "--config", cfg)
		require.NoError(t, err)
		lines := strings.Split(strings.TrimSpace(out), "\n")
		assert.Len(t, lines, 9)
		assert.Contains(t, out, "ipo")
		assert.Contains(t, out, "vestingVault")
	})
}

func TestRunCmd_FailureIsVerbatim(t *testing.T) {
	cfg := testConfig(t, `
sale:
  buyers: 5
`)
	out, err := execute(t, "run", "--config", cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "sale [iteration 6]")
	assert.Contains(t, err.Error(), "purchase rejected")
	assert.Contains(t, out, "ERROR: "+err.Error())
}

func TestDriveCmd(t *testing.T) {
	out, err := execute(t, "drive", "--config", testConfig(t, ""))
	require.NoError(t, err)
	assert.Contains(t, out, "SECONDARY BALANCES: 4,500.0 WEAZ, $1,075.00")
	assert.Contains(t, out, "TRADER BALANCES: 2,500.0 WEAZ, $75.00")
	assert.Contains(t, out, "MARKET fakeSecondary  1 buys, 1 sells")
}

func TestAddressesCmd_NoDeployment(t *testing.T) {
	_, err := execute(t, "addresses", "--config", testConfig(t, ""))
	assert.ErrorContains(t, err, "no deployment recorded")
}
