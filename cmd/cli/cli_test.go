package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vpnda/fio-sync/pkg/models"
)

const fioStatement = `{
  "accountStatement": {
    "info": {"accountId": "2000000000", "bankId": "2010", "currency": "CZK", "closingBalance": 1200.00},
    "transactionList": {
      "transaction": [
        {
          "column22": {"value": 26962199069, "name": "ID pohybu", "id": 22},
          "column0": {"value": "2024-05-02+0200", "name": "Datum", "id": 0},
          "column1": {"value": -150.50, "name": "Objem", "id": 1},
          "column14": {"value": "CZK", "name": "Měna", "id": 14},
          "column16": {"value": "Coffee", "name": "Zpráva pro příjemce", "id": 16}
        }
      ]
    }
  }
}`

type testEnv struct {
	configPath string
	requests   *atomic.Int32
}

func newTestEnv(t *testing.T) testEnv {
	t.Helper()
	requests := &atomic.Int32{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(fioStatement))
	}))
	t.Cleanup(server.Close)

	dir := t.TempDir()
	configPath := filepath.Join(dir, "config.yaml")
	content := "db_path: " + filepath.Join(dir, "fio.db") + "\n" +
		"default_org: acme\n" +
		"log_level: error\n" +
		"fio:\n" +
		"  base_url: " + server.URL + "\n" +
		"  min_interval: 0s\n"
	require.NoError(t, os.WriteFile(configPath, []byte(content), 0644))
	return testEnv{configPath: configPath, requests: requests}
}

func (e testEnv) run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(io.Discard)
	cmd.SetArgs(append([]string{"--config", e.configPath}, args...))
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestAccountCommands(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.run(t, "account", "add", "--label", "main", "--token", "tok-main", "--default")
	require.NoError(t, err)
	_, err = env.run(t, "account", "add", "--label", "savings")
	require.NoError(t, err)

	out, err := env.run(t, "account", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "Found 2 accounts")
	assert.Contains(t, out, "main")
	assert.Contains(t, out, "savings")
	assert.NotContains(t, out, "tok-main")

	_, err = env.run(t, "account", "default", "2")
	require.NoError(t, err)
	out, err = env.run(t, "account", "list")
	require.NoError(t, err)
	lines := strings.Split(out, "\n")
	require.Greater(t, len(lines), 4)
	assert.Contains(t, lines[4], "savings", "the default account is listed first")

	_, err = env.run(t, "account", "default", "99")
	assert.Error(t, err)
	_, err = env.run(t, "account", "add")
	assert.Error(t, err)

	out, err = env.run(t, "--org", "other", "account", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "No accounts found")
}

func TestSyncCommand(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.run(t, "account", "add", "--label", "main", "--token", "tok-main")
	require.NoError(t, err)

	out, err := env.run(t, "sync", "--output", "json")
	require.NoError(t, err)

	var resp models.SyncResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.True(t, resp.OK)
	assert.NotEmpty(t, resp.RunID)
	require.Len(t, resp.Results, 1)
	result := resp.Results[0]
	assert.Equal(t, "main", result.Label)
	assert.Equal(t, int(env.requests.Load()), len(result.Windows))
	assert.Equal(t, len(result.Windows), resp.TotalFetched)
	assert.Equal(t, 1, result.Inserted)

	out, err = env.run(t, "transactions", "--output", "json")
	require.NoError(t, err)
	var transactions []models.Transaction
	require.NoError(t, json.Unmarshal([]byte(out), &transactions))
	require.Len(t, transactions, 1)
	assert.Equal(t, "26962199069", transactions[0].UID)
	assert.Equal(t, "CZK", transactions[0].Currency)

	out, err = env.run(t, "transactions")
	require.NoError(t, err)
	assert.Contains(t, out, "Coffee")

	out, err = env.run(t, "account", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "CZK")
	assert.NotContains(t, out, "never")
}

func TestSyncCommandReportsFailures(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.run(t, "account", "add", "--label", "no-token")
	require.NoError(t, err)

	out, err := env.run(t, "sync")
	assert.ErrorIs(t, err, errSyncFailed)
	assert.Contains(t, out, models.ErrorKindMissingToken)
	assert.Zero(t, env.requests.Load())
}

func TestSyncCommandRequestFile(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.run(t, "account", "add", "--label", "main", "--token", "tok-main")
	require.NoError(t, err)

	requestPath := filepath.Join(t.TempDir(), "request.json")
	require.NoError(t, os.WriteFile(requestPath, []byte(`{"chunk_days": 500}`), 0644))

	_, err = env.run(t, "sync", "--request", requestPath)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "chunk_days")

	_, err = env.run(t, "sync", "--request", requestPath, "--chunk", "0", "--output", "yaml")
	require.NoError(t, err)
	assert.Equal(t, int32(1), env.requests.Load())

	_, err = env.run(t, "sync", "--output", "xml")
	assert.Error(t, err)
}

func TestConfigCommand(t *testing.T) {
	env := newTestEnv(t)
	out, err := env.run(t, "config")
	require.NoError(t, err)
	assert.Contains(t, out, "default_org: acme")
	assert.Contains(t, out, "chunk_days: 30")
}
