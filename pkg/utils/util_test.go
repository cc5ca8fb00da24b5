package utils

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDebugRoundTripperRedacts(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"ok":true}`))
	}))
	defer server.Close()

	var buf bytes.Buffer
	logger := zerolog.New(&buf).Level(zerolog.DebugLevel)
	client := &http.Client{
		Transport: DebugRoundTripperWithUnderlying(http.DefaultTransport, logger, func(s string) string {
			return RedactSecret(s, "s3cret")
		}),
	}

	resp, err := client.Get(server.URL + "/periods/s3cret/x.json")
	require.NoError(t, err)
	resp.Body.Close()

	out := buf.String()
	assert.True(t, strings.Contains(out, "/periods/***/x.json"))
	assert.NotContains(t, out, "s3cret")
	assert.Contains(t, out, `{\"ok\":true}`)
}
