package logging

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetupLoggerWritesJSONLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "debug.log")
	require.NoError(t, SetupLogger(path))

	DebugLog("fetching %s", "ABC_123")
	LogItemProcessed("ABC 123", "/out/ABC_123.jpg", false, "HTTP 404")
	CloseLogger()

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	var messages []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var entry map[string]interface{}
		require.NoError(t, json.Unmarshal(sc.Bytes(), &entry))
		messages = append(messages, entry["message"].(string))
		if entry["message"] == "FAILED" {
			assert.Equal(t, "ABC 123", entry["identifier"])
			assert.Equal(t, "HTTP 404", entry["error"])
		}
	}
	assert.Contains(t, messages, "fetching ABC_123")
	assert.Contains(t, messages, "FAILED")
}

func TestDebugLogIsSilentWithoutSetup(t *testing.T) {
	out := filepath.Join(t.TempDir(), "console.log")
	f, err := os.Create(out)
	require.NoError(t, err)
	defer f.Close()

	SetOutput(f)
	DebugLog("hidden")
	LogInfo("visible")

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "hidden")
	assert.Contains(t, string(data), "visible")
}
