package crawl

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/entrhq/rendercrawl/pkg/browser"
)

func TestResult_MarshalJSON_Success(t *testing.T) {
	res := Result{
		Success:        true,
		Title:          "",
		HTML:           "<html></html>",
		URL:            "https://example.com",
		ResponseTimeMs: 42,
		Stats:          browser.Snapshot{Connected: true, ActivePages: 1, MaxPages: 10},
		Attempts:       1,
	}

	data, err := json.Marshal(res)
	require.NoError(t, err)

	var got map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &got))

	assert.Equal(t, true, got["success"])
	assert.Equal(t, "", got["title"], "empty title is still present")
	assert.Equal(t, "<html></html>", got["html"])
	assert.Equal(t, "https://example.com", got["url"])
	assert.EqualValues(t, 42, got["responseTime"])
	assert.NotContains(t, got, "error")
	assert.NotContains(t, got, "Attempts")

	stats, ok := got["stats"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, true, stats["isConnected"])
	assert.EqualValues(t, 1, stats["activePagesCount"])
	assert.EqualValues(t, 10, stats["maxPages"])
}

func TestResult_MarshalJSON_Failure(t *testing.T) {
	res := Result{
		Error:          "Invalid URL format",
		Err:            errors.New("Invalid URL format"),
		URL:            "not a url",
		ResponseTimeMs: 0,
		FailedAt:       StageValidating,
	}

	data, err := json.Marshal(res)
	require.NoError(t, err)

	var got map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &got))

	assert.Equal(t, false, got["success"])
	assert.Equal(t, "Invalid URL format", got["error"])
	assert.Equal(t, "not a url", got["url"])
	assert.EqualValues(t, 0, got["responseTime"])
	assert.Contains(t, got, "stats")
	assert.NotContains(t, got, "html")
	assert.NotContains(t, got, "title")
}

func TestResult_Outcome(t *testing.T) {
	assert.Equal(t, "success", Result{Success: true}.Outcome())
	assert.Equal(t, "failure", Result{}.Outcome())
}
