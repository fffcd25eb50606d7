package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/gosum-mcp/internal/summarizer"
)

func setupServer(t *testing.T) *Server {
	t.Helper()
	t.Setenv(summarizer.EnvProvider, summarizer.ProviderLocal)

	server, err := NewServer(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = server.storage.Close() })
	return server
}

func setupProjectDir(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	files := map[string]string{
		"main.go":             "package main\n\nfunc main() {}\n",
		"internal/auth.go":    "package internal\n\nfunc Auth() {}\n",
		"internal/billing.go": "package internal\n\nfunc Bill() {}\n",
	}
	for rel, content := range files {
		full := filepath.Join(root, filepath.FromSlash(rel))
		require.NoError(t, os.MkdirAll(filepath.Dir(full), 0755))
		require.NoError(t, os.WriteFile(full, []byte(content), 0644))
	}
	return root
}

func callRequest(args map[string]interface{}) mcp.CallToolRequest {
	var req mcp.CallToolRequest
	req.Params.Arguments = args
	return req
}

func resultJSON(t *testing.T, result *mcp.CallToolResult) map[string]interface{} {
	t.Helper()
	require.NotEmpty(t, result.Content)

	var text string
	switch c := result.Content[0].(type) {
	case mcp.TextContent:
		text = c.Text
	case *mcp.TextContent:
		text = c.Text
	default:
		t.Fatalf("expected text content, got %T", result.Content[0])
	}

	var payload map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(text), &payload))
	return payload
}

func TestNewServer(t *testing.T) {
	server := setupServer(t)
	assert.NotNil(t, server.storage)
	assert.NotNil(t, server.tracker)
	assert.NotNil(t, server.engine)
	assert.NotNil(t, server.syncer)
}

func TestHandleSyncProject(t *testing.T) {
	server := setupServer(t)
	ctx := context.Background()

	t.Run("registers files", func(t *testing.T) {
		root := setupProjectDir(t)
		result, err := server.handleSyncProject(ctx, callRequest(map[string]interface{}{"path": root}))
		require.NoError(t, err)

		payload := resultJSON(t, result)
		assert.Equal(t, float64(3), payload["created"])
		assert.Equal(t, float64(3), payload["total_files"])
	})

	t.Run("missing path", func(t *testing.T) {
		_, err := server.handleSyncProject(ctx, callRequest(map[string]interface{}{}))
		requireMCPError(t, err, ErrorCodeInvalidParams)
	})

	t.Run("relative path", func(t *testing.T) {
		_, err := server.handleSyncProject(ctx, callRequest(map[string]interface{}{"path": "relative/dir"}))
		requireMCPError(t, err, ErrorCodeInvalidParams)
	})
}

func TestHandleIdentifyUnsummarized(t *testing.T) {
	server := setupServer(t)
	ctx := context.Background()
	root := setupProjectDir(t)

	t.Run("unsynced project", func(t *testing.T) {
		_, err := server.handleIdentifyUnsummarized(ctx, callRequest(map[string]interface{}{"path": root}))
		requireMCPError(t, err, ErrorCodeProjectNotFound)
	})

	t.Run("lists pending files", func(t *testing.T) {
		_, err := server.handleSyncProject(ctx, callRequest(map[string]interface{}{"path": root}))
		require.NoError(t, err)

		result, err := server.handleIdentifyUnsummarized(ctx, callRequest(map[string]interface{}{"path": root}))
		require.NoError(t, err)
		payload := resultJSON(t, result)
		assert.Equal(t, float64(3), payload["count"])
	})
}

func TestHandleGroupFiles(t *testing.T) {
	server := setupServer(t)
	ctx := context.Background()
	root := setupProjectDir(t)

	_, err := server.handleSyncProject(ctx, callRequest(map[string]interface{}{"path": root}))
	require.NoError(t, err)

	t.Run("previews groups", func(t *testing.T) {
		result, err := server.handleGroupFiles(ctx, callRequest(map[string]interface{}{
			"path":     root,
			"strategy": "directory",
		}))
		require.NoError(t, err)

		payload := resultJSON(t, result)
		assert.Equal(t, float64(3), payload["total_files"])
		assert.Equal(t, float64(2), payload["total_groups"])
	})

	t.Run("unknown strategy", func(t *testing.T) {
		_, err := server.handleGroupFiles(ctx, callRequest(map[string]interface{}{
			"path":     root,
			"strategy": "random",
		}))
		requireMCPError(t, err, ErrorCodeInvalidParams)
	})
}

func TestHandleSummarizeBatch(t *testing.T) {
	server := setupServer(t)
	ctx := context.Background()
	root := setupProjectDir(t)

	_, err := server.handleSyncProject(ctx, callRequest(map[string]interface{}{"path": root}))
	require.NoError(t, err)

	t.Run("runs a batch to completion", func(t *testing.T) {
		result, err := server.handleSummarizeBatch(ctx, callRequest(map[string]interface{}{
			"path":     root,
			"strategy": "directory",
		}))
		require.NoError(t, err)

		payload := resultJSON(t, result)
		batchID, _ := payload["batch_id"].(string)
		require.NotEmpty(t, batchID)
		assert.Equal(t, float64(3), payload["total_files"])

		final := pollUntilTerminal(t, server, batchID)
		assert.Equal(t, "completed", final["status"])
		assert.Equal(t, float64(100), final["percent_complete"])
	})

	t.Run("nothing left to summarize", func(t *testing.T) {
		// The previous batch releases its project lock just after the
		// terminal snapshot becomes visible, so retry briefly on the
		// already-running error.
		var result *mcp.CallToolResult
		var err error
		deadline := time.Now().Add(5 * time.Second)
		for {
			result, err = server.handleSummarizeBatch(ctx, callRequest(map[string]interface{}{
				"path":          root,
				"include_stale": false,
			}))
			var mcpErr *MCPError
			if err != nil && errors.As(err, &mcpErr) && mcpErr.Code == ErrorCodeBatchRunning && time.Now().Before(deadline) {
				time.Sleep(10 * time.Millisecond)
				continue
			}
			break
		}
		require.NoError(t, err)
		payload := resultJSON(t, result)
		assert.Equal(t, float64(0), payload["total_files"])
	})
}

func pollUntilTerminal(t *testing.T, server *Server, batchID string) map[string]interface{} {
	t.Helper()
	deadline := time.Now().Add(10 * time.Second)
	for time.Now().Before(deadline) {
		result, err := server.handleGetProgress(context.Background(), callRequest(map[string]interface{}{
			"batch_id": batchID,
		}))
		require.NoError(t, err)
		payload := resultJSON(t, result)
		switch payload["status"] {
		case "completed", "cancelled", "failed":
			return payload
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatal("batch did not reach a terminal state")
	return nil
}

func TestHandleGetProgress(t *testing.T) {
	server := setupServer(t)
	ctx := context.Background()

	t.Run("unknown batch id is a negative result", func(t *testing.T) {
		result, err := server.handleGetProgress(ctx, callRequest(map[string]interface{}{
			"batch_id": "no-such-batch",
		}))
		require.NoError(t, err)
		payload := resultJSON(t, result)
		assert.Equal(t, false, payload["found"])
	})

	t.Run("project with no batches", func(t *testing.T) {
		root := setupProjectDir(t)
		_, err := server.handleSyncProject(ctx, callRequest(map[string]interface{}{"path": root}))
		require.NoError(t, err)

		result, err := server.handleGetProgress(ctx, callRequest(map[string]interface{}{"path": root}))
		require.NoError(t, err)
		payload := resultJSON(t, result)
		assert.Equal(t, false, payload["found"])
	})
}

func TestHandleCancelBatch(t *testing.T) {
	server := setupServer(t)
	ctx := context.Background()

	t.Run("unknown batch is not an error", func(t *testing.T) {
		result, err := server.handleCancelBatch(ctx, callRequest(map[string]interface{}{
			"batch_id": "ghost",
		}))
		require.NoError(t, err)
		payload := resultJSON(t, result)
		assert.Equal(t, false, payload["cancelled"])
	})

	t.Run("missing batch id", func(t *testing.T) {
		_, err := server.handleCancelBatch(ctx, callRequest(map[string]interface{}{}))
		requireMCPError(t, err, ErrorCodeInvalidParams)
	})
}

func TestHandleGetSummaryStats(t *testing.T) {
	server := setupServer(t)
	ctx := context.Background()
	root := setupProjectDir(t)

	_, err := server.handleSyncProject(ctx, callRequest(map[string]interface{}{"path": root}))
	require.NoError(t, err)

	result, err := server.handleGetSummaryStats(ctx, callRequest(map[string]interface{}{"path": root}))
	require.NoError(t, err)
	payload := resultJSON(t, result)
	assert.Equal(t, float64(3), payload["total_files"])

	byStatus, ok := payload["by_status"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, float64(3), byStatus["unsummarized"])
}

func TestHandleRemoveSummaries(t *testing.T) {
	server := setupServer(t)
	ctx := context.Background()
	root := setupProjectDir(t)

	_, err := server.handleSyncProject(ctx, callRequest(map[string]interface{}{"path": root}))
	require.NoError(t, err)

	t.Run("unknown paths reported, none removed", func(t *testing.T) {
		result, err := server.handleRemoveSummaries(ctx, callRequest(map[string]interface{}{
			"path":  root,
			"files": []interface{}{"main.go", "ghost.go"},
		}))
		require.NoError(t, err)
		payload := resultJSON(t, result)
		assert.Equal(t, float64(0), payload["removed"])

		unknown, ok := payload["unknown_files"].([]interface{})
		require.True(t, ok)
		assert.Equal(t, []interface{}{"ghost.go"}, unknown)
	})

	t.Run("missing files parameter", func(t *testing.T) {
		_, err := server.handleRemoveSummaries(ctx, callRequest(map[string]interface{}{"path": root}))
		requireMCPError(t, err, ErrorCodeInvalidParams)
	})
}

func requireMCPError(t *testing.T, err error, code int) {
	t.Helper()
	require.Error(t, err)
	var mcpErr *MCPError
	require.ErrorAs(t, err, &mcpErr)
	assert.Equal(t, code, mcpErr.Code)
}
