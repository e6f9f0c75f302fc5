// handlers_compat_test.go - Tests for compatibility analysis handler
package api

import (
	"net/http"
	"os"
	"path/filepath"
	"testing"

	"github.com/vineyard-analyzer/backend/internal/models"
	"github.com/vineyard-analyzer/backend/internal/telemetry"
	"github.com/vineyard-analyzer/backend/internal/testutil"
)

func TestCompatHandler_HandleCompatibilityCheck(t *testing.T) {
	tempDir := t.TempDir()

	csv := "CUSTOM.updateTime [local],OSD.latitude,OSD.longitude\n" +
		"2024-03-15 09:00:00.000,45.1,7.6\n" +
		"2024-03-15 09:30:00.000,45.2,7.7\n"
	decodedPath := filepath.Join(tempDir, "decoded.csv")
	if err := os.WriteFile(decodedPath, []byte(csv), 0644); err != nil {
		t.Fatalf("write decoded csv: %v", err)
	}

	store := testutil.NewMockStorageWithTempDir(tempDir)
	store.AddFile("log-1", "FLY001.DAT", models.FileKindLog, []byte("raw"))
	// Timestamp comes from the original name pattern, not the stored path
	store.AddFile("img-in", "DJI_20240315_091500.jpg", models.FileKindImage, []byte("not-a-real-jpeg"))
	store.AddFile("img-out", "DJI_20240320_120000.jpg", models.FileKindImage, []byte("not-a-real-jpeg"))

	ingestMgr := newStubIngestManager()
	ingestMgr.decoded["log-1"] = decodedPath

	handler := NewCompatHandler(store, ingestMgr, telemetry.DefaultAliases())

	t.Run("matches images inside the log range", func(t *testing.T) {
		c, rec := newTestContext(t, http.MethodPost, "/api/compat", compatCheckRequest{
			LogIDs:   []string{"log-1"},
			ImageIDs: []string{"img-in", "img-out"},
		})
		if err := handler.HandleCompatibilityCheck(c); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		var report models.CompatibilityReport
		decodeJSON(t, rec, &report)
		if !report.Compatible {
			t.Error("expected compatible report")
		}
		if len(report.Matches) != 1 {
			t.Fatalf("matches = %d, want 1", len(report.Matches))
		}
		m := report.Matches[0]
		if m.ImageName != "DJI_20240315_091500.jpg" {
			t.Errorf("image = %q", m.ImageName)
		}
		if m.Class != models.CompatInsideRange {
			t.Errorf("class = %q, want inside_range", m.Class)
		}
	})

	t.Run("missing log", func(t *testing.T) {
		c, _ := newTestContext(t, http.MethodPost, "/api/compat", compatCheckRequest{
			LogIDs:   []string{"nope"},
			ImageIDs: []string{"img-in"},
		})
		err := handler.HandleCompatibilityCheck(c)
		wantAPIError(t, err, http.StatusNotFound, "NOT_FOUND")
	})

	t.Run("kind mismatch", func(t *testing.T) {
		c, _ := newTestContext(t, http.MethodPost, "/api/compat", compatCheckRequest{
			LogIDs:   []string{"img-in"},
			ImageIDs: []string{"img-in"},
		})
		err := handler.HandleCompatibilityCheck(c)
		wantAPIError(t, err, http.StatusBadRequest, "WRONG_FILE_KIND")
	})

	t.Run("empty logIds", func(t *testing.T) {
		c, _ := newTestContext(t, http.MethodPost, "/api/compat", compatCheckRequest{
			ImageIDs: []string{"img-in"},
		})
		err := handler.HandleCompatibilityCheck(c)
		wantAPIError(t, err, http.StatusBadRequest, "VALIDATION_ERROR")
	})
}
