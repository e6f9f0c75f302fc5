// manager_test.go - Tests for storage layer
package storage

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/vineyard-analyzer/backend/internal/models"
)

func createTestStore(t *testing.T) *LocalStore {
	store, err := NewLocalStore(t.TempDir())
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	return store
}

func TestNewLocalStore(t *testing.T) {
	t.Run("creates upload directory", func(t *testing.T) {
		uploadDir := filepath.Join(t.TempDir(), "uploads")

		_, err := NewLocalStore(uploadDir)
		if err != nil {
			t.Fatalf("Failed to create store: %v", err)
		}

		if _, err := os.Stat(uploadDir); os.IsNotExist(err) {
			t.Error("Expected upload directory to be created")
		}
	})
}

func TestClassifyKind(t *testing.T) {
	cases := map[string]models.FileKind{
		"DJI_20240101_123000.jpg": models.FileKindImage,
		"photo.JPEG":              models.FileKindImage,
		"scan.tiff":               models.FileKindImage,
		"DJIFlightRecord.txt":     models.FileKindLog,
		"flight.csv":              models.FileKindLog,
		"no-extension":            models.FileKindLog,
	}
	for name, want := range cases {
		if got := ClassifyKind(name); got != want {
			t.Errorf("ClassifyKind(%q) = %v, want %v", name, got, want)
		}
	}
}

func TestLocalStore_Save(t *testing.T) {
	t.Run("saves file from reader", func(t *testing.T) {
		store := createTestStore(t)

		content := "timestamp,latitude,longitude"
		info, err := store.Save("flight.csv", models.FileKindLog, strings.NewReader(content))
		if err != nil {
			t.Fatalf("Failed to save file: %v", err)
		}

		if info.ID == "" {
			t.Error("Expected ID to be set")
		}
		if info.Name != "flight.csv" {
			t.Errorf("Expected name 'flight.csv', got %v", info.Name)
		}
		if info.Kind != models.FileKindLog {
			t.Errorf("Expected kind log, got %v", info.Kind)
		}
		if info.Size != int64(len(content)) {
			t.Errorf("Expected size %d, got %d", len(content), info.Size)
		}
		if info.Status != "uploaded" {
			t.Errorf("Expected status 'uploaded', got %v", info.Status)
		}
	})

	t.Run("saves empty file", func(t *testing.T) {
		store := createTestStore(t)

		info, err := store.Save("empty.csv", models.FileKindLog, strings.NewReader(""))
		if err != nil {
			t.Fatalf("Failed to save empty file: %v", err)
		}

		if info.Size != 0 {
			t.Errorf("Expected size 0, got %d", info.Size)
		}
	})

	t.Run("creates physical file", func(t *testing.T) {
		store := createTestStore(t)

		content := "Test content"
		info, err := store.Save("flight.csv", models.FileKindLog, strings.NewReader(content))
		if err != nil {
			t.Fatalf("Failed to save file: %v", err)
		}

		filePath := filepath.Join(store.uploadDir, info.ID)
		data, err := os.ReadFile(filePath)
		if err != nil {
			t.Fatalf("Failed to read saved file: %v", err)
		}

		if string(data) != content {
			t.Errorf("Expected content '%s', got '%s'", content, string(data))
		}
	})
}

func TestLocalStore_SaveBytes(t *testing.T) {
	store := createTestStore(t)

	data := []byte{0xff, 0xd8, 0xff, 0xe1}
	info, err := store.SaveBytes("photo.jpg", models.FileKindImage, data)
	if err != nil {
		t.Fatalf("Failed to save bytes: %v", err)
	}

	if info.Size != int64(len(data)) {
		t.Errorf("Expected size %d, got %d", len(data), info.Size)
	}

	filePath := filepath.Join(store.uploadDir, info.ID)
	savedData, err := os.ReadFile(filePath)
	if err != nil {
		t.Fatalf("Failed to read saved file: %v", err)
	}

	if !bytes.Equal(savedData, data) {
		t.Error("Saved data doesn't match original")
	}
}

func TestLocalStore_GetFile(t *testing.T) {
	t.Run("gets existing file", func(t *testing.T) {
		store := createTestStore(t)

		info, err := store.Save("flight.csv", models.FileKindLog, strings.NewReader("content"))
		if err != nil {
			t.Fatalf("Failed to save file: %v", err)
		}

		retrieved, err := store.GetFile(info.ID)
		if err != nil {
			t.Fatalf("Failed to get file: %v", err)
		}

		if retrieved.ID != info.ID {
			t.Errorf("Expected ID %s, got %s", info.ID, retrieved.ID)
		}
		if retrieved.Name != info.Name {
			t.Errorf("Expected name %s, got %s", info.Name, retrieved.Name)
		}
	})

	t.Run("returns error for non-existent file", func(t *testing.T) {
		store := createTestStore(t)

		_, err := store.GetFile("non-existent-id")
		if err == nil {
			t.Error("Expected error for non-existent file")
		}
	})
}

func TestLocalStore_List(t *testing.T) {
	t.Run("filters by kind", func(t *testing.T) {
		store := createTestStore(t)

		for i := 0; i < 3; i++ {
			if _, err := store.Save("flight.csv", models.FileKindLog, strings.NewReader("log")); err != nil {
				t.Fatalf("Failed to save log: %v", err)
			}
		}
		for i := 0; i < 2; i++ {
			if _, err := store.Save("photo.jpg", models.FileKindImage, strings.NewReader("img")); err != nil {
				t.Fatalf("Failed to save image: %v", err)
			}
		}

		logs, err := store.List(models.FileKindLog, 10)
		if err != nil {
			t.Fatalf("Failed to list logs: %v", err)
		}
		if len(logs) != 3 {
			t.Errorf("Expected 3 logs, got %d", len(logs))
		}

		images, err := store.List(models.FileKindImage, 10)
		if err != nil {
			t.Fatalf("Failed to list images: %v", err)
		}
		if len(images) != 2 {
			t.Errorf("Expected 2 images, got %d", len(images))
		}

		all, err := store.List("", 10)
		if err != nil {
			t.Fatalf("Failed to list all: %v", err)
		}
		if len(all) != 5 {
			t.Errorf("Expected 5 files, got %d", len(all))
		}
	})

	t.Run("limits results", func(t *testing.T) {
		store := createTestStore(t)

		for i := 0; i < 10; i++ {
			if _, err := store.Save("file.csv", models.FileKindLog, strings.NewReader("content")); err != nil {
				t.Fatalf("Failed to save file: %v", err)
			}
			time.Sleep(5 * time.Millisecond)
		}

		files, err := store.List(models.FileKindLog, 3)
		if err != nil {
			t.Fatalf("Failed to list files: %v", err)
		}

		if len(files) != 3 {
			t.Errorf("Expected 3 files, got %d", len(files))
		}
	})

	t.Run("sorts by upload time descending", func(t *testing.T) {
		store := createTestStore(t)

		infos := make([]string, 3)
		for i := 0; i < 3; i++ {
			info, err := store.Save("file.csv", models.FileKindLog, strings.NewReader("content"))
			if err != nil {
				t.Fatalf("Failed to save file: %v", err)
			}
			infos[i] = info.ID
			time.Sleep(20 * time.Millisecond)
		}

		files, err := store.List(models.FileKindLog, 3)
		if err != nil {
			t.Fatalf("Failed to list files: %v", err)
		}

		if files[0].ID != infos[2] {
			t.Error("Expected files to be sorted by time descending")
		}
	})
}

func TestLocalStore_Delete(t *testing.T) {
	t.Run("deletes existing file", func(t *testing.T) {
		store := createTestStore(t)

		info, err := store.Save("flight.csv", models.FileKindLog, strings.NewReader("content"))
		if err != nil {
			t.Fatalf("Failed to save file: %v", err)
		}

		filePath := filepath.Join(store.uploadDir, info.ID)
		if _, err := os.Stat(filePath); os.IsNotExist(err) {
			t.Fatal("File should exist before deletion")
		}

		if err := store.Delete(info.ID); err != nil {
			t.Fatalf("Failed to delete file: %v", err)
		}

		if _, err := store.GetFile(info.ID); err == nil {
			t.Error("Expected error when getting deleted file")
		}

		if _, err := os.Stat(filePath); !os.IsNotExist(err) {
			t.Error("Physical file should be deleted")
		}
	})

	t.Run("returns error for non-existent file", func(t *testing.T) {
		store := createTestStore(t)

		if err := store.Delete("non-existent-id"); err == nil {
			t.Error("Expected error when deleting non-existent file")
		}
	})
}

func TestLocalStore_Rename(t *testing.T) {
	store := createTestStore(t)

	info, err := store.Save("oldname.csv", models.FileKindLog, strings.NewReader("content"))
	if err != nil {
		t.Fatalf("Failed to save file: %v", err)
	}

	updated, err := store.Rename(info.ID, "newname.csv")
	if err != nil {
		t.Fatalf("Failed to rename file: %v", err)
	}

	if updated.Name != "newname.csv" {
		t.Errorf("Expected name 'newname.csv', got %v", updated.Name)
	}

	retrieved, err := store.GetFile(info.ID)
	if err != nil {
		t.Fatalf("Failed to get file: %v", err)
	}

	if retrieved.Name != "newname.csv" {
		t.Errorf("Expected persisted name 'newname.csv', got %v", retrieved.Name)
	}
}

func TestLocalStore_SetStatus(t *testing.T) {
	store := createTestStore(t)

	info, err := store.Save("flight.csv", models.FileKindLog, strings.NewReader("content"))
	if err != nil {
		t.Fatalf("Failed to save file: %v", err)
	}

	store.SetStatus(info.ID, "ready")

	retrieved, err := store.GetFile(info.ID)
	if err != nil {
		t.Fatalf("Failed to get file: %v", err)
	}
	if retrieved.Status != "ready" {
		t.Errorf("Expected status 'ready', got %v", retrieved.Status)
	}
}

func TestLocalStore_GetFilePath(t *testing.T) {
	t.Run("returns file path for existing file", func(t *testing.T) {
		store := createTestStore(t)

		info, err := store.Save("flight.csv", models.FileKindLog, strings.NewReader("content"))
		if err != nil {
			t.Fatalf("Failed to save file: %v", err)
		}

		path, err := store.GetFilePath(info.ID)
		if err != nil {
			t.Fatalf("Failed to get file path: %v", err)
		}

		expectedPath := filepath.Join(store.uploadDir, info.ID)
		if path != expectedPath {
			t.Errorf("Expected path %s, got %s", expectedPath, path)
		}
	})

	t.Run("returns error for non-existent file", func(t *testing.T) {
		store := createTestStore(t)

		if _, err := store.GetFilePath("non-existent-id"); err == nil {
			t.Error("Expected error when getting path for non-existent file")
		}
	})
}

func TestLocalStore_CompleteChunkedUpload(t *testing.T) {
	t.Run("assembles chunks into final file", func(t *testing.T) {
		store := createTestStore(t)

		uploadID := "upload-complete"
		chunks := []string{"Hello ", "World", "!"}

		for i, content := range chunks {
			if err := store.SaveChunk(uploadID, i, strings.NewReader(content)); err != nil {
				t.Fatalf("Failed to save chunk %d: %v", i, err)
			}
		}

		info, err := store.CompleteChunkedUpload(uploadID, "assembled.csv", models.FileKindLog, len(chunks))
		if err != nil {
			t.Fatalf("Failed to complete upload: %v", err)
		}

		if info.Name != "assembled.csv" {
			t.Errorf("Expected name 'assembled.csv', got %v", info.Name)
		}
		if info.Kind != models.FileKindLog {
			t.Errorf("Expected kind log, got %v", info.Kind)
		}

		expectedSize := int64(len("Hello World!"))
		if info.Size != expectedSize {
			t.Errorf("Expected size %d, got %d", expectedSize, info.Size)
		}

		filePath := filepath.Join(store.uploadDir, info.ID)
		data, err := os.ReadFile(filePath)
		if err != nil {
			t.Fatalf("Failed to read assembled file: %v", err)
		}

		if string(data) != "Hello World!" {
			t.Errorf("Expected 'Hello World!', got '%s'", string(data))
		}

		chunkDir := filepath.Join(store.uploadDir, "chunks", uploadID)
		if _, err := os.Stat(chunkDir); !os.IsNotExist(err) {
			t.Error("Chunk directory should be cleaned up")
		}
	})

	t.Run("returns error for missing chunks", func(t *testing.T) {
		store := createTestStore(t)

		uploadID := "upload-incomplete"

		if err := store.SaveChunk(uploadID, 0, strings.NewReader("chunk0")); err != nil {
			t.Fatalf("Failed to save chunk: %v", err)
		}

		if _, err := store.CompleteChunkedUpload(uploadID, "incomplete.csv", models.FileKindLog, 3); err == nil {
			t.Error("Expected error when chunks are missing")
		}
	})
}

func TestLocalStore_ConcurrentAccess(t *testing.T) {
	store := createTestStore(t)

	done := make(chan bool, 10)
	for i := 0; i < 10; i++ {
		go func(n int) {
			content := "Content " + string(rune('0'+n))
			_, err := store.Save("file.csv", models.FileKindLog, strings.NewReader(content))
			if err != nil {
				t.Errorf("Failed to save file: %v", err)
			}
			done <- true
		}(i)
	}

	for i := 0; i < 10; i++ {
		<-done
	}

	files, err := store.List(models.FileKindLog, 20)
	if err != nil {
		t.Fatalf("Failed to list files: %v", err)
	}

	if len(files) != 10 {
		t.Errorf("Expected 10 files, got %d", len(files))
	}
}

// mockReader is a reader that can simulate errors
type mockReader struct {
	data      []byte
	readCount int
	failAfter int
}

func (m *mockReader) Read(p []byte) (n int, err error) {
	if m.readCount >= m.failAfter {
		return 0, io.ErrUnexpectedEOF
	}
	m.readCount++
	n = copy(p, m.data)
	return n, nil
}

func TestLocalStore_ErrorHandling(t *testing.T) {
	store := createTestStore(t)

	reader := &mockReader{
		data:      []byte("data"),
		failAfter: 0,
	}

	if _, err := store.Save("test.csv", models.FileKindLog, reader); err == nil {
		t.Error("Expected error when reader fails")
	}
}
