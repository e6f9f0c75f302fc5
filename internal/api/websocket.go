package api

import (
	"bytes"
	"compress/gzip"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/vineyard-analyzer/backend/internal/models"
	"github.com/vineyard-analyzer/backend/internal/storage"
)

// WebSocket message types for upload protocol
const (
	// Client -> Server messages
	MsgTypeUploadInit     = "upload:init"
	MsgTypeUploadChunk    = "upload:chunk"
	MsgTypeUploadComplete = "upload:complete"
	MsgTypeImageUpload    = "image:upload"
	MsgTypeRunWatch       = "run:watch"
	MsgTypePing           = "ping"

	// Server -> Client messages
	MsgTypeAck        = "ack"
	MsgTypeProgress   = "progress"
	MsgTypeComplete   = "complete"
	MsgTypeError      = "error"
	MsgTypeProcessing = "processing"
	MsgTypePong       = "pong"
)

// WebSocket message structure
type WSMessage struct {
	Type      string          `json:"type"`
	ID        string          `json:"id,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Timestamp int64           `json:"timestamp"`
}

// Upload init payload
type UploadInitPayload struct {
	FileName    string `json:"fileName"`
	Kind        string `json:"kind,omitempty"` // "log", "image"; classified from name when empty
	TotalChunks int    `json:"totalChunks"`
	TotalSize   int64  `json:"totalSize"`
	Encoding    string `json:"encoding,omitempty"` // "gzip", "none"
}

// Upload chunk payload
type UploadChunkPayload struct {
	UploadID   string `json:"uploadId"`
	ChunkIndex int    `json:"chunkIndex"`
	Data       string `json:"data"` // Base64 encoded chunk
	IsLast     bool   `json:"isLast,omitempty"`
}

// Upload complete payload
type UploadCompletePayload struct {
	UploadID string `json:"uploadId"`
	FileName string `json:"fileName"`
	Encoding string `json:"encoding,omitempty"`
}

// Single-message image upload payload (small files only)
type ImageUploadPayload struct {
	Name string `json:"name"`
	Data string `json:"data"` // Base64 encoded file
}

// Run watch payload
type RunWatchPayload struct {
	RunID string `json:"runId"`
}

// WebSocket progress response
type WSProgressResponse struct {
	Type     string  `json:"type"`
	UploadID string  `json:"uploadId,omitempty"`
	RunID    string  `json:"runId,omitempty"`
	Progress float64 `json:"progress"`
	Stage    string  `json:"stage,omitempty"`
	Message  string  `json:"message,omitempty"`
}

// WebSocket completion response
type WSCompleteResponse struct {
	Type     string           `json:"type"`
	UploadID string           `json:"uploadId,omitempty"`
	FileInfo *models.FileInfo `json:"fileInfo,omitempty"`
	Result   interface{}      `json:"result,omitempty"`
}

// WebSocket error response
type WSErrorResponse struct {
	Type    string `json:"type"`
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

// wsUpload tracks an in-progress upload over WebSocket
type wsUpload struct {
	ID             string
	FileName       string
	Kind           models.FileKind
	TotalChunks    int
	ReceivedChunks map[int]bool
	Chunks         [][]byte
	Encoding       string
	CreatedAt      time.Time
}

// UploadSocket manages WebSocket connections for file uploads and run
// progress watching
type UploadSocket struct {
	store     storage.Store
	runMgr    RunManager
	upgrader  websocket.Upgrader
	uploads   map[string]*wsUpload
	uploadsMu sync.RWMutex
}

// NewUploadSocket creates a new WebSocket upload handler
func NewUploadSocket(store storage.Store, runMgr RunManager) *UploadSocket {
	return &UploadSocket{
		store:  store,
		runMgr: runMgr,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				// Allow connections from dev server
				return true
			},
			ReadBufferSize:  64 * 1024,
			WriteBufferSize: 64 * 1024,
		},
		uploads: make(map[string]*wsUpload),
	}
}

// Handle upgrades the HTTP connection to WebSocket and runs the
// message loop
func (s *UploadSocket) Handle(c echo.Context) error {
	ws, err := s.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return err
	}
	defer ws.Close()

	fmt.Println("[WebSocket] Client connected")

	s.sendMessage(ws, WSMessage{
		Type:      "connected",
		Timestamp: time.Now().UnixMilli(),
	})

	for {
		var msg WSMessage
		err := ws.ReadJSON(&msg)
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				fmt.Printf("[WebSocket] Connection error: %v\n", err)
			}
			break
		}

		switch msg.Type {
		case MsgTypePing:
			s.sendMessage(ws, WSMessage{Type: MsgTypePong, Timestamp: time.Now().UnixMilli()})
		case MsgTypeUploadInit:
			s.handleUploadInit(ws, msg)
		case MsgTypeUploadChunk:
			s.handleUploadChunk(ws, msg)
		case MsgTypeUploadComplete:
			s.handleUploadComplete(ws, msg)
		case MsgTypeImageUpload:
			s.handleImageUpload(ws, msg)
		case MsgTypeRunWatch:
			s.handleRunWatch(ws, msg)
		default:
			s.sendError(ws, "Unknown message type: "+msg.Type, "INVALID_TYPE")
		}
	}

	fmt.Println("[WebSocket] Client disconnected")
	return nil
}

// handleUploadInit initializes a new chunked upload session
func (s *UploadSocket) handleUploadInit(ws *websocket.Conn, msg WSMessage) {
	var payload UploadInitPayload
	if err := json.Unmarshal(msg.Payload, &payload); err != nil {
		s.sendError(ws, "Invalid init payload: "+err.Error(), "INVALID_PAYLOAD")
		return
	}

	kind := models.FileKind(payload.Kind)
	if kind != models.FileKindLog && kind != models.FileKindImage {
		kind = storage.ClassifyKind(payload.FileName)
	}

	uploadID := generateUploadID()
	s.uploadsMu.Lock()
	s.uploads[uploadID] = &wsUpload{
		ID:             uploadID,
		FileName:       payload.FileName,
		Kind:           kind,
		TotalChunks:    payload.TotalChunks,
		ReceivedChunks: make(map[int]bool),
		Chunks:         make([][]byte, payload.TotalChunks),
		Encoding:       payload.Encoding,
		CreatedAt:      time.Now(),
	}
	s.uploadsMu.Unlock()

	s.sendMessage(ws, WSMessage{
		Type:      MsgTypeAck,
		ID:        uploadID,
		Timestamp: time.Now().UnixMilli(),
	})

	fmt.Printf("[WebSocket] Upload initialized: %s (%d chunks, %d bytes)\n",
		uploadID, payload.TotalChunks, payload.TotalSize)
}

// handleUploadChunk receives and stores a chunk
func (s *UploadSocket) handleUploadChunk(ws *websocket.Conn, msg WSMessage) {
	var payload UploadChunkPayload
	if err := json.Unmarshal(msg.Payload, &payload); err != nil {
		s.sendError(ws, "Invalid chunk payload: "+err.Error(), "INVALID_PAYLOAD")
		return
	}

	s.uploadsMu.Lock()
	upload, exists := s.uploads[payload.UploadID]
	s.uploadsMu.Unlock()

	if !exists {
		s.sendError(ws, "Upload session not found: "+payload.UploadID, "SESSION_NOT_FOUND")
		return
	}
	if payload.ChunkIndex < 0 || payload.ChunkIndex >= upload.TotalChunks {
		s.sendError(ws, fmt.Sprintf("Chunk index out of range: %d", payload.ChunkIndex), "INVALID_CHUNK")
		return
	}

	chunkData, err := base64.StdEncoding.DecodeString(payload.Data)
	if err != nil {
		s.sendError(ws, "Invalid base64 data: "+err.Error(), "INVALID_DATA")
		return
	}

	upload.ReceivedChunks[payload.ChunkIndex] = true
	upload.Chunks[payload.ChunkIndex] = chunkData

	received := len(upload.ReceivedChunks)
	progress := float64(received) / float64(upload.TotalChunks) * 100

	s.sendMessage(ws, WSMessage{
		Type:      MsgTypeProgress,
		ID:        payload.UploadID,
		Timestamp: time.Now().UnixMilli(),
		Payload: mustJSON(WSProgressResponse{
			Type:     MsgTypeProgress,
			UploadID: payload.UploadID,
			Progress: progress,
			Stage:    "uploading",
			Message:  fmt.Sprintf("Received chunk %d/%d", received, upload.TotalChunks),
		}),
	})
}

// handleUploadComplete assembles chunks and saves the file
func (s *UploadSocket) handleUploadComplete(ws *websocket.Conn, msg WSMessage) {
	var payload UploadCompletePayload
	if err := json.Unmarshal(msg.Payload, &payload); err != nil {
		s.sendError(ws, "Invalid complete payload: "+err.Error(), "INVALID_PAYLOAD")
		return
	}

	s.uploadsMu.Lock()
	upload, exists := s.uploads[payload.UploadID]
	s.uploadsMu.Unlock()

	if !exists {
		s.sendError(ws, "Upload session not found: "+payload.UploadID, "SESSION_NOT_FOUND")
		return
	}

	if len(upload.ReceivedChunks) != upload.TotalChunks {
		s.sendError(ws, fmt.Sprintf("Missing chunks: got %d, expected %d",
			len(upload.ReceivedChunks), upload.TotalChunks), "INCOMPLETE_UPLOAD")
		return
	}

	s.sendMessage(ws, WSMessage{
		Type:      MsgTypeProcessing,
		ID:        payload.UploadID,
		Timestamp: time.Now().UnixMilli(),
		Payload: mustJSON(WSProgressResponse{
			Type:     MsgTypeProcessing,
			UploadID: payload.UploadID,
			Progress: 50,
			Stage:    "assembling",
			Message:  "Assembling file chunks...",
		}),
	})

	totalSize := 0
	for _, chunk := range upload.Chunks {
		totalSize += len(chunk)
	}
	assembled := make([]byte, 0, totalSize)
	for _, chunk := range upload.Chunks {
		assembled = append(assembled, chunk...)
	}

	if payload.Encoding == "gzip" || upload.Encoding == "gzip" {
		decompressed, err := decompressGzip(assembled)
		if err != nil {
			fmt.Printf("[WebSocket] Decompression failed, using as-is: %v\n", err)
		} else {
			assembled = decompressed
		}
	}

	name := payload.FileName
	if name == "" {
		name = upload.FileName
	}

	info, err := s.store.SaveBytes(name, upload.Kind, assembled)
	if err != nil {
		s.sendError(ws, "Failed to save file: "+err.Error(), "SAVE_ERROR")
		return
	}

	s.uploadsMu.Lock()
	delete(s.uploads, payload.UploadID)
	s.uploadsMu.Unlock()

	s.sendMessage(ws, WSMessage{
		Type:      MsgTypeComplete,
		ID:        payload.UploadID,
		Timestamp: time.Now().UnixMilli(),
		Payload: mustJSON(WSCompleteResponse{
			Type:     MsgTypeComplete,
			UploadID: payload.UploadID,
			FileInfo: info,
		}),
	})

	fmt.Printf("[WebSocket] Upload complete: %s (%d bytes)\n", info.ID, info.Size)
}

// handleImageUpload handles single-message photo uploads
func (s *UploadSocket) handleImageUpload(ws *websocket.Conn, msg WSMessage) {
	var payload ImageUploadPayload
	if err := json.Unmarshal(msg.Payload, &payload); err != nil {
		s.sendError(ws, "Invalid image upload payload: "+err.Error(), "INVALID_PAYLOAD")
		return
	}

	decoded, err := base64.StdEncoding.DecodeString(payload.Data)
	if err != nil {
		s.sendError(ws, "Invalid base64 data: "+err.Error(), "INVALID_DATA")
		return
	}

	info, err := s.store.SaveBytes(payload.Name, models.FileKindImage, decoded)
	if err != nil {
		s.sendError(ws, "Failed to save image: "+err.Error(), "SAVE_ERROR")
		return
	}

	s.sendMessage(ws, WSMessage{
		Type:      MsgTypeComplete,
		Timestamp: time.Now().UnixMilli(),
		Payload: mustJSON(WSCompleteResponse{
			Type:     MsgTypeComplete,
			FileInfo: info,
		}),
	})

	fmt.Printf("[WebSocket] Image uploaded: %s\n", info.ID)
}

// handleRunWatch streams annotation run progress over the socket until
// the run finishes or the connection closes
func (s *UploadSocket) handleRunWatch(ws *websocket.Conn, msg WSMessage) {
	var payload RunWatchPayload
	if err := json.Unmarshal(msg.Payload, &payload); err != nil {
		s.sendError(ws, "Invalid run watch payload: "+err.Error(), "INVALID_PAYLOAD")
		return
	}

	sess, ok := s.runMgr.GetSession(payload.RunID)
	if !ok {
		s.sendError(ws, "Run not found: "+payload.RunID, "RUN_NOT_FOUND")
		return
	}

	ticker := time.NewTicker(200 * time.Millisecond)
	defer ticker.Stop()

	deadline := time.After(10 * time.Minute)

	for {
		s.sendMessage(ws, WSMessage{
			Type:      MsgTypeProgress,
			ID:        payload.RunID,
			Timestamp: time.Now().UnixMilli(),
			Payload: mustJSON(WSProgressResponse{
				Type:     MsgTypeProgress,
				RunID:    payload.RunID,
				Progress: sess.Progress,
				Stage:    string(sess.Status),
			}),
		})

		if sess.Status == models.SessionStatusComplete || sess.Status == models.SessionStatusError {
			s.sendMessage(ws, WSMessage{
				Type:      MsgTypeComplete,
				ID:        payload.RunID,
				Timestamp: time.Now().UnixMilli(),
				Payload: mustJSON(WSCompleteResponse{
					Type:   MsgTypeComplete,
					Result: sess,
				}),
			})
			return
		}

		select {
		case <-ticker.C:
			sess, ok = s.runMgr.GetSession(payload.RunID)
			if !ok {
				s.sendError(ws, "Run not found: "+payload.RunID, "RUN_NOT_FOUND")
				return
			}
		case <-deadline:
			s.sendError(ws, "Run watch timed out", "WATCH_TIMEOUT")
			return
		}
	}
}

// Helper methods

func (s *UploadSocket) sendMessage(ws *websocket.Conn, msg WSMessage) {
	if err := ws.WriteJSON(msg); err != nil {
		fmt.Printf("[WebSocket] Failed to send message: %v\n", err)
	}
}

func (s *UploadSocket) sendError(ws *websocket.Conn, message, code string) {
	s.sendMessage(ws, WSMessage{
		Type:      MsgTypeError,
		Timestamp: time.Now().UnixMilli(),
		Payload: mustJSON(WSErrorResponse{
			Type:    MsgTypeError,
			Message: message,
			Code:    code,
		}),
	})
}

func generateUploadID() string {
	return fmt.Sprintf("%d-%d", time.Now().UnixMilli(), time.Now().Nanosecond())
}

func mustJSON(v interface{}) json.RawMessage {
	data, err := json.Marshal(v)
	if err != nil {
		return []byte("{}")
	}
	return data
}

func decompressGzip(data []byte) ([]byte, error) {
	reader, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer reader.Close()
	return io.ReadAll(reader)
}
