package server_test

import (
	"bytes"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/Tyrowin/relay/internal/protocol"
	"github.com/Tyrowin/relay/internal/server"
)

type uploadResult struct {
	Success  bool   `json:"success"`
	FileURL  string `json:"fileUrl"`
	Filename string `json:"filename"`
	Size     int64  `json:"size"`
	Message  string `json:"message"`
}

func postFile(t *testing.T, url, field, filename string, content []byte) (*http.Response, uploadResult) {
	t.Helper()

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	if field != "" {
		part, err := mw.CreateFormFile(field, filename)
		if err != nil {
			t.Fatalf("Failed to create form file: %v", err)
		}
		if _, err := part.Write(content); err != nil {
			t.Fatalf("Failed to write form file: %v", err)
		}
	}
	if err := mw.Close(); err != nil {
		t.Fatalf("Failed to close multipart writer: %v", err)
	}

	resp, err := http.Post(url+"/upload", mw.FormDataContentType(), &body)
	if err != nil {
		t.Fatalf("Failed to make request: %v", err)
	}
	defer resp.Body.Close()

	var result uploadResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		t.Fatalf("Failed to decode upload response: %v", err)
	}
	return resp, result
}

// TestUploadStoresFile verifies a successful upload and that the returned
// URL serves the stored bytes.
func TestUploadStoresFile(t *testing.T) {
	var uploadDir string
	_, testServer := newTestServer(t, func(cfg *server.Config) { uploadDir = cfg.UploadDir })

	content := []byte("hello relay")
	resp, result := postFile(t, testServer.URL, "file", "notes.TXT", content)

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected status code %d, got %d", http.StatusOK, resp.StatusCode)
	}
	if !result.Success {
		t.Fatalf("Expected success, got %+v", result)
	}
	if result.Filename != "notes.TXT" {
		t.Errorf("Expected original filename, got %q", result.Filename)
	}
	if result.Size != int64(len(content)) {
		t.Errorf("Expected size %d, got %d", len(content), result.Size)
	}
	if !strings.HasPrefix(result.FileURL, "/uploads/file-") || !strings.HasSuffix(result.FileURL, ".TXT") {
		t.Errorf("Unexpected file URL %q", result.FileURL)
	}

	stored, err := os.ReadFile(filepath.Join(uploadDir, strings.TrimPrefix(result.FileURL, "/uploads/")))
	if err != nil {
		t.Fatalf("Stored file missing: %v", err)
	}
	if !bytes.Equal(stored, content) {
		t.Errorf("Stored content mismatch: %q", stored)
	}

	get, err := http.Get(testServer.URL + result.FileURL)
	if err != nil {
		t.Fatalf("Failed to fetch upload: %v", err)
	}
	defer get.Body.Close()
	served, _ := io.ReadAll(get.Body)
	if get.StatusCode != http.StatusOK || !bytes.Equal(served, content) {
		t.Errorf("Expected uploaded bytes to be served, got %d %q", get.StatusCode, served)
	}
}

// TestUploadedFilesAreServedSafely verifies that uploaded markup is served as
// a download while raster images stay viewable inline.
func TestUploadedFilesAreServedSafely(t *testing.T) {
	_, testServer := newTestServer(t, nil)

	tests := []struct {
		name            string
		filename        string
		content         []byte
		wantType        string
		wantDisposition string
	}{
		{"html", "evil.html", []byte("<script>alert(1)</script>"), "application/octet-stream", "attachment"},
		{"svg", "logo.svg", []byte(`<svg xmlns="http://www.w3.org/2000/svg"><script>alert(1)</script></svg>`), "application/octet-stream", "attachment"},
		{"no extension", "README", []byte("<html>hi</html>"), "application/octet-stream", "attachment"},
		{"png", "photo.PNG", []byte("\x89PNG\r\n\x1a\n"), "image/png", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, result := postFile(t, testServer.URL, "file", tt.filename, tt.content)
			if !result.Success {
				t.Fatalf("Expected upload to succeed, got %+v", result)
			}

			resp, err := http.Get(testServer.URL + result.FileURL)
			if err != nil {
				t.Fatalf("Failed to fetch upload: %v", err)
			}
			defer resp.Body.Close()

			if resp.StatusCode != http.StatusOK {
				t.Fatalf("Expected status code %d, got %d", http.StatusOK, resp.StatusCode)
			}
			if got := resp.Header.Get("Content-Type"); got != tt.wantType {
				t.Errorf("Expected Content-Type %q, got %q", tt.wantType, got)
			}
			if got := resp.Header.Get("Content-Disposition"); got != tt.wantDisposition {
				t.Errorf("Expected Content-Disposition %q, got %q", tt.wantDisposition, got)
			}
			if got := resp.Header.Get("X-Content-Type-Options"); got != "nosniff" {
				t.Errorf("Expected nosniff, got %q", got)
			}
		})
	}
}

// TestUploadGeneratesDistinctNames verifies two uploads of the same file do
// not collide.
func TestUploadGeneratesDistinctNames(t *testing.T) {
	_, testServer := newTestServer(t, nil)

	_, first := postFile(t, testServer.URL, "file", "a.png", []byte("1"))
	_, second := postFile(t, testServer.URL, "file", "a.png", []byte("2"))

	if first.FileURL == second.FileURL {
		t.Errorf("Expected distinct file URLs, both were %q", first.FileURL)
	}
}

// TestUploadWithoutFile verifies the only user-visible failure path.
func TestUploadWithoutFile(t *testing.T) {
	_, testServer := newTestServer(t, nil)

	resp, result := postFile(t, testServer.URL, "", "", nil)

	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("Expected status code %d, got %d", http.StatusBadRequest, resp.StatusCode)
	}
	if result.Success || result.Message != "No file uploaded" {
		t.Errorf("Unexpected response %+v", result)
	}
}

// TestUploadTooLarge verifies the upload size limit.
func TestUploadTooLarge(t *testing.T) {
	_, testServer := newTestServer(t, func(cfg *server.Config) { cfg.MaxUploadSize = 1024 })

	resp, result := postFile(t, testServer.URL, "file", "big.bin", bytes.Repeat([]byte("x"), 8192))

	if resp.StatusCode != http.StatusRequestEntityTooLarge && resp.StatusCode != http.StatusBadRequest {
		t.Errorf("Expected upload to be rejected, got status %d", resp.StatusCode)
	}
	if result.Success {
		t.Errorf("Expected failure, got %+v", result)
	}
}

// TestUploadMethodNotAllowed verifies that only POST is accepted.
func TestUploadMethodNotAllowed(t *testing.T) {
	_, testServer := newTestServer(t, nil)

	resp, err := http.Get(testServer.URL + "/upload")
	if err != nil {
		t.Fatalf("Failed to make request: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Errorf("Expected status code %d, got %d", http.StatusMethodNotAllowed, resp.StatusCode)
	}
}

// TestUploadThenShareFile covers the full attachment flow: upload over
// HTTP, then announce the descriptor over the socket.
func TestUploadThenShareFile(t *testing.T) {
	srv, testServer := newTestServer(t, nil)
	conns := connectClients(t, srv, testServer.URL, 2)
	a, b := conns[0], conns[1]

	sendEvent(t, a, protocol.EventSetUsername, "alice")
	expectFrame(t, a, protocol.EventUpdateUsers, `{"roster":["alice"]}`)
	expectFrame(t, b, protocol.EventUserJoined, `{"username":"alice"}`)
	expectFrame(t, b, protocol.EventUpdateUsers, `{"roster":["alice"]}`)

	_, result := postFile(t, testServer.URL, "file", "cat.png", []byte("png"))
	notice := map[string]any{"url": result.FileURL, "filename": result.Filename, "size": result.Size}
	sendEvent(t, a, protocol.EventSendFile, notice)

	want, _ := json.Marshal(notice)
	expectFrame(t, b, protocol.EventReceiveFile, string(want))
	expectNoFrame(t, a, 200*time.Millisecond)
}
