package server

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/Tyrowin/relay/internal/logx"
)

const uploadField = "file"

// UploadHandler accepts one multipart file under the "file" field, stores it
// under a generated name in the upload directory, and replies with the URL
// clients pass along in a sendFile event.
func (s *Server) UploadHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		writeJSON(w, http.StatusMethodNotAllowed, uploadResponse{Message: "Method not allowed"})
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadSize)
	file, header, err := r.FormFile(uploadField)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeJSON(w, http.StatusRequestEntityTooLarge, uploadResponse{Message: "File too large"})
			return
		}
		writeJSON(w, http.StatusBadRequest, uploadResponse{Message: "No file uploaded"})
		return
	}
	defer file.Close()

	name := uploadName(header.Filename, time.Now())
	size, err := s.storeUpload(name, file)
	if err != nil {
		s.log.Error("store upload", logx.String("filename", header.Filename), logx.Err(err))
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeJSON(w, http.StatusRequestEntityTooLarge, uploadResponse{Message: "File too large"})
			return
		}
		writeJSON(w, http.StatusInternalServerError, uploadResponse{Message: "Upload failed"})
		return
	}

	s.log.Info("file uploaded",
		logx.String("filename", header.Filename),
		logx.String("stored_as", name),
		logx.Int64("size", size))

	writeJSON(w, http.StatusOK, uploadResponse{
		Success:  true,
		FileURL:  "/uploads/" + name,
		Filename: header.Filename,
		Size:     size,
	})
}

func (s *Server) storeUpload(name string, src io.Reader) (int64, error) {
	path := filepath.Join(s.cfg.UploadDir, name)
	dst, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return 0, fmt.Errorf("create %s: %w", name, err)
	}

	n, err := io.Copy(dst, src)
	if closeErr := dst.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		_ = os.Remove(path)
		return 0, fmt.Errorf("write %s: %w", name, err)
	}
	return n, nil
}

// uploadName builds a collision-resistant file name from the upload time and
// a random suffix, keeping the original extension.
func uploadName(original string, now time.Time) string {
	ext := filepath.Ext(filepath.Base(original))
	if strings.ContainsAny(ext, `/\ `) {
		ext = ""
	}
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
	return fmt.Sprintf("%s-%d-%s%s", uploadField, now.UnixMilli(), suffix, ext)
}
