package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/societynet/societychat/internal/messages"
)

// Storage is the blob collaborator: it accepts raw attachment bytes and hands
// back the descriptor the chat core stores. Blobs live on local disk under a
// date-partitioned layout.
type Storage struct {
	basePath    string
	baseURL     string
	maxFileSize int64
	logger      *zap.Logger
}

type FileInfo struct {
	URL      string `json:"url"`
	Kind     string `json:"kind"`
	FileName string `json:"fileName"`
	Size     int64  `json:"size"`
}

func New(basePath, baseURL string, maxFileSize int64, logger *zap.Logger) (*Storage, error) {
	if err := os.MkdirAll(basePath, 0755); err != nil {
		return nil, fmt.Errorf("create storage directory: %w", err)
	}

	return &Storage{
		basePath:    basePath,
		baseURL:     baseURL,
		maxFileSize: maxFileSize,
		logger:      logger,
	}, nil
}

func (s *Storage) Store(ctx context.Context, reader io.Reader, filename string) (*FileInfo, error) {
	limitedReader := io.LimitReader(reader, s.maxFileSize+1)
	data, err := io.ReadAll(limitedReader)
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}

	if int64(len(data)) > s.maxFileSize {
		return nil, fmt.Errorf("file too large (max %d bytes)", s.maxFileSize)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("empty file")
	}

	kind := KindOf(mimetype.Detect(data).String())

	id := uuid.New().String()
	ext := filepath.Ext(filename)
	storedFilename := id + ext

	datePath := time.Now().Format("2006/01/02")
	fullDir := filepath.Join(s.basePath, datePath)
	if err := os.MkdirAll(fullDir, 0755); err != nil {
		return nil, fmt.Errorf("create date directory: %w", err)
	}

	fullPath := filepath.Join(fullDir, storedFilename)
	if err := os.WriteFile(fullPath, data, 0644); err != nil {
		return nil, fmt.Errorf("write file: %w", err)
	}

	relativePath := filepath.ToSlash(filepath.Join(datePath, storedFilename))
	url := fmt.Sprintf("%s/%s", strings.TrimSuffix(s.baseURL, "/"), relativePath)

	info := &FileInfo{
		URL:      url,
		Kind:     kind,
		FileName: filename,
		Size:     int64(len(data)),
	}

	s.logger.Info("stored attachment",
		zap.String("id", id),
		zap.String("filename", filename),
		zap.String("kind", kind),
		zap.Int64("size", info.Size),
	)

	return info, nil
}

func (s *Storage) Open(ctx context.Context, path string) (io.ReadCloser, error) {
	fullPath := filepath.Join(s.basePath, filepath.Clean("/"+path))

	info, err := os.Stat(fullPath)
	if err != nil {
		return nil, fmt.Errorf("file not found: %w", err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("path is a directory")
	}

	return os.Open(fullPath)
}

// KindOf maps a sniffed MIME type onto the attachment kinds the chat core
// understands.
func KindOf(mimeType string) string {
	switch {
	case strings.HasPrefix(mimeType, "image/"):
		return messages.KindImage
	case strings.HasPrefix(mimeType, "video/"):
		return messages.KindVideo
	case strings.HasPrefix(mimeType, "audio/"):
		return messages.KindAudio
	default:
		return messages.KindFile
	}
}
