package services

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/markdave123-py/AgroIntelX/internal/core"
)

const pdfContentType = "application/pdf"

// ArchivedDocument points at an uploaded soil report in object storage.
type ArchivedDocument struct {
	URL string
	Key string
}

type ArchiveService struct {
	storage core.ObjectClient
	bucket  string
	logger  *zap.Logger
}

func NewArchiveService(storage core.ObjectClient, bucket string, logger *zap.Logger) *ArchiveService {
	return &ArchiveService{storage: storage, bucket: bucket, logger: logger.Named("archive")}
}

// Archive uploads the local file and removes it afterwards, whether or not the
// upload succeeded.
func (s *ArchiveService) Archive(ctx context.Context, userID, localPath, fileName string) (*ArchivedDocument, error) {
	defer s.removeLocal(localPath)

	f, err := os.Open(localPath)
	if err != nil {
		return nil, fmt.Errorf("open upload: %w", err)
	}
	defer f.Close()

	key := s.objectKey(userID, uuid.NewString(), fileName)
	url, err := s.storage.UploadFile(ctx, s.bucket, key, f, pdfContentType)
	if err != nil {
		return nil, fmt.Errorf("archive report: %w", err)
	}

	s.logger.Info("Soil report archived", zap.String("user_id", userID), zap.String("key", key))
	return &ArchivedDocument{URL: url, Key: key}, nil
}

// Discard deletes an archived object. Failures are logged only.
func (s *ArchiveService) Discard(ctx context.Context, key string) {
	if err := s.storage.DeleteFile(ctx, s.bucket, key); err != nil {
		s.logger.Warn("Failed to discard archived report", zap.String("key", key), zap.Error(err))
	}
}

func (s *ArchiveService) removeLocal(localPath string) {
	if err := os.Remove(localPath); err != nil && !os.IsNotExist(err) {
		s.logger.Warn("Failed to remove temporary upload", zap.String("path", localPath), zap.Error(err))
	}
}

// objectKey creates a consistent S3 key layout.
func (s *ArchiveService) objectKey(userID, docID, filename string) string {
	filename = strings.TrimSpace(filepath.Base(filename))
	filename = strings.ReplaceAll(filename, " ", "_")
	if filename == "" || filename == "." || filename == string(filepath.Separator) {
		filename = "report.pdf"
	}
	return path.Join("users", userID, "soil-reports", docID, filename)
}
