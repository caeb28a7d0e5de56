package doc_list

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"chartview/internal/rasterizer"
)

// DocInfo is the sidecar metadata kept next to each document.
type DocInfo struct {
	ID               string `json:"id"`
	OriginalFilename string `json:"original_filename"`
	CurrentFilename  string `json:"current_filename"`
	Pages            int    `json:"pages"`
	PageWidth        int    `json:"page_width"`
	PageHeight       int    `json:"page_height"`
	Bytes            int64  `json:"bytes"`
}

// Scanner walks the data directory, migrates documents to UUID file names
// and maintains their JSON metadata.
type Scanner struct {
	dataDir string
	logger  *zap.Logger
	docs    []DocInfo
}

func New(dataDir string, logger *zap.Logger) *Scanner {
	return &Scanner{
		dataDir: dataDir,
		logger:  logger,
		docs:    []DocInfo{},
	}
}

func (s *Scanner) Scan() error {
	s.docs = []DocInfo{}

	extensions := map[string]bool{
		".pdf":  true,
		".xps":  true,
		".epub": true,
		".cbz":  true,
	}

	if err := s.cleanupOrphanedJSON(); err != nil {
		return err
	}

	entries, err := os.ReadDir(s.dataDir)
	if err != nil {
		return fmt.Errorf("failed to read data directory: %w", err)
	}

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		path := s.getFilePath(entry.Name())
		info, err := entry.Info()
		if err != nil {
			s.logger.Warn("Error getting file info", zap.String("path", path), zap.Error(err))
			continue
		}

		ext := strings.ToLower(filepath.Ext(path))
		if !extensions[ext] {
			continue
		}

		basename := strings.TrimSuffix(filepath.Base(path), ext)
		jsonPath := s.getFilePath(basename + ".json")

		var docInfo *DocInfo

		// If there is no metadata, we need to create it and rename the file
		if _, err := os.Stat(jsonPath); err != nil {
			newUUID := uuid.New().String()
			finalPath := s.getFilePath(newUUID + ext)
			if err := os.Rename(path, finalPath); err != nil {
				s.logger.Warn("Failed to rename file", zap.String("old_path", path), zap.String("new_path", finalPath), zap.Error(err))
				continue
			}
			s.logger.Info("Migrated file to UUID", zap.String("old_path", path), zap.String("new_path", finalPath))

			docInfo, err = s.scanDocument(finalPath, info)
			if err != nil {
				s.logger.Warn("Failed to scan document", zap.String("path", finalPath), zap.Error(err))
				continue
			}

			docInfo.ID = newUUID
			docInfo.OriginalFilename = filepath.Base(path)
			docInfo.CurrentFilename = filepath.Base(finalPath)

			jsonPath = s.getFilePath(newUUID + ".json")
			if err := s.saveMetadata(jsonPath, docInfo); err != nil {
				s.logger.Warn("Failed to save metadata", zap.String("json_path", jsonPath), zap.Error(err))
			} else {
				s.logger.Info("Created metadata file", zap.String("json_path", jsonPath))
			}
		} else {
			// Metadata exists, load it
			docInfo, err = s.loadMetadata(jsonPath)
			if err != nil {
				s.logger.Warn("Failed to load metadata, skipping", zap.String("json_path", jsonPath), zap.Error(err))
				continue
			}
		}
		s.docs = append(s.docs, *docInfo)
	}

	return nil
}

func (s *Scanner) cleanupOrphanedJSON() error {
	entries, err := os.ReadDir(s.dataDir)
	if err != nil {
		return fmt.Errorf("failed to read data directory: %w", err)
	}

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		path := s.getFilePath(entry.Name())
		if strings.ToLower(filepath.Ext(path)) != ".json" {
			continue
		}

		basename := strings.TrimSuffix(filepath.Base(path), ".json")

		meta, err := s.loadMetadata(path)
		if err != nil {
			if err := os.Remove(path); err != nil {
				s.logger.Warn("Failed to delete invalid JSON", zap.String("path", path), zap.Error(err))
			} else {
				s.logger.Info("Deleted invalid JSON file", zap.String("path", path))
			}
			continue
		}

		// Validate that ID in JSON matches filename
		if meta.ID != basename {
			s.logger.Warn("UUID mismatch in JSON",
				zap.String("json_path", path),
				zap.String("filename_uuid", basename),
				zap.String("json_uuid", meta.ID))
			if err := os.Remove(path); err != nil {
				s.logger.Warn("Failed to delete invalid JSON", zap.String("path", path), zap.Error(err))
			} else {
				s.logger.Info("Deleted JSON with UUID mismatch", zap.String("path", path))
			}
			continue
		}

		docPath := s.getFilePath(meta.CurrentFilename)
		if _, err := os.Stat(docPath); err != nil {
			if err := os.Remove(path); err != nil {
				s.logger.Warn("Failed to delete orphaned JSON", zap.String("path", path), zap.Error(err))
			} else {
				s.logger.Info("Deleted orphaned JSON file", zap.String("path", path))
			}
		}
	}

	return nil
}

// scanDocument probes page count and base page geometry (zoom 0).
func (s *Scanner) scanDocument(path string, info os.FileInfo) (*DocInfo, error) {
	raster, err := rasterizer.New(path, s.logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open document: %w", err)
	}
	defer raster.Close()

	pages := raster.PageCount()
	if pages == 0 {
		return nil, fmt.Errorf("document has no pages")
	}

	width, err := raster.PageWidth(0, 0)
	if err != nil {
		return nil, err
	}
	height, err := raster.PageHeight(0, 0)
	if err != nil {
		return nil, err
	}

	return &DocInfo{
		ID:         uuid.New().String(),
		Pages:      pages,
		PageWidth:  width,
		PageHeight: height,
		Bytes:      info.Size(),
	}, nil
}

func (s *Scanner) GetDocuments() []DocInfo {
	return s.docs
}

func (s *Scanner) GetDocumentByID(id string) *DocInfo {
	for _, doc := range s.docs {
		if doc.ID == id {
			return &doc
		}
	}
	return nil
}

func (s *Scanner) GetDocumentPathByID(id string) string {
	docInfo := s.GetDocumentByID(id)
	if docInfo == nil {
		return ""
	}
	return s.getFilePath(docInfo.CurrentFilename)
}

func (s *Scanner) getFilePath(filename string) string {
	return filepath.Join(s.dataDir, filename)
}

func (s *Scanner) loadMetadata(path string) (*DocInfo, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var meta DocInfo
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, fmt.Errorf("failed to parse metadata: %w", err)
	}

	return &meta, nil
}

func (s *Scanner) saveMetadata(path string, meta *DocInfo) error {
	data, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write metadata: %w", err)
	}

	return nil
}
