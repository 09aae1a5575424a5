package cardsource

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"

	"taskrank/internal/domain"
)

// FileSource reads cards from a JSON array on disk, in the ExternalCard shape.
type FileSource struct {
	path string
	info SourceInfo
}

// NewFileSource creates a file-backed source. The file must exist.
func NewFileSource(path string) (*FileSource, error) {
	if path == "" {
		return nil, fmt.Errorf("%w: jsonfile requires 'path' parameter", ErrInvalidConfig)
	}
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return &FileSource{
		path: path,
		info: SourceInfo{
			Type:        SourceTypeJSONFile,
			Name:        "JSON file",
			Description: fmt.Sprintf("Cards read from %s", path),
			Config:      map[string]string{"path": path},
		},
	}, nil
}

func (f *FileSource) Info() SourceInfo {
	return f.info
}

// CheckIdentity reports unreachable when the file can no longer be read.
func (f *FileSource) CheckIdentity(ctx context.Context) (Identity, error) {
	if _, err := os.Stat(f.path); err != nil {
		return Identity{Status: IdentityUnreachable, Detail: err.Error()}, nil
	}
	return Identity{Status: IdentityOK, Username: f.path}, nil
}

func (f *FileSource) ListCards(ctx context.Context) ([]domain.ExternalCard, error) {
	data, err := os.ReadFile(f.path)
	if err != nil {
		return nil, err
	}
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || trimmed[0] != '[' {
		return nil, ErrMalformedResponse
	}
	var cards []domain.ExternalCard
	if err := json.Unmarshal(trimmed, &cards); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	return cards, nil
}

func (f *FileSource) Close() error {
	return nil
}
