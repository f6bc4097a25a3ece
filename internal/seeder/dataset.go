package seeder

import (
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/xeipuuv/gojsonschema"

	"github.com/developer-mesh/academic-helper/internal/models"
)

// datasetSchema checks structure and field types only. Required fields are
// checked per record so one bad entry does not reject the whole file.
//
//go:embed schema/dataset.schema.json
var datasetSchema []byte

var (
	// ErrDatasetNotFound means the dataset file does not exist
	ErrDatasetNotFound = errors.New("dataset file not found")

	// ErrInvalidDataset means the file is not a well-formed dataset
	ErrInvalidDataset = errors.New("invalid dataset")
)

// LoadDataset reads and validates a JSON array of source records
func LoadDataset(path string) ([]models.RawSourceRecord, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrDatasetNotFound, path)
		}
		return nil, fmt.Errorf("failed to read dataset: %w", err)
	}
	return ParseDataset(data)
}

// ParseDataset validates data against the dataset schema and decodes it
func ParseDataset(data []byte) ([]models.RawSourceRecord, error) {
	result, err := gojsonschema.Validate(
		gojsonschema.NewBytesLoader(datasetSchema),
		gojsonschema.NewBytesLoader(data),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidDataset, err)
	}
	if !result.Valid() {
		msgs := make([]string, 0, len(result.Errors()))
		for _, e := range result.Errors() {
			msgs = append(msgs, e.String())
		}
		return nil, fmt.Errorf("%w: %s", ErrInvalidDataset, strings.Join(msgs, "; "))
	}

	var records []models.RawSourceRecord
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidDataset, err)
	}
	return records, nil
}
