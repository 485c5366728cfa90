package excel

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"grading-assistant-core/internal/logger"
	"grading-assistant-core/internal/model"
	"grading-assistant-core/internal/storage"
	"grading-assistant-core/internal/store"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Importer appends the rows of a grading sheet to the local record store.
type Importer struct {
	records *store.Records
	storage storage.Storage
	prefix  string
	log     zerolog.Logger
	now     func() time.Time
}

// NewImporter builds an importer. st may be nil when sheets are only read
// from disk.
func NewImporter(records *store.Records, st storage.Storage, prefix string) *Importer {
	return &Importer{
		records: records,
		storage: st,
		prefix:  prefix,
		log:     logger.Component("excel_importer"),
		now:     time.Now,
	}
}

func (im *Importer) ImportFile(ctx context.Context, path string) ([]model.GradingRecord, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return im.Import(ctx, data, path)
}

// ImportObject downloads a sheet from blob storage and imports it.
func (im *Importer) ImportObject(ctx context.Context, key string) ([]model.GradingRecord, error) {
	if im.storage == nil {
		return nil, fmt.Errorf("no blob storage configured")
	}

	objectKey := im.prefix + key
	im.log.Debug().Str("key", objectKey).Msg("Downloading sheet")
	reader, err := im.storage.Download(ctx, objectKey)
	if err != nil {
		return nil, fmt.Errorf("failed to download %s: %w", objectKey, err)
	}
	defer reader.Close()

	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", objectKey, err)
	}
	return im.Import(ctx, data, objectKey)
}

// Import parses, validates and appends in one store write. Rows without a
// timestamp are spaced one second apart so they never share a duplicate
// bucket.
func (im *Importer) Import(ctx context.Context, data []byte, source string) ([]model.GradingRecord, error) {
	log := im.log.With().Str("source", source).Logger()

	strategy, err := StrategyFor(source)
	if err != nil {
		log.Error().Err(err).Msg("Unsupported sheet format")
		return nil, err
	}

	records, err := strategy.Parse(ctx, data)
	if err != nil {
		log.Error().Err(err).Msg("Failed to parse sheet")
		return nil, err
	}

	base := im.now().UnixMilli()
	for i := range records {
		records[i].ID = uuid.NewString()
		if records[i].Timestamp == 0 {
			records[i].Timestamp = base + int64(i)*1000
		}
	}

	if err := strategy.Validate(ctx, records); err != nil {
		log.Error().Err(err).Msg("Sheet validation failed")
		return nil, err
	}

	added, err := im.records.Append(ctx, records...)
	if err != nil {
		log.Error().Err(err).Msg("Failed to store imported records")
		return nil, err
	}

	log.Info().Int("record_count", len(added)).Msg("Sheet imported")
	return added, nil
}
