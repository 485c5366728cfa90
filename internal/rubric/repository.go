package rubric

import (
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"strings"

	"grading-assistant-core/internal/logger"
	"grading-assistant-core/internal/storage"
	"grading-assistant-core/pkg/errors"

	"github.com/rs/zerolog"
)

// Key builds the storage key of a rubric: the question key alone, or
// prefixed by scope parts such as platform and course.
func Key(questionKey string, scope ...string) string {
	parts := make([]string, 0, len(scope)+1)
	for _, s := range scope {
		if s = strings.TrimSpace(s); s != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(append(parts, strings.TrimSpace(questionKey)), ":")
}

// Repository stores rubric documents as JSON text in blob storage.
type Repository struct {
	storage storage.Storage
	prefix  string
	log     zerolog.Logger
}

func NewRepository(st storage.Storage, prefix string) *Repository {
	return &Repository{
		storage: st,
		prefix:  prefix,
		log:     logger.Component("rubric_repository"),
	}
}

func (r *Repository) objectKey(key string) string {
	return r.prefix + key + ".json"
}

// Load returns the raw document text stored under key.
func (r *Repository) Load(ctx context.Context, key string) (string, error) {
	rc, err := r.storage.Download(ctx, r.objectKey(key))
	if err != nil {
		if stderrors.Is(err, storage.ErrNotFound) {
			return "", fmt.Errorf("%w: %s", errors.ErrRubricNotFound, key)
		}
		return "", fmt.Errorf("failed to load rubric %s: %w", key, err)
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return "", fmt.Errorf("failed to read rubric %s: %w", key, err)
	}
	return string(data), nil
}

// Save stores doc verbatim, including text that does not parse.
func (r *Repository) Save(ctx context.Context, key, doc string) error {
	if err := r.storage.Upload(ctx, r.objectKey(key), strings.NewReader(doc)); err != nil {
		return fmt.Errorf("failed to save rubric %s: %w", key, err)
	}
	r.log.Debug().Str("rubric_key", key).Int("bytes", len(doc)).Msg("Rubric saved")
	return nil
}

func (r *Repository) Delete(ctx context.Context, key string) error {
	return r.storage.Delete(ctx, r.objectKey(key))
}

// Open loads a document and starts an edit session on it.
func (r *Repository) Open(ctx context.Context, key string, defaults Defaults) (*Session, error) {
	doc, err := r.Load(ctx, key)
	if err != nil {
		return nil, err
	}
	s := Open(doc, defaults)
	if res := s.Result(); res.ParseFailed() {
		r.log.Warn().Err(res.ParseError).Str("rubric_key", key).Msg("Rubric did not parse, using default preview")
	}
	return s, nil
}

// Commit saves the session's current document.
func (r *Repository) Commit(ctx context.Context, key string, s *Session) error {
	return r.Save(ctx, key, s.Document())
}
