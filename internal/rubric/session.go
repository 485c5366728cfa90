package rubric

import (
	stderrors "errors"
	"sync"

	"grading-assistant-core/pkg/errors"
)

// Session is one edit of one document. The variant found when the session
// opens is used for every save, even if an edit would make another location
// look richer.
type Session struct {
	mu       sync.Mutex
	defaults Defaults
	variant  Variant
	doc      string
	result   Result
}

func Open(raw string, defaults Defaults) *Session {
	res := Normalize(raw, defaults)
	return &Session{
		defaults: defaults,
		variant:  res.Variant,
		doc:      raw,
		result:   res,
	}
}

func (s *Session) Variant() Variant {
	return s.variant
}

func (s *Session) Result() Result {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.result
}

// Document returns the current document text.
func (s *Session) Document() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.doc
}

// Editable reports whether Save can write structured edits.
func (s *Session) Editable() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.result.ParseFailed() && s.variant.Editable()
}

// Save writes points into the pinned variant and returns the new document.
// On error the document is left as it was.
func (s *Session) Save(points []Point) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	next, err := Reserialize(s.doc, points, s.variant)
	if err != nil {
		return s.doc, err
	}
	s.doc = next

	res := Normalize(next, s.defaults)
	res.Variant = s.variant
	if s.variant == VariantSegments {
		res.ReadOnlyReason = segmentedReadOnlyReason
	}
	s.result = res
	return next, nil
}

// IsReadOnly reports whether err means the document cannot take structured
// edits and should be edited as raw text instead.
func IsReadOnly(err error) bool {
	var parseErr errors.ParseError
	return stderrors.Is(err, errors.ErrReadOnlyVariant) || stderrors.As(err, &parseErr)
}
