package rubric

import (
	"context"
	stderrors "errors"
	"testing"

	"grading-assistant-core/internal/storage"
	"grading-assistant-core/pkg/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
)

const essayRubric = `{
  "title": "Essay",
  "gradingNotes": "Be lenient on spelling",
  "providerTrace": {"model": "x", "latencyMs": 120},
  "answerPoints": [
    {"id": "a1", "content": "Thesis stated", "score": 2, "keywords": ["thesis"], "rationale": "core"},
    {"id": "a2", "content": "Evidence", "score": 3, "keywords": "quote, source"}
  ],
  "metadata": {"title": "Essay", "totalScore": 4, "strategy": "holistic"},
  "totalScore": 4
}`

func TestNormalize_AnswerPoints(t *testing.T) {
	res := Normalize(essayRubric, Defaults{})

	require.False(t, res.ParseFailed())
	assert.Equal(t, VariantAnswerPoints, res.Variant)
	assert.Empty(t, res.ReadOnlyReason)
	require.Len(t, res.Points, 2)
	assert.Equal(t, Point{ID: "a1", Content: "Thesis stated", Score: 2, Keywords: []string{"thesis"}}, res.Points[0])
	assert.Equal(t, []string{"quote", "source"}, res.Points[1].Keywords)
	assert.Equal(t, 5.0, res.TotalScore)
	assert.Equal(t, 4.0, res.Metadata.TotalScore)
	assert.Equal(t, "holistic", res.Metadata.Strategy)
	assert.Equal(t, "Essay", res.Metadata.Title)
}

func TestRoundTrip_PreservesUnrelatedFields(t *testing.T) {
	res := Normalize(essayRubric, Defaults{})

	out, err := Reserialize(essayRubric, res.Points, res.Variant)
	require.NoError(t, err)

	for _, path := range []string{"gradingNotes", "providerTrace", "title", "metadata.strategy", "metadata.title"} {
		assert.Equal(t, gjson.Get(essayRubric, path).Raw, gjson.Get(out, path).Raw, path)
	}
	assert.Equal(t, "core", gjson.Get(out, "answerPoints.0.rationale").String())
	assert.Equal(t, gjson.String, gjson.Get(out, "answerPoints.1.keywords").Type)
	assert.Equal(t, 5.0, gjson.Get(out, "totalScore").Float())
	assert.Equal(t, 5.0, gjson.Get(out, "metadata.totalScore").Float())

	again := Normalize(out, Defaults{})
	assert.Equal(t, res.Points, again.Points)
}

func TestReserialize_EditedScoresRecomputeTotal(t *testing.T) {
	res := Normalize(essayRubric, Defaults{})
	points := res.Points
	points[0].Score = 4
	points = append(points, Point{ID: "a3", Content: "Conclusion", Score: 1})

	out, err := Reserialize(essayRubric, points, res.Variant)
	require.NoError(t, err)

	assert.Equal(t, 8.0, gjson.Get(out, "totalScore").Float())
	assert.Equal(t, 8.0, gjson.Get(out, "metadata.totalScore").Float())
	assert.Equal(t, 3.0, gjson.Get(out, "answerPoints.#").Float())
	assert.Equal(t, "core", gjson.Get(out, "answerPoints.0.rationale").String())
	assert.Equal(t, "[]", gjson.Get(out, "answerPoints.2.keywords").Raw)
}

func TestReserialize_ZeroTotalKeepsExistingTotals(t *testing.T) {
	doc := `{"answerPoints":[{"id":"a","content":"x","score":2}],"metadata":{"totalScore":8},"totalScore":8}`

	out, err := Reserialize(doc, []Point{{ID: "a", Content: "x", Score: 0}}, VariantAnswerPoints)
	require.NoError(t, err)

	assert.Equal(t, 8.0, gjson.Get(out, "totalScore").Float())
	assert.Equal(t, 8.0, gjson.Get(out, "metadata.totalScore").Float())
	assert.Equal(t, 0.0, gjson.Get(out, "answerPoints.0.score").Float())
}

func TestReserialize_KeepsContentKey(t *testing.T) {
	doc := `{"content":{"steps":[{"text":"Show working","score":"2"}]}}`

	res := Normalize(doc, Defaults{})
	require.Equal(t, VariantContentSteps, res.Variant)
	require.Len(t, res.Points, 1)
	assert.Equal(t, "p1", res.Points[0].ID)
	assert.Equal(t, 2.0, res.Points[0].Score)

	res.Points[0].Content = "Show all working"
	out, err := Reserialize(doc, res.Points, res.Variant)
	require.NoError(t, err)

	assert.Equal(t, "Show all working", gjson.Get(out, "content.steps.0.text").String())
	assert.False(t, gjson.Get(out, "content.steps.0.content").Exists())
	assert.False(t, gjson.Get(out, "answerPoints").Exists())
}

func TestNormalize_GeneratedIDsSkipExplicitOnes(t *testing.T) {
	doc := `{"answerPoints":[
    {"content":"A","score":1,"rubricNote":"for A"},
    {"id":"p1","content":"B","score":2},
    {"content":"C","score":1}
  ]}`

	res := Normalize(doc, Defaults{})
	require.Len(t, res.Points, 3)
	assert.Equal(t, "p2", res.Points[0].ID)
	assert.Equal(t, "p1", res.Points[1].ID)
	assert.Equal(t, "p3", res.Points[2].ID)

	res.Points[1].Score = 5
	out, err := Reserialize(doc, res.Points, res.Variant)
	require.NoError(t, err)

	assert.Equal(t, "for A", gjson.Get(out, "answerPoints.0.rubricNote").String())
	assert.Equal(t, "A", gjson.Get(out, "answerPoints.0.content").String())
	assert.Equal(t, "B", gjson.Get(out, "answerPoints.1.content").String())
	assert.Equal(t, 5.0, gjson.Get(out, "answerPoints.1.score").Float())
	assert.False(t, gjson.Get(out, "answerPoints.1.rubricNote").Exists())
	assert.Equal(t, 7.0, gjson.Get(out, "totalScore").Float())

	again := Normalize(out, Defaults{})
	assert.Equal(t, res.Points, again.Points)
}

func TestReserialize_WritesTextUnderKeyItWasReadFrom(t *testing.T) {
	doc := `{"answerPoints":[{"id":"a","content":"","text":"Uses units","score":1}]}`

	res := Normalize(doc, Defaults{})
	require.Len(t, res.Points, 1)
	assert.Equal(t, "Uses units", res.Points[0].Content)

	out, err := Reserialize(doc, res.Points, res.Variant)
	require.NoError(t, err)
	assert.Equal(t, "", gjson.Get(out, "answerPoints.0.content").String())
	assert.Equal(t, "Uses units", gjson.Get(out, "answerPoints.0.text").String())

	res.Points[0].Content = "Uses SI units"
	out, err = Reserialize(doc, res.Points, res.Variant)
	require.NoError(t, err)
	assert.Equal(t, "", gjson.Get(out, "answerPoints.0.content").String())
	assert.Equal(t, "Uses SI units", gjson.Get(out, "answerPoints.0.text").String())
}

func TestReserialize_NoneVariantWritesAnswerPoints(t *testing.T) {
	doc := `{"title":"Blank"}`

	out, err := Reserialize(doc, []Point{{ID: "n1", Content: "New point", Score: 1}}, VariantNone)
	require.NoError(t, err)

	assert.Equal(t, "Blank", gjson.Get(out, "title").String())
	assert.Equal(t, "n1", gjson.Get(out, "answerPoints.0.id").String())
	assert.Equal(t, 1.0, gjson.Get(out, "totalScore").Float())
}

func TestSegments_ReadOnly(t *testing.T) {
	doc := `{
  "content": {"segments": [
    {"label": "Part A", "points": [{"id": "s1", "content": "Defines terms", "score": 1}]},
    {"title": "Part B", "steps": [{"content": "Applies formula", "score": 2}]}
  ]},
  "answerPoints": [{"id": "z", "content": "ignored", "score": 9}]
}`

	res := Normalize(doc, Defaults{})
	assert.Equal(t, VariantSegments, res.Variant)
	assert.NotEmpty(t, res.ReadOnlyReason)
	require.Len(t, res.Points, 2)
	assert.Equal(t, "Part A", res.Points[0].QuestionSegment)
	assert.Equal(t, "p2", res.Points[1].ID)
	assert.Equal(t, "Part B", res.Points[1].QuestionSegment)
	assert.Equal(t, 3.0, res.TotalScore)

	out, err := Reserialize(doc, res.Points, res.Variant)
	assert.ErrorIs(t, err, errors.ErrReadOnlyVariant)
	assert.Equal(t, doc, out)
	assert.True(t, IsReadOnly(err))
}

func TestNormalize_ParseFailureFallsBackToDefaults(t *testing.T) {
	raw := `{"answerPoints": [ not json`
	res := Normalize(raw, Defaults{QuestionID: "Q9", Subject: "Math", Type: "essay", TotalScore: 10})

	assert.True(t, res.ParseFailed())
	assert.Empty(t, res.Points)
	assert.Equal(t, VariantNone, res.Variant)
	assert.Equal(t, raw, res.Raw)
	assert.Equal(t, "Q9", res.Metadata.QuestionID)
	assert.Equal(t, "Math", res.Metadata.Subject)
	assert.Equal(t, 10.0, res.TotalScore)

	_, err := Reserialize(raw, nil, VariantAnswerPoints)
	var parseErr errors.ParseError
	assert.True(t, stderrors.As(err, &parseErr))
	assert.True(t, IsReadOnly(err))
}

func TestNormalize_NonObjectIsParseFailure(t *testing.T) {
	res := Normalize(`[1,2,3]`, Defaults{})
	assert.True(t, res.ParseFailed())
}

func TestNormalize_TotalPriority(t *testing.T) {
	tests := []struct {
		name     string
		doc      string
		fallback float64
		want     float64
	}{
		{"point sum", `{"answerPoints":[{"content":"a","score":2},{"content":"b","score":1.5}],"totalScore":10}`, 20, 3.5},
		{"metadata total", `{"answerPoints":[{"content":"a"}],"metadata":{"totalScore":8},"totalScore":6}`, 20, 8},
		{"top-level total", `{"answerPoints":[{"content":"a"}],"totalScore":6}`, 20, 6},
		{"fallback", `{"answerPoints":[{"content":"a"}]}`, 20, 20},
		{"nothing", `{"title":"x"}`, 0, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := Normalize(tt.doc, Defaults{TotalScore: tt.fallback})
			assert.Equal(t, tt.want, res.TotalScore)
		})
	}
}

func TestDetect_Order(t *testing.T) {
	tests := []struct {
		name string
		doc  string
		want Variant
	}{
		{"answerPoints beats content", `{"answerPoints":[{"content":"a"}],"content":{"points":[{"content":"b"}]}}`, VariantAnswerPoints},
		{"points beat steps", `{"content":{"steps":[{"content":"a"}],"points":[{"content":"b"}]}}`, VariantContentPoints},
		{"empty array skipped", `{"answerPoints":[],"content":{"steps":[{"content":"a"}]}}`, VariantContentSteps},
		{"none", `{"content":{"points":[]}}`, VariantNone},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Normalize(tt.doc, Defaults{}).Variant)
		})
	}
}

func TestNormalize_LenientPoints(t *testing.T) {
	doc := `{"answerPoints":[
    {"description":"From description","score":"1.5","keywords":"a; b"},
    {"id":"x","score":3},
    "Plain string point",
    42
  ]}`

	res := Normalize(doc, Defaults{})
	require.Len(t, res.Points, 2)
	assert.Equal(t, Point{ID: "p1", Content: "From description", Score: 1.5, Keywords: []string{"a", "b"}}, res.Points[0])
	assert.Equal(t, Point{ID: "p3", Content: "Plain string point", Keywords: []string{}}, res.Points[1])
}

func TestSession_PinsVariant(t *testing.T) {
	doc := `{"title":"Blank"}`
	s := Open(doc, Defaults{})
	require.Equal(t, VariantNone, s.Variant())
	assert.True(t, s.Editable())

	_, err := s.Save([]Point{{ID: "n1", Content: "First", Score: 2}})
	require.NoError(t, err)
	assert.Equal(t, VariantNone, s.Variant())
	assert.Equal(t, VariantNone, s.Result().Variant)
	require.Len(t, s.Result().Points, 1)

	out, err := s.Save([]Point{{ID: "n1", Content: "First", Score: 3}})
	require.NoError(t, err)
	assert.Equal(t, 3.0, gjson.Get(out, "totalScore").Float())
	assert.Equal(t, out, s.Document())
}

func TestSession_ParseFailureIsNotEditable(t *testing.T) {
	s := Open("garbage", Defaults{})
	assert.False(t, s.Editable())

	out, err := s.Save([]Point{{ID: "a", Content: "x", Score: 1}})
	assert.Error(t, err)
	assert.Equal(t, "garbage", out)
}

func TestKey(t *testing.T) {
	assert.Equal(t, "Q1", Key("Q1"))
	assert.Equal(t, "moodle:c42:Q1", Key("Q1", "moodle", "c42"))
	assert.Equal(t, "moodle:Q1", Key("Q1", "moodle", " "))
}

func TestRepository(t *testing.T) {
	ctx := context.Background()
	repo := NewRepository(storage.NewMemoryStorage(), "rubrics/")

	_, err := repo.Load(ctx, "Q1")
	assert.ErrorIs(t, err, errors.ErrRubricNotFound)

	require.NoError(t, repo.Save(ctx, "Q1", essayRubric))

	s, err := repo.Open(ctx, "Q1", Defaults{})
	require.NoError(t, err)
	points := s.Result().Points
	points[1].Score = 5
	_, err = s.Save(points)
	require.NoError(t, err)
	require.NoError(t, repo.Commit(ctx, "Q1", s))

	doc, err := repo.Load(ctx, "Q1")
	require.NoError(t, err)
	assert.Equal(t, 7.0, gjson.Get(doc, "totalScore").Float())
	assert.Equal(t, "Be lenient on spelling", gjson.Get(doc, "gradingNotes").String())

	require.NoError(t, repo.Save(ctx, "broken", "not json"))
	s, err = repo.Open(ctx, "broken", Defaults{QuestionID: "broken"})
	require.NoError(t, err)
	assert.True(t, s.Result().ParseFailed())

	require.NoError(t, repo.Delete(ctx, "Q1"))
	_, err = repo.Load(ctx, "Q1")
	assert.ErrorIs(t, err, errors.ErrRubricNotFound)
}
