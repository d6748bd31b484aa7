package schema

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hollyoak/citysignal/internal/domain"
)

func TestPostAdapter_MatchesKeyword(t *testing.T) {
	adapter := NewPostAdapter([]string{"power", "gas"}, nil, nyLoc(t))

	rec, err := adapter.Normalize(map[string]string{
		"created_at": "Mon Oct 29 20:15:00 -0400 2012",
		"text":       "No POWER in lower manhattan since 8pm",
		"lat":        "40.71",
		"lon":        "-74.01",
	})
	require.NoError(t, err)

	assert.Equal(t, domain.DatasetPosts, rec.Dataset)
	assert.Equal(t, "power", rec.Category, "matching is case-insensitive")
	assert.True(t, rec.HasCoords)
	assert.Equal(t, 1.0, rec.Measure)
	// 20:15 EDT is 00:15 UTC the next day.
	assert.Equal(t, time.Date(2012, time.October, 30, 0, 15, 0, 0, time.UTC), rec.Timestamp)
}

func TestPostAdapter_FirstKeywordInConfigOrderWins(t *testing.T) {
	adapter := NewPostAdapter([]string{"gas", "power"}, nil, time.UTC)

	rec, err := adapter.Normalize(map[string]string{
		"created_at": "2012-10-30 08:00:00",
		"text":       "power out and gas lines around the block",
	})
	require.NoError(t, err)
	assert.Equal(t, "gas", rec.Category)
}

func TestPostAdapter_HashtagFallback(t *testing.T) {
	adapter := NewPostAdapter([]string{"power"}, []string{"sandy"}, time.UTC)

	rec, err := adapter.Normalize(map[string]string{
		"created_at": "2012-10-30 08:00:00",
		"text":       "stay safe everyone",
		"hashtags":   "NYC, #Sandy",
	})
	require.NoError(t, err)
	assert.Equal(t, "#sandy", rec.Category)
}

func TestPostAdapter_KeywordBeatsHashtag(t *testing.T) {
	adapter := NewPostAdapter([]string{"power"}, []string{"sandy"}, time.UTC)

	rec, err := adapter.Normalize(map[string]string{
		"created_at": "2012-10-30 08:00:00",
		"text":       "power flickering again",
		"hashtags":   "sandy",
	})
	require.NoError(t, err)
	assert.Equal(t, "power", rec.Category)
}

func TestPostAdapter_NoMatchIsCountedDrop(t *testing.T) {
	adapter := NewPostAdapter([]string{"power"}, []string{"sandy"}, time.UTC)

	_, err := adapter.Normalize(map[string]string{
		"created_at": "2012-10-30 08:00:00",
		"text":       "lovely weather today",
	})
	var schemaErr *domain.SchemaError
	require.ErrorAs(t, err, &schemaErr)
	assert.Equal(t, domain.DropNoKeywordMatch, schemaErr.Reason)
}

func TestPostAdapter_KeywordMustBeWholeToken(t *testing.T) {
	adapter := NewPostAdapter([]string{"gas"}, nil, time.UTC)

	_, err := adapter.Normalize(map[string]string{
		"created_at": "2012-10-30 08:00:00",
		"text":       "gaslight district is fine",
	})
	var schemaErr *domain.SchemaError
	require.ErrorAs(t, err, &schemaErr)
	assert.Equal(t, domain.DropNoKeywordMatch, schemaErr.Reason)
}

func TestPostAdapter_SeparateDateTimeFields(t *testing.T) {
	adapter := NewPostAdapter([]string{"flood"}, nil, time.UTC)

	rec, err := adapter.Normalize(map[string]string{
		"date": "2012-10-29",
		"time": "23:45:00",
		"text": "flood waters rising",
	})
	require.NoError(t, err)
	assert.Equal(t, time.Date(2012, time.October, 29, 23, 45, 0, 0, time.UTC), rec.Timestamp)
}

func TestPostAdapter_MissingFields(t *testing.T) {
	adapter := NewPostAdapter([]string{"power"}, nil, time.UTC)

	_, err := adapter.Normalize(map[string]string{"text": "power out"})
	var schemaErr *domain.SchemaError
	require.ErrorAs(t, err, &schemaErr)
	assert.Equal(t, "timestamp", schemaErr.Field)

	_, err = adapter.Normalize(map[string]string{"created_at": "2012-10-30 08:00:00"})
	require.ErrorAs(t, err, &schemaErr)
	assert.Equal(t, "text", schemaErr.Field)
	assert.Equal(t, "missing", schemaErr.Reason)
}

func TestPostAdapter_PostWithoutCoordsKept(t *testing.T) {
	adapter := NewPostAdapter([]string{"power"}, nil, time.UTC)

	rec, err := adapter.Normalize(map[string]string{
		"created_at": "2012-10-30 08:00:00",
		"text":       "power out in queens",
	})
	require.NoError(t, err)
	assert.False(t, rec.HasCoords)
}

// Two coordless posts in the same second matching the same keyword must not
// collapse to one record; the source document ID keeps them apart.
func TestPostAdapter_SameSecondPostsGetDistinctIDs(t *testing.T) {
	adapter := NewPostAdapter([]string{"power"}, nil, time.UTC)

	first, err := adapter.Normalize(map[string]string{
		"id":         "263045728401031168",
		"created_at": "2012-10-30 08:00:00",
		"text":       "power out in queens",
	})
	require.NoError(t, err)

	second, err := adapter.Normalize(map[string]string{
		"id":         "263045728401031169",
		"created_at": "2012-10-30 08:00:00",
		"text":       "still no power in astoria",
	})
	require.NoError(t, err)

	assert.NotEqual(t, first.ID, second.ID)
}
