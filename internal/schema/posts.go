package schema

import (
	"strings"
	"time"
	"unicode"

	"github.com/hollyoak/citysignal/internal/domain"
)

// PostsVersion is the registry key for social-media post documents.
const PostsVersion = "posts/v1"

// PostAdapter normalizes newline-delimited post documents. A post becomes a
// canonical record only when its text matches a configured keyword (token)
// or hashtag; the first matching keyword in configuration order is the
// record's category, so matching is deterministic.
type PostAdapter struct {
	keywords []string // lowercase tokens, checked in order
	hashtags []string // lowercase, without '#'
	loc      *time.Location
}

// NewPostAdapter builds an adapter for the given keyword and hashtag lists.
// loc is used for raw timestamps without an explicit offset.
func NewPostAdapter(keywords, hashtags []string, loc *time.Location) *PostAdapter {
	lower := func(in []string) []string {
		out := make([]string, len(in))
		for i, s := range in {
			out[i] = strings.ToLower(strings.TrimSpace(s))
		}
		return out
	}
	return &PostAdapter{keywords: lower(keywords), hashtags: lower(hashtags), loc: loc}
}

// Normalize converts one post document. Expected fields: "created_at" (or
// separate "date"/"time"), "text", optional "hashtags" (comma-separated),
// optional "lat"/"lon", optional "id" (source document ID). Posts matching
// no keyword fail with a no_keyword_match schema error so the drop is
// counted, not silent.
func (a *PostAdapter) Normalize(fields map[string]string) (domain.CanonicalRecord, error) {
	rawTS := fields["created_at"]
	if rawTS == "" {
		rawTS = joinDateTime(fields["date"], fields["time"])
	}
	ts, err := parseTimestamp(rawTS, a.loc)
	if err != nil {
		return domain.CanonicalRecord{}, err
	}

	text := fields["text"]
	if strings.TrimSpace(text) == "" {
		return domain.CanonicalRecord{}, &domain.SchemaError{Field: "text", Reason: "missing"}
	}

	category := a.match(text, fields["hashtags"])
	if category == "" {
		return domain.CanonicalRecord{}, &domain.SchemaError{Field: "text", Reason: domain.DropNoKeywordMatch}
	}

	lat, lon, ok, err := parseCoords(fields["lat"], fields["lon"])
	if err != nil {
		return domain.CanonicalRecord{}, err
	}

	rec := domain.CanonicalRecord{
		Dataset:   domain.DatasetPosts,
		Timestamp: ts,
		Category:  category,
		Lat:       lat,
		Lon:       lon,
		HasCoords: ok,
		Measure:   1,
	}
	// The source document ID discriminates same-second posts without
	// coordinates.
	rec.ID = domain.NewRecordID(rec.Dataset, rec.Category, rec.ZoneID, rec.Timestamp, rec.Lat, rec.Lon, rec.Measure,
		strings.TrimSpace(fields["id"]))
	return rec, nil
}

// match returns the first configured keyword found in the post's tokens, or
// failing that the first configured hashtag found in its hashtag list.
func (a *PostAdapter) match(text, hashtagField string) string {
	tokens := tokenize(text)
	for _, kw := range a.keywords {
		if _, ok := tokens[kw]; ok {
			return kw
		}
	}

	tags := make(map[string]struct{})
	for _, t := range strings.Split(hashtagField, ",") {
		t = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(t, "#")))
		if t != "" {
			tags[t] = struct{}{}
		}
	}
	for _, ht := range a.hashtags {
		if _, ok := tags[ht]; ok {
			return "#" + ht
		}
	}
	return ""
}

// tokenize lowercases and splits text on non-letter, non-digit runes.
// Leading '#' survives via the hashtag path instead.
func tokenize(text string) map[string]struct{} {
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	set := make(map[string]struct{}, len(words))
	for _, w := range words {
		set[w] = struct{}{}
	}
	return set
}
