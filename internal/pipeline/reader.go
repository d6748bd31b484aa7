package pipeline

import (
	"bufio"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/hollyoak/citysignal/internal/domain"
	"github.com/hollyoak/citysignal/internal/schema"
)

// Source describes one raw file: its dataset and the schema version tag
// inferred from the filename.
type Source struct {
	Path    string
	Dataset domain.Dataset
	Version string
	// Year/Month are set for taxi files, whose layout and valid timestamp
	// range depend on the file's month.
	Year  int
	Month int
}

var (
	taxiFileRe = regexp.MustCompile(`^(?:fhv|green|yellow)_tripdata_(\d{4})-(\d{2})\.csv$`)
	loadFileRe = regexp.MustCompile(`palIntegrated.*\.csv$|(?:^|_)load[_-].*\.csv$`)
	postFileRe = regexp.MustCompile(`\.(?:ndjson|jsonl)$|^posts.*\.json$`)
)

// DetectSource infers the dataset and schema version from a filename, the
// only reliable version indicator the raw archives carry.
func DetectSource(path string) (Source, error) {
	name := filepath.Base(path)

	if m := taxiFileRe.FindStringSubmatch(name); m != nil {
		year, _ := strconv.Atoi(m[1])
		month, _ := strconv.Atoi(m[2])
		return Source{
			Path:    path,
			Dataset: domain.DatasetTaxi,
			Version: schema.TaxiVersion(year, month),
			Year:    year,
			Month:   month,
		}, nil
	}
	if loadFileRe.MatchString(name) {
		return Source{Path: path, Dataset: domain.DatasetLoad, Version: schema.LoadVersion}, nil
	}
	if postFileRe.MatchString(name) {
		return Source{Path: path, Dataset: domain.DatasetPosts, Version: schema.PostsVersion}, nil
	}
	return Source{}, fmt.Errorf("pipeline: cannot infer dataset from filename %q", name)
}

// rowFunc receives one raw row. Returning an error aborts the read.
type rowFunc func(fields map[string]string) error

// readRows streams a source file row by row: CSV with a header row for taxi
// and load files, newline-delimited JSON documents for posts.
func readRows(src Source, fn rowFunc) error {
	f, err := os.Open(src.Path)
	if err != nil {
		return fmt.Errorf("pipeline: open %s: %w", src.Path, err)
	}
	defer f.Close()

	if src.Dataset == domain.DatasetPosts {
		return readNDJSON(f, fn)
	}
	return readCSV(f, fn)
}

func readCSV(r io.Reader, fn rowFunc) error {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1 // raw archives contain ragged rows; adapters validate

	header, err := cr.Read()
	if err != nil {
		return fmt.Errorf("pipeline: read header: %w", err)
	}

	for {
		row, err := cr.Read()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("pipeline: read row: %w", err)
		}
		fields := make(map[string]string, len(header))
		for i, col := range header {
			if i < len(row) {
				fields[col] = row[i]
			}
		}
		if err := fn(fields); err != nil {
			return err
		}
	}
}

// readNDJSON flattens each JSON document into string fields. Scalars are
// stringified; the "entities.hashtags" array (or a top-level "hashtags"
// array) is joined with commas; "coordinates" in GeoJSON point order
// [lon, lat] populates lat/lon.
func readNDJSON(r io.Reader, fn rowFunc) error {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		var doc map[string]any
		if err := json.Unmarshal([]byte(line), &doc); err != nil {
			// Surface the bad line to the caller as an empty row; the
			// adapter reports the missing fields and the drop is counted.
			if err := fn(map[string]string{}); err != nil {
				return err
			}
			continue
		}
		if err := fn(flattenPost(doc)); err != nil {
			return err
		}
	}
	return sc.Err()
}

func flattenPost(doc map[string]any) map[string]string {
	fields := make(map[string]string)
	for k, v := range doc {
		switch val := v.(type) {
		case string:
			fields[k] = val
		case float64:
			fields[k] = strconv.FormatFloat(val, 'f', -1, 64)
		case bool:
			fields[k] = strconv.FormatBool(val)
		}
	}

	if tags := hashtagList(doc); len(tags) > 0 {
		fields["hashtags"] = strings.Join(tags, ",")
	}

	if coords, ok := doc["coordinates"].(map[string]any); ok {
		if pt, ok := coords["coordinates"].([]any); ok && len(pt) == 2 {
			if lon, ok := pt[0].(float64); ok {
				fields["lon"] = strconv.FormatFloat(lon, 'f', -1, 64)
			}
			if lat, ok := pt[1].(float64); ok {
				fields["lat"] = strconv.FormatFloat(lat, 'f', -1, 64)
			}
		}
	}
	return fields
}

func hashtagList(doc map[string]any) []string {
	var raw []any
	if entities, ok := doc["entities"].(map[string]any); ok {
		raw, _ = entities["hashtags"].([]any)
	}
	if raw == nil {
		raw, _ = doc["hashtags"].([]any)
	}

	var tags []string
	for _, item := range raw {
		switch t := item.(type) {
		case string:
			tags = append(tags, t)
		case map[string]any:
			if text, ok := t["text"].(string); ok {
				tags = append(tags, text)
			}
		}
	}
	return tags
}
