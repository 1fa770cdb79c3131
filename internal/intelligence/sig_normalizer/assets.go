package sig_normalizer

import (
	"bufio"
	"bytes"
	"embed"
	"encoding/csv"
	"io"
	"os"
	"strings"

	"github.com/turtacn/sigparse/pkg/errors"
)

//go:embed data/replace_words.csv data/keep_words.txt
var embedded embed.FS

const (
	embeddedReplaceWords = "data/replace_words.csv"
	embeddedKeepWords    = "data/keep_words.txt"
)

// Assets are the data tables consumed by the Normalizer: a before→after
// substitution table and the protected word list for spell correction.
type Assets struct {
	Replacements map[string]string
	KeepWords    []string
}

// AssetPaths overrides the embedded tables. Empty fields keep the embedded
// default.
type AssetPaths struct {
	ReplaceWords string
	KeepWords    string
}

// DefaultAssets returns the tables compiled into the binary.
func DefaultAssets() (*Assets, error) {
	return LoadAssets(AssetPaths{})
}

// LoadAssets reads each table from its path, or from the embedded copy when
// the path is empty.
func LoadAssets(paths AssetPaths) (*Assets, error) {
	repl, err := readAsset(paths.ReplaceWords, embeddedReplaceWords)
	if err != nil {
		return nil, err
	}
	keep, err := readAsset(paths.KeepWords, embeddedKeepWords)
	if err != nil {
		return nil, err
	}

	replacements, err := ParseReplacements(bytes.NewReader(repl))
	if err != nil {
		return nil, err
	}
	keepWords, err := ParseKeepWords(bytes.NewReader(keep))
	if err != nil {
		return nil, err
	}
	return &Assets{Replacements: replacements, KeepWords: keepWords}, nil
}

func readAsset(path, fallback string) ([]byte, error) {
	if path == "" {
		b, err := embedded.ReadFile(fallback)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeAssetLoadFailed, "read embedded asset "+fallback)
		}
		return b, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeAssetLoadFailed, "read asset "+path)
	}
	return b, nil
}

// ParseReplacements reads a CSV with a "Before,After" header. Keys are
// stored lower-cased so lookups ignore case.
func ParseReplacements(r io.Reader) (map[string]string, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeAssetFormatInvalid, "read replacement header")
	}
	before, after := -1, -1
	for i, h := range header {
		switch strings.ToLower(strings.TrimSpace(h)) {
		case "before":
			before = i
		case "after":
			after = i
		}
	}
	if before < 0 || after < 0 {
		return nil, errors.New(errors.ErrCodeAssetFormatInvalid, "replacement table needs Before and After columns").
			WithDetail(strings.Join(header, ","))
	}

	out := make(map[string]string)
	for line := 2; ; line++ {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeAssetFormatInvalid, "read replacement row")
		}
		if len(rec) <= before || len(rec) <= after {
			return nil, errors.Newf(errors.ErrCodeAssetFormatInvalid, "replacement row %d has %d fields", line, len(rec))
		}
		key := strings.ToLower(strings.TrimSpace(rec[before]))
		if key == "" {
			continue
		}
		out[key] = strings.TrimSpace(rec[after])
	}
	return out, nil
}

// ParseKeepWords reads whitespace-separated words, lower-cased and
// de-duplicated in first-seen order.
func ParseKeepWords(r io.Reader) ([]string, error) {
	seen := make(map[string]bool)
	var out []string
	sc := bufio.NewScanner(r)
	sc.Split(bufio.ScanWords)
	for sc.Scan() {
		w := strings.ToLower(sc.Text())
		if !seen[w] {
			seen[w] = true
			out = append(out, w)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeAssetFormatInvalid, "read keep words")
	}
	return out, nil
}
