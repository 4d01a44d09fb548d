package vectorstore

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/harikrshm/RAG-LLM-based-FAQ-Assistant-v2-sub000/internal/knowledge"
)

// passageRecord is one entry of a seed file. Ingestion exports name some
// fields differently; both spellings are accepted.
type passageRecord struct {
	ID            string            `yaml:"id"`
	ChunkID       string            `yaml:"chunk_id"`
	Text          string            `yaml:"text"`
	Content       string            `yaml:"content"`
	SourceURL     string            `yaml:"source_url"`
	Title         string            `yaml:"title"`
	AMCName       string            `yaml:"amc_name"`
	ContentType   string            `yaml:"content_type"`
	FirstPartyURL string            `yaml:"first_party_url"`
	GrowwPageURL  string            `yaml:"groww_page_url"`
	Metadata      map[string]string `yaml:"metadata"`
}

// ParsePassages decodes a JSON or YAML list of passages. Entries without
// text or source URL are rejected with their position.
func ParsePassages(data []byte) ([]Passage, error) {
	var records []passageRecord
	if err := yaml.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("decode passages: %w", err)
	}

	var errs []error
	out := make([]Passage, 0, len(records))
	for i, r := range records {
		p := Passage{
			ID:        firstNonEmpty(r.ID, r.ChunkID),
			Text:      strings.TrimSpace(firstNonEmpty(r.Text, r.Content)),
			SourceURL: strings.TrimSpace(r.SourceURL),
			Metadata: knowledge.Metadata{
				AMCName:       r.AMCName,
				Title:         r.Title,
				ContentType:   knowledge.ContentType(r.ContentType),
				FirstPartyURL: firstNonEmpty(r.FirstPartyURL, r.GrowwPageURL),
			},
		}
		if len(r.Metadata) > 0 {
			p.Metadata.Extra = r.Metadata
		}
		switch {
		case p.Text == "":
			errs = append(errs, fmt.Errorf("passage %d: text is empty", i))
		case p.SourceURL == "":
			errs = append(errs, fmt.Errorf("passage %d: source_url is empty", i))
		default:
			out = append(out, p)
		}
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return out, nil
}

// ReadPassages loads a seed file from path.
func ReadPassages(path string) ([]Passage, error) {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("read passages: %w", err)
	}
	return ParsePassages(data)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
