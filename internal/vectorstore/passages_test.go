package vectorstore

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harikrshm/RAG-LLM-based-FAQ-Assistant-v2-sub000/internal/knowledge"
)

func TestParsePassages_JSON(t *testing.T) {
	data := []byte(`[
	  {"id": "p1", "text": "Expense ratio is 0.5%", "source_url": "https://www.hdfcfund.com/top-100",
	   "amc_name": "HDFC", "content_type": "fund_page", "metadata": {"scheme": "top-100"}},
	  {"chunk_id": "c2", "content": "  Exit load is 1%  ", "source_url": "https://www.sbimf.com/bluechip",
	   "groww_page_url": "https://groww.in/mutual-funds/sbi-bluechip-fund-direct-growth"}
	]`)

	got, err := ParsePassages(data)
	require.NoError(t, err)
	require.Len(t, got, 2)

	assert.Equal(t, "p1", got[0].ID)
	assert.Equal(t, knowledge.ContentTypeFundPage, got[0].Metadata.ContentType)
	assert.Equal(t, map[string]string{"scheme": "top-100"}, got[0].Metadata.Extra)

	assert.Equal(t, "c2", got[1].ID)
	assert.Equal(t, "Exit load is 1%", got[1].Text)
	assert.Equal(t, "https://groww.in/mutual-funds/sbi-bluechip-fund-direct-growth", got[1].Metadata.FirstPartyURL)
	assert.Nil(t, got[1].Metadata.Extra)
}

func TestParsePassages_YAML(t *testing.T) {
	data := []byte(`
- text: Minimum SIP amount is 500
  source_url: https://www.amfiindia.com/sip
`)
	got, err := ParsePassages(data)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Empty(t, got[0].ID)
	assert.NotEmpty(t, passageID(got[0]))
}

func TestParsePassages_RejectsIncomplete(t *testing.T) {
	data := []byte(`[{"text": "orphan"}, {"source_url": "https://example.com"}]`)
	_, err := ParsePassages(data)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "passage 0: source_url is empty")
	assert.Contains(t, err.Error(), "passage 1: text is empty")
}

func TestParsePassages_Malformed(t *testing.T) {
	_, err := ParsePassages([]byte(`{"not": "a list"}`))
	require.Error(t, err)
}

func TestReadPassages(t *testing.T) {
	path := filepath.Join(t.TempDir(), "passages.json")
	require.NoError(t, os.WriteFile(path, []byte(`[{"text":"NAV is 10","source_url":"https://www.amfiindia.com/nav"}]`), 0o600))

	got, err := ReadPassages(path)
	require.NoError(t, err)
	require.Len(t, got, 1)

	_, err = ReadPassages(filepath.Join(t.TempDir(), "missing.json"))
	require.Error(t, err)
}
