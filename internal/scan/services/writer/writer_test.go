package writer

import (
	"bufio"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/paramhunt/paramhunt/internal/scan/common/clock"
	"github.com/paramhunt/paramhunt/internal/scan/domain"
)

type stubCheckpoint struct {
	saved []domain.FoundParameter
	err   error
}

func (s *stubCheckpoint) SaveFound(_ string, f domain.FoundParameter) error {
	if s.err != nil {
		return s.err
	}
	s.saved = append(s.saved, f)
	return nil
}

func readLines(t *testing.T, path string) []string {
	t.Helper()
	f, err := os.Open(path)
	assert.NoError(t, err)
	defer f.Close()
	var lines []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	return lines
}

func TestWriteAndSave_AppendsJSONLine(t *testing.T) {
	path := filepath.Join(t.TempDir(), "findings.jsonl")
	w, err := New(path, nil, &clock.MockClock{CurrentTime: time.Unix(0, 0)})
	assert.NoError(t, err)
	defer w.Close()

	found := domain.NewFoundParameter("admin", domain.Diffs{"e@1:2"}, 200, 42, domain.ReasonText)
	err = w.WriteAndSave(context.Background(), "scan1", domain.Response{}, found)
	assert.NoError(t, err)

	lines := readLines(t, path)
	assert.Len(t, lines, 1)

	var rec map[string]any
	assert.NoError(t, json.Unmarshal([]byte(lines[0]), &rec))
	assert.Equal(t, "scan1", rec["scan_id"])
	assert.Equal(t, "admin", rec["name"])
	assert.Equal(t, float64(200), rec["status_code"])
	assert.Equal(t, float64(42), rec["body_length"])
}

func TestWriteAndSave_ForwardsToCheckpoint(t *testing.T) {
	path := filepath.Join(t.TempDir(), "findings.jsonl")
	cp := &stubCheckpoint{}
	w, err := New(path, cp, &clock.MockClock{CurrentTime: time.Unix(0, 0)})
	assert.NoError(t, err)
	defer w.Close()

	found := domain.NewFoundParameter("admin", nil, 200, 1, domain.ReasonCode)
	assert.NoError(t, w.WriteAndSave(context.Background(), "scan1", domain.Response{}, found))
	assert.Len(t, cp.saved, 1)
	assert.Equal(t, domain.Candidate("admin"), cp.saved[0].Name)
}

func TestWriteAndSave_AppendsAcrossMultipleCalls(t *testing.T) {
	path := filepath.Join(t.TempDir(), "findings.jsonl")
	w, err := New(path, nil, nil)
	assert.NoError(t, err)
	defer w.Close()

	for _, name := range []domain.Candidate{"a", "b", "c"} {
		found := domain.NewFoundParameter(name, nil, 200, 1, domain.ReasonCode)
		assert.NoError(t, w.WriteAndSave(context.Background(), "scan1", domain.Response{}, found))
	}

	assert.Len(t, readLines(t, path), 3)
}
