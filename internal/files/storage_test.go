package files

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DemidSergeev/notes-bot/internal/domain"
)

func newTestStorage(t *testing.T) *Storage {
	t.Helper()
	root := t.TempDir()
	s, err := NewStorage(root+"/pending", root+"/published")
	require.NoError(t, err)
	return s
}

func TestStorePendingAndMove(t *testing.T) {
	s := newTestStorage(t)
	data := []byte("%PDF-1.4 test")

	ref, err := s.StorePending(data, "year2__Calculus__user42__100.pdf")
	require.NoError(t, err)
	assert.True(t, s.PendingExists(ref))
	assert.False(t, s.Exists(ref), "not published yet")

	published, err := s.Move(ref)
	require.NoError(t, err)
	assert.Equal(t, ref, published)
	assert.False(t, s.PendingExists(ref))
	assert.True(t, s.Exists(published))

	got, err := s.Read(published)
	require.NoError(t, err)
	assert.Equal(t, data, got)
}

func TestMoveMissingFileFails(t *testing.T) {
	s := newTestStorage(t)
	_, err := s.Move("nope.pdf")
	assert.Error(t, err)
}

func TestListPending(t *testing.T) {
	s := newTestStorage(t)
	_, err := s.StorePending([]byte("a"), "a.pdf")
	require.NoError(t, err)
	_, err = s.StorePending([]byte("b"), "b.pdf")
	require.NoError(t, err)

	names, err := s.ListPending()
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"a.pdf", "b.pdf"}, names)
}

func TestSanitizeName(t *testing.T) {
	cases := map[string]string{
		"notes.pdf":          "notes.pdf",
		"  notes.pdf  ":      "notes.pdf",
		"../../etc/passwd":   "passwd",
		"/abs/path/file.pdf": "file.pdf",
		"my notes.pdf":       "my_notes.pdf",
	}
	for in, want := range cases {
		assert.Equal(t, want, SanitizeName(in), "input %q", in)
	}
}

func TestSubmissionNameIsDeterministic(t *testing.T) {
	ts := time.Unix(1700000000, 0)
	name := SubmissionName(domain.CourseYear(2), "Linear Algebra", 42, ts)
	assert.Equal(t, "year2__Linear_Algebra__user42__1700000000.pdf", name)
}

func TestIsDocumentName(t *testing.T) {
	assert.True(t, IsDocumentName("notes.pdf"))
	assert.True(t, IsDocumentName("NOTES.PDF"))
	assert.True(t, IsDocumentName("  notes.pdf  "))
	assert.False(t, IsDocumentName("notes.docx"))
	assert.False(t, IsDocumentName("notes"))
	assert.False(t, IsDocumentName(""))
}
