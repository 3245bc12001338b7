package roster

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRosterPersistsAcrossOpen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data", "students.json")

	f, err := Open(path)
	require.NoError(t, err)
	require.Zero(t, f.Count())

	require.NoError(t, f.Upsert("23IT63", "Yasodha R", "IT", "3"))
	require.NoError(t, f.Upsert("23IT56", "Sujithra B", "IT", "3"))
	require.NoError(t, f.Upsert("23IT56", "Sujithra B.", "IT", "3"))

	reopened, err := Open(path)
	require.NoError(t, err)
	list := reopened.List()
	require.Len(t, list, 2)
	require.Equal(t, "23IT56", list[0].StudentID)
	require.Equal(t, "Sujithra B.", list[0].Name)

	s, ok := reopened.Get("23IT63")
	require.True(t, ok)
	require.Equal(t, "Yasodha R", s.Name)
}

func TestOpenRejectsCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "students.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))
	_, err := Open(path)
	require.Error(t, err)
}

func TestUpsertRequiresID(t *testing.T) {
	f, err := Open(filepath.Join(t.TempDir(), "s.json"))
	require.NoError(t, err)
	require.Error(t, f.Upsert("", "x", "", ""))
}
