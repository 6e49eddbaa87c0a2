package content

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var labels = []string{"neymar", "messi", "ronaldo"}

func TestPickTop3(t *testing.T) {
	tests := []struct {
		name string
		in   []string
		want []string
	}{
		{name: "nil", in: nil, want: []string{}},
		{name: "short", in: []string{"a", "b"}, want: []string{"a", "b"}},
		{name: "truncates", in: []string{"a", "b", "c", "d"}, want: []string{"a", "b", "c"}},
		{name: "filters blanks before truncating", in: []string{"", "a", "  ", "b", "\t\n", "c", "d"}, want: []string{"a", "b", "c"}},
		{name: "all blank", in: []string{" ", ""}, want: []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, PickTop3(tt.in))
		})
	}
}

func TestLoad_Default(t *testing.T) {
	table, err := Load("", labels, zerolog.Nop())
	require.NoError(t, err)
	assert.Equal(t, 3, table.Len())

	for _, label := range labels {
		e := table.Lookup(label)
		assert.False(t, e.IsEmpty(), label)
		for _, list := range [][]string{e.Texts, e.Images, e.Videos} {
			assert.LessOrEqual(t, len(list), MaxItems)
			for _, s := range list {
				assert.NotEmpty(t, strings.TrimSpace(s))
			}
		}
	}

	assert.Equal(t, []string{"https://www.youtube.com/watch?v=rgz1Mo231TU"}, table.Lookup("neymar").Videos)
	assert.Equal(t, []string{"호날두는", "세계 최고의", "스트라이커"}, table.Lookup("ronaldo").Texts)
	assert.True(t, strings.HasPrefix(table.Lookup("ronaldo").Images[0], "data:image/webp;base64,"))
}

func TestLookup_UnknownLabel(t *testing.T) {
	table, err := Load("", labels, zerolog.Nop())
	require.NoError(t, err)

	for _, label := range []string{"", "zidane", "NEYMAR"} {
		e := table.Lookup(label)
		assert.True(t, e.IsEmpty())
		assert.Equal(t, Entry{Texts: []string{}, Images: []string{}, Videos: []string{}}, e)
	}
}

func TestLookup_ReturnsCopies(t *testing.T) {
	table := NewTable(map[string]Entry{"cat": {Texts: []string{"meow"}}})
	e := table.Lookup("cat")
	e.Texts[0] = "woof"
	assert.Equal(t, []string{"meow"}, table.Lookup("cat").Texts)
}

func TestParse_Truncates(t *testing.T) {
	data := []byte(`
entries:
  - label: messi
    texts: ["one", "", "two", "   ", "three", "four"]
    images: ["a.jpg", "b.jpg", "c.jpg", "d.jpg"]
`)
	table, err := Parse(data, labels, zerolog.Nop())
	require.NoError(t, err)

	e := table.Lookup("messi")
	assert.Equal(t, []string{"one", "two", "three"}, e.Texts)
	assert.Equal(t, []string{"a.jpg", "b.jpg", "c.jpg"}, e.Images)
	assert.Equal(t, []string{}, e.Videos)
}

func TestParse_LabelWithNoContent(t *testing.T) {
	table, err := Parse([]byte("entries:\n  - label: messi\n    texts: [\" \"]\n"), labels, zerolog.Nop())
	require.NoError(t, err)
	assert.True(t, table.Lookup("messi").IsEmpty())
}

func TestParse_IndexOutOfRangeSkipped(t *testing.T) {
	table, err := Parse([]byte("entries:\n  - index: 7\n    texts: [x]\n  - index: 0\n    texts: [y]\n"), labels, zerolog.Nop())
	require.NoError(t, err)
	assert.Equal(t, 1, table.Len())
	assert.Equal(t, []string{"y"}, table.Lookup("neymar").Texts)
}

func TestParse_UnknownLabelSkipped(t *testing.T) {
	table, err := Parse([]byte("entries:\n  - label: zidane\n    texts: [x]\n  - label: messi\n    texts: [y]\n"), labels, zerolog.Nop())
	require.NoError(t, err)
	assert.Equal(t, 1, table.Len())
	assert.True(t, table.Lookup("zidane").IsEmpty())
	assert.Equal(t, []string{"y"}, table.Lookup("messi").Texts)
}

func TestParse_Errors(t *testing.T) {
	tests := map[string]string{
		"duplicate":     "entries:\n  - label: neymar\n  - index: 0\n",
		"both keys":     "entries:\n  - label: neymar\n    index: 0\n",
		"no key":        "entries:\n  - texts: [x]\n",
		"unknown field": "entries:\n  - label: neymar\n    clips: [x]\n",
		"malformed":     "entries: [",
	}
	for name, data := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := Parse([]byte(data), labels, zerolog.Nop())
			assert.Error(t, err)
		})
	}
}

func TestParse_EmptyDocument(t *testing.T) {
	table, err := Parse(nil, labels, zerolog.Nop())
	require.NoError(t, err)
	assert.Equal(t, 0, table.Len())
}

func TestLoad_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "content.yaml")
	require.NoError(t, os.WriteFile(path, []byte("entries:\n  - label: ronaldo\n    videos: [\"https://youtu.be/abc12345678\"]\n"), 0o644))

	table, err := Load(path, labels, zerolog.Nop())
	require.NoError(t, err)
	assert.Equal(t, []string{"https://youtu.be/abc12345678"}, table.Lookup("ronaldo").Videos)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"), labels, zerolog.Nop())
	assert.Error(t, err)
}
