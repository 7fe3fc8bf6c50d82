package parser

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		in     string
		maxLen int
		want   string
	}{
		{"Repo", 100, "repo"},
		{"  Hello,   World!  ", 100, "hello-world"},
		{"Café Résumé", 100, "cafe-resume"},
		{"Go: The Programming Language", 100, "go-the-programming-language"},
		{"书签 管理", 100, "书签-管理"},
		{"---", 100, ""},
		{"", 100, ""},
		{"abcdefghijkl", 8, "abcdefgh"},
		{"abc defghijk", 4, "abc"},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, Normalize(tt.in, tt.maxLen))
		})
	}
}

func TestHostKeyword(t *testing.T) {
	assert.Equal(t, "github", HostKeyword("https://www.github.com/teranos/shelf"))
	assert.Equal(t, "example", HostKeyword("https://docs.example.org/x"))
	assert.Equal(t, "localhost", HostKeyword("http://localhost:8080"))
	assert.Equal(t, "", HostKeyword("file:///tmp/x"))
}

func TestAliasSet_Assign(t *testing.T) {
	t.Run("collisions count up in order", func(t *testing.T) {
		s := newAliasSet(100)
		assert.Equal(t, "repo", s.assign("", "Repo", "https://a.example"))
		assert.Equal(t, "repo-2", s.assign("", "repo", "https://b.example"))
		assert.Equal(t, "repo-3", s.assign("", "REPO", "https://c.example"))
	})

	t.Run("literal suffix title takes the next free slot", func(t *testing.T) {
		s := newAliasSet(100)
		assert.Equal(t, "repo-2", s.assign("", "Repo 2", "https://a.example"))
		assert.Equal(t, "repo", s.assign("", "Repo", "https://b.example"))
		assert.Equal(t, "repo-3", s.assign("", "Repo", "https://c.example"))
	})

	t.Run("suffix fits the length limit", func(t *testing.T) {
		s := newAliasSet(8)
		assert.Equal(t, "abcdefgh", s.assign("", "abcdefghijkl", "https://a.example"))
		assert.Equal(t, "abcdef-2", s.assign("", "abcdefghijkl", "https://b.example"))
	})

	t.Run("empty title falls back to host then constant", func(t *testing.T) {
		s := newAliasSet(100)
		assert.Equal(t, "example-com", s.assign("", "", "https://www.example.com/path"))
		assert.Equal(t, "bookmark", s.assign("", "!!!", "file:///tmp/x"))
		assert.Equal(t, "bookmark-2", s.assign("", "", "about:blank"))
	})

	t.Run("preferred alias wins over title", func(t *testing.T) {
		s := newAliasSet(100)
		assert.Equal(t, "gh", s.assign("GH", "GitHub", "https://github.com"))
	})
}
