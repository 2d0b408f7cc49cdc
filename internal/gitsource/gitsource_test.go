package gitsource

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalPath(t *testing.T) {
	testCases := []struct {
		url      string
		expected string
	}{
		{url: "https://github.com/acme/cards.git", expected: filepath.Join("repos", "github.com", "acme", "cards")},
		{url: "http://git.local/cards", expected: filepath.Join("repos", "git.local", "cards")},
		{url: "git@github.com:acme/cards.git", expected: filepath.Join("repos", "github.com", "acme", "cards")},
	}

	for _, tc := range testCases {
		t.Run(tc.url, func(t *testing.T) {
			got, err := LocalPath("repos", tc.url)
			require.NoError(t, err)
			assert.Equal(t, tc.expected, got)
		})
	}
}

func TestLocalPathRejectsGarbage(t *testing.T) {
	for _, u := range []string{"not a url", "ftp://host/repo", "git@:repo"} {
		_, err := LocalPath("repos", u)
		assert.Error(t, err, u)
	}
}

func TestLocalPathStaysUnderBaseDir(t *testing.T) {
	for _, u := range []string{
		"https://example.com/../../etc.git",
		"https://example.com/acme/../../../x.git",
		"https://example.com/",
		"git@example.com:../../x.git",
		"git@example.com:acme/../../x.git",
		"git@..:x.git",
	} {
		_, err := LocalPath("repos", u)
		assert.Error(t, err, u)
	}

	got, err := LocalPath("repos", "https://example.com/acme/../cards.git")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join("repos", "example.com", "cards"), got)
}
