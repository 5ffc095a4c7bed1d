package crawler

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestResolveURL(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		base string
		ref  string
		want string
	}{
		{"relative path", "http://audiodharma.org", "/talks/1.mp3", "http://audiodharma.org/talks/1.mp3"},
		{"absolute kept", "http://audiodharma.org", "http://other.org/a.mp3", "http://other.org/a.mp3"},
		{"https kept", "http://audiodharma.org", "https://cdn.org/a.mp3", "https://cdn.org/a.mp3"},
		{"fragment dropped", "http://audiodharma.org", "/teacher/5/#bio", "http://audiodharma.org/teacher/5/"},
		{"query kept", "http://audiodharma.org", "/series/9/?page=2", "http://audiodharma.org/series/9/?page=2"},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := ResolveURL(tt.base, tt.ref)
			require.NoError(t, err)
			require.Equal(t, tt.want, got)
		})
	}
}

func TestResolveURLEmpty(t *testing.T) {
	t.Parallel()

	_, err := ResolveURL("http://audiodharma.org", "   ")
	require.True(t, errors.Is(err, ErrExtraction))
}
