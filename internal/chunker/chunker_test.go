package chunker

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNew_Validation(t *testing.T) {
	tests := []struct {
		name    string
		size    int
		overlap int
		wantErr bool
	}{
		{name: "default", size: 500, overlap: 50},
		{name: "no overlap", size: 10, overlap: 0},
		{name: "zero size", size: 0, overlap: 0, wantErr: true},
		{name: "overlap equals size", size: 10, overlap: 10, wantErr: true},
		{name: "negative overlap", size: 10, overlap: -1, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.size, tt.overlap)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
		})
	}
}

func TestSplit_WindowsShareOverlap(t *testing.T) {
	s, err := New(500, 50)
	require.NoError(t, err)
	var sb strings.Builder
	for i := 0; sb.Len() < 1200; i++ {
		sb.WriteByte(byte('a' + i%26))
	}
	text := sb.String()

	windows := s.Split(text)
	require.Len(t, windows, 3)
	require.Equal(t, 0, windows[0].Offset)
	require.Equal(t, 450, windows[1].Offset)
	require.Equal(t, 900, windows[2].Offset)
	for i, w := range windows {
		require.LessOrEqual(t, len([]rune(w.Content)), 500)
		if i > 0 {
			prev := windows[i-1].Content
			require.Equal(t, prev[len(prev)-50:], w.Content[:50])
		}
	}
	require.Equal(t, text[900:], windows[2].Content)
}

func TestSplit_ShortText(t *testing.T) {
	s, err := New(500, 50)
	require.NoError(t, err)
	windows := s.Split("Paris is the capital of France.")
	require.Len(t, windows, 1)
	require.Equal(t, "Paris is the capital of France.", windows[0].Content)
}

func TestSplit_EmptyAndBlank(t *testing.T) {
	s, err := New(4, 1)
	require.NoError(t, err)
	require.Empty(t, s.Split(""))
	require.Empty(t, s.Split("   \n\t  "))
}

func TestSplit_ExactMultipleHasNoRedundantTail(t *testing.T) {
	s, err := New(4, 2)
	require.NoError(t, err)
	windows := s.Split("abcdef")
	require.Equal(t, []Window{{Offset: 0, Content: "abcd"}, {Offset: 2, Content: "cdef"}}, windows)
}

func TestSplit_CountsRunes(t *testing.T) {
	s, err := New(3, 1)
	require.NoError(t, err)
	windows := s.Split("héllo")
	require.Equal(t, []Window{{Offset: 0, Content: "hél"}, {Offset: 2, Content: "llo"}}, windows)
}
