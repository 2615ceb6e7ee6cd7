package poster

import (
	"fmt"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFitsInLimit(t *testing.T) {
	tests := []struct {
		text  string
		limit int
		fits  bool
	}{
		{"Hello", 10, true},
		{"Hello", 5, true},
		{"Hello", 4, false},
		{"", 1, true},
		{"日本語", 3, true}, // 3 runes
		{"日本語", 2, false},
	}

	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			result := FitsInLimit(tt.text, tt.limit)
			assert.Equal(t, tt.fits, result)
		})
	}
}

func TestCharCount(t *testing.T) {
	assert.Equal(t, 0, CharCount(""))
	assert.Equal(t, 4, CharCount("café"))
	assert.Equal(t, 1, CharCount("🙂"))
}

func TestHasContent(t *testing.T) {
	assert.False(t, HasContent(nil))
	assert.False(t, HasContent([]string{"", "  ", "\t"}))
	assert.True(t, HasContent([]string{"", "b"}))
}

func TestSplitText(t *testing.T) {
	t.Run("short text is one chunk", func(t *testing.T) {
		assert.Equal(t, []string{"Short text."}, SplitText("  Short text. ", TwitterMaxLength))
	})

	t.Run("blank text", func(t *testing.T) {
		assert.Nil(t, SplitText("   ", TwitterMaxLength))
	})

	t.Run("long text splits with markers", func(t *testing.T) {
		long := strings.Repeat("word ", 150)
		parts := SplitText(long, TwitterMaxLength)

		require.Greater(t, len(parts), 1)
		for i, part := range parts {
			assert.LessOrEqual(t, utf8.RuneCountInString(part), TwitterMaxLength)
			assert.True(t, strings.HasSuffix(part, ")"), "part %d has a marker", i)
		}
		assert.Contains(t, parts[0], "(1/")
		assert.True(t, strings.HasSuffix(parts[len(parts)-1], fmt.Sprintf("/%d)", len(parts))))
	})

	t.Run("oversized word is hard cut", func(t *testing.T) {
		parts := SplitText(strings.Repeat("x", 50), 20)
		require.Greater(t, len(parts), 1)
		for _, part := range parts {
			assert.LessOrEqual(t, utf8.RuneCountInString(part), 20)
		}
	})
}

func BenchmarkSplitText(b *testing.B) {
	long := strings.Repeat("Pain and suffering are always inevitable. ", 40)
	for i := 0; i < b.N; i++ {
		SplitText(long, TwitterMaxLength)
	}
}
