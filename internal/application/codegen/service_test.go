package codegen

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/linepoll/linepoll/internal/domain/game"
)

type stubBackend struct {
	response string
	err      error
}

func (b *stubBackend) Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	return b.response, b.err
}

func newService(b *stubBackend) *Service {
	return NewService(b, zerolog.Nop())
}

func assertFourDistinct(t *testing.T, lines []string) {
	t.Helper()
	require.Len(t, lines, game.NumOptions)
	seen := make(map[string]struct{})
	for _, l := range lines {
		assert.NotEmpty(t, l)
		assert.LessOrEqual(t, len(l), game.MaxLineLength)
		_, dup := seen[l]
		assert.False(t, dup, "duplicate line %q", l)
		seen[l] = struct{}{}
	}
}

func TestProposeNextLinesHappyPath(t *testing.T) {
	b := &stubBackend{response: "import os\nimport sys\ndef main():\nx = 1"}
	lines := newService(b).ProposeNextLines(context.Background(), nil)
	assertFourDistinct(t, lines)
	assert.Equal(t, []string{"import os", "import sys", "def main():", "x = 1"}, lines)
}

func TestProposeNextLinesBackendFailureEmptyHistory(t *testing.T) {
	b := &stubBackend{err: errors.New("upstream timeout")}
	lines := newService(b).ProposeNextLines(context.Background(), nil)
	assertFourDistinct(t, lines)
	assert.Equal(t, "# Simple Python program", lines[0])
}

func TestProposeNextLinesBackendFailureWithHistory(t *testing.T) {
	b := &stubBackend{err: errors.New("upstream timeout")}
	lines := newService(b).ProposeNextLines(context.Background(), []string{"def main():"})
	assertFourDistinct(t, lines)
	assert.Equal(t, "    pass", lines[0])
}

func TestProposeNextLinesFiltersFencesDuplicatesAndLongLines(t *testing.T) {
	long := strings.Repeat("x", game.MaxLineLength+1)
	b := &stubBackend{response: "```python\nimport os\nimport os\n" + long + "\n```"}
	lines := newService(b).ProposeNextLines(context.Background(), []string{"import sys"})
	assertFourDistinct(t, lines)
	assert.Equal(t, "import os", lines[0])
	assert.NotContains(t, lines, long)
}

func TestProposeNextLinesEmptyResponseUsesFallbacks(t *testing.T) {
	b := &stubBackend{response: "\n\n"}
	lines := newService(b).ProposeNextLines(context.Background(), nil)
	assertFourDistinct(t, lines)
	assert.Equal(t, []string{
		"# Simple Python program",
		"import sys",
		"def main():",
		"if __name__ == '__main__':",
	}, lines)
}

func TestProposeNextLinesPadsWithNumberedPlaceholders(t *testing.T) {
	b := &stubBackend{response: "import sys\nimport sys"}
	lines := newService(b).ProposeNextLines(context.Background(), []string{"# start"})
	assertFourDistinct(t, lines)
	assert.Equal(t, []string{
		"import sys",
		"    # Option 2",
		"    # Option 3",
		"    # Option 4",
	}, lines)
}

func TestCompleteTranscriptEmptyHistory(t *testing.T) {
	b := &stubBackend{response: "whatever"}
	assert.Equal(t, "# Empty code", newService(b).CompleteTranscript(context.Background(), nil))
}

func TestCompleteTranscriptBackendFailure(t *testing.T) {
	b := &stubBackend{err: errors.New("boom")}
	got := newService(b).CompleteTranscript(context.Background(), []string{"def main():"})
	assert.Equal(t, "def main():\n    pass", got)
}

func TestCompleteTranscriptStripsFences(t *testing.T) {
	b := &stubBackend{response: "```python\ndef main():\n    pass\n```"}
	got := newService(b).CompleteTranscript(context.Background(), []string{"def main():"})
	assert.Equal(t, "def main():\n    pass", got)
}
