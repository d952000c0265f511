package codegen

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/linepoll/linepoll/internal/domain/codegen"
	"github.com/linepoll/linepoll/internal/domain/game"
)

const (
	proposeSystemPrompt  = "You are a Python code generator. Return only code lines, no explanations."
	completeSystemPrompt = "You are a Python code completion assistant. Return only code, no explanations."
)

// Service turns a best-effort text backend into the guarantees the lifecycle
// controller relies on: always exactly four distinct bounded candidate lines,
// and a transcript completion that degrades instead of failing.
type Service struct {
	backend codegen.Backend
	logger  zerolog.Logger
}

// NewService creates a generation service.
func NewService(backend codegen.Backend, logger zerolog.Logger) *Service {
	return &Service{
		backend: backend,
		logger:  logger.With().Str("service", "codegen").Logger(),
	}
}

// ProposeNextLines returns exactly game.NumOptions distinct non-empty lines,
// each at most game.MaxLineLength characters. Backend failures and unusable
// output degrade to deterministic fallbacks, never to an error.
func (s *Service) ProposeNextLines(ctx context.Context, history []string) []string {
	response, err := s.backend.Complete(ctx, proposeSystemPrompt, proposePrompt(history))
	if err != nil || strings.TrimSpace(response) == "" {
		if err != nil {
			s.logger.Warn().Err(err).Int("history_len", len(history)).Msg("generation backend unavailable, using fallbacks")
		}
		return fallbackOptions(history)
	}

	lines := usableLines(response)
	for len(lines) < game.NumOptions {
		lines = append(lines, fmt.Sprintf("    # Option %d", len(lines)+1))
	}
	return lines[:game.NumOptions]
}

// CompleteTranscript closes an unfinished line history into self-consistent
// text: only structural closers, no new logic. Backend failure falls back to
// the raw history plus one minimal closing line.
func (s *Service) CompleteTranscript(ctx context.Context, history []string) string {
	if len(history) == 0 {
		return "# Empty code"
	}

	response, err := s.backend.Complete(ctx, completeSystemPrompt, completePrompt(history))
	if err != nil || strings.TrimSpace(response) == "" {
		if err != nil {
			s.logger.Warn().Err(err).Msg("generation backend unavailable, returning raw transcript")
		}
		return strings.Join(history, "\n") + "\n    pass"
	}
	return strings.TrimSpace(stripFences(response))
}

func proposePrompt(history []string) string {
	if len(history) == 0 {
		return `Generate 4 different first lines of Python code to start a simple program.
Each line must be:
- Syntactically correct Python
- Maximum 95 characters
- Different from each other
- A logical start to a program

Format: Return ONLY 4 lines separated by newlines, nothing else.`
	}
	return fmt.Sprintf(`Given this Python code:
`+"```python\n%s\n```"+`

Generate 4 different next lines of code. Each line must be:
- Syntactically correct Python
- Maximum 95 characters
- Different from each other
- Logical continuation of the code above
- Properly indented

Format: Return ONLY 4 lines separated by newlines, nothing else.`, strings.Join(history, "\n"))
}

func completePrompt(history []string) string {
	return fmt.Sprintf(`Given this incomplete Python code:
`+"```python\n%s\n```"+`

Complete this code to make it syntactically correct and runnable.
Rules:
- Do NOT add new logic or features
- Only add necessary closing brackets, indentation fixes, and minimal completion
- Add 'pass' statements where needed
- Ensure all blocks are properly closed
- Keep it minimal

Return ONLY the complete Python code, nothing else.`, strings.Join(history, "\n"))
}

// usableLines filters backend output down to distinct, non-empty,
// length-bounded candidate lines, keeping at most NumOptions.
func usableLines(response string) []string {
	out := make([]string, 0, game.NumOptions)
	seen := make(map[string]struct{})
	for _, line := range strings.Split(response, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "```") {
			continue
		}
		if len(trimmed) > game.MaxLineLength {
			continue
		}
		if _, ok := seen[trimmed]; ok {
			continue
		}
		seen[trimmed] = struct{}{}
		out = append(out, trimmed)
		if len(out) == game.NumOptions {
			break
		}
	}
	return out
}

func fallbackOptions(history []string) []string {
	if len(history) == 0 {
		return []string{
			"# Simple Python program",
			"import sys",
			"def main():",
			"if __name__ == '__main__':",
		}
	}
	return []string{
		"    pass",
		"    # TODO: implement",
		"    return None",
		"    print('Done')",
	}
}

func stripFences(response string) string {
	lines := strings.Split(response, "\n")
	out := make([]string, 0, len(lines))
	for _, line := range lines {
		if strings.HasPrefix(strings.TrimSpace(line), "```") {
			continue
		}
		out = append(out, line)
	}
	return strings.Join(out, "\n")
}
