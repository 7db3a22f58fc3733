package llm

import (
	"context"
	"fmt"
	"strings"

	"tabrag/internal/port"
)

// ExtractiveLLM answers without a model by quoting the context it is given.
// It is meant for offline runs and tests.
type ExtractiveLLM struct {
	maxLines int
}

func NewExtractiveLLM(maxLines int) *ExtractiveLLM {
	if maxLines <= 0 {
		maxLines = 5
	}
	return &ExtractiveLLM{maxLines: maxLines}
}

func (l *ExtractiveLLM) Generate(ctx context.Context, req port.GenerateRequest) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if len(req.Context) == 0 {
		return fmt.Sprintf("I couldn't find anything about %q in the indexed data.", strings.TrimSpace(req.Query)), nil
	}

	var b strings.Builder
	b.WriteString("From the indexed data:")
	n := 0
	for _, c := range req.Context {
		for _, line := range strings.Split(c, "\n") {
			line = strings.TrimSpace(line)
			if line == "" {
				continue
			}
			if n == l.maxLines {
				return b.String(), nil
			}
			b.WriteString("\n- ")
			b.WriteString(line)
			n++
		}
	}
	return b.String(), nil
}

func (l *ExtractiveLLM) ModelName() string {
	return "extractive"
}
