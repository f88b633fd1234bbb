// Package report turns generated inspection reports into displayable blocks
package report

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/glamour"
)

// BlockKind names a report block type
type BlockKind string

const (
	Heading   BlockKind = "heading"
	Bullet    BlockKind = "bullet"
	Paragraph BlockKind = "paragraph"
)

// Block is one display unit of a report
type Block struct {
	Kind BlockKind `json:"kind"`
	Text string    `json:"text"`
}

// Parse splits a report into blocks line by line. Blank lines are dropped and
// bold markers are stripped from bullets and paragraphs
func Parse(text string) []Block {
	var blocks []Block
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		switch {
		case line == "":
			continue
		case strings.HasPrefix(line, "###"):
			blocks = append(blocks, Block{Kind: Heading, Text: strings.TrimLeft(strings.TrimLeft(line, "#"), " \t")})
		case strings.HasPrefix(line, "-"):
			item := strings.TrimLeft(strings.TrimPrefix(line, "-"), " \t")
			blocks = append(blocks, Block{Kind: Bullet, Text: stripBold(item)})
		default:
			blocks = append(blocks, Block{Kind: Paragraph, Text: stripBold(line)})
		}
	}
	return blocks
}

func stripBold(s string) string {
	return strings.ReplaceAll(s, "**", "")
}

// Render formats the report markdown for a terminal of the given width
func Render(text string, width int) (string, error) {
	if strings.TrimSpace(text) == "" {
		return "", nil
	}
	if width <= 0 {
		width = 80
	}

	r, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		return "", fmt.Errorf("failed to create glamour renderer: %w", err)
	}

	rendered, err := r.Render(text)
	if err != nil {
		return "", fmt.Errorf("failed to render report: %w", err)
	}
	return rendered, nil
}
