package report

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	text := `### Roofing

- **Severe:** missing shingles near the chimney
-Gutters clogged
Overall the roof needs **attention** soon.
   #### Summary
`
	assert.Equal(t, []Block{
		{Kind: Heading, Text: "Roofing"},
		{Kind: Bullet, Text: "Severe: missing shingles near the chimney"},
		{Kind: Bullet, Text: "Gutters clogged"},
		{Kind: Paragraph, Text: "Overall the roof needs attention soon."},
		{Kind: Heading, Text: "Summary"},
	}, Parse(text))
}

func TestParseEmpty(t *testing.T) {
	assert.Empty(t, Parse("\n  \n"))
}

func TestParseKeepsLoneHashes(t *testing.T) {
	// "##" is not a heading marker.
	assert.Equal(t, []Block{{Kind: Paragraph, Text: "## Notes"}}, Parse("## Notes"))
}

func TestRender(t *testing.T) {
	out, err := Render("### Kitchen\n- Faucet leaks", 60)
	require.NoError(t, err)
	assert.Contains(t, out, "Kitchen")
	assert.Contains(t, out, "Faucet leaks")

	out, err = Render("   ", 60)
	require.NoError(t, err)
	assert.Empty(t, out)
}
