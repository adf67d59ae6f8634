package mdadapter

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

const helloDigest = "2cf24dba5fb0a30e26e83b2ac5b9e29e1b161e5c1fa7425e73043362938b9824"

func TestConvert(t *testing.T) {
	src := `---
title: "Mirror of userhash"
files: 1
---

# Digests

| Path | SHA-256 |
|---|---|
| docs/readme.txt | {{sha256:` + helloDigest + `}} |
`

	doc, err := NewConverter().Convert([]byte(src))
	require.NoError(t, err)
	require.Equal(t, "Mirror of userhash", doc.Title)
	require.EqualValues(t, 1, doc.Meta["files"])

	html := string(doc.HTML)
	require.Contains(t, html, "<h1>Digests</h1>")
	require.Contains(t, html, "<table>")
	require.Contains(t, html, `<code class="sha256" title="`+helloDigest+`">2cf24dba5fb0</code>`)
	require.NotContains(t, html, "title: ")
}

func TestConvertWithoutFrontmatter(t *testing.T) {
	doc, err := NewConverter().Convert([]byte("plain {{sha256:short}} text"))
	require.NoError(t, err)
	require.Empty(t, doc.Title)
	require.Nil(t, doc.Meta)
	require.True(t, strings.Contains(string(doc.HTML), "{{sha256:short}}"))
}
