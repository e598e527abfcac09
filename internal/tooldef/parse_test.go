package tooldef

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"factory/internal/faults"
)

func writeDoc(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

const sampleYAML = `
profile: support
tools:
  - name: create_ticket
    service: create_ticket
    description: Open a new ticket.
    params:
      - name: title
        required: true
        schema:
          type: string
      - name: body
        targetParam: description
        schema:
          type: string
    overlays:
      - source: hidden
        targetParam: api_key
        value: secret-token
      - source: default
        targetParam: priority
        value: 3
  - name: search
    service: search_tickets
    overlays:
      - source: default
        targetParam: query
        targetFactor: search_query
        fields:
          limit: 10
`

func TestLoadFileYAML(t *testing.T) {
	path := writeDoc(t, "support.tools.yaml", sampleYAML)
	doc, err := LoadFile(path)
	require.NoError(t, err)

	assert.Equal(t, "support", doc.Profile)
	require.Len(t, doc.Tools, 2)

	ticket := doc.Tools[0]
	assert.Equal(t, "create_ticket", ticket.Service)
	require.Len(t, ticket.Params, 2)
	assert.Equal(t, "title", ticket.Params[0].TargetParam)
	assert.True(t, ticket.Params[0].Required)
	assert.Equal(t, "description", ticket.Params[1].TargetParam)
	require.NotNil(t, ticket.Params[0].Schema)
	assert.True(t, ticket.Params[0].Schema.Type.Is("string"))

	require.Len(t, ticket.Overlays, 2)
	assert.Equal(t, SourceHidden, ticket.Overlays[0].Source)
	assert.True(t, ticket.Overlays[0].HasValue)
	assert.Equal(t, "secret-token", ticket.Overlays[0].Value)
	// YAML integers arrive as JSON numbers after normalisation.
	assert.Equal(t, float64(3), ticket.Overlays[1].Value)

	search := doc.Tools[1]
	require.Len(t, search.Overlays, 1)
	assert.Equal(t, "search_query", search.Overlays[0].TargetFactor)
	assert.False(t, search.Overlays[0].HasValue)
	assert.Equal(t, map[string]any{"limit": float64(10)}, search.Overlays[0].Fields)
}

func TestLoadFileExplicitNullValueIsPresent(t *testing.T) {
	path := writeDoc(t, "p.tools.yaml", `
profile: p
tools:
  - name: ping
    service: ping
    overlays:
      - source: default
        targetParam: payload
        value: null
`)
	doc, err := LoadFile(path)
	require.NoError(t, err)

	overlay := doc.Tools[0].Overlays[0]
	assert.True(t, overlay.HasValue)
	assert.Nil(t, overlay.Value)
}

func TestLoadFileJSON(t *testing.T) {
	path := writeDoc(t, "p.tools.json", `{
  "profile": "p",
  "tools": [
    {"name": "ping", "service": "ping"}
  ]
}`)
	doc, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "p", doc.Profile)
	assert.Len(t, doc.Tools, 1)
}

func TestLoadFileRejectsBadSource(t *testing.T) {
	path := writeDoc(t, "p.tools.yaml", `
profile: p
tools:
  - name: ping
    service: ping
    overlays:
      - source: secret
        targetParam: payload
`)
	_, err := LoadFile(path)
	require.Error(t, err)
	assert.True(t, faults.IsKind(err, faults.KindValidation))
}

func TestLoadFileRejectsMissingService(t *testing.T) {
	path := writeDoc(t, "p.tools.yaml", `
profile: p
tools:
  - name: ping
`)
	_, err := LoadFile(path)
	require.Error(t, err)
	assert.True(t, faults.IsKind(err, faults.KindValidation))
}

func TestLocate(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "support.tools.yaml"), []byte("profile: support\ntools: []\n"), 0o644))

	path, err := Locate(dir, "support")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "support.tools.yaml"), path)

	_, err = Locate(dir, "missing")
	assert.Error(t, err)
}

func TestSaveFileRoundTrip(t *testing.T) {
	original, err := LoadFile(writeDoc(t, "support.tools.yaml", sampleYAML))
	require.NoError(t, err)

	out := filepath.Join(t.TempDir(), "merged.tools.json")
	require.NoError(t, SaveFile(original, out))

	reloaded, err := LoadFile(out)
	require.NoError(t, err)

	assert.Equal(t, original.Profile, reloaded.Profile)
	require.Len(t, reloaded.Tools, len(original.Tools))
	assert.Equal(t, original.Tools[0].Overlays, reloaded.Tools[0].Overlays)
	assert.Equal(t, original.Tools[0].Params[1].TargetParam, reloaded.Tools[0].Params[1].TargetParam)
}

func TestToolHelpers(t *testing.T) {
	tool := Tool{
		Params: []ExternalParam{{Name: "a", TargetParam: "x"}},
		Overlays: []Overlay{
			{Source: SourceDefault, TargetParam: "x"},
			{Source: SourceHidden, TargetParam: "y"},
		},
	}

	_, ok := tool.Param("a")
	assert.True(t, ok)
	_, ok = tool.Param("x")
	assert.False(t, ok)

	assert.Len(t, tool.OverlaysFor("x"), 1)
	assert.Empty(t, tool.OverlaysFor("z"))
}
