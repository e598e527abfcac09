package scanner

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"factory/internal/registry"
)

func newScanner(t *testing.T, opts Options) *Scanner {
	t.Helper()
	s, err := New(opts)
	require.NoError(t, err)
	return s
}

func writeFixture(t *testing.T, root, rel, content string) string {
	t.Helper()
	path := filepath.Join(root, rel)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestScanRootPythonDecoratedMethod(t *testing.T) {
	root := t.TempDir()
	writeFixture(t, root, "services.py", `
from models import SearchFilters


class TicketService:
    @mcp_tool(category="tickets", tags=["write", "tickets"], priority=2)
    async def create_ticket(self, title: str, priority: int = 3, filters: SearchFilters | None = None):
        """Create a ticket in the tracker.

        :param title: Ticket summary line.
        :param priority: Urgency from 1 to 5.
        """
        pass
`)

	s := newScanner(t, Options{})
	result, err := s.ScanRoot(root)
	require.NoError(t, err)
	assert.Empty(t, result.Warnings)
	assert.Equal(t, "python", result.Language)

	sig, ok := result.Services["create_ticket"]
	require.True(t, ok)
	assert.Equal(t, "python", sig.Language)
	assert.True(t, sig.Async)
	assert.Equal(t, "TicketService", sig.OwnerType)
	assert.Equal(t, "ticket_service", sig.OwnerAlias)
	assert.Equal(t, "services", sig.Module)

	assert.Equal(t, "tickets", sig.Meta.Category)
	assert.Equal(t, []string{"write", "tickets"}, sig.Meta.Tags)
	assert.Equal(t, 2, sig.Meta.Priority)
	assert.Equal(t, "Create a ticket in the tracker.", sig.Meta.Description)

	require.Len(t, sig.Params, 3)

	title := sig.Params[0]
	assert.Equal(t, "title", title.Name)
	assert.Equal(t, "str", title.Type)
	assert.Equal(t, registry.KindPrimitive, title.Kind)
	assert.False(t, title.Optional)
	assert.Equal(t, "Ticket summary line.", title.Description)

	priority := sig.Params[1]
	assert.Equal(t, "priority", priority.Name)
	assert.Equal(t, "int", priority.Type)
	assert.True(t, priority.HasDefault)
	assert.Equal(t, int64(3), priority.Default)
	assert.True(t, priority.Optional)
	assert.Equal(t, "Urgency from 1 to 5.", priority.Description)

	filters := sig.Params[2]
	assert.Equal(t, "filters", filters.Name)
	assert.Equal(t, "SearchFilters", filters.Type)
	assert.Equal(t, registry.KindComposite, filters.Kind)
	assert.True(t, filters.Optional)
	assert.True(t, filters.HasDefault)
	assert.Nil(t, filters.Default)

	file, ok := result.Files[filepath.Join(root, "services.py")]
	require.True(t, ok)
	require.Len(t, file.Imports, 1)
	assert.Equal(t, "models", file.Imports[0].Module)
	assert.Equal(t, []string{"SearchFilters"}, file.Imports[0].Items)
}

func TestScanRootTypeScriptCommentBlock(t *testing.T) {
	root := t.TempDir()
	writeFixture(t, root, "src/search.ts", `
import { SearchResult } from "./models";

/**
 * Search the ticket index.
 * @mcp-tool
 * @category search
 * @param query Search terms.
 * @param limit Maximum results.
 */
export function searchTickets(query: string, limit?: number): Promise<SearchResult> {
	return null;
}
`)

	s := newScanner(t, Options{})
	result, err := s.ScanRoot(root)
	require.NoError(t, err)

	sig, ok := result.Services["searchTickets"]
	require.True(t, ok)
	assert.Equal(t, "typescript", sig.Language)
	assert.Equal(t, "src/search", sig.Module)
	assert.Equal(t, "Search the ticket index.", sig.Meta.Description)
	assert.Equal(t, "search", sig.Meta.Category)

	require.Len(t, sig.Params, 2)
	assert.Equal(t, "query", sig.Params[0].Name)
	assert.Equal(t, "string", sig.Params[0].Type)
	assert.Equal(t, registry.KindPrimitive, sig.Params[0].Kind)
	assert.False(t, sig.Params[0].Optional)
	assert.Equal(t, "Search terms.", sig.Params[0].Description)

	assert.Equal(t, "limit", sig.Params[1].Name)
	assert.Equal(t, "number", sig.Params[1].Type)
	assert.True(t, sig.Params[1].Optional)
	assert.Equal(t, "Maximum results.", sig.Params[1].Description)
}

func TestScanRootJavaScriptCommentTypesWin(t *testing.T) {
	root := t.TempDir()
	writeFixture(t, root, "list.js", `
/**
 * List open tickets.
 * @mcp-tool
 * @param {string} status Status filter.
 * @param {number} [limit=10] Page size.
 */
const listTickets = async (status, limit = 10) => {
	return [];
};
`)

	s := newScanner(t, Options{})
	result, err := s.ScanRoot(root)
	require.NoError(t, err)

	sig, ok := result.Services["listTickets"]
	require.True(t, ok)
	assert.Equal(t, "javascript", sig.Language)
	assert.True(t, sig.Async)
	assert.Equal(t, "List open tickets.", sig.Meta.Description)

	require.Len(t, sig.Params, 2)
	// Untyped source: the doc comment supplies the types.
	assert.Equal(t, "string", sig.Params[0].Type)
	assert.Equal(t, registry.KindPrimitive, sig.Params[0].Kind)
	assert.Equal(t, "number", sig.Params[1].Type)
	assert.True(t, sig.Params[1].HasDefault)
	assert.Equal(t, int64(10), sig.Params[1].Default)
	assert.True(t, sig.Params[1].Optional)
}

func TestScanRootGoCommentGroup(t *testing.T) {
	root := t.TempDir()
	writeFixture(t, root, "tickets/service.go", `package tickets

import "context"

type TicketService struct{}

// CloseTicket closes a ticket with an optional reason.
// @mcp-tool
// @category tickets
// @param id Ticket identifier.
func (s *TicketService) CloseTicket(ctx context.Context, id string, reason *string) error {
	return nil
}
`)

	s := newScanner(t, Options{})
	result, err := s.ScanRoot(root)
	require.NoError(t, err)

	sig, ok := result.Services["CloseTicket"]
	require.True(t, ok)
	assert.Equal(t, "go", sig.Language)
	assert.Equal(t, "TicketService", sig.OwnerType)
	assert.Equal(t, "ticket_service", sig.OwnerAlias)
	assert.Equal(t, "tickets/service", sig.Module)
	assert.Equal(t, "tickets", sig.Meta.Category)
	assert.Equal(t, "CloseTicket closes a ticket with an optional reason.", sig.Meta.Description)
	assert.Equal(t, "error", sig.Returns)

	require.Len(t, sig.Params, 2)
	assert.Equal(t, "id", sig.Params[0].Name)
	assert.Equal(t, "string", sig.Params[0].Type)
	assert.False(t, sig.Params[0].Optional)
	assert.Equal(t, "Ticket identifier.", sig.Params[0].Description)

	assert.Equal(t, "reason", sig.Params[1].Name)
	assert.Equal(t, "string", sig.Params[1].Type)
	assert.True(t, sig.Params[1].Optional)
}

func TestScanRootDuplicateServiceKeepsFirst(t *testing.T) {
	root := t.TempDir()
	writeFixture(t, root, "a.py", `
@mcp_tool()
def ping():
    pass
`)
	writeFixture(t, root, "b.py", `
@mcp_tool()
def ping():
    pass
`)

	s := newScanner(t, Options{})
	result, err := s.ScanRoot(root)
	require.NoError(t, err)

	sig, ok := result.Services["ping"]
	require.True(t, ok)
	assert.Equal(t, filepath.Join(root, "a.py"), sig.File)

	require.Len(t, result.Warnings, 1)
	assert.Contains(t, result.Warnings[0].Message, `service "ping" already defined`)
}

func TestScanRootExcludesDirs(t *testing.T) {
	root := t.TempDir()
	writeFixture(t, root, "vendor/dep.py", `
@mcp_tool()
def vendored():
    pass
`)
	writeFixture(t, root, "app.py", `
@mcp_tool()
def exposed():
    pass
`)

	s := newScanner(t, Options{ExcludeDirs: []string{"vendor"}})
	result, err := s.ScanRoot(root)
	require.NoError(t, err)

	assert.Contains(t, result.Services, "exposed")
	assert.NotContains(t, result.Services, "vendored")
}

func TestScanRootRejectsMissingRoot(t *testing.T) {
	s := newScanner(t, Options{})
	_, err := s.ScanRoot(filepath.Join(t.TempDir(), "missing"))
	assert.Error(t, err)
}

func TestModuleName(t *testing.T) {
	assert.Equal(t, "pkg.mod", ModuleName("/src", "/src/pkg/mod.py", "python"))
	assert.Equal(t, "pkg", ModuleName("/src", "/src/pkg/__init__.py", "python"))
	assert.Equal(t, "src/api", ModuleName("/repo", "/repo/src/api.ts", "typescript"))
	assert.Equal(t, "tickets/service", ModuleName("/repo", "/repo/tickets/service.go", "go"))
}

func TestClassifyType(t *testing.T) {
	cases := []struct {
		token    string
		want     string
		kind     registry.TypeKind
		optional bool
	}{
		{"str", "str", registry.KindPrimitive, false},
		{"Optional[int]", "int", registry.KindPrimitive, true},
		{"SearchFilters | None", "SearchFilters", registry.KindComposite, true},
		{"number?", "number", registry.KindPrimitive, true},
		{"*Options", "Options", registry.KindComposite, true},
		{"list[str]", "list[str]", registry.KindCollection, false},
		{"Record<string, number>", "Record<string, number>", registry.KindCollection, false},
		{"map[string]int", "map[string]int", registry.KindCollection, false},
		{"Ticket", "Ticket", registry.KindComposite, false},
		{"", "", registry.KindPrimitive, false},
	}
	for _, tc := range cases {
		token, kind, optional := ClassifyType(tc.token)
		assert.Equal(t, tc.want, token, tc.token)
		assert.Equal(t, tc.kind, kind, tc.token)
		assert.Equal(t, tc.optional, optional, tc.token)
	}
}

func TestParseDocBlock(t *testing.T) {
	block := parseDocBlock([]string{
		"Fetch a page of results.",
		"@mcp-tool",
		"@category search",
		"@tags read, paging",
		"@priority 4",
		"@param {string} query Search terms",
		"spanning two lines.",
		"@param {number} [limit=25] Page size.",
		"@returns {Page}",
	})

	assert.True(t, block.IsTool)
	assert.Equal(t, "Fetch a page of results.", block.Description)
	assert.Equal(t, "search", block.Category)
	assert.Equal(t, []string{"read", "paging"}, block.Tags)
	assert.Equal(t, 4, block.Priority)
	assert.Equal(t, "Page", block.Returns)

	require.Len(t, block.Params, 2)
	assert.Equal(t, "query", block.Params[0].Name)
	assert.Equal(t, "string", block.Params[0].Type)
	assert.Equal(t, "Search terms spanning two lines.", block.Params[0].Description)
	assert.False(t, block.Params[0].Optional)

	assert.Equal(t, "limit", block.Params[1].Name)
	assert.True(t, block.Params[1].Optional)
	assert.True(t, block.Params[1].HasDefault)
	assert.Equal(t, int64(25), block.Params[1].Default)
}

func TestParseDocBlockWithoutMarker(t *testing.T) {
	block := parseDocBlock([]string{"Just a helper.", "@param {string} x"})
	assert.False(t, block.IsTool)
}

func TestParseScalarLiteral(t *testing.T) {
	assert.Equal(t, true, parseScalarLiteral("true"))
	assert.Equal(t, false, parseScalarLiteral("false"))
	assert.Nil(t, parseScalarLiteral("null"))
	assert.Equal(t, int64(42), parseScalarLiteral("42"))
	assert.Equal(t, 2.5, parseScalarLiteral("2.5"))
	assert.Equal(t, "draft", parseScalarLiteral(`"draft"`))
}
