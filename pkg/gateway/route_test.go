package gateway

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPathPatternMatchesVarSegment(t *testing.T) {
	p := CompilePathPattern("/foo/{user-id}")
	vars, ok := p.Match("/foo/1")
	require.True(t, ok)
	require.Equal(t, "1", vars["user-id"])
}

func TestPathPatternRejectsWrongSegmentCount(t *testing.T) {
	p := CompilePathPattern("/foo/{user-id}")
	_, ok := p.Match("/foo/1/extra")
	require.False(t, ok)
}

func TestPathPatternRestSegmentBindsRemaining(t *testing.T) {
	p := CompilePathPattern("/a/{var}/b/{rest..}")
	vars, ok := p.Match("/a/x/b/y/z/w")
	require.True(t, ok)
	require.Equal(t, "x", vars["var"])
	require.Equal(t, []interface{}{"y", "z", "w"}, vars["rest"])
}

func TestPathPatternRestSegmentAcceptsEmptyTail(t *testing.T) {
	p := CompilePathPattern("/a/{rest..}")
	vars, ok := p.Match("/a")
	require.True(t, ok)
	require.Equal(t, []interface{}{}, vars["rest"])
}

func TestResolveLongestLiteralPrefixWins(t *testing.T) {
	def := NewCompiledAPIDefinition()
	_, err := def.AddRoute(RouteSpec{Method: "GET", Path: "/foo/{id}", Binding: &Binding{Kind: BindingFileServer, ResponseRib: `{file_path: "a"}`}})
	require.NoError(t, err)
	_, err = def.AddRoute(RouteSpec{Method: "GET", Path: "/foo/bar", Binding: &Binding{Kind: BindingFileServer, ResponseRib: `{file_path: "b"}`}})
	require.NoError(t, err)

	route, _, ok := def.Resolve("GET", "/foo/bar")
	require.True(t, ok)
	require.Equal(t, 2, route.Pattern.literalPrefixLen())
}

func TestResolveDeclarationOrderTieBreak(t *testing.T) {
	def := NewCompiledAPIDefinition()
	first, err := def.AddRoute(RouteSpec{Method: "GET", Path: "/foo/{a}", Binding: &Binding{Kind: BindingFileServer, ResponseRib: `{file_path: "a"}`}})
	require.NoError(t, err)
	_, err = def.AddRoute(RouteSpec{Method: "GET", Path: "/foo/{b}", Binding: &Binding{Kind: BindingFileServer, ResponseRib: `{file_path: "b"}`}})
	require.NoError(t, err)

	route, _, ok := def.Resolve("GET", "/foo/1")
	require.True(t, ok)
	require.Same(t, first, route)
}

func TestResolveImplicitOptionsUsesCORSRoute(t *testing.T) {
	def := NewCompiledAPIDefinition()
	_, err := def.AddRoute(RouteSpec{
		Method:      "GET",
		Path:        "/foo/1",
		CORSEnabled: true,
		Binding:     &Binding{Kind: BindingFileServer, ResponseRib: `{file_path: "a"}`, CorsOptions: DefaultCorsOptions()},
	})
	require.NoError(t, err)

	route, _, ok := def.Resolve("OPTIONS", "/foo/1")
	require.True(t, ok)
	require.Equal(t, BindingCorsPreflight, route.Binding.Kind)
}

func TestResolveNoMatchReturnsFalse(t *testing.T) {
	def := NewCompiledAPIDefinition()
	_, _, ok := def.Resolve("GET", "/nope")
	require.False(t, ok)
}
