package document

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/vertextoedge/subscription-archiver/internal/domain"
)

func fragments(items ...string) *domain.TextFragments {
	f := domain.NewTextFragments()
	for _, item := range items {
		f.Add(domain.TextFragment(item))
	}
	return f
}

func TestAssembler_SingleFragment(t *testing.T) {
	a := NewAssembler("<html>{title}{body}</html>", "")

	got := a.Assemble("Go Book", fragments("<p>hello</p>"))

	want := "<html>Go Book" + fragmentOpen + "<p>hello</p>" + fragmentClose + "</html>"
	assert.Equal(t, want, got)
	assert.Contains(t, got, `<div class="book-sections">`)
}

func TestAssembler_PreservesOrder(t *testing.T) {
	a := NewAssembler("{body}", "")

	got := a.Assemble("t", fragments("<p>one</p>", "<p>two</p>", "<p>three</p>"))

	one := strings.Index(got, "one")
	two := strings.Index(got, "two")
	three := strings.Index(got, "three")
	assert.True(t, one < two && two < three)
	assert.Equal(t, 3, strings.Count(got, `<div class="row">`))
}

func TestAssembler_ReplacesFirstPlaceholderOnly(t *testing.T) {
	a := NewAssembler("<title>{title}</title><h1>{title}</h1>{body}{body}", "")

	got := a.Assemble("T", fragments("x"))

	assert.True(t, strings.HasPrefix(got, "<title>T</title><h1>{title}</h1>"))
	assert.True(t, strings.HasSuffix(got, "{body}"))
}

func TestAssembler_RewritesGraphics(t *testing.T) {
	tests := []struct {
		name    string
		base    string
		content string
		want    string
	}{
		{
			name:    "default cdn",
			content: `<img src="/graphics/9781234/graphics/img.png">`,
			want:    `<img src="https://static.packt-cdn.com/products/9781234/graphics/img.png">`,
		},
		{
			name:    "custom base with trailing slash",
			base:    "https://cdn.example.com/p/",
			content: `<img src="/graphics/42/a.png"><img src="/graphics/43/b.png">`,
			want:    `<img src="https://cdn.example.com/p/42/a.png"><img src="https://cdn.example.com/p/43/b.png">`,
		},
		{
			name:    "non numeric left alone",
			content: `<img src="/graphics/logo.png">`,
			want:    `<img src="/graphics/logo.png">`,
		},
		{
			name:    "absolute left alone",
			content: `<img src="https://other.example.com/graphics/1.png">`,
			want:    `<img src="https://other.example.com/graphics/1.png">`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := NewAssembler("{body}", tt.base)
			got := a.Assemble("t", fragments(tt.content))
			assert.Contains(t, got, tt.want)
		})
	}
}

func TestAssembler_EmptyCollection(t *testing.T) {
	a := NewAssembler("<html>{title}{body}</html>", "")
	assert.Equal(t, "<html>T</html>", a.Assemble("T", domain.NewTextFragments()))
}
