package document

import (
	"regexp"
	"strings"

	"github.com/vertextoedge/subscription-archiver/internal/domain"
)

const (
	// HTMLFile and PDFFile are the document artifacts written per product
	HTMLFile = "book.html"
	PDFFile  = "book.pdf"

	// DefaultImageBaseURL is where relative graphics references are served from
	DefaultImageBaseURL = "https://static.packt-cdn.com/products"

	titlePlaceholder = "{title}"
	bodyPlaceholder  = "{body}"
)

const fragmentOpen = `<div class="row">
            <div class="col-xs-12 reset-position">
                <div class="book-sections">
                    `

const fragmentClose = `
                </div>
            </div>
        </div>`

var graphicsRef = regexp.MustCompile(`src="/graphics/(\d+)`)

// Assembler builds a product's HTML document from its text fragments
type Assembler struct {
	template     string
	imageBaseURL string
}

// NewAssembler creates an assembler for a template holding {title} and {body}
func NewAssembler(template, imageBaseURL string) *Assembler {
	if imageBaseURL == "" {
		imageBaseURL = DefaultImageBaseURL
	}
	return &Assembler{
		template:     template,
		imageBaseURL: strings.TrimRight(imageBaseURL, "/"),
	}
}

// Assemble wraps each fragment, substitutes {body} then {title} once each,
// and rewrites relative graphics references to absolute URLs
func (a *Assembler) Assemble(title string, fragments *domain.TextFragments) string {
	var body strings.Builder
	for _, f := range fragments.Items() {
		body.WriteString(fragmentOpen)
		body.WriteString(string(f))
		body.WriteString(fragmentClose)
	}

	doc := strings.Replace(a.template, bodyPlaceholder, body.String(), 1)
	doc = strings.Replace(doc, titlePlaceholder, title, 1)
	return graphicsRef.ReplaceAllString(doc, `src="`+regexpLiteral(a.imageBaseURL)+`/${1}`)
}

// regexpLiteral escapes $ so the base URL is not expanded as a group reference
func regexpLiteral(s string) string {
	return strings.ReplaceAll(s, "$", "$$")
}
