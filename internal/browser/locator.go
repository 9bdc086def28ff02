package browser

import (
	"fmt"
	"strings"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/chromedp"
)

// Locator identifies an element by CSS selector or XPath expression.
type Locator struct {
	Query string
	XPath bool
}

// CSS returns a CSS-selector locator.
func CSS(selector string) Locator {
	return Locator{Query: selector}
}

// TextLink matches any element whose own text is exactly text, ignoring
// surrounding whitespace.
func TextLink(text string) Locator {
	return Locator{
		Query: fmt.Sprintf("//*[normalize-space(text())=%s]", xpathLiteral(text)),
		XPath: true,
	}
}

// ButtonLink matches a primary button-styled anchor containing text.
func ButtonLink(text string) Locator {
	return Locator{
		Query: fmt.Sprintf("//a[%s and %s and contains(normalize-space(.), %s)]",
			hasClass("btn"), hasClass("btn-primary"), xpathLiteral(text)),
		XPath: true,
	}
}

func (l Locator) String() string {
	return l.Query
}

func (l Locator) by() chromedp.QueryOption {
	if l.XPath {
		return chromedp.BySearch
	}
	return chromedp.ByQuery
}

func hasClass(name string) string {
	return fmt.Sprintf("contains(concat(' ', normalize-space(@class), ' '), ' %s ')", name)
}

// xpathLiteral quotes s for use in an XPath 1.0 expression.
func xpathLiteral(s string) string {
	if !strings.Contains(s, "'") {
		return "'" + s + "'"
	}
	if !strings.Contains(s, `"`) {
		return `"` + s + `"`
	}
	parts := strings.Split(s, "'")
	quoted := make([]string, 0, len(parts)*2)
	for i, p := range parts {
		if i > 0 {
			quoted = append(quoted, `"'"`)
		}
		quoted = append(quoted, "'"+p+"'")
	}
	return "concat(" + strings.Join(quoted, ", ") + ")"
}

// Element is a located DOM node with the attributes the resolver needs.
type Element struct {
	NodeID cdp.NodeID
	Text   string
	Href   string
}
