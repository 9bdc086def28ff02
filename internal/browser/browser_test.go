package browser

import (
	"context"
	"math/rand"
	"testing"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/dom"
	"github.com/stretchr/testify/assert"

	"github.com/residency-data/goaccredit/internal/config"
)

func TestXPathLiteral(t *testing.T) {
	assert.Equal(t, `'View History'`, xpathLiteral("View History"))
	assert.Equal(t, `"Program's History"`, xpathLiteral("Program's History"))
	assert.Equal(t, `concat('a', "'", 'b"c')`, xpathLiteral(`a'b"c`))
}

func TestLocators(t *testing.T) {
	link := TextLink("View Accreditation History")
	assert.True(t, link.XPath)
	assert.Equal(t, "//*[normalize-space(text())='View Accreditation History']", link.Query)

	btn := ButtonLink("View Accreditation History")
	assert.True(t, btn.XPath)
	assert.Contains(t, btn.Query, "' btn '")
	assert.Contains(t, btn.Query, "' btn-primary '")
	assert.Contains(t, btn.Query, "contains(normalize-space(.), 'View Accreditation History')")

	css := CSS("table")
	assert.False(t, css.XPath)
	assert.Equal(t, "table", css.String())
}

func TestRangePick(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	r := Range{Min: 200 * time.Millisecond, Max: 700 * time.Millisecond}
	for range 100 {
		d := r.Pick(rng)
		assert.GreaterOrEqual(t, d, r.Min)
		assert.LessOrEqual(t, d, r.Max)
	}

	fixed := Range{Min: time.Second, Max: time.Second}
	assert.Equal(t, time.Second, fixed.Pick(rng))

	inverted := Range{Min: time.Second, Max: 0}
	assert.Equal(t, time.Second, inverted.Pick(rng))
}

func TestSleep_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	start := time.Now()
	err := sleep(ctx, time.Minute)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Less(t, time.Since(start), time.Second)
}

func TestQuadCenter(t *testing.T) {
	x, y := quadCenter(dom.Quad{10, 20, 30, 20, 30, 40, 10, 40})
	assert.InDelta(t, 20.0, x, 1e-9)
	assert.InDelta(t, 30.0, y, 1e-9)
}

func TestNodeText(t *testing.T) {
	n := &cdp.Node{
		NodeType: cdp.NodeTypeElement,
		Children: []*cdp.Node{
			{NodeType: cdp.NodeTypeText, NodeValue: "  View\n"},
			{NodeType: cdp.NodeTypeElement, Children: []*cdp.Node{
				{NodeType: cdp.NodeTypeText, NodeValue: " Accreditation History "},
			}},
		},
	}
	assert.Equal(t, "View Accreditation History", nodeText(n))
}

func TestOptionsFromConfig(t *testing.T) {
	cfg := config.DefaultConfig().Browser
	cfg.Headless = true

	opts := OptionsFromConfig(cfg)
	assert.True(t, opts.Headless)
	assert.Equal(t, 1366, opts.Width)
	assert.Equal(t, 200*time.Millisecond, opts.Pauses.PreMove.Min)
	assert.Equal(t, 700*time.Millisecond, opts.Pauses.PreMove.Max)
	assert.Equal(t, 500*time.Millisecond, opts.Pauses.PostClick.Max)
}
