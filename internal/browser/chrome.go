package browser

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
)

// XPathPrefix marks a selector as XPath rather than CSS.
const XPathPrefix = "xpath:"

// ChromeDriver implements Driver and CookieJar on a chromedp tab.
type ChromeDriver struct {
	tab               context.Context
	queryTimeout      time.Duration
	navigationTimeout time.Duration
}

// NewChromeDriver wraps a chromedp tab context.
func NewChromeDriver(tab context.Context, queryTimeout, navigationTimeout time.Duration) *ChromeDriver {
	if queryTimeout <= 0 {
		queryTimeout = 2 * time.Second
	}
	if navigationTimeout <= 0 {
		navigationTimeout = 30 * time.Second
	}
	return &ChromeDriver{tab: tab, queryTimeout: queryTimeout, navigationTimeout: navigationTimeout}
}

// run executes actions on the tab, bounded by timeout and cancelled with ctx.
func (d *ChromeDriver) run(ctx context.Context, timeout time.Duration, actions ...chromedp.Action) error {
	tctx, cancel := context.WithTimeout(d.tab, timeout)
	defer cancel()

	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	return chromedp.Run(tctx, actions...)
}

func (d *ChromeDriver) query(ctx context.Context, selector string) []*cdp.Node {
	var nodes []*cdp.Node
	opts := []chromedp.QueryOption{chromedp.AtLeast(0)}

	sel := selector
	if strings.HasPrefix(selector, XPathPrefix) {
		sel = strings.TrimPrefix(selector, XPathPrefix)
		opts = append(opts, chromedp.BySearch)
	} else {
		opts = append(opts, chromedp.ByQueryAll)
	}

	if err := d.run(ctx, d.queryTimeout, chromedp.Nodes(sel, &nodes, opts...)); err != nil {
		return nil
	}
	return nodes
}

func toElements(nodes []*cdp.Node) []Element {
	out := make([]Element, 0, len(nodes))
	for _, n := range nodes {
		out = append(out, Element{Key: fmt.Sprintf("%s#%d", strings.ToLower(n.NodeName), n.NodeID), Handle: n})
	}
	return out
}

func nodeIDs(el Element) ([]cdp.NodeID, bool) {
	n, ok := el.Handle.(*cdp.Node)
	if !ok || n == nil {
		return nil, false
	}
	return []cdp.NodeID{n.NodeID}, true
}

// FindByExactText implements Driver. The innermost element whose normalized
// text equals label wins; "Q2" never selects "Q20".
func (d *ChromeDriver) FindByExactText(ctx context.Context, label string) (Element, bool) {
	lit := xpathLiteral(NormalizeLabel(label))
	xpath := fmt.Sprintf("//*[normalize-space(.)=%s][not(*[normalize-space(.)=%s])]", lit, lit)

	for _, el := range toElements(d.query(ctx, XPathPrefix+xpath)) {
		if text, ok := d.ReadText(ctx, el); ok && NormalizeLabel(text) == NormalizeLabel(label) {
			return el, true
		}
	}
	return Element{}, false
}

// FindAll implements Driver.
func (d *ChromeDriver) FindAll(ctx context.Context, selector string) []Element {
	return toElements(d.query(ctx, selector))
}

// IsVisible implements Driver.
func (d *ChromeDriver) IsVisible(ctx context.Context, el Element, timeout time.Duration) bool {
	ids, ok := nodeIDs(el)
	if !ok {
		return false
	}
	if timeout <= 0 {
		timeout = d.queryTimeout
	}
	return d.run(ctx, timeout, chromedp.WaitVisible(ids, chromedp.ByNodeID)) == nil
}

// Click implements Driver.
func (d *ChromeDriver) Click(ctx context.Context, el Element) error {
	ids, ok := nodeIDs(el)
	if !ok {
		return fmt.Errorf("click %s: stale element", el.Key)
	}
	if err := d.run(ctx, d.queryTimeout, chromedp.ScrollIntoView(ids, chromedp.ByNodeID), chromedp.Click(ids, chromedp.ByNodeID)); err != nil {
		return fmt.Errorf("click %s: %w", el.Key, err)
	}
	return nil
}

// ReadText implements Driver. The element's HTML is rendered to text so
// line structure inside code editors is preserved.
func (d *ChromeDriver) ReadText(ctx context.Context, el Element) (string, bool) {
	ids, ok := nodeIDs(el)
	if !ok {
		return "", false
	}
	var html string
	if err := d.run(ctx, d.queryTimeout, chromedp.OuterHTML(ids, &html, chromedp.ByNodeID)); err != nil {
		return "", false
	}
	text := HTMLToText(html)
	return text, strings.TrimSpace(text) != ""
}

// ReadValue implements Driver.
func (d *ChromeDriver) ReadValue(ctx context.Context, el Element) (string, bool) {
	ids, ok := nodeIDs(el)
	if !ok {
		return "", false
	}
	var value string
	if err := d.run(ctx, d.queryTimeout, chromedp.Value(ids, &value, chromedp.ByNodeID)); err != nil {
		return "", false
	}
	return value, strings.TrimSpace(value) != ""
}

// Navigate implements Driver.
func (d *ChromeDriver) Navigate(ctx context.Context, url string) error {
	if err := d.run(ctx, d.navigationTimeout, chromedp.Navigate(url)); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrNavigation, url, err)
	}
	return nil
}

// CurrentURL implements Driver.
func (d *ChromeDriver) CurrentURL(ctx context.Context) string {
	var url string
	if err := d.run(ctx, d.queryTimeout, chromedp.Location(&url)); err != nil {
		return ""
	}
	return url
}

// Wait implements Driver.
func (d *ChromeDriver) Wait(ctx context.Context, dur time.Duration) error {
	return Sleep(ctx, dur)
}

// Cookies implements CookieJar.
func (d *ChromeDriver) Cookies(ctx context.Context) ([]Cookie, error) {
	var raw []*network.Cookie
	err := d.run(ctx, d.queryTimeout, chromedp.ActionFunc(func(ctx context.Context) error {
		var err error
		raw, err = network.GetCookies().Do(ctx)
		return err
	}))
	if err != nil {
		return nil, fmt.Errorf("failed to read cookies: %w", err)
	}

	cookies := make([]Cookie, 0, len(raw))
	for _, c := range raw {
		cookies = append(cookies, Cookie{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   c.Domain,
			Path:     c.Path,
			Expires:  c.Expires,
			HTTPOnly: c.HTTPOnly,
			Secure:   c.Secure,
			SameSite: c.SameSite.String(),
		})
	}
	return cookies, nil
}

// SetCookies implements CookieJar.
func (d *ChromeDriver) SetCookies(ctx context.Context, cookies []Cookie) error {
	params := make([]*network.CookieParam, 0, len(cookies))
	for _, c := range cookies {
		p := &network.CookieParam{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   c.Domain,
			Path:     c.Path,
			HTTPOnly: c.HTTPOnly,
			Secure:   c.Secure,
		}
		if c.SameSite != "" {
			p.SameSite = network.CookieSameSite(c.SameSite)
		}
		if c.Expires > 0 {
			expires := cdp.TimeSinceEpoch(time.Unix(int64(c.Expires), 0))
			p.Expires = &expires
		}
		params = append(params, p)
	}

	err := d.run(ctx, d.queryTimeout, chromedp.ActionFunc(func(ctx context.Context) error {
		return network.SetCookies(params).Do(ctx)
	}))
	if err != nil {
		return fmt.Errorf("failed to set cookies: %w", err)
	}
	return nil
}

// xpathLiteral quotes s for use in an XPath expression.
func xpathLiteral(s string) string {
	if !strings.Contains(s, "'") {
		return "'" + s + "'"
	}
	if !strings.Contains(s, `"`) {
		return `"` + s + `"`
	}
	parts := strings.Split(s, "'")
	quoted := make([]string, len(parts))
	for i, p := range parts {
		quoted[i] = "'" + p + "'"
	}
	return "concat(" + strings.Join(quoted, `, "'", `) + ")"
}

var (
	_ Driver    = (*ChromeDriver)(nil)
	_ CookieJar = (*ChromeDriver)(nil)
)
