package session

import (
	"context"

	"github.com/chromedp/chromedp"
	"github.com/chromedp/chromedp/kb"
)

// page is the part of a browser tab the controller drives. ctx must be
// derived from the tab context.
type page interface {
	Navigate(ctx context.Context, url string) error
	Eval(ctx context.Context, script string, res any) error
	PressEnter(ctx context.Context) error
}

// tabPage drives a chromedp tab
type tabPage struct{}

func (tabPage) Navigate(ctx context.Context, url string) error {
	return chromedp.Run(ctx, chromedp.Navigate(url))
}

func (tabPage) Eval(ctx context.Context, script string, res any) error {
	return chromedp.Run(ctx, chromedp.Evaluate(script, res))
}

// PressEnter focuses the compose box and presses Enter, trying each
// known compose selector
func (tabPage) PressEnter(ctx context.Context) error {
	var lastErr error
	for _, sel := range composeSelectors {
		err := chromedp.Run(ctx,
			chromedp.Click(sel, chromedp.ByQuery, chromedp.AtLeast(0)),
			chromedp.SendKeys(sel, kb.Enter, chromedp.ByQuery, chromedp.AtLeast(0)),
		)
		if err == nil {
			return nil
		}
		lastErr = err
	}
	return lastErr
}
