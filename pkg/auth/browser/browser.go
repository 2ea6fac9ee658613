// Package browser drives the vendor login page. The page serves JS
// challenges that a plain HTTP client cannot answer, so the default
// implementation runs a headless Chromium via chromedp. The interface
// is deliberately narrow; the auth engine never sees chromedp types.
package browser

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/chromedp/chromedp"
	"github.com/rs/zerolog"
)

// Step timeouts for page interaction.
const (
	NavigateTimeout = 60 * time.Second
	ElementTimeout  = 30 * time.Second
	RedirectTimeout = 60 * time.Second
)

// Interactor is the scriptable-browser surface the auth engine needs.
// Element arguments are DOM ids without the leading '#'.
type Interactor interface {
	Navigate(ctx context.Context, url string) error
	WaitVisible(ctx context.Context, id string, timeout time.Duration) error
	Type(ctx context.Context, id, text string) error
	Click(ctx context.Context, id string) error
	URL(ctx context.Context) (string, error)

	// WaitURLPrefix polls the location until it starts with prefix and
	// returns the full URL, or fails after timeout.
	WaitURLPrefix(ctx context.Context, prefix string, timeout time.Duration) (string, error)

	// Cleanup tears the browser down. Safe to call more than once.
	Cleanup()
}

// Chrome is the chromedp-backed Interactor.
type Chrome struct {
	ctx         context.Context
	cancelTab   context.CancelFunc
	cancelAlloc context.CancelFunc
	log         zerolog.Logger
}

var _ Interactor = (*Chrome)(nil)

// New launches a headless Chromium and opens one tab.
func New(log zerolog.Logger) (*Chrome, error) {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", true),
		chromedp.Flag("disable-gpu", true),
		// Required when running as root inside a container.
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
	)

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(context.Background(), opts...)
	tabCtx, cancelTab := chromedp.NewContext(allocCtx)

	c := &Chrome{
		ctx:         tabCtx,
		cancelTab:   cancelTab,
		cancelAlloc: cancelAlloc,
		log:         log.With().Str("component", "browser").Logger(),
	}

	// Starting the browser eagerly surfaces a missing Chromium binary
	// here instead of mid-login.
	if err := chromedp.Run(tabCtx); err != nil {
		c.Cleanup()
		return nil, fmt.Errorf("start chromium: %w", err)
	}
	return c, nil
}

func (c *Chrome) run(ctx context.Context, timeout time.Duration, actions ...chromedp.Action) error {
	tctx, cancel := context.WithTimeout(c.ctx, timeout)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- chromedp.Run(tctx, actions...) }()

	select {
	case <-ctx.Done():
		cancel()
		<-done
		return ctx.Err()
	case err := <-done:
		return err
	}
}

func (c *Chrome) Navigate(ctx context.Context, url string) error {
	c.log.Debug().Str("url", url).Msg("navigate")
	if err := c.run(ctx, NavigateTimeout, chromedp.Navigate(url)); err != nil {
		return fmt.Errorf("navigate %s: %w", url, err)
	}
	return nil
}

func (c *Chrome) WaitVisible(ctx context.Context, id string, timeout time.Duration) error {
	if err := c.run(ctx, timeout, chromedp.WaitVisible(id, chromedp.ByID)); err != nil {
		return fmt.Errorf("wait for #%s: %w", id, err)
	}
	return nil
}

func (c *Chrome) Type(ctx context.Context, id, text string) error {
	err := c.run(ctx, ElementTimeout,
		chromedp.Clear(id, chromedp.ByID),
		chromedp.SendKeys(id, text, chromedp.ByID),
	)
	if err != nil {
		return fmt.Errorf("type into #%s: %w", id, err)
	}
	return nil
}

func (c *Chrome) Click(ctx context.Context, id string) error {
	if err := c.run(ctx, ElementTimeout, chromedp.Click(id, chromedp.ByID)); err != nil {
		return fmt.Errorf("click #%s: %w", id, err)
	}
	return nil
}

func (c *Chrome) URL(ctx context.Context) (string, error) {
	var loc string
	if err := c.run(ctx, ElementTimeout, chromedp.Location(&loc)); err != nil {
		return "", fmt.Errorf("read location: %w", err)
	}
	return loc, nil
}

func (c *Chrome) WaitURLPrefix(ctx context.Context, prefix string, timeout time.Duration) (string, error) {
	deadline := time.Now().Add(timeout)
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	for {
		loc, err := c.URL(ctx)
		if err == nil && strings.HasPrefix(loc, prefix) {
			return loc, nil
		}
		if time.Now().After(deadline) {
			return "", fmt.Errorf("no redirect to %s within %s (at %s)", prefix, timeout, loc)
		}
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-ticker.C:
		}
	}
}

func (c *Chrome) Cleanup() {
	if c.cancelTab != nil {
		c.cancelTab()
		c.cancelTab = nil
	}
	if c.cancelAlloc != nil {
		c.cancelAlloc()
		c.cancelAlloc = nil
	}
}
