package cdp

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
)

// Evaluate runs expression in the page's main world and decodes the
// by-value result into out. A thrown exception is returned as
// *ExceptionDetails.
func (c *Client) Evaluate(ctx context.Context, expression string, out any) error {
	var res EvaluateResult
	err := c.Call(ctx, "Runtime.evaluate", map[string]any{
		"expression":    expression,
		"returnByValue": true,
		"awaitPromise":  true,
	}, &res)
	if err != nil {
		return err
	}
	if res.ExceptionDetails != nil {
		return res.ExceptionDetails
	}
	if out == nil || res.Result.Type == "undefined" || len(res.Result.Value) == 0 {
		return nil
	}
	if err := json.Unmarshal(res.Result.Value, out); err != nil {
		return fmt.Errorf("failed to parse evaluation result: %w", err)
	}
	return nil
}

// Navigate sends Page.navigate and waits for Page.loadEventFired.
// The Page domain must be enabled first.
func (c *Client) Navigate(ctx context.Context, url string) error {
	_, err := c.WaitEventFunc(ctx, "Page.loadEventFired", func() error {
		var nav NavigateResult
		if err := c.Call(ctx, "Page.navigate", map[string]any{"url": url}, &nav); err != nil {
			return fmt.Errorf("navigation failed: %w", err)
		}
		if nav.ErrorText != "" {
			return fmt.Errorf("navigation failed: %s", nav.ErrorText)
		}
		return nil
	})
	return err
}

// CaptureScreenshot captures the viewport as PNG bytes.
func (c *Client) CaptureScreenshot(ctx context.Context, fullPage bool) ([]byte, error) {
	params := map[string]any{
		"format": "png",
	}
	if fullPage {
		params["captureBeyondViewport"] = true
	}

	var resp struct {
		Data string `json:"data"` // base64-encoded PNG
	}
	if err := c.Call(ctx, "Page.captureScreenshot", params, &resp); err != nil {
		return nil, fmt.Errorf("failed to capture screenshot: %w", err)
	}

	png, err := base64.StdEncoding.DecodeString(resp.Data)
	if err != nil {
		return nil, fmt.Errorf("failed to decode screenshot data: %w", err)
	}
	return png, nil
}
