package api

import (
	"context"
	"fmt"
	"io"
	"net/http"
)

// DownloadReport streams a server-generated report (PDF) at link into w.
// link is usually a report_url taken from a results payload.
func (c *Client) DownloadReport(ctx context.Context, link string, w io.Writer) (int64, error) {
	req, err := c.newRequest(ctx, http.MethodGet, link, nil)
	if err != nil {
		return 0, err
	}
	req.Header.Set("Accept", "application/pdf")

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		if err := checkResponse(resp.StatusCode, data); err != nil {
			return 0, err
		}
		return 0, &StatusError{Code: resp.StatusCode}
	}

	n, err := io.Copy(w, resp.Body)
	if err != nil {
		return n, fmt.Errorf("write report: %w", err)
	}
	return n, nil
}
