package notify

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cloudreg/regsync/internal/logger"
	"github.com/cloudreg/regsync/pkg/types"
)

// Webhook posts a markdown run summary to a chat webhook, with optional
// HMAC-SHA256 timestamp signing appended as query parameters.
type Webhook struct {
	url    string
	secret string
	http   *http.Client
	log    logger.Logger

	now func() time.Time
}

func NewWebhook(webhookURL, secret string, log logger.Logger) *Webhook {
	return &Webhook{
		url:    webhookURL,
		secret: secret,
		http:   &http.Client{Timeout: 10 * time.Second},
		log:    log,
		now:    time.Now,
	}
}

type webhookMessage struct {
	MsgType  string          `json:"msgtype"`
	Markdown webhookMarkdown `json:"markdown"`
}

type webhookMarkdown struct {
	Title string `json:"title"`
	Text  string `json:"text"`
}

func (w *Webhook) Notify(ctx context.Context, summary *types.RunSummary) error {
	msg := webhookMessage{
		MsgType:  "markdown",
		Markdown: webhookMarkdown{Title: "Asset sync report", Text: renderMarkdown(summary)},
	}
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to encode webhook message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.signedURL(), bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.http.Do(req)
	if err != nil {
		return fmt.Errorf("webhook delivery failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("webhook returned %d", resp.StatusCode)
	}
	w.log.WithField("url", w.url).Debug("run summary delivered")
	return nil
}

// signedURL appends timestamp and sign parameters when a secret is set.
// The signature is HMAC-SHA256 over "<timestamp-ms>\n<secret>", base64
// encoded then URL escaped.
func (w *Webhook) signedURL() string {
	if w.secret == "" {
		return w.url
	}
	ts := w.now().UnixMilli()
	mac := hmac.New(sha256.New, []byte(w.secret))
	fmt.Fprintf(mac, "%d\n%s", ts, w.secret)
	sign := url.QueryEscape(base64.StdEncoding.EncodeToString(mac.Sum(nil)))

	sep := "?"
	if strings.Contains(w.url, "?") {
		sep = "&"
	}
	return fmt.Sprintf("%s%stimestamp=%d&sign=%s", w.url, sep, ts, sign)
}

func renderMarkdown(summary *types.RunSummary) string {
	totals := summary.Totals()
	var b strings.Builder

	fmt.Fprintf(&b, "## Asset sync report\n")
	fmt.Fprintf(&b, "- run: %s\n", summary.RunID)
	fmt.Fprintf(&b, "- started: %s\n", summary.StartedAt.Format(time.RFC3339))
	fmt.Fprintf(&b, "- duration: %s\n", summary.Duration.Round(time.Millisecond))
	fmt.Fprintf(&b, "- created %d / updated %d / deleted %d / skipped %d / failed %d\n",
		totals.Created, totals.Updated, totals.Deleted, totals.Skipped, totals.Failed)

	writeRecordList(&b, "Created", summary.Created)
	writeRecordList(&b, "Updated", summary.Updated)
	writeRecordList(&b, "Deleted", summary.Deleted)

	var failures []string
	for _, res := range summary.Results {
		if res.Error != "" {
			failures = append(failures, fmt.Sprintf("- **%s**: %s", res.NodePath, res.Error))
		}
		for _, o := range res.Outcomes {
			if o.Status == types.StatusFailed {
				failures = append(failures, fmt.Sprintf("- %s %s (%s): %s", o.Op, o.Record.Hostname, o.Record.PrimaryIP, o.Error))
			}
		}
	}
	if len(failures) > 0 {
		fmt.Fprintf(&b, "\n### Failures\n%s\n", strings.Join(failures, "\n"))
	}
	return b.String()
}

func writeRecordList(b *strings.Builder, title string, recs []types.AssetRecord) {
	if len(recs) == 0 {
		return
	}
	fmt.Fprintf(b, "\n### %s\n", title)
	for _, r := range recs {
		fmt.Fprintf(b, "- %s (%s)\n", r.Hostname, r.PrimaryIP)
	}
}
