package notify

import (
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/audioscribe/internal/config"
	"github.com/audioscribe/internal/jobs"
	"github.com/audioscribe/pkg/logger"
)

// Client sends job notifications through an Apprise endpoint.
type Client struct {
	cfg    config.NotifyConfig
	client *resty.Client
}

// NewClient creates a notifier client.
func NewClient(cfg config.NotifyConfig) *Client {
	client := resty.New().
		SetTimeout(30 * time.Second).
		SetRetryCount(2).
		SetRetryWaitTime(1 * time.Second)

	return &Client{
		cfg:    cfg,
		client: client,
	}
}

// notifyRequest is the request body for Apprise.
type notifyRequest struct {
	Body  string `json:"body"`
	Title string `json:"title,omitempty"`
	Type  string `json:"type,omitempty"` // info, success, warning, failure
	Tag   string `json:"tag,omitempty"`
}

// JobTerminal reports a job that reached a terminal state. Failures to
// deliver are logged and never affect job state; suitable as the
// dispatcher's OnTerminal hook.
func (c *Client) JobTerminal(job jobs.Job) {
	var err error
	switch job.Status {
	case jobs.StatusCompleted:
		body := fmt.Sprintf("%s transcribed", job.SourceName)
		if job.Result != nil {
			body = fmt.Sprintf("%s transcribed (%s, %.1fs of audio)",
				job.SourceName, job.Result.Language, job.Result.Duration)
		}
		err = c.send("Transcription complete", body, "success")
	case jobs.StatusFailed:
		err = c.send("Transcription failed",
			fmt.Sprintf("%s: %s", job.SourceName, job.Error), "failure")
	default:
		return
	}

	if err != nil {
		logger.Warnf("notification failed: %v", err)
	}
}

func (c *Client) send(title, body, notifyType string) error {
	if !c.cfg.Enabled {
		return nil
	}

	tag := c.cfg.Tag
	if tag == "" {
		tag = "all"
	}

	req := notifyRequest{
		Title: title,
		Body:  body,
		Type:  notifyType,
		Tag:   tag,
	}

	url := fmt.Sprintf("%s/notify/%s", c.cfg.BaseURL, c.cfg.Key)

	resp, err := c.client.R().
		SetHeader("Content-Type", "application/json").
		SetBody(req).
		Post(url)

	if err != nil {
		return fmt.Errorf("notify request: %w", err)
	}
	if resp.StatusCode() >= 400 {
		return fmt.Errorf("notify error: %s", resp.String())
	}

	logger.Debugf("notification sent: %s", title)
	return nil
}
