// Package notify posts best-effort, out-of-band messages when the pipeline
// detects an unexpected data-quality condition. Delivery is fire-and-forget:
// a failed or unconfigured webhook never affects processing.
package notify

import (
	"fmt"
	"net/http"
	"net/url"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/netprobe/convtrace/config"
)

//Notifier sends messages to a configured webhook
type Notifier struct {
	webhookURL string
	client     *http.Client
	log        *log.Logger
}

//NewNotifier wires a Notifier up to the configured webhook endpoint
func NewNotifier(conf *config.NotifyStaticCfg, logger *log.Logger) *Notifier {
	return &Notifier{
		webhookURL: conf.WebhookURL,
		client: &http.Client{
			Timeout: time.Duration(conf.TimeoutSeconds) * time.Second,
		},
		log: logger,
	}
}

//Send delivers the message asynchronously. Errors are logged at debug level
//and otherwise dropped.
func (n *Notifier) Send(message string) {
	if n == nil || n.webhookURL == "" {
		return
	}

	go func() {
		payload := url.Values{}
		payload.Set("payload", fmt.Sprintf(`{"text": %q}`, message))

		resp, err := n.client.PostForm(n.webhookURL, payload)
		if err != nil {
			n.log.WithFields(log.Fields{
				"error": err.Error(),
			}).Debug("Could not deliver webhook notification")
			return
		}
		resp.Body.Close()

		if resp.StatusCode >= 300 {
			n.log.WithFields(log.Fields{
				"status": resp.StatusCode,
			}).Debug("Webhook endpoint rejected notification")
		}
	}()
}
