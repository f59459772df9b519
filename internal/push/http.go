package push

import (
	"bytes"
	"fmt"
	"log"
	"net/http"
	"time"
)

// HTTPNotifier POSTs a bare notification hint to a device's
// notification server URL, mirroring the teacher's mailer.smtpMailer
// pattern (a narrow interface backed by a thin outbound transport)
// with the transport swapped from SMTP to the plain webhook POST
// spec.md's notificationServer field implies.
type HTTPNotifier struct {
	Client *http.Client
	Logger *log.Logger
}

// NewHTTPNotifier returns an HTTPNotifier with sane request timeouts.
func NewHTTPNotifier(logger *log.Logger) *HTTPNotifier {
	return &HTTPNotifier{
		Client: &http.Client{Timeout: 5 * time.Second},
		Logger: logger,
	}
}

func (n *HTTPNotifier) Notify(notificationServer string, pushToken []byte, hint string) error {
	if notificationServer == "" || len(pushToken) == 0 {
		return nil
	}
	body := fmt.Sprintf(`{"token":%q,"hint":%q}`, pushToken, hint)
	resp, err := n.Client.Post(notificationServer, "application/json", bytes.NewReader([]byte(body)))
	if err != nil {
		if n.Logger != nil {
			n.Logger.Printf("push: notify %s failed: %v", notificationServer, err)
		}
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		if n.Logger != nil {
			n.Logger.Printf("push: notify %s returned status %d", notificationServer, resp.StatusCode)
		}
	}
	return nil
}
