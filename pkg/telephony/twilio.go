package telephony

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/probelab/callprobe/internal/httpc"
)

const twilioAPIBase = "https://api.twilio.com/2010-04-01"

// Twilio is a Controller backed by the Twilio REST API.
type Twilio struct {
	accountSID string
	authToken  string
	baseURL    string
	client     *http.Client
}

// NewTwilio creates a Twilio call controller.
func NewTwilio(accountSID, authToken string) (*Twilio, error) {
	if accountSID == "" || authToken == "" {
		return nil, ErrMissingCredentials
	}
	return &Twilio{
		accountSID: accountSID,
		authToken:  authToken,
		baseURL:    twilioAPIBase,
		client:     httpc.Client,
	}, nil
}

// EndCall marks the call completed, which hangs it up.
func (t *Twilio) EndCall(ctx context.Context, callSID string) error {
	endpoint := fmt.Sprintf("%s/Accounts/%s/Calls/%s.json", t.baseURL, t.accountSID, callSID)

	form := url.Values{}
	form.Set("Status", "completed")

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("telephony: build end-call request: %w", err)
	}
	req.SetBasicAuth(t.accountSID, t.authToken)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := t.client.Do(req)
	if err != nil {
		return fmt.Errorf("telephony: end call %s: %w", callSID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return ErrCallNotFound
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("telephony: end call %s: unexpected status %d", callSID, resp.StatusCode)
	}
	return nil
}

// Ensure Twilio implements Controller at compile time.
var _ Controller = (*Twilio)(nil)
