package mailbox

import (
	"fmt"

	"github.com/emersion/go-sasl"
)

// xoauth2Client is a SASL XOAUTH2 client as Google and Microsoft
// specify it: a single initial response of the form
// "user=<addr>\x01auth=Bearer <token>\x01\x01". A non-empty challenge
// carries a JSON error document; the protocol then expects an empty
// response before the server sends the final tagged NO.
type xoauth2Client struct {
	username string
	token    string
	errored  bool
}

var _ sasl.Client = (*xoauth2Client)(nil)

func newXOAuth2Client(username, token string) sasl.Client {
	return &xoauth2Client{username: username, token: token}
}

func (c *xoauth2Client) Start() (string, []byte, error) {
	ir := []byte("user=" + c.username + "\x01auth=Bearer " + c.token + "\x01\x01")
	return "XOAUTH2", ir, nil
}

func (c *xoauth2Client) Next(challenge []byte) ([]byte, error) {
	if c.errored {
		return nil, fmt.Errorf("xoauth2: authentication failed: %s", challenge)
	}
	c.errored = true
	return []byte{}, nil
}
