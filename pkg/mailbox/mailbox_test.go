package mailbox

import (
	"errors"
	"testing"

	"github.com/rs/zerolog"

	"github.com/derandereandi/nea2mqtt/pkg/config"
)

func TestExtractCode(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		want    string
		wantErr error
	}{
		{
			name: "plain code",
			body: "Your verification code is 482913. It expires in 10 minutes.",
			want: "482913",
		},
		{
			name: "first of several",
			body: "Code: 111222. If you did not request this, code 999888 is void.",
			want: "111222",
		},
		{
			name: "html mail",
			body: "<p>Enter <b>035771</b> to continue</p>",
			want: "035771",
		},
		{
			name:    "seven digits is not a code",
			body:    "Reference 1234567 is not what you want",
			wantErr: ErrNoCode,
		},
		{
			name:    "no digits",
			body:    "Welcome to your new account",
			wantErr: ErrNoCode,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ExtractCode(tt.body)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("ExtractCode() error = %v, want %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ExtractCode() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestFromMatches(t *testing.T) {
	tests := []struct {
		header string
		sender string
		want   bool
	}{
		{"noreply@accounts.rehau.com", "noreply@accounts.rehau.com", true},
		{"REHAU Accounts <NoReply@Accounts.REHAU.com>", "noreply@accounts.rehau.com", true},
		{"billing@example.com", "noreply@accounts.rehau.com", false},
		{"noreply@accounts.rehau.com", "", false},
	}

	for _, tt := range tests {
		if got := fromMatches(tt.header, tt.sender); got != tt.want {
			t.Errorf("fromMatches(%q, %q) = %v, want %v", tt.header, tt.sender, got, tt.want)
		}
	}
}

func TestNewDispatch(t *testing.T) {
	log := zerolog.Nop()

	if _, err := New(config.MailboxConfig{}, log); !errors.Is(err, ErrNoMailbox) {
		t.Errorf("empty provider: error = %v, want ErrNoMailbox", err)
	}

	c, err := New(config.MailboxConfig{
		Provider: config.MailboxBasic,
		Host:     "mail.example.com",
		Port:     995,
		User:     "u@example.com",
		Password: "secret",
		TLS:      true,
	}, log)
	if err != nil {
		t.Fatalf("basic provider: error = %v", err)
	}
	if _, ok := c.(*pop3Client); !ok {
		t.Errorf("basic provider: got %T, want *pop3Client", c)
	}

	c, err = New(config.MailboxConfig{
		Provider:     config.MailboxGmail,
		User:         "u@gmail.com",
		ClientID:     "cid",
		RefreshToken: "rt",
	}, log)
	if err != nil {
		t.Fatalf("gmail provider: error = %v", err)
	}
	ic, ok := c.(*imapClient)
	if !ok {
		t.Fatalf("gmail provider: got %T, want *imapClient", c)
	}
	if ic.addr != "imap.gmail.com:993" {
		t.Errorf("gmail addr = %q", ic.addr)
	}

	if _, err := New(config.MailboxConfig{Provider: "carrier-pigeon"}, log); err == nil {
		t.Error("unknown provider must fail")
	}
}

func TestXOAuth2InitialResponse(t *testing.T) {
	client := newXOAuth2Client("user@gmail.com", "ya29.token")

	mech, ir, err := client.Start()
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if mech != "XOAUTH2" {
		t.Errorf("mech = %q", mech)
	}
	want := "user=user@gmail.com\x01auth=Bearer ya29.token\x01\x01"
	if string(ir) != want {
		t.Errorf("initial response = %q, want %q", ir, want)
	}

	// A challenge carries the server's error JSON; the client answers
	// with an empty response, then fails on the follow-up.
	resp, err := client.Next([]byte(`{"status":"400"}`))
	if err != nil || len(resp) != 0 {
		t.Errorf("first Next() = %q, %v; want empty response, nil", resp, err)
	}
	if _, err := client.Next(nil); err == nil {
		t.Error("second Next() must fail")
	}
}
