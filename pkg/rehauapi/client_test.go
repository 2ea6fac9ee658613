package rehauapi

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
)

type staticTokens string

func (s staticTokens) AccessToken() string { return string(s) }

const userDataBody = `{
	"user": {"email": "user@example.com"},
	"installs": [{
		"unique": "inst-1",
		"name": "Home",
		"outside_temperature": 554,
		"coolingConditions": 1,
		"groups": [{
			"group_name": "Ground Floor",
			"zones": [{
				"_id": "aaaaaaaaaaaaaaaaaaaaaaa1",
				"name": "Living Room",
				"number": 1,
				"channels": [{
					"_id": "ch-1",
					"channel_zone": 3,
					"controller_number": 0,
					"data": {"90": 698}
				}]
			}]
		}]
	}]
}`

func TestGetUserData(t *testing.T) {
	var gotAuth, gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotPath = r.URL.Path
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(userDataBody))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "user@example.com", staticTokens("tok-abc"), zerolog.Nop())
	data, err := c.GetUserData(context.Background())
	if err != nil {
		t.Fatalf("GetUserData() error = %v", err)
	}

	// The vendor wants the raw token, not "Bearer <token>".
	if gotAuth != "tok-abc" {
		t.Errorf("Authorization = %q, want raw token", gotAuth)
	}
	if gotPath != "/v2/users/user@example.com/getUserData" {
		t.Errorf("path = %q", gotPath)
	}
	if len(data.Installs) != 1 || data.Installs[0].Unique != "inst-1" {
		t.Fatalf("installs = %+v", data.Installs)
	}
	if !data.Installs[0].CoolingSupported() {
		t.Error("coolingConditions bit 0 should report cooling support")
	}
}

func TestGetDataOfInstallQuery(t *testing.T) {
	var gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.RawQuery
		_, _ = w.Write([]byte(`{"user":{"email":"u"},"installs":[]}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "user@example.com", staticTokens("t"), zerolog.Nop())
	if _, err := c.GetDataOfInstall(context.Background(), "inst-1", []string{"inst-1", "inst-2"}); err != nil {
		t.Fatalf("GetDataOfInstall() error = %v", err)
	}
	if gotQuery != "demand=inst-1&installsList=inst-1%2Cinst-2" {
		t.Errorf("query = %q", gotQuery)
	}
}

func TestGetUnauthorized(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "user@example.com", staticTokens("stale"), zerolog.Nop())
	_, err := c.GetUserData(context.Background())
	if !errors.Is(err, ErrUnauthorized) {
		t.Errorf("error = %v, want ErrUnauthorized", err)
	}
}

func TestToModel(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(userDataBody))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "user@example.com", staticTokens("t"), zerolog.Nop())
	data, err := c.GetUserData(context.Background())
	if err != nil {
		t.Fatal(err)
	}

	inst, err := data.Installs[0].ToModel()
	if err != nil {
		t.Fatalf("ToModel() error = %v", err)
	}

	if got := inst.OutsideTemp(); !got.Valid || got.Value != 13.0 {
		t.Errorf("OutsideTemp = %+v, want 13.0 (raw 554)", got)
	}

	zones := inst.AllZones()
	if len(zones) != 1 {
		t.Fatalf("zones = %d, want 1", len(zones))
	}
	z := zones[0]
	if z.ChannelID != "ch-1" || z.ChannelZone != 3 || z.Controller != 0 {
		t.Errorf("zone routing = %+v", z)
	}
	if z.State().Mode != "off" {
		t.Errorf("initial mode = %v, want off", z.State().Mode)
	}
}
