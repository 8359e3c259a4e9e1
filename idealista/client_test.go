package idealista

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/jarcoal/httpmock"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/aluiziolira/idealista-price-trends/config"
	"github.com/aluiziolira/idealista-price-trends/models"
)

func newTestClient(t *testing.T, mutate func(*config.Config)) (*Client, *httpmock.MockTransport, *bytes.Buffer) {
	t.Helper()
	cfg := config.DefaultConfig()
	if mutate != nil {
		mutate(cfg)
	}
	c, err := NewClient(cfg)
	require.NoError(t, err)

	transport := httpmock.NewMockTransport()
	c.collector.WithTransport(transport)

	progress := &bytes.Buffer{}
	c.Progress = progress
	return c, transport, progress
}

func jsonResponder(status int, body string) httpmock.Responder {
	resp := httpmock.NewStringResponse(status, body)
	resp.Header.Set("Content-Type", "application/json")
	return httpmock.ResponderFromResponse(resp)
}

func TestNewClientRejectsHostlessURL(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.SearchURL = "/3.5/es/search"
	_, err := NewClient(cfg)
	require.Error(t, err)
}

func TestTokenRequestShape(t *testing.T) {
	c, transport, _ := newTestClient(t, nil)

	var (
		gotAuth, gotType, gotBody string
	)
	transport.RegisterResponder(http.MethodPost, c.cfg.TokenURL, func(req *http.Request) (*http.Response, error) {
		gotAuth = req.Header.Get("Authorization")
		gotType = req.Header.Get("Content-Type")
		body, _ := io.ReadAll(req.Body)
		gotBody = string(body)
		return httpmock.NewStringResponse(http.StatusOK, `{"access_token":"tok-123","token_type":"bearer","expires_in":43199}`), nil
	})

	token, err := c.Token(context.Background(), models.Credentials{Key: "key", Secret: "secret"})
	require.NoError(t, err)
	require.Equal(t, "tok-123", token)
	require.Equal(t, "Basic a2V5OnNlY3JldA==", gotAuth)
	require.Equal(t, "application/x-www-form-urlencoded", gotType)
	require.Equal(t, "grant_type=client_credentials&scope=read", gotBody)
}

func TestTokenOutcomes(t *testing.T) {
	creds := models.Credentials{Key: "key", Secret: "secret"}

	tests := []struct {
		name      string
		status    int
		body      string
		wantToken string
		wantErr   error
		wantText  string
	}{
		{name: "status ignored when body has token", status: http.StatusInternalServerError, body: `{"access_token":"abc"}`, wantToken: "abc"},
		{name: "non json body", status: http.StatusUnauthorized, body: `<html>denied</html>`, wantErr: ErrTokenDecode, wantText: "401"},
		{name: "missing field", status: http.StatusOK, body: `{"error":"invalid_client"}`, wantErr: ErrTokenMissing},
		{name: "empty field", status: http.StatusOK, body: `{"access_token":""}`, wantErr: ErrTokenMissing},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, transport, _ := newTestClient(t, nil)
			transport.RegisterResponder(http.MethodPost, c.cfg.TokenURL, jsonResponder(tt.status, tt.body))

			token, err := c.Token(context.Background(), creds)
			require.Equal(t, tt.wantToken, token)
			if tt.wantErr == nil {
				require.NoError(t, err)
				return
			}
			require.ErrorIs(t, err, tt.wantErr)
			if tt.wantText != "" {
				require.Contains(t, err.Error(), tt.wantText)
			}
		})
	}
}

func TestTokenWithoutCredentialsSendsNothing(t *testing.T) {
	c, transport, _ := newTestClient(t, nil)
	transport.RegisterResponder(http.MethodPost, c.cfg.TokenURL, jsonResponder(http.StatusOK, `{"access_token":"abc"}`))

	_, err := c.Token(context.Background(), models.Credentials{})
	require.ErrorIs(t, err, ErrNoCredentials)
	require.Zero(t, transport.GetTotalCallCount())
}

// pagesResponder serves search pages keyed by numPage and fails the test
// when a page outside pages is requested.
func pagesResponder(t *testing.T, pages map[string]string, requested *[]string) httpmock.Responder {
	return func(req *http.Request) (*http.Response, error) {
		page := req.URL.Query().Get("numPage")
		*requested = append(*requested, page)
		body, ok := pages[page]
		if !ok {
			t.Errorf("unexpected request for page %s", page)
			return httpmock.NewStringResponse(http.StatusNotFound, `{}`), nil
		}
		return httpmock.NewStringResponse(http.StatusOK, body), nil
	}
}

func TestListingsStopsAtTotalPages(t *testing.T) {
	c, transport, progress := newTestClient(t, nil)

	var requested []string
	transport.RegisterResponder(http.MethodPost, c.cfg.SearchURL, pagesResponder(t, map[string]string{
		"1": `{"elementList":[{"propertyCode":"a","price":100000,"size":50},{"propertyCode":"b","price":200000}],"totalPages":2}`,
		"2": `{"elementList":[{"propertyCode":"c","price":300000,"size":100}],"totalPages":2}`,
	}, &requested))

	listings, err := c.Listings(context.Background(), "tok", "0-EU-ES-28-01-001-903")
	require.NoError(t, err)
	require.Len(t, listings, 3)
	require.Equal(t, []string{"1", "2"}, requested)
	require.Equal(t, "c", listings[2].PropertyCode)
	require.Nil(t, listings[1].Size)

	require.Equal(t,
		"Fetched page 1 of 2, total listings so far: 2\nFetched page 2 of 2, total listings so far: 3\n",
		progress.String())

	requests, pages, _ := c.Stats()
	require.Equal(t, 2, requests)
	require.Equal(t, 2, pages)
	require.Equal(t, float64(2), testutil.ToFloat64(c.Metrics.RequestsTotal.WithLabelValues(phaseSearch)))
	require.Equal(t, float64(3), testutil.ToFloat64(c.Metrics.ListingsFetched))
}

func TestListingsStopsOnEmptyPage(t *testing.T) {
	c, transport, progress := newTestClient(t, nil)

	var requested []string
	transport.RegisterResponder(http.MethodPost, c.cfg.SearchURL, pagesResponder(t, map[string]string{
		"1": `{"elementList":[],"totalPages":5}`,
	}, &requested))

	listings, err := c.Listings(context.Background(), "tok", "loc")
	require.NoError(t, err)
	require.Empty(t, listings)
	require.Equal(t, []string{"1"}, requested)
	require.Empty(t, progress.String())
}

func TestListingsDefaultsTotalPagesToOne(t *testing.T) {
	c, transport, _ := newTestClient(t, nil)

	var requested []string
	transport.RegisterResponder(http.MethodPost, c.cfg.SearchURL, pagesResponder(t, map[string]string{
		"1": `{"elementList":[{"price":1,"size":1}]}`,
	}, &requested))

	listings, err := c.Listings(context.Background(), "tok", "loc")
	require.NoError(t, err)
	require.Len(t, listings, 1)
	require.Equal(t, []string{"1"}, requested)
}

func TestListingsRequestShape(t *testing.T) {
	c, transport, _ := newTestClient(t, nil)

	var req *http.Request
	transport.RegisterResponder(http.MethodPost, c.cfg.SearchURL, func(r *http.Request) (*http.Response, error) {
		req = r
		return httpmock.NewStringResponse(http.StatusOK, `{"elementList":[],"totalPages":1}`), nil
	})

	_, err := c.Listings(context.Background(), "tok", "0-EU-ES-28-01-009-045")
	require.NoError(t, err)
	require.NotNil(t, req)
	require.Equal(t, "Bearer tok", req.Header.Get("Authorization"))
	require.Equal(t, "application/json", req.Header.Get("Content-Type"))

	q := req.URL.Query()
	require.Equal(t, "es", q.Get("country"))
	require.Equal(t, "sale", q.Get("operation"))
	require.Equal(t, "homes", q.Get("propertyType"))
	require.Equal(t, "0-EU-ES-28-01-009-045", q.Get("locationId"))
	require.Equal(t, "50", q.Get("maxItems"))
	require.Equal(t, "1", q.Get("numPage"))
}

func TestListingsDecodeFailureKeepsPartial(t *testing.T) {
	c, transport, _ := newTestClient(t, nil)

	var requested []string
	transport.RegisterResponder(http.MethodPost, c.cfg.SearchURL, pagesResponder(t, map[string]string{
		"1": `{"elementList":[{"price":100,"size":10}],"totalPages":3}`,
		"2": `Service Unavailable`,
	}, &requested))

	listings, err := c.Listings(context.Background(), "tok", "loc")
	require.ErrorIs(t, err, ErrListingsDecode)
	require.Len(t, listings, 1)
	require.Equal(t, []string{"1", "2"}, requested)

	_, _, byType := c.Stats()
	require.Equal(t, 1, byType["decode"])
}

func TestListingsTransportErrorKeepsPartial(t *testing.T) {
	c, transport, _ := newTestClient(t, nil)

	calls := 0
	transport.RegisterResponder(http.MethodPost, c.cfg.SearchURL, func(req *http.Request) (*http.Response, error) {
		calls++
		if calls == 1 {
			return httpmock.NewStringResponse(http.StatusOK, `{"elementList":[{"price":100,"size":10}],"totalPages":2}`), nil
		}
		return nil, errors.New("connection reset")
	})

	listings, err := c.Listings(context.Background(), "tok", "loc")
	require.Error(t, err)
	require.NotErrorIs(t, err, ErrListingsDecode)
	require.Len(t, listings, 1)
	require.Equal(t, 2, calls)
}

func TestListingsNonOKStatusIsRecorded(t *testing.T) {
	c, transport, _ := newTestClient(t, nil)
	transport.RegisterResponder(http.MethodPost, c.cfg.SearchURL,
		jsonResponder(http.StatusTooManyRequests, `{"elementList":[],"totalPages":1}`))

	_, err := c.Listings(context.Background(), "tok", "loc")
	require.NoError(t, err)

	_, _, byType := c.Stats()
	require.Equal(t, 1, byType["rate_limited"])
	require.Equal(t, float64(1), testutil.ToFloat64(c.Metrics.ErrorsTotal.WithLabelValues("rate_limited")))
}

func TestListingsCancelledContext(t *testing.T) {
	c, transport, _ := newTestClient(t, nil)
	transport.RegisterResponder(http.MethodPost, c.cfg.SearchURL, jsonResponder(http.StatusOK, `{"elementList":[]}`))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	listings, err := c.Listings(ctx, "tok", "loc")
	require.ErrorIs(t, err, context.Canceled)
	require.Empty(t, listings)
	require.Zero(t, transport.GetTotalCallCount())
}

func TestListingsDedupe(t *testing.T) {
	tests := []struct {
		name      string
		dedupe    int
		wantCount int
	}{
		{name: "disabled", dedupe: 0, wantCount: 4},
		{name: "enabled", dedupe: 100, wantCount: 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, transport, _ := newTestClient(t, func(cfg *config.Config) {
				cfg.DedupeMaxSize = tt.dedupe
			})

			var requested []string
			page := func(codes ...string) string {
				items := make([]string, 0, len(codes))
				for _, code := range codes {
					items = append(items, fmt.Sprintf(`{"propertyCode":%q,"price":100,"size":10}`, code))
				}
				return `{"elementList":[` + strings.Join(items, ",") + `],"totalPages":2}`
			}
			transport.RegisterResponder(http.MethodPost, c.cfg.SearchURL, pagesResponder(t, map[string]string{
				"1": page("a", "b"),
				"2": page("b", "c"),
			}, &requested))

			listings, err := c.Listings(context.Background(), "tok", "loc")
			require.NoError(t, err)
			require.Len(t, listings, tt.wantCount)
		})
	}
}
