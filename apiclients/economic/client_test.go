package economic

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/google/go-cmp/cmp"
)

// setup creates a test environment for running API client tests. It returns
// a request multiplexer for registering handlers, the Client configured to
// use the test server, and a teardown function to close the server.
func setup(t *testing.T) (mux *http.ServeMux, client *Client, teardown func()) {

	t.Helper()

	mux = http.NewServeMux()
	server := httptest.NewServer(mux)

	logger := slog.New(slog.NewTextHandler(
		os.Stdout,
		&slog.HandlerOptions{Level: slog.LevelDebug},
	))

	client = NewClient("app-secret", "grant-token", server.Client(), logger,
		WithBaseURL(server.URL),
		WithDocumentsURL(server.URL+"/documents"),
	)
	// Avoid real waits in rate-limit tests; waits are recorded instead.
	client.sleep = func(ctx context.Context, d time.Duration) error { return nil }

	teardown = func() {
		server.Close()
	}

	return mux, client, teardown
}

func TestFetchSendsCredentialHeaders(t *testing.T) {
	mux, client, teardown := setup(t)
	defer teardown()

	mux.HandleFunc("/self", func(w http.ResponseWriter, r *http.Request) {
		if got, want := r.Header.Get("X-AppSecretToken"), "app-secret"; got != want {
			t.Errorf("app secret header: got %q want %q", got, want)
		}
		if got, want := r.Header.Get("X-AgreementGrantToken"), "grant-token"; got != want {
			t.Errorf("grant token header: got %q want %q", got, want)
		}
		fmt.Fprint(w, `{"agreementNumber": 123}`)
	})

	body, err := client.Fetch(context.Background(), "/self", nil)
	if err != nil {
		t.Fatalf("unexpected fetch error: %v", err)
	}
	if got, want := string(body), `{"agreementNumber": 123}`; got != want {
		t.Errorf("body: got %q want %q", got, want)
	}
}

func TestFetchAllFollowsCursor(t *testing.T) {
	mux, client, teardown := setup(t)
	defer teardown()

	var serverURL string
	mux.HandleFunc("/customers", func(w http.ResponseWriter, r *http.Request) {
		if got, want := r.URL.Query().Get("pagesize"), "2"; got != want {
			t.Errorf("pagesize: got %q want %q", got, want)
		}
		fmt.Fprintf(w, `{"collection":[{"n":1},{"n":2}],"pagination":{"nextPage":%q}}`,
			serverURL+"/customers-page2?opaque=cursor")
	})
	mux.HandleFunc("/customers-page2", func(w http.ResponseWriter, r *http.Request) {
		// The cursor must be followed verbatim.
		if got, want := r.URL.Query().Get("opaque"), "cursor"; got != want {
			t.Errorf("cursor query: got %q want %q", got, want)
		}
		fmt.Fprint(w, `{"collection":[{"n":3}],"pagination":{}}`)
	})

	// The handler needs the server URL to emit an absolute cursor.
	serverURL = client.baseURL

	items, err := client.FetchAll(context.Background(), "/customers", &ListParams{PageSize: 2})
	if err != nil {
		t.Fatalf("unexpected fetchAll error: %v", err)
	}

	var got []string
	for _, item := range items {
		got = append(got, string(item))
	}
	want := []string{`{"n":1}`, `{"n":2}`, `{"n":3}`}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("items mismatch (-want +got):\n%s", diff)
	}
}

func TestFetchAllPageCap(t *testing.T) {
	mux, client, teardown := setup(t)
	defer teardown()
	client.pageCap = 3

	mux.HandleFunc("/endless", func(w http.ResponseWriter, r *http.Request) {
		// Every page points at itself; the cap must stop the loop.
		fmt.Fprintf(w, `{"collection":[{}],"pagination":{"nextPage":%q}}`, client.baseURL+"/endless")
	})

	items, err := client.FetchAll(context.Background(), "/endless", nil)
	if !errors.Is(err, ErrPageCapExceeded) {
		t.Fatalf("expected ErrPageCapExceeded, got %v", err)
	}
	if got, want := len(items), 3; got != want {
		t.Errorf("accumulated items: got %d want %d", got, want)
	}
}

func TestRateLimitRetryHonoursHint(t *testing.T) {
	mux, client, teardown := setup(t)
	defer teardown()

	var waits []time.Duration
	client.sleep = func(ctx context.Context, d time.Duration) error {
		waits = append(waits, d)
		return nil
	}

	var calls int
	mux.HandleFunc("/invoices/booked", func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			w.Header().Set("Retry-After", "2")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		fmt.Fprint(w, `{"collection":[{"a":1}],"pagination":{}}`)
	})

	items, err := client.FetchAll(context.Background(), "/invoices/booked", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got, want := calls, 2; got != want {
		t.Errorf("request count: got %d want %d", got, want)
	}
	if got, want := len(items), 1; got != want {
		t.Errorf("item count: got %d want %d", got, want)
	}
	if len(waits) != 1 || waits[0] < 2*time.Second {
		t.Errorf("expected one wait of at least 2s, got %v", waits)
	}
}

func TestRateLimitRetryExhaustion(t *testing.T) {
	mux, client, teardown := setup(t)
	defer teardown()

	var calls int
	mux.HandleFunc("/limited", func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusServiceUnavailable)
	})

	_, err := client.Fetch(context.Background(), "/limited", nil)
	if !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited, got %v", err)
	}
	if got, want := calls, maxRateLimitAttempts; got != want {
		t.Errorf("request count: got %d want %d", got, want)
	}
}

func TestErrorClassification(t *testing.T) {
	mux, client, teardown := setup(t)
	defer teardown()

	mux.HandleFunc("/secure", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})
	mux.HandleFunc("/missing", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	if _, err := client.Fetch(context.Background(), "/secure", nil); !errors.Is(err, ErrAuth) {
		t.Errorf("expected ErrAuth, got %v", err)
	}
	if _, err := client.Fetch(context.Background(), "/missing", nil); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestExists(t *testing.T) {
	mux, client, teardown := setup(t)
	defer teardown()

	mux.HandleFunc("/documents/vouchers/100", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{}`)
	})
	mux.HandleFunc("/documents/vouchers/200", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	for _, tc := range []struct {
		path string
		want bool
	}{
		{"/vouchers/100", true},
		{"/vouchers/200", false},
	} {
		got, err := client.Exists(context.Background(), tc.path)
		if err != nil {
			t.Fatalf("unexpected Exists error for %s: %v", tc.path, err)
		}
		if got != tc.want {
			t.Errorf("Exists(%s): got %t want %t", tc.path, got, tc.want)
		}
	}
}

func TestTruncateKeepsRunesIntact(t *testing.T) {
	body := []byte(strings.Repeat("æøå", 100)) // 2 bytes per rune, 600 total
	got := truncate(body, 199)
	if !utf8.ValidString(got) {
		t.Errorf("truncated body is not valid UTF-8: %q", got)
	}
	if !strings.HasSuffix(got, "...") {
		t.Errorf("truncated body missing ellipsis: %q", got)
	}
	if len(got) > 199+3 {
		t.Errorf("truncated body too long: %d bytes", len(got))
	}

	if got := truncate([]byte("short"), 199); got != "short" {
		t.Errorf("body under the cap altered: %q", got)
	}
}

func TestRetryAfter(t *testing.T) {
	tests := []struct {
		name   string
		header string
		want   time.Duration
	}{
		{"seconds", "3", 3 * time.Second},
		{"absent", "", defaultRetryWait},
		{"garbage", "soon", defaultRetryWait},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			resp := &http.Response{Header: http.Header{}}
			if tc.header != "" {
				resp.Header.Set("Retry-After", tc.header)
			}
			if got := retryAfter(resp, defaultRetryWait); got != tc.want {
				t.Errorf("got %v want %v", got, tc.want)
			}
		})
	}
}
