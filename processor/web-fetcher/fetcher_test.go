package webfetcher

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/netip"
	"net/url"
	"strconv"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360studio/semfetch/fetcherr"
	"github.com/c360studio/semfetch/source/weburl"
)

// fakeResolver answers from a static table and counts lookups.
type fakeResolver struct {
	hosts map[string]string
	calls atomic.Int32
}

func (f *fakeResolver) LookupNetIP(_ context.Context, _, host string) ([]netip.Addr, error) {
	f.calls.Add(1)
	ip, ok := f.hosts[host]
	if !ok {
		return nil, errors.New("no such host")
	}
	return []netip.Addr{netip.MustParseAddr(ip)}, nil
}

// newLoopbackValidator allows loopback addresses so httptest servers are
// reachable. Every other blocked range still applies.
func newLoopbackValidator(t *testing.T, res *fakeResolver) *weburl.Validator {
	t.Helper()
	if res == nil {
		res = &fakeResolver{}
	}
	v, err := weburl.NewValidator(weburl.Options{
		AllowedPrefixes: []netip.Prefix{netip.MustParsePrefix("127.0.0.0/8")},
		Resolver:        res,
	})
	require.NoError(t, err)
	return v
}

func validate(t *testing.T, v *weburl.Validator, rawURL string, timeout float64) *weburl.Request {
	t.Helper()
	req, err := v.Validate(context.Background(), rawURL, &timeout)
	require.NoError(t, err)
	return req
}

func TestFetcher_OK(t *testing.T) {
	var gotUA, gotAccept string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		gotAccept = r.Header.Get("Accept")
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte("<html><body>hello</body></html>"))
	}))
	defer srv.Close()

	v := newLoopbackValidator(t, nil)
	f := NewFetcher(FetcherConfig{UserAgent: "test-agent/1.0"}, v, nil)

	out, err := f.Fetch(context.Background(), validate(t, v, srv.URL+"/page", 5))
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, out.StatusCode)
	assert.Equal(t, "text/html; charset=utf-8", out.ContentType)
	assert.Equal(t, "<html><body>hello</body></html>", string(out.Body))
	assert.False(t, out.Truncated)
	assert.Equal(t, srv.URL+"/page", out.FinalURL)
	assert.Equal(t, "test-agent/1.0", gotUA)
	assert.Contains(t, gotAccept, "text/html")
}

func TestFetcher_NonSuccessStatusSkipsBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte("<h1>not found</h1>"))
	}))
	defer srv.Close()

	v := newLoopbackValidator(t, nil)
	f := NewFetcher(FetcherConfig{}, v, nil)

	out, err := f.Fetch(context.Background(), validate(t, v, srv.URL+"/missing", 5))
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, out.StatusCode)
	assert.Empty(t, out.Body)
}

func TestFetcher_ContentTypes(t *testing.T) {
	tests := []struct {
		name        string
		contentType []string
		wantErr     bool
	}{
		{"html", []string{"text/html"}, false},
		{"plain text", []string{"text/plain; charset=utf-8"}, false},
		{"xml", []string{"application/xml"}, false},
		{"atom", []string{"application/atom+xml"}, false},
		{"binary", []string{"application/octet-stream"}, true},
		{"json", []string{"application/json"}, true},
		{"image", []string{"image/png"}, true},
		{"missing", nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				// A nil value suppresses content sniffing.
				w.Header()["Content-Type"] = tt.contentType
				_, _ = w.Write([]byte("payload"))
			}))
			defer srv.Close()

			v := newLoopbackValidator(t, nil)
			f := NewFetcher(FetcherConfig{}, v, nil)

			out, err := f.Fetch(context.Background(), validate(t, v, srv.URL, 5))
			if !tt.wantErr {
				require.NoError(t, err)
				assert.Equal(t, "payload", string(out.Body))
				return
			}
			require.Error(t, err)
			assert.True(t, fetcherr.Is(err, fetcherr.KindUnsupportedContentType), "got %v", err)
			fe, _ := fetcherr.As(err)
			assert.Equal(t, http.StatusOK, fe.StatusCode)
		})
	}
}

func TestFetcher_ContentTooLarge(t *testing.T) {
	body := strings.Repeat("a", 10*1024)

	tests := []struct {
		name          string
		handler       http.HandlerFunc
		wantTruncated bool
	}{
		{
			name: "declared length",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "text/plain")
				w.Header().Set("Content-Length", strconv.Itoa(len(body)))
				_, _ = w.Write([]byte(body))
			},
		},
		{
			name: "chunked stream",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "text/plain")
				for i := 0; i < 10; i++ {
					_, _ = w.Write([]byte(body[:1024]))
					w.(http.Flusher).Flush()
				}
			},
			wantTruncated: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(tt.handler)
			defer srv.Close()

			v := newLoopbackValidator(t, nil)
			f := NewFetcher(FetcherConfig{MaxContentLength: 1024, ChunkSize: 256}, v, nil)

			out, err := f.Fetch(context.Background(), validate(t, v, srv.URL, 5))
			require.Error(t, err)
			assert.True(t, fetcherr.Is(err, fetcherr.KindContentTooLarge), "got %v", err)
			if tt.wantTruncated {
				require.NotNil(t, out)
				assert.True(t, out.Truncated)
				assert.Empty(t, out.Body)
			}
		})
	}
}

func TestFetcher_ExactlyAtLimit(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		_, _ = w.Write([]byte(strings.Repeat("b", 1024)))
	}))
	defer srv.Close()

	v := newLoopbackValidator(t, nil)
	f := NewFetcher(FetcherConfig{MaxContentLength: 1024}, v, nil)

	out, err := f.Fetch(context.Background(), validate(t, v, srv.URL, 5))
	require.NoError(t, err)
	assert.Len(t, out.Body, 1024)
}

func TestFetcher_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-time.After(2 * time.Second):
		case <-r.Context().Done():
		}
		w.Header().Set("Content-Type", "text/plain")
		_, _ = w.Write([]byte("late"))
	}))
	defer srv.Close()

	v := newLoopbackValidator(t, nil)
	f := NewFetcher(FetcherConfig{}, v, nil)

	start := time.Now()
	_, err := f.Fetch(context.Background(), validate(t, v, srv.URL, 0.2))
	require.Error(t, err)
	assert.True(t, fetcherr.Is(err, fetcherr.KindTimeout), "got %v", err)
	assert.Less(t, time.Since(start), 1500*time.Millisecond)
}

func TestFetcher_SlowBodyTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		_, _ = w.Write([]byte("first chunk"))
		w.(http.Flusher).Flush()
		select {
		case <-time.After(2 * time.Second):
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()

	v := newLoopbackValidator(t, nil)
	f := NewFetcher(FetcherConfig{}, v, nil)

	_, err := f.Fetch(context.Background(), validate(t, v, srv.URL, 0.2))
	require.Error(t, err)
	assert.True(t, fetcherr.Is(err, fetcherr.KindTimeout), "got %v", err)
}

func TestFetcher_ConnectionRefused(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	addr := srv.URL
	srv.Close()

	v := newLoopbackValidator(t, nil)
	f := NewFetcher(FetcherConfig{}, v, nil)

	_, err := f.Fetch(context.Background(), validate(t, v, addr, 2))
	require.Error(t, err)
	assert.True(t, fetcherr.Is(err, fetcherr.KindNetwork), "got %v", err)
}

func TestFetcher_Redirects(t *testing.T) {
	mux := http.NewServeMux()
	srv := httptest.NewServer(mux)
	defer srv.Close()
	u, err := url.Parse(srv.URL)
	require.NoError(t, err)

	mux.HandleFunc("/start", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/final", http.StatusFound)
	})
	mux.HandleFunc("/final", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		_, _ = w.Write([]byte("arrived"))
	})
	mux.HandleFunc("/by-name", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "http://app.test:"+u.Port()+"/final", http.StatusFound)
	})
	mux.HandleFunc("/to-private", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "http://10.0.0.1/admin", http.StatusFound)
	})
	mux.HandleFunc("/to-localhost", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "http://localhost:"+u.Port()+"/final", http.StatusFound)
	})
	mux.HandleFunc("/to-file", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "file:///etc/passwd", http.StatusFound)
	})
	mux.HandleFunc("/to-metadata", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "http://meta.test/latest/meta-data/", http.StatusFound)
	})
	mux.HandleFunc("/loop", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/loop", http.StatusFound)
	})

	res := &fakeResolver{hosts: map[string]string{
		"app.test":  "127.0.0.1",
		"meta.test": "169.254.169.254",
	}}
	v := newLoopbackValidator(t, res)
	f := NewFetcher(FetcherConfig{}, v, nil)

	t.Run("same host", func(t *testing.T) {
		out, err := f.Fetch(context.Background(), validate(t, v, srv.URL+"/start", 5))
		require.NoError(t, err)
		assert.Equal(t, "arrived", string(out.Body))
		assert.Equal(t, srv.URL+"/final", out.FinalURL)
	})

	t.Run("validated host name is pinned", func(t *testing.T) {
		before := res.calls.Load()
		out, err := f.Fetch(context.Background(), validate(t, v, srv.URL+"/by-name", 5))
		require.NoError(t, err)
		assert.Equal(t, "arrived", string(out.Body))
		// One lookup while validating the redirect, none when dialing.
		assert.Equal(t, before+1, res.calls.Load())
	})

	blocked := []struct {
		path string
		kind fetcherr.Kind
	}{
		{"/to-private", fetcherr.KindBlockedHost},
		{"/to-localhost", fetcherr.KindBlockedHost},
		{"/to-metadata", fetcherr.KindBlockedHost},
		{"/to-file", fetcherr.KindUnsupportedScheme},
		{"/loop", fetcherr.KindNetwork},
	}
	for _, tt := range blocked {
		t.Run(tt.path, func(t *testing.T) {
			_, err := f.Fetch(context.Background(), validate(t, v, srv.URL+tt.path, 5))
			require.Error(t, err)
			assert.True(t, fetcherr.Is(err, tt.kind), "got %v", err)
		})
	}
}

func TestFetcher_NoRedirects(t *testing.T) {
	var followed atomic.Bool
	mux := http.NewServeMux()
	mux.HandleFunc("/start", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/final", http.StatusMovedPermanently)
	})
	mux.HandleFunc("/final", func(w http.ResponseWriter, r *http.Request) {
		followed.Store(true)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	v := newLoopbackValidator(t, nil)
	f := NewFetcher(FetcherConfig{MaxRedirects: NoRedirects}, v, nil)

	out, err := f.Fetch(context.Background(), validate(t, v, srv.URL+"/start", 5))
	require.NoError(t, err)
	assert.Equal(t, http.StatusMovedPermanently, out.StatusCode)
	assert.Empty(t, out.Body)
	assert.False(t, followed.Load())
}

func TestPinnedDialRefusesUnvalidatedHost(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	f := NewFetcher(FetcherConfig{}, nil, nil)
	httpReq, err := http.NewRequest(http.MethodGet, srv.URL, nil)
	require.NoError(t, err)

	// Without a pin set the transport must not connect anywhere.
	_, err = f.client.Do(httpReq)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no validated addresses")
}

func TestPinSet(t *testing.T) {
	v := newLoopbackValidator(t, nil)
	req := validate(t, v, "http://127.0.0.1:8080/", 5)

	pins := newPinSet(req)
	assert.Equal(t, req.Addrs, pins.lookup("127.0.0.1"))
	assert.Empty(t, pins.lookup("other.test"))

	addrs := []netip.Addr{netip.MustParseAddr("93.184.215.14")}
	pins.add("Example.COM.", addrs)
	assert.Equal(t, addrs, pins.lookup("example.com"))

	pins.add("[2606:2800::1]", []netip.Addr{netip.MustParseAddr("2606:2800::1")})
	assert.Len(t, pins.lookup("2606:2800::1"), 1)
}

func TestNewFetcherDefaults(t *testing.T) {
	f := NewFetcher(FetcherConfig{}, nil, nil)
	assert.Equal(t, DefaultUserAgent, f.userAgent)
	assert.Equal(t, int64(DefaultMaxContentLength), f.maxContentLength)
	assert.Equal(t, DefaultMaxRedirects, f.maxRedirects)
	assert.Equal(t, DefaultChunkSize, f.chunkSize)
}
