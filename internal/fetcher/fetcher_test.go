package fetcher

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/fyrsmithlabs/docflow/internal/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFetch_Success(t *testing.T) {
	var gotUA string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		_, _ = w.Write([]byte("hello world"))
	}))
	defer srv.Close()

	f := New(Config{UserAgent: "docflow-test"}, nil)
	body, err := f.Fetch(context.Background(), srv.URL+"/doc.txt")

	require.NoError(t, err)
	assert.Equal(t, "hello world", string(body))
	assert.Equal(t, "docflow-test", gotUA)
}

func TestFetch_Non2xx(t *testing.T) {
	for _, code := range []int{http.StatusNotFound, http.StatusInternalServerError, http.StatusMovedPermanently} {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(code)
		}))

		_, err := New(Config{}, nil).Fetch(context.Background(), srv.URL)
		srv.Close()

		var fe *FetchError
		require.ErrorAs(t, err, &fe, "status %d", code)
		assert.Equal(t, code, fe.StatusCode)
	}
}

func TestFetch_TooLarge(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// No Content-Length: chunked, so the limit is enforced while reading.
		w.(http.Flusher).Flush()
		_, _ = w.Write([]byte(strings.Repeat("x", 2048)))
	}))
	defer srv.Close()

	_, err := New(Config{MaxBytes: 1024}, nil).Fetch(context.Background(), srv.URL)

	var fe *FetchError
	require.ErrorAs(t, err, &fe)
	assert.True(t, errors.Is(err, ErrTooLarge))
}

func TestFetch_ExactlyMaxBytes(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(strings.Repeat("x", 1024)))
	}))
	defer srv.Close()

	body, err := New(Config{MaxBytes: 1024}, nil).Fetch(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Len(t, body, 1024)
}

func TestFetch_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-time.After(2 * time.Second):
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()

	_, err := New(Config{Timeout: 50 * time.Millisecond}, nil).Fetch(context.Background(), srv.URL)

	var fe *FetchError
	require.ErrorAs(t, err, &fe)
	assert.Zero(t, fe.StatusCode)
	assert.NotNil(t, fe.Unwrap())
}

func TestFetch_InvalidURL(t *testing.T) {
	f := New(Config{}, nil)
	for _, raw := range []string{"relative/path.pdf", "ftp://example.com/a.pdf", "http://[::1"} {
		_, err := f.Fetch(context.Background(), raw)
		var fe *FetchError
		assert.ErrorAs(t, err, &fe, raw)
	}
}

func TestFetch_ConnectionRefused(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	addr := srv.URL
	srv.Close()

	_, err := New(Config{}, nil).Fetch(context.Background(), addr)
	var fe *FetchError
	require.ErrorAs(t, err, &fe)
}

func TestFetch_DoesNotLogCredentials(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	tl := logging.NewTestLogger()
	withCreds := strings.Replace(srv.URL, "http://", "http://alice:s3cret@", 1)

	_, err := New(Config{}, tl.Logger).Fetch(context.Background(), withCreds)
	require.Error(t, err)

	tl.AssertNoValue(t, "s3cret")
	assert.NotContains(t, err.Error(), "s3cret")
}
