package execution

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"
)

func TestHTTPStager_StageIn(t *testing.T) {
	content := []byte("@r1\nACGT\n+\nIIII\n")
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			t.Errorf("expected GET, got %s", r.Method)
		}
		w.Write(content)
	}))
	defer server.Close()

	stager := NewHTTPStager(HTTPStagerConfig{Timeout: 10 * time.Second}, nil)
	destPath := filepath.Join(t.TempDir(), "A", "A_1.fastq.gz")

	if err := stager.StageIn(context.Background(), server.URL+"/A_1.fastq.gz", destPath); err != nil {
		t.Fatalf("StageIn failed: %v", err)
	}

	got, err := os.ReadFile(destPath)
	if err != nil {
		t.Fatalf("read file: %v", err)
	}
	if string(got) != string(content) {
		t.Errorf("content = %q, want %q", got, content)
	}
	if _, err := os.Stat(destPath + ".tmp"); !os.IsNotExist(err) {
		t.Errorf("temp file left behind: %v", err)
	}
}

func TestHTTPStager_StageIn_Retry(t *testing.T) {
	var attempts atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if attempts.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte("success"))
	}))
	defer server.Close()

	stager := NewHTTPStager(HTTPStagerConfig{
		MaxRetries: 3,
		RetryDelay: 10 * time.Millisecond,
	}, nil)

	destPath := filepath.Join(t.TempDir(), "retry.txt")
	if err := stager.StageIn(context.Background(), server.URL+"/file.txt", destPath); err != nil {
		t.Fatalf("StageIn failed: %v", err)
	}
	if got := attempts.Load(); got != 3 {
		t.Errorf("attempts = %d, want 3", got)
	}
}

func TestHTTPStager_StageIn_DefaultNoRetry(t *testing.T) {
	var attempts atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	stager := NewHTTPStager(HTTPStagerConfig{}, nil)
	destPath := filepath.Join(t.TempDir(), "x.fastq.gz")

	if err := stager.StageIn(context.Background(), server.URL+"/x.fastq.gz", destPath); err == nil {
		t.Fatal("expected error")
	}
	if got := attempts.Load(); got != 1 {
		t.Errorf("attempts = %d, want 1", got)
	}
	if _, err := os.Stat(destPath); !os.IsNotExist(err) {
		t.Errorf("destination should not exist after failure")
	}
}

func TestHTTPStager_StageIn_ClientError_NoRetry(t *testing.T) {
	var attempts atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		http.Error(w, "no such run", http.StatusNotFound)
	}))
	defer server.Close()

	stager := NewHTTPStager(HTTPStagerConfig{
		MaxRetries: 3,
		RetryDelay: 10 * time.Millisecond,
	}, nil)

	err := stager.StageIn(context.Background(), server.URL+"/missing", filepath.Join(t.TempDir(), "missing"))
	if err == nil {
		t.Fatal("expected error for 404")
	}
	var he *httpError
	if !errors.As(err, &he) || he.StatusCode != http.StatusNotFound {
		t.Errorf("error = %v, want HTTP 404", err)
	}
	if got := attempts.Load(); got != 1 {
		t.Errorf("attempts = %d, want 1 (no retry on 4xx)", got)
	}
}

func TestHTTPStager_Credentials(t *testing.T) {
	tests := []struct {
		name   string
		host   func(serverHost string) string
		cred   CredentialSet
		header string
		want   string
	}{
		{
			name:   "bearer exact host",
			host:   func(h string) string { return h },
			cred:   CredentialSet{Type: "bearer", Token: "secret"},
			header: "Authorization",
			want:   "Bearer secret",
		},
		{
			name:   "custom header",
			host:   func(h string) string { return h },
			cred:   CredentialSet{Type: "header", HeaderName: "X-Api-Key", HeaderValue: "k1"},
			header: "X-Api-Key",
			want:   "k1",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got string
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				got = r.Header.Get(tt.header)
				w.Write([]byte("ok"))
			}))
			defer server.Close()

			host := server.Listener.Addr().String()
			stager := NewHTTPStager(HTTPStagerConfig{
				Credentials: map[string]CredentialSet{tt.host(host): tt.cred},
			}, nil)

			if err := stager.StageIn(context.Background(), server.URL+"/f", filepath.Join(t.TempDir(), "f")); err != nil {
				t.Fatalf("StageIn failed: %v", err)
			}
			if got != tt.want {
				t.Errorf("%s = %q, want %q", tt.header, got, tt.want)
			}
		})
	}
}

func TestHTTPStager_LookupCredential_Wildcard(t *testing.T) {
	stager := NewHTTPStager(HTTPStagerConfig{
		Credentials: map[string]CredentialSet{
			"*.ebi.ac.uk": {Type: "bearer", Token: "mirror"},
		},
	}, nil)

	cred := stager.lookupCredential("ftp.ebi.ac.uk:443")
	if cred == nil || cred.Token != "mirror" {
		t.Fatalf("lookupCredential = %+v, want wildcard match", cred)
	}
	if stager.lookupCredential("example.org") != nil {
		t.Error("unexpected credential for unrelated host")
	}
}

func TestHTTPStager_StageIn_UnsupportedScheme(t *testing.T) {
	stager := NewHTTPStager(HTTPStagerConfig{}, nil)
	if err := stager.StageIn(context.Background(), "ftp://example.org/x", filepath.Join(t.TempDir(), "x")); err == nil {
		t.Fatal("expected error for ftp scheme")
	}
}
