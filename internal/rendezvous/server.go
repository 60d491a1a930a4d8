package rendezvous

import (
	"bytes"
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/frostkit/frost-cli/internal/arid"
	"github.com/frostkit/frost-cli/internal/frosterr"
)

func bytesReader(b []byte) *bytes.Reader { return bytes.NewReader(b) }

// ServerBackend is the "server" storage option of spec §6: a
// centralized HTTP key-value adapter. A ServerBackend instance is
// simultaneously an http.Handler (mount it with ListenServer) and a
// Client (talk to one with NewServerClient).
type ServerBackend struct {
	store *Memory
}

func NewServerBackend() *ServerBackend {
	return &ServerBackend{store: NewMemory()}
}

func (s *ServerBackend) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.URL.Path {
	case "/healthz":
		w.WriteHeader(http.StatusOK)
		return
	case "/put":
		s.handlePut(w, r)
		return
	case "/get":
		s.handleGet(w, r)
		return
	default:
		http.NotFound(w, r)
	}
}

func (s *ServerBackend) handlePut(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	idHex := r.URL.Query().Get("id")
	id, err := parseHexARID(idHex)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := s.store.Put(r.Context(), id, body); err != nil {
		http.Error(w, err.Error(), http.StatusConflict)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *ServerBackend) handleGet(w http.ResponseWriter, r *http.Request) {
	idHex := r.URL.Query().Get("id")
	id, err := parseHexARID(idHex)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	timeoutSeconds := 0
	fmt.Sscanf(r.URL.Query().Get("timeout"), "%d", &timeoutSeconds)
	timeout := time.Duration(timeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = time.Second
	}
	value, ok, err := s.store.Get(r.Context(), id, timeout)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if !ok {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(value)
}

func parseHexARID(s string) (arid.ARID, error) {
	var id arid.ARID
	b, err := hex.DecodeString(s)
	if err != nil || len(b) != 32 {
		return id, errors.New("rendezvous: bad arid query parameter")
	}
	copy(id[:], b)
	return id, nil
}

// ListenServer starts an http.Server fronting backend and blocks until
// ctx is canceled, matching the spec's "the implementer must provide at
// least a centralized HTTP key-value adapter" requirement.
func ListenServer(ctx context.Context, addr string, backend *ServerBackend) error {
	srv := &http.Server{Addr: addr, Handler: backend}
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()
	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return frosterr.Wrap(frosterr.Transport, err, "rendezvous server")
	}
}

// ServerClient is a Client talking to a remote ServerBackend over HTTP.
type ServerClient struct {
	baseURL string
	http    *http.Client
}

func NewServerClient(host string, port int) *ServerClient {
	return &ServerClient{
		baseURL: fmt.Sprintf("http://%s:%d", host, port),
		http:    &http.Client{},
	}
}

func (c *ServerClient) Name() string { return "server" }

func (c *ServerClient) Put(ctx context.Context, id arid.ARID, value []byte) error {
	url := fmt.Sprintf("%s/put?id=%s", c.baseURL, hex.EncodeToString(id[:]))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytesReader(value))
	if err != nil {
		return frosterr.Wrap(frosterr.Transport, err, "build put request")
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return frosterr.Wrap(frosterr.Transport, err, "rendezvous put")
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusConflict {
		return frosterr.New(frosterr.Protocol, "rendezvous: differing content already stored under this ARID")
	}
	if resp.StatusCode != http.StatusNoContent {
		return frosterr.Newf(frosterr.Transport, "rendezvous put: unexpected status %d", resp.StatusCode)
	}
	return nil
}

func (c *ServerClient) Get(ctx context.Context, id arid.ARID, timeout time.Duration) ([]byte, bool, error) {
	url := fmt.Sprintf("%s/get?id=%s&timeout=%d", c.baseURL, hex.EncodeToString(id[:]), int(timeout.Seconds()))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, false, frosterr.Wrap(frosterr.Transport, err, "build get request")
	}
	httpClient := &http.Client{Timeout: timeout + 5*time.Second}
	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, false, frosterr.Wrap(frosterr.Transport, err, "rendezvous get")
	}
	defer resp.Body.Close()
	switch resp.StatusCode {
	case http.StatusNoContent:
		return nil, false, nil
	case http.StatusOK:
		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, false, frosterr.Wrap(frosterr.Transport, err, "read get response")
		}
		return body, true, nil
	default:
		return nil, false, frosterr.Newf(frosterr.Transport, "rendezvous get: unexpected status %d", resp.StatusCode)
	}
}

func (c *ServerClient) Healthz(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/healthz", nil)
	if err != nil {
		return frosterr.Wrap(frosterr.Transport, err, "build healthz request")
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return frosterr.Wrap(frosterr.Transport, err, "rendezvous healthz")
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return frosterr.Newf(frosterr.Transport, "rendezvous healthz: unexpected status %d", resp.StatusCode)
	}
	return nil
}
