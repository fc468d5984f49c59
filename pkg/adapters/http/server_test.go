package http_test

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	nethttp "net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/arbor"
	"github.com/aretw0/arbor/pkg/adapters/http"
	"github.com/aretw0/arbor/pkg/adapters/memory"
	"github.com/aretw0/arbor/pkg/registry"
)

var _ http.Tree = (*arbor.Tree)(nil)

type fixture struct {
	tree   *arbor.Tree
	docker *memory.Contributor
	srv    *httptest.Server
}

func newFixture(t *testing.T, opts ...http.Option) *fixture {
	t.Helper()
	nested := memory.New("host-children", memory.WithLazy())
	nested.Add(&memory.Service{Key: "db", Text: "Database"})
	docker := memory.New("docker", memory.WithGrouping())
	docker.Add(&memory.Service{Key: "host", Groups: []string{"compose"}, Children: nested})

	k8s := memory.New("k8s")
	k8s.Add(&memory.Service{Key: "pod-1"})

	reg, err := registry.NewRegistry(docker, k8s)
	require.NoError(t, err)
	tree, err := arbor.New(reg)
	require.NoError(t, err)
	t.Cleanup(tree.Close)
	require.NoError(t, tree.Start(context.Background()))

	server := http.NewServer(tree, opts...)
	t.Cleanup(server.Close)
	srv := httptest.NewServer(server)
	t.Cleanup(srv.Close)
	return &fixture{tree: tree, docker: docker, srv: srv}
}

func (f *fixture) get(t *testing.T, path string) (int, []byte) {
	t.Helper()
	resp, err := nethttp.Get(f.srv.URL + path)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, body
}

func TestServer_HealthAndInfo(t *testing.T) {
	f := newFixture(t)

	code, body := f.get(t, "/health")
	assert.Equal(t, nethttp.StatusOK, code)
	assert.JSONEq(t, `{"status":"ok"}`, string(body))

	code, body = f.get(t, "/info")
	assert.Equal(t, nethttp.StatusOK, code)
	var info map[string]string
	require.NoError(t, json.Unmarshal(body, &info))
	assert.Equal(t, "arbor-http", info["app"])
	assert.Equal(t, strings.TrimSpace(arbor.Version), info["version"])
}

func TestServer_Roots(t *testing.T) {
	f := newFixture(t)

	code, body := f.get(t, "/roots")
	require.Equal(t, nethttp.StatusOK, code)
	var roots []arbor.Node
	require.NoError(t, json.Unmarshal(body, &roots))
	require.Len(t, roots, 2)
	assert.Equal(t, "docker", roots[0].ID)
	assert.Equal(t, "k8s", roots[1].ID)
}

func TestServer_GetItemLoadsChildren(t *testing.T) {
	f := newFixture(t)

	code, body := f.get(t, "/items/docker/compose/host")
	require.Equal(t, nethttp.StatusOK, code, string(body))
	var node arbor.Node
	require.NoError(t, json.Unmarshal(body, &node))
	assert.Equal(t, "host", node.ID)
	require.Len(t, node.Children, 1)
	assert.Equal(t, "Database", node.Children[0].Text)

	code, _ = f.get(t, "/items/docker/compose/missing")
	assert.Equal(t, nethttp.StatusNotFound, code)

	code, body = f.get(t, "/items/docker")
	require.Equal(t, nethttp.StatusOK, code)
	require.NoError(t, json.Unmarshal(body, &node))
	assert.Equal(t, "docker", node.ID)
}

func TestServer_Find(t *testing.T) {
	f := newFixture(t)

	code, body := f.get(t, "/find?id=db")
	require.Equal(t, nethttp.StatusOK, code, string(body))
	var found http.FindResponse
	require.NoError(t, json.Unmarshal(body, &found))
	assert.Equal(t, "docker", found.Contributor)
	assert.Equal(t, []string{"compose", "host", "db"}, found.Path)

	code, body = f.get(t, "/find?text=database")
	require.Equal(t, nethttp.StatusOK, code)
	require.NoError(t, json.Unmarshal(body, &found))
	assert.Equal(t, "db", found.Node.ID)

	code, _ = f.get(t, "/find?id=nope")
	assert.Equal(t, nethttp.StatusNotFound, code)
	code, _ = f.get(t, "/find")
	assert.Equal(t, nethttp.StatusBadRequest, code)
}

func TestServer_PostEvent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// The contributor already knows the service; the event only names it.
	f.docker.Add(&memory.Service{Key: "web", Text: "Web", Groups: []string{"compose"}})
	resp, err := nethttp.Post(f.srv.URL+"/events", "application/json",
		strings.NewReader(`{"kind":"added","target":"web","contributor":"docker"}`))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, nethttp.StatusAccepted, resp.StatusCode)

	web, err := f.tree.FindByID(ctx, "web")
	require.NoError(t, err)
	require.NotNil(t, web)
	assert.Equal(t, "compose", web.Parent().ID())

	resp, err = nethttp.Post(f.srv.URL+"/events", "application/json", strings.NewReader(`{"kind":"bogus"}`))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, nethttp.StatusBadRequest, resp.StatusCode)
}

func TestServer_Metrics(t *testing.T) {
	metrics := nethttp.HandlerFunc(func(w nethttp.ResponseWriter, r *nethttp.Request) {
		fmt.Fprintln(w, "arbor_up 1")
	})
	f := newFixture(t, http.WithMetrics(metrics))

	code, body := f.get(t, "/metrics")
	assert.Equal(t, nethttp.StatusOK, code)
	assert.Contains(t, string(body), "arbor_up 1")

	code, _ = newFixture(t).get(t, "/metrics")
	assert.Equal(t, nethttp.StatusNotFound, code)
}

func TestServer_CORS(t *testing.T) {
	f := newFixture(t)
	req, err := nethttp.NewRequest(nethttp.MethodOptions, f.srv.URL+"/roots", nil)
	require.NoError(t, err)
	resp, err := nethttp.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, nethttp.StatusOK, resp.StatusCode)
	assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))
}

// readData returns the payload of the next "data:" line that is not the
// connection ping.
func readData(t *testing.T, lines <-chan string) string {
	t.Helper()
	for {
		select {
		case line, ok := <-lines:
			require.True(t, ok, "stream closed")
			if data, found := strings.CutPrefix(line, "data: "); found && data != "connected" {
				return data
			}
		case <-time.After(2 * time.Second):
			t.Fatal("no SSE data received")
			return ""
		}
	}
}

func stream(t *testing.T, url string) <-chan string {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	req, err := nethttp.NewRequestWithContext(ctx, nethttp.MethodGet, url, nil)
	require.NoError(t, err)
	resp, err := nethttp.DefaultClient.Do(req)
	require.NoError(t, err)
	require.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	lines := make(chan string, 16)
	go func() {
		defer resp.Body.Close()
		defer close(lines)
		scanner := bufio.NewScanner(resp.Body)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	// Wait for the ping so the subscription is in place.
	select {
	case line := <-lines:
		require.Equal(t, "event: ping", line)
	case <-time.After(2 * time.Second):
		t.Fatal("no SSE ping")
	}
	return lines
}

func TestServer_EventStream(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	all := stream(t, f.srv.URL+"/events")
	k8sOnly := stream(t, f.srv.URL+"/events?contributor=k8s")

	require.NoError(t, f.tree.Apply(ctx, f.docker.Rename("host", "Host")))

	var ev map[string]string
	require.NoError(t, json.Unmarshal([]byte(readData(t, all)), &ev))
	assert.Equal(t, "changed", ev["kind"])
	assert.Equal(t, "host", ev["target"])
	assert.Equal(t, "docker", ev["contributor"])

	require.NoError(t, f.tree.Reset(ctx, "k8s"))
	require.NoError(t, json.Unmarshal([]byte(readData(t, k8sOnly)), &ev))
	assert.Equal(t, "reset", ev["kind"])
	assert.Equal(t, "k8s", ev["contributor"])
}
