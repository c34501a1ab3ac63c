package icap_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/icapio/icap"
	"github.com/icapio/icap/icaptest"
)

func newTestContextClient(t *testing.T) (*icap.ContextClient, *icaptest.Server) {
	t.Helper()
	srv, err := icaptest.NewServer()
	require.NoError(t, err)
	t.Cleanup(srv.Close)

	client, err := icap.NewContextClient(icap.Config{
		Host:    srv.Host(),
		Port:    srv.Port(),
		Timeout: 5 * time.Second,
	})
	require.NoError(t, err)
	t.Cleanup(func() { client.Disconnect() })
	return client, srv
}

func TestContextClientOptions(t *testing.T) {
	client, srv := newTestContextClient(t)
	srv.Script(icaptest.NewResponse().Options(nil, 1024).Bytes())

	resp, err := client.Options(context.Background(), "avscan")
	require.NoError(t, err)

	assert.Equal(t, 200, resp.StatusCode)
	assert.Contains(t, resp.Headers["Methods"], "RESPMOD")
	assert.True(t, client.Connected())
}

func TestContextClientRespmod(t *testing.T) {
	client, srv := newTestContextClient(t)

	resp, err := client.Respmod(context.Background(), "avscan", nil,
		[]byte("HTTP/1.1 200 OK\r\nContent-Length: 4\r\n\r\nbody"), nil)
	require.NoError(t, err)
	assert.True(t, resp.NoModification())

	raw := string(srv.Requests()[0])
	assert.True(t, strings.HasPrefix(raw, "RESPMOD "))
	assert.True(t, strings.HasSuffix(raw, "4\r\nbody\r\n0\r\n\r\n"))
}

func TestContextClientRespmodPreviewContinue(t *testing.T) {
	client, srv := newTestContextClient(t)
	srv.Script(
		icaptest.NewResponse().Continue().Bytes(),
		icaptest.NewResponse().Clean().Bytes(),
	)

	resp, err := client.RespmodPreview(context.Background(), "avscan", nil,
		[]byte("HTTP/1.1 200 OK\r\n\r\n0123456789"), 4, nil)
	require.NoError(t, err)
	assert.True(t, resp.NoModification())

	requests := srv.Requests()
	require.Len(t, requests, 2)
	assert.Equal(t, "6\r\n456789\r\n0\r\n\r\n", string(requests[1]))
}

func TestContextClientRespmodPreviewInvalidSize(t *testing.T) {
	client, srv := newTestContextClient(t)

	_, err := client.RespmodPreview(context.Background(), "avscan", nil,
		[]byte("HTTP/1.1 200 OK\r\n\r\nbody"), 0, nil)

	var argErr *icap.InvalidArgumentError
	require.ErrorAs(t, err, &argErr)
	assert.False(t, client.Connected())
	assert.Empty(t, srv.Requests())
}

func TestContextClientCancelledBeforeCall(t *testing.T) {
	client, _ := newTestContextClient(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := client.Options(ctx, "avscan")

	var connErr *icap.ConnectionError
	require.ErrorAs(t, err, &connErr)
	assert.False(t, client.Connected())
}

func TestContextClientScanBytes(t *testing.T) {
	client, srv := newTestContextClient(t)

	resp, err := client.ScanBytes(context.Background(), []byte("hello"), "avscan", "greeting.txt")
	require.NoError(t, err)
	assert.True(t, resp.NoModification())

	raw := string(srv.Requests()[0])
	assert.Contains(t, raw, "GET /greeting.txt HTTP/1.1\r\n")
	assert.True(t, strings.HasSuffix(raw, "5\r\nhello\r\n0\r\n\r\n"))
}

func TestContextClientScanStreamChunked(t *testing.T) {
	client, srv := newTestContextClient(t)

	resp, err := client.ScanStream(context.Background(),
		strings.NewReader("0123456789"), "avscan", "f.txt", 4)
	require.NoError(t, err)
	assert.True(t, resp.NoModification())

	raw := string(srv.Requests()[0])
	assert.Contains(t, raw, "Transfer-Encoding: chunked\r\n")
	assert.True(t, strings.HasSuffix(raw, "4\r\n0123\r\n4\r\n4567\r\n2\r\n89\r\n0\r\n\r\n"))
}

func TestContextClientScanFileNotFound(t *testing.T) {
	client, _ := newTestContextClient(t)

	_, err := client.ScanFile(context.Background(), "/nonexistent/path.bin", "avscan")

	var notFound *icap.NotFoundError
	assert.ErrorAs(t, err, &notFound)
}
