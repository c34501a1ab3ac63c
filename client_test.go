package icap_test

import (
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/sony/gobreaker/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/icapio/icap"
	"github.com/icapio/icap/icaptest"
	"github.com/icapio/icap/protocol"
)

func newTestClient(t *testing.T) (*icap.Client, *icaptest.Server) {
	t.Helper()
	srv, err := icaptest.NewServer()
	require.NoError(t, err)
	t.Cleanup(srv.Close)

	client, err := icap.NewClient(icap.Config{
		Host:    srv.Host(),
		Port:    srv.Port(),
		Timeout: 5 * time.Second,
	})
	require.NoError(t, err)
	t.Cleanup(func() { client.Disconnect() })
	return client, srv
}

func TestNewClientInvalidConfig(t *testing.T) {
	_, err := icap.NewClient(icap.Config{})

	var argErr *icap.InvalidArgumentError
	assert.ErrorAs(t, err, &argErr)
}

func TestClientOptions(t *testing.T) {
	client, srv := newTestClient(t)
	srv.Script(icaptest.NewResponse().Options([]string{"RESPMOD", "REQMOD"}, 1024).Bytes())

	resp, err := client.Options("avscan")
	require.NoError(t, err)

	assert.Equal(t, 200, resp.StatusCode)
	assert.Equal(t, "RESPMOD, REQMOD", resp.Headers["Methods"])
	assert.Equal(t, "1024", resp.Headers["Preview"])
	assert.True(t, client.Connected())

	requests := srv.Requests()
	require.Len(t, requests, 1)
	raw := string(requests[0])
	expectedLine := fmt.Sprintf("OPTIONS icap://%s:%d/avscan ICAP/1.0\r\n", srv.Host(), srv.Port())
	assert.True(t, strings.HasPrefix(raw, expectedLine))
	assert.Contains(t, raw, "Encapsulated: null-body=0\r\n")
}

func TestClientReqmod(t *testing.T) {
	client, srv := newTestClient(t)

	httpRequest := []byte("GET /index.html HTTP/1.1\r\nHost: www.example.com\r\n\r\n")
	resp, err := client.Reqmod("avscan", httpRequest, nil, nil)
	require.NoError(t, err)
	assert.True(t, resp.NoModification())

	requests := srv.Requests()
	require.Len(t, requests, 1)
	raw := string(requests[0])
	assert.True(t, strings.HasPrefix(raw, "REQMOD "))
	assert.Contains(t, raw, "Allow: 204\r\n")
	assert.Contains(t, raw, fmt.Sprintf("Encapsulated: req-hdr=0, null-body=%d\r\n", len(httpRequest)))
	assert.True(t, strings.HasSuffix(raw, string(httpRequest)))
}

func TestClientReqmodWithBody(t *testing.T) {
	client, srv := newTestClient(t)

	httpRequest := []byte("POST /upload HTTP/1.1\r\nHost: www.example.com\r\n\r\n")
	resp, err := client.Reqmod("avscan", httpRequest, []byte("field=value"), nil)
	require.NoError(t, err)
	assert.True(t, resp.NoModification())

	raw := string(srv.Requests()[0])
	assert.Contains(t, raw, fmt.Sprintf("Encapsulated: req-hdr=0, req-body=%d\r\n", len(httpRequest)))
	assert.True(t, strings.HasSuffix(raw, "B\r\nfield=value\r\n0\r\n\r\n"))
}

func TestClientRespmod(t *testing.T) {
	client, srv := newTestClient(t)

	httpRequest := []byte("GET /page HTTP/1.1\r\nHost: www.example.com\r\n\r\n")
	httpResponse := []byte("HTTP/1.1 200 OK\r\nContent-Length: 4\r\n\r\nbody")

	resp, err := client.Respmod("avscan", httpRequest, httpResponse, nil)
	require.NoError(t, err)
	assert.True(t, resp.NoModification())

	raw := string(srv.Requests()[0])
	assert.True(t, strings.HasPrefix(raw, "RESPMOD "))
	assert.Contains(t, raw, fmt.Sprintf("Encapsulated: req-hdr=0, res-hdr=%d, res-body=%d\r\n",
		len(httpRequest), len(httpRequest)+len(httpResponse)-4))
	assert.True(t, strings.HasSuffix(raw, "4\r\nbody\r\n0\r\n\r\n"))
}

func TestClientRespmodVirusVerdict(t *testing.T) {
	client, srv := newTestClient(t)
	srv.Script(icaptest.NewResponse().Virus("EICAR-Test-Signature").Bytes())

	resp, err := client.Respmod("avscan", nil,
		[]byte("HTTP/1.1 200 OK\r\n\r\nX5O!P%@AP[4\\PZX54(P^)7CC)7}$EICAR"), nil)
	require.NoError(t, err)

	assert.Equal(t, 200, resp.StatusCode)
	assert.False(t, resp.NoModification())
	assert.Equal(t, "EICAR-Test-Signature", resp.Headers["X-Virus-ID"])
}

func TestClientServerError(t *testing.T) {
	for _, code := range []int{500, 502, 503} {
		t.Run(fmt.Sprintf("%d", code), func(t *testing.T) {
			client, srv := newTestClient(t)
			srv.Script(icaptest.NewResponse().Error(code, "Server Error").Bytes())

			_, err := client.Options("avscan")

			var serverErr *icap.ServerError
			require.ErrorAs(t, err, &serverErr)
			assert.Equal(t, code, serverErr.StatusCode)

			// The response parsed fine; the connection stays usable.
			assert.True(t, client.Connected())
		})
	}
}

func TestClientNotFoundServiceIsNotServerError(t *testing.T) {
	client, srv := newTestClient(t)
	srv.Script(icaptest.NewResponse().WithStatus(404, "ICAP Service not found").Bytes())

	resp, err := client.Options("nonexistent")
	require.NoError(t, err)
	assert.Equal(t, 404, resp.StatusCode)
	assert.False(t, resp.Success())
}

func TestClientRespmodPreviewInvalidSize(t *testing.T) {
	client, srv := newTestClient(t)

	for _, size := range []int{0, -5} {
		_, err := client.RespmodPreview("avscan", nil, []byte("HTTP/1.1 200 OK\r\n\r\nbody"), size, nil)

		var argErr *icap.InvalidArgumentError
		require.ErrorAs(t, err, &argErr)
	}

	// Rejected before any I/O.
	assert.False(t, client.Connected())
	assert.Empty(t, srv.Requests())
}

func TestClientRespmodPreviewBodyFits(t *testing.T) {
	client, srv := newTestClient(t)

	resp, err := client.RespmodPreview("avscan", nil,
		[]byte("HTTP/1.1 200 OK\r\n\r\ntiny"), 16, nil)
	require.NoError(t, err)
	assert.True(t, resp.NoModification())

	requests := srv.Requests()
	require.Len(t, requests, 1)
	raw := string(requests[0])
	assert.Contains(t, raw, "Preview: 16\r\n")
	assert.True(t, strings.HasSuffix(raw, "4; ieof\r\ntiny\r\n0\r\n\r\n"))
}

func TestClientRespmodPreviewContinue(t *testing.T) {
	client, srv := newTestClient(t)
	srv.Script(
		icaptest.NewResponse().Continue().Bytes(),
		icaptest.NewResponse().Clean().Bytes(),
	)

	resp, err := client.RespmodPreview("avscan", nil,
		[]byte("HTTP/1.1 200 OK\r\n\r\n0123456789"), 4, nil)
	require.NoError(t, err)
	assert.True(t, resp.NoModification())

	requests := srv.Requests()
	require.Len(t, requests, 2)

	preview := string(requests[0])
	assert.Contains(t, preview, "Preview: 4\r\n")
	assert.True(t, strings.HasSuffix(preview, "4\r\n0123\r\n0\r\n\r\n"))
	assert.NotContains(t, preview, "456789")

	assert.Equal(t, "6\r\n456789\r\n0\r\n\r\n", string(requests[1]))
}

func TestClientRespmodPreviewEarlyVerdict(t *testing.T) {
	client, srv := newTestClient(t)
	srv.Script(icaptest.NewResponse().Virus("EICAR-Test-Signature").Bytes())

	resp, err := client.RespmodPreview("avscan", nil,
		[]byte("HTTP/1.1 200 OK\r\n\r\n0123456789"), 4, nil)
	require.NoError(t, err)

	assert.Equal(t, 200, resp.StatusCode)
	assert.Equal(t, "EICAR-Test-Signature", resp.Headers["X-Virus-ID"])

	// The verdict was final; the remainder was never transmitted.
	assert.Len(t, srv.Requests(), 1)
}

func TestClientExtraHeaders(t *testing.T) {
	client, srv := newTestClient(t)

	_, err := client.Reqmod("avscan",
		[]byte("GET / HTTP/1.1\r\nHost: a\r\n\r\n"), nil,
		[]protocol.Header{
			{Name: "X-Client-IP", Value: "10.0.0.1"},
			{Name: "User-Agent", Value: "custom-agent/2.0"},
		})
	require.NoError(t, err)

	raw := string(srv.Requests()[0])
	assert.Contains(t, raw, "X-Client-IP: 10.0.0.1\r\n")
	assert.Contains(t, raw, "User-Agent: custom-agent/2.0\r\n")
	assert.NotContains(t, raw, protocol.UserAgent)
}

func TestClientReusesConnection(t *testing.T) {
	client, srv := newTestClient(t)

	for i := 0; i < 3; i++ {
		resp, err := client.Options("avscan")
		require.NoError(t, err)
		assert.Equal(t, 204, resp.StatusCode)
	}
	assert.Len(t, srv.Requests(), 3)
}

func TestClientCircuitBreakerOpensAfterFailures(t *testing.T) {
	// A port that nothing listens on: every dial fails fast.
	srv, err := icaptest.NewServer()
	require.NoError(t, err)
	host, port := srv.Host(), srv.Port()
	srv.Close()

	client, err := icap.NewClient(icap.Config{
		Host:              host,
		Port:              port,
		Timeout:           time.Second,
		NewCircuitBreaker: icap.NewCircuitBreakerConfig("icap-test", 1, time.Minute, time.Minute),
	})
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		_, err := client.Options("avscan")
		var connErr *icap.ConnectionError
		require.ErrorAs(t, err, &connErr)
	}

	// Tripped: the next call fails fast without touching the network.
	_, err = client.Options("avscan")
	assert.True(t, errors.Is(err, gobreaker.ErrOpenState))
}
