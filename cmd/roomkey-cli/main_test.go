package main

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/davidahmann/roomkey/internal/escalation"
)

type gatewayCall struct {
	task   string
	worker string
	token  string
}

func fakeGateway(t *testing.T, status int, body string) (*httptest.Server, *[]gatewayCall) {
	t.Helper()
	var calls []gatewayCall
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/video-token" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		_ = r.ParseForm()
		calls = append(calls, gatewayCall{
			task:   r.PostForm.Get("taskSid"),
			worker: r.PostForm.Get("workerName"),
			token:  r.PostForm.Get("Token"),
		})
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv, &calls
}

const issuedBody = `{"agentToken":"agent.jwt","customerToken":"customer.jwt","roomName":"Room-TK123"}`

func runCLI(args []string, environ map[string]string) (int, string, string) {
	var stdout, stderr bytes.Buffer
	code := run(args, environ, &stdout, &stderr)
	return code, stdout.String(), stderr.String()
}

func TestIssueCommand(t *testing.T) {
	srv, calls := fakeGateway(t, http.StatusOK, issuedBody)

	code, out, _ := runCLI([]string{"issue", "--task", "TK123", "--worker", "Ann", "--addr", srv.URL, "--token", "caller"}, nil)
	require.Equal(t, 0, code)
	assert.Contains(t, out, "room=Room-TK123")
	assert.Contains(t, out, "agent_token=agent.jwt")
	assert.Contains(t, out, "customer_token=customer.jwt")
	require.Len(t, *calls, 1)
	assert.Equal(t, gatewayCall{task: "TK123", worker: "Ann", token: "caller"}, (*calls)[0])
}

func TestIssueCommandJSONUsesEnvironment(t *testing.T) {
	srv, calls := fakeGateway(t, http.StatusOK, issuedBody)

	environ := map[string]string{"ROOMKEY_GATEWAY_URL": srv.URL, "ROOMKEY_CALLER_TOKEN": "from-env"}
	code, out, _ := runCLI([]string{"issue", "--task", "TK123", "--json"}, environ)
	require.Equal(t, 0, code)
	assert.JSONEq(t, issuedBody, out)
	require.Len(t, *calls, 1)
	assert.Equal(t, "from-env", (*calls)[0].token)
}

func TestIssueCommandErrors(t *testing.T) {
	srv, _ := fakeGateway(t, http.StatusUnauthorized, `{"error":"unauthorized"}`)

	code, _, errOut := runCLI([]string{"issue", "--task", "TK123", "--addr", srv.URL}, nil)
	assert.Equal(t, 1, code)
	assert.Contains(t, errOut, "401")

	code, _, errOut = runCLI([]string{"issue", "--addr", srv.URL}, nil)
	assert.Equal(t, 1, code)
	assert.Contains(t, errOut, "task")
}

func TestEscalateCommand(t *testing.T) {
	srv, calls := fakeGateway(t, http.StatusOK, issuedBody)

	code, out, _ := runCLI([]string{
		"escalate", "--task", "TK123", "--conversation", "C1", "--worker", "Ann",
		"--addr", srv.URL, "--join-base", "https://video.example.test/room",
	}, map[string]string{"ROOMKEY_LOG_LEVEL": "disabled"})
	require.Equal(t, 0, code)
	require.Len(t, *calls, 1)
	assert.Equal(t, "Ann", (*calls)[0].worker)

	assert.Contains(t, out, "conversation=C1")
	assert.Contains(t, out, "Join here: https://video.example.test/room?token=customer.jwt")

	var joinLine string
	for _, line := range strings.Split(out, "\n") {
		if strings.HasPrefix(line, "join=") {
			joinLine = strings.TrimPrefix(line, "join=")
		}
	}
	u, err := url.Parse(joinLine)
	require.NoError(t, err)
	assert.Equal(t, "agent.jwt", u.Query().Get("token"))
}

func TestEscalateCommandWithoutTaskIsNoop(t *testing.T) {
	srv, calls := fakeGateway(t, http.StatusOK, issuedBody)

	code, out, errOut := runCLI([]string{"escalate", "--addr", srv.URL}, map[string]string{"ROOMKEY_LOG_LEVEL": "disabled"})
	assert.Equal(t, 0, code)
	assert.Empty(t, out)
	assert.Empty(t, errOut)
	assert.Empty(t, *calls)
}

func TestEscalateCommandIssueFailure(t *testing.T) {
	srv, _ := fakeGateway(t, http.StatusInternalServerError, `{"error":"internal error"}`)

	code, out, errOut := runCLI([]string{"escalate", "--task", "TK1", "--conversation", "C1", "--addr", srv.URL},
		map[string]string{"ROOMKEY_LOG_LEVEL": "disabled"})
	assert.Equal(t, 1, code)
	assert.Empty(t, out)
	assert.Equal(t, escalation.FailureNotice+"\n", errOut)
}

func TestEscalateCommandUnreachableGateway(t *testing.T) {
	code, out, errOut := runCLI([]string{"escalate", "--task", "TK1", "--conversation", "C1", "--addr", "http://127.0.0.1:1"},
		map[string]string{"ROOMKEY_LOG_LEVEL": "disabled"})
	assert.Equal(t, 1, code)
	assert.Empty(t, out)
	assert.Equal(t, escalation.FailureNotice+"\n", errOut)
	assert.NotContains(t, errOut, "connection refused")
}

func TestEscalateCommandFlagErrorsStillPrinted(t *testing.T) {
	code, _, errOut := runCLI([]string{"escalate", "--no-such-flag"}, map[string]string{"ROOMKEY_LOG_LEVEL": "disabled"})
	assert.Equal(t, 1, code)
	assert.Contains(t, errOut, "no-such-flag")
}

func TestRunBadConfig(t *testing.T) {
	code, _, errOut := runCLI([]string{"issue"}, map[string]string{"ROOMKEY_LEASE_TTL": "later"})
	assert.Equal(t, 2, code)
	assert.NotEmpty(t, errOut)
}

func TestMainShowsHelp(t *testing.T) {
	oldExit := exitFn
	oldArgs := os.Args
	defer func() {
		exitFn = oldExit
		os.Args = oldArgs
	}()

	os.Args = []string{"roomkey-cli"}

	var got int
	exitFn = func(code int) { got = code }
	main()
	assert.Equal(t, 0, got)
}
