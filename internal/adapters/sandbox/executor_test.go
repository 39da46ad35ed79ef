package sandbox

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/andrescamacho/takaro-connector/internal/adapters/auth"
	"github.com/andrescamacho/takaro-connector/internal/domain/execution"
	"github.com/andrescamacho/takaro-connector/internal/domain/module"
	"github.com/andrescamacho/takaro-connector/internal/domain/shared"
)

type recordingRunner struct {
	got         []Invocation
	hadDeadline bool
	result      *execution.Result
}

func (r *recordingRunner) Run(ctx context.Context, inv Invocation) (*execution.Result, error) {
	r.got = append(r.got, inv)
	_, r.hadDeadline = ctx.Deadline()
	if r.result != nil {
		return r.result, nil
	}
	return &execution.Result{Logs: []execution.LogLine{}, Success: true}, nil
}

func domainToken(t *testing.T, domainID string) string {
	t.Helper()
	issuer, err := auth.NewLocalIssuer("test-signing-key", time.Hour, "", nil)
	require.NoError(t, err)
	token, err := issuer.Token(context.Background(), domainID)
	require.NoError(t, err)
	return token
}

func TestExecutor_AugmentsDataAndBoundsRun(t *testing.T) {
	// Arrange
	runner := &recordingRunner{}
	exec := NewExecutor(runner, ExecutorOptions{BaseURL: "http://platform.test", Timeout: time.Second})
	token := domainToken(t, "dom-1")
	inst := &module.Installation{ID: "inst-1", ModuleID: "mod-1"}

	// Act
	res, err := exec.Execute(context.Background(), execution.Request{
		FunctionID: "fn-1",
		DomainID:   "dom-1",
		Code:       `print(1)`,
		Data:       map[string]any{"module": inst.Ref(), "commandId": "cmd-1"},
		Token:      token,
	})

	// Assert
	require.NoError(t, err)
	assert.True(t, res.Success)
	require.Len(t, runner.got, 1)
	inv := runner.got[0]
	assert.Equal(t, token, inv.Data["token"])
	assert.Equal(t, "http://platform.test", inv.Data["url"])
	assert.Equal(t, "cmd-1", inv.Data["commandId"])
	assert.Equal(t, map[string]any{"moduleId": "mod-1", "installationId": "inst-1", "userConfig": map[string]any{}}, inv.Data["module"])
	assert.Equal(t, time.Second, inv.Timeout)
	assert.Equal(t, DefaultMaxLogLines, inv.MaxLogLines)
	assert.True(t, runner.hadDeadline)
}

func TestExecutor_RejectsTokenForOtherDomain(t *testing.T) {
	runner := &recordingRunner{}
	exec := NewExecutor(runner, ExecutorOptions{})

	_, err := exec.Execute(context.Background(), execution.Request{
		DomainID: "dom-1",
		Code:     `print(1)`,
		Token:    domainToken(t, "dom-2"),
	})

	var verr *shared.ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, "token", verr.Field)
	assert.Empty(t, runner.got)
}

func TestExecutor_RejectsMalformedToken(t *testing.T) {
	exec := NewExecutor(&recordingRunner{}, ExecutorOptions{})

	_, err := exec.Execute(context.Background(), execution.Request{DomainID: "dom-1", Token: "not-a-jwt"})

	assert.Error(t, err)
}

func TestExecutor_DefaultsTimeout(t *testing.T) {
	runner := &recordingRunner{}
	exec := NewExecutor(runner, ExecutorOptions{})

	_, err := exec.Execute(context.Background(), execution.Request{DomainID: "d", Token: domainToken(t, "d")})

	require.NoError(t, err)
	assert.Equal(t, DefaultTimeout, runner.got[0].Timeout)
}

func TestExecutor_InProcessTimeout(t *testing.T) {
	// Arrange
	exec := NewExecutor(NewInProcessRunner(nil), ExecutorOptions{Timeout: 50 * time.Millisecond})

	// Act
	res, err := exec.Execute(context.Background(), execution.Request{
		DomainID: "dom-1",
		Code:     `print("spinning") while true do end`,
		Token:    domainToken(t, "dom-1"),
	})

	// Assert
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Contains(t, res.Logs[len(res.Logs)-1].Msg, "timed out")
}

func TestExecutor_InProcessEndToEnd(t *testing.T) {
	platform := newFakePlatform()
	exec := NewExecutor(NewInProcessRunner(platform), ExecutorOptions{BaseURL: "http://platform.test"})
	token := domainToken(t, "dom-1")
	code := `
local helpers = require("takaro")
local data = helpers.getData()
helpers.getTakaro(data).gameserver.sendMessage(data.gameServerId, "pong")
print(data.url)
`

	res, err := exec.Execute(context.Background(), execution.Request{
		DomainID: "dom-1",
		Code:     code,
		Data:     map[string]any{"gameServerId": "gs-1"},
		Token:    token,
	})

	require.NoError(t, err)
	require.True(t, res.Success, messages(res))
	assert.Equal(t, []string{"http://platform.test"}, messages(res))
	require.Len(t, platform.Calls(), 1)
	assert.Equal(t, token, platform.Calls()[0].token)
}
