package analytics

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	finalize "github.com/goliatone/go-finalize"
	"github.com/goliatone/go-finalize/store"
)

type captureTransport struct {
	tracked    []finalize.TrackEvent
	identified int
	trackErr   error
}

func (c *captureTransport) Identify(context.Context, *finalize.User, string) error {
	c.identified++
	return nil
}

func (c *captureTransport) Track(_ context.Context, event finalize.TrackEvent) error {
	c.tracked = append(c.tracked, event)
	return c.trackErr
}

type stubIdentities struct {
	calls    int
	identity string
	err      error
}

func (s *stubIdentities) EnsureIdentity(_ context.Context, _ *finalize.User) (string, error) {
	s.calls++
	return s.identity, s.err
}

type failingAccounts struct{}

func (failingAccounts) GetAccount(context.Context, string) (*finalize.Account, error) {
	return nil, errors.New("directory unavailable")
}

var fixedNow = time.Date(2026, 3, 4, 5, 6, 7, 0, time.UTC)

func newFixture(t *testing.T) (*store.InMemoryStore, *captureTransport, *stubIdentities) {
	t.Helper()
	s := store.NewInMemoryStore()
	require.NoError(t, s.SaveAccount(context.Background(), &finalize.Account{ID: "acct-1", Name: "Acme", LicenseType: "PAID"}))
	require.NoError(t, s.SaveUser(context.Background(), &finalize.User{ID: "u1", Name: "Ada"}))
	return s, &captureTransport{}, &stubIdentities{identity: "identity-1"}
}

func execution() *finalize.WorkflowExecution {
	return &finalize.WorkflowExecution{
		ID:          "exec-1",
		AccountID:   "acct-1",
		AppID:       "app-1",
		Status:      finalize.StatusSuccess,
		TriggeredBy: &finalize.EmbeddedUser{UUID: "u1"},
	}
}

func TestReportUsesEnsuredIdentity(t *testing.T) {
	s, transport, identities := newFixture(t)
	r := NewReporter(s, s.Users(), identities, transport, WithClock(func() time.Time { return fixedNow }))

	require.NoError(t, r.ReportDeploymentEvent(context.Background(), execution()))

	require.Len(t, transport.tracked, 1)
	event := transport.tracked[0]
	assert.Equal(t, "identity-1", event.Identity)
	assert.Equal(t, DefaultEventName, event.Event)
	assert.Equal(t, "acct-1", event.Account.ID)
	assert.Equal(t, fixedNow, event.Timestamp)
	assert.Equal(t, "exec-1", event.Properties[PropExecutionID])
	assert.Equal(t, 1, identities.calls)
}

func TestReportWithoutTriggerUsesDefaultIdentity(t *testing.T) {
	s, transport, identities := newFixture(t)
	r := NewReporter(s, s.Users(), identities, transport, WithDefaultIdentity("deployer-bot"))

	exec := execution()
	exec.TriggeredBy = nil
	require.NoError(t, r.ReportDeploymentEvent(context.Background(), exec))

	require.Len(t, transport.tracked, 1)
	assert.Equal(t, "deployer-bot", transport.tracked[0].Identity)
	assert.Zero(t, identities.calls)
}

func TestReportUnknownUserFallsBack(t *testing.T) {
	s, transport, identities := newFixture(t)
	r := NewReporter(s, s.Users(), identities, transport)

	exec := execution()
	exec.TriggeredBy = &finalize.EmbeddedUser{UUID: "ghost"}
	require.NoError(t, r.ReportDeploymentEvent(context.Background(), exec))

	require.Len(t, transport.tracked, 1)
	assert.Equal(t, DefaultIdentity, transport.tracked[0].Identity)
	assert.Zero(t, identities.calls)
}

func TestReportIdentityProblemsStillTrack(t *testing.T) {
	cases := map[string]*stubIdentities{
		"lock timeout":     {identity: ""},
		"persist failure":  {err: errors.New("persist failed")},
		"partial identity": {identity: "", err: errors.New("identify failed")},
	}
	for name, identities := range cases {
		t.Run(name, func(t *testing.T) {
			s, transport, _ := newFixture(t)
			r := NewReporter(s, s.Users(), identities, transport)

			require.NoError(t, r.ReportDeploymentEvent(context.Background(), execution()))
			require.Len(t, transport.tracked, 1)
			assert.Equal(t, DefaultIdentity, transport.tracked[0].Identity)
		})
	}
}

func TestReportMissingAccountIsFatal(t *testing.T) {
	s, transport, identities := newFixture(t)
	r := NewReporter(s, s.Users(), identities, transport)

	exec := execution()
	exec.AccountID = "acct-missing"
	err := r.ReportDeploymentEvent(context.Background(), exec)
	require.Error(t, err)
	assert.Equal(t, finalize.ErrCodeAccountNotFound, finalize.ErrorCode(err))
	assert.Empty(t, transport.tracked)

	r = NewReporter(failingAccounts{}, s.Users(), identities, transport)
	err = r.ReportDeploymentEvent(context.Background(), execution())
	require.Error(t, err)
	assert.Equal(t, finalize.ErrCodeAccountLookupFailed, finalize.ErrorCode(err))
	assert.False(t, finalize.HasCode(err, finalize.ErrCodeAccountNotFound))
	assert.Empty(t, transport.tracked)
	assert.Zero(t, identities.calls)
}

func TestReportTrackFailure(t *testing.T) {
	s, transport, identities := newFixture(t)
	transport.trackErr = errors.New("backend down")
	r := NewReporter(s, s.Users(), identities, transport)

	err := r.ReportDeploymentEvent(context.Background(), execution())
	require.Error(t, err)
	assert.Equal(t, finalize.ErrCodeAnalyticsReport, finalize.ErrorCode(err))
	assert.Len(t, transport.tracked, 1)
}

func TestReportNilExecution(t *testing.T) {
	s, transport, identities := newFixture(t)
	r := NewReporter(s, s.Users(), identities, transport)

	err := r.ReportDeploymentEvent(context.Background(), nil)
	require.Error(t, err)
	assert.Equal(t, finalize.ErrCodeValidationFailed, finalize.ErrorCode(err))
}
