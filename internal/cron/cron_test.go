package cron

import (
	"context"
	"errors"
	"testing"

	cronv3 "github.com/robfig/cron/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"k8s.io/client-go/kubernetes"

	"github.com/customeros/mailintake/config"
	"github.com/customeros/mailintake/dto"
	cron_config "github.com/customeros/mailintake/internal/cron/config"
	"github.com/customeros/mailintake/internal/testutil"
)

type mockKubernetesInterface struct {
	kubernetes.Interface
	mock.Mock
}

type mockRunner struct {
	mock.Mock
}

func (m *mockRunner) RunAll(ctx context.Context) ([]*dto.RunSummary, error) {
	args := m.Called(ctx)
	summaries, _ := args.Get(0).([]*dto.RunSummary)
	return summaries, args.Error(1)
}

func TestNewCronManager(t *testing.T) {
	cfg := &config.Config{AppConfig: &config.AppConfig{}}
	log := testutil.NewTestLogger()
	k8s := &mockKubernetesInterface{}

	cm := NewCronManager(cfg, log, k8s, nil)

	assert.NotNil(t, cm)
	assert.Equal(t, cfg, cm.cfg)
	assert.Equal(t, k8s, cm.k8s)
	assert.NotNil(t, cm.jobIDs)
}

func TestCronManager_RegisterJobs(t *testing.T) {
	cm := NewCronManager(&config.Config{}, testutil.NewTestLogger(), nil, &mockRunner{})
	c := cronv3.New(cronv3.WithSeconds())

	err := cm.registerJobs(c, &cron_config.Config{
		CronScheduleHeartbeat:   "0 */5 * * * *",
		CronScheduleMailboxPoll: "0 * * * * *",
	})

	require.NoError(t, err)
	assert.Len(t, cm.jobIDs, 2)
	assert.Contains(t, cm.jobIDs, "heartbeat")
	assert.Contains(t, cm.jobIDs, "mailbox_poll")
	assert.Len(t, c.Entries(), 2)
}

func TestCronManager_RegisterJobs_InvalidSchedule(t *testing.T) {
	cm := NewCronManager(&config.Config{}, testutil.NewTestLogger(), nil, &mockRunner{})
	c := cronv3.New(cronv3.WithSeconds())

	err := cm.registerJobs(c, &cron_config.Config{CronScheduleMailboxPoll: "every minute"})

	assert.Error(t, err)
	assert.Empty(t, cm.jobIDs)
}

func TestCronManager_RegisterJobs_WithoutRunner(t *testing.T) {
	cm := NewCronManager(&config.Config{}, testutil.NewTestLogger(), nil, nil)
	c := cronv3.New(cronv3.WithSeconds())

	err := cm.registerJobs(c, &cron_config.Config{
		CronScheduleHeartbeat:   "0 */5 * * * *",
		CronScheduleMailboxPoll: "0 * * * * *",
	})

	require.NoError(t, err)
	assert.NotContains(t, cm.jobIDs, "mailbox_poll")
}

func TestCronManager_PollMailboxes(t *testing.T) {
	runner := &mockRunner{}
	runner.On("RunAll", mock.Anything).Return([]*dto.RunSummary{
		{Mailbox: "support", Processed: 2, Skipped: 1},
		{Mailbox: "sales", Failed: 1},
	}, errors.New("mailbox billing: connect to mailbox: timeout")).Once()

	cm := NewCronManager(&config.Config{}, testutil.NewTestLogger(), nil, runner)
	cm.pollMailboxes()

	runner.AssertExpectations(t)
}

func TestCronManager_Stop(t *testing.T) {
	cm := NewCronManager(&config.Config{}, testutil.NewTestLogger(), &mockKubernetesInterface{}, nil)
	c := cronv3.New()
	c.Start()
	cm.cron = c

	cm.Stop()
	// A second stop, e.g. from a lost leadership callback, is a no-op.
	cm.Stop()

	select {
	case <-cm.stopCh:
	default:
		t.Error("Stop channel was not closed")
	}
}

func TestCronManager_StopCancelsRunningPoll(t *testing.T) {
	started := make(chan struct{})
	runner := &mockRunner{}
	runner.On("RunAll", mock.Anything).Run(func(args mock.Arguments) {
		close(started)
		<-args.Get(0).(context.Context).Done()
	}).Return(nil, context.Canceled).Once()

	cm := NewCronManager(&config.Config{}, testutil.NewTestLogger(), nil, runner)
	done := make(chan struct{})
	go func() {
		defer close(done)
		cm.pollMailboxes()
	}()

	<-started
	cm.Stop()
	<-done
	runner.AssertExpectations(t)
}
