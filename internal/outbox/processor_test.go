package outbox_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"sentinal-media/internal/dispatch"
	domainoutbox "sentinal-media/internal/domain/outbox"
	"sentinal-media/internal/outbox"
	"sentinal-media/internal/repository"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func newEvent(retries int) domainoutbox.OutboxEvent {
	e := domainoutbox.NewEvent("media.file_uploaded", "media_file", "7", "media.image.process", []byte(`{"file_id":7}`), time.Now())
	e.RetryCount = retries
	e.Status = domainoutbox.StatusProcessing
	return *e
}

func newProcessor(repo *repository.MockOutboxRepository, d *dispatch.MockDispatcher) *outbox.Processor {
	return outbox.NewProcessor(repo, d, outbox.ProcessorConfig{
		Exchange:   "media.exchange",
		BatchSize:  10,
		MaxRetries:   3,
		Lease:        time.Minute,
		RetryBackoff: time.Second,
		MaxBackoff:   3 * time.Second,
	}, nil)
}

// dueWithin matches a next-attempt time roughly delay from now.
func dueWithin(delay time.Duration) interface{} {
	return mock.MatchedBy(func(next time.Time) bool {
		d := time.Until(next)
		return d > delay-time.Second && d <= delay
	})
}

func TestProcessor_PublishesAndMarksCompleted(t *testing.T) {
	// Arrange
	repo := repository.NewMockOutboxRepository()
	d := dispatch.NewMockDispatcher()
	e := newEvent(0)
	repo.On("ClaimPending", mock.Anything, 10, time.Minute).Return([]domainoutbox.OutboxEvent{e}, nil)
	d.On("Publish", mock.Anything, "media.exchange", "media.image.process", e.Payload).Return(nil)
	repo.On("MarkCompleted", mock.Anything, e.ID).Return(nil)

	// Act
	n, err := newProcessor(repo, d).ProcessBatch(context.Background())

	// Assert
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	repo.AssertExpectations(t)
	d.AssertExpectations(t)
}

func TestProcessor_PublishFailureSchedulesRetry(t *testing.T) {
	repo := repository.NewMockOutboxRepository()
	d := dispatch.NewMockDispatcher()
	e := newEvent(0)
	repo.On("ClaimPending", mock.Anything, 10, time.Minute).Return([]domainoutbox.OutboxEvent{e}, nil)
	d.On("Publish", mock.Anything, "media.exchange", "media.image.process", e.Payload).Return(errors.New("broker unreachable"))
	repo.On("MarkRetry", mock.Anything, e.ID, "broker unreachable", dueWithin(time.Second)).Return(nil)

	_, err := newProcessor(repo, d).ProcessBatch(context.Background())

	require.NoError(t, err)
	repo.AssertExpectations(t)
	repo.AssertNotCalled(t, "MarkCompleted", mock.Anything, mock.Anything)
}

func TestProcessor_LastRetryMarksFailed(t *testing.T) {
	repo := repository.NewMockOutboxRepository()
	d := dispatch.NewMockDispatcher()
	e := newEvent(2)
	repo.On("ClaimPending", mock.Anything, 10, time.Minute).Return([]domainoutbox.OutboxEvent{e}, nil)
	d.On("Publish", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(errors.New("nack"))
	repo.On("MarkFailed", mock.Anything, e.ID, "nack").Return(nil)

	_, err := newProcessor(repo, d).ProcessBatch(context.Background())

	require.NoError(t, err)
	repo.AssertExpectations(t)
	repo.AssertNotCalled(t, "MarkRetry", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestProcessor_BackoffDoublesUpToCap(t *testing.T) {
	p := newProcessor(repository.NewMockOutboxRepository(), dispatch.NewMockDispatcher())

	assert.Equal(t, time.Second, p.Backoff(1))
	assert.Equal(t, 2*time.Second, p.Backoff(2))
	assert.Equal(t, 3*time.Second, p.Backoff(3))
	assert.Equal(t, 3*time.Second, p.Backoff(60))
}

func TestProcessor_LaterRetryWaitsLonger(t *testing.T) {
	repo := repository.NewMockOutboxRepository()
	d := dispatch.NewMockDispatcher()
	e := newEvent(1)
	repo.On("ClaimPending", mock.Anything, 10, time.Minute).Return([]domainoutbox.OutboxEvent{e}, nil)
	d.On("Publish", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(errors.New("connection refused"))
	repo.On("MarkRetry", mock.Anything, e.ID, "connection refused", dueWithin(2*time.Second)).Return(nil)

	_, err := newProcessor(repo, d).ProcessBatch(context.Background())

	require.NoError(t, err)
	repo.AssertExpectations(t)
}

func TestProcessor_DispatcherRecoversAfterOutage(t *testing.T) {
	// Arrange
	repo := repository.NewMockOutboxRepository()
	d := dispatch.NewMockDispatcher()
	first := newEvent(0)
	retried := first
	retried.RetryCount = 1
	repo.On("ClaimPending", mock.Anything, 10, time.Minute).Return([]domainoutbox.OutboxEvent{first}, nil).Once()
	repo.On("ClaimPending", mock.Anything, 10, time.Minute).Return([]domainoutbox.OutboxEvent{retried}, nil).Once()
	d.On("Publish", mock.Anything, "media.exchange", "media.image.process", first.Payload).Return(errors.New("broker unreachable")).Once()
	d.On("Publish", mock.Anything, "media.exchange", "media.image.process", first.Payload).Return(nil).Once()
	repo.On("MarkRetry", mock.Anything, first.ID, "broker unreachable", dueWithin(time.Second)).Return(nil).Once()
	repo.On("MarkCompleted", mock.Anything, first.ID).Return(nil).Once()
	p := newProcessor(repo, d)

	// Act
	_, errOutage := p.ProcessBatch(context.Background())
	_, errRecovered := p.ProcessBatch(context.Background())

	// Assert
	require.NoError(t, errOutage)
	require.NoError(t, errRecovered)
	repo.AssertExpectations(t)
	d.AssertExpectations(t)
	repo.AssertNotCalled(t, "MarkFailed", mock.Anything, mock.Anything, mock.Anything)
}

func TestProcessor_RequeueFailed(t *testing.T) {
	repo := repository.NewMockOutboxRepository()
	repo.On("RequeueFailed", mock.Anything, time.Hour, 10).Return(int64(2), nil)

	n, err := newProcessor(repo, dispatch.NewMockDispatcher()).RequeueFailed(context.Background())

	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	repo.AssertExpectations(t)
}

func TestProcessor_ClaimErrorIsReturned(t *testing.T) {
	repo := repository.NewMockOutboxRepository()
	d := dispatch.NewMockDispatcher()
	repo.On("ClaimPending", mock.Anything, 10, time.Minute).Return([]domainoutbox.OutboxEvent(nil), errors.New("db down"))

	n, err := newProcessor(repo, d).ProcessBatch(context.Background())

	assert.Error(t, err)
	assert.Zero(t, n)
	d.AssertNotCalled(t, "Publish", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestRunner_StopsOnCancel(t *testing.T) {
	repo := repository.NewMockOutboxRepository()
	d := dispatch.NewMockDispatcher()
	polled := make(chan struct{}, 1)
	repo.On("RequeueFailed", mock.Anything, mock.Anything, mock.Anything).Return(int64(0), nil)
	repo.On("ClaimPending", mock.Anything, mock.Anything, mock.Anything).
		Run(func(mock.Arguments) {
			select {
			case polled <- struct{}{}:
			default:
			}
		}).
		Return([]domainoutbox.OutboxEvent{}, nil)
	p := outbox.NewProcessor(repo, d, outbox.ProcessorConfig{Interval: 10 * time.Millisecond}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	runner := outbox.NewRunner(p)
	runner.Start(ctx)

	select {
	case <-polled:
	case <-time.After(time.Second):
		t.Fatal("processor never polled")
	}

	cancel()
	done := make(chan struct{})
	go func() {
		runner.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("runner did not stop")
	}
}
