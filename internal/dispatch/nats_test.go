package dispatch_test

import (
	"context"
	"testing"
	"time"

	"sentinal-media/internal/dispatch"

	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

func setupNATSContainer(t *testing.T) string {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping NATS integration test in short mode")
	}
	ctx := context.Background()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "nats:2.10-alpine",
			ExposedPorts: []string{"4222/tcp"},
			WaitingFor:   wait.ForLog("Server is ready"),
		},
		Started: true,
	})
	testcontainers.CleanupContainer(t, container)
	require.NoError(t, err)

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "4222")
	require.NoError(t, err)
	return "nats://" + host + ":" + port.Port()
}

func TestNATSDispatcher_PublishUsesRoutingKeySubject(t *testing.T) {
	// Arrange
	url := setupNATSContainer(t)
	conn, err := nats.Connect(url)
	require.NoError(t, err)
	t.Cleanup(conn.Close)

	received := make(chan *nats.Msg, 1)
	sub, err := conn.ChanSubscribe("media.*.process", received)
	require.NoError(t, err)
	t.Cleanup(func() { _ = sub.Unsubscribe() })
	require.NoError(t, conn.Flush())

	d, err := dispatch.NewNATSDispatcher(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = d.Close() })

	// Act
	err = d.Publish(context.Background(), "media.exchange", "media.image.process", []byte(`{"file_id":3}`))

	// Assert
	require.NoError(t, err)
	select {
	case msg := <-received:
		assert.Equal(t, "media.image.process", msg.Subject)
		assert.Equal(t, "media.exchange", msg.Header.Get(dispatch.ExchangeHeader))
		assert.JSONEq(t, `{"file_id":3}`, string(msg.Data))
	case <-time.After(5 * time.Second):
		t.Fatal("message not received")
	}
}
