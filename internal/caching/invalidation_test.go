package caching

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

type InvalidationBusTestSuite struct {
	suite.Suite
	server *miniredis.Miniredis
	client *redis.Client
	ctx    context.Context
	cancel context.CancelFunc
}

func (suite *InvalidationBusTestSuite) SetupTest() {
	suite.server = miniredis.RunT(suite.T())
	suite.client = redis.NewClient(&redis.Options{Addr: suite.server.Addr()})
	suite.ctx, suite.cancel = context.WithCancel(context.Background())
}

func (suite *InvalidationBusTestSuite) TearDownTest() {
	suite.cancel()
	suite.client.Close()
}

func (suite *InvalidationBusTestSuite) subscribe(bus *InvalidationBus) (<-chan string, <-chan struct{}) {
	received := make(chan string, 10)
	done, err := bus.Subscribe(suite.ctx, func(tenantID string) { received <- tenantID })
	suite.Require().NoError(err)
	return received, done
}

func (suite *InvalidationBusTestSuite) TestDeliversToOtherProcesses() {
	publisher := NewInvalidationBus(suite.client, "", nil)
	subscriber := NewInvalidationBus(suite.client, "", nil)
	received, _ := suite.subscribe(subscriber)

	suite.Require().NoError(publisher.InvalidateTenant(suite.ctx, "t1"))

	select {
	case id := <-received:
		suite.Equal("t1", id)
	case <-time.After(2 * time.Second):
		suite.Fail("invalidation not delivered")
	}
}

func (suite *InvalidationBusTestSuite) TestSkipsOwnMessages() {
	bus := NewInvalidationBus(suite.client, "", nil)
	other := NewInvalidationBus(suite.client, "", nil)
	received, _ := suite.subscribe(bus)

	suite.Require().NoError(bus.InvalidateTenant(suite.ctx, "own"))
	suite.Require().NoError(other.InvalidateTenant(suite.ctx, "t2"))

	select {
	case id := <-received:
		suite.Equal("t2", id)
	case <-time.After(2 * time.Second):
		suite.Fail("invalidation not delivered")
	}
}

func (suite *InvalidationBusTestSuite) TestIgnoresMalformedMessages() {
	bus := NewInvalidationBus(suite.client, "", nil)
	received, _ := suite.subscribe(bus)

	suite.server.Publish(DefaultInvalidationChannel, "not json")
	suite.server.Publish(DefaultInvalidationChannel, `{"origin":"x"}`)
	payload, err := json.Marshal(InvalidationMessage{TenantID: "t3", Origin: "elsewhere"})
	suite.Require().NoError(err)
	suite.server.Publish(DefaultInvalidationChannel, string(payload))

	select {
	case id := <-received:
		suite.Equal("t3", id)
	case <-time.After(2 * time.Second):
		suite.Fail("invalidation not delivered")
	}
}

func (suite *InvalidationBusTestSuite) TestSubscriptionEndsWithContext() {
	bus := NewInvalidationBus(suite.client, "custom:channel", nil)
	suite.Equal("custom:channel", bus.Channel())
	_, done := suite.subscribe(bus)

	suite.cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		suite.Fail("subscription did not stop")
	}
}

func (suite *InvalidationBusTestSuite) TestPublishFailsWhenRedisIsDown() {
	bus := NewInvalidationBus(suite.client, "", nil)
	suite.server.Close()

	err := bus.InvalidateTenant(context.Background(), "t1")
	suite.ErrorContains(err, "failed to publish invalidation for tenant t1")
	suite.Error(bus.Ping(context.Background()))
}

func TestInvalidationBusTestSuite(t *testing.T) {
	suite.Run(t, new(InvalidationBusTestSuite))
}

func TestNewRedisClient_ParsesURL(t *testing.T) {
	server := miniredis.RunT(t)

	client := NewRedisClient("redis://"+server.Addr()+"/2", "", 0, nil)
	defer client.Close()

	assert.Equal(t, server.Addr(), client.Options().Addr)
	assert.Equal(t, 2, client.Options().DB)
	require.NoError(t, client.Ping(context.Background()).Err())
}

func TestNewRedisClient_PlainAddress(t *testing.T) {
	server := miniredis.RunT(t)

	client := NewRedisClient(server.Addr(), "", 1, nil)
	defer client.Close()

	assert.Equal(t, 1, client.Options().DB)
	require.NoError(t, client.Set(context.Background(), "k", "v", 0).Err())
}
