package mqtt

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/lanternmq/mqttgo/packets"
)

func newTestMessageIds() *messageIds {
	return &messageIds{index: make(map[uint16]tokenCompletor)}
}

func TestGetIDAllocatesDistinctIDs(t *testing.T) {
	mids := newTestMessageIds()
	tok1 := newToken(packets.Publish) // PublishToken (packets.Publish == 3)
	tok2 := newToken(packets.Publish)

	id1 := mids.getID(tok1)
	id2 := mids.getID(tok2)

	assert.NotZero(t, id1)
	assert.NotZero(t, id2)
	assert.NotEqual(t, id1, id2)
	assert.Equal(t, 2, mids.inUse())
}

func TestFreeIDAllowsReuse(t *testing.T) {
	mids := newTestMessageIds()
	tok := newToken(packets.Publish)
	id := mids.getID(tok)
	mids.freeID(id)
	assert.Equal(t, 0, mids.inUse())

	tok2 := newToken(packets.Publish)
	id2 := mids.getID(tok2)
	assert.NotZero(t, id2)
}

func TestClaimIDReservesWithoutOverwriting(t *testing.T) {
	mids := newTestMessageIds()
	tok := newToken(packets.Publish)
	mids.claimID(tok, 100)
	assert.Equal(t, 1, mids.inUse())

	other := newToken(packets.Publish)
	mids.claimID(other, 100)
	assert.Same(t, tok, mids.getToken(100))
}

func TestGetTokenReturnsDummyForUnknownID(t *testing.T) {
	mids := newTestMessageIds()
	tok := mids.getToken(999)
	dummy, ok := tok.(*DummyToken)
	assert.True(t, ok)
	assert.True(t, dummy.Wait())
	assert.Nil(t, dummy.Error())
}

func TestCleanUpFailsPendingTokens(t *testing.T) {
	mids := newTestMessageIds()
	tok := newToken(packets.Publish).(*PublishToken)
	id := mids.getID(tok)
	require := assert.New(t)
	require.NotZero(id)

	mids.cleanUp()
	require.Equal(0, mids.inUse())
	require.True(tok.WaitTimeout(0))
	require.ErrorIs(tok.Error(), ErrNotConnected)
}

func TestGetIDExhaustion(t *testing.T) {
	mids := newTestMessageIds()
	for i := 0; i < int(midMax); i++ {
		tok := newToken(packets.Publish)
		id := mids.getID(tok)
		assert.NotZero(t, id)
	}
	tok := newToken(packets.Publish)
	assert.Zero(t, mids.getID(tok))
}
