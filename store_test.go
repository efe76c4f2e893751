package mqtt

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lanternmq/mqttgo/packets"
)

func testPublishForStore(id uint16, qos byte) *packets.PublishPacket {
	p := packets.NewControlPacket(packets.Publish).(*packets.PublishPacket)
	p.Qos = qos
	p.MessageID = id
	p.TopicName = "a/b"
	p.Payload = []byte("payload")
	return p
}

func runStoreContract(t *testing.T, s Store) {
	t.Helper()
	s.Open("client-1", "tcp://localhost:1883")
	defer s.Close()

	p := testPublishForStore(7, 1)
	key := outboundSentKey(7)
	require.NoError(t, s.Put(key, p))

	got, err := s.Get(key)
	require.NoError(t, err)
	require.NotNil(t, got)
	pub, ok := got.(*packets.PublishPacket)
	require.True(t, ok)
	assert.Equal(t, p.TopicName, pub.TopicName)
	assert.Equal(t, p.MessageID, pub.MessageID)

	assert.Contains(t, s.All(), key)

	s.Del(key)
	gone, err := s.Get(key)
	require.NoError(t, err)
	assert.Nil(t, gone)
	assert.NotContains(t, s.All(), key)
}

func TestMemoryStoreContract(t *testing.T) {
	runStoreContract(t, NewMemoryStore())
}

func TestFileStoreContract(t *testing.T) {
	dir := t.TempDir()
	runStoreContract(t, NewFileStore(dir))
}

func TestMemoryStorePutFailsBeforeOpen(t *testing.T) {
	s := NewMemoryStore()
	err := s.Put(outboundSentKey(1), testPublishForStore(1, 1))
	require.Error(t, err)
	var merr *Error
	require.ErrorAs(t, err, &merr)
	assert.Equal(t, CodePersistenceFailure, merr.Code)
}

func TestFileStorePutFailsBeforeOpen(t *testing.T) {
	s := NewFileStore(t.TempDir())
	err := s.Put(outboundSentKey(1), testPublishForStore(1, 1))
	require.Error(t, err)
}

func TestFileStoreSurvivesReopen(t *testing.T) {
	root := t.TempDir()

	s1 := NewFileStore(root)
	s1.Open("client-1", "tcp://broker:1883")
	require.NoError(t, s1.Put(outboundSentKey(1), testPublishForStore(1, 1)))
	s1.Close()

	s2 := NewFileStore(root)
	s2.Open("client-1", "tcp://broker:1883")
	got, err := s2.Get(outboundSentKey(1))
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, uint16(1), got.Details().MessageID)
}

func TestFileStoreResetClearsDirectory(t *testing.T) {
	root := t.TempDir()
	s := NewFileStore(root)
	s.Open("c", "tcp://b:1883")
	require.NoError(t, s.Put(outboundSentKey(1), testPublishForStore(1, 1)))
	require.NoError(t, s.Put(outboundSentKey(2), testPublishForStore(2, 1)))

	s.Reset()
	assert.Empty(t, s.All())
}

func TestSanitizeForPathReplacesUnsafeChars(t *testing.T) {
	sanitized := sanitizeForPath("client/with:weird?chars")
	assert.NotContains(t, sanitized, "/")
	assert.NotContains(t, sanitized, ":")
	assert.NotContains(t, sanitized, "?")
}

func TestFileStoreWritesUnderSanitizedClientDir(t *testing.T) {
	root := t.TempDir()
	s := NewFileStore(root)
	s.Open("weird/client", "tcp://broker:1883")
	require.NoError(t, s.Put(outboundSentKey(3), testPublishForStore(3, 1)))

	entries, err := os.ReadDir(root)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.FileExists(t, filepath.Join(root, entries[0].Name(), "s-3.msg"))
}

func TestKeyPrefixHelpers(t *testing.T) {
	assert.True(t, isKeyOutbound(outboundSentKey(1)))
	assert.True(t, isKeyOutbound(outboundPubcompKey(1)))
	assert.True(t, isKeyOutbound(outboundPubrelKey(1)))
	assert.True(t, isKeyInbound(inboundKey(1)))
	assert.False(t, isKeyOutbound(inboundKey(1)))
	assert.True(t, isKeyBuffer(bufferKey(3)))
	assert.Equal(t, 3, bufferKeySeq(bufferKey(3)))
}

func TestPersistOutboundPubrecRekeysFromSentToPubrel(t *testing.T) {
	s := NewMemoryStore()
	s.Open("c", "tcp://b:1883")

	pub := testPublishForStore(9, 2)
	require.NoError(t, persistOutbound(s, pub))
	sent, err := s.Get(outboundSentKey(9))
	require.NoError(t, err)
	assert.NotNil(t, sent)

	prel := packets.NewControlPacket(packets.Pubrel).(*packets.PubrelPacket)
	prel.MessageID = 9
	require.NoError(t, persistOutboundPubrec(s, 9, prel))

	sent, err = s.Get(outboundSentKey(9))
	require.NoError(t, err)
	assert.Nil(t, sent)

	pc, err := s.Get(outboundPubcompKey(9))
	require.NoError(t, err)
	assert.NotNil(t, pc)

	pr, err := s.Get(outboundPubrelKey(9))
	require.NoError(t, err)
	assert.NotNil(t, pr)
}
