package wire

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/encoding/protowire"
)

func TestCodec_RejectsForeignValues(t *testing.T) {
	var c Codec

	_, err := c.Marshal("not a message")
	assert.ErrorIs(t, err, ErrNotAMessage)

	err = c.Unmarshal(nil, 42)
	assert.ErrorIs(t, err, ErrNotAMessage)

	assert.Equal(t, "proto", c.Name())
}

func TestReadResp_TruncatedPayloadIsDecodeError(t *testing.T) {
	msg := &ReadResp{Kind: RespConfirmation, SubscriptionID: "sub-123"}
	data, err := msg.Marshal()
	require.NoError(t, err)

	var out ReadResp
	err = out.Unmarshal(data[:len(data)-2])

	var decodeErr *DecodeError
	require.ErrorAs(t, err, &decodeErr)
	assert.Equal(t, "ReadResp", decodeErr.Message)
}

func TestReadResp_WrongWireTypeIsDecodeError(t *testing.T) {
	// field 5 (first_stream_position) must be a varint
	data := protowire.AppendTag(nil, 5, protowire.BytesType)
	data = protowire.AppendBytes(data, []byte("x"))

	var out ReadResp
	var decodeErr *DecodeError
	require.ErrorAs(t, out.Unmarshal(data), &decodeErr)
}

func TestReadResp_SkipsUnknownFields(t *testing.T) {
	data := protowire.AppendTag(nil, 99, protowire.BytesType)
	data = protowire.AppendBytes(data, []byte("future"))
	data = protowire.AppendTag(data, 8, protowire.BytesType)
	data = protowire.AppendBytes(data, nil)

	var out ReadResp
	require.NoError(t, out.Unmarshal(data))
	assert.Equal(t, RespCaughtUp, out.Kind)
}

func TestReadReq_EncodesCountOrSubscription(t *testing.T) {
	read := &ReadReq{
		Stream: &ReadStreamOptions{StreamName: []byte("orders-1"), Start: StreamStart{Kind: FromRevision, Revision: 0}},
		Count:  2,
	}
	data, err := read.Marshal()
	require.NoError(t, err)

	var got ReadReq
	require.NoError(t, got.Unmarshal(data))
	assert.Equal(t, uint64(2), got.Count)
	assert.False(t, got.Subscription)
	assert.Equal(t, FromRevision, got.Stream.Start.Kind, "revision 0 must survive as an explicit start")
	assert.Equal(t, []byte("orders-1"), got.Stream.StreamName)
	assert.Nil(t, got.Filter)

	sub := &ReadReq{All: &ReadAllOptions{Start: AllStart{Kind: FromEnd}}, Subscription: true}
	data, err = sub.Marshal()
	require.NoError(t, err)

	require.NoError(t, got.Unmarshal(data))
	assert.True(t, got.Subscription)
	assert.Nil(t, got.Stream)
	require.NotNil(t, got.All)
	assert.Equal(t, FromEnd, got.All.Start.Kind)
}

func TestReadReq_RequiresExactlyOneTarget(t *testing.T) {
	_, err := (&ReadReq{}).Marshal()
	assert.ErrorIs(t, err, errNoReadTarget)

	_, err = (&ReadReq{Stream: &ReadStreamOptions{}, All: &ReadAllOptions{}}).Marshal()
	assert.ErrorIs(t, err, errNoReadTarget)
}

func TestUUID_StructuredHalves(t *testing.T) {
	id := uuid.MustParse("0f8fad5b-d9cb-469f-a165-70867728950e")

	resp := &ReadResp{Kind: RespEvent, Event: &ReadEvent{
		Event: &RecordedEvent{ID: UUID{Value: id}, StreamName: []byte("s"), Metadata: map[string]string{MetadataType: "T"}},
	}}
	data, err := resp.Marshal()
	require.NoError(t, err)

	var got ReadResp
	require.NoError(t, got.Unmarshal(data))
	require.NotNil(t, got.Event.Event)
	assert.Equal(t, id, got.Event.Event.ID.Value)
	assert.False(t, got.Event.Event.ID.AsString)
	assert.False(t, got.Event.HasCommitPosition)
	assert.Equal(t, "T", got.Event.Event.Metadata[MetadataType])
}

func TestAppendResp_WrongExpectedVersion(t *testing.T) {
	resp := &AppendResp{WrongExpectedVersion: &WrongExpectedVersion{
		CurrentRevision:    7,
		HasCurrentRevision: true,
		Expected:           Expected{Kind: ExpectRevision, Revision: 5},
	}}
	data, err := resp.Marshal()
	require.NoError(t, err)

	var got AppendResp
	require.NoError(t, got.Unmarshal(data))
	require.Nil(t, got.Success)
	require.NotNil(t, got.WrongExpectedVersion)
	assert.Equal(t, uint64(7), got.WrongExpectedVersion.CurrentRevision)
	assert.Equal(t, Expected{Kind: ExpectRevision, Revision: 5}, got.WrongExpectedVersion.Expected)
}

func TestPersistentNack_CarriesActionAndReason(t *testing.T) {
	id := uuid.New()
	req := &PersistentReadReq{Nack: &PersistentNack{
		IDs:    []UUID{{Value: id}},
		Action: NackPark,
		Reason: "poison",
	}}
	data, err := req.Marshal()
	require.NoError(t, err)

	var got PersistentReadReq
	require.NoError(t, got.Unmarshal(data))
	require.NotNil(t, got.Nack)
	assert.Equal(t, NackPark, got.Nack.Action)
	assert.Equal(t, "poison", got.Nack.Reason)
	require.Len(t, got.Nack.IDs, 1)
	assert.Equal(t, id, got.Nack.IDs[0].Value)
}

func TestClusterInfo_Members(t *testing.T) {
	info := &ClusterInfo{Members: []MemberInfo{
		{State: StateLeader, IsAlive: true, Address: "node1", Port: 2113},
		{State: StateFollower, IsAlive: false, Address: "node2", Port: 2113},
	}}
	data, err := info.Marshal()
	require.NoError(t, err)

	var got ClusterInfo
	require.NoError(t, got.Unmarshal(data))
	require.Len(t, got.Members, 2)
	assert.Equal(t, StateLeader, got.Members[0].State)
	assert.True(t, got.Members[0].IsAlive)
	assert.Equal(t, "node2", got.Members[1].Address)
	assert.False(t, got.Members[1].IsAlive)
}
