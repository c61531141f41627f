package usb

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/robotalks/ghostkb/pkg/messages"
)

func TestCommandEncoding(t *testing.T) {
	cmd := Command{Kind: KindSetRGB, Value: 0xff8000, Data: []byte{1, 2, 3}}
	data, err := Encode(cmd)
	require.NoError(t, err)
	decoded, err := Decode(data)
	require.NoError(t, err)
	require.Equal(t, cmd, decoded)

	decoded, err = Decode(mustEncode(t, Command{Kind: KindPing}))
	require.NoError(t, err)
	require.Equal(t, Command{Kind: KindPing}, decoded)

	_, err = Decode([]byte{0xff, 0xff})
	require.ErrorIs(t, err, ErrBadCommand)
	_, err = Decode(nil)
	require.ErrorIs(t, err, ErrBadCommand, "kind is required")
}

func mustEncode(t *testing.T, cmd Command) []byte {
	data, err := Encode(cmd)
	require.NoError(t, err)
	return data
}

func TestPayloadTags(t *testing.T) {
	cases := map[Kind]messages.Tag{
		KindPing:           messages.TagUSB,
		KindStatus:         messages.TagUSB,
		KindFirmwareUpdate: messages.TagFirmwareUpdate,
		KindSetRGB:         messages.TagRGB,
		KindSetBacklight:   messages.TagRGB,
		KindKeymap:         messages.TagKeys,
	}
	for kind, tag := range cases {
		payload, err := Payload(Command{Kind: kind, Value: 7})
		require.NoError(t, err)
		require.Equal(t, tag, payload.Tag, kind.String())
		cmd, err := FromPayload(payload)
		require.NoError(t, err)
		require.Equal(t, kind, cmd.Kind)
		require.True(t, len(payload.Data) < 64, "fits in a frame")
	}
}

func TestParseKind(t *testing.T) {
	for n := range kindNames {
		kind, err := ParseKind(Kind(n).String())
		require.NoError(t, err)
		require.Equal(t, Kind(n), kind)
	}
	_, err := ParseKind("reboot")
	require.Error(t, err)
}

func TestChanSource(t *testing.T) {
	src := NewChanSource(1)
	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, src.Send(ctx, Command{Kind: KindKeymap}))
	cmd, err := src.Receive(ctx)
	require.NoError(t, err)
	require.Equal(t, KindKeymap, cmd.Kind)

	cancel()
	_, err = src.Receive(ctx)
	require.Equal(t, context.Canceled, err)

	close(src)
	_, err = src.Receive(context.Background())
	require.Equal(t, ErrSourceClosed, err)
}

func TestServer(t *testing.T) {
	s := NewServer("")
	hs := httptest.NewServer(s)
	defer hs.Close()

	c, err := Dial("ws://" + strings.TrimPrefix(hs.URL, "http://") + "/")
	require.NoError(t, err)
	defer c.Close()

	reply, err := c.Send(Command{Kind: KindFirmwareUpdate})
	require.NoError(t, err)
	require.Equal(t, KindStatus, reply.Kind)
	require.Equal(t, ReplyAccepted, reply.Value)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	cmd, err := s.Receive(ctx)
	require.NoError(t, err)
	require.Equal(t, KindFirmwareUpdate, cmd.Kind)

	for n := 0; n < DefaultQueueSize; n++ {
		reply, err = c.Send(Command{Kind: KindPing})
		require.NoError(t, err)
		require.Equal(t, ReplyAccepted, reply.Value)
	}
	reply, err = c.Send(Command{Kind: KindPing})
	require.NoError(t, err)
	require.Equal(t, ReplyBusy, reply.Value)
}
