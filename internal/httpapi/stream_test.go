package httpapi

import (
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
)

func (a *testAPI) dialStream(t *testing.T, groupID, token string) (*websocket.Conn, *http.Response, error) {
	t.Helper()
	url := "ws" + strings.TrimPrefix(a.srv.URL, "http") + "/v1/groups/" + groupID + "/messages/stream"
	header := http.Header{}
	header.Set("Authorization", "Bearer "+token)
	return websocket.DefaultDialer.Dial(url, header)
}

func readFrame(t *testing.T, conn *websocket.Conn) streamFrame {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	var frame streamFrame
	require.NoError(t, conn.ReadJSON(&frame))
	return frame
}

func TestMessageStream(t *testing.T) {
	t.Parallel()
	f := newGroupFixture(t)
	api, msgPath := f.api, "/v1/groups/"+f.group.ID+"/messages"

	conn, resp, err := api.dialStream(t, f.group.ID, f.bob.token)
	require.NoError(t, err)
	defer resp.Body.Close()
	defer conn.Close()

	first := readFrame(t, conn)
	require.Equal(t, f.group.ID, first.GroupID)
	require.Empty(t, first.Messages)

	status, _ := api.do(t, http.MethodPost, msgPath, f.ann.token, map[string]string{"text": "dinner at 7"})
	require.Equal(t, http.StatusCreated, status)

	frame := readFrame(t, conn)
	for len(frame.Messages) == 0 {
		frame = readFrame(t, conn)
	}
	require.Len(t, frame.Messages, 1)
	require.Equal(t, "dinner at 7", frame.Messages[0].Text)
	require.Equal(t, "Ann", frame.Messages[0].SenderName)
}

func TestMessageStream_Rejects(t *testing.T) {
	t.Parallel()
	f := newGroupFixture(t)

	t.Run("outsider", func(t *testing.T) {
		_, resp, err := f.api.dialStream(t, f.group.ID, f.cid.token)
		require.ErrorIs(t, err, websocket.ErrBadHandshake)
		defer resp.Body.Close()
		require.Equal(t, http.StatusForbidden, resp.StatusCode)
	})

	t.Run("anonymous", func(t *testing.T) {
		_, resp, err := f.api.dialStream(t, f.group.ID, "")
		require.ErrorIs(t, err, websocket.ErrBadHandshake)
		defer resp.Body.Close()
		require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	})
}
