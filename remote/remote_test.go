// Copyright 2026 The Zaparoo Project Contributors.
// SPDX-License-Identifier: Apache-2.0
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package remote_test

import (
	"context"
	"errors"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	ndefwriter "github.com/ZaparooProject/go-ndefwriter"
	virt "github.com/ZaparooProject/go-ndefwriter/internal/testing"
	"github.com/ZaparooProject/go-ndefwriter/remote"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

var hiMessage = []byte{0xD1, 0x01, 0x05, 0x54, 0x02, 0x65, 0x6E, 0x48, 0x69}

// serve starts a bridge handing out tag and returns its ws:// URL.
func serve(t *testing.T, provider remote.TagProvider) string {
	t.Helper()
	srv := httptest.NewServer(remote.NewHandler(provider))
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func fixedTag(tag ndefwriter.Tag) remote.TagProvider {
	return remote.TagProviderFunc(func(context.Context) (ndefwriter.Tag, error) {
		return tag, nil
	})
}

func TestWriteThroughBridge(t *testing.T) {
	t.Parallel()

	local := virt.NewVirtualTag("04A1B2C3D4E5F6")
	tag := remote.NewTag(serve(t, fixedTag(local)))

	err := ndefwriter.NewWriter().Write(context.Background(), "Hi", tag)
	require.NoError(t, err)

	assert.Equal(t, hiMessage, local.Stored())
	assert.Equal(t, "04A1B2C3D4E5F6", tag.UID())
	connects, writes, closes := local.Calls()
	assert.Equal(t, 1, connects)
	assert.Equal(t, 1, writes)
	assert.Equal(t, 1, closes)
	assert.False(t, tag.IsWritable())
}

func TestBridgeReportsReadOnly(t *testing.T) {
	t.Parallel()

	local := virt.NewVirtualTag("04AA")
	local.ReadOnly = true
	tag := remote.NewTag(serve(t, fixedTag(local)))

	err := ndefwriter.NewWriter().Write(context.Background(), "Hi", tag)
	require.ErrorIs(t, err, ndefwriter.ErrNotWritable)

	var we *ndefwriter.WriteError
	require.ErrorAs(t, err, &we)
	assert.Equal(t, "04AA", we.UID)
	assert.Empty(t, local.Stored())
	_, _, closes := local.Calls()
	assert.Equal(t, 1, closes)
}

func TestBridgeConnectFailure(t *testing.T) {
	t.Parallel()

	local := virt.NewVirtualTag("04BB")
	local.Absent = true
	tag := remote.NewTag(serve(t, fixedTag(local)))

	err := ndefwriter.NewWriter().Write(context.Background(), "Hi", tag)
	require.Error(t, err)
	assert.Equal(t, ndefwriter.KindConnection, ndefwriter.KindOf(err))
	assert.ErrorIs(t, err, remote.ErrRemote)

	connects, writes, closes := local.Calls()
	assert.Equal(t, 1, connects)
	assert.Zero(t, writes)
	assert.Equal(t, 1, closes)
}

func TestBridgeWriteFailure(t *testing.T) {
	t.Parallel()

	local := virt.NewVirtualTag("04CC")
	local.WriteErr = errors.New("tag lost")
	tag := remote.NewTag(serve(t, fixedTag(local)))

	err := ndefwriter.NewWriter().Write(context.Background(), "Hi", tag)
	require.ErrorIs(t, err, ndefwriter.ErrTransport)
	assert.Contains(t, err.Error(), "tag lost")
}

func TestBridgeNoTag(t *testing.T) {
	t.Parallel()

	provider := remote.TagProviderFunc(func(context.Context) (ndefwriter.Tag, error) {
		return nil, errors.New("field empty")
	})
	tag := remote.NewTag(serve(t, provider))

	err := tag.Connect(context.Background())
	require.ErrorIs(t, err, remote.ErrRemote)
	assert.Contains(t, err.Error(), "field empty")
	require.NoError(t, tag.Close())
}

func TestDialFailure(t *testing.T) {
	t.Parallel()

	tag := remote.NewTag("ws://127.0.0.1:1/none", remote.WithTimeout(100*time.Millisecond))
	err := ndefwriter.NewWriter().Write(context.Background(), "Hi", tag)
	require.ErrorIs(t, err, ndefwriter.ErrConnection)
	require.NoError(t, tag.Close())
}

func TestWriteBeforeConnect(t *testing.T) {
	t.Parallel()

	tag := remote.NewTag("ws://unused")
	require.ErrorIs(t, tag.WriteNDEF(context.Background(), hiMessage), remote.ErrNotConnected)
	assert.False(t, tag.IsWritable())
}

func TestContextCancelUnblocksRequest(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	local := virt.NewVirtualTag("04DD")
	local.OnWrite = func(context.Context) error {
		<-release
		return nil
	}
	tag := remote.NewTag(serve(t, fixedTag(local)))
	require.NoError(t, tag.Connect(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	err := tag.WriteNDEF(ctx, hiMessage)
	require.ErrorIs(t, err, context.DeadlineExceeded)

	close(release)
	_ = tag.Close()
}

func TestConnectWaitsLongerThanRequestTimeout(t *testing.T) {
	t.Parallel()

	local := virt.NewVirtualTag("04D1")
	provider := remote.TagProviderFunc(func(ctx context.Context) (ndefwriter.Tag, error) {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(200 * time.Millisecond):
			return local, nil
		}
	})
	tag := remote.NewTag(serve(t, provider), remote.WithTimeout(50*time.Millisecond))

	err := ndefwriter.NewWriter().Write(context.Background(), "Hi", tag)
	require.NoError(t, err)
	assert.Equal(t, hiMessage, local.Stored())
}

func TestAbandonedConnectStopsBridgeWait(t *testing.T) {
	t.Parallel()

	local := virt.NewVirtualTag("04D2")
	abandoned := make(chan struct{})
	provider := remote.TagProviderFunc(func(ctx context.Context) (ndefwriter.Tag, error) {
		<-ctx.Done()
		close(abandoned)
		return nil, ctx.Err()
	})
	tag := remote.NewTag(serve(t, provider))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	err := ndefwriter.NewWriter().Write(ctx, "Hi", tag)
	require.ErrorIs(t, err, ndefwriter.ErrConnection)
	require.ErrorIs(t, err, context.DeadlineExceeded)

	select {
	case <-abandoned:
	case <-time.After(2 * time.Second):
		t.Fatal("bridge kept waiting for a tag after the client hung up")
	}
	connects, writes, closes := local.Calls()
	assert.Zero(t, connects)
	assert.Zero(t, writes)
	assert.Zero(t, closes)
}

func TestUnknownOp(t *testing.T) {
	t.Parallel()

	url := serve(t, fixedTag(virt.NewVirtualTag("04EE")))
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	defer func() { _ = conn.Close() }()

	req, err := remote.Encode(&remote.Request{ID: "1", Op: "format"})
	require.NoError(t, err)
	require.NoError(t, conn.WriteMessage(websocket.BinaryMessage, req))

	_, msg, err := conn.ReadMessage()
	require.NoError(t, err)
	var out remote.Response
	require.NoError(t, remote.Decode(msg, &out))
	assert.Equal(t, "1", out.ID)
	assert.False(t, out.OK)
	require.ErrorIs(t, out.Err(), remote.ErrRemote)
	assert.Contains(t, out.Error, "unknown operation")
}

func TestProtocolEncodingIsDeterministic(t *testing.T) {
	t.Parallel()

	resp := &remote.Response{ID: "abc", OK: true, Writable: true, UID: "04"}
	a, err := remote.Encode(resp)
	require.NoError(t, err)
	b, err := remote.Encode(resp)
	require.NoError(t, err)
	assert.Equal(t, a, b)

	var got remote.Response
	require.NoError(t, remote.Decode(a, &got))
	assert.Equal(t, *resp, got)
	assert.NoError(t, got.Err())
}

func TestDecodeRejectsOversize(t *testing.T) {
	t.Parallel()

	var req remote.Request
	require.Error(t, remote.Decode(make([]byte, remote.MaxMessageSize+1), &req))
	require.Error(t, remote.Decode([]byte{0xFF, 0x00}, &req))
}
