// SPDX-License-Identifier: MIT

package adapters

import (
	"context"
	"io"
	"net"
	"strings"
	"syscall"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
	"github.com/gookit/goutil/errorx"

	"log"
)

// NewWebSocketAdapter wraps an upgraded connection. Writes are funneled
// through the out channel so that a single goroutine (Write) touches the
// socket, the returned context is done once the adapter is closed.
func NewWebSocketAdapter(ctx context.Context, conn net.Conn, readTimeout, writeTimeout time.Duration) (WSWithWriter, context.Context) {
	wt := &WebsocketAdapter{
		conn:         conn,
		closeChannel: make(chan struct{}, 1),
		out:          make(chan wsWrite),
		readTimeout:  readTimeout,
		writeTimeout: writeTimeout,
	}

	return wt, NewCustomCancelContext(ctx, wt.closeChannel)
}

func (w *WebsocketAdapter) WriteMessage(messageType int, data []byte) error {
	if w.Closed() {
		return nil
	}
	w.wrErrMx.Lock()
	if isConnClosedErr(w.wrErr) {
		w.wrErrMx.Unlock()

		return w.Close()
	}
	w.wrErrMx.Unlock()
	select {
	case <-w.closeChannel:
		return nil
	case w.out <- wsWrite{data: data, opCode: messageType}:
		return nil
	}
}

func (w *WebsocketAdapter) writeMessageToStream(write wsWrite) error {
	if w.writeTimeout > 0 {
		_ = w.conn.SetWriteDeadline(time.Now().Add(w.writeTimeout)) //nolint:errcheck // .
	}
	if err := wsutil.WriteServerMessage(w.conn, ws.OpCode(write.opCode), write.data); err != nil {
		w.wrErrMx.Lock()
		w.wrErr = err
		w.wrErrMx.Unlock()
		if isConnClosedErr(err) {
			return nil
		}

		return errorx.Withf(err, "failed to write data to websocket")
	}

	return nil
}

func (w *WebsocketAdapter) Write(ctx context.Context) {
	for {
		select {
		case <-w.closeChannel:
			return
		case msg := <-w.out:
			if ctx.Err() != nil {
				return
			}
			if err := w.writeMessageToStream(msg); err != nil {
				log.Printf("ERROR:%v", errorx.Withf(err, "failed to send message to websocket"))
			}
		}
	}
}

func (w *WebsocketAdapter) ReadMessage() (messageType int, readValue []byte, err error) {
	if w.readTimeout > 0 {
		_ = w.conn.SetReadDeadline(time.Now().Add(w.readTimeout)) //nolint:errcheck // .
	}
	readValue, opCode, err := wsutil.ReadClientData(w.conn)
	if err != nil {
		return int(opCode), readValue, errorx.Withf(err, "failed to read data from websocket")
	}

	return int(opCode), readValue, nil
}

func (w *WebsocketAdapter) Closed() bool {
	w.closeMx.Lock()
	closed := w.closed
	w.closeMx.Unlock()

	return closed
}

func (w *WebsocketAdapter) Close() error {
	w.closeMx.Lock()
	if w.closed {
		w.closeMx.Unlock()

		return nil
	}
	w.closed = true
	close(w.closeChannel)
	w.closeMx.Unlock()

	if err := w.conn.Close(); err != nil && !isConnClosedErr(err) {
		return errorx.With(err, "failed to close websocket conn")
	}

	return nil
}

func (w *WebsocketAdapter) RemoteAddr() net.Addr {
	return w.conn.RemoteAddr()
}

func isConnClosedErr(err error) bool {
	return err != nil &&
		(errors.Is(err, io.EOF) ||
			errors.Is(err, net.ErrClosed) ||
			errors.Is(err, syscall.EPIPE) ||
			errors.Is(err, syscall.ECONNRESET) ||
			strings.Contains(err.Error(), "use of closed network connection"))
}
