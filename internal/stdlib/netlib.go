package stdlib

import (
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Xarvie/sptscript/internal/value"
	"github.com/Xarvie/sptscript/internal/vm"
)

var httpClient = &http.Client{Timeout: 15 * time.Second}

func nativeHTTPGet(ctx value.NativeContext, args []value.Value) (value.Value, error) {
	url, err := wantString("net.httpGet", args, 0)
	if err != nil {
		return value.Nil(), err
	}
	resp, err := httpClient.Get(url)
	if err != nil {
		return value.Nil(), err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return value.Nil(), err
	}
	return ctx.NewString(string(body)), nil
}

// wsManager tracks open connections by a script-chosen handle name, the
// same id-keyed pattern dbManager uses for SQL connections.
type wsManager struct {
	mu    sync.Mutex
	conns map[string]*websocket.Conn
}

var wsMgr = &wsManager{conns: make(map[string]*websocket.Conn)}

// registerNet installs the `net` module table (§11): wsConnect/wsSend/wsRecv
// back onto gorilla/websocket, httpGet onto net/http.
func registerNet(v *vm.VM) {
	t := newModuleTable(v, "net")
	t.fn("wsConnect", 2, false, nativeWSConnect)
	t.fn("wsSend", 2, false, nativeWSSend)
	t.fn("wsRecv", 1, false, nativeWSRecv)
	t.fn("wsClose", 1, false, nativeWSClose)
	t.fn("httpGet", 1, false, nativeHTTPGet)
}

func nativeWSConnect(ctx value.NativeContext, args []value.Value) (value.Value, error) {
	id, err := wantString("net.wsConnect", args, 0)
	if err != nil {
		return value.Nil(), err
	}
	url, err := wantString("net.wsConnect", args, 1)
	if err != nil {
		return value.Nil(), err
	}
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.Dial(url, nil)
	if err != nil {
		return value.Nil(), err
	}
	wsMgr.mu.Lock()
	if old, ok := wsMgr.conns[id]; ok {
		old.Close()
	}
	wsMgr.conns[id] = conn
	wsMgr.mu.Unlock()
	return value.Bool(true), nil
}

func nativeWSSend(ctx value.NativeContext, args []value.Value) (value.Value, error) {
	id, err := wantString("net.wsSend", args, 0)
	if err != nil {
		return value.Nil(), err
	}
	message, err := wantString("net.wsSend", args, 1)
	if err != nil {
		return value.Nil(), err
	}
	conn, ok := getWS(id)
	if !ok {
		return value.Nil(), typeErr("net.wsSend", "no open connection %q", id)
	}
	if err := conn.WriteMessage(websocket.TextMessage, []byte(message)); err != nil {
		return value.Nil(), err
	}
	return value.Bool(true), nil
}

func nativeWSRecv(ctx value.NativeContext, args []value.Value) (value.Value, error) {
	id, err := wantString("net.wsRecv", args, 0)
	if err != nil {
		return value.Nil(), err
	}
	conn, ok := getWS(id)
	if !ok {
		return value.Nil(), typeErr("net.wsRecv", "no open connection %q", id)
	}
	_, data, err := conn.ReadMessage()
	if err != nil {
		return value.Nil(), err
	}
	return ctx.NewString(string(data)), nil
}

func nativeWSClose(ctx value.NativeContext, args []value.Value) (value.Value, error) {
	id, err := wantString("net.wsClose", args, 0)
	if err != nil {
		return value.Nil(), err
	}
	wsMgr.mu.Lock()
	defer wsMgr.mu.Unlock()
	conn, ok := wsMgr.conns[id]
	if !ok {
		return value.Bool(false), nil
	}
	delete(wsMgr.conns, id)
	return value.Bool(conn.Close() == nil), nil
}

func getWS(id string) (*websocket.Conn, bool) {
	wsMgr.mu.Lock()
	defer wsMgr.mu.Unlock()
	conn, ok := wsMgr.conns[id]
	return conn, ok
}
