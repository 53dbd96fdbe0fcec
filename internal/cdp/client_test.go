package cdp

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/coder/websocket"
)

// scriptConn answers each written request with whatever the responder
// returns, delivered in order through Read.
type scriptConn struct {
	mu        sync.Mutex
	responder func(req Request) []string
	incoming  chan []byte
	written   []Request
	closed    bool
	closeCh   chan struct{}
}

func newScriptConn(responder func(req Request) []string) *scriptConn {
	return &scriptConn{
		responder: responder,
		incoming:  make(chan []byte, 100),
		closeCh:   make(chan struct{}),
	}
}

// reply builds a successful response for req with the given result JSON.
func reply(req Request, result string) string {
	return fmt.Sprintf(`{"id":%d,"result":%s}`, req.ID, result)
}

func (m *scriptConn) Read(ctx context.Context) (websocket.MessageType, []byte, error) {
	select {
	case msg := <-m.incoming:
		return websocket.MessageText, msg, nil
	case <-m.closeCh:
		return 0, nil, errors.New("connection closed")
	case <-ctx.Done():
		return 0, nil, ctx.Err()
	}
}

func (m *scriptConn) Write(ctx context.Context, typ websocket.MessageType, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return errors.New("connection closed")
	}

	var req Request
	if err := json.Unmarshal(data, &req); err != nil {
		return err
	}
	m.written = append(m.written, req)

	if m.responder != nil {
		for _, msg := range m.responder(req) {
			m.incoming <- []byte(msg)
		}
	}
	return nil
}

func (m *scriptConn) Close(code websocket.StatusCode, reason string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.closed {
		m.closed = true
		close(m.closeCh)
	}
	return nil
}

func (m *scriptConn) methods() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []string
	for _, req := range m.written {
		out = append(out, req.Method)
	}
	return out
}

func TestClient_SendContext_CorrelatesResponseByID(t *testing.T) {
	t.Parallel()

	conn := newScriptConn(func(req Request) []string {
		// An unrelated reply first must not satisfy the caller
		return []string{
			`{"id":9999,"result":{}}`,
			reply(req, `{"frameId":"ABC123"}`),
		}
	})
	client := NewClient(conn)
	defer client.Close()

	result, err := client.SendContext(context.Background(), "Page.navigate", map[string]string{"url": "http://localhost:3000"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(result) != `{"frameId":"ABC123"}` {
		t.Errorf("unexpected result %s", result)
	}
}

func TestClient_SendContext_ReturnsProtocolError(t *testing.T) {
	t.Parallel()

	conn := newScriptConn(func(req Request) []string {
		return []string{fmt.Sprintf(`{"id":%d,"error":{"code":-32000,"message":"Target closed"}}`, req.ID)}
	})
	client := NewClient(conn)
	defer client.Close()

	_, err := client.SendContext(context.Background(), "Page.navigate", nil)

	var cdpErr *Error
	if !errors.As(err, &cdpErr) {
		t.Fatalf("expected *Error, got %T: %v", err, err)
	}
	if cdpErr.Code != -32000 {
		t.Errorf("expected code -32000, got %d", cdpErr.Code)
	}
}

func TestClient_SendContext_Timeout(t *testing.T) {
	t.Parallel()

	client := NewClient(newScriptConn(nil))
	defer client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := client.SendContext(ctx, "Page.navigate", nil)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected context.DeadlineExceeded, got %v", err)
	}
}

func TestClient_SendContext_AfterClose(t *testing.T) {
	t.Parallel()

	client := NewClient(newScriptConn(nil))
	if err := client.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := client.Close(); err != nil {
		t.Errorf("second close returned error: %v", err)
	}

	if _, err := client.SendContext(context.Background(), "Page.enable", nil); !errors.Is(err, ErrClosed) {
		t.Errorf("expected ErrClosed, got %v", err)
	}
}

func TestClient_Err(t *testing.T) {
	t.Parallel()

	t.Run("records the read error when the peer drops", func(t *testing.T) {
		t.Parallel()
		conn := newScriptConn(nil)
		client := NewClient(conn)
		defer client.Close()

		conn.Close(websocket.StatusAbnormalClosure, "")
		<-client.done

		if err := client.Err(); err == nil || err.Error() != "connection closed" {
			t.Errorf("expected the read error, got %v", err)
		}
		if _, err := client.SendContext(context.Background(), "Page.enable", nil); !errors.Is(err, ErrClosed) {
			t.Errorf("expected ErrClosed, got %v", err)
		}
	})

	t.Run("nil after Close", func(t *testing.T) {
		t.Parallel()
		client := NewClient(newScriptConn(nil))
		if err := client.Close(); err != nil {
			t.Fatalf("close: %v", err)
		}
		if err := client.Err(); err != nil {
			t.Errorf("expected nil, got %v", err)
		}
	})
}

func TestClient_Subscribe_Unsubscribe(t *testing.T) {
	t.Parallel()

	conn := newScriptConn(func(req Request) []string {
		return []string{
			`{"method":"Page.loadEventFired","params":{}}`,
			reply(req, `{}`),
		}
	})
	client := NewClient(conn)
	defer client.Close()

	var mu sync.Mutex
	first, second := 0, 0
	unsubscribe := client.Subscribe("Page.loadEventFired", func(Event) {
		mu.Lock()
		first++
		mu.Unlock()
	})
	client.Subscribe("Page.loadEventFired", func(Event) {
		mu.Lock()
		second++
		mu.Unlock()
	})

	// Events are dispatched before the reply that follows them
	if _, err := client.SendContext(context.Background(), "Test.trigger", nil); err != nil {
		t.Fatalf("send: %v", err)
	}
	unsubscribe()
	if _, err := client.SendContext(context.Background(), "Test.trigger", nil); err != nil {
		t.Fatalf("send: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if first != 1 {
		t.Errorf("expected unsubscribed handler to run once, ran %d times", first)
	}
	if second != 2 {
		t.Errorf("expected remaining handler to run twice, ran %d times", second)
	}
}

func TestClient_WaitEventFunc_ContextDone(t *testing.T) {
	t.Parallel()

	client := NewClient(newScriptConn(nil))
	defer client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	_, err := client.WaitEventFunc(ctx, "Page.loadEventFired", nil)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected deadline error, got %v", err)
	}
}

func TestClient_Call_DecodesResult(t *testing.T) {
	t.Parallel()

	conn := newScriptConn(func(req Request) []string {
		return []string{reply(req, `{"frameId":"F1","loaderId":"L1"}`)}
	})
	client := NewClient(conn)
	defer client.Close()

	var nav NavigateResult
	if err := client.Call(context.Background(), "Page.navigate", nil, &nav); err != nil {
		t.Fatalf("call: %v", err)
	}
	if nav.FrameID != "F1" || nav.LoaderID != "L1" {
		t.Errorf("unexpected result %+v", nav)
	}
}

func TestClient_Evaluate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		result  string
		want    string
		wantErr string
	}{
		{
			name:   "string value",
			result: `{"result":{"type":"string","value":"Passport Pal - Child Passport Guide"}}`,
			want:   "Passport Pal - Child Passport Guide",
		},
		{
			name:   "undefined leaves output untouched",
			result: `{"result":{"type":"undefined"}}`,
			want:   "",
		},
		{
			name:    "exception",
			result:  `{"result":{"type":"object"},"exceptionDetails":{"text":"Uncaught","exception":{"description":"TypeError: x"}}}`,
			wantErr: "TypeError: x",
		},
	}

	for _, tt := range tests {

		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			conn := newScriptConn(func(req Request) []string {
				return []string{reply(req, tt.result)}
			})
			client := NewClient(conn)
			defer client.Close()

			var got string
			err := client.Evaluate(context.Background(), "document.title", &got)
			if tt.wantErr != "" {
				if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
					t.Fatalf("expected error containing %q, got %v", tt.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("expected %q, got %q", tt.want, got)
			}
		})
	}
}

func TestClient_Navigate_WaitsForLoadEvent(t *testing.T) {
	t.Parallel()

	conn := newScriptConn(func(req Request) []string {
		return []string{
			reply(req, `{"frameId":"F1"}`),
			`{"method":"Page.loadEventFired","params":{"timestamp":1}}`,
		}
	})
	client := NewClient(conn)
	defer client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	if err := client.Navigate(ctx, "http://localhost:3000"); err != nil {
		t.Fatalf("navigate: %v", err)
	}
	if got := conn.methods(); len(got) != 1 || got[0] != "Page.navigate" {
		t.Errorf("unexpected requests %v", got)
	}
}

func TestClient_Navigate_ErrorText(t *testing.T) {
	t.Parallel()

	conn := newScriptConn(func(req Request) []string {
		return []string{reply(req, `{"frameId":"F1","errorText":"net::ERR_CONNECTION_REFUSED"}`)}
	})
	client := NewClient(conn)
	defer client.Close()

	err := client.Navigate(context.Background(), "http://localhost:3000")
	if err == nil || !strings.Contains(err.Error(), "ERR_CONNECTION_REFUSED") {
		t.Errorf("expected connection refused error, got %v", err)
	}
}

func TestClient_CaptureScreenshot(t *testing.T) {
	t.Parallel()

	png := []byte("\x89PNG\r\n\x1a\nfake")
	encoded := base64.StdEncoding.EncodeToString(png)

	conn := newScriptConn(func(req Request) []string {
		return []string{reply(req, fmt.Sprintf(`{"data":%q}`, encoded))}
	})
	client := NewClient(conn)
	defer client.Close()

	got, err := client.CaptureScreenshot(context.Background(), false)
	if err != nil {
		t.Fatalf("capture: %v", err)
	}
	if string(got) != string(png) {
		t.Errorf("decoded bytes differ: %q", got)
	}
}

func TestClient_ConcurrentSends(t *testing.T) {
	t.Parallel()

	const numRequests = 10

	conn := newScriptConn(func(req Request) []string {
		return []string{reply(req, fmt.Sprintf(`{"n":%d}`, req.ID))}
	})
	client := NewClient(conn)
	defer client.Close()

	var wg sync.WaitGroup
	errCh := make(chan error, numRequests)

	for i := 0; i < numRequests; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := client.SendContext(context.Background(), "Test.method", nil); err != nil {
				errCh <- err
			}
		}()
	}

	wg.Wait()
	close(errCh)

	for err := range errCh {
		t.Errorf("concurrent send error: %v", err)
	}
}
