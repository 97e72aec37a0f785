package telemetry

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"trade-governor-go/internal/truth"
)

func TestWSFeed_ReceivesFrames(t *testing.T) {
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		_ = conn.WriteMessage(websocket.TextMessage,
			[]byte(`{"reality_gap":0.2,"perf_p99_ms":120,"ts":1700000000000}`))
		// 畸形帧必须被跳过而不是断流
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{not json`))
		_ = conn.WriteMessage(websocket.TextMessage,
			[]byte(`{"reality_gap":0.3,"ts":1700000001000}`))
		time.Sleep(200 * time.Millisecond)
	}))
	defer srv.Close()

	feed := NewWSFeed(strings.Replace(srv.URL, "http", "ws", 1), nil)
	feed.Start()
	defer feed.Stop()

	deadline := time.Now().Add(2 * time.Second)
	for {
		if s, ok := feed.Latest(); ok && s.TsMs == 1_700_000_001_000 {
			if s.RealityGap == nil || *s.RealityGap != 0.3 {
				t.Errorf("latest frame wrong: %+v", s)
			}
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("timed out waiting for telemetry frames")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestWSFeed_NoDataBeforeFirstFrame(t *testing.T) {
	feed := NewWSFeed("ws://127.0.0.1:1/never", nil)
	if _, ok := feed.Latest(); ok {
		t.Error("feed must report no data before the first frame")
	}
}

func TestStaticSource(t *testing.T) {
	var src StaticSource
	if _, ok := src.Latest(); ok {
		t.Error("empty source must report no data")
	}
	src.Set(Sample{SystemConfidence: truth.Float(0.9)})
	s, ok := src.Latest()
	if !ok || s.SystemConfidence == nil || *s.SystemConfidence != 0.9 {
		t.Errorf("sample not stored: %+v ok=%v", s, ok)
	}
}
