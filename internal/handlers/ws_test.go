package handlers

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/monocle-dev/crons/internal/models"
	"github.com/monocle-dev/crons/internal/types"
)

func dialDashboard(t *testing.T) (client, server *websocket.Conn) {
	t.Helper()

	accepted := make(chan *websocket.Conn, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := (&websocket.Upgrader{}).Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		accepted <- conn
	}))
	t.Cleanup(srv.Close)

	client, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { client.Close() })

	select {
	case server = <-accepted:
	case <-time.After(5 * time.Second):
		t.Fatal("server side of the connection never arrived")
	}

	return client, server
}

func TestBroadcastCheckIn_BusyClientDoesNotBlockCaller(t *testing.T) {
	const projectID = 4242

	client, conn := dialDashboard(t)
	register(projectID, conn)
	t.Cleanup(func() { unregister(projectID, conn) })

	projectClientsMu.RLock()
	writeMu := projectClients[projectID][conn]
	projectClientsMu.RUnlock()

	// Hold the connection's write lock as if a write to it were stuck.
	writeMu.Lock()
	locked := true
	defer func() {
		if locked {
			writeMu.Unlock()
		}
	}()

	monitor := models.Monitor{GUID: uuid.New(), ProjectID: projectID}
	checkin := models.MonitorCheckIn{GUID: uuid.New(), Status: types.CheckInOK, DateAdded: time.Now()}

	returned := make(chan struct{})
	go func() {
		BroadcastCheckIn(monitor, checkin)
		close(returned)
	}()

	select {
	case <-returned:
	case <-time.After(time.Second):
		t.Fatal("BroadcastCheckIn waited on a busy client")
	}

	// The hub holds at most the check-in event, so the queue overflows
	// within one more than its capacity.
	dropped := false
	for i := 0; i <= eventQueueSize && !dropped; i++ {
		dropped = !publish(projectID, CheckInEvent{Type: "filler", ProjectID: projectID})
	}
	if !dropped {
		t.Fatal("full queue accepted more events")
	}

	writeMu.Unlock()
	locked = false

	if err := client.SetReadDeadline(time.Now().Add(5 * time.Second)); err != nil {
		t.Fatalf("SetReadDeadline: %v", err)
	}

	var event CheckInEvent
	if err := client.ReadJSON(&event); err != nil {
		t.Fatalf("read event: %v", err)
	}

	if event.Type != "checkin" || event.MonitorID != monitor.GUID.String() || event.CheckIn.ID != checkin.GUID.String() {
		t.Fatalf("event = %+v", event)
	}
}
