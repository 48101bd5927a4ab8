package handlers

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/monocle-dev/crons/internal/models"
	"github.com/monocle-dev/crons/internal/types"
	"github.com/monocle-dev/crons/internal/utils"
	"go.uber.org/zap"
)

var (
	projectClients   = make(map[uint]map[*websocket.Conn]*sync.Mutex)
	projectClientsMu sync.RWMutex
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512
	eventQueueSize = 256
)

type projectEvent struct {
	projectID uint
	message   interface{}
}

var (
	events   = make(chan projectEvent, eventQueueSize)
	startHub sync.Once
)

type CheckInEvent struct {
	Type      string          `json:"type"`
	ProjectID uint            `json:"project_id"`
	MonitorID string          `json:"monitor_id"`
	CheckIn   CheckInResponse `json:"checkin"`
}

// BroadcastCheckIn tells every dashboard open on the monitor's project that a
// check-in arrived. It only queues the event and never waits on a client.
func BroadcastCheckIn(monitor models.Monitor, checkin models.MonitorCheckIn) {
	publish(monitor.ProjectID, CheckInEvent{
		Type:      "checkin",
		ProjectID: monitor.ProjectID,
		MonitorID: monitor.GUID.String(),
		CheckIn:   NewCheckInResponse(checkin),
	})
}

// publish hands message to the hub goroutine. When the queue is full the
// event is dropped and false is returned.
func publish(projectID uint, message interface{}) bool {
	startHub.Do(func() {
		go func() {
			for event := range events {
				broadcast(event.projectID, event.message)
			}
		}()
	})

	select {
	case events <- projectEvent{projectID: projectID, message: message}:
		return true
	default:
		zap.L().Warn("Dashboard event queue full, dropping event", zap.Uint("project_id", projectID))
		return false
	}
}

func broadcast(projectID uint, message interface{}) {
	projectClientsMu.RLock()
	clients, exists := projectClients[projectID]
	if !exists || len(clients) == 0 {
		projectClientsMu.RUnlock()
		return
	}

	// Copy so the lock is not held while writing.
	clientsCopy := make(map[*websocket.Conn]*sync.Mutex, len(clients))
	for conn, mu := range clients {
		clientsCopy[conn] = mu
	}
	projectClientsMu.RUnlock()

	for conn, mu := range clientsCopy {
		mu.Lock()
		err := conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err == nil {
			err = conn.WriteJSON(message)
		}
		mu.Unlock()

		if err != nil {
			zap.L().Warn("Failed to broadcast to client", zap.Uint("project_id", projectID), zap.Error(err))
			unregister(projectID, conn)
			conn.Close()
		}
	}
}

func register(projectID uint, conn *websocket.Conn) {
	projectClientsMu.Lock()
	defer projectClientsMu.Unlock()

	if projectClients[projectID] == nil {
		projectClients[projectID] = make(map[*websocket.Conn]*sync.Mutex)
	}
	projectClients[projectID][conn] = &sync.Mutex{}
}

func unregister(projectID uint, conn *websocket.Conn) {
	projectClientsMu.Lock()
	defer projectClientsMu.Unlock()

	if clients, exists := projectClients[projectID]; exists {
		delete(clients, conn)
		if len(clients) == 0 {
			delete(projectClients, projectID)
		}
	}
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		for _, allowed := range types.AllowedOrigins {
			if origin == allowed {
				return true
			}
		}
		return false
	},
}

func WebSocket(c *gin.Context) {
	projectIDParam, err := utils.GetProjectID(c)

	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	userID, err := utils.GetCurrentUserID(c)

	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "User not authenticated"})
		return
	}

	project, err := findProject(userID, projectIDParam)

	if err != nil {
		respondLookupError(c, err, "Project")
		return
	}

	projectID := project.ID
	log := zap.L().With(zap.Uint("project_id", projectID))

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Warn("WebSocket upgrade failed", zap.Error(err))
		return
	}

	conn.SetReadLimit(maxMessageSize)
	if err := conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		log.Warn("Failed to set initial read deadline", zap.Error(err))
		conn.Close()
		return
	}
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	defer func() {
		unregister(projectID, conn)
		conn.Close()
		log.Debug("WebSocket connection closed")
	}()

	if err := conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		log.Warn("Failed to set write deadline for welcome message", zap.Error(err))
		return
	}

	err = conn.WriteJSON(gin.H{
		"type":       "connected",
		"message":    "WebSocket connection established",
		"project_id": projectID,
	})

	if err != nil {
		log.Warn("Failed to send welcome message", zap.Error(err))
		return
	}

	register(projectID, conn)

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	done := make(chan struct{})
	defer close(done)

	go func() {
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
					log.Debug("Ping failed", zap.Error(err))
					return
				}
			}
		}
	}()

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Warn("WebSocket error", zap.Error(err))
			}
			break
		}
	}
}
