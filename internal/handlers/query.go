package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"chat-presence/internal/models"
)

// ChatQueries is the read side of the chat service.
type ChatQueries interface {
	History(roomID string) []models.Message
	Users() []models.Connection
	RoomIDs() []string
}

// QueryHandler serves read-only snapshots of chat state.
type QueryHandler struct {
	chat ChatQueries
}

// NewQueryHandler builds a QueryHandler.
func NewQueryHandler(chat ChatQueries) *QueryHandler {
	return &QueryHandler{chat: chat}
}

// GetRoomMessages returns the retained history of a room, oldest first.
// Unknown rooms yield an empty array.
func (h *QueryHandler) GetRoomMessages(c *gin.Context) {
	history := h.chat.History(c.Param("room"))
	if history == nil {
		history = []models.Message{}
	}
	c.JSON(http.StatusOK, history)
}

// ListUsers returns every known connection, online or offline.
func (h *QueryHandler) ListUsers(c *gin.Context) {
	users := h.chat.Users()
	if users == nil {
		users = []models.Connection{}
	}
	c.JSON(http.StatusOK, users)
}

// ListRooms returns the known room ids.
func (h *QueryHandler) ListRooms(c *gin.Context) {
	rooms := h.chat.RoomIDs()
	if rooms == nil {
		rooms = []string{}
	}
	c.JSON(http.StatusOK, rooms)
}

// Health reports that the server is up.
func Health(c *gin.Context) {
	c.String(http.StatusOK, "Chat server is running")
}
