package http

import (
	"net/http"

	"telemeet/internal/core/domain"
	"telemeet/internal/core/ports"
	"telemeet/internal/infrastructure/directory"

	"github.com/gin-gonic/gin"
)

// MeetingHandler exposes meeting provisioning and inspection. Provisioning
// stands in for the external scheduling system pushing metadata into the
// directory.
type MeetingHandler struct {
	registry  ports.SessionRegistry
	directory *directory.MemoryDirectory
}

func NewMeetingHandler(registry ports.SessionRegistry, dir *directory.MemoryDirectory) *MeetingHandler {
	return &MeetingHandler{
		registry:  registry,
		directory: dir,
	}
}

func (h *MeetingHandler) SetupRoutes(api *gin.RouterGroup) {
	api.POST("/meetings", h.CreateMeeting)
	api.GET("/meetings", h.ListMeetings)
	api.GET("/meetings/:id", h.GetMeeting)
}

func (h *MeetingHandler) CreateMeeting(c *gin.Context) {
	var req struct {
		ID              string `json:"id" binding:"required,min=1,max=100"`
		HostID          string `json:"host_id" binding:"required"`
		MaxParticipants int    `json:"max_participants" binding:"min=0,max=100"`
		WaitingRoom     bool   `json:"waiting_room"`
		Features        struct {
			ChatAllowed        bool   `json:"chat_allowed"`
			ScreenShareAllowed bool   `json:"screen_share_allowed"`
			RecordingAllowed   bool   `json:"recording_allowed"`
			TranslationAllowed bool   `json:"translation_allowed"`
			DefaultLanguage    string `json:"default_language"`
		} `json:"features"`
	}

	if err := c.BindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	info := domain.MeetingInfo{
		ID:     domain.MeetingID(req.ID),
		HostID: domain.UserID(req.HostID),
		Limits: domain.MeetingLimits{MaxParticipants: req.MaxParticipants},
		Features: domain.FeatureFlags{
			ChatAllowed:        req.Features.ChatAllowed,
			ScreenShareAllowed: req.Features.ScreenShareAllowed,
			RecordingAllowed:   req.Features.RecordingAllowed,
			TranslationAllowed: req.Features.TranslationAllowed,
			DefaultLanguage:    req.Features.DefaultLanguage,
		},
		WaitingRoom: req.WaitingRoom,
	}
	h.directory.Register(info)

	c.JSON(http.StatusCreated, gin.H{"meeting": info})
}

func (h *MeetingHandler) ListMeetings(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"meetings": h.directory.List()})
}

// GetMeeting reports a meeting's metadata plus whether it is currently live.
func (h *MeetingHandler) GetMeeting(c *gin.Context) {
	id := domain.MeetingID(c.Param("id"))

	if info, active := h.registry.Get(id); active {
		c.JSON(http.StatusOK, gin.H{"meeting": info, "active": true})
		return
	}

	info, err := h.directory.ResolveMeeting(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "meeting not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"meeting": info, "active": false})
}

// HealthHandler reports liveness and the current meeting count.
func HealthHandler(registry ports.SessionRegistry) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":          "healthy",
			"active_meetings": registry.ActiveMeetings(),
		})
	}
}
