package handlers

import (
	"encoding/json"
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"condo-chat/internal/logger"
	"condo-chat/internal/mocks"
	"condo-chat/internal/telemetry"
)

type fixedRooms map[uuid.UUID]int

func (r fixedRooms) RoomSize(conversationID uuid.UUID) int { return r[conversationID] }

func TestDebugRoutesDisabled(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	RegisterDebugRoutes(r, nil, fixedRooms{}, false)

	rec := doJSON(r, http.MethodGet, "/debug/audit-test", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDebugRoutes(t *testing.T) {
	gin.SetMode(gin.TestMode)
	publisher := new(mocks.PublisherMock)
	publisher.On("Publish", mock.Anything, "audit.chat", mock.Anything).Return(nil).Once()
	audit := telemetry.NewAuditEmitter(publisher, "audit.chat", "condo-chat", "test", logger.Nop())
	convID := uuid.New()

	r := gin.New()
	RegisterDebugRoutes(r, audit, fixedRooms{convID: 2}, true)

	rec := doJSON(r, http.MethodGet, "/debug/audit-test", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, publisher.Published("audit.chat"), 1)

	rec = doJSON(r, http.MethodGet, "/debug/conversations/"+convID.String()+"/live", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Connections int `json:"connections"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, 2, body.Connections)
}
