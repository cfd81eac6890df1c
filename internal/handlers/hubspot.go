package handlers

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/davitran/hubsync/internal/hubspot"
	"github.com/davitran/hubsync/pkg/errors"
	"github.com/davitran/hubsync/pkg/response"
)

const defaultRecentCount = 20

// HubSpotHandler proxies read-only HubSpot reporting endpoints. Payloads are
// returned to the client unmodified.
type HubSpotHandler struct {
	client  *hubspot.Client
	actions map[string]func(*gin.Context) (json.RawMessage, error)
}

// NewHubSpotHandler constructs the passthrough handler with its dispatch table.
func NewHubSpotHandler(client *hubspot.Client) (*HubSpotHandler, error) {
	if client == nil {
		return nil, stderrors.New("hubspot handler: client is required")
	}

	h := &HubSpotHandler{client: client}
	h.actions = map[string]func(*gin.Context) (json.RawMessage, error){
		"recently_updated": func(c *gin.Context) (json.RawMessage, error) {
			return h.client.RecentlyUpdated(requestCtx(c), parseIntQuery(c, "count", defaultRecentCount))
		},
		"recently_created": func(c *gin.Context) (json.RawMessage, error) {
			return h.client.RecentlyCreated(requestCtx(c), parseIntQuery(c, "count", defaultRecentCount))
		},
		"lifecycle_metrics": func(c *gin.Context) (json.RawMessage, error) {
			return h.client.LifecycleLists(requestCtx(c))
		},
		"contact_statistics": func(c *gin.Context) (json.RawMessage, error) {
			return h.client.Statistics(requestCtx(c))
		},
		"search": func(c *gin.Context) (json.RawMessage, error) {
			return h.client.Search(requestCtx(c), c.Query("q"))
		},
	}
	return h, nil
}

// Dispatch routes GET /hubspot/:action/.
func (h *HubSpotHandler) Dispatch(c *gin.Context) {
	action := strings.Trim(c.Param("action"), "/")

	fetch, ok := h.actions[action]
	if !ok {
		response.Error(c, errors.ErrUnsupportedAction)
		return
	}

	payload, err := fetch(c)
	if err != nil {
		response.Error(c, contactError(err))
		return
	}
	response.Raw(c, http.StatusOK, payload)
}

func requestCtx(c *gin.Context) context.Context {
	return c.Request.Context()
}
