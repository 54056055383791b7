package api

import (
	"github.com/gin-gonic/gin"

	"progitek/server/internal/services"
)

// ClientController exposes the client directory.
type ClientController struct {
	clients *services.ClientService
}

// NewClientController creates a ClientController.
func NewClientController(clients *services.ClientService) *ClientController {
	return &ClientController{clients: clients}
}

// GetClients lists clients.
// GET /api/v1/clients?search=&active=1&limit=&offset=
func (cc *ClientController) GetClients(c *gin.Context) {
	limit, offset := queryInt(c, "limit"), queryInt(c, "offset")
	clients, total, err := cc.clients.List(c.Request.Context(), c.Query("search"), queryBool(c, "active"), limit, offset)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, Page{Items: clients, Total: total, Limit: limit, Offset: offset})
}

// GetClient returns one client.
// GET /api/v1/clients/:id
func (cc *ClientController) GetClient(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	client, err := cc.clients.Get(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, client)
}

// CreateClient stores a client.
// POST /api/v1/clients
func (cc *ClientController) CreateClient(c *gin.Context) {
	var req services.ClientInput
	if !bindJSON(c, &req) {
		return
	}
	client, err := cc.clients.Create(c.Request.Context(), actorFrom(c), req)
	if err != nil {
		respondError(c, err)
		return
	}
	respondCreated(c, client)
}

// UpdateClient replaces a client.
// PUT /api/v1/clients/:id
func (cc *ClientController) UpdateClient(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var req services.ClientInput
	if !bindJSON(c, &req) {
		return
	}
	client, err := cc.clients.Update(c.Request.Context(), actorFrom(c), id, req)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, client)
}

// DeleteClient removes a client without history.
// DELETE /api/v1/clients/:id
func (cc *ClientController) DeleteClient(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	if err := cc.clients.Delete(c.Request.Context(), actorFrom(c), id); err != nil {
		respondError(c, err)
		return
	}
	respondMessage(c, "Client supprimé")
}
