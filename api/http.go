package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	mid "chatparty/middleware"
	midsec "chatparty/middleware/security"
	"chatparty/service/chat"
	"chatparty/service/gateway"
	"chatparty/tools/errs"
)

// HTTP surface: group/DM lifecycle and the history read path. Message
// mutations ride the websocket; these routes cover everything a client
// needs before it has a live connection.

type API struct {
	gw   *gateway.Gateway
	ws   *chat.WSServer
	auth *midsec.Options
}

func New(gw *gateway.Gateway, ws *chat.WSServer, auth *midsec.Options) *API {
	return &API{gw: gw, ws: ws, auth: auth}
}

func (a *API) Register(r *gin.Engine) {
	authOpt := mid.RouteOpt{IsAuth: true, Auth: a.auth}

	r.GET("/api/health", a.health)
	r.GET("/ws", a.ws.HandleWS)

	mid.POST(r, "/api/groups", a.createGroup, authOpt)
	mid.POST(r, "/api/groups/:id/members", a.addMember, authOpt)
	mid.POST(r, "/api/groups/:id/leave", a.leaveGroup, authOpt)
	mid.POST(r, "/api/dm", a.openDM, authOpt)
	mid.GET(r, "/api/conversations", a.listConversations, authOpt)
	mid.GET(r, "/api/messages/:conversationId", a.history, authOpt)
	mid.DELETE(r, "/api/chats/:id", a.deleteChat, authOpt)
}

func (a *API) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "OK",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

type createGroupReq struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

func (a *API) createGroup(c *gin.Context) {
	userID, _ := midsec.Identity(c)
	var req createGroupReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeErr(c, errs.ErrValidation.WrapMsg("bad request body"))
		return
	}
	conv, err := a.gw.CreateGroup(c.Request.Context(), req.Name, req.Description, userID)
	if err != nil {
		writeErr(c, err)
		return
	}
	c.JSON(http.StatusCreated, conv)
}

type addMemberReq struct {
	UserID string `json:"userId"`
}

func (a *API) addMember(c *gin.Context) {
	var req addMemberReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeErr(c, errs.ErrValidation.WrapMsg("bad request body"))
		return
	}
	if err := a.gw.AddMember(c.Request.Context(), c.Param("id"), req.UserID); err != nil {
		writeErr(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (a *API) leaveGroup(c *gin.Context) {
	userID, displayName := midsec.Identity(c)
	// no live session on the HTTP path; the room subscription, if any,
	// dies with the websocket
	if err := a.gw.LeaveGroup(c.Request.Context(), c.Param("id"), userID, displayName, nil); err != nil {
		writeErr(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

type openDMReq struct {
	UserID string `json:"userId"`
}

func (a *API) openDM(c *gin.Context) {
	userID, _ := midsec.Identity(c)
	var req openDMReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeErr(c, errs.ErrValidation.WrapMsg("bad request body"))
		return
	}
	conv, err := a.gw.OpenDirectMessage(c.Request.Context(), userID, req.UserID)
	if err != nil {
		writeErr(c, err)
		return
	}
	c.JSON(http.StatusOK, conv)
}

func (a *API) listConversations(c *gin.Context) {
	userID, _ := midsec.Identity(c)
	convs, err := a.gw.ListConversations(c.Request.Context(), userID)
	if err != nil {
		writeErr(c, err)
		return
	}
	c.JSON(http.StatusOK, convs)
}

func (a *API) history(c *gin.Context) {
	userID, _ := midsec.Identity(c)
	msgs, err := a.gw.History(c.Request.Context(), c.Param("conversationId"), userID)
	if err != nil {
		writeErr(c, err)
		return
	}
	c.JSON(http.StatusOK, msgs)
}

func (a *API) deleteChat(c *gin.Context) {
	userID, _ := midsec.Identity(c)
	if err := a.gw.DeleteChat(c.Request.Context(), c.Param("id"), userID); err != nil {
		writeErr(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// writeErr maps the error taxonomy onto HTTP statuses while keeping the
// code/msg/detail body clients disambiguate on.
func writeErr(c *gin.Context, err error) {
	ce, ok := errs.Unwrap(err).(*errs.CodeError)
	if !ok {
		c.JSON(http.StatusInternalServerError, errs.ErrServerInternal)
		return
	}
	status := http.StatusInternalServerError
	switch ce.Code {
	case errs.ValidationErrorCode:
		status = http.StatusBadRequest
	case errs.ForbiddenErrorCode, errs.NotMemberErrorCode:
		status = http.StatusForbidden
	case errs.NotFoundErrorCode:
		status = http.StatusNotFound
	case errs.ConflictErrorCode:
		status = http.StatusConflict
	case errs.TokenExpiredErrorCode:
		status = http.StatusUnauthorized
	}
	c.JSON(status, ce)
}
