package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/xxxsen/classmate/internal/pkg/errcode"
	"github.com/xxxsen/classmate/internal/pkg/response"
	"github.com/xxxsen/classmate/internal/service"
)

type ChatHandler struct {
	chat *service.ChatService
}

func NewChatHandler(chat *service.ChatService) *ChatHandler {
	return &ChatHandler{chat: chat}
}

type chatRequest struct {
	Message      string `json:"message"`
	Context      string `json:"context"`
	EnableSearch bool   `json:"enable_search"`
}

func (h *ChatHandler) Send(c *gin.Context) {
	var req chatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, errcode.ErrInvalid, "invalid request")
		return
	}
	res, err := h.chat.Send(c.Request.Context(), service.ChatInput{
		Message:      req.Message,
		Context:      req.Context,
		EnableSearch: req.EnableSearch,
	})
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, res)
}

func (h *ChatHandler) DebugEcho(c *gin.Context) {
	var req chatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, errcode.ErrInvalid, "invalid request")
		return
	}
	response.Success(c, h.chat.DebugEcho(req.Message))
}
