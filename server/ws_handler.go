package server

import (
	"net/http"

	"soundbridge/core/auth"
	"soundbridge/core/notify"
	"soundbridge/logger"

	"github.com/gorilla/websocket"
)

var wsUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // CORS 已在中间件层处理
	},
}

// NotifyWebSocketHandler 升级连接并挂入通知 Hub
// 浏览器的 WebSocket API 无法设置 Authorization 头，token 通过查询参数传递
func (h *APIHandler) NotifyWebSocketHandler(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		http.Error(w, "Missing token", http.StatusUnauthorized)
		return
	}

	claims, err := auth.ParseToken(token)
	if err != nil {
		http.Error(w, "Invalid token", http.StatusUnauthorized)
		return
	}

	conn, err := wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Error("WebSocket升级失败", logger.ErrorField(err))
		return
	}

	client := &notify.Client{
		Hub:    h.hub,
		Conn:   conn,
		Send:   make(chan []byte, 16),
		UserID: claims.UserID,
	}
	h.hub.Register(client)

	go client.WritePump()
	go client.ReadPump()
}
