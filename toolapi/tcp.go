package toolapi

import (
	"net/http"

	goRemote "github.com/MrEthical07/goRemote"
)

type tcpConnectRequest struct {
	Host    string `json:"host"`
	Port    int    `json:"port"`
	Timeout *int64 `json:"timeout"`
}

type tcpConnectResponse struct {
	SocketID string `json:"socketId"`
}

type tcpSendRequest struct {
	SocketID string `json:"socketId"`
	Data     string `json:"data"`
}

type tcpReadRequest struct {
	SocketID string `json:"socketId"`
	Timeout  *int64 `json:"timeout"`
}

type socketRequest struct {
	SocketID string `json:"socketId"`
}

func (a *api) tcpConnect(w http.ResponseWriter, r *http.Request) {
	var req tcpConnectRequest
	if err := a.decode(w, r, &req); err != nil {
		a.writeError(w, r, err)
		return
	}
	timeout, err := millis("timeout", req.Timeout)
	if err != nil {
		a.writeError(w, r, err)
		return
	}

	id, err := a.engine.TCPConnect(r.Context(), goRemote.TCPParams{
		Host:    req.Host,
		Port:    req.Port,
		Timeout: timeout,
	})
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, tcpConnectResponse{SocketID: id})
}

func (a *api) tcpSend(w http.ResponseWriter, r *http.Request) {
	var req tcpSendRequest
	if err := a.decode(w, r, &req); err != nil {
		a.writeError(w, r, err)
		return
	}
	data, err := decodeBase64("data", req.Data)
	if err != nil {
		a.writeError(w, r, err)
		return
	}

	if err := a.engine.TCPSend(r.Context(), req.SocketID, data); err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, successResponse{Success: true})
}

func (a *api) tcpRead(w http.ResponseWriter, r *http.Request) {
	var req tcpReadRequest
	if err := a.decode(w, r, &req); err != nil {
		a.writeError(w, r, err)
		return
	}
	timeout, err := millis("timeout", req.Timeout)
	if err != nil {
		a.writeError(w, r, err)
		return
	}

	data, err := a.engine.TCPRead(r.Context(), req.SocketID, timeout)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, encodeBase64(data))
}

func (a *api) tcpDisconnect(w http.ResponseWriter, r *http.Request) {
	var req socketRequest
	if err := a.decode(w, r, &req); err != nil {
		a.writeError(w, r, err)
		return
	}
	if err := a.engine.TCPDisconnect(r.Context(), req.SocketID); err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, successResponse{Success: true})
}
