package toolapi

import (
	"net/http"

	goRemote "github.com/MrEthical07/goRemote"
)

type sshConnectRequest struct {
	Host       string `json:"host"`
	Port       int    `json:"port"`
	Username   string `json:"username"`
	Password   string `json:"password"`
	PrivateKey string `json:"privateKey"`
}

type sshConnectResponse struct {
	SessionID string `json:"sessionId"`
}

type sshExecRequest struct {
	SessionID string `json:"sessionId"`
	Command   string `json:"command"`
	Timeout   *int64 `json:"timeout"`
}

type sessionRequest struct {
	SessionID string `json:"sessionId"`
}

type sftpListRequest struct {
	SessionID string `json:"sessionId"`
	Path      string `json:"path"`
}

type sftpListResponse struct {
	Files []goRemote.FileEntry `json:"files"`
}

type sftpDownloadRequest struct {
	SessionID  string `json:"sessionId"`
	RemotePath string `json:"remotePath"`
}

type sftpUploadRequest struct {
	SessionID  string `json:"sessionId"`
	RemotePath string `json:"remotePath"`
	Data       string `json:"data"`
}

func (a *api) sshConnect(w http.ResponseWriter, r *http.Request) {
	var req sshConnectRequest
	if err := a.decode(w, r, &req); err != nil {
		a.writeError(w, r, err)
		return
	}

	id, err := a.engine.SSHConnect(r.Context(), goRemote.SSHParams{
		Host:       req.Host,
		Port:       req.Port,
		Username:   req.Username,
		Password:   req.Password,
		PrivateKey: req.PrivateKey,
	})
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sshConnectResponse{SessionID: id})
}

func (a *api) sshExec(w http.ResponseWriter, r *http.Request) {
	var req sshExecRequest
	if err := a.decode(w, r, &req); err != nil {
		a.writeError(w, r, err)
		return
	}
	timeout, err := millis("timeout", req.Timeout)
	if err != nil {
		a.writeError(w, r, err)
		return
	}

	res, err := a.engine.SSHExec(r.Context(), req.SessionID, req.Command, timeout)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (a *api) sshDisconnect(w http.ResponseWriter, r *http.Request) {
	var req sessionRequest
	if err := a.decode(w, r, &req); err != nil {
		a.writeError(w, r, err)
		return
	}
	if err := a.engine.SSHDisconnect(r.Context(), req.SessionID); err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, successResponse{Success: true})
}

func (a *api) sftpList(w http.ResponseWriter, r *http.Request) {
	var req sftpListRequest
	if err := a.decode(w, r, &req); err != nil {
		a.writeError(w, r, err)
		return
	}

	files, err := a.engine.SFTPList(r.Context(), req.SessionID, req.Path)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	if files == nil {
		files = []goRemote.FileEntry{}
	}
	writeJSON(w, http.StatusOK, sftpListResponse{Files: files})
}

func (a *api) sftpDownload(w http.ResponseWriter, r *http.Request) {
	var req sftpDownloadRequest
	if err := a.decode(w, r, &req); err != nil {
		a.writeError(w, r, err)
		return
	}

	data, err := a.engine.SFTPDownload(r.Context(), req.SessionID, req.RemotePath)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, encodeBase64(data))
}

func (a *api) sftpUpload(w http.ResponseWriter, r *http.Request) {
	var req sftpUploadRequest
	if err := a.decode(w, r, &req); err != nil {
		a.writeError(w, r, err)
		return
	}
	data, err := decodeBase64("data", req.Data)
	if err != nil {
		a.writeError(w, r, err)
		return
	}

	if err := a.engine.SFTPUpload(r.Context(), req.SessionID, req.RemotePath, data); err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, successResponse{Success: true})
}
