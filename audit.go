package goRemote

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/MrEthical07/goRemote/internal"
)

const (
	auditEventSSHConnect       = "ssh_connect"
	auditEventSSHDisconnect    = "ssh_disconnect"
	auditEventSSHExec          = "ssh_exec"
	auditEventSFTPUpload       = "sftp_upload"
	auditEventSFTPDownload     = "sftp_download"
	auditEventTCPConnect       = "tcp_connect"
	auditEventTCPDisconnect    = "tcp_disconnect"
	auditEventConnectThrottled = "connect_throttled"
	auditEventDisconnectAll    = "disconnect_all"
)

// AuditErrorCode is the coarse failure class recorded in AuditEvent.Error.
// It never carries remote output or credentials.
type AuditErrorCode string

const (
	auditErrValidation     AuditErrorCode = "validation"
	auditErrSessionUnknown AuditErrorCode = "session_unknown_or_expired"
	auditErrTimeout        AuditErrorCode = "timeout"
	auditErrTransport      AuditErrorCode = "transport"
	auditErrThrottled      AuditErrorCode = "throttled"
	auditErrInternal       AuditErrorCode = "internal_error"
)

func (e *Engine) emitAudit(
	ctx context.Context,
	eventType string,
	kind Kind,
	sessionID string,
	target string,
	err error,
	metadataBuilder func() map[string]string,
) {
	if e == nil || e.audit == nil {
		return
	}

	var metadata map[string]string
	if metadataBuilder != nil {
		metadata = metadataBuilder()
	}

	event := AuditEvent{
		EventID:   uuid.NewString(),
		Timestamp: e.clock.Now().UTC(),
		EventType: eventType,
		Kind:      string(kind),
		SessionID: internal.ShortID(sessionID),
		Target:    target,
		IP:        clientIPFromContext(ctx),
		RequestID: RequestIDFromContext(ctx),
		Principal: principalFromContext(ctx),
		Success:   err == nil,
		Metadata:  metadata,
	}
	if code := auditErrorCode(err); code != "" {
		event.Error = string(code)
	}

	e.audit.Emit(ctx, event)
}

func auditErrorCode(err error) AuditErrorCode {
	if err == nil {
		return ""
	}

	switch {
	case errors.Is(err, ErrValidation):
		return auditErrValidation
	case errors.Is(err, ErrSessionUnknownOrExpired):
		return auditErrSessionUnknown
	case errors.Is(err, ErrTimeout):
		return auditErrTimeout
	case errors.Is(err, ErrTransport):
		return auditErrTransport
	case errors.Is(err, ErrConnectThrottled):
		return auditErrThrottled
	default:
		return auditErrInternal
	}
}
