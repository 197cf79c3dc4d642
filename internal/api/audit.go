package api

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"time"

	"github.com/taskvault/taskvault/internal/audit"
)

// auditQueueSize bounds the number of pending audit writes. Requests never
// block on the audit trail; entries are dropped with a warning if the
// queue is full.
const auditQueueSize = 256

// auditWriteTimeout caps how long a single audit insert may take.
const auditWriteTimeout = 5 * time.Second

// auditEvent enqueues an audit entry for asynchronous recording. The actor
// fields are filled from the authenticated identity if present, and the
// request's IP and user agent are captured.
func (s *Server) auditEvent(r *http.Request, entry *audit.Entry) {
	if identity := identityFromContext(r.Context()); identity != nil {
		if entry.ActorUserID == nil {
			id := identity.ID
			entry.ActorUserID = &id
		}
		if entry.ActorEmail == nil {
			email := identity.Email
			entry.ActorEmail = &email
		}
		if entry.ActorRole == "" {
			entry.ActorRole = identity.Role
		}
	}
	if entry.IP == nil {
		ip := clientIP(r)
		entry.IP = &ip
	}
	if entry.UserAgent == nil {
		ua := r.UserAgent()
		entry.UserAgent = &ua
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	select {
	case s.auditCh <- entry:
	default:
		s.logger.Warn("audit queue full, dropping entry", "action", entry.Action)
	}
}

// drainAuditQueue writes queued audit entries until the context is
// cancelled, then flushes whatever remains in the queue.
func (s *Server) drainAuditQueue(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			for {
				select {
				case entry := <-s.auditCh:
					s.recordAuditEntry(entry)
				default:
					return
				}
			}
		case entry := <-s.auditCh:
			s.recordAuditEntry(entry)
		}
	}
}

// recordAuditEntry performs one audit insert with its own timeout. Failures
// are logged and do not propagate; the request that produced the entry has
// already been answered.
func (s *Server) recordAuditEntry(entry *audit.Entry) {
	ctx, cancel := context.WithTimeout(context.Background(), auditWriteTimeout)
	defer cancel()

	if err := s.audit.Record(ctx, entry); err != nil {
		s.logger.Error("failed to record audit entry",
			"action", entry.Action,
			"error", err,
		)
	}
}

// auditMeta marshals a metadata map for an audit entry. A nil map becomes
// JSON null.
func auditMeta(m map[string]any) json.RawMessage {
	if m == nil {
		return nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return nil
	}
	return json.RawMessage(b)
}

// clientIP returns the remote IP without the port.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
