package hub

import (
	"context"
	"errors"
	"fmt"
)

// preAuthTypes are accepted from connections that still need to authenticate.
var preAuthTypes = map[MessageType]bool{
	TypeAuth:       true,
	TypeHeartbeat:  true,
	TypeDisconnect: true,
}

// HandleMessage processes one inbound message from a connection and
// replies on its transport. Transports call it sequentially per connection,
// which keeps a connection's messages in arrival order.
//
// Every message refreshes the connection's activity and counts against its
// rate limit. Failures are reported to the client as error envelopes and
// returned to the caller.
//
// Parameters:
//   - ctx: Context for authentication calls
//   - connID: Receiving connection
//   - data: Raw JSON envelope
//
// Returns:
//   - error: ErrConnectionNotFound once the connection is gone (stop reading),
//     or the error reported to the client
func (h *Hub) HandleMessage(ctx context.Context, connID string, data []byte) error {
	h.mu.Lock()
	c, ok := h.conns[connID]
	if !ok {
		h.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrConnectionNotFound, connID)
	}
	now := h.now()
	c.lastActivity = now
	allowed := c.window.allow(now)
	pending := c.state != StateActive
	h.mu.Unlock()

	env, err := ParseEnvelope(data)
	if err != nil {
		h.replyError(connID, Envelope{}, err)
		return err
	}
	if !allowed {
		h.reject("rate_limit")
		err := fmt.Errorf("%w: more than %d messages per %s", ErrRateLimitExceeded, h.cfg.MaxMessagesPerMinute, h.cfg.RateWindow)
		h.replyError(connID, env, err)
		return err
	}
	if pending && !preAuthTypes[env.Type] {
		h.reject("unauthenticated")
		h.replyError(connID, env, ErrNotAuthenticated)
		return ErrNotAuthenticated
	}

	switch env.Type {
	case TypeAuth:
		id, err := h.Authenticate(ctx, connID, env.payloadString("token"))
		if err != nil {
			h.replyError(connID, env, err)
			return err
		}
		return h.reply(connID, env, map[string]any{"status": "authenticated", "role": id.Role})

	case TypeHeartbeat:
		return h.Send(connID, env.reply(TypeHeartbeat, map[string]any{"status": "alive"}))

	case TypeDisconnect:
		h.Disconnect(connID, "client request")
		return nil

	case TypeSubscribe:
		if err := h.Subscribe(connID, env.Channel); err != nil {
			h.replyError(connID, env, err)
			return err
		}
		return h.reply(connID, env, map[string]any{"status": "subscribed", "channel": env.Channel})

	case TypeUnsubscribe:
		if err := h.Unsubscribe(connID, env.Channel); err != nil {
			h.replyError(connID, env, err)
			return err
		}
		return h.reply(connID, env, map[string]any{"status": "unsubscribed", "channel": env.Channel})

	case TypeData, TypeEvent, TypeAlert, TypeCommand:
		n, err := h.Broadcast(env.Channel, env, connID, true)
		if err != nil {
			h.replyError(connID, env, err)
			return err
		}
		return h.reply(connID, env, map[string]any{"status": "broadcast", "recipients": n})
	}

	err = fmt.Errorf("%w: unsupported type %q", ErrInvalidMessage, env.Type)
	h.replyError(connID, env, err)
	return err
}

func (h *Hub) reply(connID string, req Envelope, payload any) error {
	err := h.Send(connID, req.reply(TypeResponse, payload))
	if errors.Is(err, ErrConnectionNotFound) {
		return err
	}
	if err != nil {
		h.logger.Debug("hub reply failed", "connection", connID, "error", err)
	}
	return nil
}

func (h *Hub) replyError(connID string, req Envelope, cause error) {
	env := req.reply(TypeError, map[string]any{"code": errorCode(cause), "message": cause.Error()})
	env.Priority = PriorityHigh
	if err := h.Send(connID, env); err != nil {
		h.logger.Debug("hub error reply failed", "connection", connID, "error", err)
	}
}
