package api

import (
	"net/http"

	"github.com/nerrad567/gray-logic-telemetry/internal/auth"
	"github.com/nerrad567/gray-logic-telemetry/internal/hub"
)

// handleListChannels returns the channels the caller may subscribe to.
// Admins see the whole catalog.
func (s *Server) handleListChannels(w http.ResponseWriter, r *http.Request) {
	id, _ := identityFromContext(r.Context())
	granted := auth.NewPermissionSet(auth.PermissionsForRole(id.Role)...)

	all := s.hub.Channels()
	visible := make([]hub.ChannelInfo, 0, len(all))
	for _, ch := range all {
		if isPrivileged(id) || granted.HasAll(ch.Permissions) {
			visible = append(visible, ch)
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"channels": visible, "count": len(visible)})
}

// handleListConnections returns a snapshot of live hub connections.
func (s *Server) handleListConnections(w http.ResponseWriter, _ *http.Request) {
	conns := s.hub.Connections()
	writeJSON(w, http.StatusOK, map[string]any{"connections": conns, "count": len(conns)})
}
