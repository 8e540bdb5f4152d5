package socket

// Broadcaster publishes ledger events to project rooms
type Broadcaster struct {
	hub *Hub
}

func NewBroadcaster(hub *Hub) *Broadcaster {
	return &Broadcaster{hub: hub}
}

// BroadcastToProject sends msgType to everyone subscribed to the project
// except excludeUserID.
func (b *Broadcaster) BroadcastToProject(projectID string, msgType MessageType, payload map[string]interface{}, excludeUserID string) {
	if b == nil || b.hub == nil {
		return
	}
	b.hub.SendToRoom(ProjectRoom(projectID), msgType, payload, excludeUserID)
}
