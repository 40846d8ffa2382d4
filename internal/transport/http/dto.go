package http

import (
	"github.com/pion/webrtc/v4"

	"github.com/cwrk-planet/meet-relay/internal/domain"
)

// ICEServersResponse is ready to pass as RTCConfiguration on the browser side.
type ICEServersResponse struct {
	ICEServers []webrtc.ICEServer `json:"iceServers"`
}

type MeetingsResponse struct {
	Items      []domain.MeetingEvent `json:"items"`
	NextCursor string                `json:"nextCursor,omitempty"`
}
