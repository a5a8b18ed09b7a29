// Package wire defines the JSON message types exchanged over the glasses and
// TPA WebSocket channels, and the HTTP payloads POSTed to TPA lifecycle
// webhooks.
//
// Every type here is a plain Go struct tagged for encoding/json. Nothing in
// this package touches a network connection; internal/wsfront owns framing
// and dispatch.
package wire

import "time"

// StreamType names a kind of event flowing between glasses and TPAs. Plain
// values are used as-is; some accept a language-parameterized form
// (see Descriptor).
type StreamType string

const (
	StreamAudioChunk           StreamType = "audio_chunk"
	StreamTranscription        StreamType = "transcription"
	StreamTranslation          StreamType = "translation"
	StreamLocationUpdate       StreamType = "location_update"
	StreamCalendarEvent        StreamType = "calendar_event"
	StreamHeadPosition         StreamType = "head_position"
	StreamButtonPress          StreamType = "button_press"
	StreamPhoneNotification    StreamType = "phone_notification"
	StreamNotificationDismiss  StreamType = "notification_dismissed"
	StreamVAD                  StreamType = "vad"
	StreamOpenDashboard        StreamType = "open_dashboard"

	// WildcardStar and WildcardAll both match every stream type.
	WildcardStar StreamType = "*"
	WildcardAll  StreamType = "all"
)

// knownStreamTypes is the enumerated set of base types that may be used
// bare or as the base of a language-parameterized descriptor.
var knownStreamTypes = map[StreamType]bool{
	StreamAudioChunk:          true,
	StreamTranscription:       true,
	StreamTranslation:         true,
	StreamLocationUpdate:      true,
	StreamCalendarEvent:       true,
	StreamHeadPosition:        true,
	StreamButtonPress:         true,
	StreamPhoneNotification:   true,
	StreamNotificationDismiss: true,
	StreamVAD:                 true,
	StreamOpenDashboard:       true,
}

// IsKnownBaseType reports whether t is one of the enumerated stream types.
func IsKnownBaseType(t StreamType) bool {
	return knownStreamTypes[t]
}

// VirtualSessionID builds the opaque routing handle exposed to a TPA,
// `<userSessionId>-<packageName>`.
func VirtualSessionID(userSessionID, packageName string) string {
	return userSessionID + "-" + packageName
}

// --- Glasses inbound (client → server) ---

// ConnectionInit is the first frame a glasses client sends after the
// WebSocket upgrade completes.
type ConnectionInit struct {
	Type          string   `json:"type"` // "connection_init"
	InstalledApps []string `json:"installedApps,omitempty"`
}

// StartApp requests that a TPA be launched for this session.
type StartApp struct {
	Type        string `json:"type"` // "start_app"
	PackageName string `json:"packageName"`
}

// StopApp requests that a running TPA be stopped.
type StopApp struct {
	Type        string `json:"type"` // "stop_app"
	PackageName string `json:"packageName"`
}

// GlassesConnectionState reports connectivity/model details from the device.
type GlassesConnectionState struct {
	Type      string `json:"type"` // "glasses_connection_state"
	Status    string `json:"status"`
	ModelName string `json:"modelName,omitempty"`
}

// VADEvent reports a voice-activity-detection transition.
type VADEvent struct {
	Type   string `json:"type"` // "vad"
	Status bool   `json:"status"`
}

// LocationUpdate reports the device's current coordinates.
type LocationUpdate struct {
	Type string  `json:"type"` // "location_update"
	Lat  float64 `json:"lat"`
	Lng  float64 `json:"lng"`
}

// CalendarEvent reports the most recent upcoming calendar entry.
type CalendarEvent struct {
	Type  string `json:"type"` // "calendar_event"
	Title string `json:"title"`
	Start string `json:"start"`
	End   string `json:"end,omitempty"`
}

// PhotoResponse carries the uploaded photo URL answering a prior
// photo_request.
type PhotoResponse struct {
	Type      string `json:"type"` // "photo_response"
	RequestID string `json:"requestId"`
	PhotoURL  string `json:"photoUrl"`
}

// VideoStreamResponse carries a stream URL answering a prior
// video_stream_request.
type VideoStreamResponse struct {
	Type      string `json:"type"` // "video_stream_response"
	AppID     string `json:"appId"`
	StreamURL string `json:"streamUrl"`
}

// SettingsUpdateRequest asks the server to resend the current OS settings.
type SettingsUpdateRequest struct {
	Type string `json:"type"` // "settings_update_request"
}

// CoreStatusUpdate is a generic device-status report, forwarded
// pass-through where subscribed.
type CoreStatusUpdate struct {
	Type   string         `json:"type"` // "core_status_update"
	Status map[string]any `json:"status"`
}

// --- Glasses outbound (server → client) ---

// ConnectionAck confirms a successful glasses connect or reconnect.
type ConnectionAck struct {
	Type        string `json:"type"` // "connection_ack"
	SessionID   string `json:"sessionId"`
	UserSession string `json:"userSession"`
}

// ConnectionError reports a recoverable protocol-level error; the channel
// stays open.
type ConnectionError struct {
	Type    string `json:"type"` // "connection_error"
	Message string `json:"message"`
}

// AuthError reports an authentication failure; the channel is closed after
// this frame is sent (if it can be sent at all).
type AuthError struct {
	Type    string `json:"type"` // "auth_error"
	Message string `json:"message"`
}

// AppStateChange reports the current set of active TPAs for this session.
type AppStateChange struct {
	Type        string   `json:"type"` // "app_state_change"
	UserSession string   `json:"userSession"`
	ActiveApps  []string `json:"activeApps"`
}

// MicrophoneStateChange reports a debounced microphone capture edge.
type MicrophoneStateChange struct {
	Type                  string `json:"type"` // "microphone_state_change"
	IsMicrophoneEnabled   bool   `json:"isMicrophoneEnabled"`
	UserSession           string `json:"userSession"`
}

// SettingsUpdate pushes the current OS settings snapshot.
type SettingsUpdate struct {
	Type     string         `json:"type"` // "settings_update"
	Settings map[string]any `json:"settings"`
}

// PhotoRequest asks the glasses to capture and upload a photo.
type PhotoRequest struct {
	Type      string `json:"type"` // "photo_request"
	RequestID string `json:"requestId"`
	AppID     string `json:"appId,omitempty"`
}

// VideoStreamRequest asks the glasses to open a video stream for an app.
type VideoStreamRequest struct {
	Type  string `json:"type"` // "video_stream_request"
	AppID string `json:"appId"`
}

// DisplayEvent carries a display-layout instruction produced by a TPA and
// relayed to the glasses.
type DisplayEvent struct {
	Type    string         `json:"type"` // "display_event"
	AppID   string         `json:"appId"`
	Payload map[string]any `json:"payload"`
}

// --- TPA inbound (TPA → server) ---

// TPAConnectionInit is the first frame a TPA sends after its WebSocket
// upgrade completes.
type TPAConnectionInit struct {
	Type        string `json:"type"` // "tpa_connection_init"
	SessionID   string `json:"sessionId"`
	PackageName string `json:"packageName"`
	APIKey      string `json:"apiKey"`
}

// SubscriptionUpdate replaces a TPA's stream subscription set.
type SubscriptionUpdate struct {
	Type          string   `json:"type"` // "subscription_update"
	PackageName   string   `json:"packageName"`
	Subscriptions []string `json:"subscriptions"`
}

// TPADisplayEvent is a display-layout instruction produced by a TPA.
type TPADisplayEvent struct {
	Type    string         `json:"type"` // "display_event"
	Payload map[string]any `json:"payload"`
}

// DashboardContentUpdate, DashboardModeChange, DashboardSystemUpdate carry
// dashboard-layer instructions, relayed verbatim to the dashboard
// collaborator.
type DashboardContentUpdate struct {
	Type    string         `json:"type"` // "dashboard_content_update"
	Payload map[string]any `json:"payload"`
}

type DashboardModeChange struct {
	Type string `json:"type"` // "dashboard_mode_change"
	Mode string `json:"mode"`
}

type DashboardSystemUpdate struct {
	Type    string         `json:"type"` // "dashboard_system_update"
	Payload map[string]any `json:"payload"`
}

// TPAPhotoRequest asks the server to capture a photo on behalf of a TPA.
type TPAPhotoRequest struct {
	Type          string `json:"type"` // "photo_request"
	PackageName   string `json:"packageName"`
	SaveToGallery bool   `json:"saveToGallery"`
}

// TPAVideoStreamRequest asks the server to open a video stream on behalf of
// a TPA.
type TPAVideoStreamRequest struct {
	Type        string `json:"type"` // "video_stream_request"
	PackageName string `json:"packageName"`
}

// --- TPA outbound (server → TPA) ---

// TPAConnectionAck confirms a successful TPA init and carries the TPA's
// persisted settings.
type TPAConnectionAck struct {
	Type      string         `json:"type"` // "tpa_connection_ack"
	SessionID string         `json:"sessionId"`
	Settings  map[string]any `json:"settings"`
}

// DataStream wraps a routed event for delivery to a TPA.
type DataStream struct {
	Type       string `json:"type"` // "data_stream"
	SessionID  string `json:"sessionId"`
	StreamType string `json:"streamType"`
	Data       any    `json:"data"`
}

// TranscriptionData is the Data payload of a data_stream frame whose
// streamType base is "transcription" or "translation".
type TranscriptionData struct {
	Text    string `json:"text"`
	IsFinal bool   `json:"isFinal"`
}

// PermissionErrorDetail names one rejected descriptor and the permission
// the app was missing.
type PermissionErrorDetail struct {
	Stream             string `json:"stream"`
	RequiredPermission string `json:"requiredPermission"`
}

// PermissionError reports one or more subscription descriptors rejected at
// subscription-update time.
type PermissionError struct {
	Type    string                  `json:"type"` // "permission_error"
	Details []PermissionErrorDetail `json:"details"`
}

// PhotoTimeoutError tells a TPA that its photo request expired unanswered.
type PhotoTimeoutError struct {
	Type      string `json:"type"` // "photo_timeout_error"
	RequestID string `json:"requestId"`
}

// --- Webhook payloads (server → TPA backend over plain HTTP) ---

// SessionRequest is POSTed to a TPA's webhook to start a session.
type SessionRequest struct {
	Type                   string    `json:"type"` // "session_request"
	SessionID              string    `json:"sessionId"`
	UserID                 string    `json:"userId"`
	Timestamp              time.Time `json:"timestamp"`
	AugmentOSWebsocketURL  string    `json:"augmentOSWebsocketUrl"`
}

// StopRequest is POSTed to a TPA's webhook to stop a session.
type StopRequest struct {
	Type      string    `json:"type"` // "stop_request"
	SessionID string    `json:"sessionId"`
	UserID    string    `json:"userId"`
	Reason    string    `json:"reason"`
	Timestamp time.Time `json:"timestamp"`
}
