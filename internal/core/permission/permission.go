// Package permission implements the static stream-to-permission map and the
// subscription filter (C3): a TPA may only subscribe to a stream type if its
// installed-app manifest declares the permission that stream requires.
package permission

import "github.com/augmentcore/corehub/internal/wire"

// requiredPermission maps a stream base type to the permission scope a TPA
// must hold to subscribe to it. Stream types absent from this map require
// no permission (e.g. head_position, button_press, open_dashboard).
var requiredPermission = map[wire.StreamType]string{
	wire.StreamAudioChunk:          "MICROPHONE",
	wire.StreamTranscription:       "MICROPHONE",
	wire.StreamTranslation:         "MICROPHONE",
	wire.StreamVAD:                 "MICROPHONE",
	wire.StreamLocationUpdate:      "LOCATION",
	wire.StreamCalendarEvent:       "CALENDAR",
	wire.StreamPhoneNotification:   "NOTIFICATIONS",
	wire.StreamNotificationDismiss: "NOTIFICATIONS",
}

// App describes the minimal manifest data the permission filter needs about
// a TPA: the set of permission scopes its catalog entry declares.
type App struct {
	PackageName string
	Permissions map[string]bool
}

// Rejection names one subscription descriptor the app was not permitted to
// request, and the scope that would have allowed it.
type Rejection struct {
	Descriptor         wire.Descriptor
	RequiredPermission string
}

// Filter splits requested subscription descriptors into those app is
// permitted to hold and those it is not. Wildcards ("*", "all") are never
// granted without every permission they would imply being present; since a
// glasses session cannot enumerate "every permission", wildcards are
// rejected unless app declares every scope named in requiredPermission.
func Filter(app App, requested []wire.Descriptor) (allowed []wire.Descriptor, rejected []Rejection) {
	for _, d := range requested {
		if d.IsWildcard() {
			if hasAllPermissions(app) {
				allowed = append(allowed, d)
			} else {
				rejected = append(rejected, Rejection{Descriptor: d, RequiredPermission: "ALL"})
			}
			continue
		}

		scope, needsPermission := requiredPermission[d.BaseType()]
		if !needsPermission {
			allowed = append(allowed, d)
			continue
		}
		if app.Permissions[scope] {
			allowed = append(allowed, d)
			continue
		}
		rejected = append(rejected, Rejection{Descriptor: d, RequiredPermission: scope})
	}
	return allowed, rejected
}

func hasAllPermissions(app App) bool {
	for _, scope := range requiredPermission {
		if !app.Permissions[scope] {
			return false
		}
	}
	return true
}
