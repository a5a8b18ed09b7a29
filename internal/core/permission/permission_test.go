package permission

import (
	"testing"

	"github.com/augmentcore/corehub/internal/wire"
)

func TestFilter_AllowsUnguardedStream(t *testing.T) {
	app := App{PackageName: "com.example.app", Permissions: map[string]bool{}}
	allowed, rejected := Filter(app, []wire.Descriptor{"head_position"})
	if len(allowed) != 1 || len(rejected) != 0 {
		t.Errorf("Filter() = allowed=%v rejected=%v, want head_position allowed unconditionally", allowed, rejected)
	}
}

func TestFilter_RejectsNotificationsWithoutPermission(t *testing.T) {
	app := App{PackageName: "com.example.app", Permissions: map[string]bool{}}
	allowed, rejected := Filter(app, []wire.Descriptor{"phone_notification", "notification_dismissed"})
	if len(allowed) != 0 {
		t.Errorf("Filter() allowed = %v, want empty", allowed)
	}
	if len(rejected) != 2 {
		t.Fatalf("Filter() rejected = %v, want 2 entries", rejected)
	}
	for _, r := range rejected {
		if r.RequiredPermission != "NOTIFICATIONS" {
			t.Errorf("Filter() rejection %v, want NOTIFICATIONS", r)
		}
	}
}

func TestFilter_RejectsMissingPermission(t *testing.T) {
	app := App{PackageName: "com.example.app", Permissions: map[string]bool{}}
	allowed, rejected := Filter(app, []wire.Descriptor{"location_update"})
	if len(allowed) != 0 {
		t.Errorf("Filter() allowed = %v, want empty", allowed)
	}
	if len(rejected) != 1 || rejected[0].RequiredPermission != "LOCATION" {
		t.Errorf("Filter() rejected = %v, want one LOCATION rejection", rejected)
	}
}

func TestFilter_AllowsGrantedPermission(t *testing.T) {
	app := App{PackageName: "com.example.app", Permissions: map[string]bool{"MICROPHONE": true}}
	allowed, rejected := Filter(app, []wire.Descriptor{"transcription:en-US"})
	if len(allowed) != 1 || len(rejected) != 0 {
		t.Errorf("Filter() = allowed=%v rejected=%v, want transcription allowed with MICROPHONE granted", allowed, rejected)
	}
}

func TestFilter_WildcardRequiresEveryPermission(t *testing.T) {
	app := App{PackageName: "com.example.app", Permissions: map[string]bool{"MICROPHONE": true}}
	allowed, rejected := Filter(app, []wire.Descriptor{"*"})
	if len(allowed) != 0 || len(rejected) != 1 {
		t.Errorf("Filter() = allowed=%v rejected=%v, want wildcard rejected without full permission set", allowed, rejected)
	}
}

func TestFilter_WildcardGrantedWithFullPermissionSet(t *testing.T) {
	app := App{PackageName: "com.example.app", Permissions: map[string]bool{
		"MICROPHONE": true, "LOCATION": true, "CALENDAR": true, "NOTIFICATIONS": true,
	}}
	allowed, rejected := Filter(app, []wire.Descriptor{"all"})
	if len(allowed) != 1 || len(rejected) != 0 {
		t.Errorf("Filter() = allowed=%v rejected=%v, want wildcard granted with full permission set", allowed, rejected)
	}
}

func TestFilter_MixedRequest(t *testing.T) {
	app := App{PackageName: "com.example.app", Permissions: map[string]bool{"MICROPHONE": true}}
	requested := []wire.Descriptor{"transcription:en-US", "location_update", "head_position"}
	allowed, rejected := Filter(app, requested)
	if len(allowed) != 2 {
		t.Errorf("Filter() allowed = %v, want 2 entries (transcription, head_position)", allowed)
	}
	if len(rejected) != 1 || rejected[0].Descriptor != "location_update" {
		t.Errorf("Filter() rejected = %v, want one location_update rejection", rejected)
	}
}
