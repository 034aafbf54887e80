package gitlab

import (
	"strconv"
	"testing"

	"github.com/steveyegge/reposync/internal/reposync"
	"github.com/steveyegge/reposync/internal/types"
)

func TestProjectPermissionsLevel(t *testing.T) {
	tests := []struct {
		name  string
		perms *ProjectPermissions
		want  int
	}{
		{"nil", nil, AccessNone},
		{"project only", &ProjectPermissions{ProjectAccess: &Access{AccessLevel: AccessDeveloper}}, AccessDeveloper},
		{"group wins", &ProjectPermissions{ProjectAccess: &Access{AccessLevel: AccessReporter}, GroupAccess: &Access{AccessLevel: AccessOwner}}, AccessOwner},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.perms.Level(); got != tt.want {
				t.Errorf("Level() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestStrategyAccessLevels(t *testing.T) {
	s, err := reposync.StrategyFor(types.ProviderGitLab)
	if err != nil {
		t.Fatalf("StrategyFor(gitlab) error = %v", err)
	}
	if s.AutoEnable() {
		t.Error("GitLab repositories should not auto-enable")
	}

	tests := []struct {
		level     int
		wantAdmin bool
		wantWrite bool
		wantRole  string
	}{
		{AccessOwner, true, true, types.RoleAdmin},
		{AccessMaintainer, true, true, types.RoleMaintainer},
		{AccessDeveloper, false, true, types.RoleDeveloper},
		{AccessReporter, false, false, types.RoleReader},
		{AccessGuest, false, false, types.RoleReader},
		{AccessMinimal, false, false, ""},
	}
	for _, tt := range tests {
		t.Run(strconv.Itoa(tt.level), func(t *testing.T) {
			repo := &reposync.ProviderRepository{Permissions: reposync.Permissions{AccessLevel: tt.level}}
			if got := s.IsAdmin(repo); got != tt.wantAdmin {
				t.Errorf("IsAdmin() = %v, want %v", got, tt.wantAdmin)
			}
			if got := s.HasWriteAccess(repo); got != tt.wantWrite {
				t.Errorf("HasWriteAccess() = %v, want %v", got, tt.wantWrite)
			}
			if got := s.RoleName(strconv.Itoa(tt.level)); got != tt.wantRole {
				t.Errorf("RoleName() = %q, want %q", got, tt.wantRole)
			}
		})
	}

	if got := s.RoleName("not-a-level"); got != "" {
		t.Errorf("RoleName(garbage) = %q, want none", got)
	}
}

func TestStrategyVisibility(t *testing.T) {
	s := &Strategy{}
	for visibility, wantPrivate := range map[string]bool{"public": false, "internal": true, "private": true} {
		row := s.ToRepository(&reposync.ProviderRepository{ProviderInternalID: "1", Visibility: visibility}, 9)
		if row.IsPrivate != wantPrivate {
			t.Errorf("visibility %s: IsPrivate = %v, want %v", visibility, row.IsPrivate, wantPrivate)
		}
		if row.AccountID != 9 || row.IsEnabled {
			t.Errorf("visibility %s: row = %+v", visibility, row)
		}
	}
}
