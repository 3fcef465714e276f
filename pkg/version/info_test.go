package version

import (
	"testing"
	"time"
)

func TestCurrent_Defaults(t *testing.T) {
	oldVersion := AppVersion
	oldCommit := GitCommit
	oldBuildTime := BuildTime
	t.Cleanup(func() {
		AppVersion = oldVersion
		GitCommit = oldCommit
		BuildTime = oldBuildTime
	})

	AppVersion = ""
	GitCommit = ""
	BuildTime = ""

	info := Current("")

	if info.Service != Unknown {
		t.Fatalf("expected service %q, got %q", Unknown, info.Service)
	}
	if info.Version != DevelopmentVersion {
		t.Fatalf("expected version %q, got %q", DevelopmentVersion, info.Version)
	}
	if info.Commit != Unknown {
		t.Fatalf("expected commit %q, got %q", Unknown, info.Commit)
	}
	if info.BuildTime != Unknown {
		t.Fatalf("expected build_time %q, got %q", Unknown, info.BuildTime)
	}
	if info.GoVersion == "" {
		t.Fatal("expected go version to be set")
	}
}

func TestInfo_IsRelease(t *testing.T) {
	tests := []struct {
		version string
		want    bool
	}{
		{"v1.4.0", true},
		{DevelopmentVersion, false},
		{Unknown, false},
	}
	for _, tt := range tests {
		if got := (Info{Version: tt.version}).IsRelease(); got != tt.want {
			t.Errorf("IsRelease(%q) = %v, want %v", tt.version, got, tt.want)
		}
	}
}

func TestInfo_String(t *testing.T) {
	info := Info{Service: "txscope", Version: "v0.3.0", Commit: "abc123", BuildTime: Unknown, GoVersion: "go1.25.5"}
	want := "txscope@v0.3.0 (commit=abc123, build_time=unknown, go=go1.25.5)"
	if got := info.String(); got != want {
		t.Fatalf("expected %q, got %q", want, got)
	}
}

func TestInfo_ParseBuildTime(t *testing.T) {
	now := time.Now().UTC().Truncate(time.Second)
	info := Info{
		BuildTime: now.Format(time.RFC3339),
	}

	parsed, ok := info.ParseBuildTime()
	if !ok {
		t.Fatalf("expected build time to be parsed")
	}
	if !parsed.Equal(now) {
		t.Fatalf("expected %s, got %s", now, parsed)
	}
}

