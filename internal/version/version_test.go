package version

import (
	"strings"
	"testing"
)

func TestString(t *testing.T) {
	oldVersion, oldDirty := Version, Dirty
	t.Cleanup(func() { Version, Dirty = oldVersion, oldDirty })

	Version, Dirty = "1.2.0", "false"
	if got := String(); got != "1.2.0" {
		t.Errorf("String() = %q", got)
	}

	Dirty = "true"
	if got := String(); got != "1.2.0-dirty" {
		t.Errorf("String() = %q", got)
	}
	if !Get().Dirty {
		t.Error("Get().Dirty = false")
	}
	if full := Full(); !strings.HasPrefix(full, "qbank 1.2.0-dirty\n") || !strings.Contains(full, "Dirty:      yes") {
		t.Errorf("Full() = %q", full)
	}
}
