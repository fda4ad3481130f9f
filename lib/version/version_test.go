// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package version

import (
	"strings"
	"testing"
)

func TestInfoMarksDirtyBuilds(t *testing.T) {
	original := GitDirty
	defer func() { GitDirty = original }()

	GitDirty = "true"
	if info := Info(); !strings.Contains(info, "-dirty") {
		t.Errorf("Info() = %q, want -dirty marker", info)
	}
	GitDirty = "false"
	if info := Info(); strings.Contains(info, "-dirty") {
		t.Errorf("Info() = %q, want no -dirty marker", info)
	}
}
