package core

import (
	"fmt"
	"net/url"
	"path"
	"strings"

	"hbuild/internal/types"
)

const defaultExtractStrip = 1

// AcquireSteps fetches a source either by cloning its repository or by
// downloading its archive into the shared source root.
func AcquireSteps(src *types.Source) []types.Step {
	if src.Git != "" {
		clone := []string{"git", "clone"}
		if src.Branch != "" {
			clone = append(clone, "-b", src.Branch)
		}
		steps := []types.Step{{Args: append(clone, src.Git, "@THIS_SOURCE_DIR@"), Workdir: "@SOURCE_ROOT@"}}
		if ref := checkoutRef(src); ref != "" {
			steps = append(steps, types.Step{Args: []string{"git", "checkout", ref}, Workdir: "@THIS_SOURCE_DIR@"})
		}
		return steps
	}
	return []types.Step{{
		Args:    []string{"wget", "-q", "-N", "-P", "@SOURCE_ROOT@", src.URL},
		Workdir: "@SOURCE_ROOT@",
	}}
}

func checkoutRef(src *types.Source) string {
	if src.Branch != "" {
		return ""
	}
	if src.Commit != "" {
		return src.Commit
	}
	return src.Tag
}

// ExtractSteps unpacks a downloaded archive into the source tree. Git
// sources need no extraction.
func ExtractSteps(src *types.Source) []types.Step {
	if src.Git != "" || src.URL == "" {
		return nil
	}
	strip := defaultExtractStrip
	if src.ExtractStrip != nil {
		strip = *src.ExtractStrip
	}
	flags := "-xvf"
	if strings.Contains(src.Format, "gz") || src.Format == "tgz" {
		flags = "-xzvf"
	}
	return []types.Step{{
		Args: []string{
			"tar", flags, "@SOURCE_ROOT@/" + ArchiveName(src.URL),
			"-C", "@THIS_SOURCE_DIR@",
			fmt.Sprintf("--strip-components=%d", strip),
		},
		Workdir: "@THIS_SOURCE_DIR@",
	}}
}

// ArchiveName is the file name wget stores a URL under.
func ArchiveName(rawURL string) string {
	if parsed, err := url.Parse(rawURL); err == nil && parsed.Path != "" {
		return path.Base(parsed.Path)
	}
	return path.Base(rawURL)
}

// PatchSteps applies every *.patch file in the mounted patch directory in
// lexical order.
func PatchSteps(src *types.Source) []types.Step {
	cmd := fmt.Sprintf(
		"find %s -type f -name '*.patch' -print0 | sort -z | xargs -0 -r -n 1 patch -p%d -i",
		types.SandboxPatchDir, src.PatchPathStrip,
	)
	return []types.Step{{Args: types.StepArgs{cmd}, Shell: true, Workdir: "@THIS_SOURCE_DIR@"}}
}
