package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"

	"github.com/dwsmith1983/checkrun/pkg/types"
)

// Fingerprint derives a deterministic cache key from the manifest/lock files
// relevant to the toolchain plus the toolchain spec and the host OS/arch.
// Same inputs always produce the same key. Missing key files contribute an
// "absent" marker so the key stays deterministic either way.
func Fingerprint(workdir string, keyFiles []string, spec types.ToolchainSpec, prefix string) string {
	h := sha256.New()
	fmt.Fprintf(h, "%s\n%s/%s\n%s\n", prefix, runtime.GOOS, runtime.GOARCH, spec.Channel)

	components := append([]string(nil), spec.Components...)
	sort.Strings(components)
	fmt.Fprintln(h, strings.Join(components, ","))

	files := append([]string(nil), keyFiles...)
	sort.Strings(files)
	for _, name := range files {
		fmt.Fprintf(h, "%s\n", name)
		f, err := os.Open(filepath.Join(workdir, name))
		if err != nil {
			fmt.Fprintln(h, "absent")
			continue
		}
		_, _ = io.Copy(h, f)
		_ = f.Close()
	}

	sum := hex.EncodeToString(h.Sum(nil))
	if prefix == "" {
		prefix = "cache"
	}
	return prefix + "-" + sum[:16]
}
