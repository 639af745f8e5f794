package assets

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// splitExt splits a filename into base and extension (without the dot).
func splitExt(name string) (base, ext string) {
	ext = filepath.Ext(name)
	base = strings.TrimSuffix(name, ext)
	return base, strings.TrimPrefix(ext, ".")
}

// sanitizeBaseName strips everything but letters, digits, spaces, hyphens
// and underscores, then trims. An empty result falls back to "image".
func sanitizeBaseName(base string) string {
	var b strings.Builder
	for _, r := range base {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') ||
			(r >= '0' && r <= '9') || r == ' ' || r == '-' || r == '_' {
			b.WriteRune(r)
		}
	}
	out := strings.TrimSpace(b.String())
	if out == "" {
		return "image"
	}
	return out
}

// numericSuffixName resolves an upload name collision by appending _1, _2,
// and so on to the base until the name is free in dir. Reject and restore
// collisions use timestampSuffixName instead.
func numericSuffixName(dir, base, ext string) string {
	name := base + "." + ext
	for counter := 1; fileExists(filepath.Join(dir, name)); counter++ {
		name = base + "_" + strconv.Itoa(counter) + "." + ext
	}
	return name
}

// timestampSuffixName resolves a move collision by appending the current
// unix timestamp to the base name.
func timestampSuffixName(name string) string {
	base, ext := splitExt(name)
	return fmt.Sprintf("%s_%d.%s", base, time.Now().Unix(), ext)
}

// stripTimestampSuffix removes a trailing _<digits> segment from a base
// name, used when matching a rejected file whose stored name gained a
// timestamp suffix.
func stripTimestampSuffix(base string) string {
	idx := strings.LastIndex(base, "_")
	if idx < 0 {
		return base
	}
	if _, err := strconv.ParseInt(base[idx+1:], 10, 64); err != nil {
		return base
	}
	return base[:idx]
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
