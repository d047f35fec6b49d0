package extract

import (
	"crypto/sha256"
	"encoding/hex"
	"path"
	"strings"

	"github.com/google/uuid"
)

// Deterministic entity IDs: extracting the same real-world thing twice must
// converge on the same graph node. Each natural-key shape gets its own
// derivation; only inherently unique events fall back to random IDs.

// FileEntityID derives a stable ID from a file path: the path is normalized
// (slashes unified, redundant segments removed, case folded) and content-
// hashed so cosmetic variants of the same path share a node.
func FileEntityID(filePath string) string {
	normalized := strings.ToLower(path.Clean(strings.ReplaceAll(filePath, "\\", "/")))
	sum := sha256.Sum256([]byte(normalized))
	return "file:" + hex.EncodeToString(sum[:8])
}

// TagEntityID derives a stable ID from a tag name: lowercase with spaces
// collapsed to hyphens. The tag's display form is preserved verbatim in the
// node properties; only the ID is normalized.
func TagEntityID(tag string) string {
	return "tag:" + NormalizeTag(tag)
}

// NormalizeTag lowercases a tag and collapses whitespace runs to hyphens.
func NormalizeTag(tag string) string {
	fields := strings.Fields(strings.ToLower(strings.TrimSpace(tag)))
	return strings.Join(fields, "-")
}

// ToolEntityID derives a stable ID from a tool name via slugification.
func ToolEntityID(name string) string {
	return "tool:" + Slugify(name)
}

// SessionEntityID derives a stable ID from a session identifier.
func SessionEntityID(sessionID string) string {
	return "session:" + sessionID
}

// MemoryEntityID derives the graph node ID mirroring a stored memory.
func MemoryEntityID(memoryID string) string {
	return "memory:" + memoryID
}

// ToolInvocationID returns a fresh random ID. A tool-invocation event is
// inherently unique, so there is no natural key to derive from.
func ToolInvocationID() string {
	return "invocation:" + uuid.NewString()
}

// Slugify lowercases s and replaces every non-alphanumeric run with a single
// hyphen, trimming leading/trailing hyphens.
func Slugify(s string) string {
	var b strings.Builder
	lastHyphen := true // suppress leading hyphen
	for _, r := range strings.ToLower(s) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
			lastHyphen = false
		} else if !lastHyphen {
			b.WriteByte('-')
			lastHyphen = true
		}
	}
	return strings.TrimSuffix(b.String(), "-")
}
