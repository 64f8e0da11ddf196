package dedup

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// Fields is the part of a submission that decides whether two requests are the same.
type Fields struct {
	ProductID   string
	TemplateID  string
	Prompt      string
	AspectRatio string
	Variants    int
	MediaType   string
}

// Fingerprint hashes userID and the normalized fields. Prompts that differ only
// in Unicode composition or whitespace collapse to one key; case is kept since
// the provider sees it. Identifiers and enum fields are compared case-insensitively.
func Fingerprint(userID string, f Fields) string {
	parts := []string{
		canonical(userID),
		canonical(f.ProductID),
		canonical(f.TemplateID),
		collapse(f.Prompt),
		canonical(f.AspectRatio),
		strconv.Itoa(f.Variants),
		canonical(f.MediaType),
	}
	sum := sha256.Sum256([]byte(strings.Join(parts, "\x1f")))
	return hex.EncodeToString(sum[:])
}

func canonical(v string) string {
	return strings.ToLower(collapse(v))
}

// collapse applies NFC and squeezes whitespace runs to single spaces.
func collapse(v string) string {
	return strings.Join(strings.Fields(norm.NFC.String(v)), " ")
}
