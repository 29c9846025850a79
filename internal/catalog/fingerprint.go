package catalog

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"
)

// Fingerprint is the cheap change signal for the drop directory. Pollers keep
// the last one they saw and compare with Changed.
type Fingerprint struct {
	LatestModified time.Time
	Count          int

	// Digest hashes every (name, size, mtime) triple. It catches the case
	// where a delete and a create leave both the count and the newest mtime
	// untouched.
	Digest string
}

// TakeFingerprint returns the newest modification time and number of regular
// files directly inside dir. A missing or empty directory yields the zero
// Fingerprint.
func TakeFingerprint(dir string) Fingerprint {
	files := scan(dir)
	if len(files) == 0 {
		return Fingerprint{}
	}
	hasher := sha256.New()
	var fp Fingerprint
	for _, f := range files {
		fp.Count++
		if f.modTime.After(fp.LatestModified) {
			fp.LatestModified = f.modTime
		}
		fmt.Fprintf(hasher, "%s\x00%d\x00%d\n", f.name, f.size, f.modTime.UnixNano())
	}
	fp.Digest = hex.EncodeToString(hasher.Sum(nil))[:16]
	return fp
}

// Changed reports whether fp differs from a previously observed prev: the
// newest mtime advanced, the count moved, or (when both sides carry one) the
// digest differs.
func (fp Fingerprint) Changed(prev Fingerprint) bool {
	if fp.LatestModified.After(prev.LatestModified) || fp.Count != prev.Count {
		return true
	}
	return fp.Digest != "" && prev.Digest != "" && fp.Digest != prev.Digest
}

// Epoch converts t to fractional seconds since the Unix epoch; the zero time is 0.
func Epoch(t time.Time) float64 {
	if t.IsZero() {
		return 0
	}
	return float64(t.UnixNano()) / float64(time.Second)
}

// FromEpoch is the inverse of Epoch, used by clients decoding poll responses.
func FromEpoch(seconds float64) time.Time {
	if seconds == 0 {
		return time.Time{}
	}
	return time.Unix(0, int64(seconds*float64(time.Second)))
}
