// Package quota decides whether an upload is allowed. The vault core
// consumes the decision as-is; how the limits are computed (billing,
// subscription tier) is this package's business alone.
package quota

import (
	"context"
	"fmt"
	"path"
	"slices"
	"strings"

	"github.com/org/docvault/internal/storage"
)

// Result is the validator's decision for one upload request.
type Result struct {
	IsValid  bool     `json:"isValid"`
	Errors   []string `json:"errors,omitempty"`
	Warnings []string `json:"warnings,omitempty"`
}

// Validator decides whether a principal may upload a file of the given
// size and MIME type.
type Validator interface {
	Validate(ctx context.Context, principal string, fileName, mimeType string, size int64) (*Result, error)
}

// Limits configures the static validator.
type Limits struct {
	MaxFileSize       int64    `yaml:"max_file_size"`   // bytes per file; 0 = unlimited
	MaxTotalSize      int64    `yaml:"max_total_size"`  // bytes per owner; 0 = unlimited
	BlockedExtensions []string `yaml:"blocked_extensions"`
	AllowedMimeTypes  []string `yaml:"allowed_mime_types"` // empty = all allowed
	WarnUsageFraction float64  `yaml:"warn_usage_fraction"`
}

// StaticValidator enforces configured limits against current usage from
// the item store.
type StaticValidator struct {
	store  storage.Backend
	limits Limits
}

// NewStaticValidator creates a validator with the given limits.
func NewStaticValidator(store storage.Backend, limits Limits) *StaticValidator {
	return &StaticValidator{store: store, limits: limits}
}

func (v *StaticValidator) Validate(ctx context.Context, principal, fileName, mimeType string, size int64) (*Result, error) {
	res := &Result{IsValid: true}

	if size <= 0 {
		res.IsValid = false
		res.Errors = append(res.Errors, "file size must be positive")
	}
	if v.limits.MaxFileSize > 0 && size > v.limits.MaxFileSize {
		res.IsValid = false
		res.Errors = append(res.Errors, fmt.Sprintf("file exceeds maximum size of %d bytes", v.limits.MaxFileSize))
	}

	ext := strings.ToLower(strings.TrimPrefix(path.Ext(fileName), "."))
	if ext != "" && slices.Contains(v.limits.BlockedExtensions, ext) {
		res.IsValid = false
		res.Errors = append(res.Errors, fmt.Sprintf("file extension %q is not allowed", ext))
	}
	if len(v.limits.AllowedMimeTypes) > 0 && !mimeAllowed(v.limits.AllowedMimeTypes, mimeType) {
		res.IsValid = false
		res.Errors = append(res.Errors, fmt.Sprintf("mime type %q is not allowed", mimeType))
	}

	if v.limits.MaxTotalSize > 0 {
		used, err := v.store.SumFileSizes(ctx, principal)
		if err != nil {
			return nil, fmt.Errorf("computing storage usage: %w", err)
		}
		if used+size > v.limits.MaxTotalSize {
			res.IsValid = false
			res.Errors = append(res.Errors, "storage quota exceeded")
		} else if v.limits.WarnUsageFraction > 0 &&
			float64(used+size) > v.limits.WarnUsageFraction*float64(v.limits.MaxTotalSize) {
			res.Warnings = append(res.Warnings, "approaching storage quota")
		}
	}

	return res, nil
}

// mimeAllowed matches exact types and "type/*" wildcards.
func mimeAllowed(allowed []string, mimeType string) bool {
	for _, a := range allowed {
		if a == mimeType {
			return true
		}
		if prefix, ok := strings.CutSuffix(a, "/*"); ok && strings.HasPrefix(mimeType, prefix+"/") {
			return true
		}
	}
	return false
}
