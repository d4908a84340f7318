package models

import (
	"slices"
	"time"
)

// ItemKind distinguishes folders from files.
type ItemKind string

const (
	KindFolder ItemKind = "folder"
	KindFile   ItemKind = "file"
)

// ScanStatus tracks an uploaded object through the quarantine pipeline.
type ScanStatus string

const (
	ScanPending  ScanStatus = "pending"
	ScanScanning ScanStatus = "scanning"
	ScanClean    ScanStatus = "clean"
	ScanInfected ScanStatus = "infected"
	ScanError    ScanStatus = "error"
)

// AccessLevel is the effective access a principal has on an item.
type AccessLevel string

const (
	AccessOwner AccessLevel = "owner"
	AccessWrite AccessLevel = "write"
	AccessRead  AccessLevel = "read"
)

// VaultItem is a node in a per-owner hierarchical namespace.
// Path is the materialized ancestor-name chain, root-relative and
// slash-delimited; it is kept consistent with the parent chain on every
// rename and move.
type VaultItem struct {
	ID      string   `json:"id"`
	OwnerID string   `json:"ownerId"`
	Kind    ItemKind `json:"kind"`

	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	Tags        []string `json:"tags,omitempty"`

	ParentID *string `json:"parentId,omitempty"`
	Path     string  `json:"path"`

	// File content fields (zero-valued for folders).
	Size          int64      `json:"size,omitempty"`
	MimeType      string     `json:"mimeType,omitempty"`
	Provider      string     `json:"provider,omitempty"`
	StorageKey    string     `json:"-"`
	QuarantineKey *string    `json:"-"`
	Encrypted     bool       `json:"encrypted,omitempty"`
	ScanStatus    ScanStatus `json:"scanStatus,omitempty"`

	// Presigned URL caches. Refreshing these is not a semantic mutation
	// and must never bump UpdatedAt.
	DownloadURL       string    `json:"-"`
	DownloadURLExpiry time.Time `json:"-"`
	UploadURL         string    `json:"-"`
	UploadURLExpiry   time.Time `json:"-"`

	// ACLs. Write implies read: every id in CanWrite is effectively readable.
	SharedWith  []string   `json:"sharedWith,omitempty"`
	CanRead     []string   `json:"canRead,omitempty"`
	CanWrite    []string   `json:"canWrite,omitempty"`
	ShareExpiry *time.Time `json:"shareExpiry,omitempty"`

	IsDeleted bool       `json:"isDeleted,omitempty"`
	CreatedAt time.Time  `json:"createdAt"`
	UpdatedAt time.Time  `json:"updatedAt"`
	DeletedAt *time.Time `json:"deletedAt,omitempty"`
}

// IsFolder reports whether the item is a folder node.
func (i *VaultItem) IsFolder() bool {
	return i.Kind == KindFolder
}

// Promoted reports whether a file has left quarantine for its permanent
// storage location. Folders are trivially promoted.
func (i *VaultItem) Promoted() bool {
	return i.QuarantineKey == nil
}

// SharedWithPrincipal reports whether the item has been shared with the
// given principal at any level.
func (i *VaultItem) SharedWithPrincipal(principal string) bool {
	return slices.Contains(i.SharedWith, principal)
}

// CanBeReadBy reports whether the principal is in the effective read set
// (read or write ACL). The owner bypasses ACLs entirely and is not
// considered here.
func (i *VaultItem) CanBeReadBy(principal string) bool {
	return slices.Contains(i.CanRead, principal) || slices.Contains(i.CanWrite, principal)
}

// CanBeWrittenBy reports whether the principal is in the write ACL.
func (i *VaultItem) CanBeWrittenBy(principal string) bool {
	return slices.Contains(i.CanWrite, principal)
}

// ShareExpired reports whether ACL-based sharing on the item has lapsed.
func (i *VaultItem) ShareExpired(now time.Time) bool {
	return i.ShareExpiry != nil && now.After(*i.ShareExpiry)
}

// ItemView is the item shape returned to API callers, annotated with the
// caller's effective access level.
type ItemView struct {
	*VaultItem
	AccessLevel AccessLevel `json:"accessLevel"`
}
