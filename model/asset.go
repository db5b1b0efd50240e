package model

// AssetKind distinguishes seamless looped beds from scheduled one-shot sounds.
type AssetKind string

const (
	AssetLoop  AssetKind = "loop"
	AssetEvent AssetKind = "event"
)

// Asset is one entry of the static field-recording catalog. Assets are
// immutable; tracks reference them by (library, id).
type Asset struct {
	ID       string    `json:"id"`
	Label    string    `json:"label"`
	Kind     AssetKind `json:"kind"`
	Category string    `json:"category"` // library folder: rain, wind, thunder, ...
	Ext      string    `json:"ext,omitempty"`
}
