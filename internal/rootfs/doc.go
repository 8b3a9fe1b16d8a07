// Package rootfs assembles container root filesystems from image layers.
//
// [Build] materializes an ordered layer list into a flat directory: each
// layer's tar archive is read from the content store, decompressed per its
// media type, and extracted bottom-up with standard layer semantics (later
// layers overwrite earlier ones; OCI whiteout markers delete shadowed
// paths). There is deliberately no copy-on-write or layer reuse between
// containers: every run performs a full extraction, trading disk and time
// for simplicity.
//
// [Apply] then copies user-requested volumes into the assembled tree, in
// request order, before the container is launched.
package rootfs
