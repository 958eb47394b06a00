/*
Package fsoverlay stores the content-addressed file blobs a worker's
InitialFilesystem manifest (spec.md §6, domain.FileManifestEntry) refers
to, and materializes a read-only overlay directory for a worker's
sandbox at instantiate time.

Follows the same base-directory-plus-subdirectory layout and
Create/Delete/Mount/Unmount shape as a local volume driver (one
directory per named volume, bind-mounted into a container), but the
identity of "what goes in the directory" changes from a single opaque
volume to a set of content-addressed blobs keyed by hash, deduplicated
across every component version that references the same file.

# Architecture

	┌──────────────────────────────────────────────────────────────┐
	│                         Store (on disk)                       │
	│  basePath/blobs/<sha256>           content-addressed blobs     │
	│  basePath/overlays/<worker-id>/...  materialized read-only tree│
	└──────────────────────────────────────────────────────────────────┘

Put writes a blob once per content hash; Materialize reads a
component's []domain.FileManifestEntry and hardlinks (or copies, across
filesystem boundaries) each entry's blob into the worker's overlay
directory at the manifest path, after checking that the stored blob's
size matches the manifest entry. The blob's hash is not recomputed at
materialize time.

# See also

  - pkg/worker for the Actor that mounts a Materialize'd overlay before Instantiate
  - pkg/domain for the FileManifestEntry / ComponentMetadata.InitialFilesystem types this package consumes
*/
package fsoverlay
