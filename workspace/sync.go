package workspace

import (
	"context"
	"os"
	"path/filepath"

	"github.com/hashicorp/go-getter"

	"github.com/apiprobe/apiprobe/errors"
)

// SyncRemote fetches the project's configured remote source into its working
// directory. Supports whatever go-getter detects: git URLs, GitHub shorthand,
// http archives, local paths. Projects without a configured source are a no-op.
//
// The fetch lands in a staging directory under the workspace root and is then
// swapped into the project dir entry by entry, so local state the source does
// not own (report directories in particular) survives a re-sync.
func (m *Manager) SyncRemote(ctx context.Context, projectID string) error {
	src, ok := m.sources[projectID]
	if !ok || src == "" {
		return nil
	}

	pwd, err := os.Getwd()
	if err != nil {
		pwd = "."
	}

	detected, err := getter.Detect(src, pwd, getter.Detectors)
	if err != nil {
		return errors.Wrapf(err, "failed to detect source type for %s", src)
	}

	dst := m.ProjectDir(projectID)
	m.logger.Infow("Syncing project source",
		"project_id", projectID,
		"source", src,
		"detected", detected,
		"destination", dst)

	if err := os.MkdirAll(m.root, dirPermissions); err != nil {
		return errors.Wrapf(err, "failed to create workspace root %s", m.root)
	}

	staging, err := os.MkdirTemp(m.root, ".sync-*")
	if err != nil {
		return errors.Wrap(err, "failed to create staging dir")
	}
	defer os.RemoveAll(staging)

	// go-getter requires a non-existent destination for local sources; it
	// recreates the staging dir itself.
	if err := os.Remove(staging); err != nil {
		return errors.Wrap(err, "failed to clear staging dir")
	}

	client := &getter.Client{
		Ctx:  ctx,
		Src:  detected,
		Dst:  staging,
		Mode: getter.ClientModeDir,
		// Local sources must be copied, not symlinked, so the workspace
		// stays independently writable (report dirs land next to features).
		Getters: map[string]getter.Getter{
			"file":  &getter.FileGetter{Copy: true},
			"git":   new(getter.GitGetter),
			"hg":    new(getter.HgGetter),
			"http":  new(getter.HttpGetter),
			"https": new(getter.HttpGetter),
		},
	}

	if err := client.Get(); err != nil {
		return errors.Wrapf(err, "failed to sync project source %s", src)
	}

	if err := m.swapSynced(staging, dst); err != nil {
		return err
	}

	m.logger.Infow("Project source synced",
		"project_id", projectID,
		"destination", dst)
	return nil
}

// swapSynced moves every top-level entry of the staging dir into the project
// dir, replacing same-named entries wholesale. Entries the source does not
// contain are left untouched.
func (m *Manager) swapSynced(staging, dst string) error {
	entries, err := os.ReadDir(staging)
	if err != nil {
		return errors.Wrapf(err, "failed to read staging dir %s", staging)
	}

	if err := os.MkdirAll(dst, dirPermissions); err != nil {
		return errors.Wrapf(err, "failed to create project dir %s", dst)
	}

	for _, entry := range entries {
		target := filepath.Join(dst, entry.Name())
		if err := os.RemoveAll(target); err != nil {
			return errors.Wrapf(err, "failed to replace %s", target)
		}
		if err := os.Rename(filepath.Join(staging, entry.Name()), target); err != nil {
			return errors.Wrapf(err, "failed to move synced entry %s", entry.Name())
		}
	}
	return nil
}

// HasRemoteSource reports whether the project has a configured remote source
func (m *Manager) HasRemoteSource(projectID string) bool {
	src, ok := m.sources[projectID]
	return ok && src != ""
}
