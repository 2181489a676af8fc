package archive

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/example/surveybatch/internal/storage"
)

// metadataFile is the single entry kept live after archiving so the record
// stays queryable without restoring.
const metadataFile = "metadata.json"

// restoreStaging is the prefix extracted entries land under before being
// promoted into their final keys.
const restoreStaging = ".restore/"

// archiveNamespace zips every entry of a live namespace (the metadata
// record included, as a snapshot) into a single artifact under the archive
// namespace, verifies the artifact, and then removes the live entries
// except the metadata record. Returns the live and compressed byte totals.
func (m *Manager) archiveNamespace(ctx context.Context, ns, artifactRel string) (int64, int64, error) {
	paths, err := m.backend.List(ctx, ns, "", true)
	if err != nil {
		return 0, 0, fmt.Errorf("list namespace: %w", err)
	}
	if len(paths) == 0 {
		return 0, 0, fmt.Errorf("namespace %s is empty", ns)
	}
	originalSize, err := m.backend.Size(ctx, ns)
	if err != nil {
		return 0, 0, fmt.Errorf("measure namespace: %w", err)
	}

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, p := range paths {
		data, err := m.backend.Get(ctx, ns, p)
		if err != nil {
			return 0, 0, fmt.Errorf("read %s: %w", p, err)
		}
		w, err := zw.Create(p)
		if err != nil {
			return 0, 0, fmt.Errorf("add %s: %w", p, err)
		}
		if _, err := w.Write(data); err != nil {
			return 0, 0, fmt.Errorf("compress %s: %w", p, err)
		}
	}
	if err := zw.Close(); err != nil {
		return 0, 0, fmt.Errorf("finalize archive: %w", err)
	}

	artifact := buf.Bytes()
	if _, err := m.backend.Save(ctx, archiveRoot, artifactRel, artifact); err != nil {
		return 0, 0, fmt.Errorf("write artifact: %w", err)
	}
	if err := m.verifyArtifact(ctx, artifactRel); err != nil {
		m.removeArtifact(ctx, artifactRel)
		return 0, 0, err
	}

	// Live data goes only after the artifact is confirmed. The metadata
	// record stays so the item remains queryable without restoring.
	for _, p := range paths {
		if p == metadataFile {
			continue
		}
		if _, err := m.backend.Delete(ctx, ns, p); err != nil {
			return 0, 0, fmt.Errorf("remove live entry %s: %w", p, err)
		}
	}

	return originalSize, int64(len(artifact)), nil
}

// restoreNamespace extracts an artifact back into its live namespace. The
// entries are staged under a hidden prefix first, then promoted, so a
// failed extraction never leaves a half-restored namespace.
func (m *Manager) restoreNamespace(ctx context.Context, ns, artifactRel string) error {
	data, err := m.backend.Get(ctx, archiveRoot, artifactRel)
	if err != nil {
		if storage.IsNotFound(err) {
			return fmt.Errorf("artifact %s: %w", artifactRel, err)
		}
		return fmt.Errorf("read artifact: %w", err)
	}

	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return fmt.Errorf("open artifact: %w", err)
	}

	var staged []string
	for _, f := range zr.File {
		if f.Name == metadataFile || strings.HasSuffix(f.Name, "/") {
			continue
		}
		content, err := readZipEntry(f)
		if err != nil {
			m.discardStaged(ctx, ns, staged)
			return fmt.Errorf("extract %s: %w", f.Name, err)
		}
		stagedPath := restoreStaging + f.Name
		if _, err := m.backend.Save(ctx, ns, stagedPath, content); err != nil {
			m.discardStaged(ctx, ns, staged)
			return fmt.Errorf("stage %s: %w", f.Name, err)
		}
		staged = append(staged, stagedPath)
	}

	for _, stagedPath := range staged {
		final := strings.TrimPrefix(stagedPath, restoreStaging)
		content, err := m.backend.Get(ctx, ns, stagedPath)
		if err != nil {
			return fmt.Errorf("promote %s: %w", final, err)
		}
		if _, err := m.backend.Save(ctx, ns, final, content); err != nil {
			return fmt.Errorf("promote %s: %w", final, err)
		}
		if _, err := m.backend.Delete(ctx, ns, stagedPath); err != nil {
			m.log.WithError(err).WithField("path", stagedPath).Warn("staged entry left behind")
		}
	}

	m.removeArtifact(ctx, artifactRel)
	return nil
}

// verifyArtifact confirms the artifact landed and is non-empty
func (m *Manager) verifyArtifact(ctx context.Context, artifactRel string) error {
	exists, err := m.backend.Exists(ctx, archiveRoot, artifactRel)
	if err != nil {
		return fmt.Errorf("verify artifact: %w", err)
	}
	if !exists {
		return errors.New("artifact missing after write")
	}
	data, err := m.backend.Get(ctx, archiveRoot, artifactRel)
	if err != nil {
		return fmt.Errorf("verify artifact: %w", err)
	}
	if len(data) == 0 {
		return errors.New("artifact is empty")
	}
	return nil
}

// removeArtifact is best effort; a stray artifact is only wasted space
func (m *Manager) removeArtifact(ctx context.Context, artifactRel string) {
	if _, err := m.backend.Delete(ctx, archiveRoot, artifactRel); err != nil {
		m.log.WithError(err).WithField("artifact", artifactRel).Warn("could not remove artifact")
	}
}

func (m *Manager) discardStaged(ctx context.Context, ns string, staged []string) {
	for _, p := range staged {
		if _, err := m.backend.Delete(ctx, ns, p); err != nil {
			m.log.WithError(err).WithField("path", p).Warn("staged entry left behind")
		}
	}
}

func readZipEntry(f *zip.File) ([]byte, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}
