package stages

import (
	"archive/tar"
	"compress/gzip"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/sephirothchang/CXVoyager-sub000/internal/orchestrator"
)

// runSummary is written to artifacts/run-summary.json.
type runSummary struct {
	Stages      []orchestrator.Stage             `json:"stages"`
	Options     orchestrator.EffectiveRunOptions `json:"options"`
	Artifacts   []string                         `json:"artifacts"`
	Deployments map[string]map[string]any        `json:"deployments,omitempty"`
	Precheck    *orchestrator.PrecheckReport     `json:"precheck,omitempty"`
	Timestamp   string                           `json:"timestamp"`
}

// cleanup writes the run summary and bundles it with the logs into a
// gzip'd tarball under the work dir.
func (h *handlers) cleanup(ctx context.Context, rc *orchestrator.RunContext) error {
	const stage = orchestrator.StageCleanup
	sl := rc.StageLogger(stage)
	now := h.now()

	dir := filepath.Join(workDir(rc), "artifacts")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("cleanup: %w", err)
	}

	sum := runSummary{
		Stages:    append([]orchestrator.Stage{}, rc.CompletedStages...),
		Options:   rc.Options,
		Artifacts: rc.Artifacts.Names(),
		Timestamp: now.Format("2006-01-02T15:04:05Z"),
	}
	for _, s := range orchestrator.AllStages() {
		if out, ok := orchestrator.GetArtifact(rc.Artifacts, orchestrator.DeploymentKey(s)); ok {
			if sum.Deployments == nil {
				sum.Deployments = make(map[string]map[string]any)
			}
			sum.Deployments[s.String()] = out
		}
	}
	if pre, ok := orchestrator.GetArtifact(rc.Artifacts, orchestrator.KeyPrecheck); ok {
		sum.Precheck = &pre
	}
	data, err := json.MarshalIndent(sum, "", "  ")
	if err != nil {
		return fmt.Errorf("cleanup: encode summary: %w", err)
	}
	summaryPath := filepath.Join(dir, "run-summary.json")
	if err := os.WriteFile(summaryPath, data, 0o644); err != nil {
		return fmt.Errorf("cleanup: %w", err)
	}

	if err := sl.CheckAbort("before bundling"); err != nil {
		return err
	}

	bundle := filepath.Join(dir, "bundle-"+now.Format("20060102-150405")+".tar.gz")
	logDir := rc.Config.Logging.Dir
	if logDir != "" && !filepath.IsAbs(logDir) {
		logDir = filepath.Join(workDir(rc), logDir)
	}
	if err := writeBundle(ctx, bundle, dir, logDir); err != nil {
		return fmt.Errorf("cleanup: bundle: %w", err)
	}

	orchestrator.PutArtifact(rc.Artifacts, orchestrator.KeyArchivePath, bundle)
	sl.Info("run artifacts archived", orchestrator.Detail{"bundle": bundle, "summary": summaryPath})
	return nil
}

func workDir(rc *orchestrator.RunContext) string {
	if rc.WorkDir == "" {
		return "."
	}
	return rc.WorkDir
}

// writeBundle archives the files of artifactsDir (except bundles) and, when
// it exists, logDir under logs/. A partial bundle is removed on error.
func writeBundle(ctx context.Context, path, artifactsDir, logDir string) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
		if err != nil {
			_ = os.Remove(path)
		}
	}()
	gz := gzip.NewWriter(f)
	tw := tar.NewWriter(gz)

	entries, err := os.ReadDir(artifactsDir)
	if err != nil {
		return err
	}
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) == ".gz" {
			continue
		}
		if err := addFile(tw, filepath.Join(artifactsDir, e.Name()), e.Name()); err != nil {
			return err
		}
	}

	if logDir != "" {
		if _, statErr := os.Stat(logDir); statErr == nil {
			walkErr := filepath.WalkDir(logDir, func(p string, d fs.DirEntry, err error) error {
				if err != nil {
					return err
				}
				if ctx.Err() != nil {
					return ctx.Err()
				}
				if d.IsDir() {
					return nil
				}
				rel, err := filepath.Rel(logDir, p)
				if err != nil {
					return err
				}
				return addFile(tw, p, filepath.ToSlash(filepath.Join("logs", rel)))
			})
			if walkErr != nil {
				return walkErr
			}
		}
	}

	if err := tw.Close(); err != nil {
		return err
	}
	return gz.Close()
}

func addFile(tw *tar.Writer, path, name string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return err
	}
	hdr, err := tar.FileInfoHeader(info, "")
	if err != nil {
		return err
	}
	hdr.Name = name
	if err := tw.WriteHeader(hdr); err != nil {
		return err
	}
	// Logs may still be appended to; archive what the header announced.
	_, err = io.CopyN(tw, f, hdr.Size)
	return err
}
