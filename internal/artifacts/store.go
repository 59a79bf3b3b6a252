package artifacts

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"vignette/internal/config"
	"vignette/internal/services"
)

// Subdirectories inside each job's artifact directory.
const (
	DirSegments    = "segments"
	DirTranscripts = "transcripts"
	DirAnalysis    = "analysis"
	DirImages      = "images"
	DirOutput      = "output"
)

// JSON metadata documents written by the pipeline stages.
const (
	DocSegments   = "segments.json"
	DocTranscript = "transcript.json"
	DocCues       = "cues.json"
	DocManifest   = "manifest.json"
	DocTimeline   = "timeline.json"
	DocVideo      = "video.json"
)

const sealMarker = ".sealed"

// Store manages per-job artifact directories under the staging root.
type Store struct {
	root string
}

// NewStore builds an artifact store rooted at the configured staging dir.
func NewStore(cfg *config.Config) *Store {
	return &Store{root: cfg.Paths.StagingDir}
}

// JobDir returns the artifact directory for a job.
func (s *Store) JobDir(jobID string) string {
	return filepath.Join(s.root, jobID)
}

// SubDir returns one of the job's artifact subdirectories.
func (s *Store) SubDir(jobID, name string) string {
	return filepath.Join(s.root, jobID, name)
}

// EnsureJob creates the job's artifact directory tree and returns its root.
// Safe to call repeatedly.
func (s *Store) EnsureJob(jobID string) (string, error) {
	if strings.TrimSpace(jobID) == "" {
		return "", services.Wrap(services.ErrValidation, "", "artifacts", "job id is empty", nil)
	}
	jobDir := s.JobDir(jobID)
	for _, sub := range []string{DirSegments, DirTranscripts, DirAnalysis, DirImages, DirOutput} {
		if err := os.MkdirAll(filepath.Join(jobDir, sub), 0o755); err != nil {
			return "", fmt.Errorf("create artifact dir: %w", err)
		}
	}
	return jobDir, nil
}

// Sealed reports whether the job's artifacts have been marked immutable.
func (s *Store) Sealed(jobID string) bool {
	_, err := os.Stat(filepath.Join(s.JobDir(jobID), sealMarker))
	return err == nil
}

// Seal marks the job's artifacts immutable. Called once after composition;
// sealing an already-sealed job is a no-op.
func (s *Store) Seal(jobID string) error {
	if s.Sealed(jobID) {
		return nil
	}
	marker := filepath.Join(s.JobDir(jobID), sealMarker)
	if err := os.WriteFile(marker, []byte(time.Now().UTC().Format(time.RFC3339)+"\n"), 0o644); err != nil {
		return fmt.Errorf("seal artifacts: %w", err)
	}
	return nil
}

func (s *Store) guardWrite(jobID string) error {
	if s.Sealed(jobID) {
		return services.Wrap(services.ErrValidation, "", "artifacts", fmt.Sprintf("job %s is sealed", jobID), nil)
	}
	return nil
}

// WriteJSON persists a metadata document at the job root.
func (s *Store) WriteJSON(jobID, name string, value any) error {
	return s.WriteJSONIn(jobID, "", name, value)
}

// WriteJSONIn persists a metadata document inside a job subdirectory. An
// empty subdir targets the job root.
func (s *Store) WriteJSONIn(jobID, subdir, name string, value any) error {
	if err := s.guardWrite(jobID); err != nil {
		return err
	}
	if _, err := s.EnsureJob(jobID); err != nil {
		return err
	}
	data, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal %s: %w", name, err)
	}
	target := filepath.Join(s.JobDir(jobID), subdir, name)
	if err := os.WriteFile(target, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("write %s: %w", name, err)
	}
	return nil
}

// ReadJSON loads a metadata document from the job root.
func (s *Store) ReadJSON(jobID, name string, out any) error {
	target := filepath.Join(s.JobDir(jobID), name)
	data, err := os.ReadFile(target)
	if os.IsNotExist(err) {
		return services.Wrap(services.ErrNotFound, "", "artifacts", fmt.Sprintf("document %s for job %s", name, jobID), nil)
	}
	if err != nil {
		return fmt.Errorf("read %s: %w", name, err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode %s: %w", name, err)
	}
	return nil
}

// SaveVisual streams a resolved visual into the job's images directory using
// the <timestamp>_<slug>_<source> naming layout and returns the stored path.
func (s *Store) SaveVisual(jobID string, timestampSeconds float64, slug, source, ext string, r io.Reader) (string, error) {
	if err := s.guardWrite(jobID); err != nil {
		return "", err
	}
	if _, err := s.EnsureJob(jobID); err != nil {
		return "", err
	}
	name := fmt.Sprintf("%07.1f_%s_%s%s", timestampSeconds, Slugify(slug), source, normalizeExt(ext))
	target := filepath.Join(s.SubDir(jobID, DirImages), name)
	f, err := os.Create(target)
	if err != nil {
		return "", fmt.Errorf("create visual file: %w", err)
	}
	if _, err := io.Copy(f, r); err != nil {
		_ = f.Close()
		_ = os.Remove(target)
		return "", fmt.Errorf("write visual file: %w", err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(target)
		return "", fmt.Errorf("close visual file: %w", err)
	}
	return target, nil
}

// OutputPath returns the destination for the composed video.
func (s *Store) OutputPath(jobID, filename string) string {
	return filepath.Join(s.SubDir(jobID, DirOutput), filename)
}

// RemoveJob deletes a job's artifact directory, sealed or not. Used by the
// explicit queue clear operation only.
func (s *Store) RemoveJob(jobID string) error {
	if strings.TrimSpace(jobID) == "" {
		return nil
	}
	return os.RemoveAll(s.JobDir(jobID))
}

// Slugify reduces free text to a short filesystem-safe token.
func Slugify(text string) string {
	var b strings.Builder
	lastDash := false
	for _, r := range strings.ToLower(strings.TrimSpace(text)) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			lastDash = false
		case r == ' ' || r == '-' || r == '_':
			if !lastDash {
				b.WriteByte('-')
				lastDash = true
			}
		}
		if b.Len() >= 40 {
			break
		}
	}
	slug := strings.Trim(b.String(), "-")
	if slug == "" {
		return "visual"
	}
	return slug
}

func normalizeExt(ext string) string {
	ext = strings.TrimSpace(strings.ToLower(ext))
	if ext == "" {
		return ".jpg"
	}
	if !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	return ext
}
