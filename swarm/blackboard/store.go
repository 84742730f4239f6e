// ABOUTME: Store is the blackboard's single entry point: index CRUD with
// ABOUTME: CAS semantics, central-plan validation, notifications, templates.

package blackboard

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/nanoagent/swarmcore/swarm/filelock"
)

const (
	// CentralPlanFile is the reserved index carrying the task plan.
	CentralPlanFile = "central_plan.md"
	// NotificationsFile is the reserved append-only event stream.
	NotificationsFile = "notifications.md"

	defaultLockTimeout = 30 * time.Second
	dirPerm            = 0o755
	filePerm           = 0o644
)

// Store is bound to one blackboard root directory B, laid out per spec §3:
// B/global_indices, B/resources, B/registry.json, B/mailboxes, B/requests,
// B/logs, and a sibling templates directory.
type Store struct {
	Root         string
	IndicesDir   string
	ResourcesDir string
	TemplatesDir string
	LockTimeout  time.Duration
}

// Open creates the blackboard directory tree (if absent) rooted at root and
// returns a bound Store. templatesDir is a static, read-only sibling
// directory of markdown templates.
func Open(root, templatesDir string) (*Store, error) {
	s := &Store{
		Root:         root,
		IndicesDir:   filepath.Join(root, "global_indices"),
		ResourcesDir: filepath.Join(root, "resources"),
		TemplatesDir: templatesDir,
		LockTimeout:  defaultLockTimeout,
	}
	for _, d := range []string{root, s.IndicesDir, s.ResourcesDir} {
		if err := os.MkdirAll(d, dirPerm); err != nil {
			return nil, fmt.Errorf("blackboard: mkdir %s: %w", d, err)
		}
	}
	return s, nil
}

func (s *Store) indexPath(filename string) string {
	filename = sanitizeIndexName(filename)
	return filepath.Join(s.IndicesDir, filename)
}

// sanitizeIndexName strips an accidental "global_indices/" prefix, matching
// the leniency in the source tool so an agent that over-qualifies a
// filename still resolves correctly.
func sanitizeIndexName(name string) string {
	name = strings.TrimPrefix(name, "/global_indices/")
	name = strings.TrimPrefix(name, "global_indices/")
	return name
}

func checksum(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}

// IndexSummary is one entry of ListIndices: the index's front-matter plus
// its filename.
type IndexSummary struct {
	Filename string
	Meta     map[string]any
	Err      error
}

// ListIndices scans global_indices/ for *.md files and returns their
// front-matter, reading only enough of each file to cover metadata.
func (s *Store) ListIndices() ([]IndexSummary, error) {
	entries, err := os.ReadDir(s.IndicesDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var out []IndexSummary
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".md") {
			continue
		}
		buf := make([]byte, 8192)
		f, err := os.Open(filepath.Join(s.IndicesDir, e.Name()))
		if err != nil {
			out = append(out, IndexSummary{Filename: e.Name(), Err: err})
			continue
		}
		n, _ := f.Read(buf)
		f.Close()
		meta, _ := ParseFrontMatter(string(buf[:n]))
		out = append(out, IndexSummary{Filename: e.Name(), Meta: meta})
	}
	return out, nil
}

// IndexContent is the result of ReadIndex: parsed metadata, body, and a
// content checksum for subsequent CAS writes.
type IndexContent struct {
	Metadata map[string]any
	Body     string
	Checksum string
}

// ReadIndex reads one index file under a shared lock.
func (s *Store) ReadIndex(filename string) (*IndexContent, error) {
	path := s.indexPath(filename)
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("index %q not found", filename)
	}
	var raw string
	err := filelock.WithLock(path, filelock.Shared, os.O_RDONLY, filePerm, s.LockTimeout, func(f *os.File) error {
		data, err := os.ReadFile(f.Name())
		if err != nil {
			return err
		}
		raw = string(data)
		return nil
	})
	if err != nil {
		return nil, err
	}
	meta, body := ParseFrontMatter(raw)
	return &IndexContent{Metadata: meta, Body: body, Checksum: checksum(raw)}, nil
}

// AppendToIndex appends content to an index under exclusive lock, no CAS.
// A leading newline is added if content doesn't already start with one, so
// repeated appends read as a clean timeline.
func (s *Store) AppendToIndex(filename, content string) error {
	path := s.indexPath(filename)
	if !strings.HasPrefix(content, "\n") {
		content = "\n" + content
	}
	return filelock.WithLock(path, filelock.Exclusive, os.O_RDWR|os.O_CREATE|os.O_APPEND, filePerm, s.LockTimeout, func(f *os.File) error {
		_, err := f.WriteString(content)
		return err
	})
}

// UpdateIndex performs a CAS full-content replace: reads current bytes
// under exclusive lock, compares against expectedChecksum, validates the
// new content's front-matter (and, for central_plan.md, plan invariants),
// then writes.
func (s *Store) UpdateIndex(filename, content, expectedChecksum string) error {
	path := s.indexPath(filename)
	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("index %q not found", filename)
	}
	if expectedChecksum == "" {
		return fmt.Errorf("expected_checksum is required for update_index")
	}
	return filelock.WithLock(path, filelock.Exclusive, os.O_RDWR, filePerm, s.LockTimeout, func(f *os.File) error {
		data, err := os.ReadFile(f.Name())
		if err != nil {
			return err
		}
		current := checksum(string(data))
		if current != expectedChecksum {
			return &CASConflict{Filename: filename, CurrentChecksum: current}
		}
		if !strings.HasPrefix(content, "---") {
			return fmt.Errorf("content must start with '---' followed by YAML frontmatter")
		}
		meta, body := ParseFrontMatter(content)
		if meta == nil {
			return fmt.Errorf("failed to parse YAML frontmatter in provided content")
		}
		if !validateMarkdownBody(body) {
			return fmt.Errorf("index body is empty after YAML frontmatter")
		}
		if isCentralPlan(filename) {
			plan, _, _, err := ParsePlan(body)
			if err != nil {
				return &PlanViolationError{Reason: err.Error()}
			}
			if err := plan.Validate(); err != nil {
				return &PlanViolationError{Reason: err.Error()}
			}
		}
		return writeWhole(f, content)
	})
}

func isCentralPlan(filename string) bool {
	return filename == CentralPlanFile || strings.HasSuffix(filename, "/"+CentralPlanFile)
}

func writeWhole(f *os.File, content string) error {
	if _, err := f.Seek(0, 0); err != nil {
		return err
	}
	if _, err := f.WriteString(content); err != nil {
		return err
	}
	return f.Truncate(int64(len(content)))
}

// CreateIndex creates a new index file; fails if it already exists. content
// must start with YAML front-matter carrying name, description, and
// usage_policy.
func (s *Store) CreateIndex(filename, content string) error {
	path := s.indexPath(filename)
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("index %q already exists", filename)
	}
	if !strings.HasPrefix(content, "---") {
		return fmt.Errorf("content must start with '---' followed by YAML frontmatter")
	}
	meta, body := ParseFrontMatter(content)
	var missing []string
	for _, field := range []string{"name", "description", "usage_policy"} {
		if _, ok := meta[field]; !ok {
			missing = append(missing, field)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("YAML metadata incomplete, missing fields: %s", strings.Join(missing, ", "))
	}
	if !validateMarkdownBody(body) {
		return fmt.Errorf("index body is empty after YAML frontmatter")
	}
	if isCentralPlan(filename) {
		plan, _, _, err := ParsePlan(body)
		if err != nil {
			return &PlanViolationError{Reason: err.Error()}
		}
		if err := plan.Validate(); err != nil {
			return &PlanViolationError{Reason: err.Error()}
		}
	}
	if err := os.MkdirAll(filepath.Dir(path), dirPerm); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(content), filePerm)
}

// ListTemplates lists the *.md files under the static templates directory.
func (s *Store) ListTemplates() ([]string, error) {
	entries, err := os.ReadDir(s.TemplatesDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var out []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".md") {
			out = append(out, e.Name())
		}
	}
	return out, nil
}

// ReadTemplate reads one template, rejecting any path that escapes the
// templates directory.
func (s *Store) ReadTemplate(filename string) (string, error) {
	if filename == "" {
		return "", fmt.Errorf("template filename is required")
	}
	abs, err := filepath.Abs(filepath.Join(s.TemplatesDir, filename))
	if err != nil {
		return "", err
	}
	templatesAbs, err := filepath.Abs(s.TemplatesDir)
	if err != nil {
		return "", err
	}
	if !strings.HasPrefix(abs, templatesAbs) {
		return "", &AccessDeniedError{Reason: "invalid template path"}
	}
	data, err := os.ReadFile(abs)
	if err != nil {
		return "", fmt.Errorf("template %q not found", filename)
	}
	return string(data), nil
}
