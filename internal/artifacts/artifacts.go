// Package artifacts is the diagnostic sink: every failing site call leaves
// the offending page body on disk for later inspection.
package artifacts

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
)

type Sink struct {
	dir string
	log *slog.Logger
}

func NewSink(dir string, log *slog.Logger) *Sink {
	if log == nil {
		log = slog.Default()
	}
	return &Sink{dir: dir, log: log}
}

// CaptureFailure writes the body under the artifacts dir. Best-effort: a
// capture failure is logged and swallowed, never propagated.
func (s *Sink) CaptureFailure(prefix string, body []byte) {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		s.log.Error("artifact dir", "err", err)
		return
	}
	name := fmt.Sprintf("%s_%s_%s.html",
		prefix,
		time.Now().Format("20060102-150405"),
		uuid.New().String()[:8])
	path := filepath.Join(s.dir, name)
	if err := os.WriteFile(path, body, 0o644); err != nil {
		s.log.Error("artifact write", "path", path, "err", err)
		return
	}
	s.log.Info("failure artifact captured", "path", path, "bytes", len(body))
}
