package artifact

import (
	"os"

	"github.com/gomlx/tracefreeze/pkg/core/graph"
	"github.com/gomlx/tracefreeze/pkg/support/fsutil"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// WriteFile serializes g and writes it to filePath atomically: the artifact is first written to a
// temporary file in the same directory and then renamed, so a failure never leaves a partially
// written artifact behind.
func WriteFile(filePath string, g *graph.Graph) error {
	data, err := Serialize(g)
	if err != nil {
		return errors.WithMessagef(err, "serializing artifact for %q", filePath)
	}
	if err = fsutil.AtomicWriteFile(filePath, data, 0o644); err != nil {
		return errors.WithMessagef(err, "writing artifact to %q", filePath)
	}
	klog.V(1).Infof("artifact: wrote %q (%d bytes)", filePath, len(data))
	return nil
}

// ReadFile reads and loads the artifact in filePath. See Loader.Load for the errors returned.
func ReadFile(filePath string, options ...Option) (*graph.Graph, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, errors.Wrapf(err, "reading artifact %q", filePath)
	}
	g, err := Deserialize(data, options...)
	if err != nil {
		return g, errors.WithMessagef(err, "loading artifact %q", filePath)
	}
	return g, nil
}
