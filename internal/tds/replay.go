package tds

import (
	"fmt"
	"os"

	"github.com/sbinet/npyio"
	"gonum.org/v1/gonum/mat"
)

// ReadReplayMatrix loads a NumPy .npy file holding an n_events x n_samples
// float matrix for the simulator to replay, one row per armed sequence.
func ReadReplayMatrix(path string) (*mat.Dense, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open replay file: %w", err)
	}
	defer f.Close()

	var m mat.Dense
	if err := npyio.Read(f, &m); err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	if r, c := m.Dims(); r == 0 || c == 0 {
		return nil, fmt.Errorf("replay matrix %s is empty", path)
	}
	return &m, nil
}
