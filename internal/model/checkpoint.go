package model

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"gonum.org/v1/gonum/mat"

	"github.com/tphakala/seld-go/internal/errors"
)

const (
	checkpointMagic   = "SELDCKPT"
	checkpointVersion = uint32(1)
)

// Save writes the parameters of m to path. The file is replaced atomically,
// so an interrupted save leaves the previous checkpoint intact.
func Save(path string, m Model) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return checkpointError(fmt.Errorf("model: create %s: %w", dir, err), path)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".*.tmp")
	if err != nil {
		return checkpointError(fmt.Errorf("model: create temporary checkpoint: %w", err), path)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	w := bufio.NewWriter(tmp)
	if err := writeParams(w, m.Params()); err != nil {
		tmp.Close()
		return checkpointError(err, path)
	}
	if err := w.Flush(); err != nil {
		tmp.Close()
		return checkpointError(fmt.Errorf("model: flush checkpoint: %w", err), path)
	}
	if err := tmp.Close(); err != nil {
		return checkpointError(fmt.Errorf("model: close checkpoint: %w", err), path)
	}

	if err := os.Rename(tmpName, path); err != nil {
		return checkpointError(fmt.Errorf("model: replace %s: %w", path, err), path)
	}
	return nil
}

// Load restores parameters saved by Save into m. Names and shapes must match.
func Load(path string, m Model) error {
	f, err := os.Open(path) //nolint:gosec // path derived from model_dir
	if err != nil {
		return checkpointError(fmt.Errorf("model: open checkpoint: %w", err), path)
	}
	defer f.Close()

	if err := readParams(bufio.NewReader(f), m.Params()); err != nil {
		return checkpointError(err, path)
	}
	return nil
}

func checkpointError(err error, path string) error {
	return errors.New(err).
		Category(errors.CategoryCheckpoint).
		Component("model").
		FileContext(path).
		Build()
}

func writeParams(w io.Writer, params []*Param) error {
	if _, err := io.WriteString(w, checkpointMagic); err != nil {
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, checkpointVersion); err != nil {
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, uint32(len(params))); err != nil {
		return err
	}
	for _, p := range params {
		if err := binary.Write(w, binary.LittleEndian, uint32(len(p.Name))); err != nil {
			return err
		}
		if _, err := io.WriteString(w, p.Name); err != nil {
			return err
		}
		if _, err := p.Value.MarshalBinaryTo(w); err != nil {
			return fmt.Errorf("model: encode %s: %w", p.Name, err)
		}
	}
	return nil
}

func readParams(r io.Reader, params []*Param) error {
	magic := make([]byte, len(checkpointMagic))
	if _, err := io.ReadFull(r, magic); err != nil || string(magic) != checkpointMagic {
		return fmt.Errorf("model: not a checkpoint file")
	}

	var version, count uint32
	if err := binary.Read(r, binary.LittleEndian, &version); err != nil {
		return fmt.Errorf("model: read version: %w", err)
	}
	if version != checkpointVersion {
		return fmt.Errorf("model: unsupported checkpoint version %d", version)
	}
	if err := binary.Read(r, binary.LittleEndian, &count); err != nil {
		return fmt.Errorf("model: read parameter count: %w", err)
	}
	if int(count) != len(params) {
		return fmt.Errorf("model: checkpoint has %d parameters, model has %d", count, len(params))
	}

	// decode everything before touching the model so a bad file changes nothing
	values := make([]*mat.Dense, len(params))
	for i, p := range params {
		var nameLen uint32
		if err := binary.Read(r, binary.LittleEndian, &nameLen); err != nil {
			return fmt.Errorf("model: read name length: %w", err)
		}
		if nameLen > 1<<10 {
			return fmt.Errorf("model: invalid name length %d", nameLen)
		}
		name := make([]byte, nameLen)
		if _, err := io.ReadFull(r, name); err != nil {
			return fmt.Errorf("model: read name: %w", err)
		}
		if string(name) != p.Name {
			return fmt.Errorf("model: parameter %d is %q in checkpoint, %q in model", i, name, p.Name)
		}

		var v mat.Dense
		if _, err := v.UnmarshalBinaryFrom(r); err != nil {
			return fmt.Errorf("model: decode %s: %w", p.Name, err)
		}
		vr, vc := v.Dims()
		pr, pc := p.Value.Dims()
		if vr != pr || vc != pc {
			return fmt.Errorf("model: %s is %dx%d in checkpoint, %dx%d in model", p.Name, vr, vc, pr, pc)
		}
		values[i] = &v
	}

	for i, p := range params {
		p.Value.Copy(values[i])
	}
	return nil
}
