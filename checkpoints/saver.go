package checkpoints

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Saver writes checkpoints into a directory, one file per save. Files are
// written to a temporary name and renamed into place so a crash mid-write
// never leaves a truncated checkpoint behind.
type Saver struct {
	dir    string
	format Format
}

// NewSaver creates the checkpoint directory if needed and returns a saver
// for the given format.
func NewSaver(dir string, format Format) (*Saver, error) {
	if dir == "" {
		return nil, fmt.Errorf("checkpoint directory must not be empty")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create checkpoint directory: %v", err)
	}
	return &Saver{dir: dir, format: format}, nil
}

// Format returns the saver's serialization format.
func (s *Saver) Format() Format { return s.format }

// Save writes a checkpoint under the given base name and returns the full
// path of the written file.
func (s *Saver) Save(c *Checkpoint, name string) (string, error) {
	if name == "" {
		return "", fmt.Errorf("checkpoint name must not be empty")
	}

	data, err := Encode(c, s.format)
	if err != nil {
		return "", err
	}

	path := filepath.Join(s.dir, name+s.format.Ext())
	tmp, err := os.CreateTemp(s.dir, name+".tmp-*")
	if err != nil {
		return "", fmt.Errorf("failed to create temporary checkpoint file: %v", err)
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return "", fmt.Errorf("failed to write checkpoint: %v", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return "", fmt.Errorf("failed to close checkpoint file: %v", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return "", fmt.Errorf("failed to finalize checkpoint: %v", err)
	}
	return path, nil
}

// Load reads a checkpoint from disk, inferring the format from the file
// extension.
func Load(path string) (*Checkpoint, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read checkpoint: %v", err)
	}
	format := FormatJSON
	if strings.EqualFold(filepath.Ext(path), FormatBinary.Ext()) {
		format = FormatBinary
	}
	return Decode(data, format)
}

// Encode serializes a checkpoint in the given format.
func Encode(c *Checkpoint, format Format) ([]byte, error) {
	switch format {
	case FormatJSON:
		data, err := json.MarshalIndent(c, "", "  ")
		if err != nil {
			return nil, fmt.Errorf("failed to encode checkpoint as JSON: %v", err)
		}
		return data, nil
	case FormatBinary:
		return encodeBinary(c)
	default:
		return nil, fmt.Errorf("unsupported checkpoint format: %s", format)
	}
}

// Decode deserializes a checkpoint from the given format.
func Decode(data []byte, format Format) (*Checkpoint, error) {
	switch format {
	case FormatJSON:
		var c Checkpoint
		if err := json.Unmarshal(data, &c); err != nil {
			return nil, fmt.Errorf("failed to decode JSON checkpoint: %v", err)
		}
		return &c, nil
	case FormatBinary:
		return decodeBinary(data)
	default:
		return nil, fmt.Errorf("unsupported checkpoint format: %s", format)
	}
}
