package file

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

var errInvalidID = errors.New("id contains invalid characters")

// collection stores one JSON document per id under dir.
type collection[T any] struct {
	dir string
}

func newCollection[T any](root string, parts ...string) collection[T] {
	return collection[T]{dir: filepath.Join(append([]string{root}, parts...)...)}
}

func validateID(id string) error {
	if id == "" {
		return errors.New("id cannot be empty")
	}

	if strings.Contains(id, "..") || strings.ContainsAny(id, `/\`) {
		return fmt.Errorf("%w: %q", errInvalidID, id)
	}

	return nil
}

func (c collection[T]) path(id string) string {
	return filepath.Join(c.dir, id+".json")
}

// read returns fs.ErrNotExist when the document is missing.
func (c collection[T]) read(id string) (*T, error) {
	if err := validateID(id); err != nil {
		return nil, err
	}

	body, err := os.ReadFile(c.path(id))
	if err != nil {
		return nil, err
	}

	var value T

	err = json.Unmarshal(body, &value)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal %s: %w", c.path(id), err)
	}

	return &value, nil
}

func (c collection[T]) write(id string, value *T) error {
	if err := validateID(id); err != nil {
		return err
	}

	err := os.MkdirAll(c.dir, 0o750)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", c.dir, err)
	}

	data, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", id, err)
	}

	tmp := c.path(id) + ".tmp"

	err = os.WriteFile(tmp, data, 0o600)
	if err != nil {
		return fmt.Errorf("failed to write %s: %w", id, err)
	}

	return os.Rename(tmp, c.path(id))
}

func (c collection[T]) remove(id string) error {
	if err := validateID(id); err != nil {
		return err
	}

	return os.Remove(c.path(id))
}

func (c collection[T]) all() ([]*T, error) {
	names, err := fs.Glob(os.DirFS(c.dir), "*.json")
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", c.dir, err)
	}

	values := make([]*T, 0, len(names))

	for _, name := range names {
		value, err := c.read(strings.TrimSuffix(name, ".json"))
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}

		if err != nil {
			return nil, err
		}

		values = append(values, value)
	}

	return values, nil
}

func notFound(err, sentinel error) error {
	if errors.Is(err, fs.ErrNotExist) {
		return sentinel
	}

	return err
}
