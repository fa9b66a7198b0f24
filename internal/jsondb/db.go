// Package jsondb implements a simple database of JSON documents, backed by
// the file system.
//
// It supports two operations: Read() and Write(). Their signatures mirror
// those of json.Unmarshal() and json.Marshal():
//
//	err := db.Write("my-string", "octopus")
//
//	var v string
//	exists, err := db.Read("my-string", &v)
//
// Documents are stored as `<name>.json` in the database directory. Writes
// are atomic: a document is written to a temporary file first and renamed
// into place.
//
// The database makes no attempt at locking: concurrent writers of the same
// document race, last rename wins. Readers never observe partial documents.
package jsondb

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

type JSONDatabase struct {
	dir  string
	perm os.FileMode
}

// New creates a new JSONDatabase in `dir`. Each document that is saved to
// it will have a file mode of `perm`.
func New(dir string, perm os.FileMode) *JSONDatabase {
	return &JSONDatabase{dir, perm}
}

// Read reads the value from the document `name` into `document`. It returns
// false if the document does not exist.
func (db *JSONDatabase) Read(name string, document interface{}) (bool, error) {
	f, err := os.Open(filepath.Join(db.dir, name+".json"))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("error accessing db file %s: %v", name, err)
	}
	defer f.Close()

	err = json.NewDecoder(f).Decode(&document)
	if err != nil {
		return false, fmt.Errorf("error reading db file %s: %v", name, err)
	}

	return true, nil
}

// List returns the names of all documents in the database, in directory
// order. A missing database directory is an empty database.
func (db *JSONDatabase) List() ([]string, error) {
	infos, err := os.ReadDir(db.dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return []string{}, nil
		}
		return nil, fmt.Errorf("error listing db directory %s: %v", db.dir, err)
	}
	names := make([]string, 0, len(infos))
	for _, info := range infos {
		if info.IsDir() || strings.HasPrefix(info.Name(), ".") {
			continue
		}
		if name := strings.TrimSuffix(info.Name(), ".json"); name != info.Name() {
			names = append(names, name)
		}
	}
	return names, nil
}

// Write writes `document` to the document `name`, replacing any previous
// version.
func (db *JSONDatabase) Write(name string, document interface{}) error {
	return writeFileAtomically(db.dir, name+".json", db.perm, func(f *os.File) error {
		return json.NewEncoder(f).Encode(document)
	})
}

// Delete removes the document `name`. Deleting a missing document is not an
// error.
func (db *JSONDatabase) Delete(name string) error {
	err := os.Remove(filepath.Join(db.dir, name+".json"))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("error deleting db file %s: %v", name, err)
	}
	return nil
}

// writeFileAtomically writes data to a temporary file in `dir` through
// `write` and renames it to `filename` once it is complete.
func writeFileAtomically(dir, filename string, mode os.FileMode, write func(f *os.File) error) error {
	tmpfile, err := os.CreateTemp(dir, "."+filename+"-*.tmp")
	if err != nil {
		return err
	}

	// Remove the temporary file on all error paths. After a successful
	// rename it no longer exists under that name.
	defer func() {
		_ = os.Remove(tmpfile.Name())
	}()

	err = write(tmpfile)
	if err != nil {
		tmpfile.Close()
		return err
	}

	err = tmpfile.Chmod(mode)
	if err != nil {
		tmpfile.Close()
		return err
	}

	err = tmpfile.Sync()
	if err != nil {
		tmpfile.Close()
		return err
	}

	err = tmpfile.Close()
	if err != nil {
		return err
	}

	return os.Rename(tmpfile.Name(), filepath.Join(dir, filename))
}
