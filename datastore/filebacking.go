package datastore

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/pkg/errors"

	"github.com/yangwire/ncbackend/xtree"
)

// FileBacking persists each named datastore as its own file under dir, the
// "-b <dir>" layout of the backend's datastore directory option. One file
// per Name, named "<name>.xml", written atomically (temp file plus
// rename) so a crash mid-write never leaves a half-written datastore on
// disk.
type FileBacking struct {
	dir string
}

// NewFileBacking constructs a FileBacking rooted at dir, creating dir if it
// does not already exist.
func NewFileBacking(dir string) (*FileBacking, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, errors.Wrap(err, "datastore: create datastore directory")
	}
	return &FileBacking{dir: dir}, nil
}

func (b *FileBacking) pathFor(name Name) string {
	return filepath.Join(b.dir, fmt.Sprintf("%s.xml", name))
}

// Load reads name's file and parses it as an xtree.Element; ok is false if
// the file does not exist yet (a fresh datastore with no persisted state).
func (b *FileBacking) Load(name Name) (*xtree.Element, bool) {
	f, err := os.Open(b.pathFor(name))
	if err != nil {
		return nil, false
	}
	defer f.Close()
	el, err := xtree.Parse(f)
	if err != nil {
		return nil, false
	}
	return el, true
}

// Save renders root and writes it to name's file, via a temp file in the
// same directory renamed into place so readers never observe a partial
// write.
func (b *FileBacking) Save(name Name, root *xtree.Element) error {
	body, err := xtree.Render(root)
	if err != nil {
		return errors.Wrap(err, "datastore: render datastore for save")
	}
	target := b.pathFor(name)
	tmp, err := os.CreateTemp(b.dir, fmt.Sprintf(".%s-*.tmp", name))
	if err != nil {
		return errors.Wrap(err, "datastore: create temp file")
	}
	tmpPath := tmp.Name()
	if _, err := tmp.WriteString(body); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return errors.Wrap(err, "datastore: write temp file")
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return errors.Wrap(err, "datastore: close temp file")
	}
	if err := os.Rename(tmpPath, target); err != nil {
		os.Remove(tmpPath)
		return errors.Wrap(err, "datastore: rename temp file into place")
	}
	return nil
}

// Remove deletes name's file, if present; removing an already-absent file
// is not an error.
func (b *FileBacking) Remove(name Name) error {
	if err := os.Remove(b.pathFor(name)); err != nil && !os.IsNotExist(err) {
		return errors.Wrap(err, "datastore: remove datastore file")
	}
	return nil
}
