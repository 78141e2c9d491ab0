package git

import (
	"os"
	"sort"
	"strings"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/util"
	gogit "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/filemode"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/pkg/errors"
	goerrors "gopkg.in/src-d/go-errors.v1"
)

// ErrConflict is returned when restoring a stash touches a path that also
// changed between the stash base and the current HEAD.
var ErrConflict = goerrors.NewKind("merge conflict in %s")

type fileVersion struct {
	hash    plumbing.Hash
	mode    filemode.FileMode
	content string
}

func (v fileVersion) same(o fileVersion) bool {
	return v.hash == o.hash && v.mode == o.mode
}

// write puts v at path with its mode. Symlinks are recreated as links.
func (v fileVersion) write(fs billy.Filesystem, path string) error {
	if v.mode == filemode.Symlink {
		if err := fs.Remove(path); err != nil && !os.IsNotExist(err) {
			return err
		}
		return fs.Symlink(v.content, path)
	}
	perm, err := v.mode.ToOSFileMode()
	if err != nil || v.mode == filemode.Empty {
		perm = 0644
	}
	if err := util.WriteFile(fs, path, []byte(v.content), perm.Perm()); err != nil {
		return err
	}
	// WriteFile only applies perm on create.
	if ch, ok := fs.(billy.Change); ok {
		if err := ch.Chmod(path, perm.Perm()); err != nil && err != billy.ErrNotSupported {
			return err
		}
	}
	return nil
}

func fileAt(c *object.Commit, path string) (fileVersion, error) {
	if c == nil {
		return fileVersion{}, nil
	}
	f, err := c.File(path)
	if err == object.ErrFileNotFound {
		return fileVersion{}, nil
	} else if err != nil {
		return fileVersion{}, err
	}
	content, err := f.Contents()
	if err != nil {
		return fileVersion{}, err
	}
	return fileVersion{hash: f.Hash, mode: f.Mode, content: content}, nil
}

// Merge3Way applies the changes from base to theirs onto a working tree that
// holds ours, file by file:
//
//   - unchanged in ours: take theirs (including deletion)
//   - unchanged in theirs, or same change on both sides: keep ours
//   - changed differently on both sides: write conflict markers, leave unstaged
func Merge3Way(w *gogit.Worktree, base, ours, theirs *object.Commit) error {
	paths := make(map[string]struct{})
	for _, c := range []*object.Commit{base, ours, theirs} {
		if c == nil {
			continue
		}
		iter, err := c.Files()
		if err != nil {
			return errors.Wrapf(err, "list files of %s", c.Hash)
		}
		err = iter.ForEach(func(f *object.File) error {
			paths[f.Name] = struct{}{}
			return nil
		})
		if err != nil {
			return err
		}
	}

	var conflicts []string
	for path := range paths {
		b, err := fileAt(base, path)
		if err != nil {
			return err
		}
		o, err := fileAt(ours, path)
		if err != nil {
			return err
		}
		t, err := fileAt(theirs, path)
		if err != nil {
			return err
		}

		switch {
		case o.same(t), b.same(t):
			continue
		case b.same(o) && t.hash.IsZero():
			if err := w.Filesystem.Remove(path); err != nil && !os.IsNotExist(err) {
				return errors.Wrapf(err, "remove %s", path)
			}
			if _, err := w.Remove(path); err != nil {
				return errors.Wrapf(err, "stage removal of %s", path)
			}
		case b.same(o):
			if err := t.write(w.Filesystem, path); err != nil {
				return errors.Wrapf(err, "write %s", path)
			}
			if _, err := w.Add(path); err != nil {
				return errors.Wrapf(err, "stage %s", path)
			}
		default:
			conflicts = append(conflicts, path)
			marked := "<<<<<<< HEAD\n" + o.content + "=======\n" + t.content + ">>>>>>> " + theirs.Hash.String()[:7] + "\n"
			conflicted := fileVersion{mode: filemode.Regular, content: marked}
			if o.mode == filemode.Executable {
				conflicted.mode = o.mode
			}
			if err := conflicted.write(w.Filesystem, path); err != nil {
				return errors.Wrapf(err, "write %s", path)
			}
		}
	}

	if len(conflicts) > 0 {
		sort.Strings(conflicts)
		return ErrConflict.New(strings.Join(conflicts, ", "))
	}
	return nil
}
