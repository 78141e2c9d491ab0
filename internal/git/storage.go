package git

import (
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/storage"
	"github.com/go-git/go-git/v5/storage/memory"

	"github.com/kurobon/retcon/internal/rewrite"
	"github.com/kurobon/retcon/internal/state"
)

// OverlayStorer writes objects to a private in-memory store and reads through
// to the repository for anything it does not hold. References, config and
// index come from the overlay, so nothing written through it is visible to
// the repository.
type OverlayStorer struct {
	storage.Storer // overlay
	Base           storage.Storer
}

func NewOverlayStorer(base storage.Storer) *OverlayStorer {
	return &OverlayStorer{
		Storer: memory.NewStorage(),
		Base:   base,
	}
}

func (s *OverlayStorer) EncodedObject(t plumbing.ObjectType, h plumbing.Hash) (plumbing.EncodedObject, error) {
	obj, err := s.Storer.EncodedObject(t, h)
	if err == nil {
		return obj, nil
	}
	return s.Base.EncodedObject(t, h)
}

func (s *OverlayStorer) EncodedObjectSize(h plumbing.Hash) (int64, error) {
	sz, err := s.Storer.EncodedObjectSize(h)
	if err == nil {
		return sz, nil
	}
	return s.Base.EncodedObjectSize(h)
}

func (s *OverlayStorer) HasEncodedObject(h plumbing.Hash) error {
	if err := s.Storer.HasEncodedObject(h); err == nil {
		return nil
	}
	return s.Base.HasEncodedObject(h)
}

// overlayWriter is the CommitWriter handed out for dry runs.
type overlayWriter struct {
	objects *OverlayStorer
}

func (w *overlayWriter) WriteCommit(tree plumbing.Hash, parents []plumbing.Hash, author, committer state.Signature, message string) (plumbing.Hash, error) {
	return writeCommit(w.objects, tree, parents, author, committer, message)
}

// DryRun returns a writer whose commits land in a throwaway overlay. The
// identities it reports are the ones a real write would produce.
func (r *Repository) DryRun() rewrite.CommitWriter {
	return &overlayWriter{objects: NewOverlayStorer(r.repo.Storer)}
}
