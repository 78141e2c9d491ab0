package git

import (
	"time"

	"github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing/object"
)

// signature returns the identity used for stash commits: the repository's
// user.name/user.email, then the global config, then a fixed fallback.
func (r *Repository) signature() *object.Signature {
	sig := &object.Signature{Name: "retcon", Email: "retcon@localhost", When: time.Now()}

	cfg, err := r.repo.ConfigScoped(config.GlobalScope)
	if err != nil {
		return sig
	}
	if cfg.User.Name != "" {
		sig.Name = cfg.User.Name
	}
	if cfg.User.Email != "" {
		sig.Email = cfg.User.Email
	}
	return sig
}
