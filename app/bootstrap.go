// app/bootstrap.go
package app

import (
	"context"

	"library_by_email/db"
)

// BootstrapCatalog seeds an empty catalog at startup when SEED_ON_START is
// set, from SEED_FILE or the built-in default books.
func (a *App) BootstrapCatalog(ctx context.Context) {
	if !a.Config.SeedOnStart {
		return
	}
	seed := db.DefaultSeed
	if a.Config.SeedFile != "" {
		s, err := db.LoadSeedFile(a.Config.SeedFile)
		if err != nil {
			a.Logger.Error("bootstrap: seed file", "path", a.Config.SeedFile, "error", err)
			return
		}
		seed = s
	}
	added, err := a.Repo.SeedBooks(ctx, seed)
	if err != nil {
		a.Logger.Error("bootstrap: seed catalog", "error", err)
		return
	}
	if len(added) > 0 {
		a.Logger.Info("bootstrap: catalog seeded", "books", len(added))
	}
}
