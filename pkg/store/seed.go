package store

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/nat-king-15/Master-Extractor-Bot/pkg/interfaces"
	"github.com/nat-king-15/Master-Extractor-Bot/pkg/logging"
)

// SeedAppxAPIs loads the bundled API directory file, a JSON array of
// {"name", "api"} objects, into the store. Existing entries win; the
// file only fills gaps. A missing file is not an error.
func SeedAppxAPIs(ctx context.Context, s interfaces.Store, path string, log *logging.Logger) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read seed file: %w", err)
	}

	var list []struct {
		Name string `json:"name"`
		API  string `json:"api"`
	}
	if err := json.Unmarshal(raw, &list); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}

	seeded := 0
	for _, item := range list {
		if item.Name == "" || item.API == "" {
			continue
		}
		if _, err := s.GetAppxAPI(ctx, item.Name); err == nil {
			continue
		}
		if err := s.SetAppxAPI(ctx, item.Name, item.API); err != nil {
			return err
		}
		seeded++
	}
	if seeded > 0 {
		log.Info("seeded APPX API directory", "count", seeded, "file", path)
	}
	return nil
}
