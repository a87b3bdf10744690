package campaign

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// Library loads campaign modules from a directory tree and caches parsed
// campaigns per (module_id, world_id). It is safe for concurrent use.
//
// On-disk layout, resolved in order:
//
//	<dir>/<world_id>/<module_id>.yaml
//	<dir>/<module_id>.yaml
//
// The world-scoped path lets a world override a shared module of the same
// ID. Modules are parsed and validated once; subsequent loads return the
// cached campaign.
type Library struct {
	dir string

	mu    sync.RWMutex
	cache map[libraryKey]*Campaign
}

type libraryKey struct {
	moduleID string
	worldID  string
}

// NewLibrary creates a library rooted at dir. The directory need not exist
// yet; missing modules surface on Load.
func NewLibrary(dir string) *Library {
	return &Library{
		dir:   dir,
		cache: make(map[libraryKey]*Campaign),
	}
}

// Load returns the campaign for (moduleID, worldID), reading and validating
// the module file on first use.
func (l *Library) Load(moduleID, worldID string) (*Campaign, error) {
	if moduleID == "" {
		return nil, fmt.Errorf("campaign: module id must not be empty")
	}
	key := libraryKey{moduleID: moduleID, worldID: worldID}

	l.mu.RLock()
	c, ok := l.cache[key]
	l.mu.RUnlock()
	if ok {
		return c, nil
	}

	path, err := l.resolve(moduleID, worldID)
	if err != nil {
		return nil, err
	}
	mf, err := LoadModuleFile(path)
	if err != nil {
		return nil, err
	}
	c, err = NewCampaign(mf)
	if err != nil {
		return nil, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	// A concurrent load may have won; keep the first cached value so all
	// sessions share one immutable campaign.
	if existing, ok := l.cache[key]; ok {
		return existing, nil
	}
	l.cache[key] = c
	return c, nil
}

// Evict drops a cached campaign, forcing a re-read on next Load. Intended
// for content iteration during development.
func (l *Library) Evict(moduleID, worldID string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.cache, libraryKey{moduleID: moduleID, worldID: worldID})
}

// resolve finds the module file on disk, preferring the world-scoped path.
func (l *Library) resolve(moduleID, worldID string) (string, error) {
	candidates := []string{}
	if worldID != "" {
		candidates = append(candidates, filepath.Join(l.dir, worldID, moduleID+".yaml"))
	}
	candidates = append(candidates, filepath.Join(l.dir, moduleID+".yaml"))

	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
	}
	return "", fmt.Errorf("campaign: module %q (world %q) not found under %s", moduleID, worldID, l.dir)
}
