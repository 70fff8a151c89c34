package scenario

import (
	"fmt"
	"maps"
	"sync"
)

// Locations holds the URL of the swap for every actor. The URLs of the two
// actors usually differ since each has its own cnd.
type Locations struct {
	lock sync.RWMutex
	urls map[string]string
}

func NewLocations() *Locations {
	return &Locations{urls: make(map[string]string)}
}

// Set fails if actor already has a location.
func (locations *Locations) Set(actor string, url string) error {
	locations.lock.Lock()
	defer locations.lock.Unlock()
	if existing, ok := locations.urls[actor]; ok {
		return fmt.Errorf("location of %s is already set to %s", actor, existing)
	}
	locations.urls[actor] = url
	return nil
}

func (locations *Locations) Get(actor string) (string, bool) {
	locations.lock.RLock()
	defer locations.lock.RUnlock()
	url, ok := locations.urls[actor]
	return url, ok
}

func (locations *Locations) All() map[string]string {
	locations.lock.RLock()
	defer locations.lock.RUnlock()
	return maps.Clone(locations.urls)
}
