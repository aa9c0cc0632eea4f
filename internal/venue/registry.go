package venue

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Settings is the per-venue slice of configuration handed to a
// constructor. Drivers ignore fields they have no use for.
type Settings struct {
	Name           string
	Driver         string
	BaseURL        string
	APIKey         string
	APISecret      string
	PrivateKey     string
	WalletAddress  string
	TimeoutSeconds int
	Testnet        bool
}

// Constructor builds an Adapter from its settings.
type Constructor func(Settings) (Adapter, error)

var (
	driversMu sync.RWMutex
	drivers   = make(map[string]Constructor)
)

// Register makes a venue driver available under the given config name.
// Drivers call this from init; duplicate names panic early rather than
// silently shadowing one another.
func Register(driver string, ctor Constructor) {
	driver = strings.ToLower(strings.TrimSpace(driver))
	if driver == "" || ctor == nil {
		panic("venue: Register with empty driver or nil constructor")
	}
	driversMu.Lock()
	defer driversMu.Unlock()
	if _, dup := drivers[driver]; dup {
		panic(fmt.Sprintf("venue: driver %q registered twice", driver))
	}
	drivers[driver] = ctor
}

// New constructs the adapter named by s.Driver.
func New(s Settings) (Adapter, error) {
	driver := strings.ToLower(strings.TrimSpace(s.Driver))
	driversMu.RLock()
	ctor, ok := drivers[driver]
	driversMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unsupported venue driver: %q (registered: %s)", s.Driver, strings.Join(Drivers(), ", "))
	}
	return ctor(s)
}

// Drivers lists the registered driver names, sorted.
func Drivers() []string {
	driversMu.RLock()
	defer driversMu.RUnlock()
	out := make([]string, 0, len(drivers))
	for name := range drivers {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}
