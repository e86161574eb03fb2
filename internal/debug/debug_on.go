//go:build debug

// Package debug provides a centralized, categorized debug logging system.
// Build with -tags debug to enable logging.
package debug

import (
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/justyntemme/fexplorer/internal/logging"
)

// Enabled indicates whether debug logging is active
const Enabled = true

// Category represents a debug logging category
type Category string

const (
	// Core categories
	APP     Category = "APP"     // Wiring, lifecycle, CLI
	FS      Category = "FS"      // Listing and mutations
	NOTIFY  Category = "NOTIFY"  // Change notifier publish/subscribe
	SESSION Category = "SESSION" // Listing session transitions
	WATCH   Category = "WATCH"   // fsnotify watcher
	STORE   Category = "STORE"   // Database operations
	JOBS    Category = "JOBS"    // Background copy jobs

	// Detailed subcategories (use sparingly - can be verbose)
	FS_ENTRY Category = "FS_ENTRY" // Individual entry processing (very verbose)
	FS_COPY  Category = "FS_COPY"  // Per-file copy steps
)

var (
	// enabledCategories controls which categories are active
	enabledCategories = map[Category]bool{
		APP:     true,
		FS:      true,
		NOTIFY:  true,
		SESSION: true,
		WATCH:   true,
		STORE:   true,
		JOBS:    true,
		// Verbose categories disabled by default
		FS_ENTRY: false,
		FS_COPY:  false,
	}
	categoryMu sync.RWMutex
)

func init() {
	// Format: FEXPLORER_DEBUG=FS,NOTIFY or FEXPLORER_DEBUG=all or FEXPLORER_DEBUG=none
	if env := os.Getenv("FEXPLORER_DEBUG"); env != "" {
		categoryMu.Lock()
		defer categoryMu.Unlock()

		env = strings.ToUpper(env)
		switch env {
		case "ALL":
			for cat := range enabledCategories {
				enabledCategories[cat] = true
			}
		case "NONE":
			for cat := range enabledCategories {
				enabledCategories[cat] = false
			}
		default:
			for cat := range enabledCategories {
				enabledCategories[cat] = false
			}
			for _, cat := range strings.Split(env, ",") {
				enabledCategories[Category(strings.TrimSpace(cat))] = true
			}
		}
	}
}

// Log logs a debug message for the specified category
func Log(cat Category, format string, args ...interface{}) {
	categoryMu.RLock()
	enabled := enabledCategories[cat]
	categoryMu.RUnlock()

	if !enabled {
		return
	}

	logging.Named("debug").Info(fmt.Sprintf(format, args...), logging.String("category", string(cat)))
}

// Enable enables a debug category
func Enable(cat Category) {
	categoryMu.Lock()
	enabledCategories[cat] = true
	categoryMu.Unlock()
}

// Disable disables a debug category
func Disable(cat Category) {
	categoryMu.Lock()
	enabledCategories[cat] = false
	categoryMu.Unlock()
}

// IsEnabled returns whether a category is enabled
func IsEnabled(cat Category) bool {
	categoryMu.RLock()
	defer categoryMu.RUnlock()
	return enabledCategories[cat]
}
