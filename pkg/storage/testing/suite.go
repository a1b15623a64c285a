package testing

import (
	"context"
	"testing"

	"github.com/marmos91/dittovfs/pkg/storage"
)

// BackendTestSuite is a comprehensive test suite for storage.Backend
// implementations. It tests the interface contract, not implementation
// details, so every backend (memory, local, S3, ...) runs the same checks.
//
// Usage:
//
//	func TestMyBackend(t *testing.T) {
//	    suite := &storagetesting.BackendTestSuite{
//	        NewBackend: func(t *testing.T) storage.Backend {
//	            return mybackend.New(t.TempDir())
//	        },
//	    }
//	    suite.Run(t)
//	}
type BackendTestSuite struct {
	// NewBackend creates a fresh, empty backend for each test.
	NewBackend func(t *testing.T) storage.Backend
}

// Run executes all tests in the suite.
func (suite *BackendTestSuite) Run(t *testing.T) {
	t.Run("Identity", suite.RunIdentityTests)
	t.Run("Directories", suite.RunDirectoryTests)
	t.Run("Contents", suite.RunContentTests)
	t.Run("OpenModes", suite.RunOpenModeTests)
	t.Run("Rename", suite.RunRenameTests)
}

func testContext() context.Context {
	return context.Background()
}
