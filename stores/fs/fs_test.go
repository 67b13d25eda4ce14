package fs_test

import (
	"testing"

	sa "github.com/panyam/siteauth"
	"github.com/panyam/siteauth/stores/fs"
	"github.com/panyam/siteauth/stores/storetest"
)

func TestFSAdapter(t *testing.T) {
	storetest.RunAdapterTests(t, func(t *testing.T) sa.Adapter {
		return fs.NewFSAdapter(t.TempDir())
	})
}
