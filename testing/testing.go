// Package testing configures the process for unit tests. Importing it for
// side effects switches the application into test mode before any package
// level initialisation reads the flag.
package testing

import (
	"os"

	"github.com/kilnstock/kilnstock/internal/app"
)

func init() {
	_ = os.Setenv("KILNSTOCK_TEST_MODE", "1")
	app.RefreshTestMode()
}
