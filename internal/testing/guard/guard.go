package guard

import (
	"os"
	"sync"
)

var once sync.Once

func init() {
	once.Do(func() {
		if os.Getenv("OPENBANK_TEST_MODE") == "" {
			_ = os.Setenv("OPENBANK_TEST_MODE", "1")
		}
	})
}
