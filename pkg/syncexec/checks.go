package syncexec

import (
	"fmt"
	"os"

	"github.com/paulschiretz/pgl-series/pkg/runerr"
	"github.com/paulschiretz/pgl-series/pkg/util"
)

// CheckSources fails with EmptySource when a source is missing or is an empty
// directory. A regular file is a valid source.
func CheckSources(sources []string) error {
	if len(sources) == 0 {
		return runerr.Newf(runerr.InvalidRequest, "check sources", "no sources given")
	}
	for _, src := range sources {
		info, err := os.Stat(src)
		if err != nil {
			if os.IsNotExist(err) {
				return runerr.Newf(runerr.EmptySource, "check sources", "source %s does not exist", src)
			}
			return runerr.New(runerr.EmptySource, "check sources", fmt.Errorf("cannot access source %s: %w", src, err))
		}
		if info.Mode().IsRegular() {
			continue
		}
		if !info.IsDir() {
			return runerr.Newf(runerr.EmptySource, "check sources", "source %s is neither a file nor a directory", src)
		}
		empty, err := util.IsDirEmpty(src)
		if err != nil {
			return runerr.New(runerr.EmptySource, "check sources", fmt.Errorf("cannot read source %s: %w", src, err))
		}
		if empty {
			return runerr.Newf(runerr.EmptySource, "check sources",
				"source %s is an empty directory; an unmounted source would empty the snapshot", src)
		}
	}
	return nil
}
