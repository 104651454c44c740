package cmdutil

import (
	"github.com/cockroachdb/cockroachdb-parser/pkg/sql/sem/tree"
	"github.com/cockroachdb/errors"
	"github.com/pgshift/pgshift/load"
	"github.com/pgshift/pgshift/migrate"
	"github.com/spf13/viper"
)

type tableOverride struct {
	Identity   string `mapstructure:"identity"`
	Strictness string `mapstructure:"strictness"`
	Truncate   *bool  `mapstructure:"truncate"`
}

// TableOverrides reads per-table load settings from the "tables" section of
// the config file, e.g.:
//
//	tables:
//	  audit_log:
//	    identity: regenerate
//	    strictness: lenient
//	    truncate: true
func TableOverrides() (map[tree.Name]migrate.TableOverride, error) {
	if !viper.IsSet("tables") {
		return nil, nil
	}
	raw := map[string]tableOverride{}
	if err := viper.UnmarshalKey("tables", &raw); err != nil {
		return nil, errors.Wrap(err, "parsing tables config")
	}
	ret := make(map[tree.Name]migrate.TableOverride, len(raw))
	for name, ov := range raw {
		var out migrate.TableOverride
		switch ov.Identity {
		case "":
		case "preserve":
			mode := load.IdentityPreserve
			out.Identity = &mode
		case "regenerate":
			mode := load.IdentityRegenerate
			out.Identity = &mode
		default:
			return nil, errors.Newf("table %s: unknown identity mode %q", name, ov.Identity)
		}
		switch ov.Strictness {
		case "":
		case "strict":
			s := load.Strict
			out.Strictness = &s
		case "lenient":
			s := load.Lenient
			out.Strictness = &s
		default:
			return nil, errors.Newf("table %s: unknown strictness %q", name, ov.Strictness)
		}
		out.Truncate = ov.Truncate
		ret[tree.Name(name)] = out
	}
	return ret, nil
}
