// Package schema embeds the SQL migrations and seed files applied by
// the migrate command and by development startup.
package schema

import "embed"

//go:embed migrations seeds
var Files embed.FS
