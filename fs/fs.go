// Package appfs embeds the static assets shipped with every binary: SQL migrations, email templates and seed data.
package appfs

import "embed"

//go:embed migrations/*.sql templates/email/*.txt seeds/*.yaml
var FS embed.FS

// DefaultSeed is the dataset loaded by the admin seed command when no file is given.
const DefaultSeed = "seeds/default.yaml"
