// Package loader registers store drivers via blank imports.
package loader

import (
	_ "github.com/MahdiBaghbani/familyagenda-go/internal/platform/store/memory"
	_ "github.com/MahdiBaghbani/familyagenda-go/internal/platform/store/mirror"
	_ "github.com/MahdiBaghbani/familyagenda-go/internal/platform/store/sqlite"
)
