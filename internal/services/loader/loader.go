// Package loader triggers service and interceptor registration via blank imports.
package loader

import (
	_ "github.com/MahdiBaghbani/familyagenda-go/internal/interceptors/ratelimit"
	_ "github.com/MahdiBaghbani/familyagenda-go/internal/services/api"
	_ "github.com/MahdiBaghbani/familyagenda-go/internal/services/offline"
)
