// Copyright (C) 2025-2026 CardinalHQ, Inc
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as
// published by the Free Software Foundation, version 3.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program. If not, see <http://www.gnu.org/licenses/>.

package delivery

import (
	"slices"

	mapset "github.com/deckarep/golang-set/v2"
)

// Platform names a publishing destination. The value is what clients send
// and what integrations.platform stores.
type Platform string

const (
	PlatformWordPress Platform = "wordpress"
	PlatformGhost     Platform = "ghost"
	PlatformWebflow   Platform = "webflow"
	PlatformShopify   Platform = "shopify"
	PlatformWebhook   Platform = "webhook"
)

var supportedPlatforms = mapset.NewThreadUnsafeSet(
	string(PlatformWordPress),
	string(PlatformGhost),
	string(PlatformWebflow),
	string(PlatformShopify),
	string(PlatformWebhook),
)

// SupportedPlatforms returns the platform names in sorted order.
func SupportedPlatforms() []string {
	out := supportedPlatforms.ToSlice()
	slices.Sort(out)
	return out
}

func IsSupportedPlatform(p string) bool {
	return supportedPlatforms.Contains(p)
}
