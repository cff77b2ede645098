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

package apiauth

import (
	"bytes"
	"fmt"
	"os"
	"strings"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
)

// StaticKey is a service credential configured outside the database. It
// acts as UserID with Role in the listed organizations; "*" means all.
type StaticKey struct {
	Name          string   `yaml:"name"`
	Key           string   `yaml:"key"`
	UserID        string   `yaml:"user_id"`
	Role          Role     `yaml:"role"`
	Organizations []string `yaml:"organizations"`
}

type keyFile struct {
	Keys []StaticKey `yaml:"keys"`
}

// LoadKeyFile reads static keys from filename, or from the environment
// variable VAR when filename is "env:VAR". A missing file yields no keys.
// Key values may themselves be "env:VAR".
func LoadKeyFile(filename string) ([]StaticKey, error) {
	if filename == "" {
		return nil, nil
	}
	if envVar, ok := strings.CutPrefix(filename, "env:"); ok {
		contents := os.Getenv(envVar)
		if contents == "" {
			return nil, fmt.Errorf("environment variable %s is not set", envVar)
		}
		return parseKeyFile(filename, []byte(contents))
	}

	contents, err := os.ReadFile(filename)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read api keys from file %s: %w", filename, err)
	}
	return parseKeyFile(filename, contents)
}

func parseKeyFile(filename string, contents []byte) ([]StaticKey, error) {
	var kf keyFile
	dec := yaml.NewDecoder(bytes.NewReader(contents))
	dec.KnownFields(true)
	if err := dec.Decode(&kf); err != nil {
		return nil, fmt.Errorf("failed to unmarshal api keys from file %s: %w", filename, err)
	}

	for i := range kf.Keys {
		k := &kf.Keys[i]
		if envVar, ok := strings.CutPrefix(k.Key, "env:"); ok {
			k.Key = os.Getenv(envVar)
		}
		if k.Key == "" {
			return nil, fmt.Errorf("api key %q in %s has no key value", k.Name, filename)
		}
		if k.UserID == "" {
			k.UserID = "service:" + k.Name
		}
		if k.Role == "" {
			k.Role = RoleMember
		}
		if !k.Role.Valid() {
			return nil, fmt.Errorf("api key %q in %s has unknown role %q", k.Name, filename, k.Role)
		}
		for _, org := range k.Organizations {
			if org == "*" {
				continue
			}
			if _, err := uuid.Parse(org); err != nil {
				return nil, fmt.Errorf("api key %q in %s: bad organization %q", k.Name, filename, org)
			}
		}
	}
	return kf.Keys, nil
}

func (k StaticKey) roleIn(orgID uuid.UUID) (Role, bool) {
	for _, org := range k.Organizations {
		if org == "*" || org == orgID.String() {
			return k.Role, true
		}
	}
	return "", false
}
