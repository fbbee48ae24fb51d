// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package validation provides input validation for values that end up
// interpolated into Flux queries.
//
// The InfluxDB client has no parameter binding for bucket names or tag
// filters in the open source server, so anything user supplied must be
// checked against a strict pattern before it is formatted into a query.
package validation

import (
	"fmt"
	"regexp"
	"strings"
)

var (
	// deviceIDPattern matches Home Assistant style device and entity ids:
	// letters, digits, dot, underscore, hyphen and colon, up to 128 chars.
	deviceIDPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._:\-]{0,127}$`)

	// namePattern matches bucket, organization and measurement names.
	namePattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._\-]{0,63}$`)
)

// ValidateDeviceID checks a device id before it is used in a Flux filter.
//
// Example:
//
//	if err := validation.ValidateDeviceID(id); err != nil {
//	    return fmt.Errorf("invalid device id: %w", err)
//	}
func ValidateDeviceID(id string) error {
	if id == "" {
		return fmt.Errorf("device id cannot be empty")
	}
	if !deviceIDPattern.MatchString(id) {
		return fmt.Errorf("invalid device id format: %q (must be 1-128 alphanumeric chars, dots, underscores, colons or hyphens)", id)
	}
	return nil
}

// ValidateName checks a bucket, organization or measurement name. kind is
// only used in the error message.
func ValidateName(kind, name string) error {
	if name == "" {
		return fmt.Errorf("%s cannot be empty", kind)
	}
	if !namePattern.MatchString(name) {
		return fmt.Errorf("invalid %s format: %q (must be 1-64 alphanumeric chars, dots, underscores or hyphens)", kind, name)
	}
	return nil
}

// SanitizeDeviceID trims surrounding whitespace and validates the id.
// Ids are case sensitive and are not normalized further.
func SanitizeDeviceID(id string) (string, error) {
	trimmed := strings.TrimSpace(id)
	if err := ValidateDeviceID(trimmed); err != nil {
		return "", err
	}
	return trimmed, nil
}
