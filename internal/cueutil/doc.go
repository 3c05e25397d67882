// SPDX-License-Identifier: MPL-2.0

// Package cueutil provides shared CUE parsing helpers.
//
// Every CUE-backed file format in labkit (the workbench config and the
// dependency registry metadata) goes through the same flow:
//
//  1. Compile the embedded schema
//  2. Compile user data and unify with the schema
//  3. Validate and decode into a Go struct
//
// # Usage
//
//	//go:embed config_schema.cue
//	var schemaBytes []byte
//
//	result, err := cueutil.Decode[Config](
//	    schemaBytes,
//	    userFileBytes,
//	    "#Config",
//	    cueutil.WithFilename("config.cue"),
//	)
//	if err != nil {
//	    return nil, err // error carries the CUE path of the bad field
//	}
//	return result.Value, nil
package cueutil
