// Sessionrec - Event Session Recommendation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/sessionrec

package config

import (
	"fmt"

	"github.com/tomtom215/sessionrec/internal/validation"
)

// Validate checks struct tags and then cross-field rules.
func (c *Config) Validate() error {
	if verr := validation.ValidateStruct(c); verr != nil {
		return verr
	}

	if err := c.validateStore(); err != nil {
		return err
	}
	if err := c.validateOutput(); err != nil {
		return err
	}
	if err := c.EmbeddingClient().Validate(); err != nil {
		return err
	}
	return c.Recommendation().Validate()
}

func (c *Config) validateStore() error {
	if c.Store.Backend != BackendNeo4j {
		return nil
	}
	if c.Store.Neo4j.URI == "" {
		return fmt.Errorf("NEO4J_URI is required when STORE_BACKEND=neo4j")
	}
	if c.Store.Neo4j.Username == "" {
		return fmt.Errorf("NEO4J_USERNAME is required when STORE_BACKEND=neo4j")
	}
	return nil
}

func (c *Config) validateOutput() error {
	if (c.Output.JSON || c.Output.CSV) && c.Output.Dir == "" {
		return fmt.Errorf("OUTPUT_DIR is required when JSON or CSV output is enabled")
	}
	return nil
}
