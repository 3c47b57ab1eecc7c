package config

import (
	"fmt"
	"strings"
)

// validSSLModes are the sslmode values accepted by libpq/pgx.
var validSSLModes = map[string]bool{
	"disable":     true,
	"allow":       true,
	"prefer":      true,
	"require":     true,
	"verify-ca":   true,
	"verify-full": true,
}

// Validate checks the configuration for values that would fail at runtime.
// It returns the first problem found, wrapped around a sentinel error.
func (c *Config) Validate() error {
	if c == nil {
		return ErrConfigNil
	}

	if strings.TrimSpace(c.PostgresHost) == "" {
		return fmt.Errorf("%w: host must not be empty", ErrInvalidPostgresHost)
	}
	if c.PostgresPort < 1 || c.PostgresPort > 65535 {
		return fmt.Errorf("%w: %d (must be 1-65535)", ErrInvalidPostgresPort, c.PostgresPort)
	}
	if strings.TrimSpace(c.PostgresDBName) == "" {
		return fmt.Errorf("%w: database name must not be empty", ErrInvalidPostgresDBName)
	}
	if !validSSLModes[c.PostgresSSLMode] {
		return fmt.Errorf("%w: %q", ErrInvalidPostgresSSLMode, c.PostgresSSLMode)
	}

	if c.ChunkSize < 1 {
		return fmt.Errorf("%w: %d (must be positive)", ErrInvalidChunkSize, c.ChunkSize)
	}
	if c.ChunkOverlap < 0 || c.ChunkOverlap >= c.ChunkSize {
		return fmt.Errorf("%w: %d (must satisfy 0 <= overlap < chunk size %d)",
			ErrInvalidChunkOverlap, c.ChunkOverlap, c.ChunkSize)
	}
	if c.EmbedBatchSize < 1 {
		return fmt.Errorf("%w: %d (must be positive)", ErrInvalidEmbedBatchSize, c.EmbedBatchSize)
	}
	if c.EmbedDimension < 1 {
		return fmt.Errorf("%w: %d (must be positive)", ErrInvalidEmbedDimension, c.EmbedDimension)
	}

	if c.RetrievalLimit < 1 {
		return fmt.Errorf("%w: %d (must be positive)", ErrInvalidRetrievalLimit, c.RetrievalLimit)
	}
	if c.MaxDistance <= 0 {
		return fmt.Errorf("%w: %g (must be positive)", ErrInvalidMaxDistance, c.MaxDistance)
	}

	if strings.TrimSpace(c.UploadDir) == "" {
		return ErrInvalidUploadDir
	}

	return nil
}
