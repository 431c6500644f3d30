package database

import (
	"context"
	"fmt"

	"github.com/Gobusters/ectologger"
)

// Dependency connects and migrates postgres as a startup dependency
type Dependency struct {
	config     Config
	migrations *MigrationService
	logger     ectologger.Logger
	instance   *DatabaseInstance
}

func NewDependency(config Config, migrations *MigrationService, logger ectologger.Logger) *Dependency {
	return &Dependency{
		config:     config,
		migrations: migrations,
		logger:     logger,
	}
}

func (d *Dependency) GetName() string {
	return "database"
}

func (d *Dependency) DependsOn() []string {
	return nil
}

func (d *Dependency) Start(ctx context.Context) error {
	if d.instance == nil {
		instance, err := Connect(ctx, d.config, d.logger)
		if err != nil {
			return err
		}
		d.instance = instance
	}

	if d.migrations != nil {
		if err := d.migrations.MigratePostgres(d.instance); err != nil {
			return fmt.Errorf("failed to migrate database: %w", err)
		}
	}
	return nil
}

func (d *Dependency) Stop(_ context.Context) error {
	if d.instance == nil {
		return nil
	}
	return d.instance.Close()
}

// DB returns the connected pool, or nil before Start succeeded
func (d *Dependency) DB() DB {
	if d.instance == nil {
		return nil
	}
	return d.instance
}

// Ping checks the connection for health reporting
func (d *Dependency) Ping(ctx context.Context) error {
	if d.instance == nil {
		return fmt.Errorf("database not connected")
	}
	return d.instance.PingContext(ctx)
}
