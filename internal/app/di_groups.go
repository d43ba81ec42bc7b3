package app

import (
	"errors"
	"fmt"

	groupsRepository "github.com/allisson/keycache/internal/groups/repository"
	groupsUseCase "github.com/allisson/keycache/internal/groups/usecase"
)

// errGroupsDisabled is returned by the key group getters when GROUPS_ENABLED is false.
var errGroupsDisabled = errors.New("key groups are disabled")

// KeyGroupRepository returns the key group repository for the configured driver.
func (c *Container) KeyGroupRepository() (groupsUseCase.KeyGroupRepository, error) {
	var err error
	c.keyGroupRepositoryInit.Do(func() {
		c.keyGroupRepository, err = c.initKeyGroupRepository()
		if err != nil {
			c.initErrors["keyGroupRepository"] = err
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["keyGroupRepository"]; exists {
		return nil, storedErr
	}
	return c.keyGroupRepository, nil
}

// KeyGroupUseCase returns the key group use case wrapped with metrics.
func (c *Container) KeyGroupUseCase() (groupsUseCase.KeyGroupUseCase, error) {
	var err error
	c.keyGroupUseCaseInit.Do(func() {
		c.keyGroupUseCase, err = c.initKeyGroupUseCase()
		if err != nil {
			c.initErrors["keyGroupUseCase"] = err
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["keyGroupUseCase"]; exists {
		return nil, storedErr
	}
	return c.keyGroupUseCase, nil
}

func (c *Container) initKeyGroupRepository() (groupsUseCase.KeyGroupRepository, error) {
	if !c.config.GroupsEnabled {
		return nil, errGroupsDisabled
	}

	db, err := c.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database for key group repository: %w", err)
	}

	switch c.config.DBDriver {
	case "mysql":
		return groupsRepository.NewMySQLKeyGroupRepository(db), nil
	case "postgres":
		return groupsRepository.NewPostgreSQLKeyGroupRepository(db), nil
	default:
		return nil, fmt.Errorf("unsupported database driver: %s", c.config.DBDriver)
	}
}

func (c *Container) initKeyGroupUseCase() (groupsUseCase.KeyGroupUseCase, error) {
	txManager, err := c.TxManager()
	if err != nil {
		return nil, fmt.Errorf("failed to get tx manager for key group use case: %w", err)
	}

	repo, err := c.KeyGroupRepository()
	if err != nil {
		return nil, fmt.Errorf("failed to get key group repository for key group use case: %w", err)
	}

	businessMetrics, err := c.BusinessMetrics()
	if err != nil {
		return nil, fmt.Errorf("failed to get business metrics for key group use case: %w", err)
	}

	useCase := groupsUseCase.NewKeyGroupUseCase(txManager, repo, c.Store())
	return groupsUseCase.NewKeyGroupUseCaseWithMetrics(useCase, businessMetrics), nil
}
